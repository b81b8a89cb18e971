// Package main hosts the buildcache CLI.
//
// The commands expose the documentation console build cache to shell-driven
// pipelines: compute the key for a configuration file, check for a hit,
// restore a cached output tree, or save a freshly built one. Configuration
// loading, logger setup and cache construction live in commandContext so each
// command only deals with its own output.
package main
