package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/gophersatwork/buildcache"
	"github.com/gophersatwork/buildcache/internal/logging"
)

type globalFlags struct {
	config    string
	platform  string
	noCache   bool
	strict    bool
	logLevel  string
	logFormat string
}

type commandContext struct {
	flags *globalFlags
	fs    afero.Fs
	env   *buildcache.Env

	logger *slog.Logger
}

func newCommandContext(flags *globalFlags, fs afero.Fs, env *buildcache.Env) *commandContext {
	return &commandContext{flags: flags, fs: fs, env: env}
}

// loadConfig reads --config when given; otherwise every key field is unset.
// --no-cache always wins over the file.
func (c *commandContext) loadConfig() (buildcache.Config, error) {
	var cfg buildcache.Config
	if path := strings.TrimSpace(c.flags.config); path != "" {
		loaded, err := buildcache.LoadConfig(c.fs, path)
		if err != nil {
			return buildcache.Config{}, err
		}
		cfg = loaded
	}
	if c.flags.noCache {
		cfg.DisableCache = true
	}
	return cfg, nil
}

// ensureLogger builds the logger on the command's stderr.
func (c *commandContext) ensureLogger(cmd *cobra.Command) (*slog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	logger, err := logging.New(logging.Options{
		Level:  c.flags.logLevel,
		Format: c.flags.logFormat,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	c.logger = logger
	return logger, nil
}

// openCache loads the configuration and constructs the cache for it.
func (c *commandContext) openCache(cmd *cobra.Command) (*buildcache.Cache, error) {
	logger, err := c.ensureLogger(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}

	options := []buildcache.Option{
		buildcache.WithFs(c.fs),
		buildcache.WithLogger(logger),
	}
	if platform := buildcache.Platform(strings.ToLower(strings.TrimSpace(c.flags.platform))); platform != "" {
		if !platform.Known() {
			return nil, fmt.Errorf("--platform: unknown value %q", c.flags.platform)
		}
		options = append(options, buildcache.WithPlatform(platform))
	}
	if c.env != nil {
		options = append(options, buildcache.WithEnv(*c.env))
	}

	cache, err := buildcache.New(cfg, options...)
	if err != nil {
		return nil, fmt.Errorf("open build cache: %w", err)
	}
	return cache, nil
}

// openEnabledCache is openCache for commands that have nothing to do when caching is off.
func (c *commandContext) openEnabledCache(cmd *cobra.Command) (*buildcache.Cache, error) {
	cache, err := c.openCache(cmd)
	if err != nil {
		return nil, err
	}
	if !cache.Enabled() {
		return nil, buildcache.ErrCacheDisabled
	}
	return cache, nil
}
