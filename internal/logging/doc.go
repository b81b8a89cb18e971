// Package logging builds the slog loggers used by the cache and its CLI.
//
// It picks a console or JSON handler, parses level names, and provides a
// no-op logger plus a component logger so every cache log line carries a
// component attribute.
package logging
