package buildcache

import (
	"log/slog"

	"github.com/spf13/afero"
)

// WithFs sets a custom filesystem for the cache.
// This is primarily useful for testing with in-memory filesystems.
//
// Example:
//
//	cache, err := buildcache.New(cfg, buildcache.WithFs(afero.NewMemMapFs()))
func WithFs(fs afero.Fs) Option {
	return func(c *Cache) {
		c.fs = fs
	}
}

// WithLogger sets the logger used for diagnostics.
// Nothing the cache decides depends on logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithPlatform overrides the host platform used to locate the cache root.
// It takes precedence over Config.Platform.
func WithPlatform(platform Platform) Option {
	return func(c *Cache) {
		c.platform = platform
	}
}

// WithEnv replaces the process environment used to locate the cache root.
func WithEnv(env Env) Option {
	return func(c *Cache) {
		c.env = &env
	}
}

// WithCompressionLevel sets the deflate level for new archives.
// The default is flate.BestCompression. Any level restores identically.
func WithCompressionLevel(level int) Option {
	return func(c *Cache) {
		c.level = level
	}
}

// WithLocking toggles the advisory file lock taken around Save and Restore.
// Locking is on by default and only applies to the OS filesystem.
func WithLocking(enabled bool) Option {
	return func(c *Cache) {
		c.locking = enabled
	}
}

// WithNowFunc sets a custom time function for the cache.
// This is primarily useful for testing with deterministic timestamps.
func WithNowFunc(nowFunc NowFunc) Option {
	return func(c *Cache) {
		c.nowFunc = nowFunc
	}
}
