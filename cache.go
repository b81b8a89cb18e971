package buildcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/spf13/afero"

	"github.com/gophersatwork/buildcache/internal/logging"
)

// Cache stores and restores packed build output trees.
// There is one archive per key under the cache root. A Cache is meant for a
// single build invocation and runs one operation at a time.
type Cache struct {
	enabled bool
	key     Key
	tokens  []string // key tokens, kept for the manifest
	root    string

	fs       afero.Fs
	logger   *slog.Logger
	nowFunc  NowFunc
	platform Platform
	env      *Env
	level    int
	locking  bool
	mu       sync.Mutex
}

// NowFunc defines a function that returns the current time.
type NowFunc func() time.Time

// Option defines a function that configures a Cache.
type Option func(*Cache)

// New creates a cache for cfg. The key and the cache root are computed here,
// once; nothing is written until Save. When cfg.DisableCache is set the
// returned cache is inert: Has reports false and Save does nothing.
func New(cfg Config, options ...Option) (*Cache, error) {
	cache := &Cache{
		fs:      afero.NewOsFs(),
		nowFunc: time.Now,
		level:   flate.BestCompression,
		locking: true,
	}

	// Apply options
	for _, option := range options {
		option(cache)
	}
	cache.logger = logging.NewComponentLogger(cache.logger, "buildcache")

	if cache.level < flate.HuffmanOnly || cache.level > flate.BestCompression {
		return nil, fmt.Errorf("invalid compression level %d", cache.level)
	}

	if cfg.DisableCache {
		cache.logger.Debug("build cache disabled by configuration")
		return cache, nil
	}

	kb := keyBuilder(cfg)
	if skipped := kb.Skipped(); len(skipped) > 0 {
		cache.logger.Debug("cache key fields skipped, values could not be encoded",
			logging.Strings("fields", skipped))
	}
	cache.key = kb.Build()
	cache.tokens = kb.Tokens()

	platform := cache.platform
	if platform == "" && cfg.Platform != "" {
		platform = Platform(cfg.Platform)
	}
	if platform == "" {
		platform = HostPlatform()
	}
	env := HostEnv()
	if cache.env != nil {
		env = *cache.env
	}
	root, err := Locate(platform, env)
	if err != nil {
		return nil, fmt.Errorf("locate cache root: %w", err)
	}
	cache.root = root
	cache.enabled = true

	cache.logger.Debug("build cache ready",
		logging.String("key", cache.key.String()),
		logging.String("root", cache.root),
		logging.String("platform", string(platform)),
		logging.Bool("locking", cache.locking))
	return cache, nil
}

// Enabled reports whether the cache is active.
func (c *Cache) Enabled() bool {
	return c.enabled
}

// Key returns the cache key, or "" when the cache is disabled.
func (c *Cache) Key() Key {
	return c.key
}

// Root returns the cache root directory, or "" when the cache is disabled.
func (c *Cache) Root() string {
	return c.root
}

// ArchivePath returns <root>/<key>.zip, or "" when the cache is disabled.
func (c *Cache) ArchivePath() string {
	if !c.enabled {
		return ""
	}
	return filepath.Join(c.root, c.key.String()+".zip")
}

// manifestPath returns the sidecar manifest path for the current key.
func (c *Cache) manifestPath() string {
	return filepath.Join(c.root, c.key.String()+".json")
}

// lockPath returns the advisory lock file for the current key.
func (c *Cache) lockPath() string {
	return filepath.Join(c.root, c.key.String()+".lock")
}

// Has reports whether an archive exists for the current key and can be opened.
// The archive contents are not validated.
func (c *Cache) Has(ctx context.Context) bool {
	if !c.enabled {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.ArchivePath()
	info, err := c.fs.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.DebugContext(ctx, "cache archive stat failed", logging.String("path", path), logging.Error(err))
		}
		return false
	}
	if !info.Mode().IsRegular() {
		return false
	}
	f, err := c.fs.Open(path)
	if err != nil {
		c.logger.DebugContext(ctx, "cache archive not readable", logging.String("path", path), logging.Error(err))
		return false
	}
	_ = f.Close()
	return true
}

// Restore unpacks the archive for the current key into destDir.
// Callers are expected to check Has first; a missing archive returns an
// error matching fs.ErrNotExist. A failure part-way through can leave destDir
// partially populated.
func (c *Cache) Restore(ctx context.Context, destDir string) error {
	if !c.enabled {
		return ErrCacheDisabled
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	unlock, err := c.acquire(ctx, false)
	if err != nil {
		return fmt.Errorf("restore build cache: %w", err)
	}
	defer unlock()

	start := c.nowFunc()
	files, err := ReadArchive(ctx, c.fs, c.ArchivePath(), destDir)
	if err != nil {
		c.logger.DebugContext(ctx, "cache restore failed",
			logging.String("key", c.key.String()),
			logging.Int("files_restored", files),
			logging.Error(err))
		return fmt.Errorf("restore build cache: %w", err)
	}

	c.logger.InfoContext(ctx, "restored build from cache",
		logging.String("key", c.key.String()),
		logging.String("dest", destDir),
		logging.Int("files", files),
		logging.Duration("elapsed", c.nowFunc().Sub(start)))
	return nil
}

// Save packs srcDir into the archive for the current key, replacing any
// previous archive. The archive is written to a temporary file in the cache
// root and renamed into place, so Has never sees a partial archive.
func (c *Cache) Save(ctx context.Context, srcDir string) error {
	if !c.enabled {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.fs.MkdirAll(c.root, 0o755); err != nil {
		return fmt.Errorf("create cache root: %w", err)
	}

	unlock, err := c.acquire(ctx, true)
	if err != nil {
		return fmt.Errorf("save build cache: %w", err)
	}
	defer unlock()

	start := c.nowFunc()
	summary, archiveSize, err := c.writeArchiveFile(ctx, srcDir)
	if err != nil {
		return fmt.Errorf("save build cache: %w", err)
	}
	if len(summary.Skipped) > 0 {
		c.logger.DebugContext(ctx, "skipped non-regular files while packing",
			logging.Strings("paths", summary.Skipped))
	}

	if err := c.writeManifest(srcDir, summary, archiveSize); err != nil {
		c.logger.WarnContext(ctx, "failed to write cache manifest",
			logging.String(logging.FieldEventType, "buildcache_manifest_failed"),
			logging.Error(err))
		if err := c.removeManifest(); err != nil {
			c.logger.WarnContext(ctx, "failed to remove stale cache manifest",
				logging.String("path", c.manifestPath()),
				logging.Error(err))
		}
	}

	c.logger.InfoContext(ctx, "cached build output",
		logging.String("key", c.key.String()),
		logging.String("archive", c.ArchivePath()),
		logging.Int("files", summary.Files),
		logging.Int64("bytes", summary.Bytes),
		logging.Int64("archive_bytes", archiveSize),
		logging.Duration("elapsed", c.nowFunc().Sub(start)))
	return nil
}

// writeArchiveFile packs srcDir into a temp file and renames it over the archive path.
func (c *Cache) writeArchiveFile(ctx context.Context, srcDir string) (ArchiveSummary, int64, error) {
	tmp, err := afero.TempFile(c.fs, c.root, c.key.String()+"-*.tmp")
	if err != nil {
		return ArchiveSummary{}, 0, fmt.Errorf("create temp archive: %w", err)
	}
	tmpPath := tmp.Name()

	summary, err := WriteArchive(ctx, c.fs, srcDir, tmp, c.level)
	if err != nil {
		_ = tmp.Close()
		_ = c.fs.Remove(tmpPath)
		return summary, 0, err
	}
	if err := tmp.Close(); err != nil {
		_ = c.fs.Remove(tmpPath)
		return summary, 0, fmt.Errorf("close temp archive: %w", err)
	}

	var size int64
	if info, err := c.fs.Stat(tmpPath); err == nil {
		size = info.Size()
	}
	if err := c.fs.Rename(tmpPath, c.ArchivePath()); err != nil {
		_ = c.fs.Remove(tmpPath)
		return summary, 0, fmt.Errorf("move archive into place: %w", err)
	}
	return summary, size, nil
}
