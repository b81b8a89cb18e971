package buildcache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Stats represents cache root statistics.
type Stats struct {
	Root        string        // Cache root that was scanned
	Entries     int           // Number of archives in the root
	TotalSize   int64         // Total size of all archives in bytes
	OldestEntry time.Duration // Age of the oldest archive
	NewestEntry time.Duration // Age of the newest archive
}

// Entry describes one archive in the cache root.
type Entry struct {
	Key        Key
	Size       int64
	ModifiedAt time.Time
}

// Stats returns statistics about every archive in the cache root, not only
// the current key. A root that has not been created yet reports zero entries.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	if !c.enabled {
		return Stats{}, ErrCacheDisabled
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.entries()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Root: c.root, Entries: len(entries)}
	var oldest, newest time.Time
	for _, e := range entries {
		stats.TotalSize += e.Size

		// Track oldest and newest
		if oldest.IsZero() || e.ModifiedAt.Before(oldest) {
			oldest = e.ModifiedAt
		}
		if newest.IsZero() || e.ModifiedAt.After(newest) {
			newest = e.ModifiedAt
		}
	}

	now := c.nowFunc()
	if !oldest.IsZero() {
		stats.OldestEntry = now.Sub(oldest)
	}
	if !newest.IsZero() {
		stats.NewestEntry = now.Sub(newest)
	}

	return stats, nil
}

// Entries lists the archives in the cache root, newest first.
func (c *Cache) Entries(ctx context.Context) ([]Entry, error) {
	if !c.enabled {
		return nil, ErrCacheDisabled
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.entries()
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ModifiedAt.After(entries[j].ModifiedAt)
	})
	return entries, nil
}

// entries scans the cache root for <key>.zip files. Temp files and manifests are ignored.
func (c *Cache) entries() ([]Entry, error) {
	infos, err := afero.ReadDir(c.fs, c.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, info := range infos {
		if !isArchive(info) {
			continue
		}
		entries = append(entries, Entry{
			Key:        Key(strings.TrimSuffix(info.Name(), ".zip")),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	return entries, nil
}

func isArchive(info os.FileInfo) bool {
	return info.Mode().IsRegular() && strings.HasSuffix(info.Name(), ".zip")
}
