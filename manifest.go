package buildcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
)

// Manifest describes a cache archive. It is written next to the archive as
// <key>.json after a successful Save and is informational only: Has and
// Restore never read it. When the manifest cannot be written, any previous
// one is removed, so a manifest present on disk always matches the archive.
type Manifest struct {
	// Key information
	Digest digest.Digest `json:"digest"` // sha256:<key>
	Tokens []string      `json:"tokens"` // name=value pairs the key was derived from

	// Archive information
	Fingerprint string `json:"fingerprint"` // xxHash64 tree fingerprint of the source
	Files       int    `json:"files"`
	Dirs        int    `json:"dirs"`
	Bytes       int64  `json:"bytes"`       // uncompressed file bytes
	ArchiveSize int64  `json:"archiveSize"` // bytes on disk

	// Metadata
	CreatedAt time.Time `json:"createdAt"`
}

// writeManifest records the archive just written for srcDir.
func (c *Cache) writeManifest(srcDir string, summary ArchiveSummary, archiveSize int64) error {
	fingerprint, err := Fingerprint(c.fs, srcDir)
	if err != nil {
		return fmt.Errorf("fingerprint source: %w", err)
	}

	m := &Manifest{
		Digest:      c.key.Digest(),
		Tokens:      c.tokens,
		Fingerprint: fingerprint,
		Files:       summary.Files,
		Dirs:        summary.Dirs,
		Bytes:       summary.Bytes,
		ArchiveSize: archiveSize,
		CreatedAt:   c.nowFunc().UTC(),
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	tmp, err := afero.TempFile(c.fs, c.root, c.key.String()+"-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = c.fs.Remove(tmpPath)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = c.fs.Remove(tmpPath)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := c.fs.Rename(tmpPath, c.manifestPath()); err != nil {
		_ = c.fs.Remove(tmpPath)
		return fmt.Errorf("failed to move manifest into place: %w", err)
	}
	return nil
}

// removeManifest drops the manifest for the current key so it never
// describes an archive it was not written for.
func (c *Cache) removeManifest() error {
	if err := c.fs.Remove(c.manifestPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ReadManifest loads the manifest for the current key.
// A missing manifest returns an error matching fs.ErrNotExist.
func (c *Cache) ReadManifest(ctx context.Context) (*Manifest, error) {
	if !c.enabled {
		return nil, ErrCacheDisabled
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := afero.ReadFile(c.fs, c.manifestPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	if err := m.Digest.Validate(); err != nil {
		return nil, fmt.Errorf("manifest digest: %w", err)
	}
	return &m, nil
}
