package buildcache

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrCacheDisabled is returned by Restore when caching is turned off.
	ErrCacheDisabled = errors.New("build cache disabled")

	// ErrInvalidArchive is returned when a cache archive cannot be parsed.
	ErrInvalidArchive = errors.New("invalid cache archive")

	// ErrUnsafePath is returned when an archive entry would escape the destination directory.
	ErrUnsafePath = errors.New("unsafe archive entry path")

	// ErrNoHomeDir is returned when a platform needs a home directory and none is known.
	ErrNoHomeDir = errors.New("home directory not set")
)

// ArchiveError records a failed archive operation and the path it touched.
type ArchiveError struct {
	Op   string // "write" or "read"
	Path string // archive entry or file path
	Err  error
}

// Error implements the error interface.
func (e *ArchiveError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("archive %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("archive %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *ArchiveError) Unwrap() error {
	return e.Err
}

func newArchiveError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &ArchiveError{Op: op, Path: path, Err: err}
}
