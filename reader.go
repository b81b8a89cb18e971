package buildcache

import (
	"context"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

// entryIterator hands out archive entries one at a time.
// Only one entry is open at any moment; the caller finishes an entry
// before asking for the next.
type entryIterator struct {
	files []*zip.File
	next  int
}

// Next returns the next entry, or false once the archive is exhausted.
func (it *entryIterator) Next() (*zip.File, bool) {
	if it.next >= len(it.files) {
		return nil, false
	}
	f := it.files[it.next]
	it.next++
	return f, true
}

// archiveReader restores entries onto a destination directory.
type archiveReader struct {
	fs      afero.Fs
	destDir string
}

// ReadArchive restores the zip archive at archivePath into destDir and
// returns the number of files written.
//
// Directory records are skipped; parent directories are created from file
// paths as needed. Entries are extracted strictly in sequence and each file
// is fully written and closed before the next entry is opened. An archive
// that is missing or cannot be parsed fails before anything is written. A
// failure part-way through leaves the files restored so far in place.
func ReadArchive(ctx context.Context, fs afero.Fs, archivePath, destDir string) (int, error) {
	f, err := fs.Open(archivePath)
	if err != nil {
		return 0, newArchiveError("read", archivePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, newArchiveError("read", archivePath, err)
	}
	if info.IsDir() {
		return 0, newArchiveError("read", archivePath, fmt.Errorf("%w: is a directory", ErrInvalidArchive))
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return 0, newArchiveError("read", archivePath, fmt.Errorf("%w: %v", ErrInvalidArchive, err))
	}

	r := &archiveReader{fs: fs, destDir: destDir}
	it := &entryIterator{files: zr.File}
	restored := 0
	for {
		entry, ok := it.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return restored, err
		}
		name, isDir, err := entryName(entry.Name)
		if err != nil {
			return restored, newArchiveError("read", entry.Name, err)
		}
		if isDir {
			continue
		}
		if err := r.extract(entry, name); err != nil {
			return restored, err
		}
		restored++
	}
	return restored, nil
}

// entryName normalises an archive entry name to a slash-separated relative
// path and reports whether it names a directory.
func entryName(raw string) (string, bool, error) {
	name := strings.ReplaceAll(raw, `\`, "/")
	if strings.HasSuffix(name, "/") {
		return name, true, nil
	}
	if !iofs.ValidPath(name) || name == "." {
		return "", false, fmt.Errorf("%w: %q", ErrUnsafePath, raw)
	}
	return name, false, nil
}

// extract writes one file entry to its target path under destDir.
func (r *archiveReader) extract(entry *zip.File, name string) error {
	target := filepath.Join(r.destDir, filepath.FromSlash(name))
	if err := r.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return newArchiveError("read", name, fmt.Errorf("create parent: %w", err))
	}

	src, err := entry.Open()
	if err != nil {
		return newArchiveError("read", name, fmt.Errorf("%w: %v", ErrInvalidArchive, err))
	}
	defer src.Close()

	perm := entry.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	dst, err := r.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return newArchiveError("read", name, fmt.Errorf("create: %w", err))
	}
	if _, err := copyBuffered(dst, src); err != nil {
		_ = dst.Close()
		return newArchiveError("read", name, fmt.Errorf("copy: %w", err))
	}
	if err := dst.Close(); err != nil {
		return newArchiveError("read", name, fmt.Errorf("close: %w", err))
	}
	return nil
}
