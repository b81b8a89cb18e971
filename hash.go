package buildcache

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
)

// Default size for the buffer used when streaming file contents
const defaultBufferSize = 32 * 1024 // 32KB

// bufferPool is a pool of byte slices used for file I/O in the archive writer and reader
var bufferPool = sync.Pool{
	New: func() interface{} {
		buffer := make([]byte, defaultBufferSize)
		return &buffer
	},
}

// copyBuffered streams src into dst with a pooled buffer.
func copyBuffered(dst io.Writer, src io.Reader) (int64, error) {
	bufPtr := bufferPool.Get().(*[]byte)
	buffer := *bufPtr
	defer bufferPool.Put(bufPtr)

	return io.CopyBuffer(dst, src, buffer)
}

// Fingerprint returns an xxHash64 fingerprint of every regular file under dir.
// Files are visited in sorted relative-path order and both the slash-separated
// path and the content go into the hash, so two trees share a fingerprint only
// when they hold the same files with the same bytes. Directories do not count.
func Fingerprint(fs afero.Fs, dir string) (string, error) {
	type fileRef struct {
		path string
		size int64
	}
	files := make(map[string]fileRef)
	err := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = fileRef{path: path, size: info.Size()}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk %s: %w", dir, err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	h := xxhash.New()
	fmt.Fprintf(h, "%d", len(names))
	for _, name := range names {
		h.Write([]byte(name))
		ref := files[name]
		fmt.Fprintf(h, "\x00%d\x00", ref.size)
		if err := hashFile(fs, ref.path, h); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashFile streams the file at path into h.
func hashFile(fs afero.Fs, path string, h io.Writer) error {
	f, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := copyBuffered(h, f); err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	return nil
}
