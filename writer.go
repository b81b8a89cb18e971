package buildcache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

// ArchiveSummary describes what WriteArchive packed.
type ArchiveSummary struct {
	Files   int      // regular files written
	Dirs    int      // directory records written
	Bytes   int64    // uncompressed bytes of file content
	Skipped []string // non-regular entries (symlinks, devices) left out
}

// archiveWriter streams a directory tree into a zip writer.
type archiveWriter struct {
	ctx     context.Context
	fs      afero.Fs
	zw      *zip.Writer
	summary ArchiveSummary
}

// WriteArchive packs the tree under srcDir into a zip stream on w.
// Each immediate child of srcDir is stored under its base name; directories
// are added recursively beneath it. Names are always slash-separated.
// File contents are deflated at level and streamed, never buffered whole.
// The first read or write failure aborts the archive.
func WriteArchive(ctx context.Context, fs afero.Fs, srcDir string, w io.Writer, level int) (ArchiveSummary, error) {
	children, err := afero.ReadDir(fs, srcDir)
	if err != nil {
		return ArchiveSummary{}, newArchiveError("write", srcDir, err)
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	aw := &archiveWriter{ctx: ctx, fs: fs, zw: zw}
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return aw.summary, err
		}
		childPath := filepath.Join(srcDir, child.Name())
		switch {
		case child.IsDir():
			err = aw.addTree(childPath, child.Name())
		case child.Mode().IsRegular():
			err = aw.addFile(childPath, child.Name(), child)
		default:
			aw.summary.Skipped = append(aw.summary.Skipped, child.Name())
		}
		if err != nil {
			_ = zw.Close()
			return aw.summary, err
		}
	}

	if err := zw.Close(); err != nil {
		return aw.summary, newArchiveError("write", "", err)
	}
	return aw.summary, nil
}

// addTree adds dir and everything under it, rooted at name inside the archive.
func (aw *archiveWriter) addTree(dir, name string) error {
	return afero.Walk(aw.fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return newArchiveError("write", p, err)
		}
		if err := aw.ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return newArchiveError("write", p, err)
		}
		entryName := path.Join(name, filepath.ToSlash(rel))

		switch {
		case info.IsDir():
			return aw.addDir(entryName)
		case info.Mode().IsRegular():
			return aw.addFile(p, entryName, info)
		default:
			aw.summary.Skipped = append(aw.summary.Skipped, entryName)
			return nil
		}
	})
}

// addDir writes an explicit directory record so empty directories survive.
func (aw *archiveWriter) addDir(name string) error {
	_, err := aw.zw.CreateHeader(&zip.FileHeader{
		Name:   name + "/",
		Method: zip.Store,
	})
	if err != nil {
		return newArchiveError("write", name, err)
	}
	aw.summary.Dirs++
	return nil
}

// addFile streams the file at src into the archive under name.
func (aw *archiveWriter) addFile(src, name string, info os.FileInfo) error {
	f, err := aw.fs.Open(src)
	if err != nil {
		return newArchiveError("write", src, err)
	}
	defer f.Close()

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return newArchiveError("write", src, err)
	}
	header.Name = name
	header.Method = zip.Deflate

	entry, err := aw.zw.CreateHeader(header)
	if err != nil {
		return newArchiveError("write", name, err)
	}
	n, err := copyBuffered(entry, f)
	if err != nil {
		return newArchiveError("write", src, fmt.Errorf("copy: %w", err))
	}

	aw.summary.Files++
	aw.summary.Bytes += n
	return nil
}
