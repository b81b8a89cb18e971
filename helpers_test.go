package buildcache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

// testEnv points the cache root at /home/builder/.config on linux.
var testEnv = Env{Home: "/home/builder"}

// setupTestCache creates a cache for cfg on a fresh in-memory filesystem.
func setupTestCache(t *testing.T, cfg Config, options ...Option) (*Cache, afero.Fs) {
	t.Helper()

	memFs := afero.NewMemMapFs()
	return setupTestCacheOn(t, memFs, cfg, options...), memFs
}

// setupTestCacheOn creates a cache for cfg on fs with a fixed platform and environment.
func setupTestCacheOn(t *testing.T, fs afero.Fs, cfg Config, options ...Option) *Cache {
	t.Helper()

	base := []Option{
		WithFs(fs),
		WithPlatform(PlatformLinux),
		WithEnv(testEnv),
		WithNowFunc(fixedNowFunc),
	}
	cache, err := New(cfg, append(base, options...)...)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	return cache
}

// createTestFile creates a file with the given path and content in the filesystem.
func createTestFile(t *testing.T, fs afero.Fs, path string, content []byte) {
	t.Helper()

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		createTestDir(t, fs, dir)
	}

	if err := afero.WriteFile(fs, path, content, 0o644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
}

// createTestDir creates a directory with the given path in the filesystem.
func createTestDir(t *testing.T, fs afero.Fs, path string) {
	t.Helper()

	if err := fs.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("Failed to create directory %s: %v", path, err)
	}
}

// createTestTree writes files (relative slash path -> content) under root.
func createTestTree(t *testing.T, fs afero.Fs, root string, files map[string]string) {
	t.Helper()

	createTestDir(t, fs, root)
	for name, content := range files {
		createTestFile(t, fs, filepath.Join(root, filepath.FromSlash(name)), []byte(content))
	}
}

// readTree returns every regular file under root keyed by slash-separated relative path.
func readTree(t *testing.T, fs afero.Fs, root string) map[string]string {
	t.Helper()

	tree := make(map[string]string)
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return err
		}
		tree[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to read tree %s: %v", root, err)
	}
	return tree
}

// assertFileContent asserts that a file has the expected content.
func assertFileContent(t *testing.T, fs afero.Fs, path string, expected []byte) {
	t.Helper()

	actual, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	if string(actual) != string(expected) {
		t.Errorf("File content for %s mismatch: got %q, want %q", path, actual, expected)
	}
}

// assertTreeEqual asserts two file trees hold the same paths and contents.
func assertTreeEqual(t *testing.T, got, want map[string]string) {
	t.Helper()

	if len(got) != len(want) {
		t.Errorf("tree has %d files, want %d (got %v)", len(got), len(want), keysOf(got))
	}
	for name, content := range want {
		actual, ok := got[name]
		if !ok {
			t.Errorf("missing file %s", name)
			continue
		}
		if actual != content {
			t.Errorf("file %s: got %q, want %q", name, actual, content)
		}
	}
}

func keysOf(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Mock filesystem that fails Open or OpenFile for paths containing a marker
type mockFailingFs struct {
	afero.Fs
	failOpenOn  string // fail Open for matching paths
	failWriteOn string // fail OpenFile with write flags for matching paths
	failMkdir   bool
}

func (m *mockFailingFs) Open(name string) (afero.File, error) {
	if m.failOpenOn != "" && strings.Contains(name, m.failOpenOn) {
		return nil, fmt.Errorf("mock Open error: %s", name)
	}
	return m.Fs.Open(name)
}

func (m *mockFailingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	writing := flag&(os.O_CREATE|os.O_WRONLY|os.O_RDWR) != 0
	if m.failWriteOn != "" && writing && strings.Contains(name, m.failWriteOn) {
		return nil, fmt.Errorf("mock OpenFile error: %s", name)
	}
	return m.Fs.OpenFile(name, flag, perm)
}

func (m *mockFailingFs) MkdirAll(path string, perm os.FileMode) error {
	if m.failMkdir {
		return fmt.Errorf("mock MkdirAll error")
	}
	return m.Fs.MkdirAll(path, perm)
}

func (m *mockFailingFs) Name() string {
	return "mockFailingFs"
}
