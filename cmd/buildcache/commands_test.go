package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gophersatwork/buildcache"
)

const testConfigTOML = `
repository = "https://example.com/petstore.yaml"
tag_name = "6.0.0"
theme = "brand.css"
`

var cliTestEnv = buildcache.Env{Home: "/home/ci"}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func (r cliResult) code() int {
	if r.err == nil {
		return 0
	}
	return exitCode(r.err)
}

// runCLI executes the command tree over fs with a linux layout rooted at /home/ci.
func runCLI(t *testing.T, fs afero.Fs, args ...string) cliResult {
	t.Helper()

	cmd := newRootCommandWith(fs, &cliTestEnv)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--platform", "linux", "--log-format", "json"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// setupCLIFs writes the config file and a built output tree at /work/out.
func setupCLIFs(t *testing.T) afero.Fs {
	t.Helper()

	memFs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(memFs, "/work/console.toml", []byte(testConfigTOML), 0o644))
	for name, content := range map[string]string{
		"index.html":        "<docs-console></docs-console>",
		"assets/console.js": strings.Repeat("render();", 100),
	} {
		path := filepath.Join("/work/out", filepath.FromSlash(name))
		require.NoError(t, memFs.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(memFs, path, []byte(content), 0o644))
	}
	return memFs
}

func expectedKey(t *testing.T, memFs afero.Fs) buildcache.Key {
	t.Helper()

	cfg, err := buildcache.LoadConfig(memFs, "/work/console.toml")
	require.NoError(t, err)
	return buildcache.DeriveKey(cfg)
}

func TestKeyCommand(t *testing.T) {
	memFs := setupCLIFs(t)
	key := expectedKey(t, memFs)

	res := runCLI(t, memFs, "--config", "/work/console.toml", "key")
	require.NoError(t, res.err)
	assert.Equal(t, key.String()+"\n", res.stdout)

	res = runCLI(t, memFs, "-c", "/work/console.toml", "key", "--json")
	require.NoError(t, res.err)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &payload))
	assert.Equal(t, key.String(), payload["key"])
	assert.Equal(t, "sha256:"+key.String(), payload["digest"])
}

func TestKeyCommandWithoutConfig(t *testing.T) {
	res := runCLI(t, afero.NewMemMapFs(), "key")
	require.NoError(t, res.err)
	assert.Equal(t, buildcache.DeriveKey(buildcache.Config{}).String()+"\n", res.stdout)
}

func TestPathCommand(t *testing.T) {
	memFs := setupCLIFs(t)
	key := expectedKey(t, memFs)

	res := runCLI(t, memFs, "--config", "/work/console.toml", "path")
	require.NoError(t, res.err)
	want := filepath.Join("/home/ci", ".config", "docconsole", "cache", "builds", key.String()+".zip")
	assert.Equal(t, want+"\n", res.stdout)
}

func TestSaveHasRestoreVerify(t *testing.T) {
	memFs := setupCLIFs(t)
	cfgArgs := []string{"--config", "/work/console.toml"}

	res := runCLI(t, memFs, append(cfgArgs, "has")...)
	assert.Equal(t, exitMiss, res.code())
	assert.Equal(t, "miss\n", res.stdout)

	res = runCLI(t, memFs, append(cfgArgs, "save", "/work/out")...)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "saved ")

	res = runCLI(t, memFs, append(cfgArgs, "has")...)
	require.NoError(t, res.err)
	assert.Equal(t, "hit\n", res.stdout)

	res = runCLI(t, memFs, append(cfgArgs, "restore", "/work/restored")...)
	require.NoError(t, res.err)
	data, err := afero.ReadFile(memFs, "/work/restored/index.html")
	require.NoError(t, err)
	assert.Equal(t, "<docs-console></docs-console>", string(data))

	res = runCLI(t, memFs, append(cfgArgs, "verify", "/work/restored")...)
	require.NoError(t, res.err)
	assert.True(t, strings.HasPrefix(res.stdout, "ok "))

	require.NoError(t, afero.WriteFile(memFs, "/work/restored/index.html", []byte("edited"), 0o644))
	res = runCLI(t, memFs, append(cfgArgs, "verify", "/work/restored")...)
	assert.Equal(t, exitFailure, res.code())
	assert.Contains(t, res.err.Error(), "does not match")
}

func TestRestoreMissExitCode(t *testing.T) {
	memFs := setupCLIFs(t)

	res := runCLI(t, memFs, "--config", "/work/console.toml", "restore", "/work/restored")
	require.Error(t, res.err)
	assert.Equal(t, exitMiss, res.code())
	assert.Contains(t, res.err.Error(), "cache miss")

	exists, _ := afero.DirExists(memFs, "/work/restored")
	assert.False(t, exists)
}

func TestRestoreCorruptExitCode(t *testing.T) {
	memFs := setupCLIFs(t)
	res := runCLI(t, memFs, "--config", "/work/console.toml", "path")
	require.NoError(t, res.err)
	archive := strings.TrimSpace(res.stdout)
	require.NoError(t, memFs.MkdirAll(filepath.Dir(archive), 0o755))
	require.NoError(t, afero.WriteFile(memFs, archive, []byte("not a zip"), 0o644))

	res = runCLI(t, memFs, "--config", "/work/console.toml", "restore", "/work/restored")
	assert.Equal(t, exitMiss, res.code())
	assert.True(t, errors.Is(res.err, buildcache.ErrInvalidArchive))
}

func TestSaveFailureIsWarningUnlessStrict(t *testing.T) {
	memFs := setupCLIFs(t)

	res := runCLI(t, memFs, "--config", "/work/console.toml", "save", "/work/missing")
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "buildcache_save_failed")

	res = runCLI(t, memFs, "--strict", "--config", "/work/console.toml", "save", "/work/missing")
	require.Error(t, res.err)
	assert.Equal(t, exitFailure, res.code())
}

func TestNoCacheFlag(t *testing.T) {
	memFs := setupCLIFs(t)

	res := runCLI(t, memFs, "--no-cache", "--config", "/work/console.toml", "save", "/work/out")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "cache disabled")
	exists, _ := afero.DirExists(memFs, "/home/ci")
	assert.False(t, exists)

	res = runCLI(t, memFs, "--no-cache", "--config", "/work/console.toml", "has")
	assert.Equal(t, exitMiss, res.code())

	res = runCLI(t, memFs, "--no-cache", "path")
	assert.ErrorIs(t, res.err, buildcache.ErrCacheDisabled)
}

func TestInspectAndStats(t *testing.T) {
	memFs := setupCLIFs(t)
	key := expectedKey(t, memFs)
	cfgArgs := []string{"--config", "/work/console.toml"}

	res := runCLI(t, memFs, append(cfgArgs, "inspect")...)
	require.Error(t, res.err, "inspect before any save")

	require.NoError(t, runCLI(t, memFs, append(cfgArgs, "save", "/work/out")...).err)

	res = runCLI(t, memFs, append(cfgArgs, "inspect")...)
	require.NoError(t, res.err)
	var manifest buildcache.Manifest
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &manifest))
	assert.Equal(t, key.Digest(), manifest.Digest)
	assert.Equal(t, 2, manifest.Files)
	assert.Equal(t, []string{
		"repository=https://example.com/petstore.yaml",
		"tagName=6.0.0",
		"theme=brand.css",
	}, manifest.Tokens)

	res = runCLI(t, memFs, append(cfgArgs, "stats", "--json")...)
	require.NoError(t, res.err)
	var stats buildcache.Stats
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &stats))
	assert.Equal(t, 1, stats.Entries)
	assert.Positive(t, stats.TotalSize)

	res = runCLI(t, memFs, append(cfgArgs, "stats")...)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Entries: 1")
}

func TestInvalidGlobalFlags(t *testing.T) {
	memFs := setupCLIFs(t)

	res := runCLI(t, memFs, "--log-format", "xml", "has")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "log format")

	require.NoError(t, afero.WriteFile(memFs, "/work/bad.toml", []byte("tagname = \"6.0.0\"\n"), 0o644))
	res = runCLI(t, memFs, "--config", "/work/bad.toml", "key")
	require.Error(t, res.err)
	assert.Equal(t, exitFailure, res.code())
}

func TestUnknownPlatformFlag(t *testing.T) {
	memFs := setupCLIFs(t)

	res := runCLI(t, memFs, "--config", "/work/console.toml", "--platform", "linx", "path")
	require.Error(t, res.err)
	assert.Equal(t, exitFailure, res.code())
	assert.Contains(t, res.err.Error(), "--platform")
	assert.Empty(t, res.stdout)

	res = runCLI(t, memFs, "--config", "/work/console.toml", "--platform", "Darwin", "path")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, filepath.Join("Library", "Preferences"))
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.0 KiB", humanBytes(1024))
	assert.Equal(t, "1.5 MiB", humanBytes(3*512*1024))
}
