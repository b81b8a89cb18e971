package buildcache

import (
	"os"
	"path/filepath"
	"runtime"
)

// appName is the per-user application directory the cache lives under.
const appName = "docconsole"

// fallbackRoot is used on platforms without a known per-user location.
const fallbackRoot = "/var/local"

// Platform identifies the host operating system, using GOOS names.
type Platform string

// Known platforms.
const (
	PlatformDarwin  Platform = "darwin"
	PlatformLinux   Platform = "linux"
	PlatformWindows Platform = "windows"
)

// knownPlatforms lists the GOOS values accepted as a Platform override.
var knownPlatforms = map[Platform]bool{
	"aix": true, "android": true, "darwin": true, "dragonfly": true,
	"freebsd": true, "illumos": true, "ios": true, "js": true,
	"linux": true, "netbsd": true, "openbsd": true, "plan9": true,
	"solaris": true, "wasip1": true, "windows": true,
}

// Known reports whether p is a GOOS name.
func (p Platform) Known() bool {
	return knownPlatforms[p]
}

// Env holds the environment values Locate depends on.
type Env struct {
	AppData string // per-user application data directory (APPDATA)
	Home    string // user home directory
}

// HostPlatform returns the platform the binary runs on.
func HostPlatform() Platform {
	return Platform(runtime.GOOS)
}

// HostEnv reads Env from the process environment.
// A missing home directory is left empty; Locate reports it when it matters.
func HostEnv() Env {
	home, _ := os.UserHomeDir()
	return Env{
		AppData: os.Getenv("APPDATA"),
		Home:    home,
	}
}

// Locate returns the cache root for the given platform and environment.
// It does not touch the filesystem.
func Locate(platform Platform, env Env) (string, error) {
	var base string
	switch {
	case env.AppData != "":
		base = env.AppData
	case platform == PlatformDarwin:
		if env.Home == "" {
			return "", ErrNoHomeDir
		}
		base = filepath.Join(env.Home, "Library", "Preferences")
	case platform == PlatformLinux:
		if env.Home == "" {
			return "", ErrNoHomeDir
		}
		base = filepath.Join(env.Home, ".config")
	default:
		base = fallbackRoot
	}
	return filepath.Join(base, appName, "cache", "builds"), nil
}
