/*
Package buildcache lets a documentation console build skip its compile and
bundle pipeline when the inputs that shape the output have not changed.

A finished output tree is packed into a single zip archive keyed by a digest
of the relevant build configuration. The next build with the same
configuration restores the tree from that archive instead of rebuilding it.

# Keys

The key is the SHA-256 of an ordered list of name=value tokens taken from a
fixed set of Config fields:

	repository, tagName, bundleParser, disableTryIt,
	disableCodeEditor, disableMarkdown, theme, attributes

Unset fields produce no token. Attributes are JSON encoded; if encoding fails
the field is left out and derivation still succeeds. Every other field
(OutputDir, Verbose, DisableCache, Platform) has no effect on the key.

	key := buildcache.DeriveKey(buildcache.Config{TagName: "6.0.0"})

# Cache root

Archives live in a per-user directory resolved by Locate from the platform and
environment:

	$APPDATA/docconsole/cache/builds                    when APPDATA is set
	$HOME/Library/Preferences/docconsole/cache/builds   on darwin
	$HOME/.config/docconsole/cache/builds               on linux
	/var/local/docconsole/cache/builds                  elsewhere

The directory is created on the first Save.

# Basic Usage

	cache, err := buildcache.New(cfg, buildcache.WithLogger(logger))
	if err != nil {
	    return err
	}

	if cache.Has(ctx) {
	    if err := cache.Restore(ctx, outDir); err == nil {
	        return nil
	    }
	    // fall back to a full build
	}

	if err := build(outDir); err != nil {
	    return err
	}
	if err := cache.Save(ctx, outDir); err != nil {
	    logger.Warn("build not cached", "error", err)
	}

# File Structure

	<root>/
	├── <key>.zip    packed output tree
	├── <key>.json   manifest (informational)
	└── <key>.lock   advisory lock, OS filesystem only

# Caveats

Existence of <key>.zip is the only hit check. The archive is never compared
against current inputs beyond the key, and entries are never evicted. Save
replaces the archive through a rename so a reader never sees a half-written
file, but a failed Restore may leave the destination partially populated.
*/
package buildcache
