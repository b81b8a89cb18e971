package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gophersatwork/buildcache"
	"github.com/gophersatwork/buildcache/internal/logging"
)

func newKeyCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Print the cache key for the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			key := buildcache.DeriveKey(cfg)
			if asJSON {
				return writeJSON(cmd, map[string]string{
					"key":    key.String(),
					"digest": key.Digest().String(),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newPathCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the archive path for the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openEnabledCache(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cache.ArchivePath())
			return nil
		},
	}
}

func newHasCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "has",
		Short: "Report whether a cached build exists (exit 0 on hit, 2 on miss)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openCache(cmd)
			if err != nil {
				return err
			}
			if !cache.Has(cmd.Context()) {
				fmt.Fprintln(cmd.OutOrStdout(), "miss")
				return &exitError{code: exitMiss}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "hit")
			return nil
		},
	}
}

func newSaveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "save <dir>",
		Short: "Pack a built output directory into the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openCache(cmd)
			if err != nil {
				return err
			}
			if !cache.Enabled() {
				fmt.Fprintln(cmd.OutOrStdout(), "cache disabled, nothing saved")
				return nil
			}
			if err := cache.Save(cmd.Context(), args[0]); err != nil {
				if ctx.flags.strict {
					return err
				}
				ctx.logger.Warn("build output not cached",
					logging.String(logging.FieldEventType, "buildcache_save_failed"),
					logging.Error(err))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", cache.ArchivePath())
			return nil
		},
	}
}

func newRestoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <dir>",
		Short: "Unpack the cached build into a directory (exit 2 on miss or failure)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openCache(cmd)
			if err != nil {
				return err
			}
			if !cache.Has(cmd.Context()) {
				return &exitError{code: exitMiss, err: errors.New("cache miss")}
			}
			if err := cache.Restore(cmd.Context(), args[0]); err != nil {
				return &exitError{code: exitMiss, err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s into %s\n", cache.Key(), args[0])
			return nil
		},
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache root usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openEnabledCache(cmd)
			if err != nil {
				return err
			}
			stats, err := cache.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, stats)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Root:    %s\n", stats.Root)
			fmt.Fprintf(out, "Entries: %d\n", stats.Entries)
			fmt.Fprintf(out, "Size:    %s\n", humanBytes(stats.TotalSize))
			if stats.Entries > 0 {
				fmt.Fprintf(out, "Oldest:  %s ago\n", stats.OldestEntry.Round(time.Second))
				fmt.Fprintf(out, "Newest:  %s ago\n", stats.NewestEntry.Round(time.Second))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newInspectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the manifest of the cached build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openEnabledCache(cmd)
			if err != nil {
				return err
			}
			manifest, err := cache.ReadManifest(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd, manifest)
		},
	}
}

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <dir>",
		Short: "Check a directory against the fingerprint in the manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openEnabledCache(cmd)
			if err != nil {
				return err
			}
			manifest, err := cache.ReadManifest(cmd.Context())
			if err != nil {
				return err
			}
			fingerprint, err := buildcache.Fingerprint(ctx.fs, args[0])
			if err != nil {
				return err
			}
			if fingerprint != manifest.Fingerprint {
				return &exitError{
					code: exitFailure,
					err:  fmt.Errorf("%s does not match the cached build: fingerprint %s, manifest %s", args[0], fingerprint, manifest.Fingerprint),
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", fingerprint)
			return nil
		},
	}
}
