package main

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/gophersatwork/buildcache"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWith(afero.NewOsFs(), nil)
}

// newRootCommandWith builds the command tree over fs. A nil env means the
// process environment decides the cache root.
func newRootCommandWith(fs afero.Fs, env *buildcache.Env) *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags, fs, env)

	rootCmd := &cobra.Command{
		Use:           "buildcache",
		Short:         "Cache documentation console build output",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Build configuration file (TOML)")
	pf.StringVar(&flags.platform, "platform", "", "Platform used to locate the cache root (default: host)")
	pf.BoolVar(&flags.noCache, "no-cache", false, "Disable the build cache")
	pf.BoolVar(&flags.strict, "strict", false, "Fail when a save cannot be completed")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "auto", "Log format: auto, console, json")

	rootCmd.AddCommand(newKeyCommand(ctx))
	rootCmd.AddCommand(newPathCommand(ctx))
	rootCmd.AddCommand(newHasCommand(ctx))
	rootCmd.AddCommand(newSaveCommand(ctx))
	rootCmd.AddCommand(newRestoreCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))
	rootCmd.AddCommand(newInspectCommand(ctx))
	rootCmd.AddCommand(newVerifyCommand(ctx))

	return rootCmd
}
