package main

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

// globalFlags are the persistent flags every subcommand shares: where
// the cache and config live, and how verbose lun's own log stream is.
type globalFlags struct {
	cacheDir   string
	configPath string
	verbose    int
	trace      bool
	noColor    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "lun",
		Short:         "Cache-accelerated driver for external linters and formatters",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.cacheDir, "cache", ".lun", "cache directory")
	root.PersistentFlags().StringVar(&g.configPath, "config", "lun.toml", "config file")
	root.PersistentFlags().CountVarP(&g.verbose, "verbose", "v", "increase log verbosity (repeatable)")
	root.PersistentFlags().BoolVar(&g.trace, "trace", false, "enable trace-level logging")
	root.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "disable colored tool output")

	root.AddCommand(newRunCmd(g))
	root.AddCommand(newCacheCmd(g))
	root.AddCommand(newInitCmd(g))
	root.AddCommand(newAddCmd(g))
	root.AddCommand(newWatchCmd(g))

	// `lun` with no subcommand behaves like `lun run`.
	defaultRun := newRunCmd(g)
	root.RunE = defaultRun.RunE
	root.Flags().AddFlagSet(defaultRun.Flags())

	return root
}
