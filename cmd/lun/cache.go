package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lun-run/lun/internal/cache"
)

func newCacheCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or maintain the lun cache",
	}
	cmd.AddCommand(newCacheRmCmd(g))
	cmd.AddCommand(newCacheGCCmd(g))
	cmd.AddCommand(newCacheStatsCmd(g))
	return cmd
}

func newCacheRmCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rm",
		Short: "Delete the cache file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cachePath(g)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing %s: %w", path, err)
			}
			return nil
		},
	}
}

func newCacheGCCmd(g *globalFlags) *cobra.Command {
	var size int64
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Evict stale entries down to a byte budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			evicted, err := cache.GC(cachePath(g), size)
			if err != nil {
				return err
			}
			if evicted {
				fmt.Fprintln(os.Stdout, "cache trimmed to fit budget")
			} else {
				fmt.Fprintln(os.Stdout, "cache already within budget")
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&size, "size", 0, "byte budget (0 = default)")
	return cmd
}

func newCacheStatsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print cache introspection statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cache.Load(cachePath(g), 0)
			if err != nil {
				return err
			}
			st := c.Stats()
			fmt.Fprintf(os.Stdout, "records:        %d\n", st.Records)
			fmt.Fprintf(os.Stdout, "approx runs:    %d\n", st.ApproxRuns)
			fmt.Fprintf(os.Stdout, "added this run: %d\n", st.AddedThisRun)
			fmt.Fprintf(os.Stdout, "capacity used:  %.1f%%\n", st.PercentOfCapacity)
			return nil
		},
	}
}

func cachePath(g *globalFlags) string {
	return filepath.Join(g.cacheDir, "lun.cache")
}
