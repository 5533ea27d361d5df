package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lun-run/lun/internal/logging"
	"github.com/lun-run/lun/internal/progress"
	"github.com/lun-run/lun/internal/runctl"
	"github.com/lun-run/lun/internal/tool"
)

type runFlags struct {
	careful   bool
	check     bool
	dryRun    bool
	fix       bool
	format    string
	jobs      int
	keepGoing bool
	noMtime   bool
	noBatch   bool
	noCapture bool
	onlyTool  []string
	skipTool  []string
	onlyFiles []string
	skipFiles []string
	staged    bool
	refs      []string
	then      string
	elseCmd   string
	watch     bool
	cacheSize int64
	fresh     bool
	noCache   bool
	noRefs    bool
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured tools against changed files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, g, f)
		},
	}

	fs := cmd.Flags()
	fs.BoolVar(&f.careful, "careful", false, "probe each tool's --version as part of its stamp")
	fs.BoolVar(&f.check, "check", false, "run formatters in check-only mode")
	fs.BoolVar(&f.dryRun, "dry-run", false, "plan without executing")
	fs.BoolVar(&f.fix, "fix", false, "run linters in auto-fix mode")
	fs.StringVar(&f.format, "format", "", "progress format: no|yes|newline")
	fs.IntVar(&f.jobs, "jobs", 0, "parallel worker count (0 = auto)")
	fs.BoolVar(&f.keepGoing, "keep-going", false, "keep running batches after one fails")
	fs.BoolVar(&f.noMtime, "no-mtime", false, "skip the mtime fast path, always hash content")
	fs.BoolVar(&f.noBatch, "no-batch", false, "run one invocation per file")
	fs.BoolVar(&f.noCapture, "no-capture", false, "stream child output directly instead of capturing")
	fs.StringSliceVar(&f.onlyTool, "only-tool", nil, "run only these tools")
	fs.StringSliceVar(&f.skipTool, "skip-tool", nil, "skip these tools")
	fs.StringSliceVar(&f.onlyFiles, "only-files", nil, "restrict to files matching these globs")
	fs.StringSliceVar(&f.skipFiles, "skip-files", nil, "exclude files matching these globs")
	fs.BoolVar(&f.staged, "staged", false, "restrict to git-staged files")
	fs.StringSliceVar(&f.refs, "refs", nil, "git refs for the content-unchanged escape hatch")
	fs.StringVar(&f.then, "then", "", "shell command to run on success")
	fs.StringVar(&f.elseCmd, "else", "", "shell command to run on failure")
	fs.BoolVar(&f.watch, "watch", false, "re-run on filesystem changes")
	fs.Int64Var(&f.cacheSize, "cache-size", 0, "cache byte budget override")
	fs.BoolVar(&f.fresh, "fresh", false, "discard the existing cache before running")
	fs.BoolVar(&f.noCache, "no-cache", false, "disable the cache entirely")
	fs.BoolVar(&f.noRefs, "no-refs", false, "disable the git-ref escape hatch")

	return cmd
}

func runRun(cmd *cobra.Command, g *globalFlags, f *runFlags) error {
	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining working directory: %w", err)
	}

	mode := tool.Normal
	switch {
	case f.fix:
		mode = tool.Fix
	case f.check:
		mode = tool.Check
	}

	color := tool.ColorAlways
	if g.noColor {
		color = tool.ColorNever
	}

	opts := runctl.Options{
		Root:              root,
		CacheDir:          g.cacheDir,
		ConfigPath:        g.configPath,
		Mode:              mode,
		Color:             color,
		Careful:           f.careful,
		DryRun:            f.dryRun,
		Jobs:              f.jobs,
		KeepGoing:         f.keepGoing,
		NoMtime:           f.noMtime,
		NoBatch:           f.noBatch,
		NoCapture:         f.noCapture,
		OnlyTool:          f.onlyTool,
		SkipTool:          f.skipTool,
		OnlyFiles:         f.onlyFiles,
		SkipFiles:         f.skipFiles,
		Staged:            f.staged,
		Refs:              f.refs,
		NoRefs:            f.noRefs,
		Then:              f.then,
		Else:              f.elseCmd,
		CacheSizeOverride: f.cacheSize,
		Fresh:             f.fresh,
		NoCache:           f.noCache,
		ProgressFormat:    progress.ParseFormat(f.format),
		Stdout:            os.Stdout,
		Stderr:            os.Stderr,
	}

	v := logging.VerbosityFromCount(g.verbose, g.trace)
	log := logging.New(v, !g.noColor)
	defer func() { _ = log.Sync() }()

	if f.watch {
		return runWatch(cmd.Context(), opts, log)
	}

	result, err := runctl.Run(cmd.Context(), opts, log)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "[%d/%d] %d files linted\n", result.BatchCount, result.BatchCount, result.FilesLinted)
	if !result.Success {
		log.Warn("one or more tools reported problems", zap.Int("batches", result.BatchCount))
		return errExitFailure
	}
	return nil
}

// errExitFailure signals "child process found problems" — the expected
// non-fatal failure mode (spec.md §7 kind 5) — distinct from a cobra
// usage error; main's top-level handler prints nothing further for it.
var errExitFailure = &exitError{}

type exitError struct{}

func (e *exitError) Error() string { return "" }
