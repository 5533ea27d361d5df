// Package runctl wires the core pipeline — collect, plan, build jobs,
// execute, flush — into the single orchestrated `run` operation the CLI
// invokes, per spec.md §4.9 / SPEC_FULL.md §6.
package runctl

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lun-run/lun/internal/cache"
	"github.com/lun-run/lun/internal/config"
	"github.com/lun-run/lun/internal/executor"
	"github.com/lun-run/lun/internal/fstamp"
	"github.com/lun-run/lun/internal/gitref"
	"github.com/lun-run/lun/internal/job"
	"github.com/lun-run/lun/internal/plan"
	"github.com/lun-run/lun/internal/progress"
	"github.com/lun-run/lun/internal/tool"
	"github.com/lun-run/lun/internal/walkfs"
)

// Options gathers every CLI flag the core actually consumes (spec.md
// §6's "contractual parts" list).
type Options struct {
	Root       string
	CacheDir   string
	ConfigPath string

	Mode      tool.RunMode
	Color     tool.ColorPolicy
	Careful   bool
	DryRun    bool
	Jobs      int
	KeepGoing bool
	NoMtime   bool
	NoBatch   bool
	NoCapture bool

	OnlyTool   []string
	SkipTool   []string
	OnlyFiles  []string
	SkipFiles  []string
	Staged     bool
	Refs       []string
	NoRefs     bool

	Then string
	Else string

	CacheSizeOverride int64
	Fresh             bool
	NoCache           bool

	ProgressFormat progress.Format
	Stdout         *os.File
	Stderr         *os.File
}

// Result summarizes one run for the CLI's final terse line and exit
// code decision.
type Result struct {
	FilesLinted int
	BatchCount  int
	Success     bool
}

// Run executes the full pipeline once: load config, collect files,
// plan, build jobs, execute, flush the cache, and run the --then/--else
// hook. It never calls os.Exit; the caller decides the process exit
// code from Result.Success.
func Run(ctx context.Context, opts Options, log *zap.Logger) (Result, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return Result{}, err
	}

	tools, err := resolveTools(ctx, cfg, opts)
	if err != nil {
		return Result{}, err
	}
	if len(opts.OnlyTool) > 0 || len(opts.SkipTool) > 0 {
		tools = filterTools(tools, opts.OnlyTool, opts.SkipTool)
	}

	files, err := collectFiles(ctx, cfg, opts)
	if err != nil {
		return Result{}, err
	}
	log.Debug("collected files", zap.Int("count", len(files)))

	c, err := loadCache(opts)
	if err != nil {
		return Result{}, err
	}

	refs := opts.Refs
	if opts.NoRefs {
		refs = nil
	}

	planOpts := plan.Options{
		GitRoot:      opts.Root,
		GitRefs:      refs,
		MtimeEnabled: !opts.NoMtime,
		Cores:        effectiveCores(opts, cfg),
		NoBatch:      opts.NoBatch,
	}
	batches := plan.Plan(ctx, c, tools, files, planOpts)
	batches = walkfsRecheckBatches(batches)

	// Flush once right after planning so the mtime-promotion writes it made
	// (cheap-skip entries for files whose content matched what's already
	// cached) survive a crash or kill during execution, not just a clean
	// exit; the post-execution flush below covers what execution itself
	// records.
	if _, err := c.Flush(); err != nil {
		log.Warn("post-plan cache flush failed", zap.Error(err))
	}

	if opts.DryRun {
		return Result{FilesLinted: countFiles(batches), BatchCount: len(batches), Success: true}, nil
	}

	var reporter *progress.Reporter
	if opts.ProgressFormat != progress.None {
		reporter = progress.NewReporter(opts.Stderr, opts.ProgressFormat, len(batches))
	}

	execOpts := executor.Options{
		Cores:        planOpts.Cores,
		NoCapture:    opts.NoCapture,
		KeepGoing:    opts.KeepGoing,
		MtimeEnabled: !opts.NoMtime,
		Progress:     reporter,
		Stdout:       opts.Stdout,
		Stderr:       opts.Stderr,
	}

	ok, err := executor.Run(ctx, c, batches, execOpts)
	if err != nil {
		return Result{}, fmt.Errorf("executing: %w", err)
	}

	cacheFull, err := c.Flush()
	if err != nil {
		log.Warn("cache flush failed", zap.Error(err))
	} else if cacheFull {
		log.Debug("cache evicted to stay within budget")
	}

	result := Result{FilesLinted: countFiles(batches), BatchCount: len(batches), Success: ok}
	runHook(ctx, opts, ok)
	return result, nil
}

func resolveTools(ctx context.Context, cfg *config.Config, opts Options) ([]*tool.Tool, error) {
	toolOpts := tool.Options{
		Mode:    opts.Mode,
		Color:   opts.Color,
		Careful: opts.Careful,
		Root:    opts.Root,
	}
	tools := make([]*tool.Tool, 0, len(cfg.Tools))
	for _, tc := range cfg.Tools {
		t, err := tool.Compute(ctx, tc, toolOpts)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, nil
}

func filterTools(tools []*tool.Tool, only, skip []string) []*tool.Tool {
	onlySet := toSet(only)
	skipSet := toSet(skip)
	out := make([]*tool.Tool, 0, len(tools))
	for _, t := range tools {
		name := t.DisplayName()
		if len(onlySet) > 0 && !onlySet[name] {
			continue
		}
		if skipSet[name] {
			continue
		}
		out = append(out, t)
	}
	return out
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// collectFiles walks the tree, then narrows it per --staged / --only-files
// / --skip-files, the supplemented filesystem filters of SPEC_FULL.md §10.
func collectFiles(ctx context.Context, cfg *config.Config, opts Options) ([]fstamp.File, error) {
	walkOpts := walkfs.Options{
		Root:        opts.Root,
		CacheDir:    opts.CacheDir,
		IgnoreFiles: []string{".gitignore", ".lunignore"},
		ExtraIgnore: cfg.Ignore,
	}
	files, err := walkfs.Collect(walkOpts)
	if err != nil {
		return nil, err
	}

	if opts.Staged {
		staged, err := gitref.StagedFiles(ctx, opts.Root)
		if err != nil {
			return nil, fmt.Errorf("listing staged files: %w", err)
		}
		files = intersectPaths(files, staged, opts.Root)
	}

	if len(opts.OnlyFiles) > 0 {
		only, err := tool.NewGlobSet(opts.OnlyFiles)
		if err != nil {
			return nil, err
		}
		files = filterFiles(files, func(f fstamp.File) bool { return only.IsMatch(f.Path) })
	}
	if len(opts.SkipFiles) > 0 {
		skip, err := tool.NewGlobSet(opts.SkipFiles)
		if err != nil {
			return nil, err
		}
		files = filterFiles(files, func(f fstamp.File) bool { return !skip.IsMatch(f.Path) })
	}

	return files, nil
}

func intersectPaths(files []fstamp.File, paths []string, root string) []fstamp.File {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[filepath.Join(root, p)] = true
	}
	return filterFiles(files, func(f fstamp.File) bool { return set[f.Path] })
}

func filterFiles(files []fstamp.File, keep func(fstamp.File) bool) []fstamp.File {
	out := make([]fstamp.File, 0, len(files))
	for _, f := range files {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

func loadCache(opts Options) (cache.Cache, error) {
	if opts.NoCache {
		return cache.Nop{}, nil
	}
	path := filepath.Join(opts.CacheDir, "lun.cache")
	if opts.Fresh {
		_ = os.Remove(path)
	}
	maxBytes := opts.CacheSizeOverride
	return cache.Load(path, maxBytes)
}

func effectiveCores(opts Options, cfg *config.Config) int {
	if opts.Jobs > 0 {
		return opts.Jobs
	}
	if cfg.Cores > 0 {
		return cfg.Cores
	}
	return 0 // executor/job fall back to runtime.NumCPU
}

// walkfsRecheckBatches re-verifies every file in every batch still
// exists immediately before execution, dropping ones that vanished.
func walkfsRecheckBatches(batches []job.Command) []job.Command {
	out := make([]job.Command, 0, len(batches))
	for _, b := range batches {
		b.Files = walkfs.Recheck(b.Files)
		if len(b.Files) > 0 {
			out = append(out, b)
		}
	}
	return out
}

func countFiles(batches []job.Command) int {
	n := 0
	for _, b := range batches {
		n += len(b.Files)
	}
	return n
}

// runHook fires --then on success or --else on failure, best-effort: its
// own failure is never fatal to the run it's reacting to.
func runHook(ctx context.Context, opts Options, success bool) {
	hook := opts.Then
	if !success {
		hook = opts.Else
	}
	if hook == "" {
		return
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", hook)
	cmd.Dir = opts.Root
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	_ = cmd.Run()
}
