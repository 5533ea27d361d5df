// Package plan decides, for every (tool, file) pair, whether the tool
// actually needs to run against that file — the two-tier cache check
// with a git-ref escape hatch described in spec.md §4.4.
package plan

import (
	"context"

	"github.com/lun-run/lun/internal/cache"
	"github.com/lun-run/lun/internal/fstamp"
	"github.com/lun-run/lun/internal/gitref"
	"github.com/lun-run/lun/internal/job"
	"github.com/lun-run/lun/internal/tool"
)

// Options controls how a Plan call resolves need.
type Options struct {
	GitRoot      string
	GitRefs      []string // escape-hatch refs; empty disables the hatch
	MtimeEnabled bool     // false forces every file through the content tier
	Cores        int
	NoBatch      bool
}

// isMatch reports whether a file is in scope for a tool: matches its
// Files globs and is not excluded by its Ignore globs.
func isMatch(t *tool.Tool, f *fstamp.File) bool {
	if !t.Files.IsMatch(f.Path) {
		return false
	}
	if t.Ignore != nil && t.Ignore.IsMatch(f.Path) {
		return false
	}
	return true
}

// needFile applies the mtime→content→git-ref decision chain for one
// file against one tool, mutating cache state as it goes.
func needFile(ctx context.Context, c cache.Cache, opts Options, t *tool.Tool, f *fstamp.File) bool {
	mtimeKey := cache.Key{Stamp: f.MtimeStamp(), ToolStamp: t.Stamp}
	if opts.MtimeEnabled && !c.Needed(mtimeKey) {
		return false
	}

	if err := f.FillContent(); err != nil {
		// Can't read the file's bytes: nothing useful to run the tool
		// against. Treated as "not needed" rather than an error.
		return false
	}
	contentKey := cache.Key{Stamp: f.ContentStamp(), ToolStamp: t.Stamp}

	if !c.Needed(contentKey) {
		if opts.MtimeEnabled {
			c.Done(mtimeKey)
		}
		return false
	}

	changed, _ := gitref.FileChangedFromRefs(ctx, opts.GitRoot, f.Path, opts.GitRefs)
	if changed {
		return true
	}

	// Content is unseen by the cache but identical to every escape-hatch
	// ref: record it so the next run skips the git round-trip too.
	c.Done(contentKey)
	if opts.MtimeEnabled {
		c.Done(mtimeKey)
	}
	return false
}

// toolCommand resolves one tool's needed file set into a Command, or
// nil if nothing needs it this run.
func toolCommand(ctx context.Context, c cache.Cache, opts Options, t *tool.Tool, files []fstamp.File) *job.Command {
	var needed []fstamp.File
	for i := range files {
		f := &files[i]
		if isMatch(t, f) && needFile(ctx, c, opts, t, f) {
			needed = append(needed, *f)
		}
	}
	if len(needed) == 0 {
		return nil
	}
	return &job.Command{Tool: t, Files: needed}
}

// Plan resolves every tool against every file and hands the resulting
// per-tool Commands to the job builder for batching.
func Plan(ctx context.Context, c cache.Cache, tools []*tool.Tool, files []fstamp.File, opts Options) []job.Command {
	if len(files) == 0 {
		return nil
	}

	// Tools are processed in input (config) order; execution order itself
	// is independent of this, since the executor schedules batches across
	// a worker pool rather than sequentially.
	commands := make([]job.Command, 0, len(tools))
	for _, t := range tools {
		if cmd := toolCommand(ctx, c, opts, t, files); cmd != nil {
			commands = append(commands, *cmd)
		}
	}

	return job.Build(commands, opts.Cores, opts.NoBatch)
}
