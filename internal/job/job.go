// Package job turns a planner's per-tool file sets into the concrete
// batches the executor actually invokes a tool process for, per
// spec.md §4.5.
package job

import (
	"sort"

	"github.com/lun-run/lun/internal/fstamp"
	"github.com/lun-run/lun/internal/tool"
)

// Command is one invocation's worth of work: a tool and the files whose
// cache keys are recorded when that invocation succeeds. The executor
// passes Files as arguments only for Individual-granularity tools; a
// Batch-granularity tool runs its configured command with no file
// arguments appended.
type Command struct {
	Tool  *tool.Tool
	Files []fstamp.File
}

// Build turns a list of per-tool Commands into the final batches the
// executor runs, splitting each by cores via greedy bin-packing unless
// noBatch forces one-file-per-invocation.
func Build(commands []Command, cores int, noBatch bool) []Command {
	if len(commands) == 0 {
		return nil
	}
	if cores < 1 {
		cores = 1
	}

	out := make([]Command, 0, len(commands))
	for _, cmd := range commands {
		if noBatch {
			out = append(out, unbatch(cmd)...)
		} else {
			out = append(out, batch(cmd, cores)...)
		}
	}
	return out
}

// unbatch splits a Command into one invocation per file, unless the
// tool demands Batch granularity or there's only one file to begin with.
func unbatch(cmd Command) []Command {
	if len(cmd.Files) == 0 {
		return nil
	}
	if len(cmd.Files) == 1 || cmd.Tool.Granularity == tool.Batch {
		return []Command{cmd}
	}
	out := make([]Command, 0, len(cmd.Files))
	for _, f := range cmd.Files {
		out = append(out, Command{Tool: cmd.Tool, Files: []fstamp.File{f}})
	}
	return out
}

// batch spreads a Command's files across at most cores invocations using
// greedy longest-processing-time bin-packing by file size, each
// resulting batch sorted by path for deterministic output.
func batch(cmd Command, cores int) []Command {
	if len(cmd.Files) == 0 {
		return nil
	}
	if len(cmd.Files) == 1 || cmd.Tool.Granularity == tool.Batch || cores == 1 {
		return []Command{cmd}
	}
	if len(cmd.Files) < cores {
		out := make([]Command, 0, len(cmd.Files))
		for _, f := range cmd.Files {
			out = append(out, Command{Tool: cmd.Tool, Files: []fstamp.File{f}})
		}
		return out
	}

	files := append([]fstamp.File(nil), cmd.Files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Size > files[j].Size })

	bins := make([][]fstamp.File, cores)
	totals := make([]int64, cores)
	for _, f := range files {
		smallest := 0
		for i := 1; i < cores; i++ {
			if totals[i] < totals[smallest] {
				smallest = i
			}
		}
		bins[smallest] = append(bins[smallest], f)
		totals[smallest] += f.Size
	}

	out := make([]Command, 0, cores)
	for _, bin := range bins {
		if len(bin) == 0 {
			continue
		}
		sort.Slice(bin, func(i, j int) bool { return bin[i].Path < bin[j].Path })
		out = append(out, Command{Tool: cmd.Tool, Files: bin})
	}
	return out
}
