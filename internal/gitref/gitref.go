// Package gitref shells out to a local git binary for the one thing lun
// needs from version control: "was this path different at ref?" — used
// as the planner's last-resort escape hatch before falling back to
// "needed". No git library is linked in; a single porcelain command is
// not worth the dependency (see DESIGN.md).
package gitref

import (
	"bytes"
	"context"
	"os"
	"os/exec"
)

// FileChangedFromRefs reports whether path differs from its content at
// every one of refs. The file is read once from disk; a ref the path
// is absent from is skipped (neither a match nor a difference). As
// soon as one ref's content matches the working tree, the file counts
// as unchanged — it stops there without checking the remaining refs.
func FileChangedFromRefs(ctx context.Context, root, path string, refs []string) (bool, error) {
	if len(refs) == 0 {
		return true, nil
	}
	full := path
	if root != "" {
		full = root + "/" + path
	}
	current, err := os.ReadFile(full)
	if err != nil {
		return true, nil // nothing on disk to compare: treat as changed
	}
	for _, ref := range refs {
		at, err := showAt(ctx, root, ref, path)
		if err != nil {
			continue // absent at this ref
		}
		if bytes.Equal(at, current) {
			return false, nil
		}
	}
	return true, nil
}

// showAt returns path's content as recorded at ref, via `git show
// ref:path`.
func showAt(ctx context.Context, root, ref, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", "show", ref+":"+path)
	if root != "" {
		cmd.Dir = root
	}
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StagedFiles lists paths currently staged in the index, relative to
// root. Supplements spec.md's ref-based skip check with a `--staged`
// run mode (SPEC_FULL.md §10): lint only what's about to be committed.
func StagedFiles(ctx context.Context, root string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", "--cached", "--diff-filter=ACMR")
	if root != "" {
		cmd.Dir = root
	}
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func splitLines(out []byte) []string {
	var lines []string
	start := 0
	for i, b := range out {
		if b == '\n' {
			if i > start {
				lines = append(lines, string(out[start:i]))
			}
			start = i + 1
		}
	}
	if start < len(out) {
		lines = append(lines, string(out[start:]))
	}
	return lines
}
