// Package walkfs collects the candidate files under a root directory,
// honoring .gitignore-style ignore rules and lun's own housekeeping
// exclusions (its cache directory, .git, and stale .bck backups).
package walkfs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/lun-run/lun/internal/fstamp"
)

// backupExt is the extension of backup files, which are never treated as
// candidate input, see SPEC_FULL.md §12.
const backupExt = ".bck"

// alwaysSkipDirs are directories never descended into regardless of
// ignore rules.
var alwaysSkipDirs = map[string]bool{
	".git": true,
}

// Options configures a Collect call.
type Options struct {
	Root        string
	CacheDir    string   // skipped entirely, like .git
	IgnoreFiles []string // e.g. ".gitignore", ".lunignore", read relative to Root
	ExtraIgnore []string // inline patterns, e.g. from config
}

// Collect walks Root, returning every regular file that survives ignore
// filtering, sorted by path for deterministic downstream processing.
func Collect(opts Options) ([]fstamp.File, error) {
	matcher, err := buildMatcher(opts)
	if err != nil {
		return nil, err
	}

	var paths []string
	err = filepath.Walk(opts.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		rel, rerr := filepath.Rel(opts.Root, path)
		if rerr != nil {
			return nil
		}
		if rel == "." {
			return nil
		}

		base := info.Name()
		if info.IsDir() {
			if alwaysSkipDirs[base] {
				return filepath.SkipDir
			}
			if opts.CacheDir != "" && samePath(path, opts.CacheDir) {
				return filepath.SkipDir
			}
			if matcher != nil && matcher.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasSuffix(base, backupExt) {
			return nil
		}
		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", opts.Root, err)
	}

	sort.Strings(paths)

	files := make([]fstamp.File, 0, len(paths))
	for _, p := range paths {
		f, err := fstamp.Stat(p)
		if err != nil {
			// A file that vanished between the walk and the stat is not a
			// candidate; see Recheck for the second check before execution.
			continue
		}
		files = append(files, f)
	}
	return files, nil
}

// buildMatcher compiles every ignore file plus inline patterns into one
// gitignore-semantics matcher.
func buildMatcher(opts Options) (*ignore.GitIgnore, error) {
	var lines []string
	for _, name := range opts.IgnoreFiles {
		path := filepath.Join(opts.Root, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue // a missing ignore file is not an error
		}
		lines = append(lines, strings.Split(string(data), "\n")...)
	}
	lines = append(lines, opts.ExtraIgnore...)
	if len(lines) == 0 {
		return nil, nil
	}
	return ignore.CompileIgnoreLines(lines...), nil
}

func samePath(a, b string) bool {
	aAbs, errA := filepath.Abs(a)
	bAbs, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return aAbs == bAbs
}

// Recheck re-stats every path, dropping any that no longer exist. runctl
// calls this on every planned batch immediately before execution,
// narrowing the race between collection and execution.
func Recheck(files []fstamp.File) []fstamp.File {
	out := make([]fstamp.File, 0, len(files))
	for _, f := range files {
		if _, err := os.Lstat(f.Path); err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}
