// Package executor runs a plan's batches in parallel, one OS process
// per batch, and reports which (file, tool) cache keys completed
// successfully — spec.md §4.6.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/lun-run/lun/internal/cache"
	"github.com/lun-run/lun/internal/job"
	"github.com/lun-run/lun/internal/progress"
	"github.com/lun-run/lun/internal/tool"
)

// Options controls how batches are run.
type Options struct {
	Cores        int
	NoCapture    bool // stream child stdout/stderr directly instead of buffering
	KeepGoing    bool // run every batch even after one fails
	MtimeEnabled bool
	Progress     *progress.Reporter
	Stdout       io.Writer
	Stderr       io.Writer
}

// Run executes every batch across a worker pool and applies the
// resulting cache key hashes to cw once the pool has fully joined. Each
// goroutine returns its own batch's completed hashes rather than
// touching cw directly; cw is only ever written to from this one
// single-threaded loop after Wait() returns, matching the "no shared
// Cache mutation across goroutines" rule.
func Run(ctx context.Context, cw cache.Writer, batches []job.Command, opts Options) (bool, error) {
	if len(batches) == 0 {
		return true, nil
	}

	cores := opts.Cores
	if cores < 1 {
		cores = runtime.NumCPU()
	}
	if cores > len(batches) {
		cores = len(batches)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(cores)

	var failed atomic.Bool
	var completed atomic.Int64
	results := make([][]cache.KeyHash, len(batches))

	for i, b := range batches {
		i, b := i, b
		eg.Go(func() error {
			if !opts.KeepGoing && failed.Load() {
				return nil
			}

			cmdStr := displayCommand(b)
			if opts.Progress != nil {
				opts.Progress.Report(int(completed.Load()), cmdStr)
			}

			success, err := runOne(egCtx, b, opts)
			if err != nil {
				return err
			}
			completed.Add(1)
			if !success {
				failed.Store(true)
			} else {
				results[i] = doneHashes(b, opts.MtimeEnabled)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return false, err
	}
	if opts.Progress != nil {
		opts.Progress.Done()
	}

	for _, r := range results {
		for _, h := range r {
			cw.DoneHash(h)
		}
	}
	return !failed.Load(), nil
}

func doneHashes(b job.Command, mtimeEnabled bool) []cache.KeyHash {
	hashes := make([]cache.KeyHash, 0, len(b.Files)*2)
	for _, f := range b.Files {
		contentKey := cache.Key{Stamp: f.ContentStamp(), ToolStamp: b.Tool.Stamp}
		hashes = append(hashes, contentKey.Hash())
		if mtimeEnabled {
			mtimeKey := cache.Key{Stamp: f.MtimeStamp(), ToolStamp: b.Tool.Stamp}
			hashes = append(hashes, mtimeKey.Hash())
		}
	}
	return hashes
}

// runOne builds and runs the OS process for one batch.
func runOne(ctx context.Context, b job.Command, opts Options) (bool, error) {
	parts := strings.Fields(b.Tool.Cmd)
	if len(parts) == 0 {
		return false, fmt.Errorf("tool %s: empty command", b.Tool.DisplayName())
	}

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	if b.Tool.Cd != "" {
		cmd.Dir = b.Tool.Cd
	}
	if b.Tool.Granularity == tool.Individual {
		for _, f := range b.Files {
			path := f.Path
			if b.Tool.Cd != "" {
				path = strings.TrimPrefix(path, b.Tool.Cd+"/")
			}
			cmd.Args = append(cmd.Args, path)
		}
	}

	// Never run against a file that vanished between planning and
	// execution (e.g. an editor backup already gone by the time its
	// batch starts): if the fully-built command has exactly one real
	// argument and that argument no longer exists on disk, treat it as a
	// no-op success, regardless of granularity.
	if args := cmd.Args[1:]; len(args) == 1 {
		if _, err := os.Lstat(args[0]); err != nil {
			return true, nil
		}
	}

	cmd.Env = append(os.Environ(), "FORCE_COLOR=1", "CLICOLOR_FORCE=1")

	cmdStr := displayCommand(b)
	if opts.NoCapture {
		cmd.Stdout = opts.Stdout
		cmd.Stderr = opts.Stderr
		if err := cmd.Run(); err != nil {
			if _, ok := err.(*exec.ExitError); ok {
				return false, nil
			}
			return false, fmt.Errorf("running %s: %w", cmdStr, err)
		}
		return true, nil
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return false, fmt.Errorf("running %s: %w", cmdStr, err)
		}
	}
	success := err == nil
	if !success {
		fmt.Fprintln(opts.Stdout)
		opts.Stdout.Write(stdout.Bytes())
		fmt.Fprintln(opts.Stdout)
		opts.Stderr.Write(stderr.Bytes())
	}
	return success, nil
}

func displayCommand(b job.Command) string {
	parts := []string{b.Tool.Cmd}
	if b.Tool.Granularity == tool.Individual {
		for _, f := range b.Files {
			parts = append(parts, f.Path)
		}
	}
	return strings.Join(parts, " ")
}
