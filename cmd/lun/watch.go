package main

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/lun-run/lun/internal/runctl"
)

// runWatch re-invokes the orchestrator every time fsnotify reports a
// write, create, remove or rename of an entry directly in opts.Root;
// subdirectories are not watched. The watch loop itself is ambient
// CLI plumbing, not part of the core pipeline: it just calls
// runctl.Run again on each event.
func runWatch(ctx context.Context, opts runctl.Options, log *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(opts.Root); err != nil {
		return err
	}

	if _, err := runctl.Run(ctx, opts, log); err != nil {
		log.Warn("initial run failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug("change detected", zap.String("path", event.Name))
			if _, err := runctl.Run(ctx, opts, log); err != nil {
				log.Warn("run failed", zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))
		}
	}
}
