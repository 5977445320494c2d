package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Faultbox/vrmslim/internal/logger"
)

// watchDebounce absorbs the burst of events editors emit for one save.
const watchDebounce = 300 * time.Millisecond

func cmdWatch(args []string) {
	rc, rest := parseReduceFlags("watch", args)
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	if err := rc.watch(ctx, rest[0], rest[1]); err != nil {
		fatal(err)
	}
}

// watch reduces in once and again after every change until ctx is done.
// The parent directory is watched so that atomic renames are seen.
func (rc *reduceCommand) watch(ctx context.Context, in, out string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	in = filepath.Clean(in)
	if err := w.Add(filepath.Dir(in)); err != nil {
		return err
	}

	rc.rerun(ctx, in, out)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != in || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			rc.log.Warn("watch error", zap.Error(err))
		case <-fire:
			fire = nil
			rc.rerun(ctx, in, out)
		}
	}
}

func (rc *reduceCommand) rerun(ctx context.Context, in, out string) {
	report, err := rc.run(ctx, in, out)
	if err != nil {
		rc.log.Error("reduce failed", zap.String("path", in), zap.Error(err))
		return
	}
	printReport(report)
}
