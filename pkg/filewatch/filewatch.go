// Package filewatch reloads a file whenever it changes on disk.
//
// The parent directory is watched rather than the file itself so that
// atomic-save editors (write to a temp file, then rename over the original)
// keep triggering reloads after the original inode is replaced. Bursts of
// events are coalesced with a short debounce.
package filewatch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for a burst of events to settle.
const DefaultDebounce = 200 * time.Millisecond

// Watch monitors path and calls reload after every change. It runs until ctx
// is cancelled.
//
// A failing reload is logged and the caller keeps its previous state; Watch
// itself only returns an error if the watcher cannot be set up.
func Watch(ctx context.Context, path string, debounce time.Duration, reload func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	slog.Info("filewatch: watching for changes", "path", abs)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			pending = timer.C

		case <-pending:
			pending = nil
			if err := reload(); err != nil {
				slog.Error("filewatch: reload failed, keeping previous state",
					"path", abs, "err", err)
				continue
			}
			slog.Info("filewatch: reloaded", "path", abs)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("filewatch: watcher error", "err", err)
		}
	}
}
