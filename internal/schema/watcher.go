package schema

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch starts an fsnotify watcher on the seed directory and reloads the
// seeded mappings once changes settle. A load failure keeps the previous
// mappings in place. onReload, when non-nil, fires after each successful
// reload with the new seeded mapping count. Watch blocks until ctx is
// cancelled.
func Watch(ctx context.Context, reg *Registry, dir string, logger *slog.Logger, onReload func(mappings int)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("schema watcher: started", slog.String("dir", dir))

	// reloadTimer debounces bursts of file events into one reload.
	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(200 * time.Millisecond)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("schema watcher: stopped")
			return nil

		case <-reloadCh:
			seeds, err := LoadDir(dir)
			if err != nil {
				logger.Warn("schema watcher: reload failed, keeping previous mappings",
					slog.String("error", err.Error()))
				continue
			}
			if err := reg.ReplaceSeeded(seeds); err != nil {
				logger.Warn("schema watcher: reload rejected",
					slog.String("error", err.Error()))
				continue
			}
			logger.Info("schema watcher: reloaded", slog.Int("mappings", len(seeds)))
			if onReload != nil {
				onReload(len(seeds))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isSeedFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("schema watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
