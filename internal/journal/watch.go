package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the index whenever a cocoon file appears in or disappears from
// the hot directory, so readers see records saved by other processes. It
// blocks until ctx is cancelled.
func (j *Journal) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(j.hotDir); err != nil {
		return fmt.Errorf("watch %s: %w", j.hotDir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, hotExt) {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := j.LoadIndex(); err != nil {
				j.logger.Warn("reload index", slog.Any("error", err))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			j.logger.Warn("watcher error", slog.Any("error", err))
		}
	}
}
