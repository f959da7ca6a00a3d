package tenant

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watchDebounce coalesces the bursts of events editors and atomic renames
// produce into a single reload.
const watchDebounce = 200 * time.Millisecond

// Watch starts a background goroutine that reloads the directory whenever the
// tenant configuration file changes on disk. The watch is placed on the
// containing directory rather than the file itself, so it survives the
// write-temp-then-rename pattern (including the directory's own Save). The
// goroutine stops when ctx is cancelled. A failed reload is logged and the
// previous tree stays in effect.
func (d *Directory) Watch(ctx context.Context) error {
	if d.filePath == "" {
		return fmt.Errorf("directory has no backing file to watch")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(d.filePath)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(d.filePath)

	go func() {
		defer w.Close()
		var timer *time.Timer
		var pending <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write | fsnotify.Create | fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(watchDebounce)
				} else {
					timer.Reset(watchDebounce)
				}
				pending = timer.C
			case <-pending:
				pending = nil
				if err := d.Reload(); err != nil {
					d.log.Warn("tenant file reload failed, keeping previous tree", zap.Error(err))
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				d.log.Warn("tenant file watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
