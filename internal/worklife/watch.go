package worklife

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	watchDebounce   = 200 * time.Millisecond
	watchEchoWindow = 500 * time.Millisecond
)

// WatchStateFile reloads the store whenever another process rewrites the
// backing state file, the cross-tab storage-event analog for the file
// backend. Events caused by the store's own saves are filtered out through
// RecentlySaved. Blocks until ctx is done.
func WatchStateFile(ctx context.Context, store *Store, path string, logger Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: atomic renames replace the file inode, and a
	// watch on the file itself would go stale after the first rewrite.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	base := filepath.Base(path)

	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(watchDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if logger != nil {
				logger.Printf("state watch error: %v", err)
			}
		case <-fire:
			if store.RecentlySaved(watchEchoWindow) {
				continue
			}
			reloadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := store.Reload(reloadCtx); err != nil && logger != nil {
				logger.Printf("state reload failed: %v", err)
			}
			cancel()
		}
	}
}
