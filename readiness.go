package initd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"
)

// readinessRecheck is the fallback cadence for re-statting the awaited
// path; inotify events created before the watch was registered would
// otherwise be missed.
const readinessRecheck = 100 * time.Millisecond

// awaitFile blocks until path exists, the timeout elapses, or ctx is
// done. It reports whether the file was seen. The caller treats a false
// result as advisory: startup proceeds regardless, the wait only
// narrows the window in which a slow database server races the broker.
func awaitFile(ctx context.Context, path string, timeout time.Duration) bool {
	if fileExists(path) {
		return true
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return pollFile(ctx, path, timeout)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return pollFile(ctx, path, timeout)
	}

	sctx := stopper.WithContext(ctx)
	sctx.Defer(func() {
		_ = watcher.Close()
	})

	found := make(chan struct{}, 1)

	sctx.Go(func(sctx *stopper.Context) error {
		recheck := time.NewTicker(readinessRecheck)
		defer recheck.Stop()

		for {
			select {
			case <-sctx.Stopping():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if event.Name != path {
					continue
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				continue

			case <-recheck.C:
			}

			if fileExists(path) {
				select {
				case found <- struct{}{}:
				default:
				}
				return nil
			}
		}
	})

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	seen := false
	select {
	case <-found:
		seen = true
	case <-deadline.C:
		seen = fileExists(path)
	case <-ctx.Done():
	}

	sctx.Stop(readinessRecheck)
	_ = sctx.Wait()
	return seen
}

// pollFile is the degraded wait used when the directory cannot be
// watched (missing, or inotify exhausted)
func pollFile(ctx context.Context, path string, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(readinessRecheck)
	defer tick.Stop()

	for {
		if fileExists(path) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return fileExists(path)
		case <-tick.C:
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
