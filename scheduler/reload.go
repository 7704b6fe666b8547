package scheduler

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/clusterkeeper/ilm/infrastructure/logging"
)

// hashPollInterval is the belt-and-suspenders fallback poll interval from
// the settings file, used alongside fsnotify so reload also reacts on
// filesystems (e.g. network mounts) where inotify events are unreliable.
const hashPollInterval = 5 * time.Second

// reloadWatcher watches one settings file for both fsnotify write events on
// its containing directory and a periodic SHA-256 content-hash change,
// invoking onChange at most once per detected change.
type reloadWatcher struct {
	path     string
	logger   *logging.Logger
	onChange func()
	fsw      *fsnotify.Watcher
	lastHash [32]byte
	cancel   context.CancelFunc
}

func newReloadWatcher(path string, logger *logging.Logger, onChange func()) (*reloadWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	hash, _ := hashFile(path)
	return &reloadWatcher{path: path, logger: logger, onChange: onChange, fsw: fsw, lastHash: hash}, nil
}

func hashFile(path string) ([32]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// start begins watching in background goroutines. Call stop to end it.
func (w *reloadWatcher) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					w.maybeFire(ctx)
				}
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				if w.logger != nil {
					w.logger.Error(ctx, "scheduler: fsnotify watch error", err, map[string]interface{}{"path": w.path})
				}
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(hashPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.maybeFire(ctx)
			}
		}
	}()
}

// maybeFire re-hashes the settings file and invokes onChange only if the
// content actually changed, so a rename/atomic-write that leaves content
// identical never triggers a spurious reload.
func (w *reloadWatcher) maybeFire(ctx context.Context) {
	hash, err := hashFile(w.path)
	if err != nil {
		return
	}
	if hash == w.lastHash {
		return
	}
	w.lastHash = hash
	if w.logger != nil {
		w.logger.Info(ctx, "scheduler: settings changed, reloading", map[string]interface{}{"path": w.path})
	}
	w.onChange()
}

func (w *reloadWatcher) stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.fsw.Close()
}
