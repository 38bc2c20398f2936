// internal/watch/watch.go
package watch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"snaptrack/internal/config"
	"snaptrack/internal/engine"
)

// Watcher monitors tracked files and reports drift as they change on disk.
type Watcher struct {
	ctx      *config.ProjectContext
	eng      *engine.Engine
	watcher  *fsnotify.Watcher
	tracked  map[string]bool
	onChange func(engine.PathStatus)
	log      *zap.Logger
}

// New sets up a watcher over the directories containing the given tracked
// paths. onChange is invoked with the fresh classification of each changed
// path.
func New(ctx *config.ProjectContext, eng *engine.Engine, tracked []string, logger *zap.Logger, onChange func(engine.PathStatus)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		ctx:      ctx,
		eng:      eng,
		watcher:  fsw,
		tracked:  make(map[string]bool, len(tracked)),
		onChange: onChange,
		log:      logger,
	}
	if w.log == nil {
		w.log = zap.NewNop()
	}

	dirs := make(map[string]bool)
	for _, rel := range tracked {
		w.tracked[rel] = true
		dirs[filepath.Dir(ctx.Abs(rel))] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			w.log.Warn("cannot watch directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	return w, nil
}

// Run blocks processing events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rel, err := w.ctx.Rel(event.Name)
			if err != nil || !w.tracked[rel] {
				continue
			}

			status, err := w.eng.StatusOf(rel)
			if err != nil {
				w.log.Warn("classifying changed path", zap.String("path", rel), zap.Error(err))
				continue
			}
			w.log.Info("tracked file changed",
				zap.String("path", rel),
				zap.String("state", status.State.String()))
			if w.onChange != nil {
				w.onChange(status)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}
