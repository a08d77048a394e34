package plans

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const watcherDebounce = 500 * time.Millisecond

// Watcher monitors the plan configuration file and invalidates the
// FileSource when administrators edit it, so the next resolution sees the
// new revision without a restart.
type Watcher struct {
	source   *FileSource
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	onChange func()
}

// NewWatcher creates a watcher for the given file source. onChange, if
// non-nil, runs after each invalidation (typically the aggregator trigger).
func NewWatcher(source *FileSource, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		source:   source,
		watcher:  fw,
		stopChan: make(chan struct{}),
		onChange: onChange,
	}, nil
}

// Start begins watching the configuration file's directory. Editors that
// replace the file via rename are covered by watching the directory
// instead of the file itself.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.source.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	go w.watch()
	log.Info().Str("path", w.source.path).Msg("Watching plan configuration for changes")
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	select {
	case <-w.stopChan:
		return
	default:
		close(w.stopChan)
	}
	w.watcher.Close()
}

func (w *Watcher) watch() {
	var debounce *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.source.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Editors emit bursts of writes; collapse them into one reload.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watcherDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			log.Info().Str("path", w.source.path).Msg("Plan configuration changed; invalidating")
			w.source.Invalidate()
			if w.onChange != nil {
				w.onChange()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Plan configuration watcher error")

		case <-w.stopChan:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}
