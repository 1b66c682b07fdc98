package config

import (
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce coalesces the burst of fsnotify events most editors and
// deployment tools (atomic rename-into-place) produce for a single
// logical save.
const debounce = 200 * time.Millisecond

// Watcher reloads a config File from disk whenever it changes and invokes
// onChange with the newly parsed value. Parse errors are logged and the
// previous configuration is left in effect.
type Watcher struct {
	path string
	fsw  *fsnotify.Watcher
	log  *slog.Logger
	stop chan struct{}
}

// Watch starts watching path's containing directory (so editors that
// rename-into-place are handled) and calls onChange after every
// successfully parsed update. Call Close to stop.
func Watch(path string, log *slog.Logger, onChange func(*File)) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{path: path, fsw: fsw, log: log.With("component", "config_watch"), stop: make(chan struct{})}
	go w.run(onChange)
	return w, nil
}

func (w *Watcher) run(onChange func(*File)) {
	var timer *time.Timer
	reload := func() {
		f, err := Load(w.path)
		if err != nil {
			w.log.Error("config reload failed, keeping previous config", "error", err)
			return
		}
		w.log.Info("config reloaded", "path", w.path)
		onChange(f)
	}

	for {
		select {
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reload)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("config watch error", "error", err)
		}
	}
}

// Close stops the watch goroutine and releases the underlying fsnotify
// watcher.
func (w *Watcher) Close() error {
	close(w.stop)
	return w.fsw.Close()
}
