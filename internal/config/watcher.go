package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events editors emit for one save.
const reloadDelay = 200 * time.Millisecond

// ZoneWatcher reloads the zone file when it changes on disk.
type ZoneWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   *log.Logger
	onChange func(*ZoneFile)

	mu     sync.Mutex
	timer  *time.Timer
	closed chan struct{}
	done   chan struct{}
}

// WatchZones starts watching path. onChange receives every successfully
// parsed revision; invalid revisions are logged and skipped. The parent
// directory is watched so rename-on-save editors are seen.
func WatchZones(path string, logger *log.Logger, onChange func(*ZoneFile)) (*ZoneWatcher, error) {
	if logger == nil {
		logger = log.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &ZoneWatcher{
		path:     abs,
		watcher:  watcher,
		logger:   logger,
		onChange: onChange,
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *ZoneWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.closed:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("CONFIG: watcher error: %v", err)
		}
	}
}

func (w *ZoneWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDelay, w.reload)
}

func (w *ZoneWatcher) reload() {
	select {
	case <-w.closed:
		return
	default:
	}
	file, err := LoadZones(w.path)
	if err != nil {
		w.logger.Printf("CONFIG: zone file reload failed, keeping previous: %v", err)
		return
	}
	w.logger.Printf("CONFIG: zone file reloaded (%d zones)", len(file.Zones))
	w.onChange(file)
}

// Close stops the watcher.
func (w *ZoneWatcher) Close() error {
	w.mu.Lock()
	select {
	case <-w.closed:
		w.mu.Unlock()
		return nil
	default:
	}
	close(w.closed)
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	<-w.done
	return err
}
