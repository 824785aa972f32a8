// Package notify watches the SQLite store file for external writes and
// triggers resolution cache reloads. This covers out-of-band edits to the
// catalog (a second process, a manual sqlite3 session) that the in-process
// admin surface cannot see. Optional; the server runs without it.
package notify

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StoreWatcher watches a SQLite database file and calls back after writes
// settle. Events are debounced: SQLite touches the main file and its WAL
// sidecar in bursts, and one reload per burst is enough.
type StoreWatcher struct {
	path     string
	debounce time.Duration
	callback func()
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewStoreWatcher creates a watcher for the given database file. The
// callback runs on the watcher goroutine after debounce of quiet time.
func NewStoreWatcher(path string, debounce time.Duration, callback func()) *StoreWatcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &StoreWatcher{
		path:     path,
		debounce: debounce,
		callback: callback,
		done:     make(chan struct{}),
	}
}

// Start begins watching. Call Stop to clean up.
func (sw *StoreWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory, not the file: SQLite checkpoints replace the
	// WAL sidecar, and watching the file directly loses the watch when
	// the inode changes.
	if err := w.Add(filepath.Dir(sw.path)); err != nil {
		_ = w.Close()
		return err
	}
	sw.watcher = w

	go sw.loop()
	log.Printf("notify: watching %s for store changes", sw.path)
	return nil
}

// Stop shuts down the watcher and waits for the loop to exit.
func (sw *StoreWatcher) Stop() {
	if sw.watcher != nil {
		_ = sw.watcher.Close()
	}
	<-sw.done
}

func (sw *StoreWatcher) loop() {
	defer close(sw.done)

	var timer *time.Timer
	var timerC <-chan time.Time

	base := filepath.Base(sw.path)
	relevant := func(name string) bool {
		n := filepath.Base(name)
		return n == base || n == base+"-wal" || n == base+"-shm"
	}

	for {
		select {
		case evt, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 || !relevant(evt.Name) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(sw.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					<-timerC
				}
				timer.Reset(sw.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			if sw.callback != nil {
				sw.callback()
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("notify: watcher error: %v", err)
		}
	}
}
