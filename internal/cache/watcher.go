// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates cache entries when their source files change on disk.
// It complements the content-hash check on Get: a watched file's entries
// disappear as soon as the file is written, rather than on the next lookup.
type Watcher struct {
	cache *Cache
	fw    *fsnotify.Watcher
	done  chan struct{}
}

func newWatcher(c *Cache) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}
	w := &Watcher{cache: c, fw: fw, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Rename|fsnotify.Remove|fsnotify.Create) != 0 {
				w.cache.Invalidate(ev.Name)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(w.cache.warn, "warning: cache watcher: %v\n", err)
		case <-w.done:
			return
		}
	}
}

// Add starts watching a source file. Failures are non-fatal; the content
// hash check still protects correctness.
func (w *Watcher) Add(path string) {
	if err := w.fw.Add(path); err != nil {
		fmt.Fprintf(w.cache.warn, "warning: watching %s: %v\n", path, err)
	}
}

// Close stops the watcher goroutine.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}
