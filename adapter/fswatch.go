package adapter

import (
	"fmt"

	"github.com/fsnotify/fsnotify"

	"github.com/joeycumines/stackloop"
)

// FileEvent is a deep-copied snapshot of an fsnotify.Event, safe to retain
// past the lifetime of the watcher's own event-reader goroutine.
type FileEvent struct {
	Name string
	Op   fsnotify.Op
}

// WaitForChange awaits the next filesystem event under any of paths,
// opening and closing its own fsnotify.Watcher for the call.
func WaitForChange(co *stackloop.Coroutine, paths ...string) (FileEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		var zero FileEvent
		return zero, fmt.Errorf("adapter: creating fsnotify watcher: %w", err)
	}

	for _, p := range paths {
		if err := watcher.Add(p); err != nil {
			_ = watcher.Close()
			var zero FileEvent
			return zero, fmt.Errorf("adapter: watching %q: %w", p, err)
		}
	}

	result, err := Run[FileEvent](co, func(complete func(status int, value FileEvent, err error)) {
		go func() {
			defer watcher.Close()
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					complete(1, FileEvent{}, fmt.Errorf("adapter: watcher closed"))
					return
				}
				complete(0, FileEvent{Name: ev.Name, Op: ev.Op}, nil)
			case werr, ok := <-watcher.Errors:
				if !ok {
					werr = fmt.Errorf("adapter: watcher closed")
				}
				complete(1, FileEvent{}, werr)
			}
		}()
	})
	return result, err
}
