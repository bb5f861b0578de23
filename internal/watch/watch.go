// Package watch provides the low-latency notification path for signal and
// question documents. It observes the signals directory with fsnotify and
// forwards debounced per-document change notifications, so state changes
// reach clients without waiting for the next poll tick.
package watch

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentdeck/agentdeck/internal/debounce"
	"github.com/agentdeck/agentdeck/internal/logging"
	"github.com/agentdeck/agentdeck/internal/signal"
)

// Notify receives one debounced document change.
type Notify func(session string, kind signal.DocKind)

// Watcher watches the signals directory. It is started when the engine
// starts and fully torn down when the engine stops.
type Watcher struct {
	dir      string
	delay    time.Duration
	debounce *debounce.Registry
	notify   Notify
	log      *logging.Logger

	mu   sync.Mutex
	fsw  *fsnotify.Watcher
	done chan struct{}
}

// New creates a watcher over dir. delay collapses rapid successive writes
// from one logical update into a single notification.
func New(dir string, delay time.Duration, reg *debounce.Registry, notify Notify, log *logging.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		delay:    delay,
		debounce: reg,
		notify:   notify,
		log:      log,
	}
}

// Start begins watching. The signals directory is created if missing so
// the watch can be established before the first agent writes anything.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return err
	}

	done := make(chan struct{})
	w.mu.Lock()
	w.fsw = fsw
	w.done = done
	w.mu.Unlock()

	// The loop works only on its own references so teardown never races it.
	go w.loop(fsw, done)
	return nil
}

// Stop tears the watcher down. Safe to call when not started, and safe to
// call again after a later Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fsw, done := w.fsw, w.done
	w.fsw, w.done = nil, nil
	w.mu.Unlock()

	if fsw == nil {
		return
	}
	close(done)
	fsw.Close()
}

// loop processes fsnotify events until Stop.
func (w *Watcher) loop(fsw *fsnotify.Watcher, done chan struct{}) {
	for {
		select {
		case <-done:
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			session, kind, ok := signal.ParseDocName(filepath.Base(event.Name))
			if !ok {
				continue
			}

			// Debounce per document so a burst of writes to one session's
			// signal never delays another session's notification.
			w.debounce.Trigger(debounce.Kind("watch-"+string(kind)), session, w.delay, func() {
				w.notify(session, kind)
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("signal watcher error", "error", err)
		}
	}
}
