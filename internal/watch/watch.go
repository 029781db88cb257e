// Package watch wakes the job poller early when the job-queue directory changes.
package watch

import (
	"context"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Notifier delivers coalesced change notifications for one directory.
// Notifications are hints only; the poller still lists the directory itself.
type Notifier struct {
	w *fsnotify.Watcher
	c chan struct{}

	errs chan error
}

// New starts watching dir until ctx ends or Close is called.
func New(ctx context.Context, dir string) (*Notifier, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	n := &Notifier{
		w:    w,
		c:    make(chan struct{}, 1),
		errs: make(chan error, 1),
	}
	go n.run(ctx)
	return n, nil
}

// C receives a value after one or more relevant changes.
func (n *Notifier) C() <-chan struct{} {
	return n.c
}

// Errors receives watcher failures. Only the latest unread failure is kept.
func (n *Notifier) Errors() <-chan error {
	return n.errs
}

// Close stops the watcher.
func (n *Notifier) Close() error {
	return n.w.Close()
}

func (n *Notifier) run(ctx context.Context) {
	defer n.w.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-n.w.Events:
			if !ok {
				return
			}
			if relevant(event) {
				n.notify()
			}
		case err, ok := <-n.w.Errors:
			if !ok {
				return
			}
			select {
			case n.errs <- err:
			default:
			}
		}
	}
}

func (n *Notifier) notify() {
	select {
	case n.c <- struct{}{}:
	default:
		// a notification is already pending
	}
}

// relevant filters out lock sidecars and hidden temporary files.
func relevant(e fsnotify.Event) bool {
	if !e.Has(fsnotify.Create) && !e.Has(fsnotify.Write) && !e.Has(fsnotify.Rename) {
		return false
	}
	name := e.Name
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return !strings.HasPrefix(name, ".") && !strings.HasSuffix(name, ".lock")
}
