// Reports table changes made by any process in the storage root.

package bucket

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

var errWatchUnsupported = errors.New("watch requires the OS filesystem")

// Op is the kind of change reported by Watch.
type Op string

// Ops reported by Watch.
const (
	OpWrite  Op = "write"
	OpRemove Op = "remove"
)

// Event is a change to a table file.
type Event struct {
	Table string
	Op    Op
}

// Watch reports changes to table files in the storage root until ctx is
// done, then closes the returned channel. The root is created if missing.
//
// Events come from the filesystem, so changes made by other processes are
// reported too. Only stores on the OS filesystem can be watched.
func (s *Store) Watch(ctx context.Context) (<-chan Event, error) {
	if _, ok := s.fs.(*afero.OsFs); !ok {
		return nil, errWatchUnsupported
	}
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, ioError("create root", "", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(s.root); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", s.root, err)
	}
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				e, ok := toEvent(event)
				if !ok {
					continue
				}
				select {
				case ch <- e:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.WarnContext(ctx, "Error watching storage root", "root", s.root, "err", err)
			}
		}
	}()
	return ch, nil
}

func toEvent(event fsnotify.Event) (Event, bool) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return Event{}, false
	}
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		return Event{Table: name, Op: OpWrite}, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return Event{Table: name, Op: OpRemove}, true
	}
	return Event{}, false
}
