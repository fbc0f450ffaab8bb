// Implements Store: the storage root, atomic file replacement and the untyped
// table operations.

package bucket

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/maruel/ksid"
	"github.com/spf13/afero"
)

// Observer is notified after a table file was successfully replaced or
// removed. Calls happen while the table lock is held.
type Observer interface {
	OnWrite(table string)
	OnDrop(table string)
}

// Options configures a Store. The zero value is valid.
type Options struct {
	// Fs is the filesystem holding the storage root. Defaults to the OS
	// filesystem.
	Fs afero.Fs
	// Codec encodes documents. Defaults to JSON.
	Codec Codec
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Observers are notified of every write and drop.
	Observers []Observer
}

// Store is a set of tables stored as files in one root directory.
type Store struct {
	root  string
	fs    afero.Fs
	codec Codec
	log   *slog.Logger

	mu        sync.Mutex
	observers []Observer

	// locks maps a table name to its *sync.Mutex. Entries are never removed,
	// not even by Drop, so a Store keeps one mutex per name it ever touched.
	locks sync.Map
}

// New returns a Store rooted at root. The directory is created on the first
// write.
func New(root string, opts *Options) *Store {
	s := &Store{root: root}
	if opts != nil {
		s.fs = opts.Fs
		s.codec = opts.Codec
		s.log = opts.Logger
		s.observers = slices.Clone(opts.Observers)
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.codec == nil {
		s.codec = JSON
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Root returns the storage root directory.
func (s *Store) Root() string {
	return s.root
}

// Codec returns the codec used for documents.
func (s *Store) Codec() Codec {
	return s.codec
}

// AddObserver registers o for all subsequent writes and drops.
func (s *Store) AddObserver(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Read returns the raw content of a table.
func (s *Store) Read(table string) ([]byte, error) {
	if err := validateName(table); err != nil {
		return nil, err
	}
	return s.readFile(table)
}

// Exists reports whether the table exists. Invalid names do not exist.
func (s *Store) Exists(table string) bool {
	if validateName(table) != nil {
		return false
	}
	ok, err := s.exists(table)
	return err == nil && ok
}

// List returns the sorted names of all tables. A missing storage root holds
// no tables.
func (s *Store) List() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, ioError("list", "", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Mode().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names, nil
}

// Drop deletes a table.
func (s *Store) Drop(table string) error {
	if err := validateName(table); err != nil {
		return err
	}
	unlock := s.lock(table)
	defer unlock()
	if err := s.fs.Remove(s.path(table)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return noSuchTable(table, err)
		}
		return ioError("remove", table, err)
	}
	s.log.Debug("Dropped table", "table", table)
	for _, o := range s.snapshotObservers() {
		o.OnDrop(table)
	}
	return nil
}

// StoreJSON creates the table with data as its verbatim content. It does
// nothing if the table already exists. data is not validated.
func (s *Store) StoreJSON(table string, data []byte) error {
	if err := validateName(table); err != nil {
		return err
	}
	unlock := s.lock(table)
	defer unlock()
	ok, err := s.exists(table)
	if err != nil || ok {
		return err
	}
	return s.writeFile(table, data)
}

// UpdateJSON replaces the content of the table with data verbatim, creating
// it if needed. data is not validated.
func (s *Store) UpdateJSON(table string, data []byte) error {
	if err := validateName(table); err != nil {
		return err
	}
	unlock := s.lock(table)
	defer unlock()
	return s.writeFile(table, data)
}

// validateName rejects names that would not resolve to a file directly
// inside the storage root. Names starting with "." are reserved for
// temporary files and the history repository.
func validateName(table string) error {
	if table == "" || strings.HasPrefix(table, ".") || strings.ContainsAny(table, `/\`) {
		return &Error{Kind: KindInvalidName, Op: "open", Table: table, Err: ErrInvalidName}
	}
	return nil
}

func (s *Store) path(table string) string {
	return filepath.Join(s.root, table)
}

// lock acquires the mutex of a table and returns its release function.
func (s *Store) lock(table string) func() {
	v, _ := s.locks.LoadOrStore(table, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Store) snapshotObservers() []Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.observers)
}

func (s *Store) exists(table string) (bool, error) {
	fi, err := s.fs.Stat(s.path(table))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, ioError("stat", table, err)
	}
	return fi.Mode().IsRegular(), nil
}

func (s *Store) readFile(table string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.path(table))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, noSuchTable(table, err)
		}
		return nil, ioError("read", table, err)
	}
	return data, nil
}

// writeFile replaces the table file with data. The content is written to a
// hidden temporary file first and renamed into place.
func (s *Store) writeFile(table string, data []byte) error {
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return ioError("create root for", table, err)
	}
	tmp := filepath.Join(s.root, fmt.Sprintf(".tmp-%s", ksid.NewID()))
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return ioError("write", table, err)
	}
	if _, err := f.Write(data); err != nil {
		return ioError("write", table, errors.Join(err, f.Close(), s.fs.Remove(tmp)))
	}
	if err := f.Sync(); err != nil {
		return ioError("sync", table, errors.Join(err, f.Close(), s.fs.Remove(tmp)))
	}
	if err := f.Close(); err != nil {
		return ioError("write", table, errors.Join(err, s.fs.Remove(tmp)))
	}
	if err := s.fs.Rename(tmp, s.path(table)); err != nil {
		return ioError("replace", table, errors.Join(err, s.fs.Remove(tmp)))
	}
	s.log.Debug("Wrote table", "table", table, "bytes", len(data))
	for _, o := range s.snapshotObservers() {
		o.OnWrite(table)
	}
	return nil
}
