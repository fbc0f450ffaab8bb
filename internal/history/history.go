// Package history records every table change of a bucket storage root as a
// git commit, using go-git (pure Go, no git binary dependency).
package history

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Commit is one recorded change.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
}

// Recorder commits table files of a storage root into a git repository
// living in that same directory.
//
// It implements bucket.Observer. Commit failures are logged and never fail
// the table operation that triggered them.
type Recorder struct {
	dir   string
	name  string
	email string
	log   *slog.Logger

	mu   sync.Mutex
	repo *gogit.Repository
}

// ErrNotEnabled is returned by OpenExisting when dir holds no repository.
var ErrNotEnabled = errors.New("history not enabled")

// Open opens the git repository in dir, initializing it if needed.
func Open(dir, name, email string, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = name
		cfg.User.Email = email
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	return &Recorder{dir: dir, name: name, email: email, log: logger, repo: repo}, nil
}

// OpenExisting opens the git repository in dir. Unlike Open it never creates
// anything, so it is safe for read-only commands.
func OpenExisting(dir, name, email string, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w in %s", ErrNotEnabled, dir)
		}
		return nil, fmt.Errorf("failed to open git repo: %w", err)
	}
	return &Recorder{dir: dir, name: name, email: email, log: logger, repo: repo}, nil
}

// OnWrite commits the new content of table.
func (r *Recorder) OnWrite(table string) {
	if err := r.Commit("write", table, false); err != nil {
		r.log.Warn("Failed to record table write", "table", table, "err", err)
	}
}

// OnDrop commits the removal of table.
func (r *Recorder) OnDrop(table string) {
	if err := r.Commit("drop", table, true); err != nil {
		r.log.Warn("Failed to record table drop", "table", table, "err", err)
	}
}

// Commit stages table, or its removal, and commits it with message
// "<op> <table>". Nothing is committed when the staged content is unchanged.
func (r *Recorder) Commit(op, table string, removed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if removed {
		if _, err := w.Remove(table); err != nil {
			if errors.Is(err, index.ErrEntryNotFound) {
				// Never committed, nothing to record.
				return nil
			}
			return fmt.Errorf("failed to stage removal: %w", err)
		}
	} else if _, err := w.Add(table); err != nil {
		return fmt.Errorf("failed to stage file: %w", err)
	}

	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	if st, ok := status[table]; !ok || st.Staging == gogit.Unmodified {
		return nil
	}

	sig := &object.Signature{Name: r.name, Email: r.email, When: time.Now()}
	if _, err := w.Commit(op+" "+table, &gogit.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// CommitCount returns the total number of commits in the repository.
func (r *Recorder) CommitCount() (int, error) {
	iter, err := r.repo.Log(&gogit.LogOptions{})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return 0, nil // no commits yet
		}
		return 0, fmt.Errorf("failed to read log: %w", err)
	}
	defer iter.Close()

	n := 0
	for {
		if _, err := iter.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("failed to read log: %w", err)
		}
		n++
	}
}

// History returns up to n commits touching table, newest first. n is capped
// at 1000; if n <= 0 it defaults to 1000.
func (r *Recorder) History(table string, n int) ([]*Commit, error) {
	if n <= 0 || n > 1000 {
		n = 1000
	}
	iter, err := r.repo.Log(&gogit.LogOptions{FileName: &table})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil // no commits yet
		}
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer iter.Close()

	var commits []*Commit
	for range n {
		c, err := iter.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read log: %w", err)
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		commits = append(commits, &Commit{
			Hash:    c.Hash.String(),
			Message: subject,
			Author:  c.Author.Name,
			When:    c.Author.When,
		})
	}
	return commits, nil
}

// ReadAt returns the content of table at commit hash. hash may be "HEAD".
func (r *Recorder) ReadAt(hash, table string) ([]byte, error) {
	h := plumbing.NewHash(hash)
	if hash == "HEAD" {
		ref, err := r.repo.Head()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
		}
		h = ref.Hash()
	}
	c, err := r.repo.CommitObject(h)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	f, err := c.File(table)
	if err != nil {
		return nil, fmt.Errorf("failed to get file at commit: %w", err)
	}
	reader, err := f.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = reader.Close() }()
	return io.ReadAll(reader)
}
