package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maruel/bucket"
	"github.com/maruel/bucket/internal/config"
	"github.com/maruel/bucket/internal/history"
)

func TestRun(t *testing.T) {
	s := bucket.New(t.TempDir(), nil)
	exec := func(t *testing.T, args ...string) string {
		t.Helper()
		var out bytes.Buffer
		if err := run(t.Context(), &out, s, nil, args); err != nil {
			t.Fatalf("run(%q) failed: %v", args, err)
		}
		return out.String()
	}

	t.Run("create and read", func(t *testing.T) {
		exec(t, "create", "coords", `{"x":42,"y":9000}`)
		want := `{"table":"coords","next_id":"1","records":{"0":{"x":42,"y":9000}}}`
		if got := exec(t, "read", "coords"); got != want {
			t.Errorf("read = %s, want %s", got, want)
		}
		exec(t, "update", "coords", `{"x":32,"y":8765}`)
		want = `{"table":"coords","next_id":"1","records":{"0":{"x":32,"y":8765}}}`
		if got := exec(t, "read", "coords"); got != want {
			t.Errorf("read = %s, want %s", got, want)
		}
	})

	t.Run("records", func(t *testing.T) {
		exec(t, "create-empty", "people")
		if got := exec(t, "append", "people", `{"name":"ann","age":3}`); got != "\"0\"\n" {
			t.Errorf("append = %q", got)
		}
		var ids []string
		if err := json.Unmarshal([]byte(exec(t, "append", "people", `{"name":"bob","age":3}`, `{"name":"cid","age":5}`)), &ids); err != nil {
			t.Fatal(err)
		}
		if len(ids) != 2 || ids[0] != "1" || ids[1] != "2" {
			t.Errorf("append = %v, want [1 2]", ids)
		}
		if got := exec(t, "count", "people"); got != "3\n" {
			t.Errorf("count = %q", got)
		}
		var found map[string]map[string]any
		if err := json.Unmarshal([]byte(exec(t, "find-by", "people", "age", "3")), &found); err != nil {
			t.Fatal(err)
		}
		if len(found) != 2 || found["0"]["name"] != "ann" || found["1"]["name"] != "bob" {
			t.Errorf("find-by = %v", found)
		}
		exec(t, "update-record", "people", "2", `{"name":"cyd","age":6}`)
		if got := exec(t, "find", "people", "2"); !strings.Contains(got, `"cyd"`) {
			t.Errorf("find = %s", got)
		}
		exec(t, "delete", "people", "0")
		exec(t, "clear", "people")
		if got := exec(t, "count", "people"); got != "0\n" {
			t.Errorf("count after clear = %q", got)
		}
	})

	t.Run("tables", func(t *testing.T) {
		exec(t, "store-json", "raw", "anything")
		exec(t, "update-json", "raw", "else")
		if got := exec(t, "read", "raw"); got != "else" {
			t.Errorf("read = %q", got)
		}
		if got := exec(t, "exists", "raw"); got != "true\n" {
			t.Errorf("exists = %q", got)
		}
		exec(t, "drop", "raw")
		if got := exec(t, "exists", "raw"); got != "false\n" {
			t.Errorf("exists = %q", got)
		}
		var names []string
		if err := json.Unmarshal([]byte(exec(t, "list")), &names); err != nil {
			t.Fatal(err)
		}
		if len(names) != 2 || names[0] != "coords" || names[1] != "people" {
			t.Errorf("list = %v", names)
		}
		if got := exec(t, "schema"); !strings.Contains(got, `"next_id"`) {
			t.Errorf("schema = %s", got)
		}
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name string
			args []string
			kind bucket.Kind
		}{
			{"unknown command", []string{"frobnicate"}, 0},
			{"wrong arity", []string{"read"}, 0},
			{"bad json", []string{"create", "t", "{"}, 0},
			{"missing table", []string{"get", "missing"}, bucket.KindNoSuchTable},
			{"missing key", []string{"find", "coords", "9"}, bucket.KindNoSuchKey},
			{"invalid name", []string{"create-empty", "../x"}, bucket.KindInvalidName},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var out bytes.Buffer
				err := run(t.Context(), &out, s, nil, tt.args)
				if err == nil {
					t.Fatal("run() succeeded")
				}
				if got := bucket.KindOf(err); got != tt.kind {
					t.Errorf("KindOf(%v) = %v, want %v", err, got, tt.kind)
				}
			})
		}
	})
}

func TestRunHistory(t *testing.T) {
	dir := t.TempDir()
	rec, err := history.Open(dir, "test", "test@example.com", nil)
	if err != nil {
		t.Fatal(err)
	}
	s := bucket.New(dir, &bucket.Options{Observers: []bucket.Observer{rec}})
	var out bytes.Buffer
	for _, args := range [][]string{
		{"create", "coords", `{"x":1,"y":2}`},
		{"update", "coords", `{"x":3,"y":4}`},
	} {
		if err := run(t.Context(), &out, s, rec, args); err != nil {
			t.Fatal(err)
		}
	}
	out.Reset()
	if err := run(t.Context(), &out, s, rec, []string{"history", "coords"}); err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var commits []history.Commit
	if err := json.Unmarshal(out.Bytes(), &commits); err != nil {
		t.Fatal(err)
	}
	if len(commits) != 2 {
		t.Fatalf("history = %+v, want 2 commits", commits)
	}
	out.Reset()
	if err := run(t.Context(), &out, s, rec, []string{"read-at", "coords", commits[1].Hash}); err != nil {
		t.Fatalf("read-at failed: %v", err)
	}
	if want := `{"table":"coords","next_id":"1","records":{"0":{"x":1,"y":2}}}`; out.String() != want {
		t.Errorf("read-at = %s, want %s", out.String(), want)
	}
	if err := run(t.Context(), &out, s, rec, []string{"history", "coords", "x"}); err == nil || errors.Is(err, bucket.ErrNoSuchTable) {
		t.Errorf("history with a bad count error = %v", err)
	}
}

func TestOpenRecorder(t *testing.T) {
	t.Run("history disabled", func(t *testing.T) {
		cfg := config.Default()
		cfg.Root = t.TempDir()
		for _, cmd := range []string{"history", "read-at"} {
			t.Run(cmd, func(t *testing.T) {
				rec, err := openRecorder(&cfg, cmd, nil)
				if !errors.Is(err, history.ErrNotEnabled) {
					t.Fatalf("openRecorder() = %v, %v, want ErrNotEnabled", rec, err)
				}
				if _, err := os.Stat(filepath.Join(cfg.Root, ".git")); !errors.Is(err, fs.ErrNotExist) {
					t.Errorf("reading history created a repository: %v", err)
				}
			})
		}
		rec, err := openRecorder(&cfg, "list", nil)
		if rec != nil || err != nil {
			t.Errorf("openRecorder(list) = %v, %v, want nil, nil", rec, err)
		}
		var out bytes.Buffer
		err = run(t.Context(), &out, bucket.New(cfg.Root, nil), nil, []string{"history", "coords"})
		if !errors.Is(err, history.ErrNotEnabled) {
			t.Errorf("run(history) error = %v, want ErrNotEnabled", err)
		}
	})

	t.Run("history enabled", func(t *testing.T) {
		cfg := config.Default()
		cfg.Root = t.TempDir()
		cfg.History = true
		rec, err := openRecorder(&cfg, "list", nil)
		if err != nil || rec == nil {
			t.Fatalf("openRecorder() = %v, %v", rec, err)
		}
		cfg.History = false
		if rec, err := openRecorder(&cfg, "history", nil); err != nil || rec == nil {
			t.Errorf("openRecorder(history) on an existing repository = %v, %v", rec, err)
		}
	})
}
