// Package main is the bucket command line tool.
//
// bucket manipulates the tables of a storage root: one file per table, each
// holding a document with a next_id counter and a mapping of records.
// Configuration is read from an optional YAML file (-config), BUCKET_*
// environment variables and CLI flags, in increasing order of precedence.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"runtime/debug"
	"strconv"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/maruel/bucket"
	"github.com/maruel/bucket/internal/config"
	"github.com/maruel/bucket/internal/history"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "bucket: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	configPath := flag.String("config", "", "YAML configuration file (optional)")
	root := flag.String("root", "", "Storage root directory (default ./db)")
	codec := flag.String("codec", "", "Document codec: json or cbor")
	hist := flag.Bool("history", false, "Record every table change as a git commit in the storage root")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Usage = usage
	flag.Parse()

	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	// Explicitly set flags win over the file and the environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "root":
			cfg.Root = *root
		case "codec":
			cfg.Codec = *codec
		case "history":
			cfg.History = *hist
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	level, _ := cfg.Level()
	ll.Set(level)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}

	c, err := bucket.CodecByName(cfg.Codec)
	if err != nil {
		return err
	}
	opts := &bucket.Options{Codec: c, Logger: logger}
	rec, err := openRecorder(cfg, args[0], logger)
	if err != nil {
		return err
	}
	if cfg.History {
		opts.Observers = append(opts.Observers, rec)
	}
	s := bucket.New(cfg.Root, opts)
	slog.DebugContext(ctx, "Opened store", "root", cfg.Root, "codec", c.Name(), "history", cfg.History)
	return run(ctx, os.Stdout, s, rec, args)
}

// openRecorder returns the history recorder needed by cmd, or nil. When
// history is disabled the repository is only opened, never created, and only
// for the commands reading it.
func openRecorder(cfg *config.Config, cmd string, logger *slog.Logger) (*history.Recorder, error) {
	if cfg.History {
		return history.Open(cfg.Root, cfg.GitName, cfg.GitEmail, logger)
	}
	if cmd == "history" || cmd == "read-at" {
		return history.OpenExisting(cfg.Root, cfg.GitName, cfg.GitEmail, logger)
	}
	return nil, nil
}

// run executes one command against s and writes its result to w.
func run(ctx context.Context, w io.Writer, s *bucket.Store, rec *history.Recorder, args []string) error {
	cmd, args := args[0], args[1:]
	want := func(n int, names string) error {
		if len(args) != n {
			return fmt.Errorf("usage: bucket %s %s", cmd, names)
		}
		return nil
	}
	table := func() *bucket.Table[any] {
		return bucket.NewTable[any](s, args[0])
	}

	switch cmd {
	case "create", "update":
		if err := want(2, "<table> <json>"); err != nil {
			return err
		}
		v, err := parseValue(args[1])
		if err != nil {
			return err
		}
		if cmd == "create" {
			return table().Create(v)
		}
		return table().Update(v)
	case "create-empty":
		if err := want(1, "<table>"); err != nil {
			return err
		}
		return table().CreateEmpty()
	case "read":
		if err := want(1, "<table>"); err != nil {
			return err
		}
		data, err := s.Read(args[0])
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "get":
		if err := want(1, "<table>"); err != nil {
			return err
		}
		doc, err := table().Get()
		if err != nil {
			return err
		}
		return printJSON(w, doc)
	case "find":
		if err := want(2, "<table> <id>"); err != nil {
			return err
		}
		v, err := table().Find(args[1])
		if err != nil {
			return err
		}
		return printJSON(w, v)
	case "find-by":
		if err := want(3, "<table> <field> <json>"); err != nil {
			return err
		}
		field := args[1]
		value, err := parseValue(args[2])
		if err != nil {
			return err
		}
		records, err := table().FindBy(func(v any) bool {
			m, ok := v.(map[string]any)
			return ok && reflect.DeepEqual(m[field], value)
		})
		if err != nil {
			return err
		}
		return printJSON(w, records)
	case "append":
		if len(args) < 2 {
			return fmt.Errorf("usage: bucket %s <table> <json>...", cmd)
		}
		values := make([]any, 0, len(args)-1)
		for _, a := range args[1:] {
			v, err := parseValue(a)
			if err != nil {
				return err
			}
			values = append(values, v)
		}
		if len(values) == 1 {
			id, err := table().Append(values[0])
			if err != nil {
				return err
			}
			return printJSON(w, id)
		}
		ids, err := table().BatchInsert(values)
		if err != nil {
			return err
		}
		return printJSON(w, ids)
	case "update-record":
		if err := want(3, "<table> <id> <json>"); err != nil {
			return err
		}
		v, err := parseValue(args[2])
		if err != nil {
			return err
		}
		return table().UpdateRecord(args[1], v)
	case "delete":
		if err := want(2, "<table> <id>"); err != nil {
			return err
		}
		return table().Delete(args[1])
	case "count":
		if err := want(1, "<table>"); err != nil {
			return err
		}
		n, err := table().Count()
		if err != nil {
			return err
		}
		return printJSON(w, n)
	case "clear":
		if err := want(1, "<table>"); err != nil {
			return err
		}
		return table().Clear()
	case "exists":
		if err := want(1, "<table>"); err != nil {
			return err
		}
		return printJSON(w, s.Exists(args[0]))
	case "list":
		if err := want(0, ""); err != nil {
			return err
		}
		names, err := s.List()
		if err != nil {
			return err
		}
		return printJSON(w, names)
	case "drop":
		if err := want(1, "<table>"); err != nil {
			return err
		}
		return s.Drop(args[0])
	case "store-json", "update-json":
		if err := want(2, "<table> <text>"); err != nil {
			return err
		}
		if cmd == "store-json" {
			return s.StoreJSON(args[0], []byte(args[1]))
		}
		return s.UpdateJSON(args[0], []byte(args[1]))
	case "schema":
		if err := want(0, ""); err != nil {
			return err
		}
		return printJSON(w, bucket.DocumentSchema[any]())
	case "watch":
		if err := want(0, ""); err != nil {
			return err
		}
		events, err := s.Watch(ctx)
		if err != nil {
			return err
		}
		for e := range events {
			slog.InfoContext(ctx, "Table changed", "table", e.Table, "op", string(e.Op))
		}
		return ctx.Err()
	case "history":
		if len(args) != 1 && len(args) != 2 {
			return fmt.Errorf("usage: bucket %s <table> [n]", cmd)
		}
		n := 0
		if len(args) == 2 {
			var err error
			if n, err = strconv.Atoi(args[1]); err != nil {
				return fmt.Errorf("invalid count %q: %w", args[1], err)
			}
		}
		if rec == nil {
			return history.ErrNotEnabled
		}
		commits, err := rec.History(args[0], n)
		if err != nil {
			return err
		}
		return printJSON(w, commits)
	case "read-at":
		if err := want(2, "<table> <hash>"); err != nil {
			return err
		}
		if rec == nil {
			return history.ErrNotEnabled
		}
		data, err := rec.ReadAt(args[1], args[0])
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parseValue(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("invalid JSON value %q: %w", s, err)
	}
	return v, nil
}

func printJSON(w io.Writer, v any) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `usage: bucket [flags] <command> [args]

Commands:
  create <table> <json>              create the table holding one record, if absent
  create-empty <table>               create an empty table, if absent
  update <table> <json>              replace the table with one record
  read <table>                       print the raw table file
  get <table>                        print the decoded table document
  find <table> <id>                  print one record
  find-by <table> <field> <json>     print records whose field equals the value
  append <table> <json>...           append one or more records
  update-record <table> <id> <json>  replace an existing record
  delete <table> <id>                delete a record
  count <table>                      print the number of records
  clear <table>                      delete all records and reset next_id
  exists <table>                     print whether the table exists
  list                               print all table names
  drop <table>                       delete the table
  store-json <table> <text>          create the table with verbatim content, if absent
  update-json <table> <text>         replace the table with verbatim content
  schema                             print the JSON Schema of a table document
  watch                              log table changes until interrupted
  history <table> [n]                print the commits touching a table
  read-at <table> <hash>             print the table at a commit

Flags:
`)
	flag.PrintDefaults()
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("bucket %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
