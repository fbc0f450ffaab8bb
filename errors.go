// Defines the error taxonomy returned by Store and Table operations.

package bucket

import (
	"errors"
	"fmt"
)

// Kind classifies an [Error].
type Kind int

const (
	// KindIO is a filesystem failure other than a missing table.
	KindIO Kind = iota + 1
	// KindCodec is a table whose content cannot be encoded or decoded as a
	// document of the expected shape.
	KindCodec
	// KindParseInt is a stored next_id that is not a valid integer. The engine
	// is the only writer of that field, so this indicates corruption.
	KindParseInt
	// KindNoSuchTable is an operation on a table that does not exist.
	KindNoSuchTable
	// KindNoSuchKey is a lookup or update of a record key that does not exist.
	KindNoSuchKey
	// KindInvalidName is a table name that cannot map to a file directly
	// inside the storage root.
	KindInvalidName
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindCodec:
		return "codec"
	case KindParseInt:
		return "parse_int"
	case KindNoSuchTable:
		return "no_such_table"
	case KindNoSuchKey:
		return "no_such_key"
	case KindInvalidName:
		return "invalid_name"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinel errors matched by [Error.Is].
var (
	ErrNoSuchTable = errors.New("no such table")
	ErrNoSuchKey   = errors.New("no such key")
	ErrInvalidName = errors.New("invalid table name")
)

var errMalformedDocument = errors.New("malformed document")

// Error is the error returned by every Store and Table operation.
type Error struct {
	Kind  Kind
	Op    string // Failed step, e.g. "read", "write", "decode".
	Table string
	Key   string // Set for KindNoSuchKey.
	Err   error  // Underlying cause, may be nil.
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNoSuchTable:
		return fmt.Sprintf("bucket: table %q does not exist", e.Table)
	case KindNoSuchKey:
		return fmt.Sprintf("bucket: key %q does not exist in table %q", e.Key, e.Table)
	case KindInvalidName:
		return fmt.Sprintf("bucket: invalid table name %q", e.Table)
	case KindParseInt:
		return fmt.Sprintf("bucket: invalid next_id in table %q: %v", e.Table, e.Err)
	}
	if e.Table == "" {
		return fmt.Sprintf("bucket: failed to %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("bucket: failed to %s table %q: %v", e.Op, e.Table, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether e matches one of the sentinel errors.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNoSuchTable:
		return e.Kind == KindNoSuchTable
	case ErrNoSuchKey:
		return e.Kind == KindNoSuchKey
	case ErrInvalidName:
		return e.Kind == KindInvalidName
	}
	return false
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func ioError(op, table string, err error) error {
	return &Error{Kind: KindIO, Op: op, Table: table, Err: err}
}

func codecError(op, table string, err error) error {
	return &Error{Kind: KindCodec, Op: op, Table: table, Err: err}
}

func parseIntError(table string, err error) error {
	return &Error{Kind: KindParseInt, Op: "parse next_id of", Table: table, Err: err}
}

func noSuchTable(table string, err error) error {
	return &Error{Kind: KindNoSuchTable, Op: "open", Table: table, Err: err}
}

func noSuchKey(table, key string) error {
	return &Error{Kind: KindNoSuchKey, Op: "find", Table: table, Key: key}
}
