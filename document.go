package bucket

import (
	"math"
	"strconv"
)

// Document is the persisted form of a table.
type Document[T any] struct {
	Table   string       `json:"table"`
	NextID  string       `json:"next_id"` // Decimal integer as text.
	Records map[string]T `json:"records"`
}

// newDocument returns the empty table named name.
func newDocument[T any](name string) *Document[T] {
	return &Document[T]{Table: name, NextID: "0", Records: map[string]T{}}
}

// singleDocument returns a table holding v under key "0".
func singleDocument[T any](name string, v T) *Document[T] {
	return &Document[T]{Table: name, NextID: "1", Records: map[string]T{"0": v}}
}

// validate reports whether a decoded document has the expected shape.
func (d *Document[T]) validate() error {
	if d.NextID == "" || d.Records == nil {
		return errMalformedDocument
	}
	return nil
}

// counter parses NextID. The returned error is a *strconv.NumError.
func (d *Document[T]) counter() (uint64, error) {
	n, err := strconv.ParseUint(d.NextID, 10, 64)
	if err != nil {
		return 0, err
	}
	if n == math.MaxUint64 {
		return 0, &strconv.NumError{Func: "ParseUint", Num: d.NextID, Err: strconv.ErrRange}
	}
	return n, nil
}

// insert stores v under the current counter and advances it.
func (d *Document[T]) insert(v T) (string, error) {
	n, err := d.counter()
	if err != nil {
		return "", err
	}
	id := strconv.FormatUint(n, 10)
	d.Records[id] = v
	d.NextID = strconv.FormatUint(n+1, 10)
	return id, nil
}
