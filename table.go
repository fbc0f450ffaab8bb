// Implements the typed table operations.

package bucket

import (
	"github.com/invopop/jsonschema"
)

// Table gives typed access to one table of a Store.
//
// A Table holds no state besides its name; it is cheap to create and safe
// for concurrent use.
type Table[T any] struct {
	s    *Store
	name string
}

// NewTable returns the table named name in s. The table is not created.
func NewTable[T any](s *Store, name string) *Table[T] {
	return &Table[T]{s: s, name: name}
}

// Name returns the table name.
func (t *Table[T]) Name() string {
	return t.name
}

// Exists reports whether the table exists.
func (t *Table[T]) Exists() bool {
	return t.s.Exists(t.name)
}

// Create creates the table holding v under key "0". It does nothing if the
// table already exists.
func (t *Table[T]) Create(v T) error {
	return t.createIfAbsent(singleDocument(t.name, v))
}

// CreateEmpty creates the table with no records. It does nothing if the table
// already exists.
func (t *Table[T]) CreateEmpty() error {
	return t.createIfAbsent(newDocument[T](t.name))
}

// Update replaces the whole table with a single record v under key "0" and
// next_id "1". Previous records are lost.
func (t *Table[T]) Update(v T) error {
	if err := validateName(t.name); err != nil {
		return err
	}
	unlock := t.s.lock(t.name)
	defer unlock()
	return t.save(singleDocument(t.name, v))
}

// Get reads and decodes the whole table.
func (t *Table[T]) Get() (*Document[T], error) {
	if err := validateName(t.name); err != nil {
		return nil, err
	}
	return t.load()
}

// Records returns the records of the table.
func (t *Table[T]) Records() (map[string]T, error) {
	doc, err := t.Get()
	if err != nil {
		return nil, err
	}
	return doc.Records, nil
}

// Find returns the record stored under id.
func (t *Table[T]) Find(id string) (T, error) {
	var zero T
	doc, err := t.Get()
	if err != nil {
		return zero, err
	}
	v, ok := doc.Records[id]
	if !ok {
		return zero, noSuchKey(t.name, id)
	}
	return v, nil
}

// FindBy returns the records for which match returns true.
func (t *Table[T]) FindBy(match func(T) bool) (map[string]T, error) {
	doc, err := t.Get()
	if err != nil {
		return nil, err
	}
	out := make(map[string]T)
	for id, v := range doc.Records {
		if match(v) {
			out[id] = v
		}
	}
	return out, nil
}

// Count returns the number of records.
func (t *Table[T]) Count() (int, error) {
	doc, err := t.Get()
	if err != nil {
		return 0, err
	}
	return len(doc.Records), nil
}

// Append stores v under the next identifier and returns that identifier.
func (t *Table[T]) Append(v T) (string, error) {
	var id string
	err := t.modify(func(doc *Document[T]) (bool, error) {
		var err error
		if id, err = doc.insert(v); err != nil {
			return false, parseIntError(t.name, err)
		}
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// BatchInsert stores vs under consecutive identifiers with a single read and
// a single write, and returns the identifiers in order.
func (t *Table[T]) BatchInsert(vs []T) ([]string, error) {
	ids := make([]string, 0, len(vs))
	err := t.modify(func(doc *Document[T]) (bool, error) {
		for _, v := range vs {
			id, err := doc.insert(v)
			if err != nil {
				return false, parseIntError(t.name, err)
			}
			ids = append(ids, id)
		}
		return len(vs) != 0, nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// UpdateRecord replaces the existing record stored under id.
func (t *Table[T]) UpdateRecord(id string, v T) error {
	return t.modify(func(doc *Document[T]) (bool, error) {
		if _, ok := doc.Records[id]; !ok {
			return false, noSuchKey(t.name, id)
		}
		doc.Records[id] = v
		return true, nil
	})
}

// Delete removes the record stored under id. Deleting an absent key is not
// an error and writes nothing. next_id is left unchanged.
func (t *Table[T]) Delete(id string) error {
	return t.modify(func(doc *Document[T]) (bool, error) {
		if _, ok := doc.Records[id]; !ok {
			return false, nil
		}
		delete(doc.Records, id)
		return true, nil
	})
}

// Clear removes all records and resets next_id to "0".
func (t *Table[T]) Clear() error {
	return t.modify(func(doc *Document[T]) (bool, error) {
		doc.Records = map[string]T{}
		doc.NextID = "0"
		return true, nil
	})
}

// Schema returns the JSON Schema of the table document.
func (t *Table[T]) Schema() *jsonschema.Schema {
	return DocumentSchema[T]()
}

func (t *Table[T]) createIfAbsent(doc *Document[T]) error {
	if err := validateName(t.name); err != nil {
		return err
	}
	unlock := t.s.lock(t.name)
	defer unlock()
	ok, err := t.s.exists(t.name)
	if err != nil || ok {
		return err
	}
	return t.save(doc)
}

// modify runs fn on the decoded table while holding the table lock and
// persists the document if fn reports a change.
func (t *Table[T]) modify(fn func(doc *Document[T]) (bool, error)) error {
	if err := validateName(t.name); err != nil {
		return err
	}
	unlock := t.s.lock(t.name)
	defer unlock()
	doc, err := t.load()
	if err != nil {
		return err
	}
	changed, err := fn(doc)
	if err != nil || !changed {
		return err
	}
	return t.save(doc)
}

func (t *Table[T]) load() (*Document[T], error) {
	data, err := t.s.readFile(t.name)
	if err != nil {
		return nil, err
	}
	doc := &Document[T]{}
	if err := t.s.codec.Unmarshal(data, doc); err != nil {
		return nil, codecError("decode", t.name, err)
	}
	if err := doc.validate(); err != nil {
		return nil, codecError("decode", t.name, err)
	}
	return doc, nil
}

func (t *Table[T]) save(doc *Document[T]) error {
	data, err := t.s.codec.Marshal(doc)
	if err != nil {
		return codecError("encode", t.name, err)
	}
	return t.s.writeFile(t.name, data)
}
