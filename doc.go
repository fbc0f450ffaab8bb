// Package bucket provides an embedded, file-backed record store.
//
// # Overview
//
// A [Store] is bound to one storage root directory. Each table is a single
// file in that directory holding a [Document]: the table name, the next
// record identifier and a mapping of string keys to records. [Table] gives
// typed access to one table; [Store] offers the untyped operations (raw
// reads and writes, listing, dropping).
//
// Every operation reads the whole file, decodes the whole document, applies
// its change and writes the whole document back. Nothing is cached between
// calls.
//
// # Identifiers
//
// Records added with [Table.Append] and [Table.BatchInsert] get decimal
// string keys taken from the persisted next_id counter. Identifiers are never
// reused after a delete and existing records are never renumbered. Only
// [Table.Clear] resets the counter.
//
// # Concurrency
//
// A Store holds one mutex per table name for the whole read-modify-write of
// each operation, so goroutines sharing a Store do not lose updates. Writes go
// to a hidden temporary file which is renamed over the table file; a partially
// written document is never visible. Nothing protects a table against other
// processes or other Store instances.
//
// # File Format
//
// With the default [JSON] codec a table file contains exactly:
//
//	{"table":"<name>","next_id":"<n>","records":{"<id>":<record>,...}}
//
// [Store.StoreJSON] and [Store.UpdateJSON] write caller-supplied bytes
// verbatim without any document structure.
package bucket
