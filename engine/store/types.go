// Package store implements the columnar table database described by
// the engine: tables of typed rows, addressed by a process-wide stable
// reference rather than by slice index, with structural operations
// (append, swap-remove, migrate) that keep the stable-id mapping in
// lockstep with row-length changes.
//
// Row types are an open set: callers define their own Go types and
// register them with PerElement/Shared/Tag/StableIDRow. A table is a
// type-erased runtime map from row type id to boxed row storage;
// typed access downcasts after a table is matched by a query.
package store

import (
	"encoding/binary"
	"reflect"

	"lukechampine.com/blake3"

	"github.com/nmxmxh/dof-engine/engine/ids"
)

// TypeID is the stable, process-wide identifier for a row type,
// derived from the row's compile-time (reflect) name. Two builds of
// the same binary derive the same TypeID for the same Go type, which
// is all the engine needs: TypeID is never persisted across builds.
type TypeID uint64

// TypeIDOf derives the stable TypeID for row type T. It hashes the
// fully-qualified reflect type name with blake3 rather than Go's
// built-in (unstable, per-process) type identity, so the same row
// type always maps to the same id within and across runs.
func TypeIDOf[T any]() TypeID {
	var zero T
	name := reflect.TypeOf(zero)
	var s string
	if name == nil {
		s = "<nil>"
	} else {
		s = name.String()
	}
	sum := blake3.Sum256([]byte(s))
	return TypeID(binary.LittleEndian.Uint64(sum[:8]))
}

// Kind distinguishes the three storage shapes a row can take plus the
// special stable-id row every table may optionally carry.
type Kind uint8

const (
	KindPerElement Kind = iota
	KindShared
	KindTag
	KindStableID
)

// row is the type-erased interface every non-tag row satisfies. Tag
// rows carry no storage at all and are represented purely as table
// membership, never as a row value (see Table.tags).
type row interface {
	kind() Kind
	length() int
	appendN(n int)
	swapRemove(i int)
	// migrateFrom copies srcIndex of src into a newly appended slot of
	// this row if src holds the same row type; otherwise appends a
	// zero value. Used when migrating an element into a table that
	// also carries this row type.
	migrateFrom(src row, srcIndex int)
	// clone returns a fresh row of the same concrete type holding an
	// independent copy of this row's data (all elements for a
	// per-element row, the single value for a shared row). Used by
	// Merge to give a destination table its own storage rather than
	// aliasing the source's.
	clone() row
}

type perElementRow[T any] struct {
	data []T
}

func (r *perElementRow[T]) kind() Kind   { return KindPerElement }
func (r *perElementRow[T]) length() int  { return len(r.data) }
func (r *perElementRow[T]) appendN(n int) {
	var zero T
	for i := 0; i < n; i++ {
		r.data = append(r.data, zero)
	}
}
func (r *perElementRow[T]) swapRemove(i int) {
	last := len(r.data) - 1
	r.data[i] = r.data[last]
	r.data = r.data[:last]
}
func (r *perElementRow[T]) migrateFrom(src row, srcIndex int) {
	if s, ok := src.(*perElementRow[T]); ok {
		r.data = append(r.data, s.data[srcIndex])
		return
	}
	var zero T
	r.data = append(r.data, zero)
}
func (r *perElementRow[T]) clone() row {
	data := make([]T, len(r.data))
	copy(data, r.data)
	return &perElementRow[T]{data: data}
}

// Column is the typed view onto a per-element row returned by
// GetColumn. It is only valid until the next structural operation on
// its table.
type Column[T any] struct {
	row *perElementRow[T]
}

// Len returns the number of elements currently in the column.
func (c *Column[T]) Len() int { return len(c.row.data) }

// At returns a pointer to the i'th element for reading or writing.
func (c *Column[T]) At(i int) *T { return &c.row.data[i] }

// sharedRow holds one value for the whole table: a typed singleton
// that every element of the table implicitly shares. Structural
// operations never touch it.
type sharedRow[T any] struct {
	value T
}

func (r *sharedRow[T]) kind() Kind          { return KindShared }
func (r *sharedRow[T]) length() int         { return -1 }
func (r *sharedRow[T]) appendN(int)         {}
func (r *sharedRow[T]) swapRemove(int)      {}
func (r *sharedRow[T]) migrateFrom(row, int) {}
func (r *sharedRow[T]) clone() row          { return &sharedRow[T]{value: r.value} }

// stableIDRow is a per-element row of ids.StableRef, the distinguished
// row a table may carry to participate in the stable-reference
// mapping. It behaves exactly like any other per-element row; Table
// gives it special treatment only to keep ids.Mapping updated.
type stableIDRow = perElementRow[ids.StableRef]

// RowSpec describes one row to include when creating a table. Build
// one with PerElementRow, SharedRow, TagRow or StableIDRow.
type RowSpec struct {
	id      TypeID
	kind    Kind
	make    func() row
}

// PerElementRow declares a dense, per-element column of type T.
func PerElementRow[T any]() RowSpec {
	return RowSpec{
		id:   TypeIDOf[T](),
		kind: KindPerElement,
		make: func() row { return &perElementRow[T]{} },
	}
}

// SharedRow declares a single T shared by every element of the table.
func SharedRow[T any](initial T) RowSpec {
	return RowSpec{
		id:   TypeIDOf[T](),
		kind: KindShared,
		make: func() row { return &sharedRow[T]{value: initial} },
	}
}

// TagRow declares a zero-storage marker row used purely for query
// dispatch (e.g. "is immobile", "is a raycast shape").
func TagRow[T any]() RowSpec {
	return RowSpec{id: TypeIDOf[T](), kind: KindTag}
}

// StableIDRow declares the table's stable-id row. At most one table
// column may be registered with this kind per table.
func StableIDRow() RowSpec {
	return RowSpec{
		id:   TypeIDOf[ids.StableRef](),
		kind: KindStableID,
		make: func() row { return &stableIDRow{} },
	}
}
