package store

import "github.com/nmxmxh/dof-engine/engine/ids"

// Table is a set of parallel, dense columns: zero or more per-element
// rows, zero or more shared rows, zero or more tag rows, and
// optionally one stable-id row. Index is this table's position in its
// owning Database, the Unpacked.Table value stored by every stable
// reference pointing into it.
type Table struct {
	Index uint32

	rows         map[TypeID]row
	tags         map[TypeID]struct{}
	elementCount int

	stableID   TypeID
	hasStableID bool
}

func newTable(index uint32, specs []RowSpec) *Table {
	t := &Table{
		Index: index,
		rows:  make(map[TypeID]row, len(specs)),
		tags:  make(map[TypeID]struct{}),
	}
	for _, spec := range specs {
		switch spec.kind {
		case KindTag:
			t.tags[spec.id] = struct{}{}
		case KindStableID:
			t.rows[spec.id] = spec.make()
			t.stableID = spec.id
			t.hasStableID = true
		default:
			t.rows[spec.id] = spec.make()
		}
	}
	return t
}

// HasRow reports whether the table carries a row (of any kind,
// including tag) registered under id.
func (t *Table) HasRow(id TypeID) bool {
	if _, ok := t.rows[id]; ok {
		return true
	}
	_, ok := t.tags[id]
	return ok
}

// HasStableIDRow reports whether structural operations on this table
// maintain a stable-reference mapping.
func (t *Table) HasStableIDRow() bool { return t.hasStableID }

// Len returns the number of elements currently held (0 for a table
// with no per-element rows and nothing ever appended).
func (t *Table) Len() int { return t.elementCount }

func (t *Table) stableIDColumn() *stableIDRow {
	if !t.hasStableID {
		return nil
	}
	return t.rows[t.stableID].(*stableIDRow)
}

// appendN grows every per-element row (including the stable-id row)
// by n and returns the index of the first appended element.
func (t *Table) appendN(n int) int {
	begin := t.elementCount
	for _, r := range t.rows {
		if r.kind() == KindPerElement || r.kind() == KindStableID {
			r.appendN(n)
		}
	}
	t.elementCount += n
	return begin
}

// swapRemove moves the last element into slot i across every
// per-element row, shrinking the table by one. It returns nothing; the
// caller fixes up the mapping for whichever reference used to live at
// the last index (nothing to fix when i was already the last element).
func (t *Table) swapRemove(i int) {
	for _, r := range t.rows {
		if r.kind() == KindPerElement || r.kind() == KindStableID {
			r.swapRemove(i)
		}
	}
	t.elementCount--
}

// GetColumn returns the typed view of table's per-element row of type
// T, if present.
func GetColumn[T any](t *Table) (*Column[T], bool) {
	r, ok := t.rows[TypeIDOf[T]()]
	if !ok {
		return nil, false
	}
	per, ok := r.(*perElementRow[T])
	if !ok {
		return nil, false
	}
	return &Column[T]{row: per}, true
}

// GetShared returns a pointer to the table's shared singleton of type
// T, if present. The pointer is stable for the table's lifetime.
func GetShared[T any](t *Table) (*T, bool) {
	r, ok := t.rows[TypeIDOf[T]()]
	if !ok {
		return nil, false
	}
	sh, ok := r.(*sharedRow[T])
	if !ok {
		return nil, false
	}
	return &sh.value, true
}

// HasTag reports whether the table carries the zero-storage tag T.
func HasTag[T any](t *Table) bool {
	_, ok := t.tags[TypeIDOf[T]()]
	return ok
}

// StableIDAt returns the stable reference stored at row i, if the
// table carries a stable-id row.
func (t *Table) StableIDAt(i int) (ids.StableRef, bool) {
	col := t.stableIDColumn()
	if col == nil {
		return ids.StableRef{}, false
	}
	return col.data[i], true
}

func (t *Table) setStableIDAt(i int, ref ids.StableRef) {
	if col := t.stableIDColumn(); col != nil {
		col.data[i] = ref
	}
}
