package store

import (
	"fmt"

	"github.com/nmxmxh/dof-engine/engine/errs"
	"github.com/nmxmxh/dof-engine/engine/ids"
)

// Modifier is the structural-operation surface for one table: append,
// swap-remove and migrate, all of which keep the database's
// stable-reference mapping atomically consistent with the row-length
// change. Obtain one with Database.Modifier.
type Modifier struct {
	db    *Database
	table *Table
}

// Modifier returns the structural-operation handle for t.
func (db *Database) Modifier(t *Table) *Modifier {
	return &Modifier{db: db, table: t}
}

// Append grows every per-element row by n and, if the table carries a
// stable-id row, mints n fresh stable references (returned in append
// order). Tables without a stable-id row return a nil slice; the
// elements still exist, they simply cannot be addressed by reference.
func (m *Modifier) Append(n int) []ids.StableRef {
	if n <= 0 {
		return nil
	}
	begin := m.table.appendN(n)

	if !m.table.HasStableIDRow() {
		return nil
	}
	refs := make([]ids.StableRef, n)
	for i := 0; i < n; i++ {
		row := begin + i
		ref := m.db.mapping.Create(ids.Unpacked{Table: m.table.Index, Row: uint32(row)})
		m.table.setStableIDAt(row, ref)
		refs[i] = ref
	}
	return refs
}

// AppendWithRef attaches a previously reserved stable reference (from
// Database.CreateKey) to a freshly appended element, per §4.1's
// "create_key() ... attached later to an element by a resize_with_ids
// modifier." The table must carry a stable-id row.
func (m *Modifier) AppendWithRef(ref ids.StableRef) (int, error) {
	if !m.table.HasStableIDRow() {
		return 0, fmt.Errorf("%w: table %d has no stable-id row", errs.ErrInvalidMigration, m.table.Index)
	}
	index := m.table.appendN(1)
	m.table.setStableIDAt(index, ref)
	m.db.mapping.Update(ref, ids.Unpacked{Table: m.table.Index, Row: uint32(index)})
	return index, nil
}

// SwapRemove removes element i, moving the table's last element into
// its place. The mapping is updated for both the destroyed reference
// (invalidated) and the moved reference (repointed to i), per §4.1's
// "move last element into slot i ... update the mapping." Removing
// the last element is a no-op on the mapping beyond invalidating it.
func (m *Modifier) SwapRemove(i int) {
	hasIDs := m.table.HasStableIDRow()
	last := m.table.elementCount - 1

	var removed, moved ids.StableRef
	var movedValid bool
	if hasIDs {
		removed, _ = m.table.StableIDAt(i)
		if last != i {
			moved, movedValid = m.table.StableIDAt(last)
		}
	}

	m.table.swapRemove(i)

	if hasIDs {
		m.db.mapping.Destroy(removed)
		if movedValid {
			m.db.mapping.Update(moved, ids.Unpacked{Table: m.table.Index, Row: uint32(i)})
		}
	}
}

// MigrateOne moves element i of m's table into dst, preserving its
// stable reference and generation. Rows present in both tables carry
// their value across; rows only in dst are default-constructed. The
// source slot is then swap-removed. Both tables must carry a
// stable-id row, or the migration fails with errs.ErrInvalidMigration.
func (m *Modifier) MigrateOne(i int, dst *Table) (ids.StableRef, error) {
	src := m.table
	if !src.HasStableIDRow() || !dst.HasStableIDRow() {
		return ids.StableRef{}, fmt.Errorf("%w: migrating table %d -> %d requires both to carry a stable-id row",
			errs.ErrInvalidMigration, src.Index, dst.Index)
	}

	ref, ok := src.StableIDAt(i)
	if !ok {
		return ids.StableRef{}, fmt.Errorf("%w: source index %d out of range", errs.ErrInvalidMigration, i)
	}

	for id, dstRow := range dst.rows {
		if id == dst.stableID {
			// Grown below via setStableIDAt's slot; the value written
			// there is ref, not a migrated/zero value, so just reserve
			// the slot.
			dstRow.appendN(1)
			continue
		}
		if srcRow, ok := src.rows[id]; ok {
			dstRow.migrateFrom(srcRow, i)
		} else {
			dstRow.appendN(1)
		}
	}
	newIndex := dst.elementCount
	dst.elementCount++
	dst.setStableIDAt(newIndex, ref)

	// Remove the source slot without touching the mapping for ref
	// itself (it is being repointed at dst, not destroyed) — only the
	// element that gets swapped into slot i, if any, needs its
	// mapping entry repointed.
	last := src.elementCount - 1
	var moved ids.StableRef
	var movedValid bool
	if last != i {
		moved, movedValid = src.StableIDAt(last)
	}
	src.swapRemove(i)
	if movedValid {
		m.db.mapping.Update(moved, ids.Unpacked{Table: src.Index, Row: uint32(i)})
	}

	m.db.mapping.Update(ref, ids.Unpacked{Table: dst.Index, Row: uint32(newIndex)})

	return ref, nil
}
