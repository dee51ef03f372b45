package store

import (
	"github.com/google/uuid"

	"github.com/nmxmxh/dof-engine/engine/ids"
)

// Database owns a heterogeneous collection of tables and the central
// stable-reference mapping all of their stable-id rows share.
type Database struct {
	WorldID uuid.UUID

	tables  []*Table
	mapping *ids.Mapping
}

// NewDatabase returns an empty database with a fresh world id, used
// to tag logs and metrics when more than one simulation runs in the
// same process.
func NewDatabase() *Database {
	return &Database{
		WorldID: uuid.New(),
		mapping: ids.NewMapping(),
	}
}

// CreateTable adds a new table with the given rows and returns it.
func (db *Database) CreateTable(specs ...RowSpec) *Table {
	t := newTable(uint32(len(db.tables)), specs)
	db.tables = append(db.tables, t)
	return t
}

// Table returns the table at index, or nil if out of range.
func (db *Database) Table(index uint32) *Table {
	if int(index) >= len(db.tables) {
		return nil
	}
	return db.tables[index]
}

// Tables returns every table in the database, in creation order.
func (db *Database) Tables() []*Table {
	return db.tables
}

// QueryTables returns every table that carries all of the given row
// types (per-element, shared, tag or stable-id — membership is all
// that matters here). A type not carried by any table yields an empty
// result, which a caller-side query wrapper turns into discard.
func (db *Database) QueryTables(types ...TypeID) []*Table {
	var out []*Table
	for _, t := range db.tables {
		matches := true
		for _, id := range types {
			if !t.HasRow(id) {
				matches = false
				break
			}
		}
		if matches {
			out = append(out, t)
		}
	}
	return out
}

// Resolve returns the element's current table and row index if ref is
// still live, or (nil, 0, false) if it is stale.
func (db *Database) Resolve(ref ids.StableRef) (*Table, int, bool) {
	loc, ok := db.mapping.Resolve(ref)
	if !ok {
		return nil, 0, false
	}
	t := db.Table(loc.Table)
	if t == nil {
		return nil, 0, false
	}
	return t, int(loc.Row), true
}

// CreateKey reserves a fresh stable reference without attaching it to
// any table element yet; a later modifier call can use it as the id
// for a resize_with_ids-style append. Most callers just use Append,
// which mints its own refs.
func (db *Database) CreateKey() ids.StableRef {
	return db.mapping.Create(ids.Unpacked{Table: ids.NoTable})
}

// Merge unions src into dst by creating one equivalent table in dst
// per table in src, each with its own independently cloned row
// storage, and copying src's element count across. It is a genuine
// logical union, not an in-place pointer splice: every stable-id row
// carried over is rewritten with fresh references minted in dst's own
// mapping table (src is left untouched, so old src-side references
// keep resolving against src; they were never valid against dst), so
// every merged element immediately resolves via dst.Resolve(). The
// returned map lets a caller
// correlate an element's old src reference with its new dst one,
// since the copy happens table-by-table rather than element-by-element
// through the normal Modifier/Append path.
func Merge(dst, src *Database) map[ids.StableRef]ids.StableRef {
	merged := make(map[ids.StableRef]ids.StableRef)
	for _, st := range src.tables {
		specs := make([]RowSpec, 0, len(st.rows)+len(st.tags))
		for id, r := range st.rows {
			cloned := r.clone()
			kind := r.kind()
			if st.hasStableID && id == st.stableID {
				kind = KindStableID
			}
			specs = append(specs, RowSpec{id: id, kind: kind, make: func() row { return cloned }})
		}
		for id := range st.tags {
			specs = append(specs, RowSpec{id: id, kind: KindTag})
		}
		nt := dst.CreateTable(specs...)
		nt.elementCount = st.elementCount

		if !nt.hasStableID {
			continue
		}
		for i := 0; i < nt.elementCount; i++ {
			oldRef, _ := st.StableIDAt(i)
			newRef := dst.mapping.Create(ids.Unpacked{Table: nt.Index, Row: uint32(i)})
			nt.setStableIDAt(i, newRef)
			if oldRef.IsValid() {
				merged[oldRef] = newRef
			}
		}
	}
	return merged
}
