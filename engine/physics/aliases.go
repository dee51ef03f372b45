package physics

import "github.com/nmxmxh/dof-engine/engine/store"

// FloatColumn is a type-erased view over a per-element row whose
// underlying type is some named float64 alias — the row's actual Go
// type is whatever the caller registered (e.g. a game-defined
// `type PosX float64`), not something physics needs to know by name.
type FloatColumn struct {
	length func() int
	get    func(i int) float64
	set    func(i int, v float64)
}

func (c FloatColumn) Len() int            { return c.length() }
func (c FloatColumn) At(i int) float64    { return c.get(i) }
func (c FloatColumn) Set(i int, v float64) { c.set(i, v) }

// BindFloat produces the accessor an Aliases field needs for a
// specific per-element row type T, so long as T's underlying type is
// float64. This is the "reflect pass" the spec's external-interfaces
// section describes: the caller's own row type is bound to an
// abstract physics field once, at startup.
func BindFloat[T ~float64]() func(*store.Table) (FloatColumn, bool) {
	return func(t *store.Table) (FloatColumn, bool) {
		col, ok := store.GetColumn[T](t)
		if !ok {
			return FloatColumn{}, false
		}
		return FloatColumn{
			length: col.Len,
			get:    func(i int) float64 { return float64(*col.At(i)) },
			set:    func(i int, v float64) { *col.At(i) = T(v) },
		}, true
	}
}

// BindTag produces the accessor for a zero-storage marker row, used
// for fields like is_immobile.
func BindTag[T any]() func(*store.Table) bool {
	return func(t *store.Table) bool { return store.HasTag[T](t) }
}

// ColumnFunc looks up a row's FloatColumn view on a table, or reports
// absence.
type ColumnFunc func(*store.Table) (FloatColumn, bool)

// TagFunc reports whether a table carries a given tag row.
type TagFunc func(*store.Table) bool

// Aliases maps the abstract fields the physics pipeline operates on
// to whatever concrete row types a particular game registered, so the
// pipeline itself never names a row type directly. Any field left nil
// is simply treated as absent on every table (e.g. a 2D-only game
// leaves PosZ/ThicknessMin/ThicknessMax nil and every pair skips the Z
// gate).
type Aliases struct {
	PosX, PosY, PosZ ColumnFunc

	// RotBasisX/RotBasisY together are the unit vector describing a
	// rotation, following geom.Rotate's basis-vector convention rather
	// than a bare angle. A table with neither bound is treated as
	// axis-aligned (identity rotation).
	RotBasisX, RotBasisY ColumnFunc

	LinVelX, LinVelY, LinVelZ ColumnFunc
	AngVel                    ColumnFunc

	IsImmobile TagFunc

	// Exactly one of Radius or (HalfExtentX,HalfExtentY) should be
	// bound per table: Radius marks the table as circles, half-extents
	// mark it as rects/AABBs.
	Radius                       ColumnFunc
	HalfExtentX, HalfExtentY     ColumnFunc

	ThicknessMin, ThicknessMax ColumnFunc

	InvMass    ColumnFunc
	InvInertia ColumnFunc

	Friction    ColumnFunc
	Restitution ColumnFunc
}

func (a Aliases) rotationAt(table *store.Table, i int) (x, y float64, ok bool) {
	if a.RotBasisX == nil || a.RotBasisY == nil {
		return 1, 0, false
	}
	cx, ok1 := a.RotBasisX(table)
	cy, ok2 := a.RotBasisY(table)
	if !ok1 || !ok2 {
		return 1, 0, false
	}
	return cx.At(i), cy.At(i), true
}
