// Package broadphase implements the fixed-grid sweep-and-prune
// described in §4.3: bodies are bucketed into grid cells by their
// padded AABB, and pairs are found by comparing bounds within each
// cell rather than across the whole world.
package broadphase

import (
	"sort"

	"github.com/nmxmxh/dof-engine/engine/physics/geom"
)

// Key is an internal broadphase handle, distinct from a stable
// reference — the grid tracks whatever the caller hands it as a key
// and never resolves it itself.
type Key uint32

// Bounds is an axis-aligned bounding box in world space.
type Bounds struct {
	Min, Max geom.Vec2
}

func (b Bounds) pad(p float64) Bounds {
	return Bounds{
		Min: geom.Vec2{X: b.Min.X - p, Y: b.Min.Y - p},
		Max: geom.Vec2{X: b.Max.X + p, Y: b.Max.Y + p},
	}
}

func overlaps(a, b Bounds) bool {
	return a.Min.X <= b.Max.X && a.Max.X >= b.Min.X &&
		a.Min.Y <= b.Max.Y && a.Max.Y >= b.Min.Y
}

// PairKey is an unordered pair of broadphase keys, normalized so A<B.
type PairKey struct {
	A, B Key
}

func normalize(a, b Key) PairKey {
	if a < b {
		return PairKey{A: a, B: b}
	}
	return PairKey{A: b, B: a}
}

// PairChanges is the delta the grid reports each Update: pairs newly
// overlapping and pairs that stopped overlapping since the previous
// call.
type PairChanges struct {
	Gained []PairKey
	Lost   []PairKey
}

// Grid is a fixed-size world-space grid used purely to localize the
// overlap test; it has no notion of what a Key actually refers to.
type Grid struct {
	Cols, Rows       int
	CellSize         float64
	Padding          float64
	OriginX, OriginY float64

	current map[PairKey]struct{}
}

// NewGrid returns a grid of cols x rows cells of the given size,
// anchored at (originX, originY), expanding every body's AABB by
// padding before binning it — large enough that a body crossing a
// cell boundary within one frame is still picked up by the cell it is
// leaving, per §4.3's boundary-tolerance invariant.
func NewGrid(cols, rows int, cellSize, padding, originX, originY float64) *Grid {
	return &Grid{
		Cols: cols, Rows: rows,
		CellSize: cellSize, Padding: padding,
		OriginX: originX, OriginY: originY,
		current: make(map[PairKey]struct{}),
	}
}

func (g *Grid) clampCol(c int) int {
	if c < 0 {
		return 0
	}
	if c >= g.Cols {
		return g.Cols - 1
	}
	return c
}

func (g *Grid) clampRow(r int) int {
	if r < 0 {
		return 0
	}
	if r >= g.Rows {
		return g.Rows - 1
	}
	return r
}

func (g *Grid) colAt(x float64) int {
	return int((x - g.OriginX) / g.CellSize)
}

func (g *Grid) rowAt(y float64) int {
	return int((y - g.OriginY) / g.CellSize)
}

// cellsFor returns every flattened cell index a padded bounds overlaps,
// clamping out-of-grid bodies into the boundary cells rather than
// dropping them.
func (g *Grid) cellsFor(b Bounds) []int {
	c0 := g.clampCol(g.colAt(b.Min.X))
	c1 := g.clampCol(g.colAt(b.Max.X))
	r0 := g.clampRow(g.rowAt(b.Min.Y))
	r1 := g.clampRow(g.rowAt(b.Max.Y))

	var cells []int
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			cells = append(cells, r*g.Cols+c)
		}
	}
	return cells
}

// Update re-bins every tracked body and returns the pairs gained and
// lost since the previous call. bodies is the complete current set —
// the grid does not track incremental per-body movement itself, it
// simply diffs this frame's cell membership against last frame's.
func (g *Grid) Update(bodies map[Key]Bounds) PairChanges {
	type cellMember struct {
		key    Key
		bounds Bounds
	}
	cellMembers := make(map[int][]cellMember)
	padded := make(map[Key]Bounds, len(bodies))

	for key, b := range bodies {
		pb := b.pad(g.Padding)
		padded[key] = pb
		for _, cell := range g.cellsFor(pb) {
			cellMembers[cell] = append(cellMembers[cell], cellMember{key: key, bounds: pb})
		}
	}

	next := make(map[PairKey]struct{})
	for _, members := range cellMembers {
		// Sort by X min so near-duplicate frame-to-frame orderings
		// stay stable; the sweep itself is a simple O(n^2) scan over
		// one cell's (small) membership rather than maintaining the
		// two persistent per-axis sweep lists the grid's bodies would
		// need for large cell populations.
		sort.Slice(members, func(i, j int) bool {
			return members[i].bounds.Min.X < members[j].bounds.Min.X
		})
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				if members[j].bounds.Min.X > members[i].bounds.Max.X {
					break // sorted by min.X: nothing further can overlap on X
				}
				if overlaps(members[i].bounds, members[j].bounds) {
					next[normalize(members[i].key, members[j].key)] = struct{}{}
				}
			}
		}
	}

	var changes PairChanges
	for pk := range next {
		if _, existed := g.current[pk]; !existed {
			changes.Gained = append(changes.Gained, pk)
		}
	}
	for pk := range g.current {
		if _, still := next[pk]; !still {
			changes.Lost = append(changes.Lost, pk)
		}
	}
	g.current = next
	return changes
}

// CellIndex returns the row-major flattened index of cell (col,row).
func (g *Grid) CellIndex(col, row int) int { return row*g.Cols + col }
