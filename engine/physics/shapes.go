package physics

// ShapeKind is what a pair dispatch needs to know about one side of a
// contact before it can pick the right narrowphase routine.
type ShapeKind uint8

const (
	ShapeNone ShapeKind = iota
	ShapeCircle
	ShapeRect
	// ShapeAABB is a Rect whose rotation is always identity; the
	// narrowphase pipeline treats it identically to ShapeRect.
	ShapeAABB
)

// ShapeRegistry is the process-wide table-index → shape-classifier
// map the spec's narrowphase section describes. A table not present
// in the registry is treated as ShapeNone (no contacts generated
// against it).
type ShapeRegistry struct {
	kinds map[uint32]ShapeKind
}

// NewShapeRegistry returns an empty registry.
func NewShapeRegistry() *ShapeRegistry {
	return &ShapeRegistry{kinds: make(map[uint32]ShapeKind)}
}

// Register declares that every element of table tableIndex is shaped
// as kind.
func (r *ShapeRegistry) Register(tableIndex uint32, kind ShapeKind) {
	r.kinds[tableIndex] = kind
}

// KindOf reports the registered shape kind for a table, or ShapeNone
// if it was never registered.
func (r *ShapeRegistry) KindOf(tableIndex uint32) ShapeKind {
	return r.kinds[tableIndex]
}
