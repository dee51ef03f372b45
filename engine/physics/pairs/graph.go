// Package pairs holds the persistent contact pairs the broadphase
// discovers and the island graph built over them. Unlike the
// broadphase, which only knows ephemeral per-frame bucket keys, this
// layer is keyed by stable references so a pair's warm-start impulses
// and manifold survive from one frame to the next even as bodies
// migrate between tables.
//
// Grounded directly on the reference engine's spatial-pairs storage
// task: gained/lost pairs from broadphase drive graph edge
// maintenance, and a node's mobility controls whether island
// membership propagates across it.
package pairs

import (
	"sync"

	"github.com/nmxmxh/dof-engine/engine/ids"
	"github.com/nmxmxh/dof-engine/engine/physics/geom"
)

// Mobility controls whether island flood-fill propagates through a
// node. An immobile (static or sleeping-anchor) body still appears in
// whatever island touches it, but never links two otherwise-unrelated
// islands together.
type Mobility uint8

const (
	Mobile Mobility = iota
	Immobile
)

// PropagationMask is the per-node flood-fill gate island-building
// reads: immobile nodes gate propagation off, mobile nodes let it
// through.
type PropagationMask uint8

const (
	PropagateNone PropagationMask = 0
	PropagateAll  PropagationMask = 1
)

func maskFor(m Mobility) PropagationMask {
	if m == Immobile {
		return PropagateNone
	}
	return PropagateAll
}

// Manifold is the narrowphase's contact output for one pair: up to two
// contact points (circle-circle and rect-circle produce one, rect-rect
// SAT clipping can produce two), plus the warm-started accumulated
// impulses the solver carries across frames.
type Manifold struct {
	Normal    geom.Vec2
	NumPoints int
	Points    [2]geom.Vec2
	Depths    [2]float64

	// RefAxis is the SAT reference axis a rect-rect manifold resolved
	// to, fed back into the next frame's RectRect call so a pair
	// sitting at near-equal overlap on two axes does not flip its
	// reference face every frame. Unused by circle/ray manifolds.
	RefAxis geom.Vec2

	// ZOverlap is the Z-axis (thickness) classification for this pair.
	ZOverlap geom.RangeOverlap
	// ZOnly reports whether XY was discarded in favor of Z: when true,
	// NumPoints/Points/Depths describe no contact and Z is the only
	// valid constraint data for this pair this frame.
	ZOnly bool
	// Z is the Z-only contact emitted when the bodies' XY shapes
	// overlap but their thickness ranges are separated beyond
	// tolerance. Only meaningful when ZOnly is true.
	Z ZManifold

	WarmNormalImpulse  [2]float64
	WarmTangentImpulse [2]float64
}

// ZManifold is the Z-axis (thickness) contact used in place of an XY
// manifold when two bodies' planar shapes overlap but their Z ranges
// do not: normal_sign points from B toward A along Z, and Separation
// is the gap left to close (the overlap tolerance already subtracted
// out) once the gate holds them apart.
type ZManifold struct {
	NormalSign float64
	Separation float64
}

// Pair is one persistent contact slot between two bodies.
type Pair struct {
	A, B     ids.StableRef
	Manifold Manifold
	// Touching reports whether the narrowphase most recently found an
	// actual contact (as opposed to merely a broadphase AABB overlap
	// that hasn't been resolved yet this frame).
	Touching bool
}

type pairKey struct {
	a, b ids.StableRef
}

func lessRef(x, y ids.StableRef) bool {
	if x.Key != y.Key {
		return x.Key < y.Key
	}
	return x.Generation < y.Generation
}

func normalizeRefs(a, b ids.StableRef) pairKey {
	if lessRef(a, b) {
		return pairKey{a: a, b: b}
	}
	return pairKey{a: b, b: a}
}

type node struct {
	mobility  Mobility
	neighbors map[ids.StableRef]struct{}
}

// RefPair names two bodies whose broadphase overlap changed.
type RefPair struct {
	A, B ids.StableRef
}

// AssertionLogger reports whether another repair log line may be
// emitted (a repair being an internally-inconsistent batch of changes,
// e.g. a pair reported both gained and lost in the same update, handled
// without panicking). It is typically backed by engine/metrics's rate
// limiter. Graph itself does not consult it; it reports repairs
// through its Log callback.
type AssertionLogger interface {
	AllowAssertionLog() bool
}

// Graph tracks live bodies and the contact pairs between them.
type Graph struct {
	mu    sync.Mutex
	nodes map[ids.StableRef]*node
	pairs map[pairKey]*Pair

	Log func(format string, args ...any)
}

// NewGraph returns an empty island graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[ids.StableRef]*node),
		pairs: make(map[pairKey]*Pair),
	}
}

// AddNode registers a body with the graph. Calling it twice for the
// same ref just updates its mobility.
func (g *Graph) AddNode(ref ids.StableRef, mobility Mobility) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[ref]; ok {
		n.mobility = mobility
		return
	}
	g.nodes[ref] = &node{mobility: mobility, neighbors: make(map[ids.StableRef]struct{})}
}

// RemoveNode drops a body and every pair incident to it.
func (g *Graph) RemoveNode(ref ids.StableRef) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[ref]
	if !ok {
		return
	}
	for other := range n.neighbors {
		delete(g.pairs, normalizeRefs(ref, other))
		if on, ok := g.nodes[other]; ok {
			delete(on.neighbors, ref)
		}
	}
	delete(g.nodes, ref)
}

// ChangeMobility updates a live node's mobility, re-gating whatever
// island propagation flows through it on the next Islands() call.
func (g *Graph) ChangeMobility(ref ids.StableRef, mobility Mobility) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[ref]; ok {
		n.mobility = mobility
	}
}

func (g *Graph) addEdge(a, b ids.StableRef) *Pair {
	key := normalizeRefs(a, b)
	if p, ok := g.pairs[key]; ok {
		return p
	}
	p := &Pair{A: key.a, B: key.b}
	g.pairs[key] = p
	if na, ok := g.nodes[a]; ok {
		na.neighbors[b] = struct{}{}
	}
	if nb, ok := g.nodes[b]; ok {
		nb.neighbors[a] = struct{}{}
	}
	return p
}

func (g *Graph) removeEdge(a, b ids.StableRef) {
	key := normalizeRefs(a, b)
	delete(g.pairs, key)
	if na, ok := g.nodes[a]; ok {
		delete(na.neighbors, b)
	}
	if nb, ok := g.nodes[b]; ok {
		delete(nb.neighbors, a)
	}
}

// UpdateFromBroadphase applies a frame's worth of gained/lost pairs.
// A pair appearing in both lists in the same batch is treated as a
// same-frame gain-then-loss: it is left absent from the graph and
// reported through log rather than causing an inconsistency, matching
// the reference engine's tolerant handling of that otherwise-degenerate
// case.
func (g *Graph) UpdateFromBroadphase(gained, lost []RefPair) {
	g.mu.Lock()
	defer g.mu.Unlock()

	lostSet := make(map[pairKey]struct{}, len(lost))
	for _, p := range lost {
		lostSet[normalizeRefs(p.A, p.B)] = struct{}{}
	}

	for _, p := range gained {
		key := normalizeRefs(p.A, p.B)
		if _, alsoLost := lostSet[key]; alsoLost {
			if g.Log != nil {
				g.Log("pairs: pair (%v,%v) gained and lost in the same batch, ignoring", p.A, p.B)
			}
			delete(lostSet, key)
			continue
		}
		g.addEdge(p.A, p.B)
	}

	for key := range lostSet {
		g.removeEdge(key.a, key.b)
	}
}

// Pairs returns every live pair, in no particular order.
func (g *Graph) Pairs() []*Pair {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Pair, 0, len(g.pairs))
	for _, p := range g.pairs {
		out = append(out, p)
	}
	return out
}

// Pair looks up the persistent contact slot between a and b, if any.
func (g *Graph) Pair(a, b ids.StableRef) (*Pair, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pairs[normalizeRefs(a, b)]
	return p, ok
}

// Islands partitions every mobile node into connected groups; a mobile
// node with no contacts forms an island of its own. An immobile node is included in every island that
// touches it but never links two islands together, since propagation
// does not cross a PropagateNone node: visited tracks only mobile
// nodes (each belongs to exactly one island), while an immobile node's
// membership is tracked per-island so the same static body can appear
// in as many islands as it touches, per §4.4's "a pair that touches
// [a static body] stays in its island without merging the islands of
// everything else touching the same static body."
func (g *Graph) Islands() [][]ids.StableRef {
	g.mu.Lock()
	defer g.mu.Unlock()

	visited := make(map[ids.StableRef]bool)
	var islands [][]ids.StableRef

	for ref, n := range g.nodes {
		if n.mobility != Mobile || visited[ref] {
			continue
		}
		inIsland := map[ids.StableRef]bool{ref: true}
		island := []ids.StableRef{ref}
		queue := []ids.StableRef{ref}
		visited[ref] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			curNode := g.nodes[cur]
			for neighbor := range curNode.neighbors {
				nn, ok := g.nodes[neighbor]
				if !ok {
					continue
				}
				if maskFor(nn.mobility) == PropagateNone {
					if !inIsland[neighbor] {
						inIsland[neighbor] = true
						island = append(island, neighbor)
					}
					continue
				}
				if !visited[neighbor] {
					visited[neighbor] = true
					inIsland[neighbor] = true
					island = append(island, neighbor)
					queue = append(queue, neighbor)
				}
			}
		}
		islands = append(islands, island)
	}
	return islands
}
