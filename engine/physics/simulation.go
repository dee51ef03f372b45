// Package physics wires the broadphase, pair/island graph,
// narrowphase and PGS solver into the per-frame pipeline the rest of
// the engine drives: broadphase -> pair storage update -> narrowphase
// -> island build -> solver -> integration.
package physics

import (
	"github.com/benbjohnson/clock"

	"github.com/nmxmxh/dof-engine/engine/ids"
	"github.com/nmxmxh/dof-engine/engine/metrics"
	"github.com/nmxmxh/dof-engine/engine/physics/broadphase"
	"github.com/nmxmxh/dof-engine/engine/physics/geom"
	"github.com/nmxmxh/dof-engine/engine/physics/narrowphase"
	"github.com/nmxmxh/dof-engine/engine/physics/pairs"
	"github.com/nmxmxh/dof-engine/engine/physics/solver"
	"github.com/nmxmxh/dof-engine/engine/store"
)

// Config bundles the simulation's tunable constants as a typed
// constructor argument, the way SPEC_FULL.md's Configuration section
// calls for (no package-level config singleton or file-backed
// loader — a small struct passed into NewSimulation, matching the
// constants-and-struct-literal style used throughout the rest of this
// tree).
type Config struct {
	// Solver holds the PGS solver's Baumgarte positional-correction
	// constants (slop, biasTerm).
	Solver solver.Config
	// ZTolerance is the Z-axis (thickness) gap below which two bodies
	// separated only along Z are still treated as XY-overlapping; see
	// narrowphase.ApplyZGateTolerance.
	ZTolerance float64
}

// DefaultConfig is the tuning NewSimulation uses when the caller
// passes the zero value: the solver's usual slop/biasTerm and the
// narrowphase's usual Z-overlap tolerance.
var DefaultConfig = Config{
	Solver:     solver.DefaultConfig,
	ZTolerance: narrowphase.DefaultZTolerance,
}

// Simulation owns everything needed to step the physics pipeline
// against one Database: the broadphase grid, the persistent pair
// graph, the shape registry, and the row-level Aliases that let it
// operate without knowing any game's concrete row types.
type Simulation struct {
	DB      *store.Database
	Aliases Aliases
	Shapes  *ShapeRegistry
	Grid    *broadphase.Grid
	Graph   *pairs.Graph
	Metrics *metrics.Registry
	Config  Config

	Gravity    geom.Vec2
	Iterations int

	// Clock times each Step call for Metrics.StepDuration; real
	// wall-clock time in production, clock.NewMock() in tests that
	// want a deterministic reading.
	Clock clock.Clock

	refByKey map[broadphase.Key]ids.StableRef
}

// NewSimulation constructs a simulation over db, using aliases to
// read/write its row data, shapes to classify each table's collider,
// grid as the broadphase partition (already sized by the caller for
// their world bounds), and cfg for the solver/narrowphase tunables —
// pass physics.DefaultConfig for the reference engine's usual tuning.
func NewSimulation(db *store.Database, aliases Aliases, shapes *ShapeRegistry, grid *broadphase.Grid, cfg Config) *Simulation {
	if cfg == (Config{}) {
		cfg = DefaultConfig
	}
	return &Simulation{
		DB: db, Aliases: aliases, Shapes: shapes, Grid: grid, Config: cfg,
		Graph:      pairs.NewGraph(),
		Iterations: 8,
		Clock:      clock.New(),
		refByKey:   make(map[broadphase.Key]ids.StableRef),
	}
}

type bodyShape struct {
	kind   ShapeKind
	circle narrowphase.Circle
	rect   narrowphase.Rect
}

func (s *Simulation) shapeAt(table *store.Table, i int) (bodyShape, bool) {
	kind := s.Shapes.KindOf(table.Index)
	if kind == ShapeNone {
		return bodyShape{}, false
	}

	x, okX := s.Aliases.PosX(table)
	y, okY := s.Aliases.PosY(table)
	if !okX || !okY {
		return bodyShape{}, false
	}
	center := geom.Vec2{X: x.At(i), Y: y.At(i)}

	switch kind {
	case ShapeCircle:
		if s.Aliases.Radius == nil {
			return bodyShape{}, false
		}
		radius, ok := s.Aliases.Radius(table)
		if !ok {
			return bodyShape{}, false
		}
		return bodyShape{kind: kind, circle: narrowphase.Circle{Center: center, Radius: radius.At(i)}}, true
	case ShapeRect, ShapeAABB:
		if s.Aliases.HalfExtentX == nil || s.Aliases.HalfExtentY == nil {
			return bodyShape{}, false
		}
		hx, okHX := s.Aliases.HalfExtentX(table)
		hy, okHY := s.Aliases.HalfExtentY(table)
		if !okHX || !okHY {
			return bodyShape{}, false
		}
		basis := geom.Vec2{X: 1, Y: 0}
		if kind == ShapeRect {
			bx, by, ok := s.Aliases.rotationAt(table, i)
			if ok {
				basis = geom.Vec2{X: bx, Y: by}
			}
		}
		return bodyShape{kind: kind, rect: narrowphase.Rect{
			Center: center, HalfExtents: geom.Vec2{X: hx.At(i), Y: hy.At(i)}, BasisX: basis,
		}}, true
	}
	return bodyShape{}, false
}

func (s *Simulation) boundsOf(shape bodyShape) broadphase.Bounds {
	switch shape.kind {
	case ShapeCircle:
		r := shape.circle.Radius
		return broadphase.Bounds{
			Min: geom.Vec2{X: shape.circle.Center.X - r, Y: shape.circle.Center.Y - r},
			Max: geom.Vec2{X: shape.circle.Center.X + r, Y: shape.circle.Center.Y + r},
		}
	default:
		verts := shape.rect.Vertices()
		min, max := verts[0], verts[0]
		for _, v := range verts[1:] {
			if v.X < min.X {
				min.X = v.X
			}
			if v.Y < min.Y {
				min.Y = v.Y
			}
			if v.X > max.X {
				max.X = v.X
			}
			if v.Y > max.Y {
				max.Y = v.Y
			}
		}
		return broadphase.Bounds{Min: min, Max: max}
	}
}

func generateManifold(a, b bodyShape, prevAxis geom.Vec2) (pairs.Manifold, bool) {
	isRect := func(k ShapeKind) bool { return k == ShapeRect || k == ShapeAABB }
	switch {
	case a.kind == ShapeCircle && b.kind == ShapeCircle:
		return narrowphase.CircleCircle(a.circle, b.circle)
	case isRect(a.kind) && isRect(b.kind):
		return narrowphase.RectRect(a.rect, b.rect, prevAxis)
	case isRect(a.kind) && b.kind == ShapeCircle:
		return narrowphase.RectCircle(a.rect, b.circle)
	case a.kind == ShapeCircle && isRect(b.kind):
		m, ok := narrowphase.RectCircle(b.rect, a.circle)
		if !ok {
			return m, false
		}
		m.Normal = m.Normal.Neg()
		return m, true
	}
	return pairs.Manifold{}, false
}

func (s *Simulation) thicknessAt(table *store.Table, i int) (geom.Range1D, bool) {
	if s.Aliases.PosZ == nil || s.Aliases.ThicknessMin == nil || s.Aliases.ThicknessMax == nil {
		return geom.Range1D{}, false
	}
	z, okZ := s.Aliases.PosZ(table)
	lo, okLo := s.Aliases.ThicknessMin(table)
	hi, okHi := s.Aliases.ThicknessMax(table)
	if !okZ || !okLo || !okHi {
		return geom.Range1D{}, false
	}
	base := z.At(i)
	return geom.Range1D{Min: base + lo.At(i), Max: base + hi.At(i)}, true
}

// Step advances the physics pipeline by dt seconds: refresh the
// broadphase, update the pair graph from its delta, run narrowphase
// on every live pair, rebuild islands, and solve+integrate each island.
func (s *Simulation) Step(dt float64) {
	start := s.Clock.Now()
	defer func() {
		if s.Metrics != nil {
			s.Metrics.StepDuration.Observe(s.Clock.Now().Sub(start).Seconds())
		}
	}()

	bodies := make(map[broadphase.Key]broadphase.Bounds)
	shapes := make(map[ids.StableRef]bodyShape)

	for _, table := range s.DB.Tables() {
		if !table.HasStableIDRow() {
			continue
		}
		for i := 0; i < table.Len(); i++ {
			ref, ok := table.StableIDAt(i)
			if !ok {
				continue
			}
			shape, ok := s.shapeAt(table, i)
			if !ok {
				continue
			}
			key := broadphase.Key(ref.Key)
			s.refByKey[key] = ref
			bodies[key] = s.boundsOf(shape)
			shapes[ref] = shape

			immobile := s.Aliases.IsImmobile != nil && s.Aliases.IsImmobile(table)
			mobility := pairs.Mobile
			if immobile {
				mobility = pairs.Immobile
			}
			s.Graph.AddNode(ref, mobility)
		}
	}

	changes := s.Grid.Update(bodies)

	toRefPairs := func(keys []broadphase.PairKey) []pairs.RefPair {
		out := make([]pairs.RefPair, 0, len(keys))
		for _, pk := range keys {
			refA, okA := s.refByKey[pk.A]
			refB, okB := s.refByKey[pk.B]
			if !okA || !okB {
				continue
			}
			out = append(out, pairs.RefPair{A: refA, B: refB})
		}
		return out
	}

	gained := toRefPairs(changes.Gained)
	lost := toRefPairs(changes.Lost)
	s.Graph.UpdateFromBroadphase(gained, lost)

	if s.Metrics != nil {
		s.Metrics.PairsGained.Add(float64(len(gained)))
		s.Metrics.PairsLost.Add(float64(len(lost)))
	}

	for _, pair := range s.Graph.Pairs() {
		shapeA, okA := shapes[pair.A]
		shapeB, okB := shapes[pair.B]
		if !okA || !okB {
			pair.Touching = false
			continue
		}
		m, ok := generateManifold(shapeA, shapeB, pair.Manifold.RefAxis)
		if !ok {
			pair.Touching = false
			continue
		}
		tableA, rowA, okA2 := s.DB.Resolve(pair.A)
		tableB, rowB, okB2 := s.DB.Resolve(pair.B)
		if okA2 && okB2 {
			if zA, ok1 := s.thicknessAt(tableA, rowA); ok1 {
				if zB, ok2 := s.thicknessAt(tableB, rowB); ok2 {
					m, ok = narrowphase.ApplyZGateTolerance(m, zA, zB, s.Config.ZTolerance)
				}
			}
		}
		pair.Manifold = m
		pair.Touching = ok
	}

	if s.Metrics != nil {
		s.Metrics.IslandsSolved.Add(float64(len(s.Graph.Islands())))
	}

	for _, island := range s.Graph.Islands() {
		s.solveIsland(island, dt)
	}
}

func (s *Simulation) bodyMaterial(table *store.Table, i int) (invMass, invInertia, friction, restitution float64) {
	invMass, invInertia = 1, 1
	if s.Aliases.InvMass != nil {
		if col, ok := s.Aliases.InvMass(table); ok {
			invMass = col.At(i)
		}
	}
	if s.Aliases.InvInertia != nil {
		if col, ok := s.Aliases.InvInertia(table); ok {
			invInertia = col.At(i)
		}
	}
	if s.Aliases.Friction != nil {
		if col, ok := s.Aliases.Friction(table); ok {
			friction = col.At(i)
		}
	}
	if s.Aliases.Restitution != nil {
		if col, ok := s.Aliases.Restitution(table); ok {
			restitution = col.At(i)
		}
	}
	return
}

func (s *Simulation) solveIsland(island []ids.StableRef, dt float64) {
	solverBodies := make(map[ids.StableRef]*solver.Body, len(island))
	tables := make(map[ids.StableRef]*store.Table, len(island))
	rows := make(map[ids.StableRef]int, len(island))

	for _, ref := range island {
		table, row, ok := s.DB.Resolve(ref)
		if !ok {
			continue
		}
		tables[ref] = table
		rows[ref] = row

		immobile := s.Aliases.IsImmobile != nil && s.Aliases.IsImmobile(table)
		if immobile {
			solverBodies[ref] = solver.Ground
			continue
		}

		x, _ := s.Aliases.PosX(table)
		y, _ := s.Aliases.PosY(table)
		vx, okVX := s.Aliases.LinVelX(table)
		vy, okVY := s.Aliases.LinVelY(table)
		var velocity geom.Vec2
		if okVX && okVY {
			velocity = geom.Vec2{X: vx.At(row), Y: vy.At(row)}
		}
		var angVel float64
		if s.Aliases.AngVel != nil {
			if col, ok := s.Aliases.AngVel(table); ok {
				angVel = col.At(row)
			}
		}
		invMass, invInertia, _, _ := s.bodyMaterial(table, row)

		body := &solver.Body{
			InvMass: invMass, InvInertia: invInertia,
			Position: geom.Vec2{X: x.At(row), Y: y.At(row)},
			Velocity: velocity, AngularVelocity: angVel,
		}
		body.Velocity = body.Velocity.Add(s.Gravity.Scale(dt))
		solverBodies[ref] = body
	}

	var constraints []*solver.Constraint
	for _, pair := range s.Graph.Pairs() {
		if !pair.Touching || pair.Manifold.NumPoints == 0 {
			continue
		}
		bodyA, okA := solverBodies[pair.A]
		bodyB, okB := solverBodies[pair.B]
		if !okA || !okB {
			continue
		}
		friction, restitution := pairMaterial(s, tables, rows, pair.A, pair.B)
		// The manifold's public Normal points from B to A (spec
		// convention); the solver's impulse application (B gets +Normal,
		// A gets -Normal) needs it pointing A to B to actually separate
		// the pair, so flip it for the solver's view only. NewConstraint
		// copies the value into the Constraint synchronously, so it's
		// safe to flip back immediately after.
		pair.Manifold.Normal = pair.Manifold.Normal.Neg()
		c := solver.NewConstraint(bodyA, bodyB, &pair.Manifold, friction, restitution, s.Config.Solver)
		pair.Manifold.Normal = pair.Manifold.Normal.Neg()
		constraints = append(constraints, c)
	}

	if len(constraints) == 0 {
		s.integrate(solverBodies, tables, rows, dt)
		return
	}

	var reporter solver.IterationReporter
	if s.Metrics != nil {
		reporter = s.Metrics.ConstraintIterations
	}
	solver.Solve(constraints, s.Iterations, reporter)
	s.integrate(solverBodies, tables, rows, dt)
}

// pairMaterial combines each body's material: friction multiplicatively,
// restitution additively, per the solver's material-combination rule.
func pairMaterial(s *Simulation, tables map[ids.StableRef]*store.Table, rows map[ids.StableRef]int, a, b ids.StableRef) (friction, restitution float64) {
	_, _, fA, rA := s.bodyMaterial(tables[a], rows[a])
	_, _, fB, rB := s.bodyMaterial(tables[b], rows[b])
	return fA * fB, rA + rB
}

func (s *Simulation) integrate(bodies map[ids.StableRef]*solver.Body, tables map[ids.StableRef]*store.Table, rows map[ids.StableRef]int, dt float64) {
	for ref, body := range bodies {
		if body == solver.Ground {
			continue
		}
		table, row := tables[ref], rows[ref]
		x, _ := s.Aliases.PosX(table)
		y, _ := s.Aliases.PosY(table)
		x.Set(row, x.At(row)+body.Velocity.X*dt)
		y.Set(row, y.At(row)+body.Velocity.Y*dt)

		if vx, ok := s.Aliases.LinVelX(table); ok {
			vx.Set(row, body.Velocity.X)
		}
		if vy, ok := s.Aliases.LinVelY(table); ok {
			vy.Set(row, body.Velocity.Y)
		}
		if s.Aliases.AngVel != nil {
			if col, ok := s.Aliases.AngVel(table); ok {
				col.Set(row, body.AngularVelocity)
			}
		}
	}
}
