// Package solver implements the sequential-impulse (projected
// Gauss-Seidel) constraint solver that turns narrowphase manifolds
// into velocity corrections: warm-started from the previous frame's
// accumulated impulses, iterated per island, with friction bounded by
// each point's running normal impulse rather than a value fixed at
// the start of the iteration pass.
package solver

import (
	"math"

	"github.com/nmxmxh/dof-engine/engine/physics/geom"
	"github.com/nmxmxh/dof-engine/engine/physics/pairs"
)

// Body is the solver's view of a simulated rigid body: just the
// quantities the velocity solve needs, not the full component set a
// body has in the table store.
type Body struct {
	InvMass         float64
	InvInertia      float64
	Position        geom.Vec2
	Velocity        geom.Vec2
	AngularVelocity float64
}

// Ground is the shared infinite-mass sentinel body every contact
// against an immobile pair-graph node is solved against, rather than
// each static object carrying its own zero-InvMass Body. Its zero
// value already has InvMass and InvInertia of 0, so it never moves no
// matter what impulse is applied to it.
var Ground = &Body{}

func velocityAt(b *Body, r geom.Vec2) geom.Vec2 {
	return b.Velocity.Add(geom.Vec2{X: -b.AngularVelocity * r.Y, Y: b.AngularVelocity * r.X})
}

func relativeVelocity(a, b *Body, rA, rB geom.Vec2) geom.Vec2 {
	return velocityAt(b, rB).Sub(velocityAt(a, rA))
}

func applyImpulse(body *Body, sign float64, impulse geom.Vec2, r geom.Vec2) {
	body.Velocity = body.Velocity.Add(impulse.Scale(sign * body.InvMass))
	body.AngularVelocity += sign * body.InvInertia * geom.Cross(r, impulse)
}

// Config holds the solver's Baumgarte positional-correction constants,
// mirroring the reference engine's SolverGlobals (slop, biasTerm).
type Config struct {
	// Slop is the penetration depth left uncorrected, so a resting
	// contact's hairline overlap doesn't get pushed apart every frame.
	Slop float64
	// BiasTerm scales how much of the remaining overlap (beyond Slop)
	// is corrected per solve, in [0,1].
	BiasTerm float64
}

// DefaultConfig is the reference engine's usual tuning: a small
// positional slop and a conservative correction fraction.
var DefaultConfig = Config{Slop: 0.01, BiasTerm: 0.2}

type contactPoint struct {
	rA, rB         geom.Vec2
	normalMass     float64
	tangentMass    float64
	velocityBias   float64
	normalImpulse  float64
	tangentImpulse float64
}

// Constraint is one contact pair prepared for the velocity solve.
type Constraint struct {
	A, B        *Body
	Normal      geom.Vec2
	Tangent     geom.Vec2
	Friction    float64
	Restitution float64
	Points      []contactPoint

	manifold *pairs.Manifold
}

// NewConstraint prepares a constraint from a manifold, computing each
// contact point's effective mass and Baumgarte positional-correction
// bias and seeding its accumulated impulses from the manifold's
// warm-start values. The bias is `max(0, (overlap-slop)*biasTerm)`,
// raised to `max(bias, restitution*previousContactWarmStart)` when the
// material has restitution — matching the reference solver exactly,
// including using the prior frame's warm-started impulse rather than
// the current closing velocity as the restitution term's input.
func NewConstraint(a, b *Body, m *pairs.Manifold, friction, restitution float64, cfg Config) *Constraint {
	tangent := geom.Orthogonal(m.Normal)
	c := &Constraint{A: a, B: b, Normal: m.Normal, Tangent: tangent, Friction: friction, Restitution: restitution, manifold: m}

	for i := 0; i < m.NumPoints; i++ {
		rA := m.Points[i].Sub(a.Position)
		rB := m.Points[i].Sub(b.Position)

		rnA := geom.Cross(rA, m.Normal)
		rnB := geom.Cross(rB, m.Normal)
		kNormal := a.InvMass + b.InvMass + a.InvInertia*rnA*rnA + b.InvInertia*rnB*rnB
		normalMass := 0.0
		if kNormal > 0 {
			normalMass = 1 / kNormal
		}

		rtA := geom.Cross(rA, tangent)
		rtB := geom.Cross(rB, tangent)
		kTangent := a.InvMass + b.InvMass + a.InvInertia*rtA*rtA + b.InvInertia*rtB*rtB
		tangentMass := 0.0
		if kTangent > 0 {
			tangentMass = 1 / kTangent
		}

		baseBias := math.Max(0, (m.Depths[i]-cfg.Slop)*cfg.BiasTerm)
		bias := baseBias
		if restitution > 0 {
			bias = math.Max(baseBias, restitution*m.WarmNormalImpulse[i])
		}

		c.Points = append(c.Points, contactPoint{
			rA: rA, rB: rB,
			normalMass: normalMass, tangentMass: tangentMass,
			velocityBias:   bias,
			normalImpulse:  m.WarmNormalImpulse[i],
			tangentImpulse: m.WarmTangentImpulse[i],
		})
	}
	return c
}

// WarmStart re-applies the previous frame's accumulated impulses
// before the first iteration, so a resting stack starts each frame
// already near its resolved velocity instead of re-deriving it from
// scratch.
func (c *Constraint) WarmStart() {
	for _, p := range c.Points {
		impulse := c.Normal.Scale(p.normalImpulse).Add(c.Tangent.Scale(p.tangentImpulse))
		applyImpulse(c.A, -1, impulse, p.rA)
		applyImpulse(c.B, 1, impulse, p.rB)
	}
}

// Solve runs one sequential-impulse pass: the normal impulses first,
// then friction impulses clamped to this iteration's updated normal
// impulse (the friction bound is refreshed every pass, not computed
// once up front, so friction never outruns how hard the contact is
// actually being pressed together).
func (c *Constraint) Solve() {
	for i := range c.Points {
		p := &c.Points[i]
		vn := relativeVelocity(c.A, c.B, p.rA, p.rB).Dot(c.Normal)
		lambda := -p.normalMass * (vn - p.velocityBias)
		newImpulse := math.Max(p.normalImpulse+lambda, 0)
		lambda = newImpulse - p.normalImpulse
		p.normalImpulse = newImpulse

		impulse := c.Normal.Scale(lambda)
		applyImpulse(c.A, -1, impulse, p.rA)
		applyImpulse(c.B, 1, impulse, p.rB)
	}

	for i := range c.Points {
		p := &c.Points[i]
		vt := relativeVelocity(c.A, c.B, p.rA, p.rB).Dot(c.Tangent)
		lambda := -p.tangentMass * vt
		maxFriction := c.Friction * p.normalImpulse
		newImpulse := clampf(p.tangentImpulse+lambda, -maxFriction, maxFriction)
		lambda = newImpulse - p.tangentImpulse
		p.tangentImpulse = newImpulse

		impulse := c.Tangent.Scale(lambda)
		applyImpulse(c.A, -1, impulse, p.rA)
		applyImpulse(c.B, 1, impulse, p.rB)
	}
}

// StoreWarmStart writes this frame's final accumulated impulses back
// into the manifold so the next frame's NewConstraint can pick them up.
func (c *Constraint) StoreWarmStart() {
	for i, p := range c.Points {
		c.manifold.WarmNormalImpulse[i] = p.normalImpulse
		c.manifold.WarmTangentImpulse[i] = p.tangentImpulse
	}
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// IterationReporter receives a count each time a solve pass runs an
// iteration, typically backed by engine/metrics's ConstraintIterations
// counter.
type IterationReporter interface {
	Add(n float64)
}

// Solve runs WarmStart once and then Iterations sequential-impulse
// passes over every constraint in the island, finishing by writing
// each constraint's impulses back for the next frame's warm start.
func Solve(constraints []*Constraint, iterations int, report IterationReporter) {
	for _, c := range constraints {
		c.WarmStart()
	}
	for i := 0; i < iterations; i++ {
		for _, c := range constraints {
			c.Solve()
		}
		if report != nil {
			report.Add(1)
		}
	}
	for _, c := range constraints {
		c.StoreWarmStart()
	}
}
