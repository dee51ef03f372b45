package narrowphase

import (
	"math"
	"sort"

	"github.com/nmxmxh/dof-engine/engine/physics/geom"
	"github.com/nmxmxh/dof-engine/engine/physics/pairs"
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CircleCircle generates a single-point manifold for two circles, or
// reports no contact when they are farther apart than the sum of
// their radii. The manifold normal points from B to A, per spec.
func CircleCircle(a, b Circle) (pairs.Manifold, bool) {
	delta := a.Center.Sub(b.Center)
	distSq := delta.LengthSq()
	radiusSum := a.Radius + b.Radius
	if distSq > radiusSum*radiusSum {
		return pairs.Manifold{}, false
	}
	dist := math.Sqrt(distSq)
	normal := geom.NormalizedOr(delta, geom.Vec2{X: 1}, geom.Epsilon)
	depth := radiusSum - dist
	point := a.Center.Sub(normal.Scale(a.Radius))
	return pairs.Manifold{
		Normal: normal, NumPoints: 1,
		Points: [2]geom.Vec2{point}, Depths: [2]float64{depth},
	}, true
}

// RectCircle finds the closest point on r to c's center and generates
// a contact when that point lies at or within c's radius. The
// collision test is distSq <= radius*radius (equivalent to
// dist <= radius) — not the distSq <= radius typo some C++ ports of
// this routine carry, which would wrongly admit pairs at up to
// sqrt(radius) rather than radius distance.
func RectCircle(r Rect, c Circle) (pairs.Manifold, bool) {
	local := r.toLocal(c.Center)
	clamped := geom.Vec2{
		X: clamp(local.X, -r.HalfExtents.X, r.HalfExtents.X),
		Y: clamp(local.Y, -r.HalfExtents.Y, r.HalfExtents.Y),
	}
	deltaLocal := local.Sub(clamped)
	distSq := deltaLocal.LengthSq()
	if distSq > c.Radius*c.Radius {
		return pairs.Manifold{}, false
	}

	var normalLocal geom.Vec2
	var depth float64
	if distSq <= geom.Epsilon*geom.Epsilon {
		// Circle center is inside the box: push out along whichever
		// axis has the least remaining clearance.
		dx := r.HalfExtents.X - math.Abs(local.X)
		dy := r.HalfExtents.Y - math.Abs(local.Y)
		sign := func(v float64) float64 {
			if v < 0 {
				return -1
			}
			return 1
		}
		if dx < dy {
			normalLocal = geom.Vec2{X: sign(local.X), Y: 0}
			depth = dx + c.Radius
		} else {
			normalLocal = geom.Vec2{X: 0, Y: sign(local.Y)}
			depth = dy + c.Radius
		}
	} else {
		dist := math.Sqrt(distSq)
		normalLocal = deltaLocal.Scale(1 / dist)
		depth = c.Radius - dist
	}
	// normalLocal above points from the rect's surface toward the
	// circle (rect-to-circle); the manifold convention is the reverse
	// (normal from circle to rect), matching CircleCircle's B-to-A rule.
	normalLocal = normalLocal.Neg()

	normal := geom.Rotate(r.BasisX, normalLocal)
	point := r.toWorld(clamped)
	return pairs.Manifold{
		Normal: normal, NumPoints: 1,
		Points: [2]geom.Vec2{point}, Depths: [2]float64{depth},
	}, true
}

func projectRect(r Rect, axis geom.Vec2) geom.Range1D {
	verts := r.vertices()
	min := verts[0].Dot(axis)
	max := min
	for _, v := range verts[1:] {
		d := v.Dot(axis)
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return geom.Range1D{Min: min, Max: max}
}

// refAxisTolerance is the relative slack RectRect gives the previous
// frame's reference axis before switching to a new one. Two axes
// within this fraction of each other's overlap amount are treated as
// tied, and the tie goes to prevAxis, so a manifold sitting almost
// exactly on a corner does not flip its reference face every frame.
const refAxisTolerance = 1e-3

// RectRect runs separating-axis tests against both rects' local axes
// and, failing to find a separating axis, builds a manifold from the
// incident shape's deepest-penetrating vertices against the reference
// face's normal. This is the classic SAT-then-clip shape, simplified
// to a deepest-vertex selection rather than full polygon clipping —
// sufficient for two convex quads, where at most two vertices of the
// incident box can lie inside the reference face at once.
//
// prevAxis is the reference axis this pair resolved to last frame (the
// zero vector if there is none yet, e.g. a newly-touching pair). When
// the least-overlapping axis this frame is within refAxisTolerance of
// prevAxis's overlap, prevAxis is kept instead, damping reference-face
// flicker at near-equal overlaps.
func RectRect(a, b Rect, prevAxis geom.Vec2) (pairs.Manifold, bool) {
	axes := [4]geom.Vec2{a.axisX(), a.axisY(), b.axisX(), b.axisY()}

	bestOverlap := math.Inf(1)
	var bestAxis geom.Vec2
	bestFromA := true
	prevOverlap := math.Inf(1)
	havePrev := prevAxis.LengthSq() > geom.Epsilon*geom.Epsilon

	for i, axis := range axes {
		ra := projectRect(a, axis)
		rb := projectRect(b, axis)
		overlap := geom.ClassifyRangeOverlap(ra, rb)
		if overlap == geom.AABB || overlap == geom.BBAA {
			return pairs.Manifold{}, false
		}
		amount := -geom.GetRangeDistance(overlap, ra, rb)
		if amount < bestOverlap {
			bestOverlap = amount
			bestAxis = axis
			bestFromA = i < 2
		}
		if havePrev && sameAxis(axis, prevAxis) {
			prevOverlap = amount
		}
	}

	if havePrev && prevOverlap <= bestOverlap*(1+refAxisTolerance) {
		bestAxis = prevAxis
		bestFromA = sameAxis(prevAxis, a.axisX()) || sameAxis(prevAxis, a.axisY())
		bestOverlap = prevOverlap
	}

	normal := bestAxis
	if b.Center.Sub(a.Center).Dot(normal) < 0 {
		normal = normal.Neg()
	}

	reference, incident := a, b
	if !bestFromA {
		reference, incident = b, a
		normal = normal.Neg()
	}

	type candidate struct {
		point geom.Vec2
		depth float64
	}
	verts := incident.vertices()
	refFace := projectRect(reference, normal).Max
	cands := make([]candidate, len(verts))
	for i, v := range verts {
		cands[i] = candidate{point: v, depth: refFace - v.Dot(normal)}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].depth > cands[j].depth })

	m := pairs.Manifold{Normal: normal, RefAxis: bestAxis}
	n := 0
	for i := 0; i < len(cands) && n < 2; i++ {
		if cands[i].depth < 0 {
			continue
		}
		m.Points[n] = cands[i].point
		m.Depths[n] = cands[i].depth
		n++
	}
	if n == 0 {
		n = 1
		m.Points[0] = cands[0].point
		m.Depths[0] = bestOverlap
	}
	m.NumPoints = n
	// The axis-resolution logic above settles on a normal pointing from
	// the reference box toward the incident box. The manifold convention
	// is normal from B to A, so the reported field is flipped when A owns
	// the reference face; when B owns it, the normal already points from
	// B to A. The depth/point computation above used the unflipped
	// direction and stays correct.
	if bestFromA {
		m.Normal = m.Normal.Neg()
	}
	return m, true
}

// sameAxis reports whether x and y are the same axis up to sign (an
// SAT axis and its negation separate along the same line).
func sameAxis(x, y geom.Vec2) bool {
	const tol = 1e-6
	dot := x.Dot(y)
	return dot > 1-tol || dot < -(1-tol)
}

// Ray is a half-line from Origin in direction Dir. RectRay tests it up
// to the parameter maxT it is given (maxT 1 reaches Origin+Dir).
type Ray struct {
	Origin, Dir geom.Vec2
}

// RayHit is the result of a successful raycast.
type RayHit struct {
	T      float64
	Point  geom.Vec2
	Normal geom.Vec2
}

// RectRay performs a slab-method raycast against an oriented box in
// its own local frame, rotating the ray in and the hit normal back out.
func RectRay(r Rect, ray Ray, maxT float64) (RayHit, bool) {
	localOrigin := r.toLocal(ray.Origin)
	inv := geom.TransposeRot(r.BasisX)
	localDir := geom.Rotate(inv, ray.Dir)

	tmin, tmax := 0.0, maxT
	var normalLocal geom.Vec2

	axisTest := func(origin, dir, half float64, axisNormal geom.Vec2) bool {
		if geom.NearZero(dir, geom.Epsilon) {
			return origin >= -half && origin <= half
		}
		invD := 1 / dir
		t1 := (-half - origin) * invD
		t2 := (half - origin) * invD
		sign := -1.0
		if t1 > t2 {
			t1, t2 = t2, t1
			sign = 1
		}
		if t1 > tmin {
			tmin = t1
			normalLocal = geom.Vec2{X: axisNormal.X * sign, Y: axisNormal.Y * sign}
		}
		if t2 < tmax {
			tmax = t2
		}
		return tmin <= tmax
	}

	if !axisTest(localOrigin.X, localDir.X, r.HalfExtents.X, geom.Vec2{X: 1}) {
		return RayHit{}, false
	}
	if !axisTest(localOrigin.Y, localDir.Y, r.HalfExtents.Y, geom.Vec2{Y: 1}) {
		return RayHit{}, false
	}
	if tmin < 0 {
		return RayHit{}, false
	}

	point := ray.Origin.Add(ray.Dir.Scale(tmin))
	normal := geom.Rotate(r.BasisX, normalLocal)
	return RayHit{T: tmin, Point: point, Normal: normal}, true
}

// DefaultZTolerance is the Z-overlap tolerance ApplyZGate uses when a
// caller doesn't need a different one: two bodies separated by no
// more than this along Z are still treated as XY-overlapping, so a
// near-zero gap (e.g. exactly touching, separation 0) does not
// flicker between the XY and Z-only regimes frame to frame.
const DefaultZTolerance = 0.01

// ApplyZGate classifies the Z-axis (thickness) ranges of two bodies
// against an already-generated XY manifold m, using DefaultZTolerance.
func ApplyZGate(m pairs.Manifold, aZ, bZ geom.Range1D) (pairs.Manifold, bool) {
	return ApplyZGateTolerance(m, aZ, bZ, DefaultZTolerance)
}

// ApplyZGateTolerance implements spec §4.5's Z interaction: if the
// Z-ranges overlap, m stands unchanged and Z stays silent. If m has no
// XY contacts, it is left as-is (no Z emission). Otherwise — XY
// contacts exist but the Z-ranges are separated by more than
// tolerance — XY is discarded and a Z-only manifold is emitted instead,
// carrying the normal sign toward A and a separation of the gap minus
// tolerance (so a solver consuming it would hold the bodies apart by
// at least 2*tolerance).
func ApplyZGateTolerance(m pairs.Manifold, aZ, bZ geom.Range1D, tolerance float64) (pairs.Manifold, bool) {
	overlap := geom.ClassifyRangeOverlap(aZ, bZ)
	m.ZOverlap = overlap

	if overlap != geom.AABB && overlap != geom.BBAA {
		return m, true
	}

	gap := geom.GetRangeDistance(overlap, aZ, bZ)
	if gap <= tolerance {
		// Within tolerance (including bodies exactly touching on Z,
		// separation 0): still XY-overlapping per spec §8, not
		// Z-separated.
		return m, true
	}

	if m.NumPoints == 0 {
		// No XY contact to discard; default to XY (no Z emission).
		return m, true
	}

	return pairs.Manifold{
		ZOverlap: overlap,
		ZOnly:    true,
		Z: pairs.ZManifold{
			NormalSign: geom.GetRangeNormal(overlap),
			Separation: gap - tolerance,
		},
	}, true
}
