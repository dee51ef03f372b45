// Package narrowphase generates contact manifolds for the pairs the
// broadphase and pair-graph layers have already narrowed down to
// plausible overlaps. Dispatch is by shape-pair kind (circle-circle,
// rect-rect, rect-circle, rect-ray), each grounded on the reference
// engine's own per-pair collision routines. The Z-axis "thickness"
// gate (ApplyZGate/ApplyZGateTolerance) runs on a finished 2D manifold,
// builds on engine/physics/geom's range-overlap classification, and
// replaces the XY contacts with a Z-only manifold when the Z ranges
// are separated.
package narrowphase

import "github.com/nmxmxh/dof-engine/engine/physics/geom"

// Circle is a circular collider.
type Circle struct {
	Center geom.Vec2
	Radius float64
}

// Rect is an oriented box: BasisX is the unit vector along the box's
// local X axis, following geom.Rotate/TransposeRot's convention of
// representing a rotation as its basis X vector rather than an angle.
type Rect struct {
	Center      geom.Vec2
	HalfExtents geom.Vec2
	BasisX      geom.Vec2
}

// toLocal expresses world point p in r's local frame.
func (r Rect) toLocal(p geom.Vec2) geom.Vec2 {
	d := p.Sub(r.Center)
	inv := geom.TransposeRot(r.BasisX)
	return geom.Rotate(inv, d)
}

func (r Rect) toWorld(local geom.Vec2) geom.Vec2 {
	return geom.Rotate(r.BasisX, local).Add(r.Center)
}

// axisX and axisY return r's local X and Y axes expressed in world space.
func (r Rect) axisX() geom.Vec2 { return r.BasisX }
func (r Rect) axisY() geom.Vec2 { return geom.Vec2{X: -r.BasisX.Y, Y: r.BasisX.X} }

// vertices returns the four corners of r in world space, starting at
// local (+x,+y) and proceeding counter-clockwise.
func (r Rect) vertices() [4]geom.Vec2 { return r.Vertices() }

// Vertices returns the four corners of r in world space, starting at
// local (+x,+y) and proceeding counter-clockwise.
func (r Rect) Vertices() [4]geom.Vec2 {
	hx, hy := r.HalfExtents.X, r.HalfExtents.Y
	locals := [4]geom.Vec2{
		{X: hx, Y: hy}, {X: -hx, Y: hy}, {X: -hx, Y: -hy}, {X: hx, Y: -hy},
	}
	var out [4]geom.Vec2
	for i, l := range locals {
		out[i] = r.toWorld(l)
	}
	return out
}
