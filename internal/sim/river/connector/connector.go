// Package connector places a piece so that its start anchor coincides with a target frame.
package connector

import "riverrun.ai/internal/sim/geom"

// Placement is the world pose chosen for a new piece.
type Placement struct {
	Transform geom.Transform
	// Residual is the start-anchor position error before correction.
	Residual  float64
	Corrected bool
}

// Align orients the piece so that startLocal maps onto target, then translates it so the
// start anchor lands on target.Pos. A residual above tolerance is removed by a direct
// translation and reported through Corrected.
func Align(startLocal, target geom.Transform, tolerance float64) Placement {
	rot := target.Rot.Mul(startLocal.Rot.Inverse()).Normalize()
	pos := target.Pos.Sub(rot.Rotate(startLocal.Pos))
	return Correct(Placement{Transform: geom.Transform{Pos: pos, Rot: rot}}, startLocal.Pos, target.Pos, tolerance)
}

// Correct measures where localStart lands under p and, when it misses want by more than
// tolerance, shifts p by the miss.
func Correct(p Placement, localStart, want geom.Vec3, tolerance float64) Placement {
	miss := want.Sub(p.Transform.Point(localStart))
	p.Residual = miss.Len()
	if p.Residual > tolerance {
		p.Transform.Pos = p.Transform.Pos.Add(miss)
		p.Corrected = true
	}
	return p
}

// ApplyFixup rotates the placed piece by yawDeg about the world position of its start anchor,
// around world up. Zero is a no-op.
func ApplyFixup(p Placement, startLocal geom.Transform, yawDeg float64) Placement {
	if yawDeg == 0 {
		return p
	}
	pivot := p.Transform.Point(startLocal.Pos)
	p.Transform = p.Transform.RotateAround(pivot, geom.Up, yawDeg)
	return p
}

// StartTarget is the frame a track's first piece is aligned against.
func StartTarget(origin geom.Vec3) geom.Transform {
	return geom.Transform{Pos: origin, Rot: geom.Identity()}
}
