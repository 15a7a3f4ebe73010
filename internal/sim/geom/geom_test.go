package geom

import (
	"math"
	"testing"
)

func TestYaw_PositiveTurnsForwardRight(t *testing.T) {
	got := Yaw(90).Rotate(Forward)
	if !got.ApproxEqual(Right, 1e-9) {
		t.Fatalf("yaw 90 forward: got %+v", got)
	}
	if d := Yaw(30).YawDeg(); math.Abs(d-30) > 1e-9 {
		t.Fatalf("yaw deg: %v", d)
	}
}

func TestTransform_InversePointRoundTrip(t *testing.T) {
	tr := Transform{Pos: V(3, 1, -2), Rot: Euler(10, 35, -5)}
	p := V(1.5, -0.25, 7)
	back := tr.InversePoint(tr.Point(p))
	if !back.ApproxEqual(p, 1e-9) {
		t.Fatalf("round trip: got %+v want %+v", back, p)
	}
}

func TestTransform_RotateAroundKeepsPivot(t *testing.T) {
	tr := Transform{Pos: V(0, 0, 0), Rot: Identity()}
	pivot := V(0, 0, 5)
	out := tr.RotateAround(pivot, Up, 90)
	// origin was 5 behind the pivot; after +90 it sits 5 to the pivot's left.
	if !out.Pos.ApproxEqual(V(-5, 0, 5), 1e-9) {
		t.Fatalf("pos: %+v", out.Pos)
	}
	if !out.Rot.ApproxEqual(Yaw(90), 1e-12) {
		t.Fatalf("rot: %+v", out.Rot)
	}
}

func TestAABB_TransformedAndScaled(t *testing.T) {
	b := Box(V(-1, 0, 0), V(1, 1, 4))
	w := b.Transformed(Transform{Pos: V(10, 0, 0), Rot: Yaw(90)})
	if !w.Min.ApproxEqual(V(10, 0, -1), 1e-9) || !w.Max.ApproxEqual(V(14, 1, 1), 1e-9) {
		t.Fatalf("transformed: %+v", w)
	}
	s := b.Scaled(0.5)
	if !s.Center().ApproxEqual(b.Center(), 1e-12) {
		t.Fatalf("center moved")
	}
	if !s.Size().ApproxEqual(V(1, 0.5, 2), 1e-12) {
		t.Fatalf("size: %+v", s.Size())
	}
}

func TestAABB_Intersects(t *testing.T) {
	a := Box(V(0, 0, 0), V(1, 1, 1))
	if !a.Intersects(Box(V(1, 0, 0), V(2, 1, 1))) {
		t.Fatalf("touching boxes should intersect")
	}
	if a.Intersects(Box(V(1.01, 0, 0), V(2, 1, 1))) {
		t.Fatalf("separated boxes should not intersect")
	}
}
