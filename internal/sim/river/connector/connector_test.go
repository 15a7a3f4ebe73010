package connector

import (
	"math"
	"testing"

	"riverrun.ai/internal/sim/catalogs"
	"riverrun.ai/internal/sim/geom"
)

func TestAlign_RoundTrip(t *testing.T) {
	startLocal := geom.Transform{Pos: geom.V(1, 0.5, -10), Rot: geom.Euler(0, 20, 0)}
	endLocal := geom.Transform{Pos: geom.V(-4, 0, 9), Rot: geom.Euler(0, -45, 0)}

	a := Align(startLocal, StartTarget(geom.V(0, 0, 0)), 0.01)
	aEnd := a.Transform.Compose(endLocal)

	b := Align(startLocal, aEnd, 0.01)
	bStart := b.Transform.Compose(startLocal)
	if d := bStart.Pos.Dist(aEnd.Pos); d > 1e-4 {
		t.Fatalf("start position off by %v", d)
	}
	if !bStart.Rot.ApproxEqual(aEnd.Rot, 1e-4) {
		t.Fatalf("start orientation %+v want %+v", bStart.Rot, aEnd.Rot)
	}
	if b.Corrected {
		t.Fatalf("exact alignment should not need correction (residual %v)", b.Residual)
	}
}

func TestAlign_IdentityAnchorTakesTargetRotation(t *testing.T) {
	startLocal := geom.Transform{Pos: geom.V(0, 0, -10), Rot: geom.Identity()}
	target := geom.Transform{Pos: geom.V(5, 0, 20), Rot: geom.Yaw(90)}
	p := Align(startLocal, target, 0.01)
	if !p.Transform.Rot.ApproxEqual(target.Rot, 1e-9) {
		t.Fatalf("rot: %+v", p.Transform.Rot)
	}
	// Start is 10 behind the origin; facing +X the origin sits 10 further along +X.
	if !p.Transform.Pos.ApproxEqual(geom.V(15, 0, 20), 1e-9) {
		t.Fatalf("pos: %+v", p.Transform.Pos)
	}
}

func TestCorrect_AppliesResidualAboveTolerance(t *testing.T) {
	p := Placement{Transform: geom.Transform{Pos: geom.V(0.3, 0, 0), Rot: geom.Identity()}}
	out := Correct(p, geom.V(0, 0, -10), geom.V(0, 0, -10), 0.01)
	if !out.Corrected || math.Abs(out.Residual-0.3) > 1e-9 {
		t.Fatalf("got %+v", out)
	}
	if !out.Transform.Pos.ApproxEqual(geom.V(0, 0, 0), 1e-9) {
		t.Fatalf("pos after correction: %+v", out.Transform.Pos)
	}

	small := Correct(Placement{Transform: geom.Transform{Pos: geom.V(0.005, 0, 0), Rot: geom.Identity()}},
		geom.V(0, 0, -10), geom.V(0, 0, -10), 0.01)
	if small.Corrected {
		t.Fatalf("residual within tolerance corrected")
	}
}

func TestApplyFixup_PivotsOnStartAnchor(t *testing.T) {
	startLocal := geom.Transform{Pos: geom.V(0, 0, -7), Rot: geom.Identity()}
	p := Align(startLocal, StartTarget(geom.V(2, 0, 3)), 0.01)
	f := ApplyFixup(p, startLocal, -90)

	before := p.Transform.Point(startLocal.Pos)
	after := f.Transform.Point(startLocal.Pos)
	if !after.ApproxEqual(before, 1e-9) {
		t.Fatalf("start anchor moved: %+v -> %+v", before, after)
	}
	if d := f.Transform.Rot.YawDeg(); math.Abs(d+90) > 1e-9 {
		t.Fatalf("yaw after fixup: %v", d)
	}
	if same := ApplyFixup(p, startLocal, 0); same != p {
		t.Fatalf("zero fixup changed placement")
	}
}

func TestChain_ZeroRotation(t *testing.T) {
	anchors := func(start, end [3]float64) []catalogs.Anchor {
		return []catalogs.Anchor{{Name: "StartPoint", Pos: start}, {Name: "EndPoint", Pos: end}}
	}
	templates := []catalogs.PieceTemplate{
		{ID: "a", Anchors: anchors([3]float64{0, 0, -10}, [3]float64{0, 0, 10})},
		{ID: "bend", Anchors: anchors([3]float64{0, 0, -5}, [3]float64{3, 0, 5})},
		{ID: "broken", Anchors: []catalogs.Anchor{{Name: "StartPoint"}}},
	}
	links, skips := Chain(templates, geom.V(0, 0, 0), 6)
	if len(links) != 4 || len(skips) != 2 {
		t.Fatalf("links=%d skips=%d", len(links), len(skips))
	}
	if skips[0].TemplateID != "broken" || skips[0].Index != 2 || skips[0].Reason != "missing end anchor" {
		t.Fatalf("skip: %+v", skips[0])
	}
	if !links[0].Pos.ApproxEqual(geom.V(0, 0, 0), 1e-12) {
		t.Fatalf("first piece not at origin: %+v", links[0].Pos)
	}
	for i := 1; i < len(links); i++ {
		if !links[i].Start.ApproxEqual(links[i-1].End, 1e-12) {
			t.Fatalf("link %d start %+v != previous end %+v", i, links[i].Start, links[i-1].End)
		}
	}
	// a at origin ends at z=10; bend starts there and ends 3 right, 10 further.
	if !links[1].End.ApproxEqual(geom.V(3, 0, 20), 1e-12) {
		t.Fatalf("bend end: %+v", links[1].End)
	}
}
