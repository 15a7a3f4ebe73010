package player

import (
	"math"
	"testing"

	"riverrun.ai/internal/sim/catalogs"
	"riverrun.ai/internal/sim/randx"
	"riverrun.ai/internal/sim/river/policy"
	"riverrun.ai/internal/sim/river/track"
)

func straightPieces(t *testing.T) []track.PlacedPiece {
	t.Helper()
	anchors := []catalogs.Anchor{
		{Name: "StartPoint", Pos: [3]float64{0, 0, -10}},
		{Name: "EndPoint", Pos: [3]float64{0, 0, 10}},
	}
	cat := catalogs.New([]catalogs.PieceTemplate{
		{ID: "s1", Archetype: catalogs.Straight1, Weight: 1, Anchors: anchors},
		{ID: "s2", Archetype: catalogs.Straight2, Weight: 1, Anchors: anchors},
		{ID: "s3", Archetype: catalogs.Straight3, Weight: 1, Anchors: anchors},
	})
	cfg := track.Config{
		Behind: 2, Ahead: 2, Tolerance: 0.01, OverlapShrink: 0.95, MaxPlacementRetries: 5,
		Policy: policy.Config{MinStraightBeforeCurve: 2, MaxStraightBeforeCurve: 4, MaxConsecutiveCurves: 2},
	}
	tr, err := track.New(cfg, cat, randx.New(1), nil)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if err := tr.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return tr.Pieces()
}

func TestFollower_StepsAlongChain(t *testing.T) {
	pieces := straightPieces(t)
	f := NewFollower(0.5, track.LocateByZ)
	f.Place(pieces, pieces[2].PathMid())
	if math.Abs(f.Pos().Z-40) > 1e-9 {
		t.Fatalf("placed at z=%v, want 40", f.Pos().Z)
	}
	f.Step(pieces)
	if math.Abs(f.Longitudinal()-40.5) > 1e-9 {
		t.Fatalf("z after step %v", f.Longitudinal())
	}
	if math.Abs(f.ProgressAhead()-49.5) > 1e-9 {
		t.Fatalf("ahead %v", f.ProgressAhead())
	}

	p := NewFollower(0.5, track.LocateByPath)
	p.Place(pieces, 50)
	p.Step(pieces)
	if math.Abs(p.Longitudinal()-50.5) > 1e-9 {
		t.Fatalf("path longitudinal %v", p.Longitudinal())
	}
}

func TestFollower_ClampsToTail(t *testing.T) {
	pieces := straightPieces(t)
	f := NewFollower(3, "")
	f.Place(pieces, 1000)
	if f.Distance() != 100 || f.ProgressAhead() != 0 {
		t.Fatalf("distance=%v ahead=%v", f.Distance(), f.ProgressAhead())
	}
	if math.Abs(f.Pos().Z-90) > 1e-9 {
		t.Fatalf("pos z %v", f.Pos().Z)
	}

	s := f.Export()
	g := NewFollower(3, "")
	g.Restore(s)
	if g.Distance() != f.Distance() || g.Pos() != f.Pos() {
		t.Fatalf("restore mismatch")
	}
}
