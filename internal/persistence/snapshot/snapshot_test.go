package snapshot

import (
	"path/filepath"
	"testing"
)

func TestWriteReadSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := PathFor(filepath.Join(dir, "snapshots"), 120)

	in := SnapshotV1{
		Header:        Header{Version: 1, RiverID: "river_1", Tick: 120},
		Seed:          42,
		TickRate:      10,
		CatalogDigest: "abc",
		PlayerSpeed:   0.5,
		Window:        WindowV1{Behind: 2, Ahead: 2, TriggerDistance: 1, LocateBy: "path"},
		Player:        PlayerV1{Distance: 61, Pos: [3]float64{0, 0, 51}, Ahead: 39},
		Track: TrackV1{
			Draws:       17,
			NextOrdinal: 8,
			PlayerIndex: 2,
			Begun:       true,
			Policy:      PolicyV1{ConsecutiveStraights: 1, StraightsUntilNextCurve: 3, Last: "STRAIGHT_2", HasLast: true},
			Stats:       StatsV1{Spawned: 7, Evicted: 2},
			Pieces: []PieceV1{
				{Ordinal: 6, TemplateID: "s1", Pos: [3]float64{0, 0, 100}, Rot: [4]float64{1, 0, 0, 0}, PathStart: 100},
				{Ordinal: 7, TemplateID: "cl", Pos: [3]float64{0, 0, 127}, Rot: [4]float64{1, 0, 0, 0}, PathStart: 120, Forced: true},
			},
		},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h != in.Header {
		t.Fatalf("header: got %+v want %+v", h, in.Header)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Track.Policy != in.Track.Policy || out.Window != in.Window || out.Player != in.Player {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if len(out.Track.Pieces) != 2 || out.Track.Pieces[1] != in.Track.Pieces[1] {
		t.Fatalf("pieces: %+v", out.Track.Pieces)
	}
}

func TestReadSnapshot_Missing(t *testing.T) {
	if _, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.snap.zst")); err == nil {
		t.Fatalf("expected error")
	}
}
