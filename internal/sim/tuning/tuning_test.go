package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_OverlaysDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := []byte(`
window:
  segments_behind_player: 3
  segments_ahead_of_player: 6
meander:
  min_straight_before_curve: 1
  max_straight_before_curve: 3
  max_consecutive_curves: 1
  base_curve_chance: 0.5
straights:
  enforce_order: false
`)
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tune, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.Window.SegmentsBehindPlayer != 3 || tune.Window.SegmentsAheadOfPlayer != 6 {
		t.Fatalf("window: %+v", tune.Window)
	}
	if tune.Straights.EnforceOrder {
		t.Fatalf("enforce_order should be false")
	}
	// Untouched keys keep defaults.
	if !tune.Straights.AllowRepeats {
		t.Fatalf("allow_repeats default lost")
	}
	if tune.Connection.MaxPlacementRetries != 5 || tune.Connection.OverlapShrink != 0.95 {
		t.Fatalf("connection defaults lost: %+v", tune.Connection)
	}
}

func TestLoad_RejectsInvertedMeander(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := []byte("meander:\n  min_straight_before_curve: 5\n  max_straight_before_curve: 3\n")
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestDefaults_Valid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestValidate_LocateBy(t *testing.T) {
	tune := Defaults()
	tune.Window.LocateBy = "path"
	if err := tune.Validate(); err != nil {
		t.Fatalf("path rejected: %v", err)
	}
	tune.Window.LocateBy = "x"
	if err := tune.Validate(); err == nil {
		t.Fatalf("expected error for unknown locate_by")
	}
}
