package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"riverrun.ai/internal/sim/catalogs"
	"riverrun.ai/internal/sim/tuning"
	"riverrun.ai/internal/sim/world"
)

func TestLatestSnapshot_PicksHighestTick(t *testing.T) {
	dir := t.TempDir()
	snaps := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snaps, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"600.snap.zst", "4200.snap.zst", "1200.snap.zst", "junk.snap.zst", "9999.txt"} {
		if err := os.WriteFile(filepath.Join(snaps, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	got := latestSnapshot(dir)
	if filepath.Base(got) != "4200.snap.zst" {
		t.Fatalf("latest=%q", got)
	}
	if latestSnapshot(filepath.Join(dir, "missing")) != "" {
		t.Fatalf("expected empty for missing dir")
	}
}

func TestWriteMetrics_Exposition(t *testing.T) {
	tune, err := tuning.Load("../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("tuning: %v", err)
	}
	cat, err := catalogs.Load("../../configs/pieces.json")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	w, err := world.New(world.ConfigFromTuning("m", 3, tune), cat, nil)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	for i := 0; i < 5; i++ {
		w.StepOnce()
	}

	var b strings.Builder
	writeMetrics(&b, "m", w, nil)
	out := b.String()
	for _, want := range []string{
		`riverrun_tick{river="m"} 5`,
		`riverrun_track_total{river="m",counter="spawned"}`,
		`riverrun_queue_depth{river="m",queue="admin"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "riverrun_index_") {
		t.Fatalf("index metrics without an index")
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("RR_TEST_FLAG", "off")
	if envBool("RR_TEST_FLAG", true) {
		t.Fatalf("off should be false")
	}
	t.Setenv("RR_TEST_FLAG", "")
	if !envBool("RR_TEST_FLAG", true) {
		t.Fatalf("empty should fall back to default")
	}
}
