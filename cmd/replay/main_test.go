package main

import (
	"path/filepath"
	"strings"
	"testing"

	persistlog "riverrun.ai/internal/persistence/log"
	"riverrun.ai/internal/persistence/snapshot"
	"riverrun.ai/internal/sim/catalogs"
	"riverrun.ai/internal/sim/tuning"
	"riverrun.ai/internal/sim/world"
)

func recordRiver(t *testing.T, dir string, ticks int) (tuning.Tuning, *catalogs.Catalog, snapshot.SnapshotV1) {
	t.Helper()
	tune, err := tuning.Load("../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("tuning: %v", err)
	}
	cat, err := catalogs.Load("../../configs/pieces.json")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	w, err := world.New(world.ConfigFromTuning("rp", 21, tune), cat, nil)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	tl := persistlog.NewTickLogger(dir)
	w.SetTickLogger(tl)
	var mid snapshot.SnapshotV1
	for i := 0; i < ticks; i++ {
		tick, _ := w.StepOnce()
		if int(tick) == ticks/2 {
			mid = w.ExportSnapshot(tick)
		}
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close log: %v", err)
	}
	return tune, cat, mid
}

func TestReplay_FromSeed(t *testing.T) {
	dir := t.TempDir()
	tune, cat, _ := recordRiver(t, dir, 150)

	w, err := buildWorld("rp", 21, tune, cat, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	checked, err := replayDir(w, filepath.Join(dir, "events"), 0, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 150 {
		t.Fatalf("checked=%d", checked)
	}
}

func TestReplay_FromSnapshotWithStop(t *testing.T) {
	dir := t.TempDir()
	tune, cat, mid := recordRiver(t, dir, 150)

	w, err := buildWorld("ignored", 0, tune, cat, &mid)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	checked, err := replayDir(w, filepath.Join(dir, "events"), 0, 100)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	// Ticks 76..100.
	if checked != 25 {
		t.Fatalf("checked=%d", checked)
	}
}

func TestReplay_WrongSeedDiverges(t *testing.T) {
	dir := t.TempDir()
	tune, cat, _ := recordRiver(t, dir, 40)

	w, err := buildWorld("rp", 22, tune, cat, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	_, err = replayDir(w, filepath.Join(dir, "events"), 0, 0)
	if err == nil || !strings.Contains(err.Error(), "digest mismatch") {
		t.Fatalf("expected digest mismatch, got %v", err)
	}
}
