package log

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"riverrun.ai/internal/sim/river/track"
	"riverrun.ai/internal/sim/world"
)

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "events")
	now := time.Date(2024, 5, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if err := w.Write(world.TickLogEntry{Tick: uint64(i), Digest: "d"}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(world.TickLogEntry{Tick: 3, Digest: "d"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListFiles(dir, "events")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "events-2024-05-01-10.jsonl.zst" {
		t.Fatalf("files: %v", files)
	}

	var ticks []uint64
	for _, f := range files {
		err := ScanJSONL(f, func(line []byte) error {
			var e world.TickLogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			ticks = append(ticks, e.Tick)
			return nil
		})
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
	}
	if len(ticks) != 4 || ticks[3] != 3 {
		t.Fatalf("ticks: %v", ticks)
	}
}

func TestIncidentLogger(t *testing.T) {
	dir := t.TempDir()
	l := NewIncidentLogger(dir)
	err := l.WriteIncident(world.IncidentEntry{Tick: 7, Ordinal: 12, Kind: track.IncidentConflict, TemplateID: "curve_left_45", Detail: "overlaps 10"})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListFiles(filepath.Join(dir, "incidents"), "incidents")
	if err != nil || len(files) != 1 {
		t.Fatalf("files: %v %v", files, err)
	}
	var got world.IncidentEntry
	if err := ScanJSONL(files[0], func(line []byte) error { return json.Unmarshal(line, &got) }); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if got.Ordinal != 12 || got.Kind != track.IncidentConflict {
		t.Fatalf("entry: %+v", got)
	}
}
