package main

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	sjson "github.com/santhosh-tekuri/jsonschema/v5"

	"riverrun.ai/internal/persistence/indexdb"
	"riverrun.ai/internal/persistence/snapshot"
	"riverrun.ai/internal/sim/catalogs"
	"riverrun.ai/internal/sim/geom"
	"riverrun.ai/internal/sim/river/connector"
	"riverrun.ai/internal/sim/river/track"
	"riverrun.ai/internal/sim/world"
)

func TestBuildSchema_PiecesAcceptsShippedCatalog(t *testing.T) {
	s, err := buildSchema("pieces")
	if err != nil {
		t.Fatalf("buildSchema: %v", err)
	}
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	compiled, err := sjson.CompileString("pieces.reflected.json", string(b))
	if err != nil {
		t.Fatalf("compile reflected schema: %v\n%s", err, b)
	}

	raw, err := os.ReadFile("../../configs/pieces.json")
	if err != nil {
		t.Fatalf("read pieces: %v", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := compiled.Validate(doc); err != nil {
		t.Fatalf("shipped catalog fails reflected schema: %v", err)
	}

	bad := map[string]any{"version": 1, "templates": []any{map[string]any{"id": "x", "archetype": "SIDEWAYS"}}}
	if err := compiled.Validate(bad); err == nil {
		t.Fatalf("expected unknown archetype to fail")
	}
}

func TestBuildSchema_UnknownKind(t *testing.T) {
	if _, err := buildSchema("nope"); err == nil {
		t.Fatalf("expected error")
	}
	for _, k := range []string{"snapshot", "subscribe", "bootstrap", "track", "event"} {
		if s, err := buildSchema(k); err != nil || s.Title == "" {
			t.Fatalf("%s: %v", k, err)
		}
	}
}

func TestRunQuery_OverIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "river.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = idx.WriteTick(world.TickLogEntry{Tick: 0, Digest: "a", Events: []track.Event{
		{Kind: track.EventSpawn, Ordinal: 0, TemplateID: "straight_1_a", Archetype: "STRAIGHT_1"},
		{Kind: track.EventSpawn, Ordinal: 1, TemplateID: "curve_left_45", Archetype: "CURVE_LEFT"},
	}})
	_ = idx.WriteTick(world.TickLogEntry{Tick: 30, Digest: "b", Events: []track.Event{
		{Kind: track.EventEvict, Ordinal: 0},
	}})
	_ = idx.WriteIncident(world.IncidentEntry{Tick: 30, Ordinal: 2, Kind: track.IncidentTolerance, Detail: "gap 0.02"})
	idx.RecordSnapshot("/x/30.snap.zst", snapshot.SnapshotV1{Header: snapshot.Header{Version: 1, Tick: 30}, Seed: 4})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	count := func(q string, o dbQuery) int {
		t.Helper()
		n := 0
		if err := runQuery(db, q, o, func(any) { n++ }); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		return n
	}
	if n := count("pieces", dbQuery{}); n != 2 {
		t.Fatalf("pieces=%d", n)
	}
	if n := count("pieces", dbQuery{LiveOnly: true}); n != 1 {
		t.Fatalf("live pieces=%d", n)
	}
	if n := count("pieces", dbQuery{Archetype: "CURVE_LEFT"}); n != 1 {
		t.Fatalf("curve pieces=%d", n)
	}
	if n := count("incidents", dbQuery{Kind: track.IncidentTolerance}); n != 1 {
		t.Fatalf("incidents=%d", n)
	}
	if n := count("incidents", dbQuery{SinceTick: 31}); n != 0 {
		t.Fatalf("incidents since 31=%d", n)
	}
	if n := count("ticks", dbQuery{}); n != 2 {
		t.Fatalf("ticks=%d", n)
	}
	if n := count("snapshots", dbQuery{}); n != 1 {
		t.Fatalf("snapshots=%d", n)
	}
	if err := runQuery(db, "agents", dbQuery{}, func(any) {}); err == nil {
		t.Fatalf("expected unknown query error")
	}
}

func TestSummarize(t *testing.T) {
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: 1, RiverID: "r", Tick: 9},
		Track: snapshot.TrackV1{Pieces: []snapshot.PieceV1{
			{Ordinal: 4, TemplateID: "straight_1_a"},
			{Ordinal: 5, TemplateID: "curve_right_45"},
		}},
	}
	got := summarize(s)
	if got.Tick != 9 || len(got.Templates) != 2 || got.Templates[1] != "5:curve_right_45" {
		t.Fatalf("summary: %+v", got)
	}
}

func TestChainTemplates_LaysShippedCatalog(t *testing.T) {
	cat, err := catalogs.Load("../../configs/pieces.json")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	templates, err := chainTemplates(cat, "straight_1_a, curve_left_45")
	if err != nil {
		t.Fatalf("chainTemplates: %v", err)
	}
	if len(templates) != 2 || templates[1].ID != "curve_left_45" {
		t.Fatalf("templates: %+v", templates)
	}
	links, skips := connector.Chain(templates, geom.V(0, 0, 0), 4)
	if len(links) != 4 || len(skips) != 0 {
		t.Fatalf("links=%d skips=%d", len(links), len(skips))
	}
	for i := 1; i < len(links); i++ {
		if !links[i].Start.ApproxEqual(links[i-1].End, 1e-9) {
			t.Fatalf("link %d not joined to %d", i, i-1)
		}
	}

	if _, err := chainTemplates(cat, "straight_1_a,nope"); err == nil {
		t.Fatalf("expected unknown template error")
	}
	all, err := chainTemplates(cat, "")
	if err != nil || len(all) != len(cat.Templates) {
		t.Fatalf("default selection: %d %v", len(all), err)
	}
}
