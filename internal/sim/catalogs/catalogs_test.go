package catalogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"riverrun.ai/internal/sim/randx"
)

const sampleJSON = `{
  "version": 1,
  "templates": [
    {"id": "s1_a", "archetype": "STRAIGHT_1", "weight": 3,
     "anchors": [{"name": "StartPoint", "pos": [0,0,-10]}, {"name": "EndPoint", "pos": [0,0,10]}],
     "bounds": [{"min": [-5,-1,-10], "max": [5,2,10]}]},
    {"id": "s1_b", "archetype": "STRAIGHT_1", "weight": 1,
     "anchors": [{"name": "start", "pos": [0,0,-10]}, {"name": "CONNECTIONEND", "pos": [0,0,10]}]},
    {"id": "s2", "archetype": "STRAIGHT_2",
     "anchors": [{"name": "StartPoint", "pos": [0,0,-10]}, {"name": "EndPoint", "pos": [0,0,10]}]},
    {"id": "cl_broken", "archetype": "CURVE_LEFT",
     "anchors": [{"name": "StartPoint", "pos": [0,0,-7]}]}
  ]
}`

type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

func TestParse_RejectsTemplatesWithoutAnchors(t *testing.T) {
	c, err := Parse([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(c.Templates) != 3 {
		t.Fatalf("templates: got %d want 3", len(c.Templates))
	}
	if len(c.Rejected) != 1 || c.Rejected[0].ID != "cl_broken" || c.Rejected[0].Reason != "missing end anchor" {
		t.Fatalf("rejected: %+v", c.Rejected)
	}
	if c.Has(CurveLeft) {
		t.Fatalf("rejected template reached the draw table")
	}
	if c.ByID["s2"].Weight != 1 {
		t.Fatalf("default weight: %v", c.ByID["s2"].Weight)
	}
	if len(c.Digest) != 64 {
		t.Fatalf("digest: %q", c.Digest)
	}
}

func TestParse_SchemaErrors(t *testing.T) {
	cases := map[string]string{
		"unknown archetype": `{"templates":[{"id":"x","archetype":"SPIRAL","anchors":[]}]}`,
		"negative weight":   `{"templates":[{"id":"x","archetype":"STRAIGHT_1","weight":-1,"anchors":[]}]}`,
		"extra field":       `{"templates":[],"extra":1}`,
		"short vector":      `{"templates":[{"id":"x","archetype":"STRAIGHT_1","anchors":[{"name":"StartPoint","pos":[0,0]}]}]}`,
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParse_DuplicateID(t *testing.T) {
	raw := `{"templates":[
	  {"id":"a","archetype":"STRAIGHT_1","anchors":[{"name":"StartPoint","pos":[0,0,0]},{"name":"EndPoint","pos":[0,0,1]}]},
	  {"id":"a","archetype":"STRAIGHT_2","anchors":[{"name":"StartPoint","pos":[0,0,0]},{"name":"EndPoint","pos":[0,0,1]}]}]}`
	_, err := Parse([]byte(raw))
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	p := filepath.Join(t.TempDir(), "pieces.json")
	if err := os.WriteFile(p, []byte(sampleJSON), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := c.ArchetypeCounts()["STRAIGHT_1"]; got != 2 {
		t.Fatalf("STRAIGHT_1 count: %d", got)
	}
	if got := c.ArchetypeCounts()["CURVE_RIGHT"]; got != 0 {
		t.Fatalf("CURVE_RIGHT count: %d", got)
	}
}

func TestWeightedDraw_CumulativeWalk(t *testing.T) {
	c, err := Parse([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s1 := c.TemplatesFor(Straight1) // weights 3, 1
	cases := []struct {
		u    float64
		want string
	}{
		{0, "s1_a"},
		{0.5, "s1_a"},
		{0.74, "s1_a"},
		{0.76, "s1_b"},
		{0.999, "s1_b"},
	}
	for _, tc := range cases {
		got, ok := c.WeightedDraw(fixedSource(tc.u), s1)
		if !ok || got.ID != tc.want {
			t.Fatalf("u=%v: got %s want %s", tc.u, got.ID, tc.want)
		}
	}
}

func TestWeightedDraw_Distribution(t *testing.T) {
	c, err := Parse([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	src := randx.New(11)
	counts := map[string]int{}
	const n = 20000
	for i := 0; i < n; i++ {
		tpl, _ := c.WeightedDraw(src, c.TemplatesFor(Straight1))
		counts[tpl.ID]++
	}
	frac := float64(counts["s1_a"]) / n
	if frac < 0.72 || frac > 0.78 {
		t.Fatalf("s1_a fraction %.3f, want ~0.75", frac)
	}
}

func TestWeightedDraw_ZeroWeightsAndEmpty(t *testing.T) {
	anchors := []Anchor{{Name: "StartPoint"}, {Name: "EndPoint", Pos: [3]float64{0, 0, 1}}}
	c := New([]PieceTemplate{
		{ID: "z", Archetype: Straight2, Weight: 0, Anchors: anchors},
		{ID: "w", Archetype: Straight2, Weight: 2, Anchors: anchors},
		{ID: "base", Archetype: Straight1, Weight: 1, Anchors: anchors},
	})
	for _, u := range []float64{0, 0.3, 0.99} {
		got, _ := c.WeightedDraw(fixedSource(u), c.TemplatesFor(Straight2))
		if got.ID != "w" {
			t.Fatalf("u=%v: zero-weight template drawn", u)
		}
	}
	got, ok := c.WeightedDraw(fixedSource(0.5), nil)
	if !ok || got.ID != "base" {
		t.Fatalf("empty draw: got %q ok=%v, want default straight", got.ID, ok)
	}

	none := New([]PieceTemplate{{ID: "c", Archetype: CurveLeft, Weight: 1, Anchors: anchors}})
	if _, ok := none.WeightedDraw(fixedSource(0.5), nil); ok {
		t.Fatalf("expected no default without straights")
	}
}

func TestPick_NoTemplate(t *testing.T) {
	c := New(nil)
	if _, err := c.Pick(CurveRight, fixedSource(0)); err == nil {
		t.Fatalf("expected ErrNoTemplate")
	}
}

func TestResolveAnchors_CaseInsensitive(t *testing.T) {
	starts, ends := ResolveAnchors([]Anchor{
		{Name: "startpoint_b"},
		{Name: "ENDPOINT"},
		{Name: "StartPoint"},
		{Name: "EndPoint_A"},
		{Name: "Decoration"},
	})
	if len(starts) != 2 || starts[0].Name != "StartPoint" {
		t.Fatalf("starts: %+v", starts)
	}
	if len(ends) != 2 || ends[0].Name != "ENDPOINT" {
		t.Fatalf("ends: %+v", ends)
	}
}

func TestArchetype_JSON(t *testing.T) {
	a, err := ParseArchetype("curve_right")
	if err != nil || a != CurveRight {
		t.Fatalf("parse: %v %v", a, err)
	}
	b, _ := a.MarshalJSON()
	if string(b) != `"CURVE_RIGHT"` {
		t.Fatalf("marshal: %s", b)
	}
	if Straight3.NextStraight() != Straight1 || CurveLeft.Opposite() != CurveRight {
		t.Fatalf("transitions broken")
	}
}
