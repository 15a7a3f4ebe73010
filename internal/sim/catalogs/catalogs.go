package catalogs

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"riverrun.ai/internal/sim/geom"
)

//go:embed pieces.schema.json
var piecesSchemaJSON string

var ErrNoTemplate = errors.New("no template for archetype")

// PieceTemplate is one prefabricated piece. Many templates may share an archetype.
type PieceTemplate struct {
	ID          string    `json:"id"`
	Archetype   Archetype `json:"archetype"`
	Prefab      string    `json:"prefab,omitempty"`
	Weight      float64   `json:"weight"`
	Anchors     []Anchor  `json:"anchors"`
	Bounds      []Box     `json:"bounds,omitempty"`
	FixupYawDeg float64   `json:"fixup_yaw_deg,omitempty"`
}

type Box struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

func (b Box) AABB() geom.AABB { return geom.Box(geom.FromArray(b.Min), geom.FromArray(b.Max)) }

// LocalBounds is the union of the template's renderable boxes.
func (t PieceTemplate) LocalBounds() (geom.AABB, bool) {
	if len(t.Bounds) == 0 {
		return geom.AABB{}, false
	}
	out := t.Bounds[0].AABB()
	for _, b := range t.Bounds[1:] {
		out = out.Union(b.AABB())
	}
	return out, true
}

// Rejection records a template dropped at load time.
type Rejection struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type Catalog struct {
	Templates []PieceTemplate
	ByID      map[string]PieceTemplate
	Rejected  []Rejection
	Digest    string

	byArchetype map[Archetype][]PieceTemplate
	log         *log.Logger
}

type fileV1 struct {
	Version   int           `json:"version"`
	Templates []templateDef `json:"templates"`
}

type templateDef struct {
	ID          string    `json:"id"`
	Archetype   Archetype `json:"archetype"`
	Prefab      string    `json:"prefab"`
	Weight      *float64  `json:"weight"`
	Anchors     []Anchor  `json:"anchors"`
	Bounds      []Box     `json:"bounds"`
	FixupYawDeg float64   `json:"fixup_yaw_deg"`
}

func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse validates raw against the embedded schema before decoding it.
func Parse(raw []byte) (*Catalog, error) {
	schema, err := jsonschema.CompileString("pieces.schema.json", piecesSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("pieces schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("pieces.json: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("pieces.json: %w", err)
	}

	var f fileV1
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("pieces.json: %w", err)
	}
	defs := make([]PieceTemplate, 0, len(f.Templates))
	seen := map[string]bool{}
	for _, d := range f.Templates {
		if seen[d.ID] {
			return nil, fmt.Errorf("pieces.json: duplicate id %q", d.ID)
		}
		seen[d.ID] = true
		w := 1.0
		if d.Weight != nil {
			w = *d.Weight
		}
		defs = append(defs, PieceTemplate{
			ID:          d.ID,
			Archetype:   d.Archetype,
			Prefab:      d.Prefab,
			Weight:      w,
			Anchors:     d.Anchors,
			Bounds:      d.Bounds,
			FixupYawDeg: d.FixupYawDeg,
		})
	}
	c := New(defs)
	c.Digest = sha256Hex(raw)
	if len(c.Templates) == 0 {
		return c, fmt.Errorf("pieces.json: no usable templates (%d rejected)", len(c.Rejected))
	}
	return c, nil
}

// New builds a catalog, rejecting templates that lack a start or end anchor or carry a
// negative weight. Rejected templates never reach the draw tables.
func New(defs []PieceTemplate) *Catalog {
	c := &Catalog{
		ByID:        map[string]PieceTemplate{},
		byArchetype: map[Archetype][]PieceTemplate{},
	}
	for _, d := range defs {
		if reason := checkTemplate(d); reason != "" {
			c.Rejected = append(c.Rejected, Rejection{ID: d.ID, Reason: reason})
			continue
		}
		c.Templates = append(c.Templates, d)
		c.ByID[d.ID] = d
		c.byArchetype[d.Archetype] = append(c.byArchetype[d.Archetype], d)
	}
	if c.Digest == "" {
		b, _ := json.Marshal(c.Templates)
		c.Digest = sha256Hex(b)
	}
	return c
}

func checkTemplate(d PieceTemplate) string {
	if d.ID == "" {
		return "empty id"
	}
	if d.Archetype == ArchetypeUnknown {
		return "unknown archetype"
	}
	if d.Weight < 0 {
		return "negative weight"
	}
	starts, ends := ResolveAnchors(d.Anchors)
	switch {
	case len(starts) == 0 && len(ends) == 0:
		return "missing start and end anchors"
	case len(starts) == 0:
		return "missing start anchor"
	case len(ends) == 0:
		return "missing end anchor"
	}
	return ""
}

func (c *Catalog) SetLogger(l *log.Logger) { c.log = l }

func (c *Catalog) logf(format string, args ...any) {
	if c.log != nil {
		c.log.Printf(format, args...)
	}
}

func (c *Catalog) TemplatesFor(a Archetype) []PieceTemplate { return c.byArchetype[a] }

func (c *Catalog) Has(a Archetype) bool { return len(c.byArchetype[a]) > 0 }

func (c *Catalog) Straights() []PieceTemplate {
	var out []PieceTemplate
	for _, a := range []Archetype{Straight1, Straight2, Straight3} {
		out = append(out, c.byArchetype[a]...)
	}
	return out
}

func (c *Catalog) Curves() []PieceTemplate {
	return append(append([]PieceTemplate(nil), c.byArchetype[CurveLeft]...), c.byArchetype[CurveRight]...)
}

// DefaultStraight is the substitute for an empty draw: the first Straight1, else any straight.
func (c *Catalog) DefaultStraight() (PieceTemplate, bool) {
	s := c.Straights()
	if len(s) == 0 {
		return PieceTemplate{}, false
	}
	return s[0], true
}

// Source is the random input of weighted draws; Float64 is uniform in [0,1).
type Source interface {
	Float64() float64
}

// WeightedDraw picks the first candidate whose cumulative weight reaches a uniform draw in
// [0,total). Rounding that leaves nothing selected falls to the last candidate. An empty
// candidate list is logged and answered with DefaultStraight.
func (c *Catalog) WeightedDraw(src Source, candidates []PieceTemplate) (PieceTemplate, bool) {
	if len(candidates) == 0 {
		c.logf("weighted draw on empty candidate set; substituting default straight")
		return c.DefaultStraight()
	}
	total := 0.0
	for _, t := range candidates {
		total += t.Weight
	}
	if total <= 0 {
		return candidates[0], true
	}
	u := src.Float64() * total
	cum := 0.0
	for _, t := range candidates {
		cum += t.Weight
		if t.Weight > 0 && cum >= u {
			return t, true
		}
	}
	return candidates[len(candidates)-1], true
}

// Pick draws a template of archetype a.
func (c *Catalog) Pick(a Archetype, src Source) (PieceTemplate, error) {
	ts := c.byArchetype[a]
	if len(ts) == 0 {
		return PieceTemplate{}, fmt.Errorf("%w %s", ErrNoTemplate, a)
	}
	t, _ := c.WeightedDraw(src, ts)
	return t, nil
}

// ReportLine is one row of the catalog validation report.
type ReportLine struct {
	ID        string `json:"id"`
	Archetype string `json:"archetype,omitempty"`
	Prefab    string `json:"prefab,omitempty"`
	OK        bool   `json:"ok"`
	Problem   string `json:"problem,omitempty"`
}

// ValidateReport lists accepted and rejected templates, sorted by id.
func (c *Catalog) ValidateReport() []ReportLine {
	out := make([]ReportLine, 0, len(c.Templates)+len(c.Rejected))
	for _, t := range c.Templates {
		out = append(out, ReportLine{ID: t.ID, Archetype: t.Archetype.String(), Prefab: t.Prefab, OK: true})
	}
	for _, r := range c.Rejected {
		out = append(out, ReportLine{ID: r.ID, OK: false, Problem: r.Reason})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ArchetypeCounts reports template counts per archetype, including zero entries.
func (c *Catalog) ArchetypeCounts() map[string]int {
	out := make(map[string]int, len(AllArchetypes))
	for _, a := range AllArchetypes {
		out[a.String()] = len(c.byArchetype[a])
	}
	return out
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
