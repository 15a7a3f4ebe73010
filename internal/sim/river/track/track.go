// Package track keeps the sliding window of placed pieces around the player. It spawns ahead,
// evicts behind, and owns the policy counters. All methods must be called from one goroutine.
package track

import (
	"errors"
	"fmt"
	"log"
	"math"

	"riverrun.ai/internal/sim/catalogs"
	"riverrun.ai/internal/sim/geom"
	"riverrun.ai/internal/sim/randx"
	"riverrun.ai/internal/sim/river/connector"
	"riverrun.ai/internal/sim/river/overlap"
	"riverrun.ai/internal/sim/river/policy"
	"riverrun.ai/internal/sim/tuning"
)

const (
	LocateByZ    = "z"
	LocateByPath = "path"
)

type Config struct {
	Behind              int
	Ahead               int
	TriggerDistance     float64
	Tolerance           float64
	OverlapShrink       float64
	MaxPlacementRetries int
	EvictHysteresis     int
	// LocateBy selects how OnPlayerAdvanced interprets its argument: LocateByZ compares it with
	// piece origin z, LocateByPath with the distance along the chained anchors.
	LocateBy string
	Origin   geom.Vec3
	Policy   policy.Config
}

func ConfigFromTuning(t tuning.Tuning) Config {
	return Config{
		Behind:              t.Window.SegmentsBehindPlayer,
		Ahead:               t.Window.SegmentsAheadOfPlayer,
		TriggerDistance:     t.Window.GenerationTriggerDistance,
		Tolerance:           t.Connection.Tolerance,
		OverlapShrink:       t.Connection.OverlapShrink,
		MaxPlacementRetries: t.Connection.MaxPlacementRetries,
		EvictHysteresis:     t.Window.EvictHysteresis,
		LocateBy:            t.Window.LocateBy,
		Policy: policy.Config{
			EnforceStraightOrder:   t.Straights.EnforceOrder,
			AllowStraightRepeats:   t.Straights.AllowRepeats,
			MinStraightBeforeCurve: t.Meander.MinStraightBeforeCurve,
			MaxStraightBeforeCurve: t.Meander.MaxStraightBeforeCurve,
			MaxConsecutiveCurves:   t.Meander.MaxConsecutiveCurves,
			BaseCurveChance:        t.Meander.BaseCurveChance,
		},
	}
}

// PlacedPiece is a live piece. Anchors and bounds are in world space.
type PlacedPiece struct {
	Ordinal    uint64             `json:"ordinal"`
	TemplateID string             `json:"template_id"`
	Archetype  catalogs.Archetype `json:"archetype"`
	Prefab     string             `json:"prefab,omitempty"`
	Transform  geom.Transform     `json:"transform"`
	Starts     []geom.Transform   `json:"starts"`
	Ends       []geom.Transform   `json:"ends"`
	Bounds     geom.AABB          `json:"bounds"`
	PathStart  float64            `json:"path_start"`
	Chord      float64            `json:"chord"`
	Corrected  bool               `json:"corrected,omitempty"`
	Forced     bool               `json:"forced,omitempty"`

	inst     Instance
	residual float64
}

// Start and End are the primary anchors.
func (p PlacedPiece) Start() geom.Transform { return p.Starts[0] }
func (p PlacedPiece) End() geom.Transform   { return p.Ends[0] }

// PathMid is the distance along the track to the middle of this piece.
func (p PlacedPiece) PathMid() float64 { return p.PathStart + p.Chord/2 }
func (p PlacedPiece) PathEnd() float64 { return p.PathStart + p.Chord }

func (p PlacedPiece) clone() PlacedPiece {
	p.Starts = append([]geom.Transform(nil), p.Starts...)
	p.Ends = append([]geom.Transform(nil), p.Ends...)
	p.inst = Instance{}
	p.residual = 0
	return p
}

type Stats struct {
	Spawned        uint64 `json:"spawned"`
	Evicted        uint64 `json:"evicted"`
	Recycled       uint64 `json:"recycled"`
	Conflicts      uint64 `json:"conflicts"`
	Forced         uint64 `json:"forced"`
	Corrections    uint64 `json:"corrections"`
	ConfigErrors   uint64 `json:"config_errors"`
	GeometryErrors uint64 `json:"geometry_errors"`
}

type Track struct {
	cfg    Config
	cat    *catalogs.Catalog
	policy *policy.Policy
	guard  overlap.Guard
	inst   Instantiator
	rng    *randx.Stream
	sink   EventSink
	log    *log.Logger

	pieces      []*PlacedPiece
	free        []*PlacedPiece
	playerIndex int
	state       policy.State
	begun       bool
	nextOrdinal uint64

	observed     bool
	lastObserved float64

	stats Stats
}

func New(cfg Config, cat *catalogs.Catalog, rng *randx.Stream, logger *log.Logger) (*Track, error) {
	if cat == nil {
		return nil, fmt.Errorf("track: nil catalog")
	}
	if rng == nil {
		return nil, fmt.Errorf("track: nil random source")
	}
	if cfg.Behind < 0 || cfg.Ahead < 1 {
		return nil, fmt.Errorf("track: need behind >= 0 and ahead >= 1, got %d/%d", cfg.Behind, cfg.Ahead)
	}
	if cfg.MaxPlacementRetries < 0 || cfg.EvictHysteresis < 0 {
		return nil, fmt.Errorf("track: retries and hysteresis must be >= 0")
	}
	switch cfg.LocateBy {
	case "":
		cfg.LocateBy = LocateByZ
	case LocateByZ, LocateByPath:
	default:
		return nil, fmt.Errorf("track: unknown locate_by %q", cfg.LocateBy)
	}
	return &Track{
		cfg:    cfg,
		cat:    cat,
		policy: policy.New(cfg.Policy, cat, logger),
		guard:  overlap.New(cfg.OverlapShrink),
		inst:   TemplateInstantiator{},
		rng:    rng,
		log:    logger,
	}, nil
}

func (t *Track) SetInstantiator(in Instantiator) {
	if in == nil {
		in = TemplateInstantiator{}
	}
	t.inst = in
}

func (t *Track) SetSink(s EventSink) { t.sink = s }

func (t *Track) Config() Config                  { return t.cfg }
func (t *Track) Catalog() *catalogs.Catalog      { return t.cat }
func (t *Track) Len() int                        { return len(t.pieces) }
func (t *Track) PlayerIndex() int                { return t.playerIndex }
func (t *Track) State() policy.State             { return t.state }
func (t *Track) Stats() Stats                    { return t.stats }
func (t *Track) RNG() (seed int64, draws uint64) { return t.rng.Seed(), t.rng.Draws() }

// Pieces returns copies of the active pieces, oldest first.
func (t *Track) Pieces() []PlacedPiece {
	out := make([]PlacedPiece, len(t.pieces))
	for i, p := range t.pieces {
		out[i] = p.clone()
	}
	return out
}

func (t *Track) logf(format string, args ...any) {
	if t.log != nil {
		t.log.Printf(format, args...)
	}
}

func (t *Track) emit(e Event) {
	if t.sink != nil {
		t.sink.TrackEvent(e)
	}
}

func (t *Track) tail() *PlacedPiece {
	if len(t.pieces) == 0 {
		return nil
	}
	return t.pieces[len(t.pieces)-1]
}

func (t *Track) ensureBegun() {
	if !t.begun {
		t.policy.Begin(&t.state, t.rng)
		t.begun = true
	}
}

// Initialize fills the window (behind + 1 + ahead) and puts the player on piece index behind.
// It stops at the first failed spawn; the track is then shorter than the window.
func (t *Track) Initialize() error {
	t.ensureBegun()
	want := t.cfg.Behind + 1 + t.cfg.Ahead
	var err error
	for len(t.pieces) < want {
		if _, err = t.SpawnNext(); err != nil {
			break
		}
	}
	t.playerIndex = t.cfg.Behind
	if t.playerIndex > len(t.pieces)-1 {
		t.playerIndex = len(t.pieces) - 1
	}
	if t.playerIndex < 0 {
		t.playerIndex = 0
	}
	return err
}

// Observe runs OnPlayerAdvanced once the player has moved at least the trigger distance since
// the last run. The first call always runs.
func (t *Track) Observe(pos float64) (bool, error) {
	if t.observed && math.Abs(pos-t.lastObserved) < t.cfg.TriggerDistance {
		return false, nil
	}
	t.observed = true
	t.lastObserved = pos
	return true, t.OnPlayerAdvanced(pos)
}

// OnPlayerAdvanced relocates the player onto the nearest piece, spawns until enough pieces lie
// ahead and evicts while too many lie behind. A failed spawn ends growth for this call.
func (t *Track) OnPlayerAdvanced(pos float64) error {
	if len(t.pieces) == 0 {
		return t.Initialize()
	}
	t.playerIndex = t.locate(pos)

	var err error
	for len(t.pieces)-1-t.playerIndex < t.cfg.Ahead {
		if _, err = t.SpawnNext(); err != nil {
			break
		}
	}
	for t.playerIndex > t.cfg.Behind+t.cfg.EvictHysteresis {
		if !t.EvictOldest() {
			break
		}
	}
	return err
}

func (t *Track) locate(pos float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, p := range t.pieces {
		var d float64
		if t.cfg.LocateBy == LocateByPath {
			d = math.Abs(p.PathMid() - pos)
		} else {
			d = math.Abs(p.Transform.Pos.Z - pos)
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// SpawnNext appends one piece. An overlapping candidate is discarded and the policy redraws a
// straight, at most MaxPlacementRetries times; after that a straight is forced and appended
// without the overlap check. Counters are only advanced by the transition that is kept.
func (t *Track) SpawnNext() (PlacedPiece, error) {
	t.ensureBegun()
	before := t.state
	a := t.policy.Next(&t.state, t.rng)
	forced := false

	for attempt := 0; ; attempt++ {
		tpl, err := t.cat.Pick(a, t.rng)
		if err != nil {
			t.state = before
			return PlacedPiece{}, t.incident(&ConfigurationError{Archetype: a, Err: err}, t.nextOrdinal)
		}

		inst, err := t.inst.Instantiate(tpl)
		if err == nil && (len(inst.Starts) == 0 || len(inst.Ends) == 0) {
			err = &GeometryError{TemplateID: tpl.ID, Reason: "instance resolved no start or end anchor"}
		}
		if err != nil {
			t.inst.Release(inst)
			t.state = before
			var gerr *GeometryError
			if !errors.As(err, &gerr) {
				gerr = &GeometryError{TemplateID: tpl.ID, Reason: err.Error()}
			}
			return PlacedPiece{}, t.incident(gerr, t.nextOrdinal)
		}

		cand := t.place(tpl, inst)
		if !forced {
			if against, hit := t.conflict(cand); hit {
				t.inst.Release(inst)
				t.incident(&PlacementConflict{TemplateID: tpl.ID, Archetype: a, Against: against, Attempt: attempt + 1}, t.nextOrdinal)
				t.state = before
				if attempt < t.cfg.MaxPlacementRetries {
					a = t.policy.Alternative(&t.state, t.rng)
				} else {
					a = t.policy.ForceStraight(&t.state, t.rng)
					forced = true
					t.stats.Forced++
					t.logf("retries exhausted; forcing %s", a)
				}
				continue
			}
		}
		cand.Forced = forced
		return t.commit(cand), nil
	}
}

// place positions an instance against the tail's primary end anchor, or at the origin when the
// track is empty.
func (t *Track) place(tpl catalogs.PieceTemplate, inst Instance) PlacedPiece {
	start := inst.Starts[0]
	var (
		pl        connector.Placement
		pathStart float64
	)
	if tail := t.tail(); tail != nil {
		pl = connector.Align(start, tail.End(), t.cfg.Tolerance)
		pl = connector.ApplyFixup(pl, start, tpl.FixupYawDeg)
		pathStart = tail.PathEnd()
	} else {
		pl = connector.Placement{Transform: geom.Transform{Pos: t.cfg.Origin, Rot: geom.Identity()}}
	}

	p := PlacedPiece{
		TemplateID: tpl.ID,
		Archetype:  tpl.Archetype,
		Prefab:     tpl.Prefab,
		Transform:  pl.Transform,
		PathStart:  pathStart,
		Corrected:  pl.Corrected,
		inst:       inst,
	}
	fillWorld(&p, tpl, inst)
	p.residual = pl.Residual
	return p
}

// fillWorld derives world anchors, bounds and chord from p.Transform.
func fillWorld(p *PlacedPiece, tpl catalogs.PieceTemplate, inst Instance) {
	p.Starts = p.Starts[:0]
	p.Ends = p.Ends[:0]
	for _, s := range inst.Starts {
		p.Starts = append(p.Starts, p.Transform.Compose(s))
	}
	for _, e := range inst.Ends {
		p.Ends = append(p.Ends, p.Transform.Compose(e))
	}
	p.Bounds = overlap.WorldBounds(tpl, p.Transform)
	p.Chord = p.Starts[0].Pos.Dist(p.Ends[0].Pos)
}

// conflict checks cand against every active piece but the tail.
func (t *Track) conflict(cand PlacedPiece) (uint64, bool) {
	if len(t.pieces) < 2 {
		return 0, false
	}
	others := make([]geom.AABB, 0, len(t.pieces)-1)
	for _, p := range t.pieces[:len(t.pieces)-1] {
		others = append(others, p.Bounds)
	}
	i, hit := t.guard.Overlaps(cand.Bounds, others)
	if !hit {
		return 0, false
	}
	return t.pieces[i].Ordinal, true
}

func (t *Track) commit(c PlacedPiece) PlacedPiece {
	c.Ordinal = t.nextOrdinal
	t.nextOrdinal++

	var p *PlacedPiece
	if n := len(t.free); n > 0 {
		p = t.free[n-1]
		t.free = t.free[:n-1]
		starts, ends := p.Starts[:0], p.Ends[:0]
		*p = c
		p.Starts = append(starts, c.Starts...)
		p.Ends = append(ends, c.Ends...)
		t.stats.Recycled++
	} else {
		p = new(PlacedPiece)
		*p = c
	}
	t.pieces = append(t.pieces, p)
	t.stats.Spawned++
	if p.Corrected {
		t.incident(&ToleranceViolation{TemplateID: p.TemplateID, Ordinal: p.Ordinal, Residual: p.residual, Tolerance: t.cfg.Tolerance}, p.Ordinal)
	}
	t.emit(Event{Kind: EventSpawn, Ordinal: p.Ordinal, TemplateID: p.TemplateID, Archetype: p.Archetype.String(), Prefab: p.Prefab})
	return p.clone()
}

// EvictOldest releases index 0 and parks it on the free list. The player index shifts down
// with the remaining pieces.
func (t *Track) EvictOldest() bool {
	if len(t.pieces) == 0 {
		return false
	}
	p := t.pieces[0]
	copy(t.pieces, t.pieces[1:])
	t.pieces[len(t.pieces)-1] = nil
	t.pieces = t.pieces[:len(t.pieces)-1]
	if t.playerIndex > 0 {
		t.playerIndex--
	}

	t.inst.Release(p.inst)
	t.stats.Evicted++
	t.emit(Event{Kind: EventEvict, Ordinal: p.Ordinal, TemplateID: p.TemplateID, Archetype: p.Archetype.String(), Prefab: p.Prefab})

	p.inst = Instance{}
	t.free = append(t.free, p)
	return true
}

// incident counts, logs and publishes err. It returns err so failure paths can return it.
func (t *Track) incident(err error, ord uint64) error {
	kind := incidentKind(err)
	e := Event{Kind: EventIncident, Ordinal: ord, Incident: kind, Detail: err.Error()}
	switch v := err.(type) {
	case *ConfigurationError:
		t.stats.ConfigErrors++
		e.Archetype = v.Archetype.String()
		t.logf("ERROR %v", err)
	case *GeometryError:
		t.stats.GeometryErrors++
		e.TemplateID = v.TemplateID
		t.logf("ERROR %v", err)
	case *PlacementConflict:
		t.stats.Conflicts++
		e.TemplateID = v.TemplateID
		e.Archetype = v.Archetype.String()
		t.logf("%v", err)
	case *ToleranceViolation:
		t.stats.Corrections++
		e.TemplateID = v.TemplateID
		t.logf("WARN %v", err)
	}
	t.emit(e)
	return err
}

// Gaps reports, for each adjacent pair, the distance between the earlier piece's primary end
// anchor and the later piece's primary start anchor.
func (t *Track) Gaps() []float64 {
	if len(t.pieces) < 2 {
		return nil
	}
	out := make([]float64, 0, len(t.pieces)-1)
	for i := 1; i < len(t.pieces); i++ {
		out = append(out, t.pieces[i-1].End().Pos.Dist(t.pieces[i].Start().Pos))
	}
	return out
}

// SetWindow changes the window sizes and trigger distance. The next OnPlayerAdvanced applies
// them.
func (t *Track) SetWindow(behind, ahead int, trigger float64) error {
	if behind < 0 || ahead < 1 || trigger < 0 {
		return fmt.Errorf("track: invalid window %d/%d/%v", behind, ahead, trigger)
	}
	t.cfg.Behind, t.cfg.Ahead, t.cfg.TriggerDistance = behind, ahead, trigger
	return nil
}
