// Package policy decides which piece archetype comes next. All sequence memory lives in
// State, owned by the caller; the policy itself holds only configuration.
package policy

import (
	"log"

	"riverrun.ai/internal/sim/catalogs"
)

type Config struct {
	EnforceStraightOrder   bool
	AllowStraightRepeats   bool
	MinStraightBeforeCurve int
	MaxStraightBeforeCurve int
	MaxConsecutiveCurves   int
	BaseCurveChance        float64
}

// State is the sequence-level memory. It persists across evictions.
type State struct {
	ConsecutiveStraights    int                `json:"consecutive_straights"`
	ConsecutiveCurves       int                `json:"consecutive_curves"`
	StraightsUntilNextCurve int                `json:"straights_until_next_curve"`
	Last                    catalogs.Archetype `json:"last"`
	HasLast                 bool               `json:"has_last"`
}

// Source supplies the policy's random draws.
type Source interface {
	Float64() float64
	Range(lo, hi int) int
}

type Policy struct {
	cfg Config
	cat *catalogs.Catalog
	log *log.Logger
}

func New(cfg Config, cat *catalogs.Catalog, logger *log.Logger) *Policy {
	return &Policy{cfg: cfg, cat: cat, log: logger}
}

func (p *Policy) Config() Config { return p.cfg }

func (p *Policy) logf(format string, args ...any) {
	if p.log != nil {
		p.log.Printf(format, args...)
	}
}

// Begin draws the first straight run length of a fresh sequence.
func (p *Policy) Begin(st *State, src Source) {
	st.StraightsUntilNextCurve = src.Range(p.cfg.MinStraightBeforeCurve, p.cfg.MaxStraightBeforeCurve)
}

// Next applies one transition to st and returns the chosen archetype.
func (p *Policy) Next(st *State, src Source) catalogs.Archetype {
	if p.shouldCurve(st, src) && len(p.cat.Curves()) > 0 {
		if a, ok := p.curve(st, src); ok {
			return a
		}
		p.logf("no curve allowed after %s; forcing a straight", st.Last)
		// The refused curve still counts as a straight step.
		st.ConsecutiveCurves--
		st.ConsecutiveStraights++
	}
	return p.straight(st, src)
}

// Alternative re-draws after a rejected placement. Curves are the usual cause of
// self-intersection, so the alternative is always a straight.
func (p *Policy) Alternative(st *State, src Source) catalogs.Archetype {
	return p.straight(st, src)
}

// ForceStraight ignores the ordering rules; it terminates the retry loop.
func (p *Policy) ForceStraight(st *State, src Source) catalogs.Archetype {
	t, ok := p.cat.WeightedDraw(src, p.cat.Straights())
	a := catalogs.Straight1
	if ok {
		a = t.Archetype
	}
	p.commitStraight(st, a)
	return a
}

func (p *Policy) shouldCurve(st *State, src Source) bool {
	if st.ConsecutiveStraights >= st.StraightsUntilNextCurve {
		return true
	}
	if st.ConsecutiveCurves >= p.cfg.MaxConsecutiveCurves {
		return false
	}
	// A voluntary curve either extends a curve run or ends a run that already met the minimum.
	if st.ConsecutiveCurves == 0 && st.ConsecutiveStraights < p.cfg.MinStraightBeforeCurve {
		return false
	}
	return src.Float64() < p.cfg.BaseCurveChance
}

func (p *Policy) curve(st *State, src Source) (catalogs.Archetype, bool) {
	var candidates []catalogs.PieceTemplate
	switch {
	case st.HasLast && st.Last.IsCurve():
		candidates = p.cat.TemplatesFor(st.Last.Opposite())
	default:
		candidates = p.cat.Curves()
	}
	if len(candidates) == 0 {
		return catalogs.ArchetypeUnknown, false
	}
	t, _ := p.cat.WeightedDraw(src, candidates)

	st.ConsecutiveStraights = 0
	st.ConsecutiveCurves++
	st.StraightsUntilNextCurve = src.Range(p.cfg.MinStraightBeforeCurve, p.cfg.MaxStraightBeforeCurve)
	st.Last = t.Archetype
	st.HasLast = true
	return t.Archetype, true
}

func (p *Policy) straight(st *State, src Source) catalogs.Archetype {
	all := p.cat.Straights()
	if len(all) == 0 {
		p.commitStraight(st, catalogs.Straight1)
		return catalogs.Straight1
	}
	candidates := all
	if p.cfg.EnforceStraightOrder && st.HasLast && st.Last.IsStraight() {
		candidates = p.orderedStraights(st.Last)
		if len(candidates) == 0 {
			p.logf("no straight follows %s under ordering rules; using any straight", st.Last)
			candidates = all
		}
	}
	t, _ := p.cat.WeightedDraw(src, candidates)
	p.commitStraight(st, t.Archetype)
	return t.Archetype
}

func (p *Policy) orderedStraights(last catalogs.Archetype) []catalogs.PieceTemplate {
	out := append([]catalogs.PieceTemplate(nil), p.cat.TemplatesFor(last.NextStraight())...)
	if p.cfg.AllowStraightRepeats {
		out = append(out, p.cat.TemplatesFor(last)...)
	}
	return out
}

func (p *Policy) commitStraight(st *State, a catalogs.Archetype) {
	st.ConsecutiveStraights++
	st.ConsecutiveCurves = 0
	st.Last = a
	st.HasLast = true
}
