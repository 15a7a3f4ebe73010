package track

import (
	"fmt"

	"riverrun.ai/internal/sim/geom"
	"riverrun.ai/internal/sim/randx"
	"riverrun.ai/internal/sim/river/policy"
)

// Snapshot is everything needed to resume a track exactly: placed pieces, policy counters and
// the random stream position. Anchors and bounds are recomputed from the catalog on Restore.
type Snapshot struct {
	Seed         int64           `json:"seed"`
	Draws        uint64          `json:"draws"`
	NextOrdinal  uint64          `json:"next_ordinal"`
	PlayerIndex  int             `json:"player_index"`
	Begun        bool            `json:"begun"`
	State        policy.State    `json:"state"`
	Observed     bool            `json:"observed"`
	LastObserved float64         `json:"last_observed"`
	Stats        Stats           `json:"stats"`
	Pieces       []PieceSnapshot `json:"pieces"`
}

type PieceSnapshot struct {
	Ordinal    uint64         `json:"ordinal"`
	TemplateID string         `json:"template_id"`
	Transform  geom.Transform `json:"transform"`
	PathStart  float64        `json:"path_start"`
	Corrected  bool           `json:"corrected,omitempty"`
	Forced     bool           `json:"forced,omitempty"`
}

func (t *Track) Export() Snapshot {
	s := Snapshot{
		Seed:         t.rng.Seed(),
		Draws:        t.rng.Draws(),
		NextOrdinal:  t.nextOrdinal,
		PlayerIndex:  t.playerIndex,
		Begun:        t.begun,
		State:        t.state,
		Observed:     t.observed,
		LastObserved: t.lastObserved,
		Stats:        t.stats,
		Pieces:       make([]PieceSnapshot, 0, len(t.pieces)),
	}
	for _, p := range t.pieces {
		s.Pieces = append(s.Pieces, PieceSnapshot{
			Ordinal:    p.Ordinal,
			TemplateID: p.TemplateID,
			Transform:  p.Transform,
			PathStart:  p.PathStart,
			Corrected:  p.Corrected,
			Forced:     p.Forced,
		})
	}
	return s
}

// Restore replaces the track contents with s. Every piece is re-instantiated from the catalog;
// a template that no longer exists fails the whole restore and leaves the track untouched.
func (t *Track) Restore(s Snapshot) error {
	pieces := make([]*PlacedPiece, 0, len(s.Pieces))
	release := func() {
		for _, p := range pieces {
			t.inst.Release(p.inst)
		}
	}
	for _, ps := range s.Pieces {
		tpl, ok := t.cat.ByID[ps.TemplateID]
		if !ok {
			release()
			return fmt.Errorf("track restore: piece %d: unknown template %q", ps.Ordinal, ps.TemplateID)
		}
		inst, err := t.inst.Instantiate(tpl)
		if err == nil && (len(inst.Starts) == 0 || len(inst.Ends) == 0) {
			err = &GeometryError{TemplateID: tpl.ID, Reason: "instance resolved no start or end anchor"}
		}
		if err != nil {
			t.inst.Release(inst)
			release()
			return fmt.Errorf("track restore: piece %d: %w", ps.Ordinal, err)
		}
		p := &PlacedPiece{
			Ordinal:    ps.Ordinal,
			TemplateID: tpl.ID,
			Archetype:  tpl.Archetype,
			Prefab:     tpl.Prefab,
			Transform:  ps.Transform,
			PathStart:  ps.PathStart,
			Corrected:  ps.Corrected,
			Forced:     ps.Forced,
			inst:       inst,
		}
		fillWorld(p, tpl, inst)
		pieces = append(pieces, p)
	}
	if s.PlayerIndex < 0 || (len(pieces) > 0 && s.PlayerIndex >= len(pieces)) {
		release()
		return fmt.Errorf("track restore: player index %d out of range for %d pieces", s.PlayerIndex, len(pieces))
	}

	for _, p := range t.pieces {
		t.inst.Release(p.inst)
	}
	t.pieces = pieces
	t.free = nil
	t.rng = randx.Restore(s.Seed, s.Draws)
	t.nextOrdinal = s.NextOrdinal
	t.playerIndex = s.PlayerIndex
	t.begun = s.Begun
	t.state = s.State
	t.observed = s.Observed
	t.lastObserved = s.LastObserved
	t.stats = s.Stats
	return nil
}
