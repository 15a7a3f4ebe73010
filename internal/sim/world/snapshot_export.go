package world

import (
	"riverrun.ai/internal/persistence/snapshot"
	"riverrun.ai/internal/sim/river/track"
)

// ExportSnapshot captures the river after nowTick has been simulated.
// Snapshot must be called from the world loop goroutine.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	ts := w.track.Export()
	tc := w.track.Config()
	ps := w.player.Export()

	pieces := make([]snapshot.PieceV1, 0, len(ts.Pieces))
	for _, p := range ts.Pieces {
		pieces = append(pieces, snapshot.PieceV1{
			Ordinal:    p.Ordinal,
			TemplateID: p.TemplateID,
			Pos:        p.Transform.Pos.Array(),
			Rot:        p.Transform.Rot.Array(),
			PathStart:  p.PathStart,
			Corrected:  p.Corrected,
			Forced:     p.Forced,
		})
	}

	last := ""
	if ts.State.HasLast {
		last = ts.State.Last.String()
	}
	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: 1,
			RiverID: w.cfg.ID,
			Tick:    nowTick,
		},
		Seed:               w.cfg.Seed,
		TickRate:           w.cfg.TickRateHz,
		CatalogDigest:      w.cat.Digest,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		PlayerSpeed:        w.cfg.PlayerSpeed,
		Window: snapshot.WindowV1{
			Behind:          tc.Behind,
			Ahead:           tc.Ahead,
			TriggerDistance: tc.TriggerDistance,
			EvictHysteresis: tc.EvictHysteresis,
			LocateBy:        tc.LocateBy,
		},
		Player: snapshot.PlayerV1{
			Distance: ps.Distance,
			Pos:      ps.Pos.Array(),
			Ahead:    ps.Ahead,
		},
		Track: snapshot.TrackV1{
			Draws:        ts.Draws,
			NextOrdinal:  ts.NextOrdinal,
			PlayerIndex:  ts.PlayerIndex,
			Begun:        ts.Begun,
			Observed:     ts.Observed,
			LastObserved: ts.LastObserved,
			Policy: snapshot.PolicyV1{
				ConsecutiveStraights:    ts.State.ConsecutiveStraights,
				ConsecutiveCurves:       ts.State.ConsecutiveCurves,
				StraightsUntilNextCurve: ts.State.StraightsUntilNextCurve,
				Last:                    last,
				HasLast:                 ts.State.HasLast,
			},
			Stats:  statsV1(ts.Stats),
			Pieces: pieces,
		},
	}
}

func statsV1(s track.Stats) snapshot.StatsV1 {
	return snapshot.StatsV1{
		Spawned:        s.Spawned,
		Evicted:        s.Evicted,
		Recycled:       s.Recycled,
		Conflicts:      s.Conflicts,
		Forced:         s.Forced,
		Corrections:    s.Corrections,
		ConfigErrors:   s.ConfigErrors,
		GeometryErrors: s.GeometryErrors,
	}
}
