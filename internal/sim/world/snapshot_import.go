package world

import (
	"fmt"

	"riverrun.ai/internal/persistence/snapshot"
	"riverrun.ai/internal/sim/catalogs"
	"riverrun.ai/internal/sim/geom"
	"riverrun.ai/internal/sim/player"
	"riverrun.ai/internal/sim/river/policy"
	"riverrun.ai/internal/sim/river/track"
)

// ImportSnapshot replaces the current in-memory river with the snapshot.
// It sets the world's tick to snapshotTick+1 (the next tick to simulate).
//
// This must be called only when the world is stopped or from the world loop goroutine.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != 1 {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}
	if w.cfg.Seed != s.Seed {
		return fmt.Errorf("snapshot seed mismatch: cfg=%d snap=%d", w.cfg.Seed, s.Seed)
	}
	if lb := w.track.Config().LocateBy; s.Window.LocateBy != "" && s.Window.LocateBy != lb {
		return fmt.Errorf("snapshot locate_by mismatch: cfg=%s snap=%s", lb, s.Window.LocateBy)
	}
	if s.Window.Behind < 0 || s.Window.Ahead < 1 || s.Window.TriggerDistance < 0 {
		return fmt.Errorf("snapshot window invalid: %+v", s.Window)
	}
	if s.CatalogDigest != w.cat.Digest {
		// Pieces are re-resolved by template id; a missing id fails the restore below.
		w.logf("snapshot catalog digest %.12s differs from loaded catalog %.12s", s.CatalogDigest, w.cat.Digest)
	}

	st := policy.State{
		ConsecutiveStraights:    s.Track.Policy.ConsecutiveStraights,
		ConsecutiveCurves:       s.Track.Policy.ConsecutiveCurves,
		StraightsUntilNextCurve: s.Track.Policy.StraightsUntilNextCurve,
		HasLast:                 s.Track.Policy.HasLast,
	}
	if s.Track.Policy.Last != "" {
		a, err := catalogs.ParseArchetype(s.Track.Policy.Last)
		if err != nil {
			return fmt.Errorf("snapshot policy: %w", err)
		}
		st.Last = a
	}

	ts := track.Snapshot{
		Seed:         s.Seed,
		Draws:        s.Track.Draws,
		NextOrdinal:  s.Track.NextOrdinal,
		PlayerIndex:  s.Track.PlayerIndex,
		Begun:        s.Track.Begun,
		State:        st,
		Observed:     s.Track.Observed,
		LastObserved: s.Track.LastObserved,
		Stats: track.Stats{
			Spawned:        s.Track.Stats.Spawned,
			Evicted:        s.Track.Stats.Evicted,
			Recycled:       s.Track.Stats.Recycled,
			Conflicts:      s.Track.Stats.Conflicts,
			Forced:         s.Track.Stats.Forced,
			Corrections:    s.Track.Stats.Corrections,
			ConfigErrors:   s.Track.Stats.ConfigErrors,
			GeometryErrors: s.Track.Stats.GeometryErrors,
		},
		Pieces: make([]track.PieceSnapshot, 0, len(s.Track.Pieces)),
	}
	for _, p := range s.Track.Pieces {
		ts.Pieces = append(ts.Pieces, track.PieceSnapshot{
			Ordinal:    p.Ordinal,
			TemplateID: p.TemplateID,
			Transform:  geom.Transform{Pos: geom.FromArray(p.Pos), Rot: geom.FromArray4(p.Rot)},
			PathStart:  p.PathStart,
			Corrected:  p.Corrected,
			Forced:     p.Forced,
		})
	}
	if err := w.track.Restore(ts); err != nil {
		return err
	}
	_ = w.track.SetWindow(s.Window.Behind, s.Window.Ahead, s.Window.TriggerDistance)

	// Operational parameters: snapshot is authoritative when present.
	if s.SnapshotEveryTicks > 0 {
		w.cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	}
	w.cfg.Track = w.track.Config()
	w.cfg.PlayerSpeed = s.PlayerSpeed
	w.player = player.NewFollower(s.PlayerSpeed, w.cfg.Track.LocateBy)
	w.player.Restore(player.State{
		Distance: s.Player.Distance,
		Pos:      geom.FromArray(s.Player.Pos),
		Ahead:    s.Player.Ahead,
	})
	w.events = nil

	// Resume on the next tick.
	w.tick.Store(s.Header.Tick + 1)
	return nil
}

// ConfigForSnapshot overlays the parameters a snapshot pins (seed, tick rate, player speed and
// window) onto base, so world.New builds a river that ImportSnapshot accepts.
func ConfigForSnapshot(base WorldConfig, s snapshot.SnapshotV1) WorldConfig {
	cfg := base
	if s.Header.RiverID != "" {
		cfg.ID = s.Header.RiverID
	}
	cfg.Seed = s.Seed
	if s.TickRate > 0 {
		cfg.TickRateHz = s.TickRate
	}
	if s.SnapshotEveryTicks > 0 {
		cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	}
	cfg.PlayerSpeed = s.PlayerSpeed
	cfg.Track.Behind = s.Window.Behind
	cfg.Track.Ahead = s.Window.Ahead
	cfg.Track.TriggerDistance = s.Window.TriggerDistance
	cfg.Track.EvictHysteresis = s.Window.EvictHysteresis
	if s.Window.LocateBy != "" {
		cfg.Track.LocateBy = s.Window.LocateBy
	}
	return cfg
}
