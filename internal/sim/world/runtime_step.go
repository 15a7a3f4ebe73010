package world

import (
	"time"

	"riverrun.ai/internal/sim/river/track"
)

func (w *World) step() string {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	// Player first, then the track catches up with it.
	w.player.Step(w.track.Pieces())
	if _, err := w.track.Observe(w.player.Longitudinal()); err != nil {
		w.logf("tick %d: %v", nowTick, err)
	}

	events := w.events
	w.events = nil
	w.logIncidents(nowTick, events)

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{
			Tick:        nowTick,
			Distance:    w.player.Distance(),
			Pos:         w.player.Pos().Array(),
			PlayerIndex: w.track.PlayerIndex(),
			Events:      events,
			Digest:      digest,
		})
	}

	// Observer stream (read-only).
	w.stepObservers(nowTick, events, digest)

	// Snapshot every N ticks, starting after tick 0.
	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		every := uint64(w.cfg.SnapshotEveryTicks)
		if nowTick%every == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)

	w.metrics.Store(WorldMetrics{
		Tick:        nextTick,
		Pieces:      w.track.Len(),
		PlayerIndex: w.track.PlayerIndex(),
		Distance:    w.player.Distance(),
		Ahead:       w.player.ProgressAhead(),
		Observers:   len(w.observers),
		QueueDepths: QueueDepths{
			ObserverJoin: len(w.observerJoin),
			ObserverSub:  len(w.observerSub),
			Admin:        len(w.admin),
		},
		StepMS: stepMS,
		Track:  w.track.Stats(),
	})
	return digest
}

func (w *World) logIncidents(nowTick uint64, events []track.Event) {
	if w.incidentLogger == nil {
		return
	}
	for _, e := range events {
		if e.Kind != track.EventIncident {
			continue
		}
		_ = w.incidentLogger.WriteIncident(IncidentEntry{
			Tick:       nowTick,
			Ordinal:    e.Ordinal,
			Kind:       e.Incident,
			TemplateID: e.TemplateID,
			Archetype:  e.Archetype,
			Detail:     e.Detail,
		})
	}
}
