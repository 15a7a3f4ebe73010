package world

import (
	"encoding/json"

	"riverrun.ai/internal/observerproto"
	"riverrun.ai/internal/sim/river/track"
)

// ObserverJoinRequest registers a read-only observer session that receives:
// - the active window (tickOut)
// - track events (dataOut), when requested
//
// All observer state is maintained by the world loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte
	DataOut   chan []byte

	EveryTicks    int
	IncludeBounds bool
	IncludeEvents bool
}

// ObserverSubscribeRequest updates an existing observer session subscription settings.
type ObserverSubscribeRequest struct {
	SessionID string

	EveryTicks    int
	IncludeBounds bool
	IncludeEvents bool
}

type observerClient struct {
	id      string
	tickOut chan []byte
	dataOut chan []byte

	cfg observerCfg

	// droppedEvents counts event messages lost to a full dataOut.
	droppedEvents uint64
}

type observerCfg struct {
	everyTicks    int
	includeBounds bool
	includeEvents bool
}

func clampEvery(v int) int {
	if v < 1 {
		return 1
	}
	if v > 600 {
		return 600
	}
	return v
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil || req.DataOut == nil {
		return
	}
	if old := w.observers[req.SessionID]; old != nil {
		close(old.tickOut)
		close(old.dataOut)
	}
	w.observers[req.SessionID] = &observerClient{
		id:      req.SessionID,
		tickOut: req.TickOut,
		dataOut: req.DataOut,
		cfg: observerCfg{
			everyTicks:    clampEvery(req.EveryTicks),
			includeBounds: req.IncludeBounds,
			includeEvents: req.IncludeEvents,
		},
	}
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := w.observers[req.SessionID]
	if c == nil {
		return
	}
	c.cfg.everyTicks = clampEvery(req.EveryTicks)
	c.cfg.includeBounds = req.IncludeBounds
	c.cfg.includeEvents = req.IncludeEvents
}

func (w *World) handleObserverLeave(sessionID string) {
	c := w.observers[sessionID]
	if c == nil {
		return
	}
	delete(w.observers, sessionID)
	close(c.tickOut)
	close(c.dataOut)
}

func (w *World) stepObservers(nowTick uint64, events []track.Event, digest string) {
	if len(w.observers) == 0 {
		return
	}
	// Built lazily; most ticks at most two variants are needed.
	var plain, withBounds []byte
	encode := func(bounds bool) []byte {
		b, err := json.Marshal(w.TrackMessage(nowTick, digest, bounds))
		if err != nil {
			w.logf("observer: encode TRACK: %v", err)
			return nil
		}
		return b
	}

	for _, c := range w.observers {
		if c.cfg.includeEvents {
			for _, e := range events {
				b, err := json.Marshal(eventMsg(nowTick, e))
				if err != nil {
					continue
				}
				select {
				case c.dataOut <- b:
				default:
					c.droppedEvents++
				}
			}
		}
		if nowTick%uint64(c.cfg.everyTicks) != 0 {
			continue
		}
		var b []byte
		if c.cfg.includeBounds {
			if withBounds == nil {
				withBounds = encode(true)
			}
			b = withBounds
		} else {
			if plain == nil {
				plain = encode(false)
			}
			b = plain
		}
		if b != nil {
			sendLatest(c.tickOut, b)
		}
	}
}

// TrackMessage renders the active window as an observer TRACK message.
func (w *World) TrackMessage(nowTick uint64, digest string, bounds bool) observerproto.TrackMsg {
	pieces := w.track.Pieces()
	msg := observerproto.TrackMsg{
		Type:            "TRACK",
		ProtocolVersion: observerproto.Version,
		Tick:            nowTick,
		Digest:          digest,
		Player: observerproto.PlayerState{
			Distance: w.player.Distance(),
			Pos:      w.player.Pos().Array(),
			Ahead:    w.player.ProgressAhead(),
		},
		PlayerIndex: w.track.PlayerIndex(),
		Pieces:      make([]observerproto.PieceState, 0, len(pieces)),
	}
	for _, p := range pieces {
		ps := observerproto.PieceState{
			Ordinal:    p.Ordinal,
			TemplateID: p.TemplateID,
			Archetype:  p.Archetype.String(),
			Prefab:     p.Prefab,
			Pos:        p.Transform.Pos.Array(),
			YawDeg:     p.Transform.Rot.YawDeg(),
			Start:      p.Start().Pos.Array(),
			End:        p.End().Pos.Array(),
			Corrected:  p.Corrected,
			Forced:     p.Forced,
		}
		if bounds {
			ps.Bounds = &observerproto.Bounds{Min: p.Bounds.Min.Array(), Max: p.Bounds.Max.Array()}
		}
		msg.Pieces = append(msg.Pieces, ps)
	}
	return msg
}

func eventMsg(nowTick uint64, e track.Event) observerproto.EventMsg {
	return observerproto.EventMsg{
		Type:            "EVENT",
		ProtocolVersion: observerproto.Version,
		Tick:            nowTick,
		Kind:            string(e.Kind),
		Ordinal:         e.Ordinal,
		TemplateID:      e.TemplateID,
		Archetype:       e.Archetype,
		Incident:        e.Incident,
		Detail:          e.Detail,
	}
}
