package world

import (
	"context"
	"errors"
)

type adminSnapshotReq struct {
	Resp chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Tick uint64
	Err  string
}

// RequestSnapshot asks the world loop goroutine to enqueue a snapshot.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (w *World) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	if w == nil || w.admin == nil {
		return 0, errors.New("admin snapshot not available")
	}
	resp := make(chan adminSnapshotResp, 1)

	select {
	case w.admin <- adminSnapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *World) handleAdminSnapshotRequests(reqs []adminSnapshotReq) {
	if len(reqs) == 0 {
		return
	}
	cur := w.tick.Load()
	snapTick := uint64(0)
	if cur > 0 {
		snapTick = cur - 1
	}

	errStr := ""
	if w.snapshotSink == nil {
		errStr = "snapshot sink not configured"
	} else {
		select {
		case w.snapshotSink <- w.ExportSnapshot(snapTick):
		default:
			errStr = "snapshot sink backpressure"
		}
	}

	resp := adminSnapshotResp{Tick: snapTick, Err: errStr}
	for _, r := range reqs {
		if r.Resp == nil {
			continue
		}
		select {
		case r.Resp <- resp:
		default:
			// Client timed out; don't block the sim loop.
		}
	}
}

// WindowChange resizes the active window. The new sizes take effect on the next track
// observation.
type WindowChange struct {
	Behind          int     `json:"behind"`
	Ahead           int     `json:"ahead"`
	TriggerDistance float64 `json:"trigger_distance"`
}

type adminWindowReq struct {
	Change WindowChange
	Resp   chan error
}

// RequestWindow asks the world loop goroutine to resize the window at the next tick boundary.
func (w *World) RequestWindow(ctx context.Context, c WindowChange) error {
	if w == nil || w.adminWindow == nil {
		return errors.New("admin window not available")
	}
	resp := make(chan error, 1)

	select {
	case w.adminWindow <- adminWindowReq{Change: c, Resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *World) handleAdminWindowRequests(reqs []adminWindowReq) {
	for _, r := range reqs {
		err := w.track.SetWindow(r.Change.Behind, r.Change.Ahead, r.Change.TriggerDistance)
		if err == nil {
			w.cfg.Track = w.track.Config()
			w.logf("window changed to behind=%d ahead=%d trigger=%v", r.Change.Behind, r.Change.Ahead, r.Change.TriggerDistance)
		}
		if r.Resp == nil {
			continue
		}
		select {
		case r.Resp <- err:
		default:
		}
	}
}
