package world

import "riverrun.ai/internal/sim/river/track"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Pieces      int     `json:"pieces"`
	PlayerIndex int     `json:"player_index"`
	Distance    float64 `json:"distance"`
	Ahead       float64 `json:"ahead"`
	Observers   int     `json:"observers"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	Track track.Stats `json:"track"`
}

type QueueDepths struct {
	ObserverJoin int `json:"observer_join"`
	ObserverSub  int `json:"observer_sub"`
	Admin        int `json:"admin"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
