package world

import (
	"fmt"
	"log"
	"sync/atomic"

	"riverrun.ai/internal/persistence/snapshot"
	"riverrun.ai/internal/sim/catalogs"
	"riverrun.ai/internal/sim/player"
	"riverrun.ai/internal/sim/randx"
	"riverrun.ai/internal/sim/river/track"
	"riverrun.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	SnapshotEveryTicks int
	Seed               int64
	PlayerSpeed        float64

	Track track.Config
}

// ConfigFromTuning maps the yaml tuning onto a world config for river id and seed.
func ConfigFromTuning(id string, seed int64, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		Seed:               seed,
		PlayerSpeed:        t.Player.SpeedPerTick,
		Track:              track.ConfigFromTuning(t),
	}
}

// World is a single-threaded authoritative simulation of one river.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig
	cat *catalogs.Catalog
	log *log.Logger

	tick atomic.Uint64

	track  *track.Track
	player *player.Follower

	// Track events raised since the last tick log entry; the initial window's spawns land in
	// tick 0.
	events []track.Event

	stop chan struct{}

	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	observers     map[string]*observerClient

	admin       chan adminSnapshotReq
	adminWindow chan adminWindowReq

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger     TickLogger
	incidentLogger IncidentLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	metrics atomic.Value // WorldMetrics
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type IncidentLogger interface {
	WriteIncident(entry IncidentEntry) error
}

type TickLogEntry struct {
	Tick        uint64        `json:"tick"`
	Distance    float64       `json:"distance"`
	Pos         [3]float64    `json:"pos"`
	PlayerIndex int           `json:"player_index"`
	Events      []track.Event `json:"events,omitempty"`
	Digest      string        `json:"digest"`
}

type IncidentEntry struct {
	Tick       uint64 `json:"tick"`
	Ordinal    uint64 `json:"ordinal"`
	Kind       string `json:"kind"`
	TemplateID string `json:"template_id,omitempty"`
	Archetype  string `json:"archetype,omitempty"`
	Detail     string `json:"detail"`
}

// New builds the track, fills the initial window and puts the player on the middle of the
// piece at the player index.
func New(cfg WorldConfig, cat *catalogs.Catalog, logger *log.Logger) (*World, error) {
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("tick rate must be > 0")
	}
	if cfg.PlayerSpeed < 0 {
		return nil, fmt.Errorf("player speed must be >= 0")
	}
	tr, err := track.New(cfg.Track, cat, randx.New(cfg.Seed), logger)
	if err != nil {
		return nil, err
	}
	w := &World{
		cfg:           cfg,
		cat:           cat,
		log:           logger,
		track:         tr,
		player:        player.NewFollower(cfg.PlayerSpeed, tr.Config().LocateBy),
		stop:          make(chan struct{}),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 64),
		observerLeave: make(chan string, 16),
		observers:     map[string]*observerClient{},
		admin:         make(chan adminSnapshotReq, 8),
		adminWindow:   make(chan adminWindowReq, 8),
	}
	tr.SetSink(track.EventSinkFunc(w.onTrackEvent))

	if err := tr.Initialize(); err != nil {
		w.logf("initial window incomplete: %v", err)
	}
	if tr.Len() == 0 {
		return nil, fmt.Errorf("no piece could be placed; check the catalog")
	}
	pieces := tr.Pieces()
	w.player.Place(pieces, pieces[tr.PlayerIndex()].PathMid())
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetIncidentLogger(l IncidentLogger)            { w.incidentLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                       { return w.observerLeave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) Catalog() *catalogs.Catalog { return w.cat }

// Track exposes the owned track. Callers outside the loop goroutine may use it only while the
// world is stopped (replay, tests).
func (w *World) Track() *track.Track { return w.track }

func (w *World) Player() *player.Follower { return w.player }

func (w *World) logf(format string, args ...any) {
	if w.log != nil {
		w.log.Printf(format, args...)
	}
}

func (w *World) onTrackEvent(e track.Event) {
	w.events = append(w.events, e)
}
