package world

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"riverrun.ai/internal/observerproto"
	"riverrun.ai/internal/persistence/snapshot"
	"riverrun.ai/internal/sim/catalogs"
	"riverrun.ai/internal/sim/river/track"
	"riverrun.ai/internal/sim/tuning"
)

func newTestWorld(t *testing.T, seed int64) *World {
	t.Helper()
	tune, err := tuning.Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	cat, err := catalogs.Load("../../../configs/pieces.json")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	w, err := New(ConfigFromTuning("test", seed, tune), cat, nil)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

type memTickLogger struct{ entries []TickLogEntry }

func (m *memTickLogger) WriteTick(e TickLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func TestDeterminism_SameSeedSameDigest(t *testing.T) {
	w1 := newTestWorld(t, 42)
	w2 := newTestWorld(t, 42)
	for i := 0; i < 400; i++ {
		tick1, d1 := w1.StepOnce()
		tick2, d2 := w2.StepOnce()
		if tick1 != tick2 || d1 != d2 {
			t.Fatalf("digest mismatch at tick %d: %s vs %s", tick1, d1, d2)
		}
	}

	w3 := newTestWorld(t, 43)
	same := true
	for i := 0; i < 400; i++ {
		_, d1 := w1.StepOnce()
		_, d3 := w3.StepOnce()
		if d1 != d3 {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("different seeds produced identical rivers")
	}
}

func TestWorld_KeepsWindowAroundPlayer(t *testing.T) {
	w := newTestWorld(t, 7)
	cfg := w.Track().Config()
	for i := 0; i < 600; i++ {
		w.StepOnce()
		tr := w.Track()
		if tr.PlayerIndex() > cfg.Behind {
			t.Fatalf("tick %d: player index %d > behind %d", i, tr.PlayerIndex(), cfg.Behind)
		}
		if ahead := tr.Len() - 1 - tr.PlayerIndex(); ahead < cfg.Ahead {
			t.Fatalf("tick %d: only %d pieces ahead", i, ahead)
		}
		for j, g := range tr.Gaps() {
			if g > cfg.Tolerance {
				t.Fatalf("tick %d: gap %v after piece %d", i, g, j)
			}
		}
	}
	if w.Metrics().Track.Evicted == 0 {
		t.Fatalf("expected evictions after 600 ticks: %+v", w.Metrics())
	}
	if w.Metrics().Tick != 600 {
		t.Fatalf("metrics tick: %d", w.Metrics().Tick)
	}
}

func TestTickLog_InitialWindowInTickZero(t *testing.T) {
	w := newTestWorld(t, 3)
	l := &memTickLogger{}
	w.SetTickLogger(l)

	want := w.Track().Len()
	_, digest := w.StepOnce()
	if len(l.entries) != 1 {
		t.Fatalf("entries: %d", len(l.entries))
	}
	e := l.entries[0]
	if e.Tick != 0 || e.Digest != digest {
		t.Fatalf("entry: tick=%d digest=%s want %s", e.Tick, e.Digest, digest)
	}
	spawns := 0
	for _, ev := range e.Events {
		if ev.Kind == track.EventSpawn {
			spawns++
		}
	}
	if spawns < want {
		t.Fatalf("tick 0 carries %d spawns, want >= %d", spawns, want)
	}

	w.StepOnce()
	if l.entries[1].Tick != 1 {
		t.Fatalf("second entry tick %d", l.entries[1].Tick)
	}
}

func TestSnapshot_ResumeMatchesUninterrupted(t *testing.T) {
	w1 := newTestWorld(t, 99)
	for i := 0; i < 120; i++ {
		w1.StepOnce()
	}
	snap := w1.ExportSnapshot(119)

	// Through the on-disk format, as the server does it.
	path := snapshot.PathFor(filepath.Join(t.TempDir(), "snapshots"), snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	w2 := newTestWorld(t, 99)
	if err := w2.ImportSnapshot(loaded); err != nil {
		t.Fatalf("import: %v", err)
	}
	if w2.CurrentTick() != 120 {
		t.Fatalf("resume tick %d", w2.CurrentTick())
	}
	for i := 0; i < 200; i++ {
		t1, d1 := w1.StepOnce()
		t2, d2 := w2.StepOnce()
		if t1 != t2 || d1 != d2 {
			t.Fatalf("diverged at tick %d/%d", t1, t2)
		}
	}
}

func TestImportSnapshot_SeedMismatch(t *testing.T) {
	w1 := newTestWorld(t, 1)
	w2 := newTestWorld(t, 2)
	if err := w2.ImportSnapshot(w1.ExportSnapshot(0)); err == nil {
		t.Fatalf("expected seed mismatch")
	}
}

func TestConfigForSnapshot_PinsSeedAndWindow(t *testing.T) {
	w1 := newTestWorld(t, 11)
	snap := w1.ExportSnapshot(0)
	snap.Window.Ahead = 6

	base := w1.Config()
	base.Seed = 1
	base.TickRateHz = 99
	cfg := ConfigForSnapshot(base, snap)
	if cfg.Seed != 11 || cfg.TickRateHz != snap.TickRate || cfg.Track.Ahead != 6 || cfg.ID != "test" {
		t.Fatalf("cfg: %+v", cfg)
	}
}

func TestSnapshotSink_EveryN(t *testing.T) {
	w := newTestWorld(t, 5)
	w.cfg.SnapshotEveryTicks = 10
	sink := make(chan snapshot.SnapshotV1, 4)
	w.SetSnapshotSink(sink)
	for i := 0; i < 21; i++ {
		w.StepOnce()
	}
	if len(sink) != 2 {
		t.Fatalf("snapshots: %d", len(sink))
	}
	if s := <-sink; s.Header.Tick != 10 || s.Header.RiverID != "test" {
		t.Fatalf("first snapshot header %+v", s.Header)
	}
}

func TestObserver_ReceivesTrackAndEvents(t *testing.T) {
	w := newTestWorld(t, 11)
	tickOut := make(chan []byte, 8)
	dataOut := make(chan []byte, 4096)
	w.handleObserverJoin(ObserverJoinRequest{
		SessionID:     "O1",
		TickOut:       tickOut,
		DataOut:       dataOut,
		EveryTicks:    1,
		IncludeBounds: true,
		IncludeEvents: true,
	})

	_, digest := w.StepOnce()
	var msg observerproto.TrackMsg
	if err := json.Unmarshal(<-tickOut, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "TRACK" || msg.Digest != digest || len(msg.Pieces) != w.Track().Len() {
		t.Fatalf("unexpected TRACK: type=%s pieces=%d", msg.Type, len(msg.Pieces))
	}
	if msg.Pieces[0].Bounds == nil {
		t.Fatalf("bounds requested but missing")
	}

	// The initial window's spawns were raised before the observer joined.
	for len(dataOut) == 0 && w.CurrentTick() < 200 {
		w.StepOnce()
	}
	var ev observerproto.EventMsg
	if err := json.Unmarshal(<-dataOut, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != "EVENT" || ev.Kind == "" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	w.handleObserverLeave("O1")
	// Leaving closes the session channels, so draining terminates.
	for range tickOut {
	}
	if len(w.observers) != 0 {
		t.Fatalf("observer not removed")
	}
}

func TestAdminWindow_AppliesAtBoundary(t *testing.T) {
	w := newTestWorld(t, 8)
	ok := make(chan error, 1)
	bad := make(chan error, 1)
	w.handleAdminWindowRequests([]adminWindowReq{
		{Change: WindowChange{Behind: 1, Ahead: 5, TriggerDistance: 1}, Resp: ok},
		{Change: WindowChange{Behind: 1, Ahead: 0}, Resp: bad},
	})
	if err := <-ok; err != nil {
		t.Fatalf("valid change: %v", err)
	}
	if err := <-bad; err == nil {
		t.Fatalf("expected error for ahead=0")
	}
	if c := w.Track().Config(); c.Ahead != 5 || c.Behind != 1 {
		t.Fatalf("window not applied: %+v", c)
	}
	for i := 0; i < 50; i++ {
		w.StepOnce()
	}
	if ahead := w.Track().Len() - 1 - w.Track().PlayerIndex(); ahead < 5 {
		t.Fatalf("ahead %d after resize", ahead)
	}
}
