package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistlog "riverrun.ai/internal/persistence/log"
	"riverrun.ai/internal/persistence/snapshot"
	"riverrun.ai/internal/sim/catalogs"
	"riverrun.ai/internal/sim/tuning"
	"riverrun.ai/internal/sim/world"
	"riverrun.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		riverID    = flag.String("river", "river_1", "river id")
		seed       = flag.Int64("seed", 1337, "river seed (used only when starting a fresh river)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		piecesPath = flag.String("pieces", "", "path to pieces.json (default: <configs>/pieces.json)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (ticks/pieces/incidents + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	pp := strings.TrimSpace(*piecesPath)
	if pp == "" {
		pp = filepath.Join(*configDir, "pieces.json")
	}
	cat, err := catalogs.Load(pp)
	if err != nil {
		logger.Fatalf("load catalog: %v", err)
	}
	cat.SetLogger(log.New(os.Stdout, "[catalog] ", log.LstdFlags|log.Lmicroseconds))
	for _, r := range cat.Rejected {
		logger.Printf("catalog: rejected template %q: %s", r.ID, r.Reason)
	}

	riverDir := filepath.Join(*dataDir, "rivers", *riverID)
	_ = os.MkdirAll(riverDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(riverDir)
	}

	// Load tuning (required for a fresh river; optional for snapshot resumes).
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if snapshotToLoad == "" {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
		// Resume fallback: the snapshot pins the window and the player speed.
		if os.IsNotExist(tuneErr) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(riverDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalog(pp, cat, tune); err != nil {
			logger.Printf("index backend: upsert catalog: %v", err)
		}
	}

	worldLog := log.New(os.Stdout, "[river] ", log.LstdFlags|log.Lmicroseconds)
	cfg := world.ConfigFromTuning(*riverID, *seed, tune)

	var w *world.World
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.RiverID != "" && snap.Header.RiverID != *riverID {
			logger.Fatalf("snapshot river id mismatch: flag=%s snap=%s", *riverID, snap.Header.RiverID)
		}
		w, err = world.New(world.ConfigForSnapshot(cfg, snap), cat, worldLog)
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	} else {
		w, err = world.New(cfg, cat, worldLog)
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(riverDir)
	incidentLog := persistlog.NewIncidentLogger(riverDir)
	defer tickLog.Close()
	defer incidentLog.Close()
	if idx != nil {
		w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
		w.SetIncidentLogger(multiIncidentLogger{a: incidentLog, b: idx})
	} else {
		w.SetTickLogger(tickLog)
		w.SetIncidentLogger(incidentLog)
	}

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := snapshot.PathFor(filepath.Join(riverDir, "snapshots"), snap.Header.Tick)
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
			}
		}
	}()

	logger.Printf("river=%s seed=%d pieces=%d tick=%d", *riverID, w.Config().Seed, w.Track().Len(), w.CurrentTick())
	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, *riverID, w, idx)
	})

	enableAdminHTTP := envBool("RR_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("RR_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				RiverID string             `json:"river_id"`
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				RiverID: *riverID,
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			tick, err := w.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})
		mux.HandleFunc("/admin/v1/window", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			var c world.WindowChange
			if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&c); err != nil {
				http.Error(rw, "bad window json", http.StatusBadRequest)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			rw.Header().Set("Content-Type", "application/json")
			if err := w.RequestWindow(ctx2, c); err != nil {
				rw.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "window": c})
		})

		obsSrv := observer.NewServer(w, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (RR_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (RR_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func writeMetrics(rw io.Writer, riverID string, w *world.World, idx runtimeIndex) {
	m := w.Metrics()
	tick := w.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP riverrun_tick Current river tick.\n")
	fmt.Fprintf(rw, "# TYPE riverrun_tick gauge\n")
	fmt.Fprintf(rw, "riverrun_tick{river=%q} %d\n", riverID, tick)

	fmt.Fprintf(rw, "# HELP riverrun_pieces Pieces in the active window.\n")
	fmt.Fprintf(rw, "# TYPE riverrun_pieces gauge\n")
	fmt.Fprintf(rw, "riverrun_pieces{river=%q} %d\n", riverID, m.Pieces)

	fmt.Fprintf(rw, "# HELP riverrun_player_index Window index of the piece under the player.\n")
	fmt.Fprintf(rw, "# TYPE riverrun_player_index gauge\n")
	fmt.Fprintf(rw, "riverrun_player_index{river=%q} %d\n", riverID, m.PlayerIndex)

	fmt.Fprintf(rw, "# HELP riverrun_player_distance Distance travelled along the river.\n")
	fmt.Fprintf(rw, "# TYPE riverrun_player_distance gauge\n")
	fmt.Fprintf(rw, "riverrun_player_distance{river=%q} %.3f\n", riverID, m.Distance)

	fmt.Fprintf(rw, "# HELP riverrun_player_ahead Path length placed ahead of the player.\n")
	fmt.Fprintf(rw, "# TYPE riverrun_player_ahead gauge\n")
	fmt.Fprintf(rw, "riverrun_player_ahead{river=%q} %.3f\n", riverID, m.Ahead)

	fmt.Fprintf(rw, "# HELP riverrun_observers Connected observers.\n")
	fmt.Fprintf(rw, "# TYPE riverrun_observers gauge\n")
	fmt.Fprintf(rw, "riverrun_observers{river=%q} %d\n", riverID, m.Observers)

	fmt.Fprintf(rw, "# HELP riverrun_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE riverrun_queue_depth gauge\n")
	fmt.Fprintf(rw, "riverrun_queue_depth{river=%q,queue=%q} %d\n", riverID, "observer_join", m.QueueDepths.ObserverJoin)
	fmt.Fprintf(rw, "riverrun_queue_depth{river=%q,queue=%q} %d\n", riverID, "observer_sub", m.QueueDepths.ObserverSub)
	fmt.Fprintf(rw, "riverrun_queue_depth{river=%q,queue=%q} %d\n", riverID, "admin", m.QueueDepths.Admin)

	fmt.Fprintf(rw, "# HELP riverrun_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE riverrun_step_ms gauge\n")
	fmt.Fprintf(rw, "riverrun_step_ms{river=%q} %.3f\n", riverID, m.StepMS)

	fmt.Fprintf(rw, "# HELP riverrun_track_total Track counters since the river began.\n")
	fmt.Fprintf(rw, "# TYPE riverrun_track_total counter\n")
	fmt.Fprintf(rw, "riverrun_track_total{river=%q,counter=%q} %d\n", riverID, "spawned", m.Track.Spawned)
	fmt.Fprintf(rw, "riverrun_track_total{river=%q,counter=%q} %d\n", riverID, "evicted", m.Track.Evicted)
	fmt.Fprintf(rw, "riverrun_track_total{river=%q,counter=%q} %d\n", riverID, "recycled", m.Track.Recycled)
	fmt.Fprintf(rw, "riverrun_track_total{river=%q,counter=%q} %d\n", riverID, "conflicts", m.Track.Conflicts)
	fmt.Fprintf(rw, "riverrun_track_total{river=%q,counter=%q} %d\n", riverID, "forced", m.Track.Forced)
	fmt.Fprintf(rw, "riverrun_track_total{river=%q,counter=%q} %d\n", riverID, "corrections", m.Track.Corrections)
	fmt.Fprintf(rw, "riverrun_track_total{river=%q,counter=%q} %d\n", riverID, "config_errors", m.Track.ConfigErrors)
	fmt.Fprintf(rw, "riverrun_track_total{river=%q,counter=%q} %d\n", riverID, "geometry_errors", m.Track.GeometryErrors)

	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP riverrun_index_queue_depth Index writer queue depth.\n")
	fmt.Fprintf(rw, "# TYPE riverrun_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "riverrun_index_queue_depth{river=%q} %d\n", riverID, s.QueueDepth)

	fmt.Fprintf(rw, "# HELP riverrun_index_dropped_total Index writes dropped on a full queue.\n")
	fmt.Fprintf(rw, "# TYPE riverrun_index_dropped_total counter\n")
	fmt.Fprintf(rw, "riverrun_index_dropped_total{river=%q,kind=%q} %d\n", riverID, "tick", s.DropTickTotal)
	fmt.Fprintf(rw, "riverrun_index_dropped_total{river=%q,kind=%q} %d\n", riverID, "incident", s.DropIncidentTotal)
	fmt.Fprintf(rw, "riverrun_index_dropped_total{river=%q,kind=%q} %d\n", riverID, "snapshot", s.DropSnapshotTotal)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(riverDir string) string {
	dir := filepath.Join(riverDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(name string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiIncidentLogger struct {
	a world.IncidentLogger
	b world.IncidentLogger
}

func (m multiIncidentLogger) WriteIncident(entry world.IncidentEntry) error {
	if m.a != nil {
		_ = m.a.WriteIncident(entry)
	}
	if m.b != nil {
		_ = m.b.WriteIncident(entry)
	}
	return nil
}
