package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "riverrun.ai/internal/persistence/log"
	"riverrun.ai/internal/persistence/snapshot"
	"riverrun.ai/internal/sim/catalogs"
	"riverrun.ai/internal/sim/tuning"
	"riverrun.ai/internal/sim/world"
)

var errStop = errors.New("stop")

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (optional; without it the river is rebuilt from -seed)")
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst (optional)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		piecesPath = flag.String("pieces", "", "path to pieces.json (default: <configs>/pieces.json)")
		riverID    = flag.String("river", "river_1", "river id (fresh replays only)")
		seed       = flag.Int64("seed", 1337, "river seed (fresh replays only)")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	pp := *piecesPath
	if pp == "" {
		pp = filepath.Join(*configDir, "pieces.json")
	}

	var snap *snapshot.SnapshotV1
	if *snapPath != "" {
		s, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d river=%s tick=%d seed=%d pieces=%d next_ordinal=%d draws=%d distance=%.2f\n",
			s.Header.Version, s.Header.RiverID, s.Header.Tick, s.Seed,
			len(s.Track.Pieces), s.Track.NextOrdinal, s.Track.Draws, s.Player.Distance)
		snap = &s
		if *eventsDir == "" {
			return
		}
	}
	if *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -events")
		os.Exit(2)
	}

	cat, err := catalogs.Load(pp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalog:", err)
		os.Exit(1)
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if snap == nil || !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}

	w, err := buildWorld(*riverID, *seed, tune, cat, snap)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	checked, err := replayDir(w, *eventsDir, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (last tick=%d)\n", checked, w.CurrentTick()-1)
}

func buildWorld(riverID string, seed int64, tune tuning.Tuning, cat *catalogs.Catalog, snap *snapshot.SnapshotV1) (*world.World, error) {
	cfg := world.ConfigFromTuning(riverID, seed, tune)
	if snap == nil {
		w, err := world.New(cfg, cat, nil)
		if err != nil {
			return nil, fmt.Errorf("world: %w", err)
		}
		return w, nil
	}
	w, err := world.New(world.ConfigForSnapshot(cfg, *snap), cat, nil)
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	if err := w.ImportSnapshot(*snap); err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	return w, nil
}

// replayDir steps w once per logged tick and compares digests. Entries before the world's
// current tick are skipped, so a snapshot resume can replay a log that starts earlier.
func replayDir(w *world.World, eventsDir string, fromTick, toTick uint64) (uint64, error) {
	files, err := persistlog.ListFiles(eventsDir, "events")
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no events files found in %s", eventsDir)
	}

	startTick := w.CurrentTick()
	verifyFrom := fromTick
	if verifyFrom < startTick {
		verifyFrom = startTick
	}

	var checked uint64
	for _, path := range files {
		err := persistlog.ScanJSONL(path, func(line []byte) error {
			var entry world.TickLogEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			if entry.Tick < startTick {
				return nil
			}
			if toTick != 0 && entry.Tick > toTick {
				return errStop
			}
			if entry.Tick != w.CurrentTick() {
				return fmt.Errorf("tick mismatch: want=%d got=%d", w.CurrentTick(), entry.Tick)
			}

			tick, gotDigest := w.StepOnce()
			if tick >= verifyFrom {
				checked++
				if gotDigest != entry.Digest {
					return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
				}
			}
			return nil
		})
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			return checked, err
		}
	}
	return checked, nil
}
