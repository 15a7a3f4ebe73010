package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version int    `json:"version"`
	RiverID string `json:"river_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 is a resumable river: the window contents, policy counters, random stream position
// and the player. Anchors and bounds are not stored; they are recomputed from the catalog.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed          int64  `json:"seed"`
	TickRate      int    `json:"tick_rate_hz"`
	CatalogDigest string `json:"catalog_digest"`

	// Operational parameters (captured for deterministic replay/resume).
	SnapshotEveryTicks int      `json:"snapshot_every_ticks,omitempty"`
	PlayerSpeed        float64  `json:"player_speed"`
	Window             WindowV1 `json:"window"`

	Player PlayerV1 `json:"player"`
	Track  TrackV1  `json:"track"`
}

type WindowV1 struct {
	Behind          int     `json:"behind"`
	Ahead           int     `json:"ahead"`
	TriggerDistance float64 `json:"trigger_distance"`
	EvictHysteresis int     `json:"evict_hysteresis"`
	LocateBy        string  `json:"locate_by"`
}

type PlayerV1 struct {
	Distance float64    `json:"distance"`
	Pos      [3]float64 `json:"pos"`
	Ahead    float64    `json:"ahead"`
}

type TrackV1 struct {
	Draws        uint64    `json:"draws"`
	NextOrdinal  uint64    `json:"next_ordinal"`
	PlayerIndex  int       `json:"player_index"`
	Begun        bool      `json:"begun"`
	Observed     bool      `json:"observed"`
	LastObserved float64   `json:"last_observed"`
	Policy       PolicyV1  `json:"policy"`
	Stats        StatsV1   `json:"stats"`
	Pieces       []PieceV1 `json:"pieces"`
}

type PolicyV1 struct {
	ConsecutiveStraights    int    `json:"consecutive_straights"`
	ConsecutiveCurves       int    `json:"consecutive_curves"`
	StraightsUntilNextCurve int    `json:"straights_until_next_curve"`
	Last                    string `json:"last,omitempty"`
	HasLast                 bool   `json:"has_last"`
}

type StatsV1 struct {
	Spawned        uint64 `json:"spawned"`
	Evicted        uint64 `json:"evicted"`
	Recycled       uint64 `json:"recycled"`
	Conflicts      uint64 `json:"conflicts"`
	Forced         uint64 `json:"forced"`
	Corrections    uint64 `json:"corrections"`
	ConfigErrors   uint64 `json:"config_errors"`
	GeometryErrors uint64 `json:"geometry_errors"`
}

type PieceV1 struct {
	Ordinal    uint64     `json:"ordinal"`
	TemplateID string     `json:"template_id"`
	Pos        [3]float64 `json:"pos"`
	Rot        [4]float64 `json:"rot"` // w, x, y, z
	PathStart  float64    `json:"path_start"`
	Corrected  bool       `json:"corrected,omitempty"`
	Forced     bool       `json:"forced,omitempty"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line; gob carries the header too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader reads only the json header line, without decoding the body.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// PathFor is the conventional snapshot file for tick under dir.
func PathFor(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.snap.zst", tick))
}
