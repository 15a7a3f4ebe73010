package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"riverrun.ai/internal/persistence/snapshot"
	"riverrun.ai/internal/sim/catalogs"
	"riverrun.ai/internal/sim/river/track"
	"riverrun.ai/internal/sim/tuning"
	"riverrun.ai/internal/sim/world"
)

// SQLiteIndex is a queryable read model of the river: which pieces were placed when, incidents,
// per-tick digests and snapshots. JSONL logs remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropIncident atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqIncident
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	incident world.IncidentEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick          uint64
	Path          string
	Seed          int64
	Pieces        int
	NextOrdinal   uint64
	Draws         uint64
	CatalogDigest string
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropIncidentTotal uint64 `json:"drop_incident_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			distance REAL NOT NULL,
			player_index INTEGER NOT NULL,
			spawns INTEGER NOT NULL,
			evicts INTEGER NOT NULL,
			incidents INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS pieces (
			ordinal INTEGER PRIMARY KEY,
			template_id TEXT NOT NULL,
			archetype TEXT NOT NULL,
			prefab TEXT,
			spawn_tick INTEGER NOT NULL,
			evict_tick INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pieces_archetype ON pieces(archetype, ordinal);`,
		`CREATE TABLE IF NOT EXISTS incidents (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			ordinal INTEGER NOT NULL,
			kind TEXT NOT NULL,
			template_id TEXT,
			archetype TEXT,
			detail TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_kind_tick ON incidents(kind, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			pieces INTEGER NOT NULL,
			next_ordinal INTEGER NOT NULL,
			draws INTEGER NOT NULL,
			catalog_digest TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropIncidentTotal: s.dropIncident.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteIncident(entry world.IncidentEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqIncident, incident: entry}:
	default:
		s.dropIncident.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:          snap.Header.Tick,
		Path:          path,
		Seed:          snap.Seed,
		Pieces:        len(snap.Track.Pieces),
		NextOrdinal:   snap.Track.NextOrdinal,
		Draws:         snap.Track.Draws,
		CatalogDigest: snap.CatalogDigest,
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// UpsertCatalog stores the piece catalog and the tuning actually applied.
func (s *SQLiteIndex) UpsertCatalog(piecesPath string, cat *catalogs.Catalog, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if piecesPath != "" {
		if b, err := os.ReadFile(piecesPath); err == nil {
			rows = append(rows, kv{name: "pieces", digest: cat.Digest, json: b})
		}
	}
	if b, _ := json.Marshal(cat.Rejected); len(cat.Rejected) > 0 {
		rows = append(rows, kv{name: "pieces_rejected", digest: cat.Digest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,distance,player_index,spawns,evicts,incidents) VALUES(?,?,?,?,?,?,?)`)
	insertPiece, _ := s.db.Prepare(`INSERT OR REPLACE INTO pieces(ordinal,template_id,archetype,prefab,spawn_tick) VALUES(?,?,?,?,?)`)
	evictPiece, _ := s.db.Prepare(`UPDATE pieces SET evict_tick=? WHERE ordinal=?`)
	insertIncident, _ := s.db.Prepare(`INSERT OR REPLACE INTO incidents(tick,seq,ordinal,kind,template_id,archetype,detail) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,seed,pieces,next_ordinal,draws,catalog_digest) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertPiece, evictPiece, insertIncident, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastIncidentTick uint64
		incidentSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			var spawns, evicts, incidents int
			for _, ev := range e.Events {
				switch ev.Kind {
				case track.EventSpawn:
					spawns++
					exec(insertPiece, int64(ev.Ordinal), ev.TemplateID, ev.Archetype, ev.Prefab, int64(e.Tick))
				case track.EventEvict:
					evicts++
					exec(evictPiece, int64(e.Tick), int64(ev.Ordinal))
				case track.EventIncident:
					incidents++
				}
			}
			// A failed row rolled the batch back; exec is a no-op until the next request.
			exec(insertTick, int64(e.Tick), e.Digest, e.Distance, e.PlayerIndex, spawns, evicts, incidents)

		case reqIncident:
			in := r.incident
			if in.Tick != lastIncidentTick {
				lastIncidentTick = in.Tick
				incidentSeq = 0
			}
			seq := incidentSeq
			incidentSeq++
			exec(insertIncident, int64(in.Tick), seq, int64(in.Ordinal), in.Kind, in.TemplateID, in.Archetype, in.Detail)

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Seed, sn.Pieces, int64(sn.NextOrdinal), int64(sn.Draws), sn.CatalogDigest)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
