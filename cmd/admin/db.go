package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type dbQuery struct {
	Limit     int
	Archetype string
	Kind      string
	SinceTick uint64
	LiveOnly  bool
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	riverID := fs.String("river", "", "river id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	archetype := fs.String("archetype", "", "archetype filter (pieces)")
	kind := fs.String("kind", "", "incident kind filter (incidents)")
	since := fs.Uint64("since_tick", 0, "only rows at or after tick (ticks, incidents)")
	live := fs.Bool("live", false, "only pieces not yet evicted (pieces)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*riverID) == "" {
			fmt.Fprintln(os.Stderr, "missing -river or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "rivers", *riverID, "index", "river.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	opts := dbQuery{
		Limit:     *limit,
		Archetype: strings.ToUpper(strings.TrimSpace(*archetype)),
		Kind:      strings.ToUpper(strings.TrimSpace(*kind)),
		SinceTick: *since,
		LiveOnly:  *live,
	}
	if err := runQuery(db, q, opts, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-river RIVER|-db PATH] snapshots|pieces|incidents|ticks|catalogs")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func runQuery(db *sql.DB, q string, o dbQuery, emit func(v any)) error {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,seed,pieces,next_ordinal,draws,catalog_digest FROM snapshots ORDER BY tick DESC LIMIT ?`, o.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick          int64  `json:"tick"`
				Path          string `json:"path"`
				Seed          int64  `json:"seed"`
				Pieces        int    `json:"pieces"`
				NextOrdinal   int64  `json:"next_ordinal"`
				Draws         int64  `json:"draws"`
				CatalogDigest string `json:"catalog_digest"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.Seed, &r.Pieces, &r.NextOrdinal, &r.Draws, &r.CatalogDigest); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "pieces":
		where := []string{"1=1"}
		var args []any
		if o.Archetype != "" {
			where = append(where, "archetype=?")
			args = append(args, o.Archetype)
		}
		if o.LiveOnly {
			where = append(where, "evict_tick IS NULL")
		}
		args = append(args, o.Limit)
		rows, err := db.Query(`SELECT ordinal,template_id,archetype,prefab,spawn_tick,evict_tick FROM pieces WHERE `+strings.Join(where, " AND ")+` ORDER BY ordinal DESC LIMIT ?`, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				r struct {
					Ordinal    int64  `json:"ordinal"`
					TemplateID string `json:"template_id"`
					Archetype  string `json:"archetype"`
					Prefab     string `json:"prefab,omitempty"`
					SpawnTick  int64  `json:"spawn_tick"`
					EvictTick  *int64 `json:"evict_tick,omitempty"`
				}
				prefab sql.NullString
				evict  sql.NullInt64
			)
			if err := rows.Scan(&r.Ordinal, &r.TemplateID, &r.Archetype, &prefab, &r.SpawnTick, &evict); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Prefab = prefab.String
			if evict.Valid {
				v := evict.Int64
				r.EvictTick = &v
			}
			emit(r)
		}
		return rows.Err()

	case "incidents":
		where := []string{"tick>=?"}
		args := []any{o.SinceTick}
		if o.Kind != "" {
			where = append(where, "kind=?")
			args = append(args, o.Kind)
		}
		args = append(args, o.Limit)
		rows, err := db.Query(`SELECT tick,seq,ordinal,kind,template_id,archetype,detail FROM incidents WHERE `+strings.Join(where, " AND ")+` ORDER BY tick DESC, seq DESC LIMIT ?`, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				r struct {
					Tick       int64  `json:"tick"`
					Seq        int    `json:"seq"`
					Ordinal    int64  `json:"ordinal"`
					Kind       string `json:"kind"`
					TemplateID string `json:"template_id,omitempty"`
					Archetype  string `json:"archetype,omitempty"`
					Detail     string `json:"detail"`
				}
				tid, arch sql.NullString
			)
			if err := rows.Scan(&r.Tick, &r.Seq, &r.Ordinal, &r.Kind, &tid, &arch, &r.Detail); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.TemplateID = tid.String
			r.Archetype = arch.String
			emit(r)
		}
		return rows.Err()

	case "ticks":
		rows, err := db.Query(`SELECT tick,digest,distance,player_index,spawns,evicts,incidents FROM ticks WHERE tick>=? ORDER BY tick DESC LIMIT ?`, o.SinceTick, o.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick        int64   `json:"tick"`
				Digest      string  `json:"digest"`
				Distance    float64 `json:"distance"`
				PlayerIndex int     `json:"player_index"`
				Spawns      int     `json:"spawns"`
				Evicts      int     `json:"evicts"`
				Incidents   int     `json:"incidents"`
			}
			if err := rows.Scan(&r.Tick, &r.Digest, &r.Distance, &r.PlayerIndex, &r.Spawns, &r.Evicts, &r.Incidents); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query: %s", q)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
