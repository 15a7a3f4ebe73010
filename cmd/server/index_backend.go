package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"riverrun.ai/internal/persistence/indexdb"
	"riverrun.ai/internal/persistence/snapshot"
	"riverrun.ai/internal/sim/catalogs"
	"riverrun.ai/internal/sim/tuning"
	"riverrun.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.IncidentLogger
	Close() error
	Stats() indexdb.Stats
	UpsertCatalog(piecesPath string, cat *catalogs.Catalog, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

func openRuntimeIndex(riverDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("RR_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(riverDir, "index", "river.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported RR_INDEX_BACKEND: %s", backend)
	}
}
