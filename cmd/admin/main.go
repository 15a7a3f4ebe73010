package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"

	"riverrun.ai/internal/observerproto"
	"riverrun.ai/internal/persistence/snapshot"
	"riverrun.ai/internal/sim/catalogs"
	"riverrun.ai/internal/sim/geom"
	"riverrun.ai/internal/sim/randx"
	"riverrun.ai/internal/sim/river/connector"
	"riverrun.ai/internal/sim/river/simple"
	"riverrun.ai/internal/sim/tuning"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "validate":
			validateCmd(os.Args[2:])
			return
		case "schema":
			schemaCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "simple":
			simpleCmd(os.Args[2:])
			return
		case "chain":
			chainCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "window":
			windowCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	riverID := fs.String("river", "", "river id (optional; lists its snapshots)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "rivers")
	if *riverID != "" {
		base = filepath.Join(base, *riverID, "snapshots")
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// validateCmd checks a piece catalog and a tuning file the way the server loads them.
func validateCmd(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	piecesPath := fs.String("pieces", "./configs/pieces.json", "pieces.json path")
	tuningPath := fs.String("tuning", "./configs/tuning.yaml", "tuning.yaml path (empty to skip)")
	_ = fs.Parse(args)

	cat, err := catalogs.Load(*piecesPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "catalog:", err)
		os.Exit(1)
	}
	ok := true
	for _, l := range cat.ValidateReport() {
		if !l.OK {
			ok = false
		}
		printJSON(l)
	}
	printJSON(map[string]any{"catalog_digest": cat.Digest, "archetypes": cat.ArchetypeCounts()})
	if _, has := cat.DefaultStraight(); !has {
		fmt.Fprintln(os.Stderr, "catalog has no straight template; the river cannot recover from conflicts")
		ok = false
	}

	if strings.TrimSpace(*tuningPath) != "" {
		if _, err := tuning.Load(*tuningPath); err != nil {
			fmt.Fprintln(os.Stderr, "tuning:", err)
			ok = false
		}
	}
	if !ok {
		os.Exit(1)
	}
}

// piecesDoc mirrors the on-disk pieces.json layout for schema reflection.
type piecesDoc struct {
	Version   int                      `json:"version"`
	Templates []catalogs.PieceTemplate `json:"templates"`
}

func schemaCmd(args []string) {
	fs := flag.NewFlagSet("schema", flag.ExitOnError)
	kind := fs.String("kind", "pieces", "pieces|snapshot|subscribe|bootstrap|track|event")
	outPath := fs.String("out", "", "output path (default: stdout)")
	_ = fs.Parse(args)

	s, err := buildSchema(*kind)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "marshal schema:", err)
		os.Exit(1)
	}
	b = append(b, '\n')
	if *outPath == "" {
		_, _ = os.Stdout.Write(b)
		return
	}
	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "mkdir:", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outPath, b, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
}

func buildSchema(kind string) (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	var (
		v     any
		title string
	)
	switch kind {
	case "pieces":
		v, title = &piecesDoc{}, "River piece catalog"
	case "snapshot":
		v, title = &snapshot.SnapshotV1{}, "River snapshot (header and body)"
	case "subscribe":
		v, title = &observerproto.SubscribeMsg{}, "Observer SUBSCRIBE"
	case "bootstrap":
		v, title = &observerproto.BootstrapResponse{}, "Observer bootstrap"
	case "track":
		v, title = &observerproto.TrackMsg{}, "Observer TRACK"
	case "event":
		v, title = &observerproto.EventMsg{}, "Observer EVENT"
	default:
		return nil, fmt.Errorf("unknown schema kind %q", kind)
	}
	s := reflector.Reflect(v)
	if s == nil {
		return nil, fmt.Errorf("failed to reflect %s schema", kind)
	}
	s.Title = title
	return s, nil
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	riverID := fs.String("river", "", "river id (used with -tick or to find the latest snapshot)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional)")
	tick := fs.Uint64("tick", 0, "snapshot tick (optional; defaults to latest)")
	headerOnly := fs.Bool("header", false, "print the header only")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*riverID) == "" {
			fmt.Fprintln(os.Stderr, "missing -snapshot or -river")
			os.Exit(2)
		}
		riverDir := filepath.Join(*dataDir, "rivers", *riverID)
		if *tick != 0 {
			path = snapshot.PathFor(filepath.Join(riverDir, "snapshots"), *tick)
		} else {
			path = latestSnapshot(riverDir)
		}
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found")
		os.Exit(2)
	}

	if *headerOnly {
		h, err := snapshot.ReadHeader(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read header:", err)
			os.Exit(1)
		}
		printJSON(h)
		return
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarize(snap))
}

type snapshotSummary struct {
	RiverID       string            `json:"river_id"`
	Tick          uint64            `json:"tick"`
	Seed          int64             `json:"seed"`
	CatalogDigest string            `json:"catalog_digest"`
	Window        snapshot.WindowV1 `json:"window"`
	Player        snapshot.PlayerV1 `json:"player"`
	PlayerIndex   int               `json:"player_index"`
	NextOrdinal   uint64            `json:"next_ordinal"`
	Draws         uint64            `json:"draws"`
	Policy        snapshot.PolicyV1 `json:"policy"`
	Stats         snapshot.StatsV1  `json:"stats"`
	Templates     []string          `json:"templates"`
}

func summarize(s snapshot.SnapshotV1) snapshotSummary {
	out := snapshotSummary{
		RiverID:       s.Header.RiverID,
		Tick:          s.Header.Tick,
		Seed:          s.Seed,
		CatalogDigest: s.CatalogDigest,
		Window:        s.Window,
		Player:        s.Player,
		PlayerIndex:   s.Track.PlayerIndex,
		NextOrdinal:   s.Track.NextOrdinal,
		Draws:         s.Track.Draws,
		Policy:        s.Track.Policy,
		Stats:         s.Track.Stats,
		Templates:     make([]string, 0, len(s.Track.Pieces)),
	}
	for _, p := range s.Track.Pieces {
		out.Templates = append(out.Templates, fmt.Sprintf("%d:%s", p.Ordinal, p.TemplateID))
	}
	return out
}

// simpleCmd runs the ring-buffer river with the player moving along +z and prints each segment
// as it is recycled.
func simpleCmd(args []string) {
	fs := flag.NewFlagSet("simple", flag.ExitOnError)
	seed := fs.Int64("seed", 1, "random seed")
	segments := fs.Int("segments", 5, "ring size")
	length := fs.Float64("length", 2, "segment length")
	width := fs.Float64("width", 0.8, "river width")
	steps := fs.Int("steps", 20, "player steps")
	speed := fs.Float64("speed", 0.5, "player z advance per step")
	_ = fs.Parse(args)

	cfg := simple.DefaultConfig()
	cfg.Segments = *segments
	cfg.SegmentLength = *length
	cfg.RiverWidth = *width

	r, err := simple.New(cfg, randx.New(*seed))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	for _, s := range r.Segments() {
		printSegment(0, s)
	}
	z := 0.0
	r.Advance(z)
	for i := 1; i <= *steps; i++ {
		z += *speed
		n := r.Advance(z)
		if n == 0 {
			continue
		}
		segs := r.Segments()
		if n > len(segs) {
			n = len(segs)
		}
		for _, s := range segs[len(segs)-n:] {
			printSegment(i, s)
		}
	}
}

func printSegment(step int, s simple.Segment) {
	printJSON(map[string]any{
		"step":     step,
		"serial":   s.Serial,
		"kind":     s.Kind.String(),
		"material": s.Kind.Material(),
		"pos":      s.Pos.Array(),
		"starts":   len(s.Starts),
		"ends":     len(s.Ends),
	})
}

// chainCmd lays catalog templates end to end without rotation and prints each placed piece,
// then each template that could not be laid.
func chainCmd(args []string) {
	fs := flag.NewFlagSet("chain", flag.ExitOnError)
	piecesPath := fs.String("pieces", "./configs/pieces.json", "pieces.json path")
	ids := fs.String("templates", "", "comma separated template ids to cycle through (default: all, file order)")
	n := fs.Int("n", 0, "pieces to lay (default: one per template)")
	x := fs.Float64("x", 0, "origin x")
	y := fs.Float64("y", 0, "origin y")
	z := fs.Float64("z", 0, "origin z")
	_ = fs.Parse(args)

	cat, err := catalogs.Load(*piecesPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "catalog:", err)
		os.Exit(1)
	}
	templates, err := chainTemplates(cat, *ids)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	count := *n
	if count <= 0 {
		count = len(templates)
	}
	links, skips := connector.Chain(templates, geom.V(*x, *y, *z), count)
	for _, l := range links {
		printJSON(map[string]any{
			"index":    l.Index,
			"template": l.TemplateID,
			"pos":      l.Pos.Array(),
			"start":    l.Start.Array(),
			"end":      l.End.Array(),
		})
	}
	for _, sk := range skips {
		printJSON(map[string]any{"index": sk.Index, "template": sk.TemplateID, "skipped": sk.Reason})
	}
}

func chainTemplates(cat *catalogs.Catalog, ids string) ([]catalogs.PieceTemplate, error) {
	if strings.TrimSpace(ids) == "" {
		if len(cat.Templates) == 0 {
			return nil, fmt.Errorf("catalog has no templates")
		}
		return cat.Templates, nil
	}
	var out []catalogs.PieceTemplate
	for _, id := range strings.Split(ids, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		t, ok := cat.ByID[id]
		if !ok {
			return nil, fmt.Errorf("unknown template %q", id)
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no templates selected")
	}
	return out, nil
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
