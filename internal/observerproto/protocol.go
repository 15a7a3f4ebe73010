package observerproto

// Version is the observer protocol version.
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// EveryTicks thins the TRACK stream; 1 sends every tick.
	EveryTicks    int  `json:"every_ticks"`
	IncludeBounds bool `json:"include_bounds,omitempty"`
	IncludeEvents bool `json:"include_events,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	RiverID         string      `json:"river_id"`
	Tick            uint64      `json:"tick"`
	RiverParams     RiverParams `json:"river_params"`
	Archetypes      []string    `json:"archetypes"`
	CatalogDigest   string      `json:"catalog_digest"`
	Templates       int         `json:"templates"`
}

type RiverParams struct {
	TickRateHz      int     `json:"tick_rate_hz"`
	Seed            int64   `json:"seed"`
	Behind          int     `json:"behind"`
	Ahead           int     `json:"ahead"`
	TriggerDistance float64 `json:"trigger_distance"`
	LocateBy        string  `json:"locate_by"`
	Tolerance       float64 `json:"tolerance"`
}

// Server -> Client. The whole active window, sent every EveryTicks ticks.
type TrackMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Digest          string `json:"digest"`

	Player      PlayerState  `json:"player"`
	PlayerIndex int          `json:"player_index"`
	Pieces      []PieceState `json:"pieces"`
}

type PlayerState struct {
	Distance float64    `json:"distance"`
	Pos      [3]float64 `json:"pos"`
	Ahead    float64    `json:"ahead"`
}

type PieceState struct {
	Ordinal    uint64     `json:"ordinal"`
	TemplateID string     `json:"template_id"`
	Archetype  string     `json:"archetype"`
	Prefab     string     `json:"prefab,omitempty"`
	Pos        [3]float64 `json:"pos"`
	YawDeg     float64    `json:"yaw_deg"`
	Start      [3]float64 `json:"start"`
	End        [3]float64 `json:"end"`
	Corrected  bool       `json:"corrected,omitempty"`
	Forced     bool       `json:"forced,omitempty"`

	Bounds *Bounds `json:"bounds,omitempty"`
}

type Bounds struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

// Server -> Client. Spawn, evict and incident notifications, only with include_events.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Kind       string `json:"kind"`
	Ordinal    uint64 `json:"ordinal"`
	TemplateID string `json:"template_id,omitempty"`
	Archetype  string `json:"archetype,omitempty"`
	Incident   string `json:"incident,omitempty"`
	Detail     string `json:"detail,omitempty"`
}
