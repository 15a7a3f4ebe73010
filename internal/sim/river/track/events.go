package track

type EventKind string

const (
	EventSpawn    EventKind = "SPAWN"
	EventEvict    EventKind = "EVICT"
	EventIncident EventKind = "INCIDENT"
)

// Event notifies collaborators (renderer, material picker, logs) about track changes.
type Event struct {
	Kind       EventKind `json:"kind"`
	Ordinal    uint64    `json:"ordinal"`
	TemplateID string    `json:"template_id,omitempty"`
	Archetype  string    `json:"archetype,omitempty"`
	Prefab     string    `json:"prefab,omitempty"`
	Incident   string    `json:"incident,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

type EventSink interface {
	TrackEvent(e Event)
}

type EventSinkFunc func(e Event)

func (f EventSinkFunc) TrackEvent(e Event) { f(e) }
