package track

import (
	"fmt"

	"riverrun.ai/internal/sim/catalogs"
)

// Incident kinds as they appear in events and logs.
const (
	IncidentConfiguration = "CONFIGURATION"
	IncidentGeometry      = "GEOMETRY"
	IncidentConflict      = "PLACEMENT_CONFLICT"
	IncidentTolerance     = "TOLERANCE"
)

// ConfigurationError means the catalog has no template for the archetype the policy asked for.
// The spawn is skipped and the track stops growing until the catalog changes.
type ConfigurationError struct {
	Archetype catalogs.Archetype
	Err       error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: no usable template for %s: %v", e.Archetype, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// GeometryError means an instantiated piece did not resolve a start or end anchor.
type GeometryError struct {
	TemplateID string
	Reason     string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry: template %s: %s", e.TemplateID, e.Reason)
}

// PlacementConflict is an overlap between a candidate and an active piece.
type PlacementConflict struct {
	TemplateID string
	Archetype  catalogs.Archetype
	// Against is the ordinal of the piece that was hit.
	Against uint64
	Attempt int
}

func (e *PlacementConflict) Error() string {
	return fmt.Sprintf("placement conflict: %s (%s) overlaps piece %d on attempt %d", e.TemplateID, e.Archetype, e.Against, e.Attempt)
}

// ToleranceViolation is an alignment residual that had to be corrected.
type ToleranceViolation struct {
	TemplateID string
	Ordinal    uint64
	Residual   float64
	Tolerance  float64
}

func (e *ToleranceViolation) Error() string {
	return fmt.Sprintf("tolerance: piece %d (%s) off by %.4f > %.4f, corrected", e.Ordinal, e.TemplateID, e.Residual, e.Tolerance)
}

func incidentKind(err error) string {
	switch err.(type) {
	case *ConfigurationError:
		return IncidentConfiguration
	case *GeometryError:
		return IncidentGeometry
	case *PlacementConflict:
		return IncidentConflict
	case *ToleranceViolation:
		return IncidentTolerance
	}
	return "UNKNOWN"
}
