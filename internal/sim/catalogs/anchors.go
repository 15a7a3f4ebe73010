package catalogs

import (
	"sort"
	"strings"

	"riverrun.ai/internal/sim/geom"
)

// Anchor is a named connection frame local to a piece's origin.
type Anchor struct {
	Name     string     `json:"name"`
	Pos      [3]float64 `json:"pos"`
	YawDeg   float64    `json:"yaw_deg,omitempty"`
	PitchDeg float64    `json:"pitch_deg,omitempty"`
	RollDeg  float64    `json:"roll_deg,omitempty"`
}

func (a Anchor) Local() geom.Transform {
	return geom.Transform{
		Pos: geom.FromArray(a.Pos),
		Rot: geom.Euler(a.PitchDeg, a.YawDeg, a.RollDeg),
	}
}

const (
	StartPointName = "StartPoint"
	EndPointName   = "EndPoint"
)

var (
	startAliases = []string{"start", "connectionstart"}
	endAliases   = []string{"end", "connectionend"}
)

func matchesRole(name, base string, aliases []string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	b := strings.ToLower(base)
	if n == b || strings.HasPrefix(n, b+"_") {
		return true
	}
	for _, a := range aliases {
		if n == a {
			return true
		}
	}
	return false
}

func IsStartAnchor(name string) bool { return matchesRole(name, StartPointName, startAliases) }
func IsEndAnchor(name string) bool   { return matchesRole(name, EndPointName, endAliases) }

// ResolveAnchors splits anchors into start and end sets (case-insensitive naming convention).
// The exact base name (StartPoint/EndPoint) sorts first and is the primary anchor; the rest
// follow by lowercased name.
func ResolveAnchors(anchors []Anchor) (starts, ends []Anchor) {
	for _, a := range anchors {
		switch {
		case IsStartAnchor(a.Name):
			starts = append(starts, a)
		case IsEndAnchor(a.Name):
			ends = append(ends, a)
		}
	}
	sortPrimaryFirst(starts, StartPointName)
	sortPrimaryFirst(ends, EndPointName)
	return starts, ends
}

func sortPrimaryFirst(list []Anchor, base string) {
	b := strings.ToLower(base)
	sort.SliceStable(list, func(i, j int) bool {
		ni := strings.ToLower(list[i].Name)
		nj := strings.ToLower(list[j].Name)
		if (ni == b) != (nj == b) {
			return ni == b
		}
		return ni < nj
	})
}
