// Package overlap rejects placements whose bounds intersect pieces already in the track.
package overlap

import (
	"riverrun.ai/internal/sim/catalogs"
	"riverrun.ai/internal/sim/geom"
)

type Guard struct {
	// Shrink scales each candidate box about its center so that faces which merely touch do not
	// count as overlap.
	Shrink float64
}

func New(shrink float64) Guard {
	if shrink <= 0 || shrink > 1 {
		shrink = 1
	}
	return Guard{Shrink: shrink}
}

// Overlaps reports the index of the first box in others that candidate intersects. The caller
// leaves the immediate predecessor out of others.
func (g Guard) Overlaps(candidate geom.AABB, others []geom.AABB) (int, bool) {
	c := candidate.Scaled(g.Shrink)
	for i, o := range others {
		if c.Intersects(o.Scaled(g.Shrink)) {
			return i, true
		}
	}
	return -1, false
}

// WorldBounds is the template's renderable volume under t. A template without bounds falls back
// to a unit box at the piece origin.
func WorldBounds(tpl catalogs.PieceTemplate, t geom.Transform) geom.AABB {
	local, ok := tpl.LocalBounds()
	if !ok {
		return geom.UnitBoxAt(t.Pos)
	}
	return local.Transformed(t)
}
