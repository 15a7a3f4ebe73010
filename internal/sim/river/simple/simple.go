// Package simple is the lightweight river: a fixed ring of segments with generated anchors,
// recycled from the back to the front as the player moves. It keeps no sequence rules.
package simple

import (
	"fmt"
	"math"

	"riverrun.ai/internal/sim/geom"
	"riverrun.ai/internal/sim/randx"
)

type Kind uint8

const (
	Straight Kind = iota
	CurveLeft
	CurveRight
	Fork
	Merge
	Rapid
)

func (k Kind) String() string {
	switch k {
	case Straight:
		return "STRAIGHT"
	case CurveLeft:
		return "CURVE_LEFT"
	case CurveRight:
		return "CURVE_RIGHT"
	case Fork:
		return "FORK"
	case Merge:
		return "MERGE"
	case Rapid:
		return "RAPID"
	}
	return fmt.Sprintf("KIND_%d", uint8(k))
}

// Material is the appearance class a renderer picks for the kind.
func (k Kind) Material() string {
	switch k {
	case CurveLeft, CurveRight:
		return "curve"
	case Fork, Merge:
		return "fork"
	case Rapid:
		return "rapid"
	}
	return "straight"
}

// kindTable is the cumulative percentage table for DrawKind.
var kindTable = []struct {
	below int
	kind  Kind
}{
	{40, Straight},
	{60, CurveLeft},
	{80, CurveRight},
	{90, Rapid},
	{95, Fork},
	{100, Merge},
}

// Source is the random input of the simple river.
type Source interface {
	Intn(n int) int
	FloatRange(lo, hi float64) float64
}

func DrawKind(src Source) Kind {
	r := src.Intn(100)
	for _, e := range kindTable {
		if r < e.below {
			return e.kind
		}
	}
	return Merge
}

type Config struct {
	Segments      int
	SegmentLength float64
	RiverWidth    float64
	Origin        geom.Vec3
}

func DefaultConfig() Config {
	return Config{Segments: 5, SegmentLength: 2, RiverWidth: 0.8}
}

// Segment is one ring slot. Anchors are world positions.
type Segment struct {
	Serial uint64      `json:"serial"`
	Kind   Kind        `json:"kind"`
	Pos    geom.Vec3   `json:"pos"`
	Starts []geom.Vec3 `json:"starts"`
	Ends   []geom.Vec3 `json:"ends"`
}

func (s Segment) PrimaryStart() geom.Vec3 { return s.Starts[0] }
func (s Segment) PrimaryEnd() geom.Vec3   { return s.Ends[0] }

type River struct {
	cfg  Config
	rng  *randx.Stream
	ring []*Segment

	next    geom.Vec3
	serial  uint64
	startZ  float64
	started bool
	index   int
}

func New(cfg Config, rng *randx.Stream) (*River, error) {
	if cfg.Segments < 1 || cfg.SegmentLength <= 0 {
		return nil, fmt.Errorf("simple river: need segments >= 1 and segment_length > 0")
	}
	r := &River{cfg: cfg, rng: rng, next: cfg.Origin}
	for i := 0; i < cfg.Segments; i++ {
		s := &Segment{}
		r.place(s, r.tail())
		r.ring = append(r.ring, s)
	}
	return r, nil
}

func (r *River) tail() *Segment {
	if len(r.ring) == 0 {
		return nil
	}
	return r.ring[len(r.ring)-1]
}

// place re-types s and moves its primary start onto the primary end of tail, or onto the pending
// spawn point when the ring is empty. One of its end anchors becomes the next spawn point.
// Segments never rotate.
func (r *River) place(s, tail *Segment) {
	s.Serial = r.serial
	r.serial++
	s.Kind = DrawKind(r.rng)
	starts, ends := anchorsFor(s.Kind, r.rng, r.cfg.RiverWidth, r.cfg.SegmentLength)

	at := r.next
	if tail != nil {
		at = tail.PrimaryEnd()
	}
	s.Pos = at.Sub(starts[0])
	s.Starts = s.Starts[:0]
	s.Ends = s.Ends[:0]
	for _, p := range starts {
		s.Starts = append(s.Starts, s.Pos.Add(p))
	}
	for _, p := range ends {
		s.Ends = append(s.Ends, s.Pos.Add(p))
	}
	r.next = s.Ends[r.rng.Intn(len(s.Ends))]
}

// anchorsFor generates local anchors for a kind with jittered lateral offsets. Forks carry two
// end anchors and merges two start anchors.
func anchorsFor(k Kind, src Source, width, length float64) (starts, ends []geom.Vec3) {
	half := length / 2
	at := func(x, z float64) geom.Vec3 { return geom.V(x, 0, z) }
	switch k {
	case CurveLeft, CurveRight:
		dir := -1.0
		if k == CurveRight {
			dir = 1
		}
		so := src.FloatRange(-width*0.2, width*0.2)
		eo := so + dir*src.FloatRange(0.3, 0.7)
		return []geom.Vec3{at(so, -half)}, []geom.Vec3{at(eo, half)}
	case Fork:
		so := src.FloatRange(-width*0.1, width*0.1)
		return []geom.Vec3{at(so, -half)}, []geom.Vec3{at(so-0.4, half), at(so+0.4, half)}
	case Merge:
		eo := src.FloatRange(-width*0.1, width*0.1)
		return []geom.Vec3{at(-0.4, -half), at(0.4, -half)}, []geom.Vec3{at(eo, half)}
	case Rapid:
		so := src.FloatRange(-width*0.4, width*0.4)
		eo := src.FloatRange(-width*0.4, width*0.4)
		return []geom.Vec3{at(so, -half)}, []geom.Vec3{at(eo, half)}
	}
	so := src.FloatRange(-width*0.3, width*0.3)
	return []geom.Vec3{at(so, -half)}, []geom.Vec3{at(so+src.FloatRange(-0.2, 0.2), half)}
}

// Advance recycles the oldest segment to the front once per segment length of player progress
// along z. The first call only records the starting z. It returns the number recycled.
func (r *River) Advance(playerZ float64) int {
	if !r.started {
		r.started = true
		r.startZ = playerZ
		return 0
	}
	target := int(math.Floor((playerZ - r.startZ) / r.cfg.SegmentLength))
	n := 0
	for r.index < target {
		old := r.ring[0]
		copy(r.ring, r.ring[1:])
		r.ring = r.ring[:len(r.ring)-1]
		r.place(old, r.tail())
		r.ring = append(r.ring, old)
		r.index++
		n++
	}
	return n
}

// Segments returns copies, oldest first.
func (r *River) Segments() []Segment {
	out := make([]Segment, len(r.ring))
	for i, s := range r.ring {
		out[i] = Segment{
			Serial: s.Serial,
			Kind:   s.Kind,
			Pos:    s.Pos,
			Starts: append([]geom.Vec3(nil), s.Starts...),
			Ends:   append([]geom.Vec3(nil), s.Ends...),
		}
	}
	return out
}

func (r *River) NextSpawn() geom.Vec3 { return r.next }
