package randx

// Stream is a counter-based random source: draw n is mix64(seed, n). Its full state is
// (seed, draws), so snapshots can resume the exact sequence.
type Stream struct {
	seed  int64
	draws uint64
}

func New(seed int64) *Stream { return &Stream{seed: seed} }

// Restore resumes a stream after draws values were consumed.
func Restore(seed int64, draws uint64) *Stream { return &Stream{seed: seed, draws: draws} }

func (s *Stream) Seed() int64   { return s.seed }
func (s *Stream) Draws() uint64 { return s.draws }

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func (s *Stream) Uint64() uint64 {
	v := uint64(s.seed) ^ (s.draws * 0xc2b2ae3d27d4eb4f)
	s.draws++
	return mix64(v)
}

// Float64 is uniform in [0,1).
func (s *Stream) Float64() float64 {
	return float64(s.Uint64()>>11) / (1 << 53)
}

// Intn is uniform in [0,n); n <= 0 returns 0.
func (s *Stream) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.Uint64() % uint64(n))
}

// Range is uniform in [lo,hi] inclusive.
func (s *Stream) Range(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + s.Intn(hi-lo+1)
}

// FloatRange is uniform in [lo,hi).
func (s *Stream) FloatRange(lo, hi float64) float64 {
	return lo + (hi-lo)*s.Float64()
}
