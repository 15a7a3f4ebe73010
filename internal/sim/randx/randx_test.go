package randx

import "testing"

func TestStream_RestoreContinuesSequence(t *testing.T) {
	a := New(42)
	for i := 0; i < 17; i++ {
		a.Uint64()
	}
	b := Restore(a.Seed(), a.Draws())
	for i := 0; i < 32; i++ {
		if x, y := a.Uint64(), b.Uint64(); x != y {
			t.Fatalf("draw %d: %d != %d", i, x, y)
		}
	}
}

func TestStream_Bounds(t *testing.T) {
	s := New(7)
	for i := 0; i < 5000; i++ {
		if f := s.Float64(); f < 0 || f >= 1 {
			t.Fatalf("float out of range: %v", f)
		}
		if n := s.Range(2, 4); n < 2 || n > 4 {
			t.Fatalf("range out of bounds: %d", n)
		}
		if n := s.Intn(3); n < 0 || n >= 3 {
			t.Fatalf("intn out of bounds: %d", n)
		}
	}
	if s.Intn(0) != 0 {
		t.Fatalf("Intn(0) should be 0")
	}
}

func TestStream_RangeHitsBothEnds(t *testing.T) {
	s := New(1)
	seen := map[int]bool{}
	for i := 0; i < 1000; i++ {
		seen[s.Range(2, 4)] = true
	}
	for _, v := range []int{2, 3, 4} {
		if !seen[v] {
			t.Fatalf("value %d never drawn", v)
		}
	}
}
