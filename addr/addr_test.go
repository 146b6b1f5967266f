package addr

import "testing"

func TestRoundTrip(t *testing.T) {
	offsets := []uint64{0, 0x1000, 0x555500000000}
	values := []Global{0, 1, 0x401020, 0xdeadbeef}

	for _, offset := range offsets {
		for _, g := range values {
			r := g.Relocate(offset)
			got := r.IntoGlobal(offset)
			if got != g {
				t.Errorf("Relocate/IntoGlobal round trip failed: offset=%#x global=%#x got=%#x", offset, uint64(g), uint64(got))
			}
		}
	}
}

func TestPCRelocateIdempotent(t *testing.T) {
	p := FromGlobal(0x401000)
	r1 := p.Relocate(0x1000)
	r2 := r1.Relocate(0x2000) // second Relocate must be a no-op once already relocated
	if r1 != r2 {
		t.Errorf("Relocate on an already-relocated PC must be idempotent, got %v then %v", r1, r2)
	}
	if r1.Kind != KindRelocated {
		t.Errorf("expected KindRelocated, got %v", r1.Kind)
	}
}
