package unwind

import "testing"

// fakeStack serves ReadWord from a map of stack words and GetRegs from a
// fixed register set, so each test lays out its own frame-pointer chain.
type fakeStack struct {
	words map[uint64]uint64
	regs  map[int]uint64
}

func (s *fakeStack) ReadWord(pid int, a uint64) (uint64, error) { return s.words[a], nil }
func (s *fakeStack) GetRegs(pid int) (map[int]uint64, error)    { return s.regs, nil }

func TestBacktraceStopsAtZeroSavedRBP(t *testing.T) {
	const (
		rbp0   = 0x1000
		retPC0 = 0x4444
		rbp1   = 0x2000
	)
	s := &fakeStack{
		words: map[uint64]uint64{
			rbp0:     0, // outer frame's saved rbp terminates the chain
			rbp0 + 8: 0,
		},
		regs: map[int]uint64{6: rbp0, 16: 0x1234}, // DwarfRBP=6, DwarfRIP=16
	}
	_ = rbp1
	_ = retPC0

	u := New(s, s)
	frames, err := u.Backtrace(1)
	if err != nil {
		t.Fatalf("Backtrace: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected chain to terminate after 1 frame, got %d", len(frames))
	}
	if frames[0].PC != 0x1234 {
		t.Fatalf("unexpected innermost pc: %#x", frames[0].PC)
	}
	if frames[0].CFA != rbp0+16 {
		t.Fatalf("unexpected CFA: %#x", frames[0].CFA)
	}
}

func TestBacktraceWalksChain(t *testing.T) {
	const (
		rbpInner = 0x1000
		rbpOuter = 0x2000
		retAddr  = 0x5555
	)
	s := &fakeStack{
		words: map[uint64]uint64{
			rbpInner:     rbpOuter,
			rbpInner + 8: retAddr,
			rbpOuter:     0,
			rbpOuter + 8: 0,
		},
		regs: map[int]uint64{6: rbpInner, 16: 0x1111},
	}
	u := New(s, s)
	frames, err := u.Backtrace(1)
	if err != nil {
		t.Fatalf("Backtrace: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].PC != 0x1111 || frames[1].PC != retAddr {
		t.Fatalf("unexpected pcs: %#x %#x", frames[0].PC, frames[1].PC)
	}
}

func TestReturnAddrNoFrame(t *testing.T) {
	s := &fakeStack{words: map[uint64]uint64{}, regs: map[int]uint64{6: 0, 16: 0x9}}
	u := New(s, s)
	_, ok, err := u.ReturnAddr(1)
	if err != nil {
		t.Fatalf("ReturnAddr: %v", err)
	}
	if ok {
		t.Fatalf("expected no return address with a zero frame pointer")
	}
}
