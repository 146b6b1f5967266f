package breakpoint

import (
	"testing"

	"github.com/traceline/dbg/addr"
	"github.com/traceline/dbg/arch"
)

type fakeMem struct {
	words map[uint64]uint64
}

func newFakeMem() *fakeMem { return &fakeMem{words: make(map[uint64]uint64)} }

func (m *fakeMem) ReadWord(pid int, a uint64) (uint64, error) {
	return m.words[a], nil
}

func (m *fakeMem) WriteWord(pid int, a uint64, v uint64) error {
	m.words[a] = v
	return nil
}

func TestEnableDisableIdempotent(t *testing.T) {
	mem := newFakeMem()
	mem.words[0x1000] = 0x1122334455667788
	tbl := New(mem)
	pc := addr.FromRelocated(0x1000)
	tbl.Set(pc, 1)

	if err := tbl.Enable(pc); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := tbl.Enable(pc); err != nil { // idempotent
		t.Fatalf("second Enable: %v", err)
	}
	if byte(mem.words[0x1000]) != arch.BreakpointOpcode {
		t.Fatalf("expected trap opcode installed, got %#x", mem.words[0x1000])
	}

	if err := tbl.Disable(pc); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if err := tbl.Disable(pc); err != nil { // idempotent
		t.Fatalf("second Disable: %v", err)
	}
	if byte(mem.words[0x1000]) != 0x88 {
		t.Fatalf("expected original byte restored, got %#x", mem.words[0x1000])
	}
}

func TestRelocateAllRekeysAndEnables(t *testing.T) {
	mem := newFakeMem()
	mem.words[0x2000] = 0xdeadbeefcafebabe
	tbl := New(mem)
	tbl.Set(addr.FromGlobal(0x1000), 1) // will relocate to 0x2000 with offset 0x1000

	if err := tbl.RelocateAll(0x1000); err != nil {
		t.Fatalf("RelocateAll: %v", err)
	}
	if !tbl.AllRelocated() {
		t.Fatal("expected all keys relocated")
	}
	if !tbl.Exists(addr.FromRelocated(0x2000)) {
		t.Fatal("expected record rekeyed to relocated address 0x2000")
	}
	rec, _ := tbl.Get(addr.FromRelocated(0x2000))
	if !rec.Enabled {
		t.Fatal("expected relocated breakpoint to be enabled")
	}
}

func TestRemoveOnDisabledIsNoop(t *testing.T) {
	mem := newFakeMem()
	tbl := New(mem)
	pc := addr.FromRelocated(0x3000)
	tbl.Set(pc, 1)
	if err := tbl.Remove(pc); err != nil {
		t.Fatalf("Remove on never-enabled breakpoint: %v", err)
	}
	if tbl.Exists(pc) {
		t.Fatal("expected breakpoint removed")
	}
}
