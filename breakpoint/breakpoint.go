// Package breakpoint implements the breakpoint engine of spec.md §4.2: a
// map from address to breakpoint record, install/remove by writing an
// architecture trap instruction, and idempotent enable/disable. Grounded
// on golang-debug/ogle/program/server's breakpoint map
// (map[uint64]breakpoint{pc, origInstr}) and its ptraceCont/ptracePeek/
// ptracePoke install sequence, generalized to the two-address-kind model
// spec.md §3 requires (global before start, relocated after).
package breakpoint

import (
	"fmt"

	"github.com/traceline/dbg/addr"
	"github.com/traceline/dbg/arch"
)

// Memory is the subset of the process facility (spec.md §6) the
// breakpoint engine needs to install and remove traps.
type Memory interface {
	ReadWord(pid int, a uint64) (uint64, error)
	WriteWord(pid int, a uint64, v uint64) error
}

// Record is the breakpoint record of spec.md §3: an address, the owning
// process id, the overwritten original byte, and whether the trap is
// currently installed.
type Record struct {
	Addr    addr.PC
	Pid     int
	Orig    byte
	Enabled bool
}

// Table is the address → breakpoint map. At most one record per address;
// while the debugee is running every key is Relocated, before start every
// key is Global (spec.md §3 invariant). The zero Table is not usable; use New.
type Table struct {
	mem Memory
	m   map[addr.PC]*Record
}

// New creates an empty breakpoint table backed by mem.
func New(mem Memory) *Table {
	return &Table{mem: mem, m: make(map[addr.PC]*Record)}
}

// Set creates a disabled breakpoint record at pc for pid. It does not
// install the trap; call Enable (or rely on the DebugeeStart relocation
// step) to do that. Replaces any existing record at the same address.
func (t *Table) Set(pc addr.PC, pid int) *Record {
	rec := &Record{Addr: pc, Pid: pid}
	t.m[pc] = rec
	return rec
}

// Remove disables (if enabled) and drops the record at pc.
func (t *Table) Remove(pc addr.PC) error {
	rec, ok := t.m[pc]
	if !ok {
		return nil
	}
	if rec.Enabled {
		if err := t.disable(rec); err != nil {
			return err
		}
	}
	delete(t.m, pc)
	return nil
}

// Get returns the record at pc, if any.
func (t *Table) Get(pc addr.PC) (*Record, bool) {
	rec, ok := t.m[pc]
	return rec, ok
}

// Exists reports whether a breakpoint record exists at pc.
func (t *Table) Exists(pc addr.PC) bool {
	_, ok := t.m[pc]
	return ok
}

// IsEnabledAt reports whether pc currently holds an installed trap, the
// condition spec.md §4.2's "step over a breakpoint at the current PC"
// primitive checks before every stepping operation.
func (t *Table) IsEnabledAt(pc addr.PC) bool {
	rec, ok := t.m[pc]
	return ok && rec.Enabled
}

// All returns every record currently in the table.
func (t *Table) All() []*Record {
	out := make([]*Record, 0, len(t.m))
	for _, rec := range t.m {
		out = append(out, rec)
	}
	return out
}

func pcWord(pc addr.PC) uint64 {
	if pc.Kind == addr.KindGlobal {
		return uint64(pc.Global)
	}
	return uint64(pc.Relocated)
}

// Enable installs the trap instruction at rec's address, idempotently:
// calling Enable on an already-enabled record is a no-op.
func (t *Table) Enable(pc addr.PC) error {
	rec, ok := t.m[pc]
	if !ok {
		return fmt.Errorf("breakpoint: no record at %s", pc)
	}
	return t.enable(rec)
}

func (t *Table) enable(rec *Record) error {
	if rec.Enabled {
		return nil
	}
	a := pcWord(rec.Addr)
	word, err := t.mem.ReadWord(rec.Pid, a)
	if err != nil {
		return fmt.Errorf("breakpoint: read word at %s: %w", rec.Addr, err)
	}
	rec.Orig = byte(word)
	patched := (word &^ 0xff) | uint64(arch.BreakpointOpcode)
	if err := t.mem.WriteWord(rec.Pid, a, patched); err != nil {
		return fmt.Errorf("breakpoint: write trap at %s: %w", rec.Addr, err)
	}
	rec.Enabled = true
	return nil
}

// Disable restores the original byte at rec's address, idempotently.
func (t *Table) Disable(pc addr.PC) error {
	rec, ok := t.m[pc]
	if !ok {
		return fmt.Errorf("breakpoint: no record at %s", pc)
	}
	return t.disable(rec)
}

func (t *Table) disable(rec *Record) error {
	if !rec.Enabled {
		return nil
	}
	a := pcWord(rec.Addr)
	word, err := t.mem.ReadWord(rec.Pid, a)
	if err != nil {
		return fmt.Errorf("breakpoint: read word at %s: %w", rec.Addr, err)
	}
	restored := (word &^ 0xff) | uint64(rec.Orig)
	if err := t.mem.WriteWord(rec.Pid, a, restored); err != nil {
		return fmt.Errorf("breakpoint: restore word at %s: %w", rec.Addr, err)
	}
	rec.Enabled = false
	return nil
}

// RelocateAll performs the exactly-once DebugeeStart transition: every
// record currently keyed by a Global address is rekeyed by its Relocated
// counterpart (global + offset) and enabled. After this call every key in
// the table is Relocated — a testable invariant (spec.md §8 property 1).
func (t *Table) RelocateAll(offset uint64) error {
	var toRelocate []*Record
	for pc, rec := range t.m {
		if pc.Kind == addr.KindGlobal {
			toRelocate = append(toRelocate, rec)
			delete(t.m, pc)
		}
	}
	for _, rec := range toRelocate {
		rec.Addr = rec.Addr.Relocate(offset)
		t.m[rec.Addr] = rec
	}
	for _, rec := range t.m {
		if err := t.enable(rec); err != nil {
			return err
		}
	}
	return nil
}

// AllRelocated reports whether every key in the table is currently a
// Relocated address. Exposed for the spec.md §8 testable-property check.
func (t *Table) AllRelocated() bool {
	for pc := range t.m {
		if pc.Kind != addr.KindRelocated {
			return false
		}
	}
	return true
}
