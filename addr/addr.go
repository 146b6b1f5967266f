// Package addr defines the two address kinds the debugger core works with:
// the position of an instruction or symbol in the on-disk object (Global),
// and the position that same byte occupies once the loader has mapped the
// object into a running process (Relocated). The two are related by a
// single per-debugee mapping offset.
package addr

import "fmt"

// Global is a position in the executable image as linked on disk.
type Global uint64

// Relocate shifts a global address by the debugee's mapping offset,
// producing the address actually present in the running process.
func (g Global) Relocate(offset uint64) Relocated {
	return Relocated(uint64(g) + offset)
}

func (g Global) String() string {
	return fmt.Sprintf("global:0x%x", uint64(g))
}

// Relocated is an address as it appears in the traced process's memory.
type Relocated uint64

// IntoGlobal reverses Relocate: it recovers the on-disk address that,
// shifted by offset, produced this relocated address.
func (r Relocated) IntoGlobal(offset uint64) Global {
	return Global(uint64(r) - offset)
}

func (r Relocated) String() string {
	return fmt.Sprintf("relocated:0x%x", uint64(r))
}

// Kind distinguishes the two address variants a PC value holds before the
// debugee's mapping offset is known.
type Kind int

const (
	// KindGlobal marks a PC that has not yet been relocated (pre-start).
	KindGlobal Kind = iota
	// KindRelocated marks a PC expressed in the running process's space.
	KindRelocated
)

// PC is a breakpoint/program-counter address that may be expressed in
// either address space. Exactly one of the two fields is meaningful,
// selected by Kind. Breakpoint records key off PC so the engine can hold
// addresses set before the debugee starts (Global) alongside addresses
// discovered once it is running (Relocated).
type PC struct {
	Kind      Kind
	Global    Global
	Relocated Relocated
}

// FromGlobal builds a PC in the global address space.
func FromGlobal(g Global) PC { return PC{Kind: KindGlobal, Global: g} }

// FromRelocated builds a PC in the relocated address space.
func FromRelocated(r Relocated) PC { return PC{Kind: KindRelocated, Relocated: r} }

// Relocate converts a global PC into its relocated form. It is a no-op
// (returns itself) if the PC is already relocated.
func (p PC) Relocate(offset uint64) PC {
	if p.Kind == KindRelocated {
		return p
	}
	return FromRelocated(p.Global.Relocate(offset))
}

func (p PC) String() string {
	if p.Kind == KindGlobal {
		return p.Global.String()
	}
	return p.Relocated.String()
}
