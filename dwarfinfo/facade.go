// Package dwarfinfo is the debug-info facade of spec.md §6: the one
// collaborator the core consumes rather than implements. spec.md treats
// the parser that builds this as out of scope ("the core consumes an
// already-parsed handle"); this package is that handle, built on stdlib
// debug/elf + debug/dwarf exactly the way golang-debug/internal/core
// builds its own ("debug/dwarf", "debug/elf // TODO: use
// golang.org/x/debug/elf instead?") — the teacher treats the stdlib
// readers as the baseline and only forks into its own dwarf package when
// it needs loclist/CFI extensions the stdlib doesn't have; this port
// stays on the stdlib baseline and keeps CFA/register recovery
// deliberately simple (frame-pointer chain walking — see unwind package)
// rather than reimplementing full DWARF CFI opcode evaluation, which
// spec.md §1 places on the (external) stack unwinder in the first place.
package dwarfinfo

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"sort"
	"sync"

	"github.com/traceline/dbg/addr"
)

// Symbol is a named address from the ELF symbol table.
type Symbol struct {
	Name string
	Addr addr.Global
}

// VariableDIE is a variable or parameter DIE: name, namespace path, and
// enough of its own entry to resolve its type and location expression
// later (spec.md §3's "variable IR" input).
type VariableDIE struct {
	Name      string
	Namespace []string
	TypeRef   TypeID
	HasType   bool
	Location  []byte
	unitOff   dwarf.Offset // offset of the owning compile unit's root entry
}

// UnitID identifies the compile unit a VariableDIE or Function belongs to,
// for the "(compilation-unit-id, type-reference) → parsed type" cache key
// spec.md §4.5 specifies.
func (v *VariableDIE) UnitID() dwarf.Offset { return v.unitOff }

// Range is an inclusive-exclusive PC range [Begin, End).
type Range struct {
	Begin, End addr.Global
}

func (r Range) contains(pc addr.Global) bool { return pc >= r.Begin && pc < r.End }

// Function is a subprogram DIE: its address ranges and the variable/
// parameter DIEs nested inside it.
type Function struct {
	Name        string
	Ranges      []Range
	FrameBase   []byte // DW_AT_frame_base location expression
	unitOff     dwarf.Offset
	locals      []*VariableDIE
	localRanges []Range // parallel to locals: the lexical-block range each was found in, or a zero Range meaning "whole function"
	params      []*VariableDIE
}

// LowPC is the function's lowest mapped address, used to find its entry
// line (spec.md §4.3 set_breakpoint_at_fn / skip-prologue).
func (f *Function) LowPC() addr.Global {
	low := f.Ranges[0].Begin
	for _, r := range f.Ranges[1:] {
		if r.Begin < low {
			low = r.Begin
		}
	}
	return low
}

// Parameters returns the function's formal-parameter DIEs.
func (f *Function) Parameters() []*VariableDIE { return f.params }

// LocalVariables returns the local-variable DIEs whose lexical scope
// contains pc (or which have no narrower scope than the whole function).
func (f *Function) LocalVariables(pc addr.Global) []*VariableDIE {
	out := make([]*VariableDIE, 0, len(f.locals))
	for i, v := range f.locals {
		r := f.localRanges[i]
		if r.Begin == 0 && r.End == 0 {
			out = append(out, v) // scoped to the whole function
			continue
		}
		if r.contains(pc) {
			out = append(out, v)
		}
	}
	return out
}

// Facade is the concrete debug-info facade: a parsed ELF+DWARF object plus
// the indices spec.md §6 requires queries over (place-from-pc,
// function-by-pc/name, symbol, variables-by-name, line-by-file/line).
type Facade struct {
	elfFile  *elf.File
	dwarf    *dwarf.Data
	sections map[string]uint64

	symbols    []Symbol
	symByName  map[string]*Symbol
	functions  []*Function // sorted by LowPC
	funcByName map[string]*Function
	globals    []*VariableDIE      // file- and namespace-scope variables
	places     map[string][]Place  // file -> sorted places
	allPlaces  []Place             // sorted by address, across all files, for PC lookup

	typeMu sync.Mutex
	types  map[TypeID]*Type
	typeNS map[dwarf.Offset][]string
}

// Load parses path's ELF and DWARF sections into a Facade.
func Load(path string) (*Facade, error) {
	ef, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dwarfinfo: open %s: %w", path, err)
	}
	dd, err := ef.DWARF()
	if err != nil {
		return nil, fmt.Errorf("dwarfinfo: parse DWARF in %s: %w", path, err)
	}

	f := &Facade{
		elfFile:    ef,
		dwarf:      dd,
		sections:   make(map[string]uint64),
		symByName:  make(map[string]*Symbol),
		funcByName: make(map[string]*Function),
		places:     make(map[string][]Place),
		types:      make(map[TypeID]*Type),
		typeNS:     make(map[dwarf.Offset][]string),
	}
	for _, s := range ef.Sections {
		f.sections[s.Name] = s.Addr
	}
	if err := f.loadSymbols(); err != nil {
		return nil, err
	}
	if err := f.loadUnits(); err != nil {
		return nil, err
	}
	if err := f.loadLines(); err != nil {
		return nil, fmt.Errorf("dwarfinfo: load line tables in %s: %w", path, err)
	}
	return f, nil
}

// EntryPoint returns the executable's entry point address.
func (f *Facade) EntryPoint() addr.Global { return addr.Global(f.elfFile.Entry) }

// SectionAddr returns the load address of an ELF section, used by the
// rendezvous/mapping-offset computation.
func (f *Facade) SectionAddr(name string) (uint64, bool) {
	a, ok := f.sections[name]
	return a, ok
}

// Producer returns the DW_AT_producer string of the object's first
// compile unit, or "" if absent. The variable IR builder's evaluation
// context uses this as the toolchain-version guard spec.md §4.5
// describes for thread-local specializations that were reorganized
// across compiler releases.
func (f *Facade) Producer() string {
	r := f.dwarf.Reader()
	for {
		entry, err := r.Next()
		if err != nil || entry == nil {
			return ""
		}
		if entry.Tag == dwarf.TagCompileUnit {
			p, _ := entry.Val(dwarf.AttrProducer).(string)
			return p
		}
	}
}

func (f *Facade) loadSymbols() error {
	syms, err := f.elfFile.Symbols()
	if err != nil {
		// A stripped binary has no symbol table; this is not fatal, it
		// just means FindSymbol always misses.
		return nil
	}
	for _, s := range syms {
		if s.Name == "" {
			continue
		}
		sym := Symbol{Name: s.Name, Addr: addr.Global(s.Value)}
		f.symbols = append(f.symbols, sym)
	}
	for i := range f.symbols {
		f.symByName[f.symbols[i].Name] = &f.symbols[i]
	}
	return nil
}

// FindSymbol implements spec.md §6's find_symbol(name).
func (f *Facade) FindSymbol(name string) (*Symbol, bool) {
	s, ok := f.symByName[name]
	return s, ok
}

// FindFunctionByName implements spec.md §6's find_function_by_name(name).
func (f *Facade) FindFunctionByName(name string) (*Function, bool) {
	fn, ok := f.funcByName[name]
	return fn, ok
}

// FindFunctionByPC implements spec.md §6's find_function_by_pc(global).
func (f *Facade) FindFunctionByPC(pc addr.Global) (*Function, bool) {
	i := sort.Search(len(f.functions), func(i int) bool {
		return f.functions[i].LowPC() > pc
	})
	// functions is sorted by LowPC; the candidate is the last one whose
	// LowPC is <= pc.
	for j := i - 1; j >= 0; j-- {
		fn := f.functions[j]
		for _, r := range fn.Ranges {
			if r.contains(pc) {
				return fn, true
			}
		}
	}
	return nil, false
}

// FindVariables implements spec.md §6's find_variables(name): every
// variable DIE (global or local, across every unit) with the given name.
// Function locals and parameters come first, globals last.
func (f *Facade) FindVariables(name string) []*VariableDIE {
	var out []*VariableDIE
	for _, fn := range f.functions {
		for _, v := range fn.locals {
			if v.Name == name {
				out = append(out, v)
			}
		}
		for _, v := range fn.params {
			if v.Name == name {
				out = append(out, v)
			}
		}
	}
	for _, v := range f.globals {
		if v.Name == name {
			out = append(out, v)
		}
	}
	return out
}
