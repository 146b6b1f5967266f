package debugger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/traceline/dbg/addr"
	"github.com/traceline/dbg/dwarfinfo"
	"github.com/traceline/dbg/errkind"
)

// SetBreakpoint implements spec.md §6's set_breakpoint(address |
// function-name | file:line). It is the one facade operation that works
// before Start: a breakpoint planted pre-start is recorded at its global
// address and relocated automatically at the DebugeeStart transition.
func (d *Debugger) SetBreakpoint(spec string) (addr.PC, error) {
	global, err := d.resolveBreakpointSpec(spec)
	if err != nil {
		return addr.PC{}, err
	}

	started := d.ctrl != nil && d.ctrl.InProgress()
	var pc addr.PC
	pid := 0
	if started {
		offset, _ := d.ctrl.MappingOffset()
		pc = addr.FromRelocated(global.Relocate(offset))
		pid = d.threads.ProcPid()
	} else {
		pc = addr.FromGlobal(global)
	}

	d.bp.Set(pc, pid)
	if started {
		if err := d.bp.Enable(pc); err != nil {
			return addr.PC{}, err
		}
	}
	return pc, nil
}

// RemoveBreakpoint implements spec.md §6's remove_breakpoint(address):
// pc must be the value SetBreakpoint returned.
func (d *Debugger) RemoveBreakpoint(pc addr.PC) error {
	return d.bp.Remove(pc)
}

// resolveBreakpointSpec parses the three forms set_breakpoint accepts, in
// the order spec.md §6 lists them: a raw address, a function name (with
// prologue skipped to its first statement, the way GDB/LLDB's "break
// func" does), or a file:line pair resolved through the line table.
func (d *Debugger) resolveBreakpointSpec(spec string) (addr.Global, error) {
	if n, ok := parseAddress(spec); ok {
		return addr.Global(n), nil
	}
	if file, lineStr, ok := strings.Cut(spec, ":"); ok {
		if line, err := strconv.ParseUint(lineStr, 10, 64); err == nil {
			place, ok := d.di.FindStmtLine(file, line)
			if !ok {
				return 0, fmt.Errorf("debugger: no statement at %s:%d", file, line)
			}
			return place.Address, nil
		}
	}
	fn, ok := d.di.FindFunctionByName(spec)
	if !ok {
		return 0, &errkind.FunctionNotFound{Query: spec}
	}
	return skipPrologue(d.di, fn), nil
}

func parseAddress(spec string) (uint64, bool) {
	if hex, ok := strings.CutPrefix(spec, "0x"); ok {
		n, err := strconv.ParseUint(hex, 16, 64)
		return n, err == nil
	}
	n, err := strconv.ParseUint(spec, 10, 64)
	return n, err == nil
}

// skipPrologue finds the first statement-marked line after the row at
// fn's lowest address, so a function-name breakpoint stops after the
// prologue's stack-frame setup rather than on its very first instruction.
// When no such row follows, fn's lowest address is used.
func skipPrologue(di *dwarfinfo.Facade, fn *dwarfinfo.Function) addr.Global {
	place, ok := di.FindPlaceFromPC(fn.LowPC())
	if !ok {
		return fn.LowPC()
	}
	for {
		next, ok := place.Next(di)
		if !ok {
			return fn.LowPC()
		}
		place = next
		if place.IsStmt {
			return place.Address
		}
	}
}
