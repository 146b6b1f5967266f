// Package stepping implements the stepping engine of spec.md §4.3:
// step-instruction, step-in (source line), step-over (next statement in
// the same function), and step-out (return from function), built on top
// of the breakpoint engine, the debug-info facade, and the stack
// unwinder. Grounded on golang-debug/ogle/program/server's single-step
// and continue primitives, generalized to the four named operations and
// their transient-breakpoint bookkeeping.
package stepping

import (
	"fmt"

	"github.com/traceline/dbg/addr"
	"github.com/traceline/dbg/arch"
	"github.com/traceline/dbg/breakpoint"
	"github.com/traceline/dbg/debugee"
	"github.com/traceline/dbg/dwarfinfo"
	"github.com/traceline/dbg/errkind"
	"github.com/traceline/dbg/unwind"
)

// Engine is the stepping engine. The zero value is not usable; build
// with New.
type Engine struct {
	Ops  debugee.TraceOps
	BP   *breakpoint.Table
	Ctrl *debugee.Controller
	DI   *dwarfinfo.Facade
	UW   *unwind.Unwinder
	Loop *debugee.Loop
}

// New constructs a stepping Engine over the given collaborators.
func New(ops debugee.TraceOps, bp *breakpoint.Table, ctrl *debugee.Controller, di *dwarfinfo.Facade, uw *unwind.Unwinder) *Engine {
	loop := &debugee.Loop{Ops: ops, BP: bp, Ctrl: ctrl}
	return &Engine{Ops: ops, BP: bp, Ctrl: ctrl, DI: di, UW: uw, Loop: loop}
}

func (e *Engine) requireStarted() error {
	if !e.Ctrl.InProgress() {
		return errkind.NotStarted
	}
	return nil
}

func (e *Engine) focusTid() int { return e.Ctrl.Threads.Focus() }

func (e *Engine) relocatedPC() (addr.Relocated, error) {
	regs, err := e.Ops.GetRegs(e.focusTid())
	if err != nil {
		return 0, err
	}
	return addr.Relocated(regs[arch.DwarfRIP]), nil
}

func (e *Engine) globalPC() (addr.Global, error) {
	rel, err := e.relocatedPC()
	if err != nil {
		return 0, err
	}
	offset, _ := e.Ctrl.MappingOffset()
	return rel.IntoGlobal(offset), nil
}

// StepInstruction implements spec.md §4.3's step-instruction: if PC is
// on a breakpoint, run step-over-breakpoint; else issue a single
// hardware single-step to the focus thread.
func (e *Engine) StepInstruction() (debugee.Event, error) {
	if err := e.requireStarted(); err != nil {
		return debugee.Event{}, err
	}
	tid := e.focusTid()
	pc, err := e.relocatedPC()
	if err != nil {
		return debugee.Event{}, err
	}
	if e.BP.IsEnabledAt(addr.FromRelocated(pc)) {
		if err := e.Loop.StepOverBreakpoint(); err != nil {
			return debugee.Event{}, err
		}
		return e.Ctrl.OnTrapTrace(tid), nil
	}
	if err := e.Ops.Step(tid); err != nil {
		return debugee.Event{}, fmt.Errorf("stepping: step-instruction: %w", err)
	}
	return e.Loop.WaitAfterSingleStep(tid)
}

// StepIn implements spec.md §4.3's step-in: repeat step-instruction
// until the (file, line) at the focus PC changes from where it started.
// If a step leaves the debug-mapped region, this reports a fatal
// NotInDebugFrame error rather than looping forever.
func (e *Engine) StepIn() (debugee.Event, error) {
	if err := e.requireStarted(); err != nil {
		return debugee.Event{}, err
	}
	startGlobal, err := e.globalPC()
	if err != nil {
		return debugee.Event{}, err
	}
	startPlace, ok := e.DI.FindPlaceFromPC(startGlobal)
	if !ok {
		return debugee.Event{}, &errkind.NotInDebugFrame{PC: startGlobal}
	}

	for {
		ev, err := e.StepInstruction()
		if err != nil {
			return debugee.Event{}, err
		}
		if ev.Kind != debugee.KindTrapTrace {
			return ev, nil
		}
		g, err := e.globalPC()
		if err != nil {
			return debugee.Event{}, err
		}
		place, ok := e.DI.FindPlaceFromPC(g)
		if !ok {
			return debugee.Event{}, &errkind.NotInDebugFrame{PC: g}
		}
		if place.File != startPlace.File || place.Line != startPlace.Line {
			return ev, nil
		}
	}
}

// StepOver implements spec.md §4.3's step-over: plant a transient
// breakpoint at every statement-boundary address in the containing
// function's ranges (other than the current statement), plus the
// current return address when known, resume until any fires, then
// remove every transient breakpoint this call planted regardless of
// which one actually fired (spec.md §8 testable property 5).
func (e *Engine) StepOver() (debugee.Event, error) {
	if err := e.requireStarted(); err != nil {
		return debugee.Event{}, err
	}
	tid := e.focusTid()
	g, err := e.globalPC()
	if err != nil {
		return debugee.Event{}, err
	}
	fn, ok := e.DI.FindFunctionByPC(g)
	if !ok {
		return debugee.Event{}, &errkind.NotInDebugFrame{PC: g}
	}
	curPlace, _ := e.DI.FindPlaceFromPC(g)
	offset, _ := e.Ctrl.MappingOffset()

	var planted []addr.PC
	plant := func(target addr.Global) {
		relocated := addr.FromRelocated(target.Relocate(offset))
		if e.BP.Exists(relocated) {
			return
		}
		e.BP.Set(relocated, tid)
		planted = append(planted, relocated)
		_ = e.BP.Enable(relocated)
	}

	for _, r := range fn.Ranges {
		for pc := r.Begin; pc < r.End; {
			place, ok := e.DI.FindPlaceFromPC(pc)
			if !ok {
				break
			}
			if place.IsStmt && place.Address != curPlace.Address {
				plant(place.Address)
			}
			next, ok := place.Next(e.DI)
			if !ok || next.Address <= pc {
				break
			}
			pc = next.Address
		}
	}
	if retAddr, ok, err := e.UW.ReturnAddr(tid); err == nil && ok {
		g := retAddr.IntoGlobal(offset)
		plant(g)
	}

	cleanup := func() error {
		for _, pc := range planted {
			if err := e.BP.Remove(pc); err != nil {
				return err
			}
		}
		return nil
	}

	ev, err := e.Loop.Run()
	if cerr := cleanup(); cerr != nil && err == nil {
		err = cerr
	}
	return ev, err
}

// StepOut implements spec.md §4.3's step-out: compute the return
// address via the unwinder; if a breakpoint already exists there,
// simply continue; else plant a transient one, continue, and remove it.
func (e *Engine) StepOut() (debugee.Event, error) {
	if err := e.requireStarted(); err != nil {
		return debugee.Event{}, err
	}
	tid := e.focusTid()
	retAddr, ok, err := e.UW.ReturnAddr(tid)
	if err != nil {
		return debugee.Event{}, fmt.Errorf("stepping: step-out: %w", err)
	}
	if !ok {
		return debugee.Event{}, &errkind.NotInDebugFrame{PC: addr.Global(0)}
	}
	pc := addr.FromRelocated(retAddr)
	if e.BP.Exists(pc) {
		return e.Loop.Run()
	}
	e.BP.Set(pc, tid)
	if err := e.BP.Enable(pc); err != nil {
		return debugee.Event{}, err
	}
	ev, err := e.Loop.Run()
	if rerr := e.BP.Remove(pc); rerr != nil && err == nil {
		err = rerr
	}
	return ev, err
}
