package debugee

import (
	"fmt"
	"syscall"

	"github.com/traceline/dbg/addr"
	"github.com/traceline/dbg/arch"
	"github.com/traceline/dbg/breakpoint"
	"github.com/traceline/dbg/procmaps"
	"github.com/traceline/dbg/tracer"
)

// TraceOps is the subset of the process facility the event loop issues
// directly (resume, wait, register read), so it can be exercised against
// a fake in controller/event-loop tests without a real tracee.
type TraceOps interface {
	Cont(pid int, sig int) error
	Step(pid int) error
	Wait(pid int, options int) (wpid int, ws tracer.WaitStatus, err error)
	GetRegs(pid int) (tracer.Registers, error)
	SetRegs(pid int, regs tracer.Registers) error
	ProcessMaps(pid int) ([]procmaps.Entry, error)
}

// Loop is the event loop of spec.md §4.4: it owns the wait→classify→
// dispatch cycle run inside every continue/step operation.
type Loop struct {
	Ops    TraceOps
	BP     *breakpoint.Table
	Ctrl   *Controller
	Signal func(signo int) bool // reports true if a signal is one the controller itself consumes (not surfaced); nil means none are

	// OnEvent, when set, is invoked for every classified event, observable
	// or not, right before Run decides whether to surface it. The public
	// facade uses this to react to a transition that never surfaces on
	// its own, namely DebugeeStart fixing the breakpoint table's
	// addresses once the mapping offset becomes known.
	OnEvent func(Event)
}

// focusPC reads the focus thread's current PC, in the relocated space
// (meaningful only once DebugeeStart has fixed the mapping offset).
func (l *Loop) focusPC() (addr.PC, error) {
	regs, err := l.Ops.GetRegs(l.Ctrl.Threads.Focus())
	if err != nil {
		return addr.PC{}, err
	}
	return addr.FromRelocated(addr.Relocated(regs[arch.DwarfRIP])), nil
}

// StepOverBreakpoint implements spec.md §4.2's primitive: if the focus
// thread's current PC holds an enabled breakpoint, disable it,
// single-step past it, and re-enable it. This is the step every
// stepping routine and the event loop itself runs before resuming.
func (l *Loop) StepOverBreakpoint() error { return l.stepOverBreakpoint() }

func (l *Loop) stepOverBreakpoint() error {
	pc, err := l.focusPC()
	if err != nil {
		return err
	}
	if !l.BP.IsEnabledAt(pc) {
		return nil
	}
	if err := l.BP.Disable(pc); err != nil {
		return err
	}
	focus := l.Ctrl.Threads.Focus()
	if err := l.Ops.Step(focus); err != nil {
		return err
	}
	if _, _, err := l.Ops.Wait(focus, 0); err != nil {
		return err
	}
	return l.BP.Enable(pc)
}

// Run executes one or more iterations of spec.md §4.4's loop until an
// observable event surfaces.
func (l *Loop) Run() (Event, error) {
	for {
		var wpid int
		var ws tracer.WaitStatus
		if l.Ctrl.InProgress() {
			if err := l.stepOverBreakpoint(); err != nil {
				return Event{}, fmt.Errorf("debugee: step over breakpoint: %w", err)
			}
			if err := l.Ctrl.Threads.ContinueStopped(); err != nil {
				return Event{}, fmt.Errorf("debugee: resume stopped threads: %w", err)
			}
			var err error
			wpid, ws, err = l.Ops.Wait(-1, 0)
			if err != nil {
				return Event{}, fmt.Errorf("debugee: wait: %w", err)
			}
		} else {
			// Not yet started: the caller has just forked+exec'd the
			// debugee and already waited for its post-exec SIGTRAP stop,
			// so that stop is classified here without waiting again.
			wpid = l.Ctrl.Threads.ProcPid()
			ws = tracer.WaitStatus{Stopped: true, StopSignal: int(syscall.SIGTRAP)}
		}

		ev, err := l.classify(wpid, ws)
		if err != nil {
			return Event{}, err
		}
		if l.OnEvent != nil {
			l.OnEvent(ev)
		}
		if ev.Observable {
			return ev, nil
		}
		// Lifecycle events loop back around.
	}
}

func (l *Loop) classify(tid int, ws tracer.WaitStatus) (Event, error) {
	switch {
	case ws.Exited:
		if tid == l.Ctrl.Threads.ProcPid() {
			return l.Ctrl.OnDebugeeExit(ws.ExitCode), nil
		}
		return l.Ctrl.OnThreadExit(tid), nil

	case ws.Signaled:
		if tid == l.Ctrl.Threads.ProcPid() {
			return l.Ctrl.OnDebugeeExit(-ws.TermSignal), nil
		}
		return l.Ctrl.OnThreadExit(tid), nil

	case ws.Stopped:
		return l.classifyStop(tid, ws)
	}
	return Event{}, fmt.Errorf("debugee: unrecognized wait status for tid %d", tid)
}

func (l *Loop) classifyStop(tid int, ws tracer.WaitStatus) (Event, error) {
	switch ws.PtraceEvent {
	case tracer.PtraceEventClone, tracer.PtraceEventFork, tracer.PtraceEventVfork:
		return l.Ctrl.OnBeforeNewThread(tid, tid), nil
	}

	if !l.Ctrl.InProgress() && tid == l.Ctrl.Threads.ProcPid() {
		entries, err := l.Ops.ProcessMaps(tid)
		if err != nil {
			return Event{}, fmt.Errorf("debugee: read process maps for pid %d: %w", tid, err)
		}
		mapping, ok := procmaps.LowestMapping(entries, l.Ctrl.Path())
		var offset uint64
		if ok {
			offset = mapping.Start
		}
		return l.Ctrl.OnDebugeeStart(offset), nil
	}

	pc, err := l.rewindTrapPC(tid, ws)
	if err != nil {
		return Event{}, err
	}
	if offset, ok := l.Ctrl.MappingOffset(); ok {
		entryRelocated := l.Ctrl.EntryPointGlobal().Relocate(offset)
		if addr.Relocated(pc) == entryRelocated {
			return l.Ctrl.OnAtEntryPoint(tid, addr.Relocated(pc))
		}
	}
	if l.BP.Exists(addr.FromRelocated(addr.Relocated(pc))) {
		return l.Ctrl.OnBreakpoint(tid)
	}
	if ws.SyscallStop {
		return l.Ctrl.OnThreadInterrupt(tid)
	}
	if l.Signal != nil && l.Signal(ws.StopSignal) {
		return l.Ctrl.OnThreadInterrupt(tid)
	}
	return l.Ctrl.OnSignal(tid, ws.StopSignal, 0)
}

// rewindTrapPC returns tid's current PC, corrected for the one case where
// the kernel leaves it past where this core needs it: a software
// breakpoint (INT3) trap advances RIP by one byte past the trap
// instruction once the CPU executes it. Left uncorrected, every
// PC-based breakpoint/entry-point comparison in classifyStop would be
// off by arch.BreakpointSize and never match, exactly as
// _examples/golang-debug/ogle/program/server/server.go's handleResume
// rolls s.stoppedRegs.Rip back before using it
// (s.stoppedRegs.Rip -= uint64(s.arch.BreakpointSize)).
//
// The rollback only applies to a plain SIGTRAP stop that isn't a
// syscall-stop or a clone/fork/vfork event, and only when the byte
// immediately before PC is a trap this core actually planted (the
// entry-point breakpoint or a table entry) — a single-step completion
// or an ordinary signal delivery stop must not have its PC perturbed.
// When the rollback applies, the corrected PC is written back via
// SetRegs so every later GetRegs call in this same stop (stepping,
// inspection) observes the trap address, not the post-trap address.
func (l *Loop) rewindTrapPC(tid int, ws tracer.WaitStatus) (uint64, error) {
	regs, err := l.Ops.GetRegs(tid)
	if err != nil {
		return 0, fmt.Errorf("debugee: get regs for tid %d: %w", tid, err)
	}
	pc := regs[arch.DwarfRIP]
	if ws.SyscallStop || ws.PtraceEvent != 0 || ws.StopSignal != int(syscall.SIGTRAP) {
		return pc, nil
	}

	candidate := pc - arch.BreakpointSize
	isEntry := false
	if offset, ok := l.Ctrl.MappingOffset(); ok {
		isEntry = addr.Relocated(candidate) == l.Ctrl.EntryPointGlobal().Relocate(offset)
	}
	if !isEntry && !l.BP.Exists(addr.FromRelocated(addr.Relocated(candidate))) {
		return pc, nil
	}

	regs[arch.DwarfRIP] = candidate
	if err := l.Ops.SetRegs(tid, regs); err != nil {
		return 0, fmt.Errorf("debugee: rewind pc for tid %d: %w", tid, err)
	}
	return candidate, nil
}

// WaitAfterSingleStep waits for the trap delivered by a single
// PTRACE_SINGLESTEP issued against tid and reports it as TrapTrace,
// bypassing breakpoint/signal classification entirely: spec.md §4.1
// lists TrapTrace as its own raw event distinct from OsSignal, and a
// single-step completion is only ever identifiable by the caller
// already knowing it just issued one.
func (l *Loop) WaitAfterSingleStep(tid int) (Event, error) {
	wpid, ws, err := l.Ops.Wait(tid, 0)
	if err != nil {
		return Event{}, fmt.Errorf("debugee: wait after single-step: %w", err)
	}
	var ev Event
	if ws.Exited {
		if wpid == l.Ctrl.Threads.ProcPid() {
			ev = l.Ctrl.OnDebugeeExit(ws.ExitCode)
		} else {
			ev = l.Ctrl.OnThreadExit(wpid)
		}
	} else {
		ev = l.Ctrl.OnTrapTrace(wpid)
	}
	if l.OnEvent != nil {
		l.OnEvent(ev)
	}
	return ev, nil
}
