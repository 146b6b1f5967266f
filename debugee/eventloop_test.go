package debugee

import (
	"syscall"
	"testing"

	"github.com/traceline/dbg/addr"
	"github.com/traceline/dbg/arch"
	"github.com/traceline/dbg/breakpoint"
	"github.com/traceline/dbg/procmaps"
	"github.com/traceline/dbg/threadset"
	"github.com/traceline/dbg/tracer"
)

type fakeMem struct{ words map[uint64]uint64 }

func (m *fakeMem) ReadWord(pid int, a uint64) (uint64, error)  { return m.words[a], nil }
func (m *fakeMem) WriteWord(pid int, a uint64, v uint64) error { m.words[a] = v; return nil }

type fakeLoopOps struct {
	mem  *fakeMem
	regs map[int]tracer.Registers
}

func (o *fakeLoopOps) Cont(pid int, sig int) error { return nil }
func (o *fakeLoopOps) Step(pid int) error          { return nil }
func (o *fakeLoopOps) Wait(pid int, options int) (int, tracer.WaitStatus, error) {
	return pid, tracer.WaitStatus{}, nil
}
func (o *fakeLoopOps) GetRegs(pid int) (tracer.Registers, error) { return o.regs[pid], nil }
func (o *fakeLoopOps) SetRegs(pid int, regs tracer.Registers) error {
	o.regs[pid] = regs
	return nil
}
func (o *fakeLoopOps) ProcessMaps(pid int) ([]procmaps.Entry, error) { return nil, nil }

// newStartedLoop builds a Loop whose debugee has already passed
// DebugeeStart with a zero mapping offset, so relocated == global for
// every address in these tests.
func newStartedLoop(tid int, pc uint64) (*Loop, *fakeLoopOps, *breakpoint.Table) {
	mem := &fakeMem{words: map[uint64]uint64{}}
	ops := &fakeLoopOps{mem: mem, regs: map[int]tracer.Registers{tid: {arch.DwarfRIP: pc}}}
	reg := threadset.New(tid, fakeResumer{})
	ctrl := New(reg, "/bin/fixture", addr.Global(0x1000))
	ctrl.OnDebugeeStart(0)
	bp := breakpoint.New(mem)
	return &Loop{Ops: ops, BP: bp, Ctrl: ctrl}, ops, bp
}

// TestClassifyStopRewindsBreakpointTrap pins down the ptrace semantics a
// software breakpoint relies on: the kernel reports the tracee's PC one
// byte past the INT3 that trapped it. classifyStop must roll that back
// before comparing against the breakpoint table, or a real trap would
// never be recognized as a Breakpoint event (see
// _examples/golang-debug/ogle/program/server/server.go's
// s.stoppedRegs.Rip -= uint64(s.arch.BreakpointSize)).
func TestClassifyStopRewindsBreakpointTrap(t *testing.T) {
	const tid = 100
	const bpAddr = 0x2000
	loop, ops, bp := newStartedLoop(tid, bpAddr+arch.BreakpointSize)

	pc := addr.FromRelocated(addr.Relocated(bpAddr))
	bp.Set(pc, tid)
	if err := bp.Enable(pc); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	ws := tracer.WaitStatus{Stopped: true, StopSignal: int(syscall.SIGTRAP)}
	ev, err := loop.classifyStop(tid, ws)
	if err != nil {
		t.Fatalf("classifyStop: %v", err)
	}
	if ev.Kind != KindBreakpoint {
		t.Fatalf("expected Breakpoint, got %v", ev.Kind)
	}
	if got := ops.regs[tid][arch.DwarfRIP]; got != bpAddr {
		t.Fatalf("expected RIP rolled back to %#x, got %#x", uint64(bpAddr), got)
	}
}

// TestClassifyStopRewindsEntryPointTrap mirrors the breakpoint case for
// the entry-point trap specifically, since AtEntryPoint is recognized
// independently of the breakpoint table.
func TestClassifyStopRewindsEntryPointTrap(t *testing.T) {
	const tid = 100
	const entry = 0x1000 // matches newTestController's entryGlobal, offset 0
	loop, ops, _ := newStartedLoop(tid, entry+arch.BreakpointSize)

	ws := tracer.WaitStatus{Stopped: true, StopSignal: int(syscall.SIGTRAP)}
	ev, err := loop.classifyStop(tid, ws)
	if err != nil {
		t.Fatalf("classifyStop: %v", err)
	}
	if ev.Kind != KindAtEntryPoint {
		t.Fatalf("expected AtEntryPoint, got %v", ev.Kind)
	}
	if got := ops.regs[tid][arch.DwarfRIP]; got != entry {
		t.Fatalf("expected RIP rolled back to %#x, got %#x", uint64(entry), got)
	}
}

// TestClassifyStopDoesNotRewindOrdinarySignal asserts the rollback is
// conditional: a signal-delivery stop must leave PC untouched, since the
// kernel never advances it in that case.
func TestClassifyStopDoesNotRewindOrdinarySignal(t *testing.T) {
	const tid = 100
	const pc = 0x3000 // not adjacent to any breakpoint or the entry point
	loop, ops, _ := newStartedLoop(tid, pc)

	ws := tracer.WaitStatus{Stopped: true, StopSignal: int(syscall.SIGUSR1)}
	ev, err := loop.classifyStop(tid, ws)
	if err != nil {
		t.Fatalf("classifyStop: %v", err)
	}
	if ev.Kind != KindOsSignal {
		t.Fatalf("expected OsSignal, got %v", ev.Kind)
	}
	if got := ops.regs[tid][arch.DwarfRIP]; got != pc {
		t.Fatalf("expected RIP untouched at %#x, got %#x", uint64(pc), got)
	}
}

// TestClassifyStopDoesNotRewindSyscallStop guards the other excluded
// case: a syscall-stop also reports SIGTRAP but must never be mistaken
// for a breakpoint trap.
func TestClassifyStopDoesNotRewindSyscallStop(t *testing.T) {
	const tid = 100
	const bpAddr = 0x2000
	loop, ops, bp := newStartedLoop(tid, bpAddr+arch.BreakpointSize)

	pc := addr.FromRelocated(addr.Relocated(bpAddr))
	bp.Set(pc, tid)
	if err := bp.Enable(pc); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	ws := tracer.WaitStatus{Stopped: true, StopSignal: int(syscall.SIGTRAP), SyscallStop: true}
	ev, err := loop.classifyStop(tid, ws)
	if err != nil {
		t.Fatalf("classifyStop: %v", err)
	}
	if ev.Kind != KindThreadInterrupt {
		t.Fatalf("expected ThreadInterrupt, got %v", ev.Kind)
	}
	if got := ops.regs[tid][arch.DwarfRIP]; got != bpAddr+arch.BreakpointSize {
		t.Fatalf("expected RIP untouched at %#x, got %#x", uint64(bpAddr+arch.BreakpointSize), got)
	}
}
