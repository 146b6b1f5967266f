package stepping

import (
	"github.com/traceline/dbg/addr"
	"github.com/traceline/dbg/breakpoint"
	"github.com/traceline/dbg/debugee"
	"github.com/traceline/dbg/procmaps"
	"github.com/traceline/dbg/threadset"
	"github.com/traceline/dbg/tracer"
	"testing"
)

type fakeResumer struct{}

func (fakeResumer) Resume(tid int) error    { return nil }
func (fakeResumer) Interrupt(tid int) error { return nil }

type fakeMem struct{ words map[uint64]uint64 }

func (m *fakeMem) ReadWord(pid int, a uint64) (uint64, error)  { return m.words[a], nil }
func (m *fakeMem) WriteWord(pid int, a uint64, v uint64) error { m.words[a] = v; return nil }

type fakeOps struct {
	mem      *fakeMem
	regs     map[int]tracer.Registers
	steps    int
	waitKind tracer.WaitStatus
}

func (o *fakeOps) Cont(pid int, sig int) error { return nil }
func (o *fakeOps) Step(pid int) error          { o.steps++; return nil }
func (o *fakeOps) Wait(pid int, options int) (int, tracer.WaitStatus, error) {
	return pid, o.waitKind, nil
}
func (o *fakeOps) GetRegs(pid int) (tracer.Registers, error) { return o.regs[pid], nil }
func (o *fakeOps) SetRegs(pid int, regs tracer.Registers) error {
	o.regs[pid] = regs
	return nil
}
func (o *fakeOps) ProcessMaps(pid int) ([]procmaps.Entry, error) { return nil, nil }

func newEngine(tid int) (*Engine, *fakeOps, *breakpoint.Table) {
	mem := &fakeMem{words: map[uint64]uint64{}}
	ops := &fakeOps{
		mem:      mem,
		regs:     map[int]tracer.Registers{tid: {16: 0x4000}}, // DwarfRIP=16
		waitKind: tracer.WaitStatus{Stopped: true, StopSignal: 5},
	}
	reg := threadset.New(tid, fakeResumer{})
	ctrl := debugee.New(reg, "/bin/fixture", addr.Global(0x1000))
	ctrl.OnDebugeeStart(0)
	bp := breakpoint.New(mem)
	eng := New(ops, bp, ctrl, nil, nil)
	return eng, ops, bp
}

func TestStepInstructionPlainSingleStep(t *testing.T) {
	eng, ops, _ := newEngine(100)
	ev, err := eng.StepInstruction()
	if err != nil {
		t.Fatalf("StepInstruction: %v", err)
	}
	if ev.Kind != debugee.KindTrapTrace {
		t.Fatalf("expected TrapTrace, got %v", ev.Kind)
	}
	if ops.steps != 1 {
		t.Fatalf("expected exactly one single-step issued, got %d", ops.steps)
	}
}

func TestStepInstructionOverBreakpoint(t *testing.T) {
	eng, ops, bp := newEngine(100)
	pc := addr.FromRelocated(addr.Relocated(0x4000))
	bp.Set(pc, 100)
	if err := bp.Enable(pc); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	ev, err := eng.StepInstruction()
	if err != nil {
		t.Fatalf("StepInstruction: %v", err)
	}
	if ev.Kind != debugee.KindTrapTrace {
		t.Fatalf("expected TrapTrace, got %v", ev.Kind)
	}
	if ops.steps != 1 {
		t.Fatalf("expected exactly one single-step during step-over-breakpoint, got %d", ops.steps)
	}
	if !bp.IsEnabledAt(pc) {
		t.Fatalf("expected breakpoint re-enabled after step-over-breakpoint")
	}
}

func TestStepInstructionNotStarted(t *testing.T) {
	mem := &fakeMem{words: map[uint64]uint64{}}
	reg := threadset.New(100, fakeResumer{})
	ctrl := debugee.New(reg, "/bin/fixture", addr.Global(0x1000))
	bp := breakpoint.New(mem)
	ops := &fakeOps{mem: mem, regs: map[int]tracer.Registers{}}
	eng := New(ops, bp, ctrl, nil, nil)
	if _, err := eng.StepInstruction(); err == nil {
		t.Fatalf("expected NotStarted error before DebugeeStart")
	}
}
