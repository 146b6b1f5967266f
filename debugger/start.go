package debugger

import (
	"fmt"
	"syscall"

	"github.com/traceline/dbg/addr"
	"github.com/traceline/dbg/debugee"
	"github.com/traceline/dbg/stepping"
	"github.com/traceline/dbg/threadset"
	"github.com/traceline/dbg/tracer"
	"github.com/traceline/dbg/unwind"
	"github.com/traceline/dbg/variable"
)

// resumer adapts *tracer.Tracer to threadset.Resumer. StartProcess uses
// the classic PTRACE_TRACEME-style SysProcAttr rather than PTRACE_SEIZE,
// so PTRACE_INTERRUPT is unavailable; the conventional substitute is to
// resume via PTRACE_CONT and interrupt by delivering SIGSTOP, which shows
// up to the event loop as an ordinary SIGSTOP signal stop.
type resumer struct{ tr *tracer.Tracer }

func (r resumer) Resume(tid int) error { return r.tr.Cont(tid, 0) }
func (r resumer) Interrupt(tid int) error {
	return r.tr.Kill(tid, int(syscall.SIGSTOP))
}

// regsView adapts *tracer.Tracer's named Registers return type to the
// plain map[int]uint64 the variable and unwind packages declare their
// own Registers interfaces against, so they stay decoupled from the
// tracer package.
type regsView struct{ tr *tracer.Tracer }

func (r regsView) GetRegs(pid int) (map[int]uint64, error) {
	regs, err := r.tr.GetRegs(pid)
	return map[int]uint64(regs), err
}

// Start forks and execs the debugee, waits for the first post-exec trap,
// installs trace options for thread/process lifecycle events, builds
// every collaborator that depends on the real pid, and runs the event
// loop to its first observable event (normally AtEntryPoint).
func (d *Debugger) Start(args []string) (debugee.Event, error) {
	pid, err := d.tr.StartProcess(d.path, args)
	if err != nil {
		return debugee.Event{}, fmt.Errorf("debugger: start %s: %w", d.path, err)
	}
	if _, _, err := d.tr.Wait(pid, 0); err != nil {
		return debugee.Event{}, fmt.Errorf("debugger: wait for initial trap: %w", err)
	}
	opts := tracer.OptTraceClone | tracer.OptTraceFork | tracer.OptTraceVfork | tracer.OptTraceExec
	if err := d.tr.SetOptions(pid, opts); err != nil {
		return debugee.Event{}, fmt.Errorf("debugger: set trace options: %w", err)
	}

	d.threads = threadset.New(pid, resumer{d.tr})
	d.ctrl = debugee.New(d.threads, d.path, d.di.EntryPoint())
	d.uw = unwind.New(d.tr, regsView{d.tr})
	d.vars = variable.New(d.tr, regsView{d.tr}, d.uw, d.di)

	d.loop = &debugee.Loop{Ops: d.tr, BP: d.bp, Ctrl: d.ctrl}
	d.loop.OnEvent = d.onDebugeeEvent
	d.step = stepping.New(d.tr, d.bp, d.ctrl, d.di, d.uw)
	d.step.Loop.OnEvent = d.onDebugeeEvent

	ev, err := d.loop.Run()
	if err != nil {
		return debugee.Event{}, err
	}
	d.dispatchHook(ev)
	return ev, nil
}

// onDebugeeEvent is the Loop.OnEvent hook both the facade's own loop and
// the stepping engine's internal loop share. Its only job is bridging the
// DebugeeStart transition the event loop never surfaces on its own: plant
// the entry-point breakpoint, fix up every breakpoint planted before
// start with the now-known pid, then relocate and enable the table
// exactly once, per spec.md §4.2.
func (d *Debugger) onDebugeeEvent(ev debugee.Event) {
	if ev.Kind != debugee.KindDebugeeStart {
		return
	}
	pid := d.threads.ProcPid()
	entry := addr.FromGlobal(d.ctrl.EntryPointGlobal())
	if !d.bp.Exists(entry) {
		d.bp.Set(entry, pid)
	}
	for _, rec := range d.bp.All() {
		rec.Pid = pid
	}
	offset, _ := d.ctrl.MappingOffset()
	if err := d.bp.RelocateAll(offset); err != nil {
		d.logger.Error("relocate breakpoints at debugee start", "err", err)
	}
}
