package debugger

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/traceline/dbg/addr"
	"github.com/traceline/dbg/arch"
)

// Close implements spec.md §5's shutdown sequence: step over any pending
// breakpoint so the detached process doesn't immediately trap on a
// software breakpoint with no tracer left to service it, detach every
// registered thread, deliver a kill signal to the process group, and wait
// for it to be reaped. A debugee that was never started is a no-op.
//
// Shutdown errors are fatal: a debugger that cannot guarantee the child is
// gone must not return control quietly, so failures here panic rather than
// return an error.
func (d *Debugger) Close() error {
	if d.ctrl == nil || !d.ctrl.InProgress() {
		return nil
	}

	if err := d.stepOverPendingBreakpoint(); err != nil {
		panic(fmt.Sprintf("debugger: shutdown: step over pending breakpoint: %v", err))
	}

	pid := d.threads.ProcPid()
	for _, rec := range d.threads.Dump() {
		if err := d.tr.Detach(rec.Tid, 0); err != nil && !isNoSuchProcess(err) {
			panic(fmt.Sprintf("debugger: shutdown: detach tid %d: %v", rec.Tid, err))
		}
	}

	if err := unix.Kill(-pid, syscall.SIGKILL); err != nil && !isNoSuchProcess(err) {
		panic(fmt.Sprintf("debugger: shutdown: kill process group %d: %v", pid, err))
	}
	if _, _, err := d.tr.Wait(pid, 0); err != nil && !isNoSuchProcess(err) {
		panic(fmt.Sprintf("debugger: shutdown: reap pid %d: %v", pid, err))
	}

	d.ctrl = nil
	return nil
}

// stepOverPendingBreakpoint disables whichever breakpoint the focus thread
// is currently stopped on, if any, so detaching doesn't leave a trap byte
// the process would hit with nothing left to service it.
func (d *Debugger) stepOverPendingBreakpoint() error {
	regs, err := d.tr.GetRegs(d.threads.Focus())
	if err != nil {
		if isNoSuchProcess(err) {
			return nil
		}
		return err
	}
	pc := addr.FromRelocated(addr.Relocated(regs[arch.DwarfRIP]))
	rec, ok := d.bp.Get(pc)
	if !ok || !rec.Enabled {
		return nil
	}
	return d.bp.Disable(pc)
}

// isNoSuchProcess reports whether err is the kernel telling us the target
// is already gone, which shutdown treats as success rather than failure.
func isNoSuchProcess(err error) bool {
	return errors.Is(err, syscall.ESRCH)
}
