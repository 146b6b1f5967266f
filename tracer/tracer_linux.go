//go:build linux && amd64

package tracer

import (
	"encoding/binary"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/traceline/dbg/arch"
)

// StartProcess launches path under ptrace, stopped at its first
// instruction (the Ptrace SysProcAttr form makes the child call
// PTRACE_TRACEME, so the kernel stops it with SIGTRAP right after exec,
// matching golang-debug/ogle/program/server/ptrace.go's startProcess). It must run
// on the Tracer's dedicated thread since the parent that calls fork+exec
// becomes the tracer.
func (t *Tracer) StartProcess(path string, args []string) (pid int, err error) {
	err = t.do(func() error {
		attr := &os.ProcAttr{
			Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
			Sys: &syscall.SysProcAttr{
				Ptrace:    true,
				Pdeathsig: syscall.SIGKILL,
			},
		}
		argv := append([]string{path}, args...)
		proc, startErr := os.StartProcess(path, argv, attr)
		if startErr != nil {
			return startErr
		}
		pid = proc.Pid
		return nil
	})
	return pid, err
}

// ReadWord peeks one machine word (8 bytes) at addr in pid's address space.
func (t *Tracer) ReadWord(pid int, addr uint64) (word uint64, err error) {
	err = t.do(func() error {
		var buf [arch.PointerSize]byte
		n, peekErr := unix.PtracePeekData(pid, uintptr(addr), buf[:])
		if peekErr != nil {
			return peekErr
		}
		if n != len(buf) {
			return fmt.Errorf("tracer: peeked %d bytes at %#x, want %d", n, addr, len(buf))
		}
		word = binary.LittleEndian.Uint64(buf[:])
		return nil
	})
	return word, err
}

// WriteWord pokes one machine word (8 bytes) at addr in pid's address space.
func (t *Tracer) WriteWord(pid int, addr uint64, v uint64) error {
	return t.do(func() error {
		var buf [arch.PointerSize]byte
		binary.LittleEndian.PutUint64(buf[:], v)
		n, err := unix.PtracePokeData(pid, uintptr(addr), buf[:])
		if err != nil {
			return err
		}
		if n != len(buf) {
			return fmt.Errorf("tracer: poked %d bytes at %#x, want %d", n, addr, len(buf))
		}
		return nil
	})
}

// Step issues a single-instruction PTRACE_SINGLESTEP.
func (t *Tracer) Step(pid int) error {
	return t.do(func() error { return unix.PtraceSingleStep(pid) })
}

// Cont resumes the tracee, delivering sig (0 for no signal).
func (t *Tracer) Cont(pid int, sig int) error {
	return t.do(func() error { return unix.PtraceCont(pid, sig) })
}

// Detach detaches from pid. sig is accepted to match the process
// facility's documented detach(pid, sig) signature, but
// golang.org/x/sys/unix's PtraceDetach does not expose PTRACE_DETACH's
// signal-to-deliver argument, so sig is ignored here; shutdown delivers
// its kill signal separately via Kill, after every thread is detached.
func (t *Tracer) Detach(pid int, sig int) error {
	return t.do(func() error { return unix.PtraceDetach(pid) })
}

// GetEventMsg reads the auxiliary message of the most recent
// PTRACE_EVENT_* stop (e.g. the new child's tid after a
// PTRACE_EVENT_CLONE/FORK/VFORK stop).
func (t *Tracer) GetEventMsg(pid int) (msg uint, err error) {
	err = t.do(func() error {
		m, getErr := unix.PtraceGetEventMsg(pid)
		msg = m
		return getErr
	})
	return msg, err
}

// SetOptions installs ptrace options (PTRACE_O_TRACECLONE and friends) so
// clone/fork/exec are reported as distinguishable trace events.
func (t *Tracer) SetOptions(pid int, options int) error {
	return t.do(func() error { return unix.PtraceSetOptions(pid, options) })
}

// regsToMap converts the platform register struct into the DWARF-numbered
// map the rest of the core works with.
func regsToMap(r *unix.PtraceRegs) Registers {
	return Registers{
		arch.DwarfRAX: r.Rax, arch.DwarfRDX: r.Rdx, arch.DwarfRCX: r.Rcx,
		arch.DwarfRBX: r.Rbx, arch.DwarfRSI: r.Rsi, arch.DwarfRDI: r.Rdi,
		arch.DwarfRBP: r.Rbp, arch.DwarfRSP: r.Rsp,
		arch.DwarfR8: r.R8, arch.DwarfR9: r.R9, arch.DwarfR10: r.R10,
		arch.DwarfR11: r.R11, arch.DwarfR12: r.R12, arch.DwarfR13: r.R13,
		arch.DwarfR14: r.R14, arch.DwarfR15: r.R15, arch.DwarfRIP: r.Rip,
	}
}

func mapToRegs(regs Registers, out *unix.PtraceRegs) {
	out.Rax, out.Rdx, out.Rcx = regs[arch.DwarfRAX], regs[arch.DwarfRDX], regs[arch.DwarfRCX]
	out.Rbx, out.Rsi, out.Rdi = regs[arch.DwarfRBX], regs[arch.DwarfRSI], regs[arch.DwarfRDI]
	out.Rbp, out.Rsp = regs[arch.DwarfRBP], regs[arch.DwarfRSP]
	out.R8, out.R9, out.R10, out.R11 = regs[arch.DwarfR8], regs[arch.DwarfR9], regs[arch.DwarfR10], regs[arch.DwarfR11]
	out.R12, out.R13, out.R14, out.R15 = regs[arch.DwarfR12], regs[arch.DwarfR13], regs[arch.DwarfR14], regs[arch.DwarfR15]
	out.Rip = regs[arch.DwarfRIP]
}

// GetRegs reads pid's general-purpose register file.
func (t *Tracer) GetRegs(pid int) (regs Registers, err error) {
	err = t.do(func() error {
		var raw unix.PtraceRegs
		if getErr := unix.PtraceGetRegs(pid, &raw); getErr != nil {
			return getErr
		}
		regs = regsToMap(&raw)
		return nil
	})
	return regs, err
}

// SetRegs writes pid's general-purpose register file. Unset DWARF register
// numbers in regs write as zero, so callers should start from a GetRegs
// snapshot when modifying a subset of registers.
func (t *Tracer) SetRegs(pid int, regs Registers) error {
	return t.do(func() error {
		var raw unix.PtraceRegs
		if err := unix.PtraceGetRegs(pid, &raw); err != nil {
			return err
		}
		mapToRegs(regs, &raw)
		return unix.PtraceSetRegs(pid, &raw)
	})
}

// Wait blocks for a state change in pid (or any tracee, if pid == -1) and
// decodes the raw wait status into the semantic WaitStatus spec.md §6
// requires.
func (t *Tracer) Wait(pid int, options int) (wpid int, ws WaitStatus, err error) {
	err = t.do(func() error {
		var raw unix.WaitStatus
		got, waitErr := unix.Wait4(pid, &raw, options, nil)
		if waitErr != nil {
			return waitErr
		}
		wpid = got
		ws = decodeWaitStatus(raw)
		return nil
	})
	return wpid, ws, err
}

func decodeWaitStatus(raw unix.WaitStatus) WaitStatus {
	ws := WaitStatus{}
	switch {
	case raw.Exited():
		ws.Exited = true
		ws.ExitCode = raw.ExitStatus()
	case raw.Signaled():
		ws.Signaled = true
		ws.TermSignal = int(raw.Signal())
	case raw.Stopped():
		ws.Stopped = true
		ws.StopSignal = int(raw.StopSignal())
		if cause := raw.TrapCause(); cause != -1 {
			ws.PtraceEvent = cause
		}
		ws.SyscallStop = ws.StopSignal == int(unix.SIGTRAP)|0x80
	}
	return ws
}

// Kill sends sig to pid from the Tracer's dedicated thread. The facade's
// thread-interrupt adapter uses it to deliver SIGSTOP; shutdown sends its
// kill signal with unix.Kill directly.
func (t *Tracer) Kill(pid int, sig int) error {
	return t.do(func() error { return unix.Kill(pid, unix.Signal(sig)) })
}

const (
	PtraceEventClone = unix.PTRACE_EVENT_CLONE
	PtraceEventFork  = unix.PTRACE_EVENT_FORK
	PtraceEventVfork = unix.PTRACE_EVENT_VFORK
	PtraceEventExec  = unix.PTRACE_EVENT_EXEC

	OptTraceClone = unix.PTRACE_O_TRACECLONE
	OptTraceFork  = unix.PTRACE_O_TRACEFORK
	OptTraceVfork = unix.PTRACE_O_TRACEVFORK
	OptTraceExec  = unix.PTRACE_O_TRACEEXEC
)
