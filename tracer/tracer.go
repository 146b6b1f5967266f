// Package tracer is the process facility of spec.md §6: word-level peek/
// poke, step/cont/detach, register get/set, and wait, all issued from a
// single dedicated OS thread.
//
// ptrace(2) requires every control call for a given tracee to come from
// the thread that attached to it. golang-debug/ogle/program/server/
// ptrace.go solves this by running a goroutine pinned with
// runtime.LockOSThread and funneling every ptrace call through it over an
// unbuffered channel pair (fc/ec); this package keeps that exact shape.
package tracer

import (
	"runtime"

	"github.com/traceline/dbg/arch"
	"github.com/traceline/dbg/procmaps"
)

// WaitStatus decodes the status word from wait4/waitpid, covering exit,
// signal-termination, signal-stop, and the trace-event codes for
// clone/fork/exec that spec.md §6 lists. A group-stop is not told apart
// from a signal-delivery-stop: both decode as Stopped with StopSignal.
type WaitStatus struct {
	Exited     bool
	ExitCode   int
	Signaled   bool
	TermSignal int

	Stopped    bool
	StopSignal int

	// PtraceEvent is one of the PTRACE_EVENT_* constants (clone, fork,
	// vfork, exec) when Stopped is true and the stop was caused by an
	// extended trace event rather than a plain signal-delivery-stop.
	PtraceEvent int

	// SyscallStop distinguishes a syscall-stop from other SIGTRAP stops,
	// set when PTRACE_O_TRACESYSGOOD is in effect.
	SyscallStop bool
}

// Registers is the general-purpose register file of the traced thread, as
// reported by PTRACE_GETREGS/SETREGS, keyed by DWARF register number
// (arch.DwarfRAX, ... arch.DwarfRIP) so the rest of the core never has to
// deal with a platform-specific struct layout.
type Registers map[int]uint64

// Tracer is the dedicated-OS-thread ptrace driver. The zero value is not
// usable; construct with New.
type Tracer struct {
	fc chan func() error
	ec chan error
}

// New starts the dedicated OS thread that will own every ptrace call this
// Tracer issues, and returns once it is ready to accept work.
func New() *Tracer {
	t := &Tracer{
		fc: make(chan func() error),
		ec: make(chan error),
	}
	go t.run()
	return t
}

func (t *Tracer) run() {
	runtime.LockOSThread()
	for f := range t.fc {
		t.ec <- f()
	}
}

// do runs f on the dedicated thread and waits for its result. Every
// exported ptrace-issuing method is built on this so no ptrace call ever
// escapes onto an arbitrary goroutine's OS thread.
func (t *Tracer) do(f func() error) error {
	t.fc <- f
	return <-t.ec
}

// ReadBytes reads exactly n bytes starting at a in pid's address space,
// per spec.md §4.5's "word-aligned, taking only the requested number of
// bytes": every underlying read is a whole machine word, but the result
// is trimmed to exactly n bytes regardless of where a falls within a word.
func (t *Tracer) ReadBytes(pid int, a uint64, n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	wordStart := a &^ uint64(arch.PointerSize-1)
	lead := int(a - wordStart)
	var buf []byte
	for len(buf) < lead+n {
		word, err := t.ReadWord(pid, wordStart+uint64(len(buf)))
		if err != nil {
			return nil, err
		}
		var wbuf [arch.PointerSize]byte
		arch.ByteOrder.PutUint64(wbuf[:], word)
		buf = append(buf, wbuf[:]...)
	}
	return buf[lead : lead+n], nil
}

// WriteBytes writes data into pid's address space at a, read-modifying
// whole words at both ends so bytes outside [a, a+len(data)) within a
// partially-covered boundary word are preserved.
func (t *Tracer) WriteBytes(pid int, a uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	wordStart := a &^ uint64(arch.PointerSize-1)
	lead := int(a - wordStart)
	total := lead + len(data)
	total = (total + arch.PointerSize - 1) &^ (arch.PointerSize - 1)

	buf := make([]byte, 0, total)
	for len(buf) < total {
		word, err := t.ReadWord(pid, wordStart+uint64(len(buf)))
		if err != nil {
			return err
		}
		var wbuf [arch.PointerSize]byte
		arch.ByteOrder.PutUint64(wbuf[:], word)
		buf = append(buf, wbuf[:]...)
	}
	copy(buf[lead:lead+len(data)], data)

	for off := 0; off < total; off += arch.PointerSize {
		word := arch.ByteOrder.Uint64(buf[off : off+arch.PointerSize])
		if err := t.WriteWord(pid, wordStart+uint64(off), word); err != nil {
			return err
		}
	}
	return nil
}

// ProcessMaps implements the process facility's get_process_maps(pid)
// operation (spec.md §6). It reads /proc/<pid>/maps directly rather than
// through a ptrace call, so it does not need the dedicated thread.
func (t *Tracer) ProcessMaps(pid int) ([]procmaps.Entry, error) {
	return procmaps.Read(pid)
}
