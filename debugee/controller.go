// Package debugee is the debugee controller and event loop of spec.md
// §4.1 and §4.4: the state machine that turns raw trace events (child
// stopped/exited/cloned) into the semantic states spec.md lists
// (DebugeeStart, AtEntryPoint, Breakpoint, OsSignal, thread lifecycle,
// TrapTrace, DebugeeExit, NoSuchProcess), applying each one's thread
// registry transition. Grounded on golang-debug/ogle/program/server's
// single-owner state machine (one Server struct holding the process,
// threads, and breakpoints, driven by a wait loop), generalized to the
// explicit state-transition table spec.md §4.1 specifies.
package debugee

import (
	"fmt"

	"github.com/traceline/dbg/addr"
	"github.com/traceline/dbg/threadset"
)

// Kind discriminates the semantic debugee events of spec.md §4.1.
type Kind int

const (
	KindDebugeeStart Kind = iota
	KindAtEntryPoint
	KindBreakpoint
	KindOsSignal
	KindBeforeNewThread
	KindThreadInterrupt
	KindBeforeThreadExit
	KindThreadExit
	KindTrapTrace
	KindDebugeeExit
	KindNoSuchProcess
)

func (k Kind) String() string {
	switch k {
	case KindDebugeeStart:
		return "DebugeeStart"
	case KindAtEntryPoint:
		return "AtEntryPoint"
	case KindBreakpoint:
		return "Breakpoint"
	case KindOsSignal:
		return "OsSignal"
	case KindBeforeNewThread:
		return "BeforeNewThread"
	case KindThreadInterrupt:
		return "ThreadInterrupt"
	case KindBeforeThreadExit:
		return "BeforeThreadExit"
	case KindThreadExit:
		return "ThreadExit"
	case KindTrapTrace:
		return "TrapTrace"
	case KindDebugeeExit:
		return "DebugeeExit"
	case KindNoSuchProcess:
		return "NoSuchProcess"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is the semantic state the controller emits for one raw trace
// event, carrying only the fields meaningful for its Kind.
type Event struct {
	Kind Kind

	Tid       int // AtEntryPoint, Breakpoint, OsSignal, ThreadInterrupt, BeforeThreadExit, ThreadExit, NoSuchProcess
	ParentPid int // BeforeNewThread
	NewTid    int // BeforeNewThread

	SigNo   int // OsSignal
	SigCode int // OsSignal

	ExitCode int // DebugeeExit

	// Observable is true for the events the event loop treats as a
	// breakout (surfaced to the facade) rather than looped internally.
	Observable bool
}

func observable(k Kind) bool {
	switch k {
	case KindBreakpoint, KindAtEntryPoint, KindOsSignal, KindDebugeeExit, KindTrapTrace, KindNoSuchProcess:
		return true
	default:
		return false
	}
}

// Rendezvous is the loader-provided dynamic-object list populated at
// entry point. Its fields are opaque to the controller; they exist so
// callers (the public facade) can surface them, matching spec.md §3's
// "optional rendezvous state (populated at entry point)".
type Rendezvous struct {
	LinkMapAddr addr.Relocated
	Valid       bool
}

// Controller is the debugee state machine of spec.md §4.1. It owns the
// thread registry and the mapping-offset/in-progress/rendezvous state
// that make up spec.md §3's "Debugee" record. The zero value is not
// usable; construct with New.
type Controller struct {
	Threads *threadset.Registry

	path        string
	entryGlobal addr.Global

	inProgress    bool
	mappingOffset uint64
	haveOffset    bool
	rendezvous    Rendezvous

	threadDBInit func(tid int) (any, bool) // optional thread-debug-helper probe, may be nil
}

// New constructs a Controller for a not-yet-started debugee at path,
// whose entry point (as linked) is entryGlobal.
func New(threads *threadset.Registry, path string, entryGlobal addr.Global) *Controller {
	return &Controller{Threads: threads, path: path, entryGlobal: entryGlobal}
}

// SetThreadDBProbe installs the optional thread-debugging-helper
// integration spec.md §1 describes as degrading gracefully when absent.
func (c *Controller) SetThreadDBProbe(probe func(tid int) (any, bool)) {
	c.threadDBInit = probe
}

// InProgress reports whether the debugee has reached DebugeeStart and
// has not yet exited.
func (c *Controller) InProgress() bool { return c.inProgress }

// MappingOffset returns the computed load offset and whether it has
// been set yet (it is unknown before DebugeeStart).
func (c *Controller) MappingOffset() (uint64, bool) { return c.mappingOffset, c.haveOffset }

// Path returns the debugee's canonical on-disk path.
func (c *Controller) Path() string { return c.path }

// EntryPointGlobal returns the executable's entry point in the global
// (as-linked) address space.
func (c *Controller) EntryPointGlobal() addr.Global { return c.entryGlobal }

// Rendezvous returns the dynamic-linker rendezvous state built at
// AtEntryPoint, if any.
func (c *Controller) Rendezvous() Rendezvous { return c.rendezvous }

func mk(k Kind) Event { return Event{Kind: k, Observable: observable(k)} }

// OnDebugeeStart applies spec.md §4.1's DebugeeStart transition: set
// in-progress, fix the mapping offset (computed by the caller from
// /proc/<pid>/maps, per spec.md §3), and mark the main thread Stopped.
func (c *Controller) OnDebugeeStart(offset uint64) Event {
	c.inProgress = true
	c.mappingOffset = offset
	c.haveOffset = true
	c.Threads.SetStopStatus(c.Threads.ProcPid())
	return mk(KindDebugeeStart)
}

// OnBeforeNewThread applies the BeforeNewThread transition: mark the
// parent Stopped, register the new tid as Created.
func (c *Controller) OnBeforeNewThread(pid, tid int) Event {
	c.Threads.SetStopStatus(pid)
	c.Threads.Register(tid)
	e := mk(KindBeforeNewThread)
	e.ParentPid, e.NewTid = pid, tid
	return e
}

// OnThreadInterrupt applies the ThreadInterrupt transition: a thread
// still in Created status is promoted to Stopped and every stopped
// thread is resumed (it was only interrupted as a side effect of
// registering); any other thread is simply marked Stopped.
func (c *Controller) OnThreadInterrupt(tid int) (Event, error) {
	if c.Threads.Status(tid) == threadset.Created {
		c.Threads.SetStopStatus(tid)
		if err := c.Threads.ContinueStopped(); err != nil {
			return Event{}, err
		}
	} else {
		c.Threads.SetStopStatus(tid)
	}
	e := mk(KindThreadInterrupt)
	e.Tid = tid
	return e, nil
}

// OnBeforeThreadExit applies the BeforeThreadExit transition: mark
// Stopped, resume every stopped thread, then remove tid.
func (c *Controller) OnBeforeThreadExit(tid int) (Event, error) {
	c.Threads.SetStopStatus(tid)
	if err := c.Threads.ContinueStopped(); err != nil {
		return Event{}, err
	}
	c.Threads.Remove(tid)
	e := mk(KindBeforeThreadExit)
	e.Tid = tid
	return e, nil
}

// OnThreadExit reports a thread's actual exit (as opposed to
// BeforeThreadExit's pre-exit notification). It is idempotent: removing
// an already-absent tid is a no-op.
func (c *Controller) OnThreadExit(tid int) Event {
	c.Threads.Remove(tid)
	e := mk(KindThreadExit)
	e.Tid = tid
	return e
}

// OnBreakpoint applies the Breakpoint transition: focus tid, mark it
// Stopped, interrupt every other running thread so the registry
// invariant ("every live thread Stopped on observable surface") holds
// once the interrupts land.
func (c *Controller) OnBreakpoint(tid int) (Event, error) {
	c.Threads.SetFocus(tid)
	c.Threads.SetStopStatus(tid)
	if err := c.Threads.InterruptRunning(); err != nil {
		return Event{}, err
	}
	e := mk(KindBreakpoint)
	e.Tid = tid
	return e, nil
}

// OnAtEntryPoint applies the AtEntryPoint transition: build rendezvous
// state, attempt the optional thread-debug-helper init, focus tid, mark
// Stopped, interrupt other running threads.
func (c *Controller) OnAtEntryPoint(tid int, link addr.Relocated) (Event, error) {
	c.rendezvous = Rendezvous{LinkMapAddr: link, Valid: true}
	if c.threadDBInit != nil {
		if info, ok := c.threadDBInit(tid); ok {
			c.Threads.SetThreadDBInfo(tid, info)
		}
	}
	c.Threads.SetFocus(tid)
	c.Threads.SetStopStatus(tid)
	if err := c.Threads.InterruptRunning(); err != nil {
		return Event{}, err
	}
	e := mk(KindAtEntryPoint)
	e.Tid = tid
	return e, nil
}

// OnSignal applies the OsSignal transition for a signal the controller
// does not internally consume: focus tid, mark Stopped, interrupt
// running threads.
func (c *Controller) OnSignal(tid, signo, code int) (Event, error) {
	c.Threads.SetFocus(tid)
	c.Threads.SetStopStatus(tid)
	if err := c.Threads.InterruptRunning(); err != nil {
		return Event{}, err
	}
	e := mk(KindOsSignal)
	e.Tid, e.SigNo, e.SigCode = tid, signo, code
	return e, nil
}

// OnTrapTrace reports a single-step completion. The stepping engine
// already knows which thread it single-stepped; this only focuses and
// marks it Stopped so the registry invariant continues to hold.
func (c *Controller) OnTrapTrace(tid int) Event {
	c.Threads.SetFocus(tid)
	c.Threads.SetStopStatus(tid)
	e := mk(KindTrapTrace)
	e.Tid = tid
	return e
}

// OnDebugeeExit applies the DebugeeExit transition: remove the main
// tid and end the debugee's lifecycle.
func (c *Controller) OnDebugeeExit(code int) Event {
	c.Threads.Remove(c.Threads.ProcPid())
	c.inProgress = false
	e := mk(KindDebugeeExit)
	e.ExitCode = code
	return e
}

// OnNoSuchProcess implements spec.md §4.1's failure model: a trace
// call reporting "no such process" for an individual tid is swallowed
// as a thread-exit rather than propagated as fatal.
func (c *Controller) OnNoSuchProcess(tid int) Event {
	c.Threads.Remove(tid)
	e := mk(KindNoSuchProcess)
	e.Tid = tid
	return e
}
