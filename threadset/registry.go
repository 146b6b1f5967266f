// Package threadset tracks the set of kernel threads that make up a traced
// process, their run/stop status, and which one is currently in focus for
// inspection. It mirrors the bookkeeping spec.md §3 calls the "thread
// record" and "debugee", grounded on golang-debug/ogle/program/server's
// single-Server-owns-all-state style and on the original BugStalker's
// debugee::thread::ThreadCtl (register/remove/status/cont_stopped/
// interrupt_running/dump).
package threadset

import "fmt"

// Status is a thread's position in the Created → Stopped → Running cycle.
type Status int

const (
	// Created marks a thread the controller has just learned about (e.g.
	// from a clone/fork event) that has not yet reached its first stop.
	Created Status = iota
	Stopped
	Running
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Record is the per-thread bookkeeping entry. ThreadDBInfo is set when the
// thread-debugging helper library successfully enriched this thread (e.g.
// with TLS layout); it is nil when that integration is absent or failed,
// per spec.md §1's "degrades gracefully" requirement.
type Record struct {
	Tid          int
	Status       Status
	ThreadDBInfo any
}

// Resumer lets the registry ask the tracer to actually move threads,
// without threadset depending on the ptrace-facing package. It is
// implemented by the debugee controller's tracer adapter.
type Resumer interface {
	Resume(tid int) error
	Interrupt(tid int) error
}

// Registry is the thread registry of spec.md §2/§3: it knows about every
// live thread of one traced process, a distinguished focus thread, and the
// process (main thread) id, which is always a member while the debugee
// lives.
type Registry struct {
	procPid int
	focus   int
	threads map[int]*Record
	resumer Resumer
}

// New creates a registry for a not-yet-running process. The main thread is
// registered as Created; it becomes Stopped on the DebugeeStart transition.
func New(procPid int, resumer Resumer) *Registry {
	r := &Registry{
		procPid: procPid,
		focus:   procPid,
		threads: make(map[int]*Record),
		resumer: resumer,
	}
	r.threads[procPid] = &Record{Tid: procPid, Status: Created}
	return r
}

// ProcPid returns the main process id, always present while the debugee lives.
func (r *Registry) ProcPid() int { return r.procPid }

// Focus returns the thread id currently selected for inspection.
func (r *Registry) Focus() int { return r.focus }

// SetFocus selects tid as the inspection target. The caller is responsible
// for only focusing threads that are actually registered.
func (r *Registry) SetFocus(tid int) { r.focus = tid }

// Register adds a newly observed thread in Created status. Idempotent: a
// thread already known keeps its existing status.
func (r *Registry) Register(tid int) {
	if _, ok := r.threads[tid]; ok {
		return
	}
	r.threads[tid] = &Record{Tid: tid, Status: Created}
}

// Remove drops tid from the registry. Idempotent.
func (r *Registry) Remove(tid int) {
	delete(r.threads, tid)
}

// Status reports tid's current status. A thread not in the registry
// reports Stopped as a conservative default (it behaves, for callers like
// "are all threads stopped", as absent rather than running).
func (r *Registry) Status(tid int) Status {
	if rec, ok := r.threads[tid]; ok {
		return rec.Status
	}
	return Stopped
}

// SetStopStatus marks tid Stopped. Registers the thread first if unknown,
// matching the original's set_stop_status semantics of never failing on
// an unregistered tid.
func (r *Registry) SetStopStatus(tid int) {
	rec, ok := r.threads[tid]
	if !ok {
		rec = &Record{Tid: tid}
		r.threads[tid] = rec
	}
	rec.Status = Stopped
}

// SetRunStatus marks tid Running.
func (r *Registry) SetRunStatus(tid int) {
	rec, ok := r.threads[tid]
	if !ok {
		rec = &Record{Tid: tid}
		r.threads[tid] = rec
	}
	rec.Status = Running
}

// SetThreadDBInfo attaches thread-debugging-helper enrichment to tid, when
// present. A no-op if tid is unknown.
func (r *Registry) SetThreadDBInfo(tid int, info any) {
	if rec, ok := r.threads[tid]; ok {
		rec.ThreadDBInfo = info
	}
}

// ContinueStopped resumes every currently Stopped thread, marking each
// Running as it is resumed. Used whenever the controller needs every
// thread moving again (thread exit, thread interrupt while Created).
func (r *Registry) ContinueStopped() error {
	for tid, rec := range r.threads {
		if rec.Status != Stopped {
			continue
		}
		if err := r.resumer.Resume(tid); err != nil {
			return fmt.Errorf("resume thread %d: %w", tid, err)
		}
		rec.Status = Running
	}
	return nil
}

// InterruptRunning sends an interrupt to every currently Running thread so
// that, after the current event is handled, every live thread in the
// registry ends up Stopped (spec.md §4.1 invariant).
func (r *Registry) InterruptRunning() error {
	for tid, rec := range r.threads {
		if rec.Status != Running {
			continue
		}
		if err := r.resumer.Interrupt(tid); err != nil {
			return fmt.Errorf("interrupt thread %d: %w", tid, err)
		}
	}
	return nil
}

// AllStopped reports whether every registered thread is Stopped. This is
// the universal invariant spec.md §8 requires to hold after any observable
// stop event surfaces to the facade.
func (r *Registry) AllStopped() bool {
	for _, rec := range r.threads {
		if rec.Status != Stopped {
			return false
		}
	}
	return true
}

// Dump returns a stable-ish snapshot of every registered thread, for the
// facade's thread_state() operation.
func (r *Registry) Dump() []Record {
	out := make([]Record, 0, len(r.threads))
	for _, rec := range r.threads {
		out = append(out, *rec)
	}
	return out
}
