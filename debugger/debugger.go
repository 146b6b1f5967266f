// Package debugger is the public facade of spec.md §6: the single type a
// caller constructs, starts, and drives through breakpoint, stepping, and
// inspection operations, wiring every other package in this module
// together. Grounded on golang-debug/ogle/program/server.Server's
// single-owner shape (one struct holding the process, the breakpoint
// table, and every derived index), generalized to the explicit
// collaborator set spec.md §4 names instead of one monolithic struct.
package debugger

import (
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"

	"github.com/traceline/dbg/addr"
	"github.com/traceline/dbg/arch"
	"github.com/traceline/dbg/breakpoint"
	"github.com/traceline/dbg/debugee"
	"github.com/traceline/dbg/dwarfinfo"
	"github.com/traceline/dbg/errkind"
	"github.com/traceline/dbg/stepping"
	"github.com/traceline/dbg/threadset"
	"github.com/traceline/dbg/tracer"
	"github.com/traceline/dbg/unwind"
	"github.com/traceline/dbg/variable"
)

// Debugger is the facade of spec.md §6. It is constructed once per
// debugee path (New), then Start is called exactly once before any other
// operation; every method but SetBreakpoint fails with
// errkind.NotStarted before that.
type Debugger struct {
	path            string
	compilerVersion string
	logger          *slog.Logger

	di *dwarfinfo.Facade
	tr *tracer.Tracer
	bp *breakpoint.Table

	threads *threadset.Registry
	ctrl    *debugee.Controller
	loop    *debugee.Loop
	uw      *unwind.Unwinder
	step    *stepping.Engine
	vars    *variable.Builder

	// Event hooks of spec.md §6, invoked synchronously inside whichever
	// method stopped the debugee. Nil hooks are simply skipped.
	OnTrap   func(place dwarfinfo.Place, ok bool)
	OnSignal func(signo, code int)
	OnExit   func(exitCode int)
}

// New loads path's debug info and builds the facade's pre-start
// collaborators (the debug-info facade, the dedicated ptrace thread, and
// an empty breakpoint table). The debugee itself is not started; call
// Start for that. logFile, if non-empty, additionally fans diagnostic
// logging out to a JSON-lines file alongside the default stderr text log
// — the two-sink arrangement github.com/samber/slog-multi exists for.
func New(path string, logFile string) (*Debugger, error) {
	di, err := dwarfinfo.Load(path)
	if err != nil {
		return nil, err
	}
	tr := tracer.New()
	return &Debugger{
		path:            path,
		compilerVersion: di.Producer(),
		logger:          newLogger(logFile),
		di:              di,
		tr:              tr,
		bp:              breakpoint.New(tr),
	}, nil
}

func newLogger(logFile string) *slog.Logger {
	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}),
	}
	if logFile != "" {
		if f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

func (d *Debugger) requireStarted() error {
	if d.ctrl == nil || !d.ctrl.InProgress() {
		return errkind.NotStarted
	}
	return nil
}

// evalContext builds the per-read evaluation context of spec.md §4.5 for
// the current focus thread, plus its current PC in the global (as-linked)
// address space.
func (d *Debugger) evalContext() (*variable.EvalContext, addr.Global, error) {
	tid := d.threads.Focus()
	regs, err := d.tr.GetRegs(tid)
	if err != nil {
		return nil, 0, err
	}
	offset, _ := d.ctrl.MappingOffset()
	pc := addr.Relocated(regs[arch.DwarfRIP]).IntoGlobal(offset)
	return variable.NewEvalContext(tid, pc, offset, d.compilerVersion), pc, nil
}
