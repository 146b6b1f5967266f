package debugger

import (
	"github.com/traceline/dbg/addr"
	"github.com/traceline/dbg/arch"
	"github.com/traceline/dbg/debugee"
	"github.com/traceline/dbg/dwarfinfo"
)

// Continue implements spec.md §6's continue: resume every stopped thread
// and run the event loop to its next observable event.
func (d *Debugger) Continue() (debugee.Event, error) {
	if err := d.requireStarted(); err != nil {
		return debugee.Event{}, err
	}
	return d.finish(d.loop.Run())
}

// StepInstruction implements step_instruction.
func (d *Debugger) StepInstruction() (debugee.Event, error) {
	if err := d.requireStarted(); err != nil {
		return debugee.Event{}, err
	}
	return d.finish(d.step.StepInstruction())
}

// StepIn implements step_in.
func (d *Debugger) StepIn() (debugee.Event, error) {
	if err := d.requireStarted(); err != nil {
		return debugee.Event{}, err
	}
	return d.finish(d.step.StepIn())
}

// StepOver implements step_over.
func (d *Debugger) StepOver() (debugee.Event, error) {
	if err := d.requireStarted(); err != nil {
		return debugee.Event{}, err
	}
	return d.finish(d.step.StepOver())
}

// StepOut implements step_out.
func (d *Debugger) StepOut() (debugee.Event, error) {
	if err := d.requireStarted(); err != nil {
		return debugee.Event{}, err
	}
	return d.finish(d.step.StepOut())
}

func (d *Debugger) finish(ev debugee.Event, err error) (debugee.Event, error) {
	if err != nil {
		return debugee.Event{}, err
	}
	d.dispatchHook(ev)
	return ev, nil
}

// dispatchHook fires the spec.md §6 event hooks synchronously, inside the
// facade method that just stopped the debugee.
func (d *Debugger) dispatchHook(ev debugee.Event) {
	switch ev.Kind {
	case debugee.KindBreakpoint, debugee.KindAtEntryPoint, debugee.KindTrapTrace:
		if d.OnTrap == nil {
			return
		}
		place, ok := d.placeAtFocus()
		d.OnTrap(place, ok)
	case debugee.KindOsSignal:
		if d.OnSignal != nil {
			d.OnSignal(ev.SigNo, ev.SigCode)
		}
	case debugee.KindDebugeeExit:
		if d.OnExit != nil {
			d.OnExit(ev.ExitCode)
		}
	}
}

func (d *Debugger) placeAtFocus() (place dwarfinfo.Place, ok bool) {
	regs, err := d.tr.GetRegs(d.threads.Focus())
	if err != nil {
		return place, false
	}
	offset, _ := d.ctrl.MappingOffset()
	pc := addr.Relocated(regs[arch.DwarfRIP]).IntoGlobal(offset)
	return d.di.FindPlaceFromPC(pc)
}
