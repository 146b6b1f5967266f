package debugger

import (
	"fmt"

	"github.com/traceline/dbg/arch"
	"github.com/traceline/dbg/errkind"
	"github.com/traceline/dbg/threadset"
	"github.com/traceline/dbg/unwind"
	"github.com/traceline/dbg/variable"
)

// ThreadState implements spec.md §6's thread_state().
func (d *Debugger) ThreadState() ([]threadset.Record, error) {
	if err := d.requireStarted(); err != nil {
		return nil, err
	}
	return d.threads.Dump(), nil
}

// Backtrace implements spec.md §6's backtrace(tid).
func (d *Debugger) Backtrace(tid int) ([]unwind.Frame, error) {
	if err := d.requireStarted(); err != nil {
		return nil, err
	}
	return d.uw.Backtrace(tid)
}

// ReadMemory implements spec.md §6's read_memory(addr, n): exactly n
// bytes on success (spec.md §8 testable property 7).
func (d *Debugger) ReadMemory(a uint64, n int) ([]byte, error) {
	if err := d.requireStarted(); err != nil {
		return nil, err
	}
	return d.tr.ReadBytes(d.threads.Focus(), a, n)
}

// WriteMemory implements spec.md §6's write_memory(addr, word).
func (d *Debugger) WriteMemory(a uint64, word uint64) error {
	if err := d.requireStarted(); err != nil {
		return err
	}
	return d.tr.WriteWord(d.threads.Focus(), a, word)
}

// GetRegister implements spec.md §6's get_register(name).
func (d *Debugger) GetRegister(name string) (uint64, error) {
	if err := d.requireStarted(); err != nil {
		return 0, err
	}
	num, ok := arch.RegisterByName[name]
	if !ok {
		return 0, fmt.Errorf("debugger: unknown register %q", name)
	}
	regs, err := d.tr.GetRegs(d.threads.Focus())
	if err != nil {
		return 0, err
	}
	return regs[num], nil
}

// SetRegister implements spec.md §6's set_register(name, u64).
func (d *Debugger) SetRegister(name string, v uint64) error {
	if err := d.requireStarted(); err != nil {
		return err
	}
	num, ok := arch.RegisterByName[name]
	if !ok {
		return fmt.Errorf("debugger: unknown register %q", name)
	}
	tid := d.threads.Focus()
	regs, err := d.tr.GetRegs(tid)
	if err != nil {
		return err
	}
	regs[num] = v
	return d.tr.SetRegs(tid, regs)
}

// ReadLocalVariables implements spec.md §6's read_local_variables: every
// local variable DIE whose lexical scope contains the focus PC.
func (d *Debugger) ReadLocalVariables() ([]*variable.IR, error) {
	if err := d.requireStarted(); err != nil {
		return nil, err
	}
	ctx, pc, err := d.evalContext()
	if err != nil {
		return nil, err
	}
	fn, ok := d.di.FindFunctionByPC(pc)
	if !ok {
		return nil, &errkind.NotInDebugFrame{PC: pc}
	}
	locals := fn.LocalVariables(pc)
	out := make([]*variable.IR, 0, len(locals))
	for _, v := range locals {
		out = append(out, d.vars.BuildVariable(ctx, v))
	}
	return out, nil
}

// ReadArgument implements spec.md §6's read_argument: the named formal
// parameter of the function containing the focus PC.
func (d *Debugger) ReadArgument(name string) (*variable.IR, error) {
	if err := d.requireStarted(); err != nil {
		return nil, err
	}
	ctx, pc, err := d.evalContext()
	if err != nil {
		return nil, err
	}
	fn, ok := d.di.FindFunctionByPC(pc)
	if !ok {
		return nil, &errkind.NotInDebugFrame{PC: pc}
	}
	for _, p := range fn.Parameters() {
		if p.Name == name {
			return d.vars.BuildVariable(ctx, p), nil
		}
	}
	return nil, &errkind.SymbolNotFound{Name: name}
}

// ReadVariable implements spec.md §6's read_variable(name): the debug
// info facade's find_variables(name), built against the first match
// (global and namespace-scoped variables are tried last, matching the
// lookup order a nested scope would shadow an outer one in).
func (d *Debugger) ReadVariable(name string) (*variable.IR, error) {
	if err := d.requireStarted(); err != nil {
		return nil, err
	}
	ctx, _, err := d.evalContext()
	if err != nil {
		return nil, err
	}
	dies := d.di.FindVariables(name)
	if len(dies) == 0 {
		return nil, &errkind.SymbolNotFound{Name: name}
	}
	return d.vars.BuildVariable(ctx, dies[0]), nil
}
