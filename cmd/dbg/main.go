// Command dbg is a small interactive driver over the debugger package: it
// loads a binary's debug info, starts it under ptrace, and drops into a
// line-edited REPL (github.com/chzyer/readline) whose commands (break,
// continue, step, print, ...) are themselves parsed by a cobra command
// tree, the same CLI library cmd/viewcore already depends on. This is
// deliberately thin — a full terminal UI is out of scope; this exists to
// exercise the facade end to end.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/traceline/dbg/debugger"
	"github.com/traceline/dbg/dwarfinfo"
	"github.com/traceline/dbg/variable"
)

var (
	logFile = flag.String("log", "", "write JSON diagnostic logs to this file in addition to stderr")
)

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: dbg [-log file] <binary> [args...]")
		os.Exit(2)
	}

	d, err := debugger.New(args[0], *logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dbg: %v\n", err)
		os.Exit(1)
	}
	defer d.Close()

	repl := newREPL(d)
	d.OnTrap = func(place dwarfinfo.Place, ok bool) {
		if ok {
			fmt.Printf("stopped at %s:%d\n", place.File, place.Line)
		} else {
			fmt.Println("stopped (no matching source line)")
		}
	}
	d.OnSignal = func(signo, code int) {
		fmt.Printf("signal %d (code %d)\n", signo, code)
	}
	d.OnExit = func(code int) {
		fmt.Printf("debugee exited with status %d\n", code)
	}

	if _, err := d.Start(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "dbg: start: %v\n", err)
		os.Exit(1)
	}

	rl, err := readline.New("(dbg) ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "dbg: readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF on Ctrl-D, readline.ErrInterrupt on Ctrl-C
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return
		}
		repl.root.SetArgs(strings.Fields(line))
		if err := repl.root.Execute(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

// replCommands is the cobra tree one REPL line is parsed against. It has
// no relation to the process's own flag.Parse invocation above; Execute
// is called once per typed line with SetArgs, not on os.Args.
type replCommands struct {
	root *cobra.Command
}

func newREPL(d *debugger.Debugger) *replCommands {
	root := &cobra.Command{Use: "dbg", SilenceUsage: true, SilenceErrors: true}

	root.AddCommand(&cobra.Command{
		Use:   "break <address|function|file:line>",
		Short: "set a breakpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := d.SetBreakpoint(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("breakpoint set at %v\n", pc)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "continue",
		Short: "resume the debugee until the next event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := d.Continue()
			return err
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "step [instruction|in|over|out]",
		Short: "single-step the focus thread",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := "instruction"
			if len(args) == 1 {
				mode = args[0]
			}
			var err error
			switch mode {
			case "instruction":
				_, err = d.StepInstruction()
			case "in":
				_, err = d.StepIn()
			case "over":
				_, err = d.StepOver()
			case "out":
				_, err = d.StepOut()
			default:
				return fmt.Errorf("unknown step mode %q", mode)
			}
			return err
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "print <variable>",
		Short: "print a local variable, argument, or global",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ir, err := d.ReadVariable(args[0])
			if err != nil {
				if arg, argErr := d.ReadArgument(args[0]); argErr == nil {
					ir = arg
					err = nil
				}
			}
			if err != nil {
				return err
			}
			fmt.Println(renderIR(ir))
			return nil
		},
	})

	return &replCommands{root: root}
}

// renderIR is a minimal one-line rendering of a variable IR node, enough
// for the REPL's print command; it does not attempt the full recursive
// pretty-printing a real front end would want.
func renderIR(ir *variable.IR) string {
	switch ir.NodeKind {
	case variable.KindScalar:
		return fmt.Sprintf("%s = %v", ir.TypeName, ir.ScalarValue)
	case variable.KindPointer:
		return fmt.Sprintf("%s = 0x%x", ir.TypeName, uint64(ir.Addr))
	case variable.KindCEnum:
		return fmt.Sprintf("%s = %s", ir.TypeName, ir.EnumName)
	case variable.KindTaggedEnum:
		return fmt.Sprintf("%s = %s(...)", ir.TypeName, ir.VariantName)
	case variable.KindStruct:
		return fmt.Sprintf("%s{%d fields}", ir.TypeName, len(ir.Fields))
	case variable.KindArray:
		return fmt.Sprintf("%s[%d]", ir.TypeName, len(ir.Items))
	case variable.KindSpecialized:
		return fmt.Sprintf("%s (%s)", ir.TypeName, ir.Specialized.RenderUUID())
	case variable.KindNoValue:
		return fmt.Sprintf("%s = <error: %v>", ir.TypeName, ir.Err)
	default:
		return ir.TypeName
	}
}
