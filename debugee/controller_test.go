package debugee

import (
	"testing"

	"github.com/traceline/dbg/addr"
	"github.com/traceline/dbg/threadset"
)

type fakeResumer struct{}

func (fakeResumer) Resume(tid int) error    { return nil }
func (fakeResumer) Interrupt(tid int) error { return nil }

func newTestController(mainPid int) *Controller {
	reg := threadset.New(mainPid, fakeResumer{})
	return New(reg, "/bin/fixture", addr.Global(0x1000))
}

func TestDebugeeStartMarksMainStopped(t *testing.T) {
	c := newTestController(100)
	ev := c.OnDebugeeStart(0x555000)
	if ev.Kind != KindDebugeeStart || ev.Observable {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if !c.InProgress() {
		t.Fatalf("expected InProgress after DebugeeStart")
	}
	if off, ok := c.MappingOffset(); !ok || off != 0x555000 {
		t.Fatalf("unexpected mapping offset: %#x ok=%v", off, ok)
	}
	if c.Threads.Status(100) != threadset.Stopped {
		t.Fatalf("expected main thread Stopped")
	}
}

func TestBreakpointFocusesAndStops(t *testing.T) {
	c := newTestController(100)
	c.OnDebugeeStart(0)
	c.OnBeforeNewThread(100, 200)
	ev, err := c.OnBreakpoint(200)
	if err != nil {
		t.Fatalf("OnBreakpoint: %v", err)
	}
	if ev.Kind != KindBreakpoint || ev.Tid != 200 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if c.Threads.Focus() != 200 {
		t.Fatalf("expected focus on 200, got %d", c.Threads.Focus())
	}
	if !c.Threads.AllStopped() {
		t.Fatalf("expected every thread Stopped after Breakpoint")
	}
}

func TestDebugeeExitRemovesMainThread(t *testing.T) {
	c := newTestController(100)
	c.OnDebugeeStart(0)
	ev := c.OnDebugeeExit(0)
	if ev.Kind != KindDebugeeExit || ev.ExitCode != 0 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if c.InProgress() {
		t.Fatalf("expected InProgress false after DebugeeExit")
	}
	dump := c.Threads.Dump()
	for _, rec := range dump {
		if rec.Tid == 100 {
			t.Fatalf("expected main tid removed after DebugeeExit")
		}
	}
}

func TestNoSuchProcessIsSwallowed(t *testing.T) {
	c := newTestController(100)
	c.OnDebugeeStart(0)
	c.OnBeforeNewThread(100, 200)
	ev := c.OnNoSuchProcess(200)
	if ev.Kind != KindNoSuchProcess || ev.Tid != 200 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if c.Threads.Status(200) != threadset.Stopped {
		// removed tids report Stopped as the registry's conservative default
		t.Fatalf("expected removed tid to report the conservative default")
	}
}
