package threadset

import "testing"

type fakeResumer struct {
	resumed    []int
	interrupts []int
	failTid    int
}

func (f *fakeResumer) Resume(tid int) error {
	if tid == f.failTid {
		return errFail
	}
	f.resumed = append(f.resumed, tid)
	return nil
}

func (f *fakeResumer) Interrupt(tid int) error {
	if tid == f.failTid {
		return errFail
	}
	f.interrupts = append(f.interrupts, tid)
	return nil
}

type fakeErr struct{ s string }

func (e *fakeErr) Error() string { return e.s }

var errFail = &fakeErr{"boom"}

func TestRegisterAndRemoveIdempotent(t *testing.T) {
	r := New(100, &fakeResumer{})
	r.Register(200)
	r.Register(200) // idempotent
	if got := r.Status(200); got != Created {
		t.Fatalf("expected Created, got %v", got)
	}
	r.Remove(200)
	r.Remove(200) // idempotent, must not panic
	if got := r.Status(200); got != Stopped {
		t.Fatalf("removed thread should report Stopped as absent-default, got %v", got)
	}
}

func TestAllStoppedInvariant(t *testing.T) {
	r := New(100, &fakeResumer{})
	r.Register(200)
	r.SetStopStatus(100)
	r.SetRunStatus(200)
	if r.AllStopped() {
		t.Fatal("expected AllStopped == false while thread 200 runs")
	}
	r.SetStopStatus(200)
	if !r.AllStopped() {
		t.Fatal("expected AllStopped == true once every thread stops")
	}
}

func TestContinueStoppedResumesAndMarksRunning(t *testing.T) {
	resumer := &fakeResumer{}
	r := New(100, resumer)
	r.SetStopStatus(100)
	r.Register(200)
	r.SetStopStatus(200)

	if err := r.ContinueStopped(); err != nil {
		t.Fatalf("ContinueStopped: %v", err)
	}
	if r.Status(100) != Running || r.Status(200) != Running {
		t.Fatalf("expected both threads running after ContinueStopped")
	}
	if len(resumer.resumed) != 2 {
		t.Fatalf("expected 2 resumes, got %d", len(resumer.resumed))
	}
}

func TestFocusDefaultsToProcPid(t *testing.T) {
	r := New(42, &fakeResumer{})
	if r.Focus() != 42 {
		t.Fatalf("expected initial focus == proc pid 42, got %d", r.Focus())
	}
	r.SetFocus(7)
	if r.Focus() != 7 {
		t.Fatalf("expected focus 7, got %d", r.Focus())
	}
}
