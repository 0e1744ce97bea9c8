package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInterruptCancelsInflightInvocation(t *testing.T) {
	c := NewInterruptController(false)
	ictx := c.beginInvocation(context.Background())

	c.Interrupt("stop")
	select {
	case <-ictx.Done():
	case <-time.After(time.Second):
		t.Fatal("invocation context not cancelled")
	}
	if !errors.Is(context.Cause(ictx), errInterrupted) {
		t.Errorf("cause = %v", context.Cause(ictx))
	}
	c.endInvocation()

	if got := c.drain(); len(got) != 1 || got[0] != "stop" {
		t.Errorf("drain = %v", got)
	}
	if got := c.drain(); len(got) != 0 {
		t.Errorf("second drain = %v", got)
	}
}

func TestInterruptBeforeInvocationCancelsImmediately(t *testing.T) {
	c := NewInterruptController(false)
	c.Interrupt("early")
	ictx := c.beginInvocation(context.Background())
	if ictx.Err() == nil {
		t.Fatal("pending interrupt should cancel the next invocation")
	}
	c.endInvocation()
}

func TestEndInvocationDoesNotReportInterrupt(t *testing.T) {
	c := NewInterruptController(false)
	ictx := c.beginInvocation(context.Background())
	c.endInvocation()
	if errors.Is(context.Cause(ictx), errInterrupted) {
		t.Error("normal end reported as interrupt")
	}
	c.Interrupt("between rounds")
	if len(c.drain()) != 1 {
		t.Error("interrupt between invocations was lost")
	}
}

func TestStepModeCredits(t *testing.T) {
	c := NewInterruptController(true)
	if !c.shouldPause() {
		t.Fatal("step mode should pause")
	}
	if !c.Step() {
		t.Fatal("Step should grant a credit in step mode")
	}
	if c.shouldPause() {
		t.Error("credit not consumed")
	}
	if !c.shouldPause() {
		t.Error("second round should pause again")
	}

	c.Resume()
	if c.StepMode() || c.shouldPause() {
		t.Error("Resume should leave step mode")
	}
	if c.Step() {
		t.Error("Step outside step mode and hold should not grant")
	}
}

func TestPauseHoldsUntilResume(t *testing.T) {
	c := NewInterruptController(false)
	c.Pause()
	if !c.shouldPause() {
		t.Fatal("hold not applied")
	}

	done := make(chan error, 1)
	go func() { done <- c.waitResume(context.Background()) }()

	select {
	case <-done:
		t.Fatal("waitResume returned while held")
	case <-time.After(20 * time.Millisecond):
	}
	c.Resume()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("waitResume did not return after Resume")
	}
}

func TestPendingInterruptReleasesPause(t *testing.T) {
	c := NewInterruptController(true)
	done := make(chan error, 1)
	go func() { done <- c.waitResume(context.Background()) }()

	c.Interrupt("new instructions")
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("interrupt did not release the pause")
	}
}

func TestWaitResumeReturnsCause(t *testing.T) {
	c := NewInterruptController(true)
	ctx, cancel := context.WithCancelCause(context.Background())
	want := errors.New("shutdown")
	cancel(want)
	if err := c.waitResume(ctx); !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}
