package service

import (
	"context"
	"errors"
	"sync"
)

// errInterrupted is the cancellation cause of an agent invocation that was
// cut short by a user interrupt.
var errInterrupted = errors.New("interrupted by user")

// InterruptController carries user control signals into a running loop:
// interrupts, pause/resume holds, and step-mode credits. All methods are
// safe for concurrent use; the loop is the only consumer.
type InterruptController struct {
	mu       sync.Mutex
	pending  []string
	inflight context.CancelCauseFunc
	wake     chan struct{}
	stepMode bool
	hold     bool
	credits  int
}

// NewInterruptController creates a controller. With stepMode the loop
// pauses after every round until Step or Resume is called.
func NewInterruptController(stepMode bool) *InterruptController {
	return &InterruptController{
		wake:     make(chan struct{}, 1),
		stepMode: stepMode,
	}
}

// Interrupt queues a user message and cancels the in-flight agent
// invocation, if any. Tool calls are not affected.
func (c *InterruptController) Interrupt(message string) {
	c.mu.Lock()
	c.pending = append(c.pending, message)
	if c.inflight != nil {
		c.inflight(errInterrupted)
	}
	c.mu.Unlock()
	c.signal()
}

// Pause asks the loop to hold after the current round.
func (c *InterruptController) Pause() {
	c.mu.Lock()
	c.hold = true
	c.mu.Unlock()
}

// Resume releases a hold and leaves step mode.
func (c *InterruptController) Resume() {
	c.mu.Lock()
	c.hold = false
	c.stepMode = false
	c.mu.Unlock()
	c.signal()
}

// Step grants one more round to a loop in step mode or on hold. It reports
// whether a credit was granted.
func (c *InterruptController) Step() bool {
	c.mu.Lock()
	granted := c.stepMode || c.hold
	if granted {
		c.credits++
	}
	c.mu.Unlock()
	if granted {
		c.signal()
	}
	return granted
}

// StepMode reports whether the loop pauses between rounds.
func (c *InterruptController) StepMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stepMode
}

func (c *InterruptController) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// beginInvocation derives a cancellable context for one agent invocation.
// Interrupts that arrived before the invocation cancel it right away.
func (c *InterruptController) beginInvocation(ctx context.Context) context.Context {
	ictx, cancel := context.WithCancelCause(ctx)
	c.mu.Lock()
	c.inflight = cancel
	if len(c.pending) > 0 {
		cancel(errInterrupted)
	}
	c.mu.Unlock()
	return ictx
}

func (c *InterruptController) endInvocation() {
	c.mu.Lock()
	if c.inflight != nil {
		c.inflight(nil)
		c.inflight = nil
	}
	c.mu.Unlock()
}

// drain returns and clears the queued interrupt messages.
func (c *InterruptController) drain() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out
}

// shouldPause reports whether the loop must pause before the next round.
// A pending interrupt always lets the loop proceed; an available step
// credit is consumed.
func (c *InterruptController) shouldPause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) > 0 {
		return false
	}
	if c.credits > 0 {
		c.credits--
		return false
	}
	return c.stepMode || c.hold
}

// waitResume blocks until the loop may proceed or ctx is done.
func (c *InterruptController) waitResume(ctx context.Context) error {
	for {
		if !c.shouldPause() {
			return nil
		}
		select {
		case <-c.wake:
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}
