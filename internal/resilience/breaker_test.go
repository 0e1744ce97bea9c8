package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("service unavailable")

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func tripped(t *testing.T, b *Breaker, n int) {
	t.Helper()
	for range n {
		if err := b.Execute(func() error { return errTest }); !errors.Is(err, errTest) {
			t.Fatalf("expected errTest while tripping, got %v", err)
		}
	}
}

func TestBreaker_ClosedAllowsCalls(t *testing.T) {
	b := NewBreaker("test", 3, time.Second)
	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %s", b.State())
	}
}

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker("test", 3, time.Second)
	tripped(t, b, 3)

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatal("fn must not run while open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("test", 2, time.Second)
	tripped(t, b, 1)
	_ = b.Execute(func() error { return nil })
	tripped(t, b, 1)

	if b.State() != StateClosed {
		t.Fatalf("non-consecutive failures opened the breaker: %s", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	tests := []struct {
		name      string
		probeErr  error
		wantState State
	}{
		{"success closes", nil, StateClosed},
		{"failure reopens", errTest, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &clock{t: time.Now()}
			b := NewBreaker("test", 2, time.Second)
			b.now = c.now
			tripped(t, b, 2)

			c.t = c.t.Add(2 * time.Second)
			if b.State() != StateHalfOpen {
				t.Fatalf("expected half_open after timeout, got %s", b.State())
			}

			_ = b.Execute(func() error { return tt.probeErr })
			if got := b.State(); got != tt.wantState {
				t.Fatalf("state = %s, want %s", got, tt.wantState)
			}
		})
	}
}

func TestBreaker_SingleProbeInHalfOpen(t *testing.T) {
	c := &clock{t: time.Now()}
	b := NewBreaker("test", 1, time.Second)
	b.now = c.now
	tripped(t, b, 1)
	c.t = c.t.Add(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second concurrent probe: expected ErrCircuitOpen, got %v", err)
	}
	close(release)
	wg.Wait()

	if b.State() != StateClosed {
		t.Fatalf("state after successful probe = %s", b.State())
	}
}

func TestBreaker_FailureFilter(t *testing.T) {
	errUser := errors.New("exit status 1")
	b := NewBreaker("test", 1, time.Second, WithFailureFilter(func(err error) bool {
		return !errors.Is(err, errUser)
	}))

	for range 5 {
		if err := b.Execute(func() error { return errUser }); !errors.Is(err, errUser) {
			t.Fatalf("expected errUser returned, got %v", err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("filtered errors opened the breaker: %s", b.State())
	}

	tripped(t, b, 1)
	if b.State() != StateOpen {
		t.Fatalf("counted error did not open the breaker: %s", b.State())
	}
}

func TestBreaker_StateHook(t *testing.T) {
	c := &clock{t: time.Now()}
	var transitions []string
	b := NewBreaker("sandbox", 1, time.Second, WithStateHook(func(name string, from, to State) {
		transitions = append(transitions, name+":"+string(from)+"->"+string(to))
	}))
	b.now = c.now

	tripped(t, b, 1)
	c.t = c.t.Add(2 * time.Second)
	_ = b.Execute(func() error { return nil })

	want := []string{
		"sandbox:closed->open",
		"sandbox:open->half_open",
		"sandbox:half_open->closed",
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, transitions[i], want[i])
		}
	}
}
