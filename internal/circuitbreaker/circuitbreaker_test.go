package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

func fail() error    { return errUpstream }
func succeed() error { return nil }

func TestOpensAfterFailureThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3})

	for i := 0; i < 2; i++ {
		if err := b.Do(fail); !errors.Is(err, errUpstream) {
			t.Fatalf("call %d: err = %v", i, err)
		}
		if b.State() != StateClosed {
			t.Fatalf("breaker opened after %d failures", i+1)
		}
	}
	if err := b.Do(fail); !errors.Is(err, errUpstream) {
		t.Fatalf("third call: err = %v", err)
	}
	if b.State() != StateOpen {
		t.Fatal("breaker should open at the threshold")
	}
}

func TestOpenRejectsWithoutCalling(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Cooldown: time.Minute})
	_ = b.Do(fail)

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
	if called {
		t.Fatal("open breaker should not invoke the function")
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New(Config{FailureThreshold: 2})
	_ = b.Do(fail)
	_ = b.Do(succeed)
	_ = b.Do(fail)
	if b.State() != StateClosed {
		t.Fatal("success between failures should reset the count")
	}
}

func TestHalfOpenProbeAndRecovery(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Cooldown: time.Minute})
	clock := time.Now()
	b.now = func() time.Time { return clock }

	_ = b.Do(fail)
	if b.State() != StateOpen {
		t.Fatal("breaker should be open")
	}

	clock = clock.Add(2 * time.Minute)
	if err := b.Do(succeed); err != nil {
		t.Fatalf("probe call: %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half_open after one probe", b.State())
	}
	if err := b.Do(succeed); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after success threshold", b.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Cooldown: time.Minute})
	clock := time.Now()
	b.now = func() time.Time { return clock }

	_ = b.Do(fail)
	clock = clock.Add(2 * time.Minute)
	_ = b.Do(fail)
	if b.State() != StateOpen {
		t.Fatal("failed probe should reopen the breaker")
	}
	if err := b.Do(succeed); !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen after reopen", err)
	}
}

func TestOnStateChange(t *testing.T) {
	var transitions []string
	b := New(Config{FailureThreshold: 1, Cooldown: time.Minute, OnStateChange: func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}})
	clock := time.Now()
	b.now = func() time.Time { return clock }

	_ = b.Do(fail)
	clock = clock.Add(2 * time.Minute)
	_ = b.Do(succeed)
	_ = b.Do(succeed)

	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, transitions[i], want[i])
		}
	}
}
