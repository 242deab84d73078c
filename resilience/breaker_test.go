package resilience

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(max int, cooldown time.Duration) (*Breaker, *fakeClock, *[]string) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	var changes []string
	b := NewBreaker(BreakerConfig{
		Name:        "sink",
		MaxFailures: max,
		Cooldown:    cooldown,
		OnStateChange: func(name string, from, to BreakerState) {
			changes = append(changes, from.String()+"->"+to.String())
		},
	})
	b.now = clock.now
	return b, clock, &changes
}

var errDown = errors.New("down")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b, _, _ := newTestBreaker(3, time.Second)
	for i := 0; i < 2; i++ {
		_ = b.Do(func() error { return errDown })
	}
	if b.State() != BreakerClosed {
		t.Fatalf("expected closed after 2 failures, got %s", b.State())
	}
	_ = b.Do(func() error { return errDown })
	if b.State() != BreakerOpen {
		t.Fatalf("expected open after 3 failures, got %s", b.State())
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrBreakerOpen) || called {
		t.Fatalf("expected rejected call, got err=%v called=%v", err, called)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _, _ := newTestBreaker(2, time.Second)
	_ = b.Do(func() error { return errDown })
	_ = b.Do(func() error { return nil })
	_ = b.Do(func() error { return errDown })
	if b.State() != BreakerClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}
}

func TestBreaker_TrialAfterCooldown(t *testing.T) {
	tests := []struct {
		name  string
		trial error
		want  BreakerState
	}{
		{"trial succeeds", nil, BreakerClosed},
		{"trial fails", errDown, BreakerOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, clock, _ := newTestBreaker(1, time.Minute)
			_ = b.Do(func() error { return errDown })
			clock.t = clock.t.Add(time.Minute)
			if b.State() != BreakerHalfOpen {
				t.Fatalf("expected half-open after cooldown, got %s", b.State())
			}
			_ = b.Do(func() error { return tt.trial })
			if b.State() != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, b.State())
			}
		})
	}
}

func TestBreaker_OneTrialAtATime(t *testing.T) {
	b, clock, _ := newTestBreaker(1, time.Second)
	_ = b.Do(func() error { return errDown })
	clock.t = clock.t.Add(time.Second)

	var inner error
	err := b.Do(func() error {
		inner = b.Do(func() error { return nil })
		return nil
	})
	if err != nil {
		t.Fatalf("expected the trial call to pass, got %v", err)
	}
	if !errors.Is(inner, ErrBreakerOpen) {
		t.Fatalf("expected concurrent call to be rejected, got %v", inner)
	}
}

func TestBreaker_ReportsTransitions(t *testing.T) {
	b, clock, changes := newTestBreaker(1, time.Second)
	_ = b.Do(func() error { return errDown })
	clock.t = clock.t.Add(time.Second)
	_ = b.Do(func() error { return nil })
	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(*changes) != len(want) {
		t.Fatalf("expected %v, got %v", want, *changes)
	}
	for i := range want {
		if (*changes)[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, *changes)
		}
	}
}
