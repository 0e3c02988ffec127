package backoff

import (
	"testing"
	"time"
)

func TestConstant(t *testing.T) {
	c := NewConstant(5 * time.Second)
	for _, attempt := range []int{1, 2, 10} {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want 5s", attempt, got)
		}
	}
}

func TestExponential(t *testing.T) {
	e := NewExponential(time.Second, time.Minute)

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{10, time.Minute}, // capped
	}
	for _, tc := range cases {
		if got := e.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestExponentialWithJitter_Bounds(t *testing.T) {
	e := NewExponentialWithJitter(time.Second, 10*time.Second)

	for range 100 {
		d := e.Delay(3) // base 4s
		if d < 0 || d > 4*time.Second {
			t.Fatalf("Delay(3) = %v, want in [0, 4s]", d)
		}
	}

	// Above the cap the upper bound is Max.
	for range 100 {
		d := e.Delay(20)
		if d < 0 || d > 10*time.Second {
			t.Fatalf("Delay(20) = %v, want in [0, 10s]", d)
		}
	}
}

func TestController_Decide(t *testing.T) {
	c := NewController(NewExponential(time.Second, time.Minute), 4)

	// Retryable with budget left: requeue with the strategy delay.
	d := c.Decide(1, true)
	if !d.Requeue || d.Delay != time.Second || d.Exhausted {
		t.Errorf("Decide(1, retryable) = %+v, want requeue 1s", d)
	}
	d = c.Decide(3, true)
	if !d.Requeue || d.Delay != 4*time.Second {
		t.Errorf("Decide(3, retryable) = %+v, want requeue 4s", d)
	}

	// Budget exhausted on the final attempt.
	d = c.Decide(4, true)
	if d.Requeue || !d.Exhausted {
		t.Errorf("Decide(4, retryable) = %+v, want exhausted dead-letter", d)
	}

	// Permanent failures never retry, whatever the budget.
	d = c.Decide(1, false)
	if d.Requeue || d.Exhausted {
		t.Errorf("Decide(1, permanent) = %+v, want immediate dead-letter", d)
	}
}

func TestController_MinimumBudget(t *testing.T) {
	c := NewController(nil, 0)
	if c.MaxAttempts() != 1 {
		t.Errorf("MaxAttempts() = %d, want 1", c.MaxAttempts())
	}
	if d := c.Decide(1, true); d.Requeue {
		t.Errorf("Decide(1) with budget 1 = %+v, want no requeue", d)
	}
}
