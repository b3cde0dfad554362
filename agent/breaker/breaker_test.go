package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fallbackResult() contractx.GraphResult {
	return contractx.GraphResult{Response: "fallback", Escalated: true, EscalationReason: "fallback"}
}

func failingPrimary(calls *int) Primary {
	return func(context.Context) (contractx.GraphResult, error) {
		*calls++
		return contractx.GraphResult{}, errors.New("primary down")
	}
}

func healthyPrimary(calls *int) Primary {
	return func(context.Context) (contractx.GraphResult, error) {
		*calls++
		return contractx.GraphResult{Response: "primary"}, nil
	}
}

func fallback(ctx context.Context) contractx.GraphResult { return fallbackResult() }

func TestOpensAfterThresholdFailures(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := New(WithThreshold(3), WithClock(clock.Now))

	var calls int
	for i := 0; i < 3; i++ {
		out := b.Do(context.Background(), failingPrimary(&calls), fallback)
		if out.Response != "fallback" {
			t.Fatalf("failure %d must serve fallback, got %+v", i, out)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}

	// open: primary not touched
	before := calls
	b.Do(context.Background(), failingPrimary(&calls), fallback)
	if calls != before {
		t.Fatalf("open breaker must not call primary: calls=%d", calls)
	}
}

func TestHalfOpenAdmitsSingleProbe(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := New(WithThreshold(1), WithResetTimeout(30*time.Second), WithClock(clock.Now))

	var calls int
	b.Do(context.Background(), failingPrimary(&calls), fallback)
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}

	clock.Advance(31 * time.Second)

	// the probe is slow; a concurrent call must be rejected meanwhile
	probeStarted := make(chan struct{})
	release := make(chan struct{})
	probeDone := make(chan contractx.GraphResult, 1)
	go func() {
		out := b.Do(context.Background(), func(context.Context) (contractx.GraphResult, error) {
			close(probeStarted)
			<-release
			return contractx.GraphResult{Response: "primary"}, nil
		}, fallback)
		probeDone <- out
	}()

	<-probeStarted
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half_open", b.State())
	}
	var concurrent int
	out := b.Do(context.Background(), healthyPrimary(&concurrent), fallback)
	if concurrent != 0 || out.Response != "fallback" {
		t.Fatalf("second half-open call must fall back: calls=%d out=%+v", concurrent, out)
	}

	close(release)
	if out := <-probeDone; out.Response != "primary" {
		t.Fatalf("probe result = %+v", out)
	}
	if b.State() != StateClosed {
		t.Fatalf("state after successful probe = %s, want closed", b.State())
	}
}

func TestFailedProbeReopens(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := New(WithThreshold(1), WithResetTimeout(30*time.Second), WithClock(clock.Now))

	var calls int
	b.Do(context.Background(), failingPrimary(&calls), fallback)
	clock.Advance(31 * time.Second)
	b.Do(context.Background(), failingPrimary(&calls), fallback)

	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open after failed probe", b.State())
	}
}

func TestPanickingProbeReopens(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := New(WithThreshold(1), WithResetTimeout(30*time.Second), WithClock(clock.Now))

	var calls int
	b.Do(context.Background(), failingPrimary(&calls), fallback)
	clock.Advance(31 * time.Second)

	out := b.Do(context.Background(), func(context.Context) (contractx.GraphResult, error) {
		panic("primary blew up")
	}, fallback)
	if out.Response != "fallback" {
		t.Fatalf("panicking primary must serve fallback, got %+v", out)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open after panicking probe", b.State())
	}

	// the breaker is not wedged: the next reset window admits a fresh probe
	clock.Advance(31 * time.Second)
	var healthy int
	out = b.Do(context.Background(), healthyPrimary(&healthy), fallback)
	if healthy != 1 || out.Response != "primary" {
		t.Fatalf("recovered primary not admitted: calls=%d out=%+v", healthy, out)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %s, want closed after successful recovery", b.State())
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := New(WithThreshold(2))

	var failures, successes int
	b.Do(context.Background(), failingPrimary(&failures), fallback)
	b.Do(context.Background(), healthyPrimary(&successes), fallback)
	b.Do(context.Background(), failingPrimary(&failures), fallback)

	if b.State() != StateClosed {
		t.Fatalf("state = %s, want closed (success must reset the count)", b.State())
	}
}
