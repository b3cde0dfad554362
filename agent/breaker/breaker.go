package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

const (
	defaultThreshold    = 5
	defaultResetTimeout = 60 * time.Second
)

// Breaker shields callers from a failing primary responder. Closed passes
// everything through; after `threshold` consecutive failures it opens and
// serves the fallback; once the reset timeout elapses it half-opens and
// admits exactly one probe.
type Breaker struct {
	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool

	threshold    int
	resetTimeout time.Duration
	now          func() time.Time
}

type Option func(*Breaker)

func WithThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

func WithResetTimeout(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.resetTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

func New(opts ...Option) *Breaker {
	b := &Breaker{
		state:        StateClosed,
		threshold:    defaultThreshold,
		resetTimeout: defaultResetTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Primary is the protected call; its error is what the breaker counts.
type Primary func(ctx context.Context) (contractx.GraphResult, error)

// Fallback must always produce a presentable result.
type Fallback func(ctx context.Context) contractx.GraphResult

// Do runs the primary when the breaker admits it, otherwise the fallback.
// A failing primary also falls back, so the caller always gets a result.
func (b *Breaker) Do(ctx context.Context, primary Primary, fallback Fallback) contractx.GraphResult {
	if !b.allow() {
		log.Debug().Str("state", string(b.State())).Msg("circuit open, serving fallback")
		return fallback(ctx)
	}

	res, err := b.run(ctx, primary)
	if err != nil {
		b.onFailure(err)
		return fallback(ctx)
	}
	b.onSuccess()
	return res
}

// run invokes the primary, converting a panic into an error so that the
// failure path still runs and a half-open admission is never left hanging.
func (b *Breaker) run(ctx context.Context, primary Primary) (res contractx.GraphResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("primary panicked: %v", r)
		}
	}()
	return primary(ctx)
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		log.Info().Msg("circuit breaker half-open, admitting probe")
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return false
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		log.Info().Msg("circuit breaker closed after successful probe")
	}
	b.state = StateClosed
	b.failures = 0
	b.probing = false
}

func (b *Breaker) onFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.trip(err)
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.trip(err)
		}
	}
}

// trip must be called with the lock held.
func (b *Breaker) trip(err error) {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
	b.probing = false
	log.Warn().Err(err).Msg("circuit breaker opened")
}
