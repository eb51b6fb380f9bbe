// Package resilience provides the bounded retry primitive used for upstream
// calls.
//
// The central type is [Retrier], a per-call state machine
// (idle → attempting → backoff → attempting → ... → succeeded/failed) with a
// deterministic doubling backoff schedule. Only errors the classifier reports
// as retryable earn another attempt; everything else fails fast. Backoff
// sleeps are interruptible through the caller's context.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/MrWong99/cinescope/pkg/types"
)

// State represents the phase of a single retried call.
type State int

const (
	// StateIdle is the initial phase before the first attempt.
	StateIdle State = iota

	// StateAttempting means an upstream attempt is in flight.
	StateAttempting

	// StateBackoff means the previous attempt failed with a retryable error
	// and the retrier is sleeping before the next one.
	StateBackoff

	// StateSucceeded is the terminal phase after a successful attempt.
	StateSucceeded

	// StateFailed is the terminal phase after a non-retryable error, a
	// cancelled backoff, or an exhausted attempt budget.
	StateFailed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateBackoff:
		return "backoff"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config holds tuning knobs for a [Retrier].
type Config struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxAttempts is the total number of attempts per call, including the
	// first. Default: 3.
	MaxAttempts int

	// InitialDelay is the backoff before the second attempt; it doubles after
	// each further failure. Default: 1s.
	InitialDelay time.Duration

	// Retryable reports whether an error is worth another attempt. Default:
	// [types.Retryable].
	Retryable func(error) bool

	// Sleep suspends between attempts and returns early with the context's
	// error when it is cancelled. Default: a timer-backed sleep. Tests inject
	// a recorder here.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnTransition, when non-nil, observes every state change of a call.
	// attempt is the 1-based attempt the machine is in or has just finished.
	OnTransition func(from, to State, attempt int)
}

// Retrier runs functions under a bounded retry policy. A single Retrier is
// shared across calls; each call gets its own state machine.
type Retrier struct {
	name         string
	maxAttempts  int
	initialDelay time.Duration
	retryable    func(error) bool
	sleep        func(ctx context.Context, d time.Duration) error
	onTransition func(from, to State, attempt int)
}

// New creates a [Retrier] with the supplied configuration. Zero-value config
// fields are replaced with sensible defaults.
func New(cfg Config) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.Retryable == nil {
		cfg.Retryable = types.Retryable
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	return &Retrier{
		name:         cfg.Name,
		maxAttempts:  cfg.MaxAttempts,
		initialDelay: cfg.InitialDelay,
		retryable:    cfg.Retryable,
		sleep:        cfg.Sleep,
		onTransition: cfg.OnTransition,
	}
}

// call tracks the state machine for one logical upstream call.
type call struct {
	state   State
	attempt int
	delay   time.Duration
}

// transition moves the call to the next state and notifies the observer.
// Must only be called from the goroutine driving the call.
func (r *Retrier) transition(c *call, to State) {
	if r.onTransition != nil {
		r.onTransition(c.state, to, c.attempt)
	}
	c.state = to
}

// Do runs fn under the retry policy. A success returns nil immediately without
// consuming the remaining budget. A non-retryable error is surfaced unchanged
// after the current attempt. When all attempts fail with retryable errors, Do
// returns a [types.KindRetryExhausted] error wrapping the last failure.
//
// Cancelling ctx during a backoff aborts the call with the context's error;
// fn receives the same ctx and is expected to honour it mid-attempt.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	c := &call{state: StateIdle, delay: r.initialDelay}
	var lastErr error

	for c.attempt = 1; c.attempt <= r.maxAttempts; c.attempt++ {
		r.transition(c, StateAttempting)

		err := fn(ctx)
		if err == nil {
			r.transition(c, StateSucceeded)
			return nil
		}
		lastErr = err

		if !r.retryable(err) {
			r.transition(c, StateFailed)
			return err
		}
		if c.attempt == r.maxAttempts {
			break
		}

		r.transition(c, StateBackoff)
		slog.Debug("backing off before retry",
			"name", r.name,
			"attempt", c.attempt,
			"delay", c.delay,
			"error", err)
		if serr := r.sleep(ctx, c.delay); serr != nil {
			r.transition(c, StateFailed)
			return serr
		}
		c.delay *= 2
	}

	r.transition(c, StateFailed)
	slog.Warn("giving up after exhausting retry budget",
		"name", r.name,
		"attempts", r.maxAttempts,
		"error", lastErr)
	return &types.Error{
		Kind:      types.KindRetryExhausted,
		Message:   "giving up after " + strconv.Itoa(r.maxAttempts) + " attempts",
		Retryable: true,
		Cause:     lastErr,
	}
}

// sleepContext blocks for d or until ctx is cancelled, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
