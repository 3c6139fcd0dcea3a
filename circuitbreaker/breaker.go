// Package circuitbreaker implements the per-provider circuit breaker used
// by the Fallback Service and orchestrator to stop sending calls to a
// provider that is failing repeatedly (spec §4.3).
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nth-layer/orchestra/engine"

	"go.uber.org/zap"
)

// State is one of the three circuit breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// halfOpenMaxCalls is fixed at exactly one in-flight probe while the
// breaker is half-open (spec §4.3 invariant; not configurable — a second
// concurrent probe could flip the breaker back to Open on the first of two
// races before the other's result is known).
const halfOpenMaxCalls = 1

// Config tunes one breaker instance.
type Config struct {
	// Threshold is the number of consecutive retryable failures that trips
	// the breaker from Closed to Open.
	Threshold int

	// Timeout bounds a single call's duration.
	Timeout time.Duration

	// ResetTimeout is how long the breaker stays Open before allowing one
	// probe call in HalfOpen.
	ResetTimeout time.Duration

	// OnStateChange is invoked (in its own goroutine) on every transition.
	OnStateChange func(from, to State)
}

// DefaultConfig returns the breaker defaults grounded on the teacher's
// DefaultConfig, minus HalfOpenMaxCalls which is no longer configurable.
func DefaultConfig() Config {
	return Config{
		Threshold:    5,
		Timeout:      30 * time.Second,
		ResetTimeout: 60 * time.Second,
	}
}

var (
	// ErrOpen is returned when a call is rejected because the breaker is Open.
	ErrOpen = errors.New("circuit breaker is open")
	// ErrTooManyHalfOpenCalls is returned when a second probe arrives while
	// the single half-open slot is already occupied.
	ErrTooManyHalfOpenCalls = errors.New("circuit breaker: half-open probe already in flight")
)

// Breaker guards calls to a single provider/model pair.
type Breaker struct {
	id     string
	cfg    Config
	logger *zap.Logger

	mu                sync.RWMutex
	state             State
	failureCount      int
	lastFailureTime   time.Time
	halfOpenCallCount int
}

// New builds a Breaker for id, applying defaults for zero-valued fields.
func New(id string, cfg Config, logger *zap.Logger) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{id: id, cfg: cfg, logger: logger.With(zap.String("breaker", id)), state: StateClosed}
}

// ID returns the breaker's identifier, typically "<provider>:<model>".
func (b *Breaker) ID() string { return b.id }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Call executes fn under the breaker's state machine and timeout, applying
// spec §4.3's non-retryable-errors-don't-count rule (an *engine.Error with
// Retryable=false, e.g. bad request or unauthorized, is a caller mistake,
// not evidence the provider is unhealthy).
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := CallWithResultTyped(b, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

type callResult[T any] struct {
	val T
	err error
}

// CallWithResultTyped runs fn under b's state machine and returns its
// typed result, grounded on the teacher's generic.go helper.
func CallWithResultTyped[T any](b *Breaker, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if err := b.beforeCall(); err != nil {
		return zero, err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	resultCh := make(chan callResult[T], 1)
	go func() {
		val, err := fn(callCtx)
		resultCh <- callResult[T]{val: val, err: err}
	}()

	select {
	case <-callCtx.Done():
		b.afterCall(false)
		return zero, engine.NewError(engine.ErrTimeout, fmt.Sprintf("breaker %s: call timed out", b.id)).WithCause(callCtx.Err())

	case res := <-resultCh:
		var engErr *engine.Error
		success := res.err == nil || (errors.As(res.err, &engErr) && !engErr.Retryable)
		b.afterCall(success)
		if res.err != nil {
			return zero, res.err
		}
		return res.val, nil
	}
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(b.lastFailureTime) <= b.cfg.ResetTimeout {
			return engine.NewError(engine.ErrCircuitOpen, "circuit breaker open").WithCause(ErrOpen)
		}
		b.setState(StateHalfOpen)
		b.halfOpenCallCount = 0
		b.logger.Info("breaker entering half-open")
		b.halfOpenCallCount++
		return nil

	case StateHalfOpen:
		if b.halfOpenCallCount >= halfOpenMaxCalls {
			return engine.NewError(engine.ErrCircuitOpen, "half-open probe slot occupied").WithCause(ErrTooManyHalfOpenCalls)
		}
		b.halfOpenCallCount++
		return nil

	default:
		return fmt.Errorf("circuit breaker %s: unknown state %v", b.id, b.state)
	}
}

func (b *Breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.logger.Info("breaker recovered", zap.Int("half_open_calls", b.halfOpenCallCount))
		b.setState(StateClosed)
		b.failureCount = 0
		b.halfOpenCallCount = 0
	case StateOpen:
		b.logger.Warn("breaker received success while open")
	}
}

func (b *Breaker) onFailure() {
	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.cfg.Threshold {
			b.logger.Warn("breaker opening", zap.Int("failure_count", b.failureCount), zap.Int("threshold", b.cfg.Threshold))
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.logger.Warn("breaker probe failed, reopening")
		b.setState(StateOpen)
		b.halfOpenCallCount = 0
	case StateOpen:
		b.logger.Warn("breaker received failure while open")
	}
}

func (b *Breaker) setState(next State) {
	prev := b.state
	b.state = next
	if b.cfg.OnStateChange != nil {
		go b.cfg.OnStateChange(prev, next)
	}
}

// Reset forces the breaker back to Closed, clearing counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.state
	b.state = StateClosed
	b.failureCount = 0
	b.halfOpenCallCount = 0
	b.logger.Info("breaker reset", zap.String("from_state", prev.String()))
	if b.cfg.OnStateChange != nil && prev != StateClosed {
		go b.cfg.OnStateChange(prev, StateClosed)
	}
}
