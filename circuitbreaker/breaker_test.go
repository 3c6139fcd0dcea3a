package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nth-layer/orchestra/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.Threshold)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 60*time.Second, cfg.ResetTimeout)
}

func TestNew_ZeroValuesCorrected(t *testing.T) {
	b := New("test", Config{}, nil)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 5, b.cfg.Threshold)
	assert.Equal(t, 30*time.Second, b.cfg.Timeout)
	assert.Equal(t, 60*time.Second, b.cfg.ResetTimeout)
}

func TestNew_CustomValuesPreserved(t *testing.T) {
	b := New("test", Config{Threshold: 3, Timeout: 5 * time.Second, ResetTimeout: 10 * time.Second}, nil)
	assert.Equal(t, 3, b.cfg.Threshold)
	assert.Equal(t, 5*time.Second, b.cfg.Timeout)
	assert.Equal(t, 10*time.Second, b.cfg.ResetTimeout)
}

func TestBreaker_Call_Success(t *testing.T) {
	b := New("t", DefaultConfig(), nil)
	err := b.Call(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New("t", Config{Threshold: 3, Timeout: time.Second, ResetTimeout: time.Minute}, nil)
	failing := engine.NewError(engine.ErrProviderUnavailable, "down")

	for i := 0; i < 3; i++ {
		err := b.Call(context.Background(), func(ctx context.Context) error { return failing })
		require.Error(t, err)
	}
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_NonRetryableErrorsDontCountTowardThreshold(t *testing.T) {
	b := New("t", Config{Threshold: 2, Timeout: time.Second, ResetTimeout: time.Minute}, nil)
	badRequest := engine.NewError(engine.ErrBadRequest, "bad").WithRetryable(false)

	for i := 0; i < 10; i++ {
		err := b.Call(context.Background(), func(ctx context.Context) error { return badRequest })
		require.Error(t, err)
	}
	assert.Equal(t, StateClosed, b.State(), "non-retryable errors must not trip the breaker")
}

func TestBreaker_OpenRejectsCallsUntilResetTimeout(t *testing.T) {
	b := New("t", Config{Threshold: 1, Timeout: time.Second, ResetTimeout: 20 * time.Millisecond}, nil)
	failing := engine.NewError(engine.ErrTimeout, "slow")

	err := b.Call(context.Background(), func(ctx context.Context) error { return failing })
	require.Error(t, err)
	require.Equal(t, StateOpen, b.State())

	err = b.Call(context.Background(), func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Equal(t, engine.ErrCircuitOpen, engine.CodeOf(err))

	time.Sleep(30 * time.Millisecond)
	err = b.Call(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenAllowsExactlyOneProbe(t *testing.T) {
	b := New("t", Config{Threshold: 1, Timeout: time.Second, ResetTimeout: 10 * time.Millisecond}, nil)
	failing := engine.NewError(engine.ErrTimeout, "slow")

	_ = b.Call(context.Background(), func(ctx context.Context) error { return failing })
	require.Equal(t, StateOpen, b.State())
	time.Sleep(15 * time.Millisecond)

	var wg sync.WaitGroup
	var rejected int32
	release := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Call(context.Background(), func(ctx context.Context) error {
			<-release
			return nil
		})
	}()

	time.Sleep(5 * time.Millisecond) // let the first probe claim the slot
	err := b.Call(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		atomic.AddInt32(&rejected, 1)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&rejected), "a second half-open probe must be rejected")
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New("t", Config{Threshold: 1, Timeout: time.Second, ResetTimeout: 10 * time.Millisecond}, nil)
	failing := engine.NewError(engine.ErrTimeout, "slow")

	_ = b.Call(context.Background(), func(ctx context.Context) error { return failing })
	time.Sleep(15 * time.Millisecond)

	err := b.Call(context.Background(), func(ctx context.Context) error { return failing })
	require.Error(t, err)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_CallTimeout(t *testing.T) {
	b := New("t", Config{Threshold: 5, Timeout: 10 * time.Millisecond, ResetTimeout: time.Minute}, nil)
	err := b.Call(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.Equal(t, engine.ErrTimeout, engine.CodeOf(err))
}

func TestBreaker_Reset(t *testing.T) {
	b := New("t", Config{Threshold: 1, Timeout: time.Second, ResetTimeout: time.Minute}, nil)
	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OnStateChangeCallback(t *testing.T) {
	var transitions int32
	b := New("t", Config{
		Threshold: 1, Timeout: time.Second, ResetTimeout: time.Minute,
		OnStateChange: func(from, to State) { atomic.AddInt32(&transitions, 1) },
	}, nil)

	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("boom") })

	require.Eventually(t, func() bool { return atomic.LoadInt32(&transitions) == 1 }, time.Second, time.Millisecond)
}

func TestCallWithResultTyped(t *testing.T) {
	b := New("t", DefaultConfig(), nil)
	val, err := CallWithResultTyped(b, context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
}
