package resource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nth-layer/orchestra/engine"
)

func TestLevelClassification(t *testing.T) {
	assert.Equal(t, engine.LevelOptimal, Level(10, 70, 90))
	assert.Equal(t, engine.LevelWarning, Level(75, 70, 90))
	assert.Equal(t, engine.LevelCritical, Level(95, 70, 90))
	assert.Equal(t, engine.LevelCritical, Level(90, 70, 90), "boundary value counts as critical")
}

func TestEvaluateDecreasesConcurrencyByOneStepOnCriticalCPU(t *testing.T) {
	o := New(Config{MaxConcurrency: 8, MinConcurrency: 1, CooldownSeconds: 10}, nil)
	require.EqualValues(t, 8, o.CurrentConcurrency())

	o.evaluate(engine.ResourceMetrics{CPUPercent: 95, MemPercent: 10})
	assert.EqualValues(t, 7, o.CurrentConcurrency(), "a single critical sample steps concurrency down by exactly one")

	// Cooldown blocks a second adjustment immediately after the first.
	o.evaluate(engine.ResourceMetrics{CPUPercent: 95, MemPercent: 10})
	assert.EqualValues(t, 7, o.CurrentConcurrency(), "cooldown window prevents a second adjustment")
}

func TestEvaluateIncreasesConcurrencyWhenIdle(t *testing.T) {
	o := New(Config{MaxConcurrency: 8, MinConcurrency: 1, CooldownSeconds: 10, Thresholds: Thresholds{CPUScaleUp: 40, CPUWarning: 70, CPUCritical: 90, MemWarning: 75, MemCritical: 90}}, nil)
	o.current.Store(4)

	o.evaluate(engine.ResourceMetrics{CPUPercent: 10, MemPercent: 20})
	assert.EqualValues(t, 5, o.CurrentConcurrency())
}

func TestAdjustConcurrencyClampsToBounds(t *testing.T) {
	o := New(Config{MaxConcurrency: 4, MinConcurrency: 2}, nil)
	o.current.Store(2)

	o.adjustConcurrency(-5)
	assert.EqualValues(t, 2, o.CurrentConcurrency(), "never drops below MinConcurrency")

	o.current.Store(4)
	o.adjustConcurrency(5)
	assert.EqualValues(t, 4, o.CurrentConcurrency(), "never exceeds MaxConcurrency")
}

func TestEvaluatePublishesActionsToSubscribers(t *testing.T) {
	o := New(Config{MaxConcurrency: 8, MinConcurrency: 1, CooldownSeconds: 0}, nil)
	ch, id := o.Subscribe(4)
	defer o.Unsubscribe(id)

	o.evaluate(engine.ResourceMetrics{CPUPercent: 95, MemPercent: 95})

	select {
	case action := <-ch:
		assert.Equal(t, engine.ActionReduceConcurrency, action)
	case <-time.After(time.Second):
		t.Fatal("expected an OptimizationAction to be published")
	}

	// Critical memory also queues cache-clear and GC actions.
	seen := map[engine.OptimizationAction]bool{}
	for {
		select {
		case a := <-ch:
			seen[a] = true
		default:
			assert.True(t, seen[engine.ActionClearCache])
			assert.True(t, seen[engine.ActionForceGC])
			return
		}
	}
}

func TestSubscribeUnsubscribeStopsDelivery(t *testing.T) {
	o := New(Config{MaxConcurrency: 8, MinConcurrency: 1, CooldownSeconds: 0}, nil)
	ch, id := o.Subscribe(4)
	o.Unsubscribe(id)

	o.evaluate(engine.ResourceMetrics{CPUPercent: 95, MemPercent: 10})

	select {
	case <-ch:
		t.Fatal("unsubscribed channel should not receive further actions")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewFillsInDefaults(t *testing.T) {
	o := New(Config{}, nil)
	assert.EqualValues(t, 32, o.CurrentConcurrency())
	assert.Equal(t, "/", o.cfg.DiskPath)
	assert.Equal(t, 30*time.Second, o.cfg.MonitoringInterval)
}
