package progress

import (
	"testing"
	"time"

	"github.com/nth-layer/orchestra/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Update_Snapshot(t *testing.T) {
	tr := New()
	tr.Update("gpt-4", "initial", engine.StatusStarted, "")
	tr.Update("gpt-4", "initial", engine.StatusCompleted, "done")

	snap := tr.Snapshot()
	require.Contains(t, snap, "initial")
	require.Contains(t, snap["initial"], "gpt-4")
	assert.Equal(t, engine.StatusCompleted, snap["initial"]["gpt-4"].Status)
}

func TestTracker_Overall_PendingWhenEmpty(t *testing.T) {
	tr := New()
	assert.Equal(t, engine.StatusPending, tr.Overall())
}

func TestTracker_Overall_InProgress(t *testing.T) {
	tr := New()
	tr.Update("m1", "initial", engine.StatusStarted, "")
	assert.Equal(t, engine.StatusInProgress, tr.Overall())
}

func TestTracker_Overall_CompletedWhenAllTerminal(t *testing.T) {
	tr := New()
	tr.Update("m1", "initial", engine.StatusCompleted, "")
	tr.Update("m2", "initial", engine.StatusCompleted, "")
	assert.Equal(t, engine.StatusCompleted, tr.Overall())
}

func TestTracker_Overall_FailedIfAnyFailed(t *testing.T) {
	tr := New()
	tr.Update("m1", "initial", engine.StatusCompleted, "")
	tr.Update("m2", "initial", engine.StatusFailed, "boom")
	assert.Equal(t, engine.StatusFailed, tr.Overall())
}

func TestTracker_Subscribe_ReceivesUpdatesInOrder(t *testing.T) {
	tr := New()
	ch, id := tr.Subscribe(8)
	defer tr.Unsubscribe(id)

	tr.Update("m1", "initial", engine.StatusStarted, "")
	tr.Update("m1", "initial", engine.StatusCompleted, "done")

	first := <-ch
	second := <-ch
	assert.Equal(t, engine.StatusStarted, first.Status)
	assert.Equal(t, engine.StatusCompleted, second.Status)
}

func TestTracker_Unsubscribe_StopsDelivery(t *testing.T) {
	tr := New()
	ch, id := tr.Subscribe(8)
	tr.Unsubscribe(id)

	tr.Update("m1", "initial", engine.StatusStarted, "")

	select {
	case <-ch:
		t.Fatal("expected no delivery after unsubscribe")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTracker_Subscribe_FullBufferDoesNotBlockUpdate(t *testing.T) {
	tr := New()
	_, id := tr.Subscribe(1)
	defer tr.Unsubscribe(id)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			tr.Update("m1", "initial", engine.StatusInProgress, "")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Update blocked on a full subscriber buffer")
	}
}
