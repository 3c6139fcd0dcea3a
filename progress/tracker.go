// Package progress implements the Progress Tracker (spec §4.5): the
// {stage -> {modelId -> status}} matrix for one orchestrator run, with
// updates fanned out to subscribers over channels rather than stored
// callbacks (a callback held by the tracker and closing over the
// orchestrator that owns the tracker is exactly the cyclic-reference shape
// spec §9 calls out to avoid).
package progress

import (
	"sync"
	"time"

	"github.com/nth-layer/orchestra/engine"
)

// cell is one (stage, model) pair's current state.
type cell struct {
	status  engine.ProgressStatus
	message string
	ts      time.Time
}

// Tracker holds the full status matrix for one orchestrator run and
// delivers every update to subscribers in the order it occurs.
type Tracker struct {
	mu     sync.RWMutex
	matrix map[string]map[string]cell // stage -> model -> cell

	subMu       sync.Mutex
	subscribers map[int]chan engine.ProgressUpdate
	nextSubID   int
}

// New builds an empty Tracker.
func New() *Tracker {
	return &Tracker{
		matrix:      make(map[string]map[string]cell),
		subscribers: make(map[int]chan engine.ProgressUpdate),
	}
}

// Update records a new status for (model, stage) and delivers it to every
// current subscriber. A subscriber whose buffer is full is skipped for this
// update rather than blocking the run (progress is best-effort telemetry,
// not a control-flow signal).
func (t *Tracker) Update(model, stage string, status engine.ProgressStatus, message string) {
	update := engine.ProgressUpdate{Model: model, Stage: stage, Status: status, Message: message, Ts: time.Now()}

	t.mu.Lock()
	if t.matrix[stage] == nil {
		t.matrix[stage] = make(map[string]cell)
	}
	t.matrix[stage][model] = cell{status: status, message: message, ts: update.Ts}
	t.mu.Unlock()

	t.subMu.Lock()
	for _, ch := range t.subscribers {
		select {
		case ch <- update:
		default:
		}
	}
	t.subMu.Unlock()
}

// Subscribe returns a buffered channel of future updates and an id to pass
// to Unsubscribe. The channel is never closed by Unsubscribe while a
// concurrent Update might still be sending to it; callers should simply
// stop reading once done.
func (t *Tracker) Subscribe(buffer int) (<-chan engine.ProgressUpdate, int) {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan engine.ProgressUpdate, buffer)

	t.subMu.Lock()
	id := t.nextSubID
	t.nextSubID++
	t.subscribers[id] = ch
	t.subMu.Unlock()

	return ch, id
}

// Unsubscribe removes a subscription registered by Subscribe.
func (t *Tracker) Unsubscribe(id int) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	delete(t.subscribers, id)
}

// Snapshot returns a deep copy of the current status matrix.
func (t *Tracker) Snapshot() map[string]map[string]engine.ProgressUpdate {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]map[string]engine.ProgressUpdate, len(t.matrix))
	for stage, models := range t.matrix {
		row := make(map[string]engine.ProgressUpdate, len(models))
		for model, c := range models {
			row[model] = engine.ProgressUpdate{Model: model, Stage: stage, Status: c.status, Message: c.message, Ts: c.ts}
		}
		out[stage] = row
	}
	return out
}

// Overall computes the run's aggregate status (spec §4.5): Failed if any
// required stage failed, else InProgress if anything is non-terminal, else
// Completed. An empty matrix is Pending.
func (t *Tracker) Overall() engine.ProgressStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.matrix) == 0 {
		return engine.StatusPending
	}

	sawFailed := false
	sawNonTerminal := false
	for _, models := range t.matrix {
		for _, c := range models {
			switch c.status {
			case engine.StatusFailed:
				sawFailed = true
			default:
				if !c.status.Terminal() {
					sawNonTerminal = true
				}
			}
		}
	}

	switch {
	case sawFailed:
		return engine.StatusFailed
	case sawNonTerminal:
		return engine.StatusInProgress
	default:
		return engine.StatusCompleted
	}
}
