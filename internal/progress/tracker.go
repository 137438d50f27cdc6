// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package progress tracks named operations through a small state machine
// (pending → running → completed/failed/cancelled) with step-level
// sub-progress and callback notification.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/docbridge/pkg/types"
)

// Operation status values.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Step is one unit of sub-progress within an operation.
type Step struct {
	Index       int       `json:"index"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at,omitempty"`
}

// Operation is a snapshot of one tracked operation. Callbacks and Get
// receive copies; mutating a snapshot has no effect on the tracker.
type Operation struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Status      Status            `json:"status"`
	CurrentStep int               `json:"current_step"`
	TotalSteps  int               `json:"total_steps"`
	StartedAt   time.Time         `json:"started_at"`
	EndedAt     time.Time         `json:"ended_at,omitempty"`
	Steps       []Step            `json:"steps,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Percent returns completion as 0-100.
func (o Operation) Percent() float64 {
	if o.TotalSteps <= 0 {
		return 0
	}
	return float64(o.CurrentStep) / float64(o.TotalSteps) * 100
}

// Callback observes every operation mutation. Callbacks run outside the
// tracker lock; panics are swallowed so one bad observer cannot break
// tracking for others.
type Callback func(op Operation)

// Tracker owns the operation table. Construct with NewTracker.
type Tracker struct {
	mu        sync.Mutex
	ops       map[string]*Operation
	callbacks []Callback

	now func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		ops: make(map[string]*Operation),
		now: time.Now,
	}
}

// OnUpdate registers a callback invoked after every mutating call.
func (t *Tracker) OnUpdate(cb Callback) {
	t.mu.Lock()
	t.callbacks = append(t.callbacks, cb)
	t.mu.Unlock()
}

// Start creates a new operation in the running state. totalSteps is fixed at
// creation and must be positive. id is optional; when empty a fresh one is
// generated, and a collision with an existing operation is an error.
func (t *Tracker) Start(name string, totalSteps int, id string) (string, error) {
	if totalSteps <= 0 {
		return "", types.NewError(types.KindProgress, "total steps must be positive").
			WithDetail("total_steps", totalSteps)
	}
	if id == "" {
		id = uuid.NewString()
	}

	t.mu.Lock()
	if _, exists := t.ops[id]; exists {
		t.mu.Unlock()
		return "", types.NewError(types.KindProgress, "operation id already in use").
			WithDetail("operation_id", id)
	}
	op := &Operation{
		ID:         id,
		Name:       name,
		Status:     StatusRunning,
		TotalSteps: totalSteps,
		StartedAt:  t.now(),
		Metadata:   make(map[string]string),
	}
	t.ops[id] = op
	snapshot := op.snapshot()
	t.mu.Unlock()

	t.notify(snapshot)
	return id, nil
}

// Update advances the operation to the given step, closing the previous step
// as completed and opening a new one. step must be within [0, totalSteps]
// and the operation must not be terminal.
func (t *Tracker) Update(id string, step int, description string) error {
	t.mu.Lock()
	op, ok := t.ops[id]
	if !ok {
		t.mu.Unlock()
		return unknownOperation(id)
	}
	if op.Status.Terminal() {
		t.mu.Unlock()
		return types.NewError(types.KindProgress, "operation already finished").
			WithDetail("operation_id", id).
			WithDetail("status", string(op.Status))
	}
	if step < 0 || step > op.TotalSteps {
		t.mu.Unlock()
		return types.NewError(types.KindProgress, "step out of range").
			WithDetail("operation_id", id).
			WithDetail("step", step).
			WithDetail("total_steps", op.TotalSteps)
	}

	now := t.now()
	op.closeOpenStep(StatusCompleted, now)
	op.Steps = append(op.Steps, Step{
		Index:       step,
		Description: description,
		Status:      StatusRunning,
		StartedAt:   now,
	})
	op.CurrentStep = step
	snapshot := op.snapshot()
	t.mu.Unlock()

	t.notify(snapshot)
	return nil
}

// Complete finishes the operation. On success the current step is pinned to
// totalSteps (100%); on failure it keeps its last value. The open step, if
// any, is force-closed.
func (t *Tracker) Complete(id string, success bool) error {
	if success {
		return t.finish(id, StatusCompleted, true)
	}
	return t.finish(id, StatusFailed, false)
}

// Cancel terminally cancels the operation, force-closing the open step.
func (t *Tracker) Cancel(id string) error {
	return t.finish(id, StatusCancelled, false)
}

func (t *Tracker) finish(id string, final Status, pinToTotal bool) error {
	t.mu.Lock()
	op, ok := t.ops[id]
	if !ok {
		t.mu.Unlock()
		return unknownOperation(id)
	}
	if op.Status.Terminal() {
		t.mu.Unlock()
		return types.NewError(types.KindProgress, "operation already finished").
			WithDetail("operation_id", id).
			WithDetail("status", string(op.Status))
	}

	now := t.now()
	op.closeOpenStep(final, now)
	op.Status = final
	op.EndedAt = now
	if pinToTotal {
		op.CurrentStep = op.TotalSteps
	}
	snapshot := op.snapshot()
	t.mu.Unlock()

	t.notify(snapshot)
	return nil
}

// SetMetadata attaches a key/value pair to a running or finished operation.
func (t *Tracker) SetMetadata(id, key, value string) error {
	t.mu.Lock()
	op, ok := t.ops[id]
	if !ok {
		t.mu.Unlock()
		return unknownOperation(id)
	}
	op.Metadata[key] = value
	t.mu.Unlock()
	return nil
}

// Get returns a snapshot of the operation.
func (t *Tracker) Get(id string) (Operation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[id]
	if !ok {
		return Operation{}, false
	}
	return op.snapshot(), true
}

// List returns snapshots of all retained operations.
func (t *Tracker) List() []Operation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Operation, 0, len(t.ops))
	for _, op := range t.ops {
		out = append(out, op.snapshot())
	}
	return out
}

// Cleanup evicts terminal operations that ended more than maxAge ago and
// returns the number removed. Running operations are never evicted.
func (t *Tracker) Cleanup(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-maxAge)
	removed := 0
	for id, op := range t.ops {
		if op.Status.Terminal() && op.EndedAt.Before(cutoff) {
			delete(t.ops, id)
			removed++
		}
	}
	return removed
}

// notify invokes callbacks outside the lock, swallowing panics per callback.
func (t *Tracker) notify(snapshot Operation) {
	t.mu.Lock()
	cbs := make([]Callback, len(t.callbacks))
	copy(cbs, t.callbacks)
	t.mu.Unlock()

	for _, cb := range cbs {
		func() {
			defer func() { _ = recover() }()
			cb(snapshot)
		}()
	}
}

func unknownOperation(id string) error {
	return types.NewError(types.KindProgress, fmt.Sprintf("unknown operation %s", id)).
		WithDetail("operation_id", id)
}

// closeOpenStep marks the last step with the given status if it is still
// running. Caller holds the tracker lock.
func (o *Operation) closeOpenStep(status Status, now time.Time) {
	if n := len(o.Steps); n > 0 && o.Steps[n-1].Status == StatusRunning {
		o.Steps[n-1].Status = status
		o.Steps[n-1].EndedAt = now
	}
}

// snapshot deep-copies the operation for observers. Caller holds the lock.
func (o *Operation) snapshot() Operation {
	out := *o
	out.Steps = make([]Step, len(o.Steps))
	copy(out.Steps, o.Steps)
	out.Metadata = make(map[string]string, len(o.Metadata))
	for k, v := range o.Metadata {
		out.Metadata[k] = v
	}
	return out
}
