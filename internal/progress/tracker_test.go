// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package progress

import (
	"testing"
	"time"

	"github.com/pdiddy/docbridge/pkg/types"
)

func TestStartValidation(t *testing.T) {
	tr := NewTracker()

	if _, err := tr.Start("convert", 0, ""); !types.IsKind(err, types.KindProgress) {
		t.Errorf("Start with 0 steps: err = %v, want progress error", err)
	}
	if _, err := tr.Start("convert", -1, ""); !types.IsKind(err, types.KindProgress) {
		t.Errorf("Start with negative steps: err = %v, want progress error", err)
	}

	id, err := tr.Start("convert", 3, "fixed-id")
	if err != nil {
		t.Fatal(err)
	}
	if id != "fixed-id" {
		t.Errorf("id = %q, want caller-supplied id", id)
	}

	if _, err := tr.Start("convert", 3, "fixed-id"); !types.IsKind(err, types.KindProgress) {
		t.Errorf("duplicate id: err = %v, want progress error", err)
	}

	op, ok := tr.Get(id)
	if !ok || op.Status != StatusRunning {
		t.Errorf("new operation status = %v, want running", op.Status)
	}
}

func TestUpdateBounds(t *testing.T) {
	tr := NewTracker()
	id, _ := tr.Start("convert", 3, "")

	tests := []struct {
		step    int
		wantErr bool
	}{
		{0, false},
		{1, false},
		{3, false},
		{-1, true},
		{4, true},
	}
	for _, tt := range tests {
		err := tr.Update(id, tt.step, "")
		if tt.wantErr && !types.IsKind(err, types.KindProgress) {
			t.Errorf("Update(%d): err = %v, want progress error", tt.step, err)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("Update(%d): %v", tt.step, err)
		}

		op, _ := tr.Get(id)
		if op.CurrentStep < 0 || op.CurrentStep > op.TotalSteps {
			t.Fatalf("current_step %d escaped [0, %d]", op.CurrentStep, op.TotalSteps)
		}
	}
}

func TestOnlyOneStepRunning(t *testing.T) {
	tr := NewTracker()
	id, _ := tr.Start("convert", 3, "")

	tr.Update(id, 1, "prepare")
	tr.Update(id, 2, "convert")
	tr.Update(id, 3, "finalize")

	op, _ := tr.Get(id)
	running := 0
	for _, s := range op.Steps {
		if s.Status == StatusRunning {
			running++
		}
	}
	if running != 1 {
		t.Errorf("%d steps running, want exactly 1", running)
	}
	if op.Steps[0].Status != StatusCompleted || op.Steps[1].Status != StatusCompleted {
		t.Error("previous steps not closed as completed")
	}
}

func TestCompleteSuccessPinsToTotal(t *testing.T) {
	tr := NewTracker()
	id, _ := tr.Start("convert", 4, "")
	tr.Update(id, 2, "halfway")

	if err := tr.Complete(id, true); err != nil {
		t.Fatal(err)
	}

	op, _ := tr.Get(id)
	if op.Status != StatusCompleted {
		t.Errorf("status = %v, want completed", op.Status)
	}
	if op.CurrentStep != 4 {
		t.Errorf("current_step = %d, want pinned to total (4)", op.CurrentStep)
	}
	if op.Percent() != 100 {
		t.Errorf("percent = %v, want 100", op.Percent())
	}
	if op.EndedAt.IsZero() {
		t.Error("end timestamp not set")
	}
	// The open step was force-closed.
	if last := op.Steps[len(op.Steps)-1]; last.Status != StatusCompleted {
		t.Errorf("last step status = %v, want completed", last.Status)
	}
}

func TestCompleteFailureKeepsStep(t *testing.T) {
	tr := NewTracker()
	id, _ := tr.Start("convert", 4, "")
	tr.Update(id, 2, "halfway")

	if err := tr.Complete(id, false); err != nil {
		t.Fatal(err)
	}

	op, _ := tr.Get(id)
	if op.Status != StatusFailed {
		t.Errorf("status = %v, want failed", op.Status)
	}
	if op.CurrentStep != 2 {
		t.Errorf("current_step = %d, want last value (2), not advanced", op.CurrentStep)
	}
	if last := op.Steps[len(op.Steps)-1]; last.Status != StatusFailed {
		t.Errorf("last step status = %v, want failed", last.Status)
	}
}

func TestTerminalStateRejectsMutation(t *testing.T) {
	tr := NewTracker()
	id, _ := tr.Start("convert", 2, "")
	tr.Complete(id, true)

	if err := tr.Update(id, 1, ""); !types.IsKind(err, types.KindProgress) {
		t.Errorf("Update after Complete: err = %v, want progress error", err)
	}
	if err := tr.Complete(id, true); !types.IsKind(err, types.KindProgress) {
		t.Errorf("double Complete: err = %v, want progress error", err)
	}
	if err := tr.Cancel(id); !types.IsKind(err, types.KindProgress) {
		t.Errorf("Cancel after Complete: err = %v, want progress error", err)
	}
}

func TestCancel(t *testing.T) {
	tr := NewTracker()
	id, _ := tr.Start("convert", 2, "")
	tr.Update(id, 1, "working")

	if err := tr.Cancel(id); err != nil {
		t.Fatal(err)
	}

	op, _ := tr.Get(id)
	if op.Status != StatusCancelled {
		t.Errorf("status = %v, want cancelled", op.Status)
	}
	if last := op.Steps[len(op.Steps)-1]; last.Status != StatusCancelled {
		t.Errorf("open step status = %v, want cancelled", last.Status)
	}
}

func TestUnknownOperation(t *testing.T) {
	tr := NewTracker()
	if err := tr.Update("nope", 1, ""); !types.IsKind(err, types.KindProgress) {
		t.Errorf("err = %v, want progress error", err)
	}
	if _, ok := tr.Get("nope"); ok {
		t.Error("Get of unknown id reported ok")
	}
}

func TestCallbacks(t *testing.T) {
	tr := NewTracker()
	var seen []Status

	tr.OnUpdate(func(op Operation) { panic("bad observer") })
	tr.OnUpdate(func(op Operation) { seen = append(seen, op.Status) })

	id, _ := tr.Start("convert", 2, "")
	tr.Update(id, 1, "")
	tr.Complete(id, true)

	if len(seen) != 3 {
		t.Fatalf("callback invoked %d times, want 3 (panicking observer must not block)", len(seen))
	}
	if seen[2] != StatusCompleted {
		t.Errorf("final callback status = %v, want completed", seen[2])
	}
}

func TestCallbackGetsSnapshot(t *testing.T) {
	tr := NewTracker()
	var captured Operation
	tr.OnUpdate(func(op Operation) { captured = op })

	id, _ := tr.Start("convert", 2, "")
	tr.Update(id, 1, "working")

	// Mutating the snapshot must not affect the tracker.
	captured.Steps[0].Status = StatusFailed
	op, _ := tr.Get(id)
	if op.Steps[0].Status == StatusFailed {
		t.Error("callback snapshot shares state with the tracker")
	}
}

func TestCleanup(t *testing.T) {
	tr := NewTracker()
	base := time.Now()
	tr.now = func() time.Time { return base }

	oldID, _ := tr.Start("old", 1, "")
	tr.Complete(oldID, true)
	runningID, _ := tr.Start("running", 1, "")

	tr.now = func() time.Time { return base.Add(2 * time.Hour) }
	freshID, _ := tr.Start("fresh", 1, "")
	tr.Complete(freshID, true)

	removed := tr.Cleanup(time.Hour)
	if removed != 1 {
		t.Errorf("removed %d, want 1", removed)
	}
	if _, ok := tr.Get(oldID); ok {
		t.Error("aged-out operation retained")
	}
	if _, ok := tr.Get(runningID); !ok {
		t.Error("running operation must never be evicted")
	}
	if _, ok := tr.Get(freshID); !ok {
		t.Error("recent operation evicted")
	}
}
