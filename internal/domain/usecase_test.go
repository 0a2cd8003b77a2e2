// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func completedAt(t *testing.T) *time.Time {
	t.Helper()
	ts := time.Date(2021, 3, 4, 12, 0, 0, 0, time.UTC)
	return &ts
}

func useCaseWithSteps(t *testing.T, completed ...Step) *UseCase {
	t.Helper()

	uc := &UseCase{ID: uuid.New(), Status: StatusInEvaluation}
	for _, step := range completed {
		uc.Steps = append(uc.Steps, StepRecord{
			ID:          uuid.New(),
			Type:        step,
			CompletedAt: completedAt(t),
			CreatedBy:   "user-1",
		})
	}
	return uc
}

func TestCurrentStepFresh(t *testing.T) {
	uc := useCaseWithSteps(t)

	if got := uc.CurrentStep(); got != StepInitialRequest {
		t.Fatalf("expected initial-request got %s", got)
	}
	if _, ok := uc.LastCompletedStep(); ok {
		t.Fatal("expected no last completed step")
	}
	next, ok := uc.NextStep()
	if !ok || next != StepInitialFeasibilityCheck {
		t.Fatalf("expected next initial-feasibility-check got %s", next)
	}
}

func TestCurrentStepAdvances(t *testing.T) {
	uc := useCaseWithSteps(t, StepInitialRequest)

	if got := uc.CurrentStep(); got != StepInitialFeasibilityCheck {
		t.Fatalf("expected initial-feasibility-check got %s", got)
	}

	last, ok := uc.LastCompletedStep()
	if !ok || last != StepInitialRequest {
		t.Fatalf("expected last initial-request got %s", last)
	}
}

func TestCompletedStepsSortedByCatalog(t *testing.T) {
	// Records stored out of order still read back in catalog order.
	uc := &UseCase{ID: uuid.New()}
	for _, step := range []Step{StepDetailedRequest, StepInitialRequest, StepInitialFeasibilityCheck} {
		uc.Steps = append(uc.Steps, StepRecord{ID: uuid.New(), Type: step, CompletedAt: completedAt(t)})
	}

	completed := uc.CompletedSteps()
	if len(completed) != 3 {
		t.Fatalf("expected 3 completed steps got %d", len(completed))
	}
	for i, want := range []Step{StepInitialRequest, StepInitialFeasibilityCheck, StepDetailedRequest} {
		if completed[i].Type != want {
			t.Fatalf("expected %s at position %d got %s", want, i, completed[i].Type)
		}
	}
}

func TestSubmittedButNotCompletedDoesNotAdvance(t *testing.T) {
	uc := useCaseWithSteps(t)
	uc.Steps = append(uc.Steps, StepRecord{ID: uuid.New(), Type: StepInitialRequest})

	if len(uc.CompletedSteps()) != 0 {
		t.Fatal("pending submission must not count as completed")
	}
	if got := uc.CurrentStep(); got != StepInitialRequest {
		t.Fatalf("expected initial-request got %s", got)
	}
}

func TestTerminalCurrentStep(t *testing.T) {
	uc := useCaseWithSteps(t, Steps()...)

	if !uc.Completed() {
		t.Fatal("expected fully completed use case")
	}
	if got := uc.CurrentStep(); got != StepOrder {
		t.Fatalf("expected terminal current step order got %s", got)
	}
	if _, ok := uc.NextStep(); ok {
		t.Fatal("expected no next step past the end")
	}
}

func TestNextStepNearEnd(t *testing.T) {
	uc := useCaseWithSteps(t, StepInitialRequest, StepInitialFeasibilityCheck, StepDetailedRequest, StepOffer)

	if got := uc.CurrentStep(); got != StepOrder {
		t.Fatalf("expected current order got %s", got)
	}
	if _, ok := uc.NextStep(); ok {
		t.Fatal("expected no step after order")
	}
	if uc.Completed() {
		t.Fatal("order is still pending")
	}
}

func TestComposeName(t *testing.T) {
	if got := ComposeName("P01", "2", "welding-check"); got != "P01-H2-welding-check" {
		t.Fatalf("unexpected composed name %s", got)
	}
}

func TestStepRecordFor(t *testing.T) {
	uc := useCaseWithSteps(t, StepInitialRequest)

	rec, ok := uc.StepRecordFor(StepInitialRequest)
	if !ok || rec.Type != StepInitialRequest {
		t.Fatal("expected record for initial-request")
	}
	if _, ok := uc.StepRecordFor(StepOffer); ok {
		t.Fatal("expected no record for offer")
	}
}
