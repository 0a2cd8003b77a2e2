// SPDX-License-Identifier: Apache-2.0

package authz

import (
	"testing"
	"time"

	"github.com/aiqx/core-service/internal/auth"
	"github.com/aiqx/core-service/internal/domain"
	"github.com/google/uuid"
)

const ownerID = "owner-1"

func owner(roles ...domain.Role) auth.Actor {
	return auth.Actor{ID: ownerID, Roles: roles}
}

func stranger(roles ...domain.Role) auth.Actor {
	return auth.Actor{ID: "someone-else", Roles: roles}
}

func reviewTeamMember() auth.Actor {
	return auth.Actor{ID: "reviewer-1", Roles: []domain.Role{domain.RoleReviewTeam}}
}

func internalCaller() auth.Actor {
	return auth.Actor{Internal: true}
}

func useCase(status domain.Status, completed ...domain.Step) *domain.UseCase {
	uc := &domain.UseCase{
		ID:        uuid.New(),
		CreatedBy: ownerID,
		Status:    status,
	}
	ts := time.Date(2021, 5, 6, 9, 0, 0, 0, time.UTC)
	for _, step := range completed {
		uc.Steps = append(uc.Steps, domain.StepRecord{
			ID:          uuid.New(),
			Type:        step,
			CompletedAt: &ts,
			CreatedBy:   ownerID,
		})
	}
	return uc
}

func expectDenial(t *testing.T, denial *domain.PermissionDenied, reason domain.DenialReason) {
	t.Helper()
	if denial == nil {
		t.Fatalf("expected denial with reason %s", reason)
	}
	if denial.Reason != reason {
		t.Fatalf("expected reason %s got %s", reason, denial.Reason)
	}
}

func TestCanEditUseCaseInternalBypass(t *testing.T) {
	uc := useCase(domain.StatusInImplementation)
	if denial := CanEditUseCase(internalCaller(), uc); denial != nil {
		t.Fatalf("internal caller denied: %v", denial)
	}
}

func TestCanEditUseCaseReviewTeamBypass(t *testing.T) {
	uc := useCase(domain.StatusDeclined)
	if denial := CanEditUseCase(reviewTeamMember(), uc); denial != nil {
		t.Fatalf("review team member denied: %v", denial)
	}
}

func TestCanEditUseCaseOwnerAllowed(t *testing.T) {
	uc := useCase(domain.StatusInEvaluation)
	if denial := CanEditUseCase(owner(domain.RoleRequestor), uc); denial != nil {
		t.Fatalf("owner denied: %v", denial)
	}
}

func TestCanEditUseCaseNotOwner(t *testing.T) {
	uc := useCase(domain.StatusInEvaluation)
	denial := CanEditUseCase(stranger(domain.RoleRequestor), uc)
	expectDenial(t, denial, domain.DenialNotOwner)
}

func TestCanEditUseCaseWrongRoleForCurrentStep(t *testing.T) {
	// After initial-request the ball is with the review team.
	uc := useCase(domain.StatusInEvaluation, domain.StepInitialRequest)
	denial := CanEditUseCase(owner(domain.RoleRequestor), uc)
	expectDenial(t, denial, domain.DenialWrongRoleForStep)
}

func TestCanEditUseCaseStatusGateWinsOverRoleMatch(t *testing.T) {
	// Non-owner, non-review-team actor on an in-implementation use case
	// is denied regardless of any role match.
	uc := useCase(domain.StatusInImplementation)
	denial := CanEditUseCase(stranger(domain.RoleRequestor), uc)
	expectDenial(t, denial, domain.DenialNotOwner)

	denial = CanEditUseCase(owner(domain.RoleRequestor), uc)
	expectDenial(t, denial, domain.DenialWrongStatusForEdit)
}

func TestCanEditStepRequiresStepRole(t *testing.T) {
	uc := useCase(domain.StatusInEvaluation)
	denial := CanEditStep(owner(domain.RoleRequestor), uc, domain.StepInitialFeasibilityCheck)
	expectDenial(t, denial, domain.DenialWrongRoleForStep)
}

func TestCanEditStepCompletedStepLocked(t *testing.T) {
	// Two completed steps put the workflow on detailed-request, a
	// requestor step, so CanEditUseCase passes and the completed-step
	// check is reached.
	uc := useCase(domain.StatusInEvaluation, domain.StepInitialRequest, domain.StepInitialFeasibilityCheck)
	denial := CanEditStep(owner(domain.RoleRequestor), uc, domain.StepInitialRequest)
	expectDenial(t, denial, domain.DenialStepAlreadyCompleted)

	// Review-team membership bypasses the lock.
	member := auth.Actor{ID: ownerID, Roles: []domain.Role{domain.RoleReviewTeam}}
	if denial := CanEditStep(member, uc, domain.StepInitialRequest); denial != nil {
		t.Fatalf("review team member denied: %v", denial)
	}
}

func TestCanEditStepResubmissionOfPendingStepAllowed(t *testing.T) {
	uc := useCase(domain.StatusInEvaluation)
	uc.Steps = append(uc.Steps, domain.StepRecord{
		ID:        uuid.New(),
		Type:      domain.StepInitialRequest,
		CreatedBy: ownerID,
	})

	if denial := CanEditStep(owner(domain.RoleRequestor), uc, domain.StepInitialRequest); denial != nil {
		t.Fatalf("resubmission denied: %v", denial)
	}
}

func TestCanChangeStatusReviewTeam(t *testing.T) {
	uc := useCase(domain.StatusInEvaluation)
	if denial := CanChangeStatus(reviewTeamMember(), uc, domain.StatusDeclined); denial != nil {
		t.Fatalf("review team denied: %v", denial)
	}
}

func TestCanChangeStatusOwnerDecline(t *testing.T) {
	uc := useCase(domain.StatusInImplementation)
	if denial := CanChangeStatus(owner(), uc, domain.StatusDeclined); denial != nil {
		t.Fatalf("owner decline denied: %v", denial)
	}
}

func TestCanChangeStatusOwnerOtherTransitionsDenied(t *testing.T) {
	cases := []struct {
		current domain.Status
		target  domain.Status
	}{
		{domain.StatusInEvaluation, domain.StatusInImplementation},
		{domain.StatusInEvaluation, domain.StatusDeclined},
		{domain.StatusInImplementation, domain.StatusInEvaluation},
		{domain.StatusDeclined, domain.StatusInImplementation},
	}

	for _, tc := range cases {
		uc := useCase(tc.current)
		denial := CanChangeStatus(owner(), uc, tc.target)
		expectDenial(t, denial, domain.DenialInvalidStatusTransition)
	}
}

func TestCanChangeStatusNotOwner(t *testing.T) {
	uc := useCase(domain.StatusInImplementation)
	denial := CanChangeStatus(stranger(), uc, domain.StatusDeclined)
	expectDenial(t, denial, domain.DenialNotOwner)
}

func TestCanAddAttachmentMatchesCurrentStep(t *testing.T) {
	// Fresh use case: current step is initial-request, so only the
	// request-image type is open.
	uc := useCase(domain.StatusInEvaluation)

	if denial := CanAddAttachment(owner(domain.RoleRequestor), uc, domain.AttachmentRequestImage); denial != nil {
		t.Fatalf("expected request-image allowed: %v", denial)
	}

	for _, typ := range []domain.AttachmentType{
		domain.AttachmentFeasibilityReport,
		domain.AttachmentConceptDocument,
		domain.AttachmentOfferDocument,
		domain.AttachmentOrderConfirmation,
	} {
		denial := CanAddAttachment(owner(domain.RoleRequestor), uc, typ)
		expectDenial(t, denial, domain.DenialAttachmentLocked)
	}
}

func TestCanAddAttachmentLockedAfterStepCompleted(t *testing.T) {
	uc := useCase(domain.StatusUnderValidation, domain.StepInitialRequest)
	denial := CanAddAttachment(owner(domain.RoleRequestor), uc, domain.AttachmentRequestImage)
	expectDenial(t, denial, domain.DenialAttachmentLocked)
}

func TestCanAddAttachmentReviewTeamBypass(t *testing.T) {
	uc := useCase(domain.StatusInImplementation, domain.Steps()...)
	if denial := CanAddAttachment(reviewTeamMember(), uc, domain.AttachmentRequestImage); denial != nil {
		t.Fatalf("review team denied: %v", denial)
	}
}

func TestCanDeleteFreshUseCase(t *testing.T) {
	uc := useCase(domain.StatusInEvaluation)
	if denial := CanDelete(owner(), uc); denial != nil {
		t.Fatalf("owner delete denied: %v", denial)
	}
}

func TestCanDeleteBlockedAfterCompletion(t *testing.T) {
	uc := useCase(domain.StatusUnderValidation, domain.StepInitialRequest)
	denial := CanDelete(owner(), uc)
	expectDenial(t, denial, domain.DenialPendingStepsBlockDelete)

	if denial := CanDelete(reviewTeamMember(), uc); denial != nil {
		t.Fatalf("review team delete denied: %v", denial)
	}
}
