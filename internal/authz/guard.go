// SPDX-License-Identifier: Apache-2.0

// Package authz holds the pure permission checks guarding every mutating
// use-case operation. Checks never mutate anything; they return a typed
// *domain.PermissionDenied so the transport layer can surface the exact
// failing reason.
package authz

import (
	"github.com/aiqx/core-service/internal/auth"
	"github.com/aiqx/core-service/internal/domain"
)

// CanEditUseCase allows internal callers and review-team members
// unconditionally. Everyone else must own the use case, hold the role of
// the current step, and the use case must still be in evaluation.
func CanEditUseCase(actor auth.Actor, uc *domain.UseCase) *domain.PermissionDenied {
	if actor.Internal || actor.HasRole(domain.RoleReviewTeam) {
		return nil
	}

	if actor.ID != uc.CreatedBy {
		return domain.Denied(domain.DenialNotOwner, "use case belongs to %s", uc.CreatedBy)
	}

	currentStep := uc.CurrentStep()
	if !actor.HasRole(currentStep.Role()) {
		return domain.Denied(domain.DenialWrongRoleForStep,
			"changing use case in step %s requires role %s", currentStep, currentStep.Role())
	}

	if uc.Status != domain.StatusInEvaluation {
		return domain.Denied(domain.DenialWrongStatusForEdit,
			"changing use case of status %s is not permitted", uc.Status)
	}

	return nil
}

// CanEditStep requires CanEditUseCase and additionally, for regular
// actors, the role owning the step itself plus the step not being
// finalized yet. Resubmitting a pending step is allowed.
func CanEditStep(actor auth.Actor, uc *domain.UseCase, step domain.Step) *domain.PermissionDenied {
	if denial := CanEditUseCase(actor, uc); denial != nil {
		return denial
	}

	if actor.Internal || actor.HasRole(domain.RoleReviewTeam) {
		return nil
	}

	if !actor.HasRole(step.Role()) {
		return domain.Denied(domain.DenialWrongRoleForStep,
			"changing step %s requires role %s", step, step.Role())
	}

	for _, completed := range uc.CompletedSteps() {
		if completed.Type == step {
			return domain.Denied(domain.DenialStepAlreadyCompleted,
				"step %s has already been completed", step)
		}
	}

	return nil
}

// CanChangeStatus allows internal callers and review-team members to set
// any status. The owner may only decline a use case that reached
// implementation; every other self-service transition is denied.
func CanChangeStatus(actor auth.Actor, uc *domain.UseCase, target domain.Status) *domain.PermissionDenied {
	if actor.Internal || actor.HasRole(domain.RoleReviewTeam) {
		return nil
	}

	if actor.ID != uc.CreatedBy {
		return domain.Denied(domain.DenialNotOwner, "use case belongs to %s", uc.CreatedBy)
	}

	if uc.Status == domain.StatusInImplementation && target == domain.StatusDeclined {
		return nil
	}

	return domain.Denied(domain.DenialInvalidStatusTransition,
		"changing status from %s to %s is not permitted", uc.Status, target)
}

// CanAddAttachment allows uploads of a type only while the workflow sits
// on the step that produces it; earlier and later artifacts are locked.
func CanAddAttachment(actor auth.Actor, uc *domain.UseCase, typ domain.AttachmentType) *domain.PermissionDenied {
	if actor.Internal || actor.HasRole(domain.RoleReviewTeam) {
		return nil
	}

	if actor.ID != uc.CreatedBy {
		return domain.Denied(domain.DenialNotOwner, "use case belongs to %s", uc.CreatedBy)
	}

	owner, ok := typ.OwningStep()
	if !ok || owner != uc.CurrentStep() {
		return domain.Denied(domain.DenialAttachmentLocked, "attachment locked")
	}

	return nil
}

// CanDelete allows the owner to remove a use case only while no step has
// been finalized. Internal callers and the review team may always delete.
func CanDelete(actor auth.Actor, uc *domain.UseCase) *domain.PermissionDenied {
	if actor.Internal || actor.HasRole(domain.RoleReviewTeam) {
		return nil
	}

	if actor.ID != uc.CreatedBy {
		return domain.Denied(domain.DenialNotOwner, "use case belongs to %s", uc.CreatedBy)
	}

	if _, ok := uc.LastCompletedStep(); ok {
		return domain.Denied(domain.DenialPendingStepsBlockDelete,
			"cannot delete a use case with completed steps")
	}

	return nil
}
