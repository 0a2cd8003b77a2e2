// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"fmt"
)

var ErrUseCaseNotFound = errors.New("use case not found")
var ErrPlantNotFound = errors.New("plant not found")
var ErrUserNotFound = errors.New("user not found")
var ErrConflict = errors.New("concurrent modification")

// ValidationError reports malformed client input. No state is changed
// when one is returned.
type ValidationError struct {
	msg string
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.msg
}

// DenialReason discriminates why an authorization check failed.
type DenialReason string

const (
	DenialNotOwner                DenialReason = "not-owner"
	DenialWrongRoleForStep        DenialReason = "wrong-role-for-step"
	DenialWrongStatusForEdit      DenialReason = "wrong-status-for-edit"
	DenialStepAlreadyCompleted    DenialReason = "step-already-completed"
	DenialAttachmentLocked        DenialReason = "attachment-locked"
	DenialPendingStepsBlockDelete DenialReason = "pending-steps-block-delete"
	DenialInvalidStatusTransition DenialReason = "invalid-status-transition"
)

// PermissionDenied carries the specific reason an actor may not perform
// an operation. Checks return it before any mutation runs.
type PermissionDenied struct {
	Reason DenialReason
	Detail string
}

func (e *PermissionDenied) Error() string {
	if e.Detail == "" {
		return "permission denied: " + string(e.Reason)
	}
	return fmt.Sprintf("permission denied (%s): %s", e.Reason, e.Detail)
}

func Denied(reason DenialReason, format string, args ...any) *PermissionDenied {
	return &PermissionDenied{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ViolationKind discriminates workflow ordering failures.
type ViolationKind string

const (
	ViolationNotSubmitted     ViolationKind = "not-submitted"
	ViolationAlreadyCompleted ViolationKind = "already-completed"
	ViolationOutOfOrder       ViolationKind = "out-of-order"
)

// WorkflowViolation protects the gapless-prefix completion invariant.
// Expected is only meaningful for out-of-order violations.
type WorkflowViolation struct {
	Kind     ViolationKind
	Step     Step
	Expected Step
}

func (e *WorkflowViolation) Error() string {
	switch e.Kind {
	case ViolationNotSubmitted:
		return fmt.Sprintf("step %s was not submitted yet", e.Step)
	case ViolationAlreadyCompleted:
		return fmt.Sprintf("step %s has already been completed", e.Step)
	case ViolationOutOfOrder:
		return fmt.Sprintf("step %s needs to be completed before %s", e.Expected, e.Step)
	default:
		return "workflow violation"
	}
}
