// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"time"

	"github.com/google/uuid"
)

// AttachmentType classifies an uploaded artifact. Every type is produced
// by exactly one workflow step; once that step completes its artifacts
// become immutable.
type AttachmentType int

const (
	AttachmentRequestImage AttachmentType = iota
	AttachmentFeasibilityReport
	AttachmentConceptDocument
	AttachmentOfferDocument
	AttachmentOrderConfirmation
)

var attachmentTypeNames = map[AttachmentType]string{
	AttachmentRequestImage:      "request-image",
	AttachmentFeasibilityReport: "feasibility-report",
	AttachmentConceptDocument:   "concept-document",
	AttachmentOfferDocument:     "offer-document",
	AttachmentOrderConfirmation: "order-confirmation",
}

var attachmentTypesByName = func() map[string]AttachmentType {
	m := make(map[string]AttachmentType, len(attachmentTypeNames))
	for typ, name := range attachmentTypeNames {
		m[name] = typ
	}
	return m
}()

var attachmentOwners = map[AttachmentType]Step{
	AttachmentRequestImage:      StepInitialRequest,
	AttachmentFeasibilityReport: StepInitialFeasibilityCheck,
	AttachmentConceptDocument:   StepDetailedRequest,
	AttachmentOfferDocument:     StepOffer,
	AttachmentOrderConfirmation: StepOrder,
}

func (t AttachmentType) String() string {
	return attachmentTypeNames[t]
}

// OwningStep returns the step whose completion locks artifacts of this
// type. The second return is false for types outside the mapping.
func (t AttachmentType) OwningStep() (Step, bool) {
	step, ok := attachmentOwners[t]
	return step, ok
}

// AttachmentTypesOwnedBy returns every attachment type locked by the
// given step.
func AttachmentTypesOwnedBy(step Step) []AttachmentType {
	out := make([]AttachmentType, 0, 1)
	for typ, owner := range attachmentOwners {
		if owner == step {
			out = append(out, typ)
		}
	}
	return out
}

// ParseAttachmentType resolves the kebab-case wire form of an attachment
// type. Unknown strings are a validation error, never a default.
func ParseAttachmentType(raw string) (AttachmentType, error) {
	typ, ok := attachmentTypesByName[raw]
	if !ok {
		return 0, NewValidationError("unknown attachment type %q", raw)
	}
	return typ, nil
}

func (t AttachmentType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *AttachmentType) UnmarshalText(text []byte) error {
	typ, err := ParseAttachmentType(string(text))
	if err != nil {
		return err
	}
	*t = typ
	return nil
}

// Attachment references a file held by the external file service.
type Attachment struct {
	ID        uuid.UUID      `json:"id"`
	Type      AttachmentType `json:"type"`
	RefID     string         `json:"ref_id"`
	Filename  string         `json:"filename"`
	CreatedBy string         `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
}
