// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Plant is the production location a use case is tied to.
type Plant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StepRecord is the submitted form of one workflow step. A nil
// CompletedAt means the step was submitted but not finalized.
type StepRecord struct {
	ID          uuid.UUID       `json:"-"`
	Type        Step            `json:"type"`
	Form        json.RawMessage `json:"form"`
	CompletedAt *time.Time      `json:"completed_at"`
	CreatedBy   string          `json:"created_by"`
}

// UseCase is the workflow aggregate. Steps holds at most one record per
// step type; Version is the optimistic concurrency token bumped on every
// committed save.
type UseCase struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Image       string       `json:"image,omitempty"`
	Building    string       `json:"building"`
	Line        string       `json:"line,omitempty"`
	Position    string       `json:"position,omitempty"`
	PlantID     string       `json:"plant_id"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CreatedBy   string       `json:"created_by"`
	Status      Status       `json:"status"`
	Steps       []StepRecord `json:"steps"`
	Attachments []Attachment `json:"attachments"`
	Version     int64        `json:"-"`
}

// ComposeName builds the canonical display name from the plant, building
// and the user-chosen short name.
func ComposeName(plantID, building, name string) string {
	return plantID + "-H" + building + "-" + name
}

// CompletedSteps returns the finalized step records sorted by catalog
// ordinal. For every reachable aggregate they form a gapless prefix of
// the catalog; the engine enforces that on each completion.
func (u *UseCase) CompletedSteps() []StepRecord {
	out := make([]StepRecord, 0, len(u.Steps))
	for _, rec := range u.Steps {
		if rec.CompletedAt != nil {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Type.Ordinal() < out[j].Type.Ordinal()
	})
	return out
}

// CurrentStep is the step the workflow is waiting on. Once every step is
// complete it reports the final catalog step; Completed disambiguates.
func (u *UseCase) CurrentStep() Step {
	index := len(u.CompletedSteps())
	if index >= len(stepOrder) {
		return FinalStep()
	}
	return stepOrder[index]
}

// NextStep is the step after the current one, or false when the workflow
// has no step beyond it.
func (u *UseCase) NextStep() (Step, bool) {
	index := len(u.CompletedSteps()) + 1
	if index >= len(stepOrder) {
		return 0, false
	}
	return stepOrder[index], true
}

// LastCompletedStep is the most recently finalized step, or false when
// nothing is completed yet.
func (u *UseCase) LastCompletedStep() (Step, bool) {
	completed := u.CompletedSteps()
	if len(completed) == 0 {
		return 0, false
	}
	return completed[len(completed)-1].Type, true
}

// Completed reports whether every catalog step is finalized.
func (u *UseCase) Completed() bool {
	return len(u.CompletedSteps()) == len(stepOrder)
}

// StepRecordFor returns the record for the given step type, if submitted.
func (u *UseCase) StepRecordFor(step Step) (*StepRecord, bool) {
	for i := range u.Steps {
		if u.Steps[i].Type == step {
			return &u.Steps[i], true
		}
	}
	return nil, false
}

// AttachmentsOfType returns the attachments carrying the given type.
func (u *UseCase) AttachmentsOfType(typ AttachmentType) []Attachment {
	out := make([]Attachment, 0, len(u.Attachments))
	for _, att := range u.Attachments {
		if att.Type == typ {
			out = append(out, att)
		}
	}
	return out
}
