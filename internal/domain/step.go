// SPDX-License-Identifier: Apache-2.0

package domain

// Step is one of the five fixed workflow stages. Ownership alternates
// between the requesting party and the review team, starting with the
// requestor.
type Step int

const (
	StepInitialRequest Step = iota
	StepInitialFeasibilityCheck
	StepDetailedRequest
	StepOffer
	StepOrder
)

var stepOrder = [...]Step{
	StepInitialRequest,
	StepInitialFeasibilityCheck,
	StepDetailedRequest,
	StepOffer,
	StepOrder,
}

var stepNames = map[Step]string{
	StepInitialRequest:          "initial-request",
	StepInitialFeasibilityCheck: "initial-feasibility-check",
	StepDetailedRequest:         "detailed-request",
	StepOffer:                   "offer",
	StepOrder:                   "order",
}

var stepsByName = func() map[string]Step {
	m := make(map[string]Step, len(stepNames))
	for step, name := range stepNames {
		m[name] = step
	}
	return m
}()

// Steps returns the catalog order. The returned slice is a copy.
func Steps() []Step {
	out := make([]Step, len(stepOrder))
	copy(out, stepOrder[:])
	return out
}

// FinalStep returns the last step of the catalog.
func FinalStep() Step {
	return stepOrder[len(stepOrder)-1]
}

func (s Step) String() string {
	return stepNames[s]
}

// Ordinal returns the zero-based catalog position of the step.
func (s Step) Ordinal() int {
	return int(s)
}

// Role returns the party that owns the step: even ordinals belong to the
// requestor, odd ordinals to the review team.
func (s Step) Role() Role {
	if s.Ordinal()%2 == 1 {
		return RoleReviewTeam
	}
	return RoleRequestor
}

// ParseStep resolves the kebab-case wire form of a step. Unknown strings
// are a validation error, never a default.
func ParseStep(raw string) (Step, error) {
	step, ok := stepsByName[raw]
	if !ok {
		return 0, NewValidationError("unknown step %q", raw)
	}
	return step, nil
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(text []byte) error {
	step, err := ParseStep(string(text))
	if err != nil {
		return err
	}
	*s = step
	return nil
}
