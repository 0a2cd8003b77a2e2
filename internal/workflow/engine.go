// SPDX-License-Identifier: Apache-2.0

// Package workflow applies use-case state changes. It assumes the authz
// checks already passed and concentrates on the ordering invariant:
// completed steps always form a gapless prefix of the catalog, and
// completion is the only write path that may finalize a step.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aiqx/core-service/internal/domain"
	"github.com/aiqx/core-service/internal/metrics"
	"github.com/google/uuid"
)

// Store persists use-case aggregates. Save commits the whole aggregate
// in one transaction and returns domain.ErrConflict when a concurrent
// writer got there first.
type Store interface {
	CreateUseCase(ctx context.Context, uc *domain.UseCase) (*domain.UseCase, error)
	LoadUseCase(ctx context.Context, id uuid.UUID) (*domain.UseCase, error)
	SaveUseCase(ctx context.Context, uc *domain.UseCase) (*domain.UseCase, error)
	DeleteUseCase(ctx context.Context, id uuid.UUID) error
	ListUseCases(ctx context.Context, filter domain.ListFilter) ([]domain.UseCase, domain.Paging, error)
	LoadPlant(ctx context.Context, id string) (*domain.Plant, error)
}

// Notifier delivers the handoff mail after a step completes. Failures
// are logged, never fatal to the operation.
type Notifier interface {
	SendStepHandoff(ctx context.Context, recipients []string, useCaseName, lang, detailURL string, step domain.Step) error
}

// FileLocker makes an uploaded artifact immutable on the file service.
type FileLocker interface {
	LockFile(ctx context.Context, refID string) error
}

// UserDirectory resolves mail address and locale of a use-case owner.
type UserDirectory interface {
	GetUserByID(ctx context.Context, id string) (domain.DirectoryUser, error)
}

type Deps struct {
	Store                Store
	Notifier             Notifier
	FileLocker           FileLocker
	Users                UserDirectory
	Logger               *slog.Logger
	ReviewTeamRecipients []string
	DetailURL            string
	Now                  func() time.Time
}

type Engine struct {
	store      Store
	notifier   Notifier
	fileLocker FileLocker
	users      UserDirectory
	logger     *slog.Logger
	recipients []string
	detailURL  string
	now        func() time.Time
}

func New(deps Deps) *Engine {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		store:      deps.Store,
		notifier:   deps.Notifier,
		fileLocker: deps.FileLocker,
		users:      deps.Users,
		logger:     l,
		recipients: deps.ReviewTeamRecipients,
		detailURL:  deps.DetailURL,
		now:        now,
	}
}

type CreateParams struct {
	Name     string
	PlantID  string
	Building string
	Image    string
	Line     string
	Position string
}

// Create starts a new use case: status in-evaluation, no steps, no
// attachments. The plant must exist.
func (e *Engine) Create(ctx context.Context, params CreateParams, createdBy string) (*domain.UseCase, error) {
	if params.Name == "" || params.PlantID == "" || params.Building == "" {
		return nil, domain.NewValidationError("name, plant_id and building are required")
	}

	if _, err := e.store.LoadPlant(ctx, params.PlantID); err != nil {
		return nil, err
	}

	ts := e.now().UTC()
	uc := &domain.UseCase{
		ID:        uuid.New(),
		Name:      domain.ComposeName(params.PlantID, params.Building, params.Name),
		Image:     params.Image,
		Building:  params.Building,
		Line:      params.Line,
		Position:  params.Position,
		PlantID:   params.PlantID,
		CreatedAt: ts,
		UpdatedAt: ts,
		CreatedBy: createdBy,
		Status:    domain.StatusInEvaluation,
	}

	created, err := e.store.CreateUseCase(ctx, uc)
	if err != nil {
		return nil, err
	}

	e.logger.Info("use case created",
		"use_case_id", created.ID,
		"plant_id", created.PlantID,
		"created_by", createdBy,
	)
	return created, nil
}

func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*domain.UseCase, error) {
	return e.store.LoadUseCase(ctx, id)
}

func (e *Engine) List(ctx context.Context, filter domain.ListFilter) ([]domain.UseCase, domain.Paging, error) {
	return e.store.ListUseCases(ctx, filter)
}

type UpdateParams struct {
	Name     *string
	Image    *string
	Building *string
	Line     *string
	Position *string
	PlantID  *string
}

// Update patches the descriptive fields. A changed name is recomposed
// from the effective plant and building.
func (e *Engine) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*domain.UseCase, error) {
	uc, err := e.store.LoadUseCase(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.PlantID != nil {
		if _, err := e.store.LoadPlant(ctx, *params.PlantID); err != nil {
			return nil, err
		}
		uc.PlantID = *params.PlantID
	}
	if params.Image != nil {
		uc.Image = *params.Image
	}
	if params.Building != nil {
		uc.Building = *params.Building
	}
	if params.Line != nil {
		uc.Line = *params.Line
	}
	if params.Position != nil {
		uc.Position = *params.Position
	}
	if params.Name != nil {
		uc.Name = domain.ComposeName(uc.PlantID, uc.Building, *params.Name)
	}
	uc.UpdatedAt = e.now().UTC()

	return e.store.SaveUseCase(ctx, uc)
}

// SubmitStep upserts the record for a step: created with a nil
// CompletedAt on first submission, payload replaced on resubmission with
// record identity and creator preserved.
func (e *Engine) SubmitStep(ctx context.Context, id uuid.UUID, step domain.Step, actorID string, form json.RawMessage) (*domain.UseCase, error) {
	if !json.Valid(form) {
		return nil, domain.NewValidationError("malformed step form payload")
	}

	uc, err := e.store.LoadUseCase(ctx, id)
	if err != nil {
		return nil, err
	}

	if rec, ok := uc.StepRecordFor(step); ok {
		rec.Form = form
	} else {
		uc.Steps = append(uc.Steps, domain.StepRecord{
			ID:        uuid.New(),
			Type:      step,
			Form:      form,
			CreatedBy: actorID,
		})
	}
	uc.UpdatedAt = e.now().UTC()

	saved, err := e.store.SaveUseCase(ctx, uc)
	if err != nil {
		return nil, err
	}

	e.logger.Info("step submitted",
		"use_case_id", id,
		"step", step,
		"actor_id", actorID,
	)
	return saved, nil
}

// CompleteStep finalizes a submitted step, derives the new status and
// commits both in a single save. The handoff mail and attachment locks
// run afterwards; their failure never rolls back the committed change.
func (e *Engine) CompleteStep(ctx context.Context, id uuid.UUID, step domain.Step) (*domain.UseCase, error) {
	uc, err := e.store.LoadUseCase(ctx, id)
	if err != nil {
		return nil, err
	}

	rec, ok := uc.StepRecordFor(step)
	if !ok {
		return nil, &domain.WorkflowViolation{Kind: domain.ViolationNotSubmitted, Step: step}
	}
	if rec.CompletedAt != nil {
		return nil, &domain.WorkflowViolation{Kind: domain.ViolationAlreadyCompleted, Step: step}
	}

	// count(completed)-1 is the ordinal of the last completed step; valid
	// because completion is append-only and this is its only write path.
	lastOrdinal := len(uc.CompletedSteps()) - 1
	if step.Ordinal()-lastOrdinal != 1 {
		expected := domain.Steps()[lastOrdinal+1]
		return nil, &domain.WorkflowViolation{
			Kind:     domain.ViolationOutOfOrder,
			Step:     step,
			Expected: expected,
		}
	}

	ts := e.now().UTC()
	rec.CompletedAt = &ts
	uc.Status = deriveStatus(step)
	uc.UpdatedAt = ts

	saved, err := e.store.SaveUseCase(ctx, uc)
	if err != nil {
		return nil, err
	}

	metrics.IncStepCompleted(step.String())
	metrics.IncStatusTransition(saved.Status.String())
	e.logger.Info("step completed",
		"use_case_id", id,
		"step", step,
		"status", saved.Status,
	)

	e.runCompletionSideEffects(ctx, saved, step)

	return saved, nil
}

// deriveStatus maps a just-completed step to the new use-case status.
// The final step always lands in implementation; otherwise the ball
// moves to whichever party did not just act.
func deriveStatus(step domain.Step) domain.Status {
	if step == domain.FinalStep() {
		return domain.StatusInImplementation
	}
	if step.Role() == domain.RoleReviewTeam {
		return domain.StatusInEvaluation
	}
	return domain.StatusUnderValidation
}

// runCompletionSideEffects dispatches the handoff notification and the
// per-attachment file locks concurrently and waits for both. Each
// failure is logged and counted independently.
func (e *Engine) runCompletionSideEffects(ctx context.Context, uc *domain.UseCase, step domain.Step) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.notifyHandoff(ctx, uc, step)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.lockStepAttachments(ctx, uc, step)
	}()

	wg.Wait()
}

// notifyHandoff mails whichever party must act next: the owner after a
// review-team step, the review-team distribution list after a requestor
// step.
func (e *Engine) notifyHandoff(ctx context.Context, uc *domain.UseCase, step domain.Step) {
	if e.notifier == nil {
		return
	}

	recipients := e.recipients
	lang := "en"

	if step.Role() == domain.RoleReviewTeam {
		user, err := e.users.GetUserByID(ctx, uc.CreatedBy)
		if err != nil {
			metrics.IncHandoffMail("error")
			e.logger.Error("handoff recipient lookup failed",
				"use_case_id", uc.ID,
				"owner", uc.CreatedBy,
				"error", err,
			)
			return
		}
		recipients = []string{user.Mail}
		if user.Language != "" {
			lang = user.Language
		}
	}

	if len(recipients) == 0 {
		e.logger.Warn("handoff mail skipped: no recipients", "use_case_id", uc.ID)
		return
	}

	detailURL := fmt.Sprintf("%s/%s", e.detailURL, uc.ID)
	if err := e.notifier.SendStepHandoff(ctx, recipients, uc.Name, lang, detailURL, step); err != nil {
		metrics.IncHandoffMail("error")
		e.logger.Error("handoff mail failed",
			"use_case_id", uc.ID,
			"step", step,
			"error", err,
		)
		return
	}

	metrics.IncHandoffMail("ok")
	e.logger.Info("handoff mail sent",
		"use_case_id", uc.ID,
		"step", step,
		"recipients", len(recipients),
	)
}

// lockStepAttachments requests a lock for every attachment produced by
// the completed step, independently per attachment.
func (e *Engine) lockStepAttachments(ctx context.Context, uc *domain.UseCase, step domain.Step) {
	if e.fileLocker == nil {
		return
	}

	var wg sync.WaitGroup
	for _, typ := range domain.AttachmentTypesOwnedBy(step) {
		for _, att := range uc.AttachmentsOfType(typ) {
			wg.Add(1)
			go func(att domain.Attachment) {
				defer wg.Done()
				if err := e.fileLocker.LockFile(ctx, att.RefID); err != nil {
					metrics.IncFileLock("error")
					e.logger.Error("attachment lock failed",
						"use_case_id", uc.ID,
						"attachment_id", att.ID,
						"ref_id", att.RefID,
						"error", err,
					)
					return
				}
				metrics.IncFileLock("ok")
			}(att)
		}
	}
	wg.Wait()
}

// SetStatus overwrites the status unconditionally. Callers must have
// passed CanChangeStatus; CompleteStep never goes through here.
func (e *Engine) SetStatus(ctx context.Context, id uuid.UUID, status domain.Status) (*domain.UseCase, error) {
	uc, err := e.store.LoadUseCase(ctx, id)
	if err != nil {
		return nil, err
	}

	uc.Status = status
	uc.UpdatedAt = e.now().UTC()

	saved, err := e.store.SaveUseCase(ctx, uc)
	if err != nil {
		return nil, err
	}

	metrics.IncStatusTransition(status.String())
	e.logger.Info("status set", "use_case_id", id, "status", status)
	return saved, nil
}

// Delete removes the aggregate with its step records and attachments.
func (e *Engine) Delete(ctx context.Context, id uuid.UUID) error {
	if err := e.store.DeleteUseCase(ctx, id); err != nil {
		return err
	}
	e.logger.Info("use case deleted", "use_case_id", id)
	return nil
}

type AddAttachmentParams struct {
	Type     domain.AttachmentType
	RefID    string
	Filename string
}

// AddAttachment records a file-service reference on the use case.
func (e *Engine) AddAttachment(ctx context.Context, id uuid.UUID, params AddAttachmentParams, createdBy string) (*domain.Attachment, error) {
	if params.RefID == "" {
		return nil, domain.NewValidationError("attachment ref_id is required")
	}

	uc, err := e.store.LoadUseCase(ctx, id)
	if err != nil {
		return nil, err
	}

	att := domain.Attachment{
		ID:        uuid.New(),
		Type:      params.Type,
		RefID:     params.RefID,
		Filename:  params.Filename,
		CreatedBy: createdBy,
		CreatedAt: e.now().UTC(),
	}
	uc.Attachments = append(uc.Attachments, att)
	uc.UpdatedAt = att.CreatedAt

	if _, err := e.store.SaveUseCase(ctx, uc); err != nil {
		return nil, err
	}

	e.logger.Info("attachment added",
		"use_case_id", id,
		"attachment_id", att.ID,
		"type", att.Type,
	)
	return &att, nil
}

// ListAttachments returns the attachments of a use case.
func (e *Engine) ListAttachments(ctx context.Context, id uuid.UUID) ([]domain.Attachment, error) {
	uc, err := e.store.LoadUseCase(ctx, id)
	if err != nil {
		return nil, err
	}
	return uc.Attachments, nil
}

// IsRetryable reports whether the caller may retry the operation
// unchanged (storage conflicts).
func IsRetryable(err error) bool {
	return errors.Is(err, domain.ErrConflict)
}
