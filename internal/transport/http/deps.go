// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"encoding/json"

	"github.com/aiqx/core-service/internal/domain"
	"github.com/aiqx/core-service/internal/workflow"
	"github.com/google/uuid"
)

type UseCaseService interface {
	Create(ctx context.Context, params workflow.CreateParams, createdBy string) (*domain.UseCase, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.UseCase, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.UseCase, domain.Paging, error)
	Update(ctx context.Context, id uuid.UUID, params workflow.UpdateParams) (*domain.UseCase, error)
	SubmitStep(ctx context.Context, id uuid.UUID, step domain.Step, actorID string, form json.RawMessage) (*domain.UseCase, error)
	CompleteStep(ctx context.Context, id uuid.UUID, step domain.Step) (*domain.UseCase, error)
	SetStatus(ctx context.Context, id uuid.UUID, status domain.Status) (*domain.UseCase, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AddAttachment(ctx context.Context, id uuid.UUID, params workflow.AddAttachmentParams, createdBy string) (*domain.Attachment, error)
	ListAttachments(ctx context.Context, id uuid.UUID) ([]domain.Attachment, error)
}

type PlantService interface {
	ListPlants(ctx context.Context) ([]domain.Plant, error)
	GetPlant(ctx context.Context, id string) (*domain.Plant, error)
	CreatePlant(ctx context.Context, id, name string) (*domain.Plant, error)
	UpdatePlant(ctx context.Context, id, name string) (*domain.Plant, error)
	DeletePlant(ctx context.Context, id string) error
}

type HealthChecker interface {
	Check(ctx context.Context) error
}
