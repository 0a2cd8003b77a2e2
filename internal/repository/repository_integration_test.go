//go:build integration

// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/aiqx/core-service/internal/domain"
	"github.com/aiqx/core-service/internal/persistence/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func integrationPool(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set DATABASE_URL to run integration tests")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		t.Skipf("skip integration test: cannot create pgx pool (%v)", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skip integration test: cannot reach database (%v)", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
		pool.Close()
		t.Skipf("skip integration test: schema bootstrap failed (%v)", err)
	}

	return pool
}

func truncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `TRUNCATE TABLE attachments, use_case_steps, use_cases, plants RESTART IDENTITY CASCADE`)
	return err
}

func createIntegrationPlant(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO plants (id, name, created_at, updated_at)
		VALUES ('P01', 'Stuttgart', NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`)
	return err
}

func integrationUseCase() *domain.UseCase {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.UseCase{
		ID:        uuid.New(),
		Name:      "P01-H2-welding-check",
		Building:  "2",
		PlantID:   "P01",
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: "owner-1",
		Status:    domain.StatusInEvaluation,
	}
}

func TestUseCaseRepositoryRoundTripIntegration(t *testing.T) {
	ctx := context.Background()
	pool := integrationPool(t, ctx)
	defer pool.Close()

	if err := truncateAll(ctx, pool); err != nil {
		t.Skipf("skip integration test: database not reachable (%v)", err)
	}
	if err := createIntegrationPlant(ctx, pool); err != nil {
		t.Fatalf("create plant: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewUseCaseRepository(pool, logger)

	created, err := repo.CreateUseCase(ctx, integrationUseCase())
	if err != nil {
		t.Fatalf("create use case: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1 got %d", created.Version)
	}

	created.Steps = append(created.Steps, domain.StepRecord{
		ID:        uuid.New(),
		Type:      domain.StepInitialRequest,
		Form:      json.RawMessage(`{"problem":"scratches"}`),
		CreatedBy: "owner-1",
	})
	created.UpdatedAt = time.Now().UTC()

	saved, err := repo.SaveUseCase(ctx, created)
	if err != nil {
		t.Fatalf("save use case: %v", err)
	}
	if saved.Version != 2 {
		t.Fatalf("expected version 2 got %d", saved.Version)
	}
	rec, ok := saved.StepRecordFor(domain.StepInitialRequest)
	if !ok || rec.CompletedAt != nil {
		t.Fatalf("expected pending step record, got %+v", rec)
	}

	ts := time.Now().UTC().Truncate(time.Millisecond)
	rec.CompletedAt = &ts
	saved.Status = domain.StatusUnderValidation

	completed, err := repo.SaveUseCase(ctx, saved)
	if err != nil {
		t.Fatalf("save completion: %v", err)
	}
	if completed.Status != domain.StatusUnderValidation {
		t.Fatalf("expected under-validation got %s", completed.Status)
	}
	if len(completed.CompletedSteps()) != 1 {
		t.Fatal("expected one completed step after reload")
	}
}

func TestSaveUseCaseDetectsConcurrentWriterIntegration(t *testing.T) {
	ctx := context.Background()
	pool := integrationPool(t, ctx)
	defer pool.Close()

	if err := truncateAll(ctx, pool); err != nil {
		t.Skipf("skip integration test: database not reachable (%v)", err)
	}
	if err := createIntegrationPlant(ctx, pool); err != nil {
		t.Fatalf("create plant: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewUseCaseRepository(pool, logger)

	created, err := repo.CreateUseCase(ctx, integrationUseCase())
	if err != nil {
		t.Fatalf("create use case: %v", err)
	}

	// Two aggregates loaded at the same version race for the write.
	first, err := repo.LoadUseCase(ctx, created.ID)
	if err != nil {
		t.Fatalf("load first: %v", err)
	}
	second, err := repo.LoadUseCase(ctx, created.ID)
	if err != nil {
		t.Fatalf("load second: %v", err)
	}

	first.Line = "3"
	if _, err := repo.SaveUseCase(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}

	second.Line = "4"
	if _, err := repo.SaveUseCase(ctx, second); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for stale save, got %v", err)
	}
}

func TestDeleteUseCaseCascadesIntegration(t *testing.T) {
	ctx := context.Background()
	pool := integrationPool(t, ctx)
	defer pool.Close()

	if err := truncateAll(ctx, pool); err != nil {
		t.Skipf("skip integration test: database not reachable (%v)", err)
	}
	if err := createIntegrationPlant(ctx, pool); err != nil {
		t.Fatalf("create plant: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewUseCaseRepository(pool, logger)

	created, err := repo.CreateUseCase(ctx, integrationUseCase())
	if err != nil {
		t.Fatalf("create use case: %v", err)
	}

	created.Attachments = append(created.Attachments, domain.Attachment{
		ID:        uuid.New(),
		Type:      domain.AttachmentRequestImage,
		RefID:     "file-1",
		CreatedBy: "owner-1",
		CreatedAt: time.Now().UTC(),
	})
	if _, err := repo.SaveUseCase(ctx, created); err != nil {
		t.Fatalf("save attachment: %v", err)
	}

	if err := repo.DeleteUseCase(ctx, created.ID); err != nil {
		t.Fatalf("delete use case: %v", err)
	}
	if _, err := repo.LoadUseCase(ctx, created.ID); !errors.Is(err, domain.ErrUseCaseNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	var attachments int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attachments WHERE use_case_id=$1`, created.ID,
	).Scan(&attachments); err != nil {
		t.Fatalf("count attachments: %v", err)
	}
	if attachments != 0 {
		t.Fatalf("expected attachments removed, found %d", attachments)
	}

	if err := repo.DeleteUseCase(ctx, created.ID); !errors.Is(err, domain.ErrUseCaseNotFound) {
		t.Fatalf("expected not found for second delete, got %v", err)
	}
}

func TestPlantRepositoryIntegration(t *testing.T) {
	ctx := context.Background()
	pool := integrationPool(t, ctx)
	defer pool.Close()

	if err := truncateAll(ctx, pool); err != nil {
		t.Skipf("skip integration test: database not reachable (%v)", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	plants := NewPlantRepository(pool, logger)
	useCases := NewUseCaseRepository(pool, logger)

	plant, err := plants.CreatePlant(ctx, "P02", "Leipzig")
	if err != nil {
		t.Fatalf("create plant: %v", err)
	}
	if plant.ID != "P02" || plant.Name != "Leipzig" {
		t.Fatalf("unexpected plant %+v", plant)
	}

	uc := integrationUseCase()
	uc.PlantID = "P02"
	if _, err := useCases.CreateUseCase(ctx, uc); err != nil {
		t.Fatalf("create use case: %v", err)
	}

	// A plant carrying use cases must not be deletable.
	if err := plants.DeletePlant(ctx, "P02"); err == nil {
		t.Fatal("expected delete of referenced plant to fail")
	}

	if err := useCases.DeleteUseCase(ctx, uc.ID); err != nil {
		t.Fatalf("delete use case: %v", err)
	}
	if err := plants.DeletePlant(ctx, "P02"); err != nil {
		t.Fatalf("delete plant after cascade: %v", err)
	}
}
