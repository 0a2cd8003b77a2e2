// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/aiqx/core-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UseCaseRepository persists use-case aggregates. Every mutating method
// runs in its own transaction; SaveUseCase guards the write with the
// aggregate's version column and reports domain.ErrConflict when a
// concurrent writer bumped it first.
type UseCaseRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewUseCaseRepository(pool *pgxpool.Pool, logger *slog.Logger) *UseCaseRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &UseCaseRepository{
		pool:   pool,
		logger: logger,
	}
}

func (r *UseCaseRepository) CreateUseCase(ctx context.Context, uc *domain.UseCase) (*domain.UseCase, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO use_cases
			(id, name, image, building, line, position, plant_id,
			 created_at, updated_at, created_by, status, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,1)
	`,
		uc.ID, uc.Name, uc.Image, uc.Building, uc.Line, uc.Position, uc.PlantID,
		uc.CreatedAt, uc.UpdatedAt, uc.CreatedBy, uc.Status.String(),
	)
	if err != nil {
		r.logger.Error("insert use case failed", "use_case_id", uc.ID, "error", err)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit failed", "use_case_id", uc.ID, "error", err)
		return nil, err
	}

	return r.LoadUseCase(ctx, uc.ID)
}

func (r *UseCaseRepository) LoadUseCase(ctx context.Context, id uuid.UUID) (*domain.UseCase, error) {
	var uc domain.UseCase
	var status string

	err := r.pool.QueryRow(ctx, `
		SELECT id, name, image, building, line, position, plant_id,
		       created_at, updated_at, created_by, status, version
		FROM use_cases
		WHERE id=$1
	`, id).Scan(
		&uc.ID, &uc.Name, &uc.Image, &uc.Building, &uc.Line, &uc.Position, &uc.PlantID,
		&uc.CreatedAt, &uc.UpdatedAt, &uc.CreatedBy, &status, &uc.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUseCaseNotFound
		}
		r.logger.Error("load use case failed", "use_case_id", id, "error", err)
		return nil, err
	}

	uc.Status, err = domain.ParseStatus(status)
	if err != nil {
		r.logger.Error("stored status is invalid", "use_case_id", id, "status", status)
		return nil, err
	}

	if err := r.loadChildren(ctx, []*domain.UseCase{&uc}); err != nil {
		return nil, err
	}

	return &uc, nil
}

// SaveUseCase commits the whole aggregate in one transaction. The parent
// row UPDATE is guarded by the version the aggregate was loaded with, so
// step completion and its derived status land atomically or not at all.
func (r *UseCaseRepository) SaveUseCase(ctx context.Context, uc *domain.UseCase) (*domain.UseCase, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return nil, err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		UPDATE use_cases
		SET name=$2, image=$3, building=$4, line=$5, position=$6, plant_id=$7,
		    updated_at=$8, status=$9, version=version+1
		WHERE id=$1 AND version=$10
	`,
		uc.ID, uc.Name, uc.Image, uc.Building, uc.Line, uc.Position, uc.PlantID,
		uc.UpdatedAt, uc.Status.String(), uc.Version,
	)
	if err != nil {
		r.logger.Error("update use case failed", "use_case_id", uc.ID, "error", err)
		return nil, err
	}

	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM use_cases WHERE id=$1)`,
			uc.ID,
		).Scan(&exists); err != nil {
			r.logger.Error("existence check failed", "use_case_id", uc.ID, "error", err)
			return nil, err
		}
		if !exists {
			return nil, domain.ErrUseCaseNotFound
		}

		r.logger.Warn("save lost to concurrent writer",
			"use_case_id", uc.ID,
			"version", uc.Version,
		)
		return nil, domain.ErrConflict
	}

	for _, rec := range uc.Steps {
		if _, err := tx.Exec(ctx, `
			INSERT INTO use_case_steps (id, use_case_id, type, form, completed_at, created_by)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (use_case_id, type)
			DO UPDATE SET form=EXCLUDED.form, completed_at=EXCLUDED.completed_at
		`,
			rec.ID, uc.ID, rec.Type.String(), rec.Form, rec.CompletedAt, rec.CreatedBy,
		); err != nil {
			r.logger.Error("upsert step failed",
				"use_case_id", uc.ID,
				"step", rec.Type,
				"error", err,
			)
			return nil, err
		}
	}

	for _, att := range uc.Attachments {
		if _, err := tx.Exec(ctx, `
			INSERT INTO attachments (id, use_case_id, type, ref_id, filename, created_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO NOTHING
		`,
			att.ID, uc.ID, att.Type.String(), att.RefID, att.Filename, att.CreatedBy, att.CreatedAt,
		); err != nil {
			r.logger.Error("insert attachment failed",
				"use_case_id", uc.ID,
				"attachment_id", att.ID,
				"error", err,
			)
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit save failed", "use_case_id", uc.ID, "error", err)
		return nil, err
	}

	return r.LoadUseCase(ctx, uc.ID)
}

// DeleteUseCase removes the aggregate with an explicit child cascade
// inside one transaction.
func (r *UseCaseRepository) DeleteUseCase(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM attachments WHERE use_case_id=$1`, id); err != nil {
		r.logger.Error("delete attachments failed", "use_case_id", id, "error", err)
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM use_case_steps WHERE use_case_id=$1`, id); err != nil {
		r.logger.Error("delete steps failed", "use_case_id", id, "error", err)
		return err
	}

	cmd, err := tx.Exec(ctx, `DELETE FROM use_cases WHERE id=$1`, id)
	if err != nil {
		r.logger.Error("delete use case failed", "use_case_id", id, "error", err)
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrUseCaseNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit delete failed", "use_case_id", id, "error", err)
		return err
	}

	r.logger.Info("use case removed", "use_case_id", id)
	return nil
}

func (r *UseCaseRepository) ListUseCases(ctx context.Context, filter domain.ListFilter) ([]domain.UseCase, domain.Paging, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	where := `WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
	            AND ($2 = '' OR plant_id = $2)`

	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM use_cases `+where,
		filter.Query, filter.PlantID,
	).Scan(&total); err != nil {
		r.logger.Error("count use cases failed", "error", err)
		return nil, domain.Paging{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, image, building, line, position, plant_id,
		       created_at, updated_at, created_by, status, version
		FROM use_cases `+where+`
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, filter.Query, filter.PlantID, limit, (page-1)*limit)
	if err != nil {
		r.logger.Error("list use cases failed", "error", err)
		return nil, domain.Paging{}, err
	}
	defer rows.Close()

	out := make([]domain.UseCase, 0, limit)
	for rows.Next() {
		var uc domain.UseCase
		var status string
		if err := rows.Scan(
			&uc.ID, &uc.Name, &uc.Image, &uc.Building, &uc.Line, &uc.Position, &uc.PlantID,
			&uc.CreatedAt, &uc.UpdatedAt, &uc.CreatedBy, &status, &uc.Version,
		); err != nil {
			r.logger.Error("scan use case row failed", "error", err)
			return nil, domain.Paging{}, err
		}
		if uc.Status, err = domain.ParseStatus(status); err != nil {
			r.logger.Error("stored status is invalid", "use_case_id", uc.ID, "status", status)
			return nil, domain.Paging{}, err
		}
		out = append(out, uc)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("rows iteration failed", "error", err)
		return nil, domain.Paging{}, err
	}

	refs := make([]*domain.UseCase, len(out))
	for i := range out {
		refs[i] = &out[i]
	}
	if err := r.loadChildren(ctx, refs); err != nil {
		return nil, domain.Paging{}, err
	}

	paging := domain.Paging{
		Count:     len(out),
		Page:      page,
		PageCount: max(int(math.Ceil(float64(total)/float64(limit))), 1),
		Total:     total,
	}
	return out, paging, nil
}

// LoadPlant resolves the location reference of a use case.
func (r *UseCaseRepository) LoadPlant(ctx context.Context, id string) (*domain.Plant, error) {
	var plant domain.Plant
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at FROM plants WHERE id=$1
	`, id).Scan(&plant.ID, &plant.Name, &plant.CreatedAt, &plant.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlantNotFound
		}
		r.logger.Error("load plant failed", "plant_id", id, "error", err)
		return nil, err
	}
	return &plant, nil
}

// loadChildren fetches step records and attachments for the given
// aggregates in two queries.
func (r *UseCaseRepository) loadChildren(ctx context.Context, ucs []*domain.UseCase) error {
	if len(ucs) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*domain.UseCase, len(ucs))
	ids := make([]uuid.UUID, 0, len(ucs))
	for _, uc := range ucs {
		byID[uc.ID] = uc
		ids = append(ids, uc.ID)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT use_case_id, id, type, form, completed_at, created_by
		FROM use_case_steps
		WHERE use_case_id = ANY($1)
	`, ids)
	if err != nil {
		r.logger.Error("load steps failed", "error", err)
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var parentID uuid.UUID
		var rec domain.StepRecord
		var stepType string
		if err := rows.Scan(&parentID, &rec.ID, &stepType, &rec.Form, &rec.CompletedAt, &rec.CreatedBy); err != nil {
			r.logger.Error("scan step row failed", "error", err)
			return err
		}
		if rec.Type, err = domain.ParseStep(stepType); err != nil {
			r.logger.Error("stored step type is invalid", "use_case_id", parentID, "type", stepType)
			return err
		}
		byID[parentID].Steps = append(byID[parentID].Steps, rec)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("rows iteration failed", "error", err)
		return err
	}

	attRows, err := r.pool.Query(ctx, `
		SELECT use_case_id, id, type, ref_id, filename, created_by, created_at
		FROM attachments
		WHERE use_case_id = ANY($1)
		ORDER BY created_at ASC
	`, ids)
	if err != nil {
		r.logger.Error("load attachments failed", "error", err)
		return err
	}
	defer attRows.Close()

	for attRows.Next() {
		var parentID uuid.UUID
		var att domain.Attachment
		var attType string
		if err := attRows.Scan(&parentID, &att.ID, &attType, &att.RefID, &att.Filename, &att.CreatedBy, &att.CreatedAt); err != nil {
			r.logger.Error("scan attachment row failed", "error", err)
			return err
		}
		if att.Type, err = domain.ParseAttachmentType(attType); err != nil {
			r.logger.Error("stored attachment type is invalid", "use_case_id", parentID, "type", attType)
			return err
		}
		byID[parentID].Attachments = append(byID[parentID].Attachments, att)
	}
	return attRows.Err()
}
