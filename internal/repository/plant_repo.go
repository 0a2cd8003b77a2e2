// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aiqx/core-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PlantRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPlantRepository(pool *pgxpool.Pool, logger *slog.Logger) *PlantRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PlantRepository{
		pool:   pool,
		logger: logger,
	}
}

func (r *PlantRepository) ListPlants(ctx context.Context) ([]domain.Plant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, created_at, updated_at FROM plants ORDER BY id ASC`,
	)
	if err != nil {
		r.logger.Error("list plants failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Plant, 0, 8)
	for rows.Next() {
		var plant domain.Plant
		if err := rows.Scan(&plant.ID, &plant.Name, &plant.CreatedAt, &plant.UpdatedAt); err != nil {
			r.logger.Error("scan plant row failed", "error", err)
			return nil, err
		}
		out = append(out, plant)
	}
	return out, rows.Err()
}

func (r *PlantRepository) GetPlant(ctx context.Context, id string) (*domain.Plant, error) {
	var plant domain.Plant
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM plants WHERE id=$1`,
		id,
	).Scan(&plant.ID, &plant.Name, &plant.CreatedAt, &plant.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlantNotFound
		}
		r.logger.Error("get plant failed", "plant_id", id, "error", err)
		return nil, err
	}
	return &plant, nil
}

func (r *PlantRepository) CreatePlant(ctx context.Context, id, name string) (*domain.Plant, error) {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO plants (id, name, created_at, updated_at)
		VALUES ($1,$2,$3,$3)
	`, id, name, now)
	if err != nil {
		r.logger.Error("insert plant failed", "plant_id", id, "error", err)
		return nil, err
	}

	r.logger.Info("plant created", "plant_id", id)
	return r.GetPlant(ctx, id)
}

func (r *PlantRepository) UpdatePlant(ctx context.Context, id, name string) (*domain.Plant, error) {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE plants SET name=$2, updated_at=NOW() WHERE id=$1`,
		id, name,
	)
	if err != nil {
		r.logger.Error("update plant failed", "plant_id", id, "error", err)
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		return nil, domain.ErrPlantNotFound
	}

	return r.GetPlant(ctx, id)
}

// DeletePlant refuses to remove a plant that still has use cases.
func (r *PlantRepository) DeletePlant(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return err
	}
	defer tx.Rollback(ctx)

	var inUse int64
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM use_cases WHERE plant_id=$1`,
		id,
	).Scan(&inUse); err != nil {
		r.logger.Error("plant usage check failed", "plant_id", id, "error", err)
		return err
	}
	if inUse > 0 {
		return domain.NewValidationError("plant %s still has %d use cases", id, inUse)
	}

	cmd, err := tx.Exec(ctx, `DELETE FROM plants WHERE id=$1`, id)
	if err != nil {
		r.logger.Error("delete plant failed", "plant_id", id, "error", err)
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrPlantNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit delete failed", "plant_id", id, "error", err)
		return err
	}

	r.logger.Info("plant removed", "plant_id", id)
	return nil
}
