package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/supportdesk/workflow-service/internal/domain"
	apperrors "github.com/supportdesk/workflow-service/pkg/util"
)

type lineRepository struct {
	db DBTX
}

// NewLineRepository builds the repository.
func NewLineRepository(db DBTX) LineRepository {
	return &lineRepository{db: db}
}

func (r *lineRepository) Create(ctx context.Context, line *domain.SupportLine) error {
	const query = `
        INSERT INTO support_lines (id, name, description, role, last_assigned_index, is_active)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		line.ID,
		line.Name,
		line.Description,
		line.Role,
		line.LastAssignedIndex,
		line.IsActive,
	).Scan(&line.CreatedAt, &line.UpdatedAt)
}

func (r *lineRepository) Update(ctx context.Context, line *domain.SupportLine) error {
	const query = `
        UPDATE support_lines SET name=$1, description=$2, role=$3, last_assigned_index=$4,
            is_active=$5, updated_at=NOW()
        WHERE id=$6`
	cmd, err := r.db.Exec(ctx, query,
		line.Name,
		line.Description,
		line.Role,
		line.LastAssignedIndex,
		line.IsActive,
		line.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewNotFound("support line", map[string]any{"line_id": line.ID})
	}
	return nil
}

func (r *lineRepository) GetByID(ctx context.Context, id string) (*domain.SupportLine, error) {
	const query = `
        SELECT id, name, description, role, last_assigned_index, is_active, created_at, updated_at
        FROM support_lines WHERE id=$1`
	var line domain.SupportLine
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&line.ID,
		&line.Name,
		&line.Description,
		&line.Role,
		&line.LastAssignedIndex,
		&line.IsActive,
		&line.CreatedAt,
		&line.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("support line", map[string]any{"line_id": id})
		}
		return nil, err
	}
	return &line, nil
}
