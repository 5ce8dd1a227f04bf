package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/supportdesk/workflow-service/internal/domain"
	apperrors "github.com/supportdesk/workflow-service/pkg/util"
)

const assignmentColumns = `id, ticket_id, from_line_id, from_user_id, to_line_id, to_user_id,
       mode, status, note, reject_reason, version, created_at, accepted_at, rejected_at`

type assignmentRepository struct {
	db DBTX
}

// NewAssignmentRepository builds the repository.
func NewAssignmentRepository(db DBTX) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *domain.Assignment) error {
	const query = `
        INSERT INTO assignments (id, ticket_id, from_line_id, from_user_id, to_line_id, to_user_id,
            mode, status, note, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING created_at`
	return r.db.QueryRow(ctx, query,
		assignment.ID,
		assignment.TicketID,
		assignment.FromLineID,
		assignment.FromUserID,
		assignment.ToLineID,
		assignment.ToUserID,
		assignment.Mode,
		assignment.Status,
		assignment.Note,
		assignment.Version,
	).Scan(&assignment.CreatedAt)
}

func (r *assignmentRepository) Update(ctx context.Context, assignment *domain.Assignment) error {
	const query = `
        UPDATE assignments SET status=$1, to_user_id=$2, reject_reason=$3, accepted_at=$4,
            rejected_at=$5, version=version+1
        WHERE id=$6 AND version=$7`
	cmd, err := r.db.Exec(ctx, query,
		assignment.Status,
		assignment.ToUserID,
		assignment.RejectReason,
		assignment.AcceptedAt,
		assignment.RejectedAt,
		assignment.ID,
		assignment.Version,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewConflict("assignment modified concurrently", map[string]any{"assignment_id": assignment.ID})
	}
	assignment.Version++
	return nil
}

func (r *assignmentRepository) GetByID(ctx context.Context, id string) (*domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id=$1`
	var assignment domain.Assignment
	if err := scanAssignment(r.db.QueryRow(ctx, query, id), &assignment); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("assignment", map[string]any{"assignment_id": id})
		}
		return nil, err
	}
	return &assignment, nil
}

func (r *assignmentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Assignment
	for rows.Next() {
		var assignment domain.Assignment
		if err := scanAssignment(rows, &assignment); err != nil {
			return nil, err
		}
		result = append(result, assignment)
	}
	return result, rows.Err()
}

func scanAssignment(row pgx.Row, assignment *domain.Assignment) error {
	return row.Scan(
		&assignment.ID,
		&assignment.TicketID,
		&assignment.FromLineID,
		&assignment.FromUserID,
		&assignment.ToLineID,
		&assignment.ToUserID,
		&assignment.Mode,
		&assignment.Status,
		&assignment.Note,
		&assignment.RejectReason,
		&assignment.Version,
		&assignment.CreatedAt,
		&assignment.AcceptedAt,
		&assignment.RejectedAt,
	)
}
