package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/supportdesk/workflow-service/internal/domain"
	apperrors "github.com/supportdesk/workflow-service/pkg/util"
)

type intervalRepository struct {
	db DBTX
}

// NewIntervalRepository builds the ledger repository.
func NewIntervalRepository(db DBTX) IntervalRepository {
	return &intervalRepository{db: db}
}

func (r *intervalRepository) Create(ctx context.Context, interval *domain.StatusInterval) error {
	const query = `
        INSERT INTO status_intervals (id, ticket_id, status, entered_at, changed_by, comment)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.db.Exec(ctx, query,
		interval.ID,
		interval.TicketID,
		interval.Status,
		interval.EnteredAt,
		interval.ChangedByID,
		interval.Comment,
	)
	return err
}

// Close stamps the exit time and derived duration on an open interval.
// Closed intervals are never touched again.
func (r *intervalRepository) Close(ctx context.Context, interval *domain.StatusInterval) error {
	const query = `
        UPDATE status_intervals SET exited_at=$1, duration_seconds=$2
        WHERE id=$3 AND exited_at IS NULL`
	cmd, err := r.db.Exec(ctx, query, interval.ExitedAt, interval.DurationSeconds, interval.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewDataIntegrity("interval already closed", map[string]any{"interval_id": interval.ID})
	}
	return nil
}

func (r *intervalRepository) FindOpen(ctx context.Context, ticketID string) (*domain.StatusInterval, error) {
	const query = `
        SELECT id, ticket_id, status, entered_at, exited_at, duration_seconds, changed_by, comment
        FROM status_intervals WHERE ticket_id=$1 AND exited_at IS NULL`
	var interval domain.StatusInterval
	if err := scanInterval(r.db.QueryRow(ctx, query, ticketID), &interval); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("open interval", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return &interval, nil
}

func (r *intervalRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusInterval, error) {
	const query = `
        SELECT id, ticket_id, status, entered_at, exited_at, duration_seconds, changed_by, comment
        FROM status_intervals WHERE ticket_id=$1 ORDER BY entered_at ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StatusInterval
	for rows.Next() {
		var interval domain.StatusInterval
		if err := scanInterval(rows, &interval); err != nil {
			return nil, err
		}
		result = append(result, interval)
	}
	return result, rows.Err()
}

func scanInterval(row pgx.Row, interval *domain.StatusInterval) error {
	return row.Scan(
		&interval.ID,
		&interval.TicketID,
		&interval.Status,
		&interval.EnteredAt,
		&interval.ExitedAt,
		&interval.DurationSeconds,
		&interval.ChangedByID,
		&interval.Comment,
	)
}
