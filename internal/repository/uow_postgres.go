package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supportdesk/workflow-service/internal/events"
)

// PostgresUnitOfWork binds one inbound command to one transaction. Every
// repository handed to the callback runs on the transaction, so ledger
// writes, state transitions and assignment mutations all commit or roll
// back together. The aggregator is flushed to the dispatcher only after
// the commit, so consumers never observe partial state.
type PostgresUnitOfWork struct {
	pool       *pgxpool.Pool
	dispatcher events.Dispatcher
}

// NewPostgresUnitOfWork constructs the unit of work.
func NewPostgresUnitOfWork(pool *pgxpool.Pool, dispatcher events.Dispatcher) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{pool: pool, dispatcher: dispatcher}
}

// Execute runs fn inside a transaction and flushes the aggregator on success.
func (u *PostgresUnitOfWork) Execute(ctx context.Context, fn func(ctx context.Context, repos Repositories, agg *events.Aggregator) error) error {
	agg := events.NewAggregator()

	err := pgx.BeginFunc(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(ctx, bindRepositories(tx), agg)
	})
	if err != nil {
		return err
	}
	return agg.Flush(ctx, u.dispatcher)
}

func bindRepositories(db DBTX) Repositories {
	return Repositories{
		Tickets:     NewTicketRepository(db),
		Intervals:   NewIntervalRepository(db),
		Assignments: NewAssignmentRepository(db),
		Lines:       NewLineRepository(db),
		Users:       NewUserRepository(db),
		Comments:    NewCommentRepository(db),
	}
}
