package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/supportdesk/workflow-service/internal/domain"
	"github.com/supportdesk/workflow-service/internal/events"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// repository code runs inside and outside a unit of work.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TicketFilter captures listing parameters.
type TicketFilter struct {
	CreatorID   *string
	LineID      *string
	AssigneeID  *string
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence. Update performs an
// optimistic compare-and-swap on Version and returns Conflict when the
// stored version moved.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	CountActiveByAssignee(ctx context.Context, userID string) (int, error)
}

// IntervalRepository stores the append-only status ledger.
type IntervalRepository interface {
	Create(ctx context.Context, interval *domain.StatusInterval) error
	Close(ctx context.Context, interval *domain.StatusInterval) error
	FindOpen(ctx context.Context, ticketID string) (*domain.StatusInterval, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusInterval, error)
}

// AssignmentRepository stores hand-offs. Update is version-guarded like
// TicketRepository.Update.
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *domain.Assignment) error
	Update(ctx context.Context, assignment *domain.Assignment) error
	GetByID(ctx context.Context, id string) (*domain.Assignment, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Assignment, error)
}

// LineRepository stores support lines, including the round-robin cursor.
type LineRepository interface {
	Create(ctx context.Context, line *domain.SupportLine) error
	Update(ctx context.Context, line *domain.SupportLine) error
	GetByID(ctx context.Context, id string) (*domain.SupportLine, error)
}

// UserRepository stores requesters, specialists and admins.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListByLine(ctx context.Context, lineID string) ([]domain.User, error)
}

// CommentRepository stores ticket thread entries.
type CommentRepository interface {
	Create(ctx context.Context, comment *domain.TicketComment) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketComment, error)
}

// PasswordResetToken represents stored reset tokens.
type PasswordResetToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// PasswordResetRepository manages password reset token persistence.
type PasswordResetRepository interface {
	Create(ctx context.Context, token *PasswordResetToken) error
	GetByToken(ctx context.Context, token string) (*PasswordResetToken, error)
	MarkUsed(ctx context.Context, id string) error
}

// Repositories bundles everything one unit of work may touch.
type Repositories struct {
	Tickets     TicketRepository
	Intervals   IntervalRepository
	Assignments AssignmentRepository
	Lines       LineRepository
	Users       UserRepository
	Comments    CommentRepository
}

// UnitOfWork runs one inbound command atomically. The callback receives
// repositories bound to the transaction plus a fresh aggregator; when the
// callback succeeds the transaction commits and the aggregator is flushed
// to the outbound dispatcher, otherwise every write is discarded and the
// aggregator is dropped unflushed.
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(ctx context.Context, repos Repositories, agg *events.Aggregator) error) error
}
