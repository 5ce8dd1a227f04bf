package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/supportdesk/workflow-service/internal/domain"
	"github.com/supportdesk/workflow-service/internal/events"
	apperrors "github.com/supportdesk/workflow-service/pkg/util"
)

// MemoryStore is an in-memory implementation of every repository interface,
// with the same optimistic-versioning semantics as the Postgres layer. It
// backs the core tests and keeps them independent of a database.
type MemoryStore struct {
	mu              sync.Mutex
	tickets         map[string]domain.Ticket
	intervals       []domain.StatusInterval
	assignments     map[string]domain.Assignment
	assignmentOrder []string
	lines           map[string]domain.SupportLine
	users           map[string]domain.User
	comments        []domain.TicketComment
	resets          map[string]PasswordResetToken

	// Now supplies timestamps; tests may pin it.
	Now func() time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:     make(map[string]domain.Ticket),
		assignments: make(map[string]domain.Assignment),
		lines:       make(map[string]domain.SupportLine),
		users:       make(map[string]domain.User),
		resets:      make(map[string]PasswordResetToken),
		Now:         time.Now,
	}
}

// Repositories exposes the store through the repository interfaces.
func (s *MemoryStore) Repositories() Repositories {
	return Repositories{
		Tickets:     (*memTickets)(s),
		Intervals:   (*memIntervals)(s),
		Assignments: (*memAssignments)(s),
		Lines:       (*memLines)(s),
		Users:       (*memUsers)(s),
		Comments:    (*memComments)(s),
	}
}

func (s *MemoryStore) snapshot() *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyStore := NewMemoryStore()
	copyStore.Now = s.Now
	for k, v := range s.tickets {
		copyStore.tickets[k] = v
	}
	for k, v := range s.assignments {
		copyStore.assignments[k] = v
	}
	for k, v := range s.lines {
		copyStore.lines[k] = v
	}
	for k, v := range s.users {
		copyStore.users[k] = v
	}
	for k, v := range s.resets {
		copyStore.resets[k] = v
	}
	copyStore.intervals = append([]domain.StatusInterval(nil), s.intervals...)
	copyStore.comments = append([]domain.TicketComment(nil), s.comments...)
	copyStore.assignmentOrder = append([]string(nil), s.assignmentOrder...)
	return copyStore
}

func (s *MemoryStore) restore(from *MemoryStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets = from.tickets
	s.intervals = from.intervals
	s.assignments = from.assignments
	s.assignmentOrder = from.assignmentOrder
	s.lines = from.lines
	s.users = from.users
	s.comments = from.comments
	s.resets = from.resets
}

// SeedLine inserts a support line directly.
func (s *MemoryStore) SeedLine(line domain.SupportLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[line.ID] = line
}

// SeedUser inserts a user directly.
func (s *MemoryStore) SeedUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.Now()
	}
	s.users[user.ID] = user
}

// MemoryUnitOfWork mirrors the Postgres unit of work: writes are discarded
// on error via snapshot restore, and the aggregator is flushed only on
// success.
type MemoryUnitOfWork struct {
	store      *MemoryStore
	dispatcher events.Dispatcher
}

// NewMemoryUnitOfWork constructs the unit of work.
func NewMemoryUnitOfWork(store *MemoryStore, dispatcher events.Dispatcher) *MemoryUnitOfWork {
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	return &MemoryUnitOfWork{store: store, dispatcher: dispatcher}
}

// Execute runs fn against the store, rolling back on error.
func (u *MemoryUnitOfWork) Execute(ctx context.Context, fn func(ctx context.Context, repos Repositories, agg *events.Aggregator) error) error {
	before := u.store.snapshot()
	agg := events.NewAggregator()
	if err := fn(ctx, u.store.Repositories(), agg); err != nil {
		u.store.restore(before)
		return err
	}
	return agg.Flush(ctx, u.dispatcher)
}

type memTickets MemoryStore

func (m *memTickets) Create(ctx context.Context, ticket *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	m.tickets[ticket.ID] = *ticket
	return nil
}

func (m *memTickets) Update(ctx context.Context, ticket *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tickets[ticket.ID]
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticket.ID})
	}
	if stored.Version != ticket.Version {
		return apperrors.NewConflict("ticket modified concurrently", map[string]any{"ticket_id": ticket.ID})
	}
	ticket.Version++
	ticket.UpdatedAt = m.Now()
	m.tickets[ticket.ID] = *ticket
	return nil
}

func (m *memTickets) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	result := stored
	return &result, nil
}

func (m *memTickets) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range m.tickets {
		if ticket.DeletedAt != nil {
			continue
		}
		if filter.CreatorID != nil && ticket.CreatorID != *filter.CreatorID {
			continue
		}
		if filter.LineID != nil && (ticket.LineID == nil || *ticket.LineID != *filter.LineID) {
			continue
		}
		if filter.AssigneeID != nil && (ticket.AssigneeID == nil || *ticket.AssigneeID != *filter.AssigneeID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
			continue
		}
		if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, ticket.Priority) {
			continue
		}
		if filter.CreatedFrom != nil && ticket.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && ticket.CreatedAt.After(*filter.CreatedTo) {
			continue
		}
		if filter.SearchTerm != nil {
			term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
			if term != "" &&
				!strings.Contains(strings.ToLower(ticket.Title), term) &&
				!strings.Contains(strings.ToLower(ticket.Description), term) {
				continue
			}
		}
		result = append(result, ticket)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *memTickets) CountActiveByAssignee(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, ticket := range m.tickets {
		if ticket.DeletedAt != nil || ticket.AssigneeID == nil || *ticket.AssigneeID != userID {
			continue
		}
		switch ticket.Status {
		case domain.TicketStatusClosed, domain.TicketStatusRejected, domain.TicketStatusCancelled:
		default:
			count++
		}
	}
	return count, nil
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func containsPriority(priorities []domain.TicketPriority, priority domain.TicketPriority) bool {
	for _, candidate := range priorities {
		if candidate == priority {
			return true
		}
	}
	return false
}

type memIntervals MemoryStore

func (m *memIntervals) Create(ctx context.Context, interval *domain.StatusInterval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intervals = append(m.intervals, *interval)
	return nil
}

func (m *memIntervals) Close(ctx context.Context, interval *domain.StatusInterval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.intervals {
		if m.intervals[i].ID == interval.ID {
			if m.intervals[i].ExitedAt != nil {
				return apperrors.NewDataIntegrity("interval already closed", map[string]any{"interval_id": interval.ID})
			}
			m.intervals[i].ExitedAt = interval.ExitedAt
			m.intervals[i].DurationSeconds = interval.DurationSeconds
			return nil
		}
	}
	return apperrors.NewNotFound("interval", map[string]any{"interval_id": interval.ID})
}

func (m *memIntervals) FindOpen(ctx context.Context, ticketID string) (*domain.StatusInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.intervals {
		if m.intervals[i].TicketID == ticketID && m.intervals[i].ExitedAt == nil {
			result := m.intervals[i]
			return &result, nil
		}
	}
	return nil, apperrors.NewNotFound("open interval", map[string]any{"ticket_id": ticketID})
}

func (m *memIntervals) ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.StatusInterval
	for _, interval := range m.intervals {
		if interval.TicketID == ticketID {
			result = append(result, interval)
		}
	}
	return result, nil
}

type memAssignments MemoryStore

func (m *memAssignments) Create(ctx context.Context, assignment *domain.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = m.Now()
	}
	m.assignments[assignment.ID] = *assignment
	m.assignmentOrder = append(m.assignmentOrder, assignment.ID)
	return nil
}

func (m *memAssignments) Update(ctx context.Context, assignment *domain.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.assignments[assignment.ID]
	if !ok {
		return apperrors.NewNotFound("assignment", map[string]any{"assignment_id": assignment.ID})
	}
	if stored.Version != assignment.Version {
		return apperrors.NewConflict("assignment modified concurrently", map[string]any{"assignment_id": assignment.ID})
	}
	assignment.Version++
	m.assignments[assignment.ID] = *assignment
	return nil
}

func (m *memAssignments) GetByID(ctx context.Context, id string) (*domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.assignments[id]
	if !ok {
		return nil, apperrors.NewNotFound("assignment", map[string]any{"assignment_id": id})
	}
	result := stored
	return &result, nil
}

func (m *memAssignments) ListByTicket(ctx context.Context, ticketID string) ([]domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Assignment
	for _, id := range m.assignmentOrder {
		if assignment, ok := m.assignments[id]; ok && assignment.TicketID == ticketID {
			result = append(result, assignment)
		}
	}
	return result, nil
}

type memLines MemoryStore

func (m *memLines) Create(ctx context.Context, line *domain.SupportLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if line.CreatedAt.IsZero() {
		line.CreatedAt = m.Now()
	}
	m.lines[line.ID] = *line
	return nil
}

func (m *memLines) Update(ctx context.Context, line *domain.SupportLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lines[line.ID]; !ok {
		return apperrors.NewNotFound("support line", map[string]any{"line_id": line.ID})
	}
	m.lines[line.ID] = *line
	return nil
}

func (m *memLines) GetByID(ctx context.Context, id string) (*domain.SupportLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.lines[id]
	if !ok {
		return nil, apperrors.NewNotFound("support line", map[string]any{"line_id": id})
	}
	result := stored
	return &result, nil
}

type memUsers MemoryStore

func (m *memUsers) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = m.Now()
	}
	m.users[user.ID] = *user
	return nil
}

func (m *memUsers) Update(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return apperrors.NewNotFound("user", map[string]any{"user_id": user.ID})
	}
	m.users[user.ID] = *user
	return nil
}

func (m *memUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.users[id]
	if !ok {
		return nil, apperrors.NewNotFound("user", map[string]any{"user_id": id})
	}
	result := stored
	return &result, nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			result := user
			return &result, nil
		}
	}
	return nil, apperrors.NewNotFound("user", nil)
}

func (m *memUsers) ListByLine(ctx context.Context, lineID string) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.User
	for _, user := range m.users {
		if user.Active && user.LineID != nil && *user.LineID == lineID {
			result = append(result, user)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

type memComments MemoryStore

func (m *memComments) Create(ctx context.Context, comment *domain.TicketComment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = m.Now()
	}
	m.comments = append(m.comments, *comment)
	return nil
}

func (m *memComments) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketComment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.TicketComment
	for _, comment := range m.comments {
		if comment.TicketID == ticketID {
			result = append(result, comment)
		}
	}
	return result, nil
}
