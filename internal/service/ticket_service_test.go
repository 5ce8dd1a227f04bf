package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supportdesk/workflow-service/internal/domain"
	"github.com/supportdesk/workflow-service/internal/events"
	"github.com/supportdesk/workflow-service/internal/repository"
	apperrors "github.com/supportdesk/workflow-service/pkg/util"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{}
}

func (d *recordingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {}

func (d *recordingDispatcher) all() []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]events.Event(nil), d.events...)
}

type serviceEnv struct {
	store      *repository.MemoryStore
	dispatcher *recordingDispatcher
	tickets    *TicketService
	current    time.Time
	mu         sync.Mutex
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	env := &serviceEnv{
		store:      repository.NewMemoryStore(),
		dispatcher: newRecordingDispatcher(),
		current:    time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	env.store.Now = env.now
	uow := repository.NewMemoryUnitOfWork(env.store, env.dispatcher)
	env.tickets = NewTicketService(uow, zap.NewNop(), nil)
	env.tickets.now = env.now
	return env
}

func (e *serviceEnv) now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *serviceEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = e.current.Add(d)
}

func (e *serviceEnv) seedUser(role domain.UserRole, lineID *string) *domain.User {
	user := &domain.User{
		ID:     uuid.NewString(),
		Name:   string(role),
		Email:  uuid.NewString() + "@example.com",
		Role:   role,
		LineID: lineID,
		Active: true,
	}
	e.store.SeedUser(*user)
	return user
}

func (e *serviceEnv) seedLine(role domain.LineRole) *domain.SupportLine {
	line := &domain.SupportLine{
		ID:       uuid.NewString(),
		Name:     string(role),
		Role:     role,
		IsActive: true,
	}
	e.store.SeedLine(*line)
	return line
}

func TestCreateTicketSetsSLAAndLedger(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	creator := env.seedUser(domain.UserRoleEndUser, nil)

	ticket, err := env.tickets.CreateTicket(ctx, creator, TicketCreateInput{
		Title:    "vpn drops every hour",
		Priority: domain.TicketPriorityUrgent,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ticket.Status != domain.TicketStatusNew {
		t.Fatalf("new tickets start in NEW, got %s", ticket.Status)
	}
	if ticket.SLADeadline == nil || !ticket.SLADeadline.Equal(ticket.CreatedAt.Add(4*time.Hour)) {
		t.Fatal("urgent SLA deadline must be four hours out")
	}
	if ticket.ExternalKey == "" {
		t.Fatal("external key missing")
	}

	report, err := env.tickets.TimeInStatusReport(ctx, creator, ticket.ID)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report.History) != 1 || !report.History[0].Open() {
		t.Fatalf("expected a single open ledger interval, got %d", len(report.History))
	}

	flushed := env.dispatcher.all()
	if len(flushed) != 1 || flushed[0].Type != events.EventTicketCreated {
		t.Fatalf("expected one created event, got %v", flushed)
	}
}

func TestCreateTicketRequiresTitle(t *testing.T) {
	env := newServiceEnv(t)
	creator := env.seedUser(domain.UserRoleEndUser, nil)
	_, err := env.tickets.CreateTicket(context.Background(), creator, TicketCreateInput{Title: "   "})
	if !apperrors.HasCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("want INVALID_ARGUMENT, got %v", err)
	}
}

// Full lifecycle: create, take, resolve, request closure, creator confirms,
// creator rates.
func TestTicketLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	line := env.seedLine(domain.LineRoleFirstLine)
	creator := env.seedUser(domain.UserRoleEndUser, nil)
	specialist := env.seedUser(domain.UserRoleSpecialist, &line.ID)

	ticket, err := env.tickets.CreateTicket(ctx, creator, TicketCreateInput{
		Title:  "cannot log in",
		LineID: &line.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	env.advance(10 * time.Minute)
	ticket, err = env.tickets.TakeTicket(ctx, specialist, ticket.ID)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if ticket.Status != domain.TicketStatusOpen {
		t.Fatalf("taking a NEW ticket must open it, got %s", ticket.Status)
	}
	if ticket.FirstResponseAt == nil {
		t.Fatal("first response not stamped")
	}

	env.advance(30 * time.Minute)
	if _, err := env.tickets.ChangeStatus(ctx, specialist, ticket.ID, domain.TicketStatusResolved, "fixed"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := env.tickets.ChangeStatus(ctx, specialist, ticket.ID, domain.TicketStatusPendingClosure, ""); err != nil {
		t.Fatalf("request closure: %v", err)
	}

	// The creator, not the specialist, confirms closure.
	env.advance(time.Hour)
	ticket, err = env.tickets.ChangeStatus(ctx, creator, ticket.ID, domain.TicketStatusClosed, "confirmed")
	if err != nil {
		t.Fatalf("confirm closure: %v", err)
	}
	if ticket.Status != domain.TicketStatusClosed || ticket.ClosedAt == nil {
		t.Fatal("closure not recorded")
	}

	ticket, err = env.tickets.RateTicket(ctx, creator, ticket.ID, 5, "quick fix")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if ticket.Rating == nil || *ticket.Rating != 5 {
		t.Fatal("rating not stored")
	}

	report, err := env.tickets.TimeInStatusReport(ctx, creator, ticket.ID)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.PerStatus[domain.TicketStatusNew] != 10*time.Minute {
		t.Fatalf("NEW time: want 10m, got %s", report.PerStatus[domain.TicketStatusNew])
	}
	if report.PerStatus[domain.TicketStatusOpen] != 30*time.Minute {
		t.Fatalf("OPEN time: want 30m, got %s", report.PerStatus[domain.TicketStatusOpen])
	}
	if report.FirstResponse == nil || *report.FirstResponse != 10*time.Minute {
		t.Fatal("first response time wrong")
	}
}

// Interval timestamps come from the service's injected clock; a command
// entered at one instant must be closed at that same clock's instant, not
// at the wall clock's.
func TestIntervalStampsFollowServiceClock(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	line := env.seedLine(domain.LineRoleFirstLine)
	creator := env.seedUser(domain.UserRoleEndUser, nil)
	specialist := env.seedUser(domain.UserRoleSpecialist, &line.ID)

	ticket, err := env.tickets.CreateTicket(ctx, creator, TicketCreateInput{Title: "stuck job", LineID: &line.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	env.advance(10 * time.Minute)
	if _, err := env.tickets.TakeTicket(ctx, specialist, ticket.ID); err != nil {
		t.Fatalf("take: %v", err)
	}

	report, err := env.tickets.TimeInStatusReport(ctx, creator, ticket.ID)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report.History) != 2 {
		t.Fatalf("want 2 intervals, got %d", len(report.History))
	}
	closed := report.History[0]
	wantExit := ticket.CreatedAt.Add(10 * time.Minute)
	if closed.ExitedAt == nil || !closed.ExitedAt.Equal(wantExit) {
		t.Fatalf("NEW interval must close at %v, got %v", wantExit, closed.ExitedAt)
	}
	if closed.DurationSeconds == nil || *closed.DurationSeconds != 600 {
		t.Fatalf("NEW duration: want 600s, got %v", closed.DurationSeconds)
	}
	if !report.History[1].EnteredAt.Equal(wantExit) {
		t.Fatalf("OPEN interval must start at %v, got %v", wantExit, report.History[1].EnteredAt)
	}
}

func TestRateTicketRules(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	creator := env.seedUser(domain.UserRoleEndUser, nil)
	other := env.seedUser(domain.UserRoleEndUser, nil)

	ticket, err := env.tickets.CreateTicket(ctx, creator, TicketCreateInput{Title: "slow wifi"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := env.tickets.RateTicket(ctx, creator, ticket.ID, 0, ""); !apperrors.HasCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("out-of-range rating: want INVALID_ARGUMENT, got %v", err)
	}
	if _, err := env.tickets.RateTicket(ctx, creator, ticket.ID, 4, ""); !apperrors.HasCode(err, apperrors.CodeInvalidState) {
		t.Fatalf("rating an open ticket: want INVALID_STATE, got %v", err)
	}

	// Drive to CLOSED via admin force-close, then rate.
	admin := env.seedUser(domain.UserRoleAdmin, nil)
	if _, err := env.tickets.ChangeStatus(ctx, admin, ticket.ID, domain.TicketStatusClosed, "force"); err != nil {
		t.Fatalf("force close: %v", err)
	}
	if _, err := env.tickets.RateTicket(ctx, other, ticket.ID, 4, ""); !apperrors.HasCode(err, apperrors.CodeAccessDenied) {
		t.Fatalf("stranger rating: want ACCESS_DENIED, got %v", err)
	}
	if _, err := env.tickets.RateTicket(ctx, creator, ticket.ID, 4, ""); err != nil {
		t.Fatalf("rate: %v", err)
	}
	if _, err := env.tickets.RateTicket(ctx, creator, ticket.ID, 2, ""); !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("second rating: want CONFLICT, got %v", err)
	}
}

func TestAddCommentVisibilityAndAccess(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	line := env.seedLine(domain.LineRoleFirstLine)
	creator := env.seedUser(domain.UserRoleEndUser, nil)
	stranger := env.seedUser(domain.UserRoleEndUser, nil)
	specialist := env.seedUser(domain.UserRoleSpecialist, &line.ID)

	ticket, err := env.tickets.CreateTicket(ctx, creator, TicketCreateInput{Title: "broken keyboard", LineID: &line.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := env.tickets.AddComment(ctx, stranger, ticket.ID, domain.CommentKindPublicReply, "me too"); !apperrors.HasCode(err, apperrors.CodeAccessDenied) {
		t.Fatalf("stranger comment: want ACCESS_DENIED, got %v", err)
	}
	if _, err := env.tickets.AddComment(ctx, creator, ticket.ID, domain.CommentKindInternalNote, "psst"); !apperrors.HasCode(err, apperrors.CodeAccessDenied) {
		t.Fatalf("end-user internal note: want ACCESS_DENIED, got %v", err)
	}

	if _, err := env.tickets.AddComment(ctx, creator, ticket.ID, domain.CommentKindPublicReply, "any update?"); err != nil {
		t.Fatalf("creator reply: %v", err)
	}
	if _, err := env.tickets.AddComment(ctx, specialist, ticket.ID, domain.CommentKindInternalNote, "looks like hardware"); err != nil {
		t.Fatalf("specialist note: %v", err)
	}

	// Internal notes are hidden from the creator but visible to the line.
	_, comments, err := env.tickets.GetTicket(ctx, creator, ticket.ID)
	if err != nil {
		t.Fatalf("get as creator: %v", err)
	}
	if len(comments) != 1 || comments[0].Kind != domain.CommentKindPublicReply {
		t.Fatalf("creator must see only public replies, got %d", len(comments))
	}
	_, comments, err = env.tickets.GetTicket(ctx, specialist, ticket.ID)
	if err != nil {
		t.Fatalf("get as specialist: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("specialist must see the full thread, got %d", len(comments))
	}
}

func TestListTicketsScoping(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	line := env.seedLine(domain.LineRoleFirstLine)
	otherLine := env.seedLine(domain.LineRoleSecondLine)
	alice := env.seedUser(domain.UserRoleEndUser, nil)
	bob := env.seedUser(domain.UserRoleEndUser, nil)
	specialist := env.seedUser(domain.UserRoleSpecialist, &line.ID)
	admin := env.seedUser(domain.UserRoleAdmin, nil)

	if _, err := env.tickets.CreateTicket(ctx, alice, TicketCreateInput{Title: "a", LineID: &line.ID}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.tickets.CreateTicket(ctx, bob, TicketCreateInput{Title: "b", LineID: &otherLine.ID}); err != nil {
		t.Fatal(err)
	}

	own, err := env.tickets.ListTickets(ctx, alice, TicketListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(own) != 1 || own[0].CreatorID != alice.ID {
		t.Fatalf("end user must see only own tickets, got %d", len(own))
	}

	scoped, err := env.tickets.ListTickets(ctx, specialist, TicketListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(scoped) != 1 || scoped[0].LineID == nil || *scoped[0].LineID != line.ID {
		t.Fatalf("specialist must see only their line, got %d", len(scoped))
	}

	everything, err := env.tickets.ListTickets(ctx, admin, TicketListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(everything) != 2 {
		t.Fatalf("admin must see all tickets, got %d", len(everything))
	}
}

// A failed command leaves no writes and flushes no events.
func TestFailedCommandRollsBackAndFlushesNothing(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	creator := env.seedUser(domain.UserRoleEndUser, nil)
	ticket, err := env.tickets.CreateTicket(ctx, creator, TicketCreateInput{Title: "flaky monitor"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	before := len(env.dispatcher.all())

	// Creator is not the assignee; the guard rejects the transition after
	// the ticket read but before any write.
	_, err = env.tickets.ChangeStatus(ctx, creator, ticket.ID, domain.TicketStatusResolved, "")
	if !apperrors.HasCode(err, apperrors.CodeAccessDenied) {
		t.Fatalf("want ACCESS_DENIED, got %v", err)
	}

	if got := len(env.dispatcher.all()); got != before {
		t.Fatalf("failed command must flush nothing, got %d new events", got-before)
	}
	report, err := env.tickets.TimeInStatusReport(ctx, creator, ticket.ID)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report.History) != 1 {
		t.Fatalf("ledger must be untouched, got %d intervals", len(report.History))
	}
}

func TestCancelTicketFlushesTombstone(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	creator := env.seedUser(domain.UserRoleEndUser, nil)
	ticket, err := env.tickets.CreateTicket(ctx, creator, TicketCreateInput{Title: "nevermind"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := env.tickets.CancelTicket(ctx, creator, ticket.ID, "solved it myself"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	var sawDeleted bool
	for _, event := range env.dispatcher.all() {
		if event.TicketID != ticket.ID {
			continue
		}
		if event.Type == events.EventTicketStatusChanged {
			t.Fatal("deletion must supersede the status change for the same ticket")
		}
		if event.Type == events.EventTicketDeleted {
			sawDeleted = true
		}
	}
	if !sawDeleted {
		t.Fatal("no deleted event flushed")
	}
}
