package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/supportdesk/workflow-service/internal/config"
	"github.com/supportdesk/workflow-service/internal/events"
)

// PresenceChecker reports whether a user has a live session. Online users
// get in-app delivery; offline users fall back to email.
type PresenceChecker interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// NotificationService handles emitting notifications for workflow events.
type NotificationService struct {
	dispatcher events.Dispatcher
	presence   PresenceChecker
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service. presence may be nil.
func NewNotificationService(dispatcher events.Dispatcher, presence PresenceChecker, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		presence:   presence,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to the outbound event stream.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleEvent)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleEvent)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleAssigned)
	n.dispatcher.Subscribe(events.EventTicketMessageSent, n.handleEvent)
	n.dispatcher.Subscribe(events.EventTicketRated, n.handleEvent)
	n.dispatcher.Subscribe(events.EventTicketDeleted, n.handleEvent)
}

func (n *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	n.logger.Info("workflow event",
		zap.String("type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	n.sendWebhookStub(ctx, event)
	return nil
}

// handleAssigned routes by the assignee's presence. Assignees with a live
// session already see the ticket in-app, so outbound delivery only happens
// when they are offline.
func (n *NotificationService) handleAssigned(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketAssignedPayload)
	online := true
	if n.presence != nil && payload.AssigneeID != nil {
		var err error
		online, err = n.presence.IsOnline(ctx, *payload.AssigneeID)
		if err != nil {
			n.logger.Warn("presence lookup failed", zap.Error(err))
			online = true
		}
	}
	n.logger.Info("ticket assigned",
		zap.String("ticket_id", event.TicketID),
		zap.Bool("assignee_online", online))
	if !online {
		n.sendWebhookStub(ctx, event)
		n.sendEmailStub(ctx, event)
	}
	return nil
}

func (n *NotificationService) sendEmailStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
