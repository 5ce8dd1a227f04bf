package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/supportdesk/workflow-service/internal/api/dto"
	"github.com/supportdesk/workflow-service/internal/presence"
	apperrors "github.com/supportdesk/workflow-service/pkg/util"
)

// PresenceHandler lets specialists publish their availability.
type PresenceHandler struct {
	tracker *presence.Tracker
}

// NewPresenceHandler constructs the handler.
func NewPresenceHandler(tracker *presence.Tracker) *PresenceHandler {
	return &PresenceHandler{tracker: tracker}
}

// Heartbeat POST /presence/heartbeat.
func (h *PresenceHandler) Heartbeat(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	if err := h.tracker.Heartbeat(c.UserContext(), principal.User.ID); err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "ok"}})
}

// SetAvailability POST /presence/availability.
func (h *PresenceHandler) SetAvailability(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.PresenceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.tracker.SetAvailable(c.UserContext(), principal.User.ID, req.Available); err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"available": req.Available}})
}
