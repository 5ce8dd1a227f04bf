package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/supportdesk/workflow-service/internal/api/dto"
	"github.com/supportdesk/workflow-service/internal/domain"
	"github.com/supportdesk/workflow-service/internal/service"
	apperrors "github.com/supportdesk/workflow-service/pkg/util"
)

// AssignmentsHandler manages hand-off endpoints.
type AssignmentsHandler struct {
	assignments *service.AssignmentService
}

// NewAssignmentsHandler constructs the handler.
func NewAssignmentsHandler(assignments *service.AssignmentService) *AssignmentsHandler {
	return &AssignmentsHandler{assignments: assignments}
}

// Create POST /tickets/:id/assignments.
func (h *AssignmentsHandler) Create(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateAssignmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	assignment, err := h.assignments.Create(c.UserContext(), principal.User, service.AssignmentCreateInput{
		TicketID: c.Params("id"),
		ToLineID: req.ToLineID,
		ToUserID: req.ToUserID,
		Mode:     req.Mode,
		Note:     req.Note,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": assignmentResponse(assignment)})
}

// ListByTicket GET /tickets/:id/assignments.
func (h *AssignmentsHandler) ListByTicket(c *fiber.Ctx) error {
	if _, err := requirePrincipal(c); err != nil {
		return err
	}
	assignments, err := h.assignments.ListByTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.AssignmentResponse, 0, len(assignments))
	for i := range assignments {
		items = append(items, assignmentResponse(&assignments[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Accept POST /assignments/:id/accept.
func (h *AssignmentsHandler) Accept(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	assignment, err := h.assignments.Accept(c.UserContext(), principal.User, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": assignmentResponse(assignment)})
}

// Reject POST /assignments/:id/reject.
func (h *AssignmentsHandler) Reject(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.RejectAssignmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	assignment, err := h.assignments.Reject(c.UserContext(), principal.User, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": assignmentResponse(assignment)})
}

func assignmentResponse(assignment *domain.Assignment) dto.AssignmentResponse {
	return dto.AssignmentResponse{
		ID:           assignment.ID,
		TicketID:     assignment.TicketID,
		FromUserID:   assignment.FromUserID,
		FromLineID:   assignment.FromLineID,
		ToLineID:     assignment.ToLineID,
		ToUserID:     assignment.ToUserID,
		Mode:         assignment.Mode,
		Status:       assignment.Status,
		Note:         assignment.Note,
		RejectReason: assignment.RejectReason,
		AcceptedAt:   assignment.AcceptedAt,
		RejectedAt:   assignment.RejectedAt,
		CreatedAt:    assignment.CreatedAt,
	}
}
