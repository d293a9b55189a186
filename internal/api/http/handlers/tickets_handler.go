package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// TicketsHandler exposes the customer and agent ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Customer == nil {
		return apperrors.NewUnauthorized("customer required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	channel, ok := domain.ParseChannel(req.Channel)
	if !ok {
		channel = domain.ChannelChat
	}
	detail, err := h.service.CreateTicket(c.UserContext(), principal.Customer.ID, req.Subject, req.Message, channel)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.ToTicketDetail(detail)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Customer == nil {
		return apperrors.NewUnauthorized("customer required")
	}
	limit, offset := parsePage(c)
	tickets, err := h.service.ListCustomerTickets(c.UserContext(), principal.Customer.ID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToTicketSummaries(tickets)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Customer == nil {
		return apperrors.NewUnauthorized("customer required")
	}
	detail, err := h.service.GetTicketForCustomer(c.UserContext(), principal.Customer.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToTicketDetail(detail)})
}

// AddReply POST /tickets/:id/replies.
func (h *TicketsHandler) AddReply(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Customer == nil {
		return apperrors.NewUnauthorized("customer required")
	}
	var req dto.ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	reply, err := h.service.AddCustomerReply(c.UserContext(), principal.Customer.ID, c.Params("id"), req.Content)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.ToReplyResponse(reply)})
}

// AgentListTickets GET /agent/tickets.
func (h *TicketsHandler) AgentListTickets(c *fiber.Ctx) error {
	if _, err := requireAgent(c); err != nil {
		return err
	}
	filter := parseAgentFilter(c)
	tickets, err := h.service.ListAgentTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToTicketSummaries(tickets)})
}

// AgentGetTicket GET /agent/tickets/:id.
func (h *TicketsHandler) AgentGetTicket(c *fiber.Ctx) error {
	if _, err := requireAgent(c); err != nil {
		return err
	}
	detail, err := h.service.GetTicketForAgent(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToTicketDetail(detail)})
}

// AgentAddReply POST /agent/tickets/:id/replies.
func (h *TicketsHandler) AgentAddReply(c *fiber.Ctx) error {
	agent, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	reply, err := h.service.AddAgentReply(c.UserContext(), agent, c.Params("id"), req.Content)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.ToReplyResponse(reply)})
}

// AgentUpdateStatus PATCH /agent/tickets/:id/status.
func (h *TicketsHandler) AgentUpdateStatus(c *fiber.Ctx) error {
	agent, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if !validStatus(req.Status) {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": req.Status})
	}
	ticket, err := h.service.UpdateStatus(c.UserContext(), agent, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToTicketSummary(ticket)})
}

// AgentUpdatePriority PATCH /agent/tickets/:id/priority.
func (h *TicketsHandler) AgentUpdatePriority(c *fiber.Ctx) error {
	agent, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.UpdatePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if !validPriority(req.Priority) {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": req.Priority})
	}
	ticket, err := h.service.UpdatePriority(c.UserContext(), agent, c.Params("id"), req.Priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToTicketSummary(ticket)})
}

// AgentAssignTicket PATCH /agent/tickets/:id/assignee.
func (h *TicketsHandler) AgentAssignTicket(c *fiber.Ctx) error {
	agent, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.AgentID == "" {
		return apperrors.NewValidationError("agent_id required", nil)
	}
	ticket, err := h.service.AssignTicket(c.UserContext(), agent, c.Params("id"), req.AgentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToTicketSummary(ticket)})
}

// AgentGetHistory GET /agent/tickets/:id/history.
func (h *TicketsHandler) AgentGetHistory(c *fiber.Ctx) error {
	if _, err := requireAgent(c); err != nil {
		return err
	}
	entries, err := h.service.GetHistory(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToHistoryResponses(entries)})
}

func requireAgent(c *fiber.Ctx) (*domain.Agent, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Agent == nil {
		return nil, apperrors.NewUnauthorized("agent required")
	}
	return principal.Agent, nil
}

func parseAgentFilter(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}
	if v := c.Query("customer_id"); v != "" {
		filter.CustomerID = &v
	}
	if v := c.Query("assignee_id"); v != "" {
		filter.AssigneeID = &v
	}
	if v := c.Query("status"); v != "" {
		for _, part := range strings.Split(v, ",") {
			status := domain.TicketStatus(strings.TrimSpace(part))
			if validStatus(status) {
				filter.Statuses = append(filter.Statuses, status)
			}
		}
	}
	if v := c.Query("priority"); v != "" {
		for _, part := range strings.Split(v, ",") {
			priority := domain.TicketPriority(strings.TrimSpace(part))
			if validPriority(priority) {
				filter.Priorities = append(filter.Priorities, priority)
			}
		}
	}
	if v := c.Query("channel"); v != "" {
		if channel, ok := domain.ParseChannel(v); ok {
			filter.Channel = &channel
		}
	}
	if v := c.Query("search"); v != "" {
		filter.SearchTerm = &v
	}
	filter.Limit, filter.Offset = parsePage(c)
	return filter
}

func parsePage(c *fiber.Ctx) (limit, offset int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	return pageSize, (page - 1) * pageSize
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func validStatus(status domain.TicketStatus) bool {
	switch status {
	case domain.TicketStatusPending, domain.TicketStatusAssigned, domain.TicketStatusInProgress,
		domain.TicketStatusReplied, domain.TicketStatusResolved, domain.TicketStatusClosed:
		return true
	}
	return false
}

func validPriority(priority domain.TicketPriority) bool {
	switch priority {
	case domain.TicketPriorityLow, domain.TicketPriorityNormal,
		domain.TicketPriorityHigh, domain.TicketPriorityUrgent:
		return true
	}
	return false
}
