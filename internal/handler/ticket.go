package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/psds-microservice/support-ticket-service/internal/errs"
	"github.com/psds-microservice/support-ticket-service/internal/events"
	"github.com/psds-microservice/support-ticket-service/internal/model"
	"github.com/psds-microservice/support-ticket-service/internal/service"
)

type TicketHandler struct {
	svc    service.TicketServicer
	events *events.Notifier
}

// NewTicketHandler; notifier may be nil.
func NewTicketHandler(svc service.TicketServicer, notifier *events.Notifier) *TicketHandler {
	return &TicketHandler{svc: svc, events: notifier}
}

// List: GET /api/tickets?category=&priority=&status=&search=&limit=&offset=
func (h *TicketHandler) List(c *gin.Context) {
	filter := service.ListFilter{
		Category: c.Query("category"),
		Priority: c.Query("priority"),
		Status:   c.Query("status"),
		Search:   c.Query("search"),
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			filter.Offset = parsed
		}
	}

	items, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *TicketHandler) Create(c *gin.Context) {
	body, ok := bindObject(c)
	if !ok {
		return
	}
	fields, ferrs := decodeTicketFields(body, false)
	if len(ferrs) > 0 {
		c.JSON(http.StatusBadRequest, ferrs)
		return
	}
	ticket := &model.Ticket{
		Title:       *fields.Title,
		Description: *fields.Description,
		Category:    *fields.Category,
		Priority:    *fields.Priority,
	}
	if fields.Status != nil {
		ticket.Status = *fields.Status
	}
	if err := h.svc.Create(c.Request.Context(), ticket); err != nil {
		writeError(c, err)
		return
	}
	h.events.TicketCreated(ticket)
	c.JSON(http.StatusCreated, ticket)
}

func (h *TicketHandler) Get(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	t, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Update: частичное обновление (PATCH). Пустое тело {} возвращает тикет без изменений.
func (h *TicketHandler) Update(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	body, ok := bindObject(c)
	if !ok {
		return
	}
	fields, ferrs := decodeTicketFields(body, true)
	if len(ferrs) > 0 {
		c.JSON(http.StatusBadRequest, ferrs)
		return
	}
	changes := fields.changes()
	t, err := h.svc.Update(c.Request.Context(), id, changes)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(changes) > 0 {
		h.events.TicketUpdated(t)
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) Stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ticketID writes 404 for ids that are not unsigned integers, the same
// response as for a missing ticket. The id column is BIGINT, so anything
// above 2^63-1 cannot exist either.
func ticketID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 63)
	if err != nil {
		writeError(c, errs.ErrTicketNotFound)
		return 0, false
	}
	return id, true
}

// bindObject decodes the body as a JSON object, keeping raw values for
// per-field validation.
func bindObject(c *gin.Context) (map[string]json.RawMessage, bool) {
	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil || body == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return nil, false
	}
	return body, true
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, errs.ErrTicketNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
		return
	}
	_ = c.Error(err)
	slog.Error("handler: request failed", "route", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
