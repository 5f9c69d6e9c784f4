package handlers

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/smileagent/autoreply-engine/internal/api/response"
	apperrors "github.com/smileagent/autoreply-engine/internal/errors"
	"github.com/smileagent/autoreply-engine/internal/quota"
	"github.com/smileagent/autoreply-engine/internal/repository"
	"github.com/smileagent/autoreply-engine/internal/services"
)

// TriageHandler exposes the auto-reply pipeline over HTTP: thread status
// lookup, manual reply trigger and quota usage.
type TriageHandler struct {
	threads   repository.ThreadStateRepository
	scheduler *services.Scheduler
	guard     *quota.Guard
}

// NewTriageHandler creates a new TriageHandler
func NewTriageHandler(threads repository.ThreadStateRepository, scheduler *services.Scheduler, guard *quota.Guard) *TriageHandler {
	return &TriageHandler{
		threads:   threads,
		scheduler: scheduler,
		guard:     guard,
	}
}

// ThreadStatusResponse is the status of one observed conversation thread.
type ThreadStatusResponse struct {
	TenantID        uint    `json:"tenant_id"`
	ThreadID        string  `json:"thread_id"`
	Status          string  `json:"status"`
	StatusReason    string  `json:"status_reason,omitempty"`
	FromEmail       string  `json:"from_email,omitempty"`
	Subject         string  `json:"subject,omitempty"`
	CalendarEventID *string `json:"calendar_event_id,omitempty"`
	TransitionedAt  string  `json:"transitioned_at,omitempty"`
}

// GetThreadStatus handles GET /api/tenants/:tenant_id/threads/:thread_id.
// A thread the ledger has never seen is reported as pending, not 404:
// from a caller's point of view an unobserved thread and an observed but
// undecided one are the same thing.
func (h *TriageHandler) GetThreadStatus(c echo.Context) error {
	tenantID, err := strconv.ParseUint(c.Param("tenant_id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid tenant ID")
	}
	threadID := c.Param("thread_id")
	if threadID == "" {
		return response.BadRequest(c, "thread ID is required")
	}

	state, err := h.threads.Get(c.Request().Context(), uint(tenantID), threadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.Success(c, ThreadStatusResponse{
				TenantID: uint(tenantID),
				ThreadID: threadID,
				Status:   "pending",
			})
		}
		return response.InternalError(c, "failed to get thread state")
	}

	return response.Success(c, ThreadStatusResponse{
		TenantID:        state.TenantID,
		ThreadID:        state.ThreadID,
		Status:          string(state.Status),
		StatusReason:    state.StatusReason,
		FromEmail:       state.FromEmail,
		Subject:         state.Subject,
		CalendarEventID: state.CalendarEvent,
		TransitionedAt:  state.TransitionedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

// TriggerReplyResponse is the outcome of a manual reply trigger.
type TriggerReplyResponse struct {
	Status          string `json:"status"`
	AlreadyTerminal bool   `json:"already_terminal"`
	SentMessageID   string `json:"sent_message_id,omitempty"`
	CalendarEventID string `json:"calendar_event_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// TriggerReply handles POST /api/tenants/:tenant_id/threads/:thread_id/reply.
// It runs the same pipeline as the scheduled path, so the idempotency
// ledger and quota guard apply identically.
func (h *TriageHandler) TriggerReply(c echo.Context) error {
	tenantID, err := strconv.ParseUint(c.Param("tenant_id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid tenant ID")
	}
	threadID := c.Param("thread_id")
	if threadID == "" {
		return response.BadRequest(c, "thread ID is required")
	}

	outcome, err := h.scheduler.TriggerReply(c.Request().Context(), uint(tenantID), threadID)
	if err != nil {
		if apperrors.IsNotFound(err) || errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, err.Error())
		}
		return response.Error(c, err)
	}

	return response.Success(c, TriggerReplyResponse{
		Status:          string(outcome.Status),
		AlreadyTerminal: outcome.AlreadyTerminal,
		SentMessageID:   outcome.SentMessageID,
		CalendarEventID: outcome.CalendarEventID,
		Reason:          outcome.Reason,
	})
}

// GetUsage handles GET /api/usage. It reports the shared generation
// quota counters without consuming any budget.
func (h *TriageHandler) GetUsage(c echo.Context) error {
	return response.Success(c, h.guard.Stats())
}

// ForceTick handles POST /api/scheduler/tick for operational use.
func (h *TriageHandler) ForceTick(c echo.Context) error {
	h.scheduler.ForceTick()
	return response.Accepted(c, nil, "tick triggered")
}
