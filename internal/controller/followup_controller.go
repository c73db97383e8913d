// internal/controller/followup_controller.go
package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/brunao23/GerenciaIA-sub000/internal/errors"
	"github.com/brunao23/GerenciaIA-sub000/internal/handler"
	applog "github.com/brunao23/GerenciaIA-sub000/internal/logger"
	"github.com/brunao23/GerenciaIA-sub000/internal/model"
	"github.com/brunao23/GerenciaIA-sub000/internal/service"
)

// FollowUpManager is what the schedule management endpoints need.
type FollowUpManager interface {
	ScheduleFollowUp(ctx context.Context, fc model.FollowUpContext) (*model.FollowUpSchedule, error)
	CancelFollowUp(ctx context.Context, sessionID string) (bool, error)
	ListSchedules(ctx context.Context, filter model.ScheduleFilter) ([]service.ScheduleView, error)
}

type FollowUpController struct {
	FollowUpService FollowUpManager
	Logger          *zap.Logger
}

func (c *FollowUpController) logger() *zap.Logger {
	return applog.OrNop(c.Logger)
}

func (c *FollowUpController) ListSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ScheduleFilter{
		SessionID:  strings.TrimSpace(q.Get("session_id")),
		LeadStatus: model.LeadStatus(strings.TrimSpace(q.Get("lead_status"))),
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			handler.WriteError(w, appErrors.NewInvalidContext("limit"))
			return
		}
		filter.Limit = limit
	}

	views, err := c.FollowUpService.ListSchedules(r.Context(), filter)
	if err != nil {
		c.logger().Error("failed to list schedules", zap.Error(err))
		handler.WriteError(w, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":  views,
		"count": len(views),
	})
}

func (c *FollowUpController) ScheduleFollowUp(w http.ResponseWriter, r *http.Request) {
	var body model.FollowUpContext
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handler.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	schedule, err := c.FollowUpService.ScheduleFollowUp(r.Context(), body)
	if err != nil {
		if handler.StatusFor(err) >= http.StatusInternalServerError {
			c.logger().Error("failed to schedule followup", zap.String("session_id", body.SessionID), zap.Error(err))
		}
		handler.WriteError(w, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, schedule)
}

// CancelFollowUp always answers 200; cancelled tells whether a campaign was running.
func (c *FollowUpController) CancelFollowUp(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	cancelled, err := c.FollowUpService.CancelFollowUp(r.Context(), sessionID)
	if err != nil {
		if handler.StatusFor(err) >= http.StatusInternalServerError {
			c.logger().Error("failed to cancel followup", zap.String("session_id", sessionID), zap.Error(err))
		}
		handler.WriteError(w, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"cancelled":  cancelled,
	})
}
