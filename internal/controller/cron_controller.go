// internal/controller/cron_controller.go
package controller

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/brunao23/GerenciaIA-sub000/internal/handler"
	applog "github.com/brunao23/GerenciaIA-sub000/internal/logger"
	"github.com/brunao23/GerenciaIA-sub000/internal/service"
)

// FollowUpRunner runs one batch of due follow-ups.
type FollowUpRunner interface {
	Run(ctx context.Context) (*service.BatchResult, error)
}

// CronController is the trigger endpoint for the scheduler and ad hoc webhooks.
// Authentication is done by handler.BearerAuth in front of it.
type CronController struct {
	Runner FollowUpRunner
	Logger *zap.Logger
}

func (c *CronController) RunFollowUps(w http.ResponseWriter, r *http.Request) {
	logger := applog.OrNop(c.Logger)

	result, err := c.Runner.Run(r.Context())
	if err != nil {
		logger.Error("followup batch failed", zap.Error(err))
		body := map[string]interface{}{"error": err.Error()}
		if result != nil {
			body["result"] = result
		}
		handler.WriteJSON(w, handler.StatusFor(err), body)
		return
	}
	handler.WriteJSON(w, http.StatusOK, result)
}
