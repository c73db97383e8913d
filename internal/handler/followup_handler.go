// internal/handler/followup_handler.go
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/brunao23/GerenciaIA-sub000/internal/errors"
	"github.com/brunao23/GerenciaIA-sub000/internal/gateway"
	applog "github.com/brunao23/GerenciaIA-sub000/internal/logger"
	"github.com/brunao23/GerenciaIA-sub000/internal/model"
	"github.com/brunao23/GerenciaIA-sub000/internal/repository"
	"github.com/brunao23/GerenciaIA-sub000/internal/service"
)

type ScheduleDetailsService interface {
	GetScheduleDetails(ctx context.Context, sessionID string) (*service.ScheduleDetails, error)
}

// ScheduleHandler serves a schedule together with its attempt log.
type ScheduleHandler struct {
	Service ScheduleDetailsService
	Logger  *zap.Logger
}

func NewScheduleHandler(svc ScheduleDetailsService, logger *zap.Logger) *ScheduleHandler {
	logger = applog.OrNop(logger)
	return &ScheduleHandler{Service: svc, Logger: logger}
}

// GetScheduleWithLogs returns the schedule, its logs and delivery stats
func (h *ScheduleHandler) GetScheduleWithLogs(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionId"))
	if sessionID == "" {
		WriteError(w, appErrors.NewInvalidContext("session_id"))
		return
	}

	details, err := h.Service.GetScheduleDetails(r.Context(), sessionID)
	if err != nil {
		if StatusFor(err) >= http.StatusInternalServerError {
			h.Logger.Error("failed to fetch schedule", zap.String("session_id", sessionID), zap.Error(err))
		}
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, details)
}

// MessagingHandler reports the state of the active messaging channel.
type MessagingHandler struct {
	Configs    repository.MessagingConfigRepositoryInterface
	NewGateway service.GatewayFactory
	Logger     *zap.Logger
}

type messagingStatusResponse struct {
	Provider     string `json:"provider"`
	InstanceName string `json:"instance_name"`
	Connected    bool   `json:"connected"`
	State        string `json:"state"`
	Error        string `json:"error,omitempty"`
}

func (h *MessagingHandler) Status(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Configs.GetActive(r.Context())
	if err != nil {
		h.logger().Error("failed to load messaging config", zap.Error(err))
		WriteError(w, err)
		return
	}
	if cfg == nil {
		WriteError(w, appErrors.ErrNoMessagingConfig)
		return
	}

	newGateway := h.NewGateway
	if newGateway == nil {
		newGateway = gateway.New
	}
	resp := messagingStatusResponse{Provider: cfg.Provider, InstanceName: cfg.InstanceName}
	if resp.Provider == "" {
		resp.Provider = model.ProviderEvolution
	}

	gw, err := newGateway(*cfg)
	if err != nil {
		resp.Error = err.Error()
		WriteJSON(w, http.StatusOK, resp)
		return
	}
	status, err := gw.CheckStatus(r.Context())
	if err != nil {
		h.logger().Warn("messaging status check failed", zap.Error(err))
		resp.Error = err.Error()
	}
	resp.Connected = status.Connected
	resp.State = status.State
	WriteJSON(w, http.StatusOK, resp)
}

func (h *MessagingHandler) logger() *zap.Logger {
	return applog.OrNop(h.Logger)
}
