// internal/controller/router.go
package controller

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/brunao23/GerenciaIA-sub000/internal/handler"
)

const serviceName = "followup-engine"

type Routes struct {
	CronSecret string
	Cron       *CronController
	FollowUps  *FollowUpController
	Schedules  *handler.ScheduleHandler
	Messaging  *handler.MessagingHandler
	Logger     *zap.Logger
}

// NewRouter wires every HTTP route. The cron trigger sits behind bearer auth.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handler.RequestLogger(rt.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(handler.BearerAuth(rt.CronSecret))
		r.Post("/cron/followups", rt.Cron.RunFollowUps)
		r.Get("/cron/followups", rt.Cron.RunFollowUps)
	})

	r.Route("/followups", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/", rt.FollowUps.ListSchedules)
		r.Post("/", rt.FollowUps.ScheduleFollowUp)
		r.Get("/{sessionId}", rt.Schedules.GetScheduleWithLogs)
		r.Delete("/{sessionId}", rt.FollowUps.CancelFollowUp)
		r.Post("/{sessionId}/cancel", rt.FollowUps.CancelFollowUp)
	})

	r.Get("/messaging/status", rt.Messaging.Status)

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"time":    time.Now().UTC(),
		"service": serviceName,
	})
}
