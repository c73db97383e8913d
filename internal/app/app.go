// Package app wires configuration, storage and services into the runtime
// used by the server and the worker.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/brunao23/GerenciaIA-sub000/internal/config"
	"github.com/brunao23/GerenciaIA-sub000/internal/controller"
	"github.com/brunao23/GerenciaIA-sub000/internal/db"
	"github.com/brunao23/GerenciaIA-sub000/internal/gateway"
	"github.com/brunao23/GerenciaIA-sub000/internal/genai"
	"github.com/brunao23/GerenciaIA-sub000/internal/handler"
	applog "github.com/brunao23/GerenciaIA-sub000/internal/logger"
	"github.com/brunao23/GerenciaIA-sub000/internal/queue"
	"github.com/brunao23/GerenciaIA-sub000/internal/repository"
	"github.com/brunao23/GerenciaIA-sub000/internal/service"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sql.DB
	Queue  queue.Queue

	Schedules *repository.ScheduleRepository
	Logs      *repository.FollowUpLogRepository
	Templates *repository.TemplateRepository
	Configs   *repository.MessagingConfigRepository

	FollowUpService *service.FollowUpService
	Runner          *service.BatchRunner
}

// New opens the database and builds every service. Call Close when done.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	logger = applog.OrNop(logger)

	conn, err := db.Open(cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return build(cfg, logger, conn)
}

func build(cfg *config.Config, logger *zap.Logger, conn *sql.DB) (*App, error) {
	q, err := newQueue(cfg, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := queue.StartEventAuditSubscriber(q, logger.Named("events")); err != nil {
		q.Close()
		conn.Close()
		return nil, fmt.Errorf("subscribe event audit: %w", err)
	}

	driver := cfg.Database.Driver
	a := &App{
		Config:    cfg,
		Logger:    logger,
		DB:        conn,
		Queue:     q,
		Schedules: &repository.ScheduleRepository{DB: conn, Driver: driver},
		Logs:      &repository.FollowUpLogRepository{DB: conn, Driver: driver},
		Templates: &repository.TemplateRepository{DB: conn, Driver: driver},
		Configs:   &repository.MessagingConfigRepository{DB: conn, Driver: driver},
	}

	a.FollowUpService = &service.FollowUpService{
		Schedules: a.Schedules,
		Logs:      a.Logs,
		Queue:     q,
		Logger:    logger.Named("followup"),
	}
	a.Runner = &service.BatchRunner{
		Schedules:           a.Schedules,
		Logs:                a.Logs,
		Configs:             a.Configs,
		Templates:           &service.TemplateService{Templates: a.Templates, Logger: logger.Named("templates")},
		Analyzer:            newAnalyzer(cfg, logger),
		NewGateway:          gateway.New,
		Queue:               q,
		Logger:              logger.Named("runner"),
		BatchSize:           cfg.FollowUp.BatchSize,
		Pacing:              cfg.FollowUp.Pacing,
		Timeout:             cfg.FollowUp.RunTimeout,
		MaxDispatchFailures: cfg.FollowUp.MaxDispatchFailures,
	}
	return a, nil
}

func newQueue(cfg *config.Config, logger *zap.Logger) (queue.Queue, error) {
	if cfg.AMQP.URL == "" {
		return queue.NewInMemoryQueue(logger.Named("queue")), nil
	}
	q, err := queue.NewAMQPQueue(cfg.AMQP.URL, cfg.AMQP.Exchange, logger.Named("queue"))
	if err != nil {
		return nil, err
	}
	logger.Info("publishing followup events to RabbitMQ", zap.String("exchange", cfg.AMQP.Exchange))
	return q, nil
}

func newAnalyzer(cfg *config.Config, logger *zap.Logger) service.ContextAnalyzer {
	analyzer, err := genai.NewAnalyzer(
		genai.WithAPIKey(cfg.OpenAI.APIKey),
		genai.WithModel(cfg.OpenAI.Model),
		genai.WithTimeout(cfg.OpenAI.Timeout),
		genai.WithLogger(logger.Named("analyzer")),
	)
	if err != nil {
		logger.Warn("context analyzer disabled, stage templates will be sent", zap.Error(err))
		return genai.FallbackOnly{}
	}
	return analyzer
}

// Router exposes the HTTP API backed by this App.
func (a *App) Router() http.Handler {
	return controller.NewRouter(controller.Routes{
		CronSecret: a.Config.FollowUp.CronSecret,
		Cron:       &controller.CronController{Runner: a.Runner, Logger: a.Logger.Named("cron")},
		FollowUps:  &controller.FollowUpController{FollowUpService: a.FollowUpService, Logger: a.Logger.Named("api")},
		Schedules:  handler.NewScheduleHandler(a.FollowUpService, a.Logger.Named("api")),
		Messaging: &handler.MessagingHandler{
			Configs:    a.Configs,
			NewGateway: gateway.New,
			Logger:     a.Logger.Named("messaging"),
		},
		Logger: a.Logger.Named("http"),
	})
}

func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
