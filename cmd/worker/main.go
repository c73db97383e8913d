// cmd/worker/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brunao23/GerenciaIA-sub000/internal/app"
	"github.com/brunao23/GerenciaIA-sub000/internal/config"
	"github.com/brunao23/GerenciaIA-sub000/internal/logger"
	"github.com/brunao23/GerenciaIA-sub000/internal/service"
)

var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type batchRunner interface {
	Run(ctx context.Context) (*service.BatchResult, error)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		schedule   string
		once       bool
	)

	cmd := &cobra.Command{
		Use:           "followup-worker",
		Short:         "Dispatch due follow-up messages on a schedule",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if schedule != "" {
				cfg.FollowUp.Schedule = schedule
			}

			zl, err := logger.New(cfg.Log.Level, cfg.Log.Path)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer zl.Sync()

			a, err := app.New(cfg, zl)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if once {
				return runOnce(ctx, a.Runner, zl)
			}
			return runScheduled(ctx, cfg.FollowUp.Schedule, a.Runner, zl)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath, "path to the YAML config file")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression overriding followup.schedule")
	cmd.Flags().BoolVar(&once, "once", false, "run a single batch and exit")
	return cmd
}

func runOnce(ctx context.Context, runner batchRunner, zl *zap.Logger) error {
	result, err := runner.Run(ctx)
	logResult(zl, result, err)
	return err
}

// runScheduled triggers a batch on every tick of the cron expression until ctx
// is cancelled. A tick that fires while a batch is still running is skipped.
func runScheduled(ctx context.Context, expr string, runner batchRunner, zl *zap.Logger) error {
	if _, err := scheduleParser.Parse(expr); err != nil {
		return fmt.Errorf("parse schedule %q: %w", expr, err)
	}

	c := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithLogger(cronLogger{zl.Sugar()}),
		cron.WithChain(cron.Recover(cronLogger{zl.Sugar()}), cron.SkipIfStillRunning(cronLogger{zl.Sugar()})),
	)
	if _, err := c.AddFunc(expr, func() {
		result, err := runner.Run(ctx)
		logResult(zl, result, err)
	}); err != nil {
		return err
	}

	zl.Info("worker started", zap.String("schedule", expr))
	c.Start()
	<-ctx.Done()

	zl.Info("worker stopping, waiting for the current batch")
	<-c.Stop().Done()
	return nil
}

func logResult(zl *zap.Logger, result *service.BatchResult, err error) {
	if result == nil {
		result = &service.BatchResult{}
	}
	fields := []zap.Field{
		zap.String("run_id", result.RunID),
		zap.Int("processed", result.Processed),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("stopped", result.Stopped),
		zap.Int("unresponsive", result.Unresponsive),
		zap.Int("superseded", result.Superseded),
		zap.Int("errors", result.Errors),
		zap.Int64("duration_ms", result.DurationMS),
	}
	if err != nil {
		zl.Error("followup batch failed", append(fields, zap.Error(err))...)
		return
	}
	zl.Info("followup batch finished", fields...)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
