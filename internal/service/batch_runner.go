package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	appErrors "github.com/brunao23/GerenciaIA-sub000/internal/errors"
	"github.com/brunao23/GerenciaIA-sub000/internal/gateway"
	"github.com/brunao23/GerenciaIA-sub000/internal/genai"
	applog "github.com/brunao23/GerenciaIA-sub000/internal/logger"
	"github.com/brunao23/GerenciaIA-sub000/internal/model"
	"github.com/brunao23/GerenciaIA-sub000/internal/queue"
	"github.com/brunao23/GerenciaIA-sub000/internal/repository"
)

const (
	DefaultBatchSize  = 50
	DefaultPacing     = 2 * time.Second
	DefaultRunTimeout = 5 * time.Minute

	// bound for the writes that record a send once the provider has answered
	persistTimeout = 10 * time.Second
)

// ContextAnalyzer gates and personalizes each attempt.
type ContextAnalyzer interface {
	Analyze(ctx context.Context, in genai.AnalysisInput) genai.Analysis
}

// GatewayFactory builds the messaging gateway from the active config.
type GatewayFactory func(cfg model.MessagingConfig) (gateway.Gateway, error)

// BatchRunner processes due schedules, one at a time, paced between sends.
type BatchRunner struct {
	Schedules  repository.ScheduleRepositoryInterface
	Logs       repository.FollowUpLogRepositoryInterface
	Configs    repository.MessagingConfigRepositoryInterface
	Templates  *TemplateService
	Analyzer   ContextAnalyzer
	NewGateway GatewayFactory
	Queue      queue.Queue
	Logger     *zap.Logger
	Now        func() time.Time

	BatchSize           int
	Pacing              time.Duration
	Timeout             time.Duration
	MaxDispatchFailures int // 0 disables the cap
}

// BatchResult summarizes one run. Sent counts successful dispatches, including
// the final one that makes a lead unresponsive.
type BatchResult struct {
	RunID        string `json:"run_id"`
	Processed    int    `json:"processed"`
	Sent         int    `json:"sent"`
	Failed       int    `json:"failed"`
	Stopped      int    `json:"stopped"`
	Unresponsive int    `json:"unresponsive"`
	Superseded   int    `json:"superseded"`
	Errors       int    `json:"errors"`
	DurationMS   int64  `json:"duration_ms"`
}

func (r *BatchRunner) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *BatchRunner) logger() *zap.Logger {
	return applog.OrNop(r.Logger)
}

// Run processes one batch. It returns an error only when the whole run aborts:
// the store cannot be read, no messaging config is active, or the run timed
// out. Per-schedule failures are counted in the result and the loop goes on.
func (r *BatchRunner) Run(ctx context.Context) (*BatchResult, error) {
	started := time.Now()
	result := &BatchResult{RunID: uuid.NewString()}
	log := r.logger().With(zap.String("run_id", result.RunID))
	defer func() {
		result.DurationMS = time.Since(started).Milliseconds()
	}()

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	batchSize := r.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	due, err := r.Schedules.ListDue(ctx, r.now(), batchSize)
	if err != nil {
		log.Error("failed to load due schedules", zap.Error(err))
		return result, fmt.Errorf("load due schedules: %w", err)
	}
	if len(due) == 0 {
		log.Debug("no followups due")
		return result, nil
	}

	cfg, err := r.Configs.GetActive(ctx)
	if err != nil {
		log.Error("failed to load messaging config", zap.Error(err))
		return result, fmt.Errorf("load messaging config: %w", err)
	}
	if cfg == nil {
		log.Error("batch aborted", zap.Error(appErrors.ErrNoMessagingConfig), zap.Int("due", len(due)))
		return result, appErrors.ErrNoMessagingConfig
	}
	newGateway := r.NewGateway
	if newGateway == nil {
		newGateway = gateway.New
	}
	gw, err := newGateway(*cfg)
	if err != nil {
		log.Error("failed to initialize messaging gateway", zap.String("provider", cfg.Provider), zap.Error(err))
		return result, fmt.Errorf("initialize messaging gateway: %w", err)
	}

	limit := rate.Inf
	if r.Pacing > 0 {
		limit = rate.Every(r.Pacing)
	}
	limiter := rate.NewLimiter(limit, 1)

	log.Info("processing due followups", zap.Int("due", len(due)))
	for _, schedule := range due {
		if err := ctx.Err(); err != nil {
			log.Error("batch run aborted", zap.Int("processed", result.Processed), zap.Error(err))
			return result, fmt.Errorf("batch run %s aborted: %w", result.RunID, err)
		}
		result.Processed++
		if err := r.process(ctx, result, gw, limiter, schedule); err != nil {
			result.Errors++
			log.Error("failed to process followup",
				zap.String("session_id", schedule.SessionID),
				zap.Int64("schedule_id", schedule.ID),
				zap.Error(err),
			)
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return result, fmt.Errorf("batch run %s aborted: %w", result.RunID, err)
			}
		}
	}

	log.Info("batch finished",
		zap.Int("processed", result.Processed),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("stopped", result.Stopped),
		zap.Int("unresponsive", result.Unresponsive),
		zap.Int("superseded", result.Superseded),
		zap.Int("errors", result.Errors),
	)
	return result, nil
}

// process handles one due schedule. State transitions are guarded by the
// attempt count read at batch start, so a reply that lands mid-dispatch is
// never overwritten.
func (r *BatchRunner) process(ctx context.Context, result *BatchResult, gw gateway.Gateway, limiter *rate.Limiter, s *model.FollowUpSchedule) error {
	expected := s.AttemptCount
	attempt := expected + 1
	log := r.logger().With(
		zap.String("run_id", result.RunID),
		zap.String("session_id", s.SessionID),
		zap.Int64("schedule_id", s.ID),
		zap.Int("attempt", attempt),
	)

	analysis := r.Analyzer.Analyze(ctx, genai.AnalysisInput{
		LeadName:          s.LeadName,
		LastInteractionAt: s.LastInteractionAt,
		FunnelStage:       s.FunnelStage,
		RecentTurns:       s.RecentTurns(genai.RecentTurnLimit),
		AttemptNumber:     attempt,
	})

	if !analysis.ShouldSendFollowup {
		applied, err := r.Schedules.Finish(ctx, s.ID, expected, expected, model.LeadStatusStopped)
		if err != nil {
			return fmt.Errorf("stop schedule: %w", err)
		}
		logErr := r.Logs.Create(ctx, &model.FollowUpLog{
			ScheduleID:        s.ID,
			AttemptNumber:     attempt,
			AnalyzerRationale: analysis.Reasoning,
			Sentiment:         analysis.Sentiment,
			Urgency:           analysis.Urgency,
			SentAt:            r.now(),
		})
		if !applied {
			r.superseded(result, log, s, attempt, "")
			return logErr
		}
		result.Stopped++
		log.Info("analyzer stopped followup", zap.String("reasoning", analysis.Reasoning))
		r.publish(result.RunID, s, model.EventStopped, attempt, model.LeadStatusStopped, "", analysis.Reasoning)
		return logErr
	}

	message := ""
	if analysis.ContextualMessage != nil {
		message = strings.TrimSpace(*analysis.ContextualMessage)
	}
	if message == "" {
		if r.Templates != nil {
			message = r.Templates.Message(ctx, attempt, s.LeadName)
		} else {
			message = RenderFollowUp(GenericFollowUpTemplate, s.LeadName)
		}
	}

	if err := limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// the next send slot falls after the run deadline
		return fmt.Errorf("wait for send slot: %w (%v)", context.DeadlineExceeded, err)
	}
	send := gw.Send(ctx, s.PhoneNumber, message, 0)

	// The message may already be delivered: record it even if the run
	// deadline passed during the send, or the next run would repeat it.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	entry := &model.FollowUpLog{
		ScheduleID:        s.ID,
		AttemptNumber:     attempt,
		MessageSent:       &message,
		AnalyzerRationale: analysis.Reasoning,
		Sentiment:         analysis.Sentiment,
		Urgency:           analysis.Urgency,
		DeliveryStatus:    model.DeliveryStatusDelivered,
		ProviderResponse:  send.Raw,
		SentAt:            r.now(),
	}
	if !send.Success {
		entry.DeliveryStatus = model.DeliveryStatusFailed
		if entry.ProviderResponse == "" {
			entry.ProviderResponse = send.Error
		}
	}
	logErr := r.Logs.Create(pctx, entry)
	if logErr != nil {
		log.Error("failed to write followup log", zap.Error(logErr))
	}

	if send.Success {
		return errors.Join(logErr, r.advance(pctx, result, log, s, attempt, send.MessageID))
	}
	return errors.Join(logErr, r.recordFailure(pctx, result, log, s, attempt, send.Error))
}

func (r *BatchRunner) advance(ctx context.Context, result *BatchResult, log *zap.Logger, s *model.FollowUpSchedule, attempt int, messageID string) error {
	result.Sent++

	wait, ok := Interval(attempt)
	if !ok {
		applied, err := r.Schedules.Finish(ctx, s.ID, s.AttemptCount, attempt, model.LeadStatusUnresponsive)
		if err != nil {
			return fmt.Errorf("finish schedule: %w", err)
		}
		if !applied {
			r.superseded(result, log, s, attempt, messageID)
			return nil
		}
		result.Unresponsive++
		log.Info("last followup sent, lead unresponsive", zap.String("message_id", messageID))
		r.publish(result.RunID, s, model.EventUnresponsive, attempt, model.LeadStatusUnresponsive, messageID, "")
		return nil
	}

	next := r.now().Add(wait)
	applied, err := r.Schedules.Advance(ctx, s.ID, s.AttemptCount, attempt, next)
	if err != nil {
		return fmt.Errorf("advance schedule: %w", err)
	}
	if !applied {
		r.superseded(result, log, s, attempt, messageID)
		return nil
	}
	log.Info("followup sent", zap.String("message_id", messageID), zap.Time("next_followup_at", next))
	r.publish(result.RunID, s, model.EventDispatched, attempt, model.LeadStatusActive, messageID, "")
	return nil
}

// recordFailure leaves the schedule due so the same rung is retried next run,
// stopping it once the consecutive failure cap is reached.
func (r *BatchRunner) recordFailure(ctx context.Context, result *BatchResult, log *zap.Logger, s *model.FollowUpSchedule, attempt int, sendErr string) error {
	result.Failed++

	failures, applied, err := r.Schedules.RecordDispatchFailure(ctx, s.ID, s.AttemptCount)
	if err != nil {
		return fmt.Errorf("record dispatch failure: %w", err)
	}
	if !applied {
		r.superseded(result, log, s, attempt, "")
		return nil
	}
	log.Warn("followup dispatch failed", zap.String("error", sendErr), zap.Int("dispatch_failures", failures))
	r.publish(result.RunID, s, model.EventDispatchFailed, attempt, model.LeadStatusActive, "", sendErr)

	if r.MaxDispatchFailures <= 0 || failures < r.MaxDispatchFailures {
		return nil
	}
	stopped, err := r.Schedules.Finish(ctx, s.ID, s.AttemptCount, s.AttemptCount, model.LeadStatusStopped)
	if err != nil {
		return fmt.Errorf("stop schedule after failures: %w", err)
	}
	if stopped {
		result.Stopped++
		detail := fmt.Sprintf("%d consecutive dispatch failures", failures)
		log.Warn("followup stopped", zap.String("reason", detail))
		r.publish(result.RunID, s, model.EventStopped, attempt, model.LeadStatusStopped, "", detail)
	}
	return nil
}

func (r *BatchRunner) superseded(result *BatchResult, log *zap.Logger, s *model.FollowUpSchedule, attempt int, messageID string) {
	result.Superseded++
	log.Warn("schedule changed during dispatch, leaving it untouched")
	r.publish(result.RunID, s, model.EventSuperseded, attempt, "", messageID, "schedule changed during dispatch")
}

func (r *BatchRunner) publish(runID string, s *model.FollowUpSchedule, eventType model.EventType, attempt int, status model.LeadStatus, messageID, detail string) {
	publishEvent(r.Queue, r.logger(), r.now(), model.FollowUpEvent{
		Type:          eventType,
		RunID:         runID,
		ScheduleID:    s.ID,
		SessionID:     s.SessionID,
		AttemptNumber: attempt,
		LeadStatus:    status,
		MessageID:     messageID,
		Detail:        detail,
	})
}
