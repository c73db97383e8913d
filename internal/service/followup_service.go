package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/brunao23/GerenciaIA-sub000/internal/errors"
	applog "github.com/brunao23/GerenciaIA-sub000/internal/logger"
	"github.com/brunao23/GerenciaIA-sub000/internal/model"
	"github.com/brunao23/GerenciaIA-sub000/internal/queue"
	"github.com/brunao23/GerenciaIA-sub000/internal/repository"
)

// FollowUpService owns the schedule rows. Callers only schedule and cancel.
type FollowUpService struct {
	Schedules repository.ScheduleRepositoryInterface
	Logs      repository.FollowUpLogRepositoryInterface
	Queue     queue.Queue
	Logger    *zap.Logger
	Now       func() time.Time
}

// ScheduleView is a schedule enriched for listing.
type ScheduleView struct {
	*model.FollowUpSchedule
	HoursUntilNextAttempt     *float64 `json:"hours_until_next_attempt"`
	HoursSinceLastInteraction float64  `json:"hours_since_last_interaction"`
}

type ScheduleDetails struct {
	Schedule *model.FollowUpSchedule `json:"schedule"`
	Logs     []*model.FollowUpLog    `json:"logs"`
	Stats    model.FollowUpLogStats  `json:"stats"`
}

func (s *FollowUpService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *FollowUpService) logger() *zap.Logger {
	return applog.OrNop(s.Logger)
}

// ScheduleFollowUp creates or refreshes the session's campaign when its
// conversation goes idle. Refreshing never advances attemptCount; only a
// dispatch does. It fails with ErrMaxAttemptsReached, deactivating the
// schedule as unresponsive, when the ladder has no rung left.
func (s *FollowUpService) ScheduleFollowUp(ctx context.Context, fc model.FollowUpContext) (*model.FollowUpSchedule, error) {
	if err := validateContext(fc); err != nil {
		return nil, err
	}

	// A concurrent writer can make the active lookup stale; retry once.
	for i := 0; i < 2; i++ {
		existing, err := s.Schedules.GetActiveBySession(ctx, fc.SessionID)
		if err != nil {
			return nil, fmt.Errorf("lookup active schedule: %w", err)
		}

		var (
			schedule *model.FollowUpSchedule
			applied  bool
		)
		if existing == nil {
			schedule, applied, err = s.create(ctx, fc)
		} else {
			schedule, applied, err = s.refresh(ctx, existing, fc)
		}
		if err != nil {
			return nil, err
		}
		if applied {
			return schedule, nil
		}
	}
	return nil, fmt.Errorf("schedule for session %s changed concurrently", fc.SessionID)
}

func (s *FollowUpService) create(ctx context.Context, fc model.FollowUpContext) (*model.FollowUpSchedule, bool, error) {
	now := s.now()
	wait, _ := Interval(0)
	next := now.Add(wait)

	schedule := &model.FollowUpSchedule{
		SessionID:           fc.SessionID,
		PhoneNumber:         fc.PhoneNumber,
		LeadName:            cleanName(fc.LeadName),
		LastMessage:         fc.LastMessage,
		ConversationContext: model.BoundedTurns(fc.ConversationContext),
		FunnelStage:         fc.FunnelStage,
		AttemptCount:        0,
		NextFollowupAt:      &next,
		IsActive:            true,
		LeadStatus:          model.LeadStatusActive,
		LastInteractionAt:   lastInteraction(fc, now),
	}
	ok, err := s.Schedules.Upsert(ctx, schedule)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	s.logger().Info("followup scheduled",
		zap.String("session_id", schedule.SessionID),
		zap.Int64("schedule_id", schedule.ID),
		zap.Time("next_followup_at", next),
	)
	s.publish(model.FollowUpEvent{
		Type:       model.EventScheduled,
		ScheduleID: schedule.ID,
		SessionID:  schedule.SessionID,
		LeadStatus: schedule.LeadStatus,
	})
	return schedule, true, nil
}

func (s *FollowUpService) refresh(ctx context.Context, existing *model.FollowUpSchedule, fc model.FollowUpContext) (*model.FollowUpSchedule, bool, error) {
	index := existing.AttemptCount + 1
	wait, ok := Interval(index)
	if !ok {
		deactivated, err := s.Schedules.Deactivate(ctx, existing.SessionID, model.LeadStatusUnresponsive)
		if err != nil {
			return nil, false, err
		}
		if deactivated {
			s.logger().Info("followup ladder exhausted",
				zap.String("session_id", existing.SessionID),
				zap.Int("attempt_count", existing.AttemptCount),
			)
			s.publish(model.FollowUpEvent{
				Type:          model.EventUnresponsive,
				ScheduleID:    existing.ID,
				SessionID:     existing.SessionID,
				AttemptNumber: existing.AttemptCount,
				LeadStatus:    model.LeadStatusUnresponsive,
				Detail:        "max attempts reached",
			})
		}
		return nil, true, appErrors.NewMaxAttemptsReached(existing.SessionID)
	}

	now := s.now()
	next := now.Add(wait)
	existing.PhoneNumber = fc.PhoneNumber
	if name := cleanName(fc.LeadName); name != nil {
		existing.LeadName = name
	}
	existing.LastMessage = fc.LastMessage
	if len(fc.ConversationContext) > 0 {
		existing.ConversationContext = model.BoundedTurns(fc.ConversationContext)
	}
	if fc.FunnelStage != "" {
		existing.FunnelStage = fc.FunnelStage
	}
	existing.NextFollowupAt = &next
	existing.LastInteractionAt = lastInteraction(fc, now)

	updated, err := s.Schedules.UpdateContext(ctx, existing)
	if err != nil {
		return nil, false, err
	}
	if !updated {
		return nil, false, nil
	}

	s.logger().Info("followup refreshed",
		zap.String("session_id", existing.SessionID),
		zap.Int("attempt_count", existing.AttemptCount),
		zap.Time("next_followup_at", next),
	)
	s.publish(model.FollowUpEvent{
		Type:          model.EventScheduled,
		ScheduleID:    existing.ID,
		SessionID:     existing.SessionID,
		AttemptNumber: existing.AttemptCount,
		LeadStatus:    existing.LeadStatus,
	})
	return existing, true, nil
}

// CancelFollowUp ends the session's campaign because the lead replied. It is a
// no-op when nothing is active.
func (s *FollowUpService) CancelFollowUp(ctx context.Context, sessionID string) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, appErrors.NewInvalidContext("session_id")
	}
	cancelled, err := s.Schedules.Deactivate(ctx, sessionID, model.LeadStatusResponded)
	if err != nil {
		return false, fmt.Errorf("cancel followup for %s: %w", sessionID, err)
	}
	if cancelled {
		s.logger().Info("followup cancelled, lead responded", zap.String("session_id", sessionID))
		s.publish(model.FollowUpEvent{
			Type:       model.EventResponded,
			SessionID:  sessionID,
			LeadStatus: model.LeadStatusResponded,
		})
	}
	return cancelled, nil
}

func (s *FollowUpService) ListSchedules(ctx context.Context, filter model.ScheduleFilter) ([]ScheduleView, error) {
	if filter.LeadStatus != "" && !filter.LeadStatus.Valid() {
		return nil, appErrors.NewInvalidContext("lead_status")
	}
	schedules, err := s.Schedules.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]ScheduleView, 0, len(schedules))
	for _, sc := range schedules {
		view := ScheduleView{
			FollowUpSchedule:          sc,
			HoursSinceLastInteraction: hoursBetween(sc.LastInteractionAt, now),
		}
		if sc.IsActive && sc.NextFollowupAt != nil {
			h := hoursBetween(now, *sc.NextFollowupAt)
			view.HoursUntilNextAttempt = &h
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *FollowUpService) GetScheduleDetails(ctx context.Context, sessionID string) (*ScheduleDetails, error) {
	schedule, err := s.Schedules.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, appErrors.NewScheduleNotFound(sessionID)
	}

	logs, err := s.Logs.ListBySchedule(ctx, schedule.ID)
	if err != nil {
		return nil, err
	}
	stats, err := s.Logs.Stats(ctx, schedule.ID)
	if err != nil {
		return nil, err
	}
	return &ScheduleDetails{Schedule: schedule, Logs: logs, Stats: *stats}, nil
}

func (s *FollowUpService) publish(event model.FollowUpEvent) {
	publishEvent(s.Queue, s.logger(), s.now(), event)
}

// publishEvent never fails the caller; the schedule row is the source of truth.
func publishEvent(q queue.Queue, logger *zap.Logger, now time.Time, event model.FollowUpEvent) {
	if q == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}
	if err := q.Publish(queue.TopicFollowUpEvents, event); err != nil {
		logger.Debug("followup event not published", zap.String("event", string(event.Type)), zap.Error(err))
	}
}

func validateContext(fc model.FollowUpContext) error {
	if strings.TrimSpace(fc.SessionID) == "" {
		return appErrors.NewInvalidContext("session_id")
	}
	if strings.TrimSpace(fc.PhoneNumber) == "" {
		return appErrors.NewInvalidContext("phone_number")
	}
	return nil
}

func cleanName(name *string) *string {
	if name == nil || strings.TrimSpace(*name) == "" {
		return nil
	}
	v := strings.TrimSpace(*name)
	return &v
}

func lastInteraction(fc model.FollowUpContext, now time.Time) time.Time {
	if fc.LastInteractionAt != nil && !fc.LastInteractionAt.IsZero() {
		return fc.LastInteractionAt.UTC()
	}
	return now
}

func hoursBetween(from, to time.Time) float64 {
	return math.Round(to.Sub(from).Hours()*100) / 100
}
