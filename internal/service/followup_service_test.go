package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/brunao23/GerenciaIA-sub000/internal/errors"
	"github.com/brunao23/GerenciaIA-sub000/internal/model"
	"github.com/brunao23/GerenciaIA-sub000/internal/queue"
)

var baseTime = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recordingQueue struct {
	events []model.FollowUpEvent
}

func (q *recordingQueue) Publish(topic string, event model.FollowUpEvent) error {
	q.events = append(q.events, event)
	return nil
}
func (q *recordingQueue) Subscribe(topic string, handler queue.Handler) error { return nil }
func (q *recordingQueue) Close() error                                        { return nil }

func (q *recordingQueue) types() []model.EventType {
	out := make([]model.EventType, 0, len(q.events))
	for _, e := range q.events {
		out = append(out, e.Type)
	}
	return out
}

func newFollowUpService() (*FollowUpService, *MockScheduleRepo, *recordingQueue, *clock) {
	repo := NewMockScheduleRepo()
	q := &recordingQueue{}
	c := &clock{t: baseTime}
	return &FollowUpService{Schedules: repo, Logs: &MockLogRepo{}, Queue: q, Now: c.Now}, repo, q, c
}

func idleContext(session string) model.FollowUpContext {
	name := "Ana"
	return model.FollowUpContext{
		SessionID:   session,
		PhoneNumber: "+55 11 99999-0000",
		LeadName:    &name,
		LastMessage: "vou pensar",
		ConversationContext: []model.ConversationTurn{
			{Role: "lead", Content: "qual o valor?"},
			{Role: "assistant", Content: "R$ 199 por mês"},
			{Role: "lead", Content: "vou pensar"},
		},
		FunnelStage: "proposta",
	}
}

func TestScheduleFollowUp_NewSession(t *testing.T) {
	svc, repo, q, _ := newFollowUpService()

	s, err := svc.ScheduleFollowUp(context.Background(), idleContext("sess-1"))
	require.NoError(t, err)

	assert.Equal(t, 0, s.AttemptCount)
	assert.True(t, s.IsActive)
	assert.Equal(t, model.LeadStatusActive, s.LeadStatus)
	require.NotNil(t, s.NextFollowupAt)
	assert.Equal(t, baseTime.Add(10*time.Minute), *s.NextFollowupAt)

	stored := repo.Get("sess-1")
	require.NotNil(t, stored)
	assert.Len(t, stored.ConversationContext, 3)
	assert.Equal(t, []model.EventType{model.EventScheduled}, q.types())
}

func TestScheduleFollowUp_TwiceDoesNotAdvanceAttempts(t *testing.T) {
	svc, repo, _, c := newFollowUpService()
	ctx := context.Background()

	_, err := svc.ScheduleFollowUp(ctx, idleContext("sess-1"))
	require.NoError(t, err)

	c.Advance(time.Minute)
	fc := idleContext("sess-1")
	fc.LastMessage = "ainda estou pensando"
	s, err := svc.ScheduleFollowUp(ctx, fc)
	require.NoError(t, err)

	stored := repo.Get("sess-1")
	assert.Equal(t, 0, stored.AttemptCount)
	assert.Equal(t, "ainda estou pensando", stored.LastMessage)
	assert.Equal(t, c.Now().Add(time.Hour), *stored.NextFollowupAt)
	assert.Equal(t, s.ID, stored.ID)
}

func TestScheduleFollowUp_BoundsConversation(t *testing.T) {
	svc, repo, _, _ := newFollowUpService()

	fc := idleContext("sess-1")
	fc.ConversationContext = nil
	for i := 0; i < 15; i++ {
		fc.ConversationContext = append(fc.ConversationContext, model.ConversationTurn{Role: "lead", Content: string(rune('a' + i))})
	}
	_, err := svc.ScheduleFollowUp(context.Background(), fc)
	require.NoError(t, err)

	stored := repo.Get("sess-1")
	require.Len(t, stored.ConversationContext, model.MaxStoredTurns)
	assert.Equal(t, "f", stored.ConversationContext[0].Content)
}

func TestScheduleFollowUp_MaxAttemptsDeactivates(t *testing.T) {
	svc, repo, q, _ := newFollowUpService()
	next := baseTime
	repo.Put(&model.FollowUpSchedule{
		SessionID: "sess-1", PhoneNumber: "5511", AttemptCount: 5,
		NextFollowupAt: &next, IsActive: true, LeadStatus: model.LeadStatusActive,
	})

	_, err := svc.ScheduleFollowUp(context.Background(), idleContext("sess-1"))

	var maxErr *appErrors.ErrMaxAttemptsReached
	require.True(t, errors.As(err, &maxErr))
	stored := repo.Get("sess-1")
	assert.False(t, stored.IsActive)
	assert.Equal(t, model.LeadStatusUnresponsive, stored.LeadStatus)
	assert.Equal(t, []model.EventType{model.EventUnresponsive}, q.types())
}

func TestScheduleFollowUp_ReusesTerminalRow(t *testing.T) {
	svc, repo, _, _ := newFollowUpService()
	next := baseTime
	old := repo.Put(&model.FollowUpSchedule{
		SessionID: "sess-1", PhoneNumber: "5511", AttemptCount: 6,
		NextFollowupAt: &next, IsActive: false, LeadStatus: model.LeadStatusUnresponsive,
	})

	s, err := svc.ScheduleFollowUp(context.Background(), idleContext("sess-1"))
	require.NoError(t, err)

	assert.Equal(t, old.ID, s.ID)
	stored := repo.Get("sess-1")
	assert.True(t, stored.IsActive)
	assert.Equal(t, 0, stored.AttemptCount)
	assert.Equal(t, model.LeadStatusActive, stored.LeadStatus)
}

func TestScheduleFollowUp_Validation(t *testing.T) {
	svc, _, _, _ := newFollowUpService()

	_, err := svc.ScheduleFollowUp(context.Background(), model.FollowUpContext{PhoneNumber: "5511"})
	var invalid *appErrors.ErrInvalidContext
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "session_id", invalid.Field)

	_, err = svc.ScheduleFollowUp(context.Background(), model.FollowUpContext{SessionID: "s"})
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "phone_number", invalid.Field)
}

func TestCancelFollowUp(t *testing.T) {
	svc, repo, q, _ := newFollowUpService()
	ctx := context.Background()

	_, err := svc.ScheduleFollowUp(ctx, idleContext("sess-1"))
	require.NoError(t, err)

	cancelled, err := svc.CancelFollowUp(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, cancelled)

	stored := repo.Get("sess-1")
	assert.False(t, stored.IsActive)
	assert.Equal(t, model.LeadStatusResponded, stored.LeadStatus)
	assert.Equal(t, []model.EventType{model.EventScheduled, model.EventResponded}, q.types())

	// second cancel is a no-op
	cancelled, err = svc.CancelFollowUp(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestCancelFollowUp_UnknownSessionCreatesNothing(t *testing.T) {
	svc, repo, q, _ := newFollowUpService()

	cancelled, err := svc.CancelFollowUp(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, cancelled)
	assert.Nil(t, repo.Get("ghost"))
	assert.Empty(t, q.events)
}

func TestListSchedules_ComputesHours(t *testing.T) {
	svc, repo, _, _ := newFollowUpService()
	next := baseTime.Add(90 * time.Minute)
	repo.Put(&model.FollowUpSchedule{
		SessionID: "sess-1", PhoneNumber: "5511", NextFollowupAt: &next, IsActive: true,
		LeadStatus: model.LeadStatusActive, LastInteractionAt: baseTime.Add(-3 * time.Hour),
	})
	repo.Put(&model.FollowUpSchedule{
		SessionID: "sess-2", PhoneNumber: "5512", NextFollowupAt: &next, IsActive: false,
		LeadStatus: model.LeadStatusResponded, LastInteractionAt: baseTime.Add(-30 * time.Minute),
	})

	views, err := svc.ListSchedules(context.Background(), model.ScheduleFilter{})
	require.NoError(t, err)
	require.Len(t, views, 2)

	require.NotNil(t, views[0].HoursUntilNextAttempt)
	assert.Equal(t, 1.5, *views[0].HoursUntilNextAttempt)
	assert.Equal(t, 3.0, views[0].HoursSinceLastInteraction)
	assert.Nil(t, views[1].HoursUntilNextAttempt)
	assert.Equal(t, 0.5, views[1].HoursSinceLastInteraction)

	_, err = svc.ListSchedules(context.Background(), model.ScheduleFilter{LeadStatus: "bogus"})
	assert.Error(t, err)
}

func TestGetScheduleDetails(t *testing.T) {
	svc, repo, _, _ := newFollowUpService()
	logs := svc.Logs.(*MockLogRepo)
	next := baseTime
	s := repo.Put(&model.FollowUpSchedule{SessionID: "sess-1", PhoneNumber: "5511", NextFollowupAt: &next, IsActive: true})
	msg := "oi"
	require.NoError(t, logs.Create(context.Background(), &model.FollowUpLog{ScheduleID: s.ID, AttemptNumber: 1, MessageSent: &msg, DeliveryStatus: model.DeliveryStatusDelivered}))
	require.NoError(t, logs.Create(context.Background(), &model.FollowUpLog{ScheduleID: s.ID, AttemptNumber: 2}))

	details, err := svc.GetScheduleDetails(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Len(t, details.Logs, 2)
	assert.Equal(t, model.FollowUpLogStats{Total: 2, Delivered: 1, Skipped: 1}, details.Stats)

	_, err = svc.GetScheduleDetails(context.Background(), "ghost")
	var notFound *appErrors.ErrScheduleNotFound
	assert.True(t, errors.As(err, &notFound))
}
