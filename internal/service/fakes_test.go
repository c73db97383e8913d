package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/brunao23/GerenciaIA-sub000/internal/gateway"
	"github.com/brunao23/GerenciaIA-sub000/internal/genai"
	"github.com/brunao23/GerenciaIA-sub000/internal/model"
)

// Mock repositories

type MockScheduleRepo struct {
	mu      sync.Mutex
	rows    map[string]*model.FollowUpSchedule
	nextID  int64
	listErr error

	// per-schedule write failures, keyed by schedule ID
	advanceErr map[int64]error
	finishErr  map[int64]error
	failureErr map[int64]error

	// beforeTransition runs once before a guarded transition, to simulate a concurrent reply.
	beforeTransition func()
}

func NewMockScheduleRepo() *MockScheduleRepo {
	return &MockScheduleRepo{rows: map[string]*model.FollowUpSchedule{}}
}

func clone(s *model.FollowUpSchedule) *model.FollowUpSchedule {
	c := *s
	if s.NextFollowupAt != nil {
		t := *s.NextFollowupAt
		c.NextFollowupAt = &t
	}
	c.ConversationContext = append([]model.ConversationTurn(nil), s.ConversationContext...)
	return &c
}

func (m *MockScheduleRepo) Put(s *model.FollowUpSchedule) *model.FollowUpSchedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	m.rows[s.SessionID] = clone(s)
	return s
}

func (m *MockScheduleRepo) Get(sessionID string) *model.FollowUpSchedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.rows[sessionID]; ok {
		return clone(s)
	}
	return nil
}

func (m *MockScheduleRepo) GetActiveBySession(ctx context.Context, sessionID string) (*model.FollowUpSchedule, error) {
	s := m.Get(sessionID)
	if s == nil || !s.IsActive {
		return nil, nil
	}
	return s, nil
}

func (m *MockScheduleRepo) GetBySession(ctx context.Context, sessionID string) (*model.FollowUpSchedule, error) {
	return m.Get(sessionID), nil
}

func (m *MockScheduleRepo) List(ctx context.Context, filter model.ScheduleFilter) ([]*model.FollowUpSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.FollowUpSchedule{}
	for _, s := range m.rows {
		if filter.SessionID != "" && s.SessionID != filter.SessionID {
			continue
		}
		if filter.LeadStatus != "" && s.LeadStatus != filter.LeadStatus {
			continue
		}
		out = append(out, clone(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockScheduleRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.FollowUpSchedule, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.FollowUpSchedule{}
	for _, s := range m.rows {
		if s.IsActive && s.NextFollowupAt != nil && !s.NextFollowupAt.After(now) {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextFollowupAt.Before(*out[j].NextFollowupAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockScheduleRepo) Upsert(ctx context.Context, s *model.FollowUpSchedule) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.rows[s.SessionID]; ok {
		if existing.IsActive {
			return false, nil
		}
		s.ID = existing.ID
	} else {
		m.nextID++
		s.ID = m.nextID
	}
	m.rows[s.SessionID] = clone(s)
	return true, nil
}

func (m *MockScheduleRepo) UpdateContext(ctx context.Context, s *model.FollowUpSchedule) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rows[s.SessionID]
	if !ok || !existing.IsActive || existing.ID != s.ID {
		return false, nil
	}
	updated := clone(s)
	updated.AttemptCount = existing.AttemptCount
	updated.IsActive = existing.IsActive
	updated.LeadStatus = existing.LeadStatus
	updated.DispatchFailures = existing.DispatchFailures
	m.rows[s.SessionID] = updated
	return true, nil
}

func (m *MockScheduleRepo) Deactivate(ctx context.Context, sessionID string, status model.LeadStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[sessionID]
	if !ok || !s.IsActive {
		return false, nil
	}
	s.IsActive = false
	s.LeadStatus = status
	return true, nil
}

func (m *MockScheduleRepo) writeErr(ctx context.Context, errs map[int64]error, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return errs[id]
}

func (m *MockScheduleRepo) guarded(id int64, expected int) *model.FollowUpSchedule {
	if m.beforeTransition != nil {
		hook := m.beforeTransition
		m.beforeTransition = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.ID == id && s.IsActive && s.AttemptCount == expected {
			return s
		}
	}
	return nil
}

func (m *MockScheduleRepo) Advance(ctx context.Context, id int64, expectedAttempt, attemptCount int, next time.Time) (bool, error) {
	if err := m.writeErr(ctx, m.advanceErr, id); err != nil {
		return false, err
	}
	s := m.guarded(id, expectedAttempt)
	if s == nil {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.AttemptCount = attemptCount
	s.NextFollowupAt = &next
	s.DispatchFailures = 0
	return true, nil
}

func (m *MockScheduleRepo) Finish(ctx context.Context, id int64, expectedAttempt, attemptCount int, status model.LeadStatus) (bool, error) {
	if err := m.writeErr(ctx, m.finishErr, id); err != nil {
		return false, err
	}
	s := m.guarded(id, expectedAttempt)
	if s == nil {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.AttemptCount = attemptCount
	s.IsActive = false
	s.LeadStatus = status
	return true, nil
}

func (m *MockScheduleRepo) RecordDispatchFailure(ctx context.Context, id int64, expectedAttempt int) (int, bool, error) {
	if err := m.writeErr(ctx, m.failureErr, id); err != nil {
		return 0, false, err
	}
	s := m.guarded(id, expectedAttempt)
	if s == nil {
		return 0, false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.DispatchFailures++
	return s.DispatchFailures, true, nil
}

type MockLogRepo struct {
	mu   sync.Mutex
	logs []*model.FollowUpLog
	err  error
}

func (m *MockLogRepo) Create(ctx context.Context, log *model.FollowUpLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	log.ID = int64(len(m.logs) + 1)
	c := *log
	m.logs = append(m.logs, &c)
	return nil
}

func (m *MockLogRepo) ListBySchedule(ctx context.Context, scheduleID int64) ([]*model.FollowUpLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.FollowUpLog{}
	for _, l := range m.logs {
		if l.ScheduleID == scheduleID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *MockLogRepo) Stats(ctx context.Context, scheduleID int64) (*model.FollowUpLogStats, error) {
	logs, _ := m.ListBySchedule(ctx, scheduleID)
	stats := &model.FollowUpLogStats{Total: len(logs)}
	for _, l := range logs {
		switch l.DeliveryStatus {
		case model.DeliveryStatusDelivered:
			stats.Delivered++
		case model.DeliveryStatusFailed:
			stats.Failed++
		default:
			stats.Skipped++
		}
	}
	return stats, nil
}

type MockTemplateRepo struct {
	templates map[int]*model.FollowUpTemplate
	err       error
}

func (m *MockTemplateRepo) GetActiveByStage(ctx context.Context, stage int) (*model.FollowUpTemplate, error) {
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.templates[stage]
	if !ok || !t.IsActive {
		return nil, nil
	}
	return t, nil
}

// Stub implementations to satisfy interface
func (m *MockTemplateRepo) Upsert(ctx context.Context, t *model.FollowUpTemplate) error { return nil }
func (m *MockTemplateRepo) ListAll(ctx context.Context) ([]*model.FollowUpTemplate, error) {
	return nil, nil
}

type MockConfigRepo struct {
	cfg *model.MessagingConfig
	err error
}

func (m *MockConfigRepo) GetActive(ctx context.Context) (*model.MessagingConfig, error) {
	return m.cfg, m.err
}
func (m *MockConfigRepo) Create(ctx context.Context, cfg *model.MessagingConfig) error { return nil }
func (m *MockConfigRepo) Activate(ctx context.Context, id int64) error                 { return nil }

type MockAnalyzer struct {
	mu       sync.Mutex
	analysis genai.Analysis
	inputs   []genai.AnalysisInput
}

func (m *MockAnalyzer) Analyze(ctx context.Context, in genai.AnalysisInput) genai.Analysis {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, in)
	return m.analysis
}

type sentMessage struct {
	Number string
	Text   string
	At     time.Time
}

type MockGateway struct {
	mu     sync.Mutex
	result gateway.SendResult
	sent   []sentMessage
	// onSend runs after a send, before the runner persists anything.
	onSend func()
}

func (m *MockGateway) Send(ctx context.Context, number, text string, delay time.Duration) gateway.SendResult {
	m.mu.Lock()
	m.sent = append(m.sent, sentMessage{Number: number, Text: text, At: time.Now()})
	hook := m.onSend
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return m.result
}

func (m *MockGateway) CheckStatus(ctx context.Context) (gateway.ConnectionStatus, error) {
	return gateway.ConnectionStatus{Connected: true, State: "open"}, nil
}

var errStore = errors.New("store unreachable")
