package queue

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	applog "github.com/brunao23/GerenciaIA-sub000/internal/logger"
	"github.com/brunao23/GerenciaIA-sub000/internal/model"
)

// TopicFollowUpEvents carries every follow-up state change.
const TopicFollowUpEvents = "followup.events"

type Handler func(event model.FollowUpEvent) error

// Queue interface
type Queue interface {
	Publish(topic string, event model.FollowUpEvent) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// InMemoryQueue is an in-process queue with retry
type InMemoryQueue struct {
	mu         sync.Mutex
	wg         sync.WaitGroup
	handlers   map[string][]Handler
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(logger *zap.Logger) *InMemoryQueue {
	logger = applog.OrNop(logger)
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		logger:     logger,
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
	}
}

// job wraps an event with retry info
type job struct {
	Event      model.FollowUpEvent
	RetryCount int
	MaxRetries int
}

// Publish sends an event to all subscribers
func (q *InMemoryQueue) Publish(topic string, event model.FollowUpEvent) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.processJob(handler, job{Event: event, MaxRetries: q.maxRetries})
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler Handler, j job) {
	defer q.wg.Done()
	for j.RetryCount <= j.MaxRetries {
		err := handler(j.Event)
		if err == nil {
			return // ACK
		}

		j.RetryCount++
		q.logger.Warn("event handler failed",
			zap.String("event", string(j.Event.Type)),
			zap.String("session_id", j.Event.SessionID),
			zap.Int("attempt", j.RetryCount),
			zap.Int("max_retries", j.MaxRetries),
			zap.Error(err),
		)

		if j.RetryCount > j.MaxRetries {
			q.logger.Error("event permanently failed", zap.String("event", string(j.Event.Type)), zap.String("session_id", j.Event.SessionID))
			return // No requeue
		}

		// Linear backoff before retry
		time.Sleep(time.Duration(j.RetryCount) * q.backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close waits for in-flight handlers.
func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}

// StartEventAuditSubscriber writes every follow-up event to the service log.
func StartEventAuditSubscriber(q Queue, logger *zap.Logger) error {
	logger = applog.OrNop(logger)
	return q.Subscribe(TopicFollowUpEvents, func(event model.FollowUpEvent) error {
		fields := []zap.Field{
			zap.String("event", string(event.Type)),
			zap.Int64("schedule_id", event.ScheduleID),
			zap.String("session_id", event.SessionID),
			zap.Int("attempt", event.AttemptNumber),
			zap.String("lead_status", string(event.LeadStatus)),
			zap.Time("occurred_at", event.OccurredAt),
		}
		if event.RunID != "" {
			fields = append(fields, zap.String("run_id", event.RunID))
		}
		if event.MessageID != "" {
			fields = append(fields, zap.String("message_id", event.MessageID))
		}
		if event.Detail != "" {
			fields = append(fields, zap.String("detail", event.Detail))
		}
		logger.Info("followup event", fields...)
		return nil
	})
}
