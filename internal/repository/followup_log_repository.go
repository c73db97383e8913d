package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/brunao23/GerenciaIA-sub000/internal/model"
)

type FollowUpLogRepositoryInterface interface {
	Create(ctx context.Context, log *model.FollowUpLog) error
	ListBySchedule(ctx context.Context, scheduleID int64) ([]*model.FollowUpLog, error)
	Stats(ctx context.Context, scheduleID int64) (*model.FollowUpLogStats, error)
}

type FollowUpLogRepository struct {
	DB     *sql.DB
	Driver string
}

// Create appends a log row and returns the generated ID on log.
func (r *FollowUpLogRepository) Create(ctx context.Context, log *model.FollowUpLog) error {
	if log.SentAt.IsZero() {
		log.SentAt = time.Now()
	}
	log.SentAt = utc(log.SentAt)

	query := `
        INSERT INTO followup_logs
        (schedule_id, attempt_number, message_sent, analyzer_rationale, sentiment, urgency, delivery_status, provider_response, sent_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	err := r.DB.QueryRowContext(ctx, rebind(r.Driver, query),
		log.ScheduleID,
		log.AttemptNumber,
		log.MessageSent,
		log.AnalyzerRationale,
		log.Sentiment,
		log.Urgency,
		nilIfEmpty(string(log.DeliveryStatus)),
		log.ProviderResponse,
		log.SentAt,
	).Scan(&log.ID)
	if err != nil {
		return fmt.Errorf("insert followup log for schedule %d: %w", log.ScheduleID, err)
	}
	return nil
}

func (r *FollowUpLogRepository) ListBySchedule(ctx context.Context, scheduleID int64) ([]*model.FollowUpLog, error) {
	query := `
        SELECT id, schedule_id, attempt_number, message_sent, analyzer_rationale, sentiment, urgency,
               delivery_status, provider_response, sent_at
        FROM followup_logs
        WHERE schedule_id=$1
        ORDER BY sent_at ASC, id ASC
    `
	rows, err := r.DB.QueryContext(ctx, rebind(r.Driver, query), scheduleID)
	if err != nil {
		return nil, fmt.Errorf("query followup logs: %w", err)
	}
	defer rows.Close()

	logs := []*model.FollowUpLog{}
	for rows.Next() {
		var (
			l        model.FollowUpLog
			message  sql.NullString
			delivery sql.NullString
			sentAt   nullTime
		)
		if err := rows.Scan(&l.ID, &l.ScheduleID, &l.AttemptNumber, &message, &l.AnalyzerRationale,
			&l.Sentiment, &l.Urgency, &delivery, &l.ProviderResponse, &sentAt); err != nil {
			return nil, err
		}
		l.MessageSent = stringPtr(message)
		l.DeliveryStatus = model.DeliveryStatus(delivery.String)
		l.SentAt = sentAt.Time
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// Stats aggregates the attempt outcomes of one schedule.
func (r *FollowUpLogRepository) Stats(ctx context.Context, scheduleID int64) (*model.FollowUpLogStats, error) {
	query := `
        SELECT
            COUNT(*),
            COALESCE(SUM(CASE WHEN delivery_status = 'delivered' THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN delivery_status = 'failed' THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN delivery_status IS NULL THEN 1 ELSE 0 END), 0)
        FROM followup_logs
        WHERE schedule_id=$1
    `
	var stats model.FollowUpLogStats
	err := r.DB.QueryRowContext(ctx, rebind(r.Driver, query), scheduleID).Scan(
		&stats.Total, &stats.Delivered, &stats.Failed, &stats.Skipped,
	)
	if err != nil {
		return nil, fmt.Errorf("followup log stats for schedule %d: %w", scheduleID, err)
	}
	return &stats, nil
}

var _ FollowUpLogRepositoryInterface = (*FollowUpLogRepository)(nil)
