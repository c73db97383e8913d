package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/brunao23/GerenciaIA-sub000/internal/model"
)

type ScheduleRepositoryInterface interface {
	GetActiveBySession(ctx context.Context, sessionID string) (*model.FollowUpSchedule, error)
	GetBySession(ctx context.Context, sessionID string) (*model.FollowUpSchedule, error)
	List(ctx context.Context, filter model.ScheduleFilter) ([]*model.FollowUpSchedule, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.FollowUpSchedule, error)

	// Upsert starts a fresh campaign for the session, reusing a terminal row.
	// It never overwrites an active row and reports false when one exists.
	Upsert(ctx context.Context, s *model.FollowUpSchedule) (bool, error)
	UpdateContext(ctx context.Context, s *model.FollowUpSchedule) (bool, error)
	Deactivate(ctx context.Context, sessionID string, status model.LeadStatus) (bool, error)

	// Guarded transitions used by the batch runner: they only apply while the
	// row is still active at expectedAttempt.
	Advance(ctx context.Context, id int64, expectedAttempt, attemptCount int, next time.Time) (bool, error)
	Finish(ctx context.Context, id int64, expectedAttempt, attemptCount int, status model.LeadStatus) (bool, error)
	RecordDispatchFailure(ctx context.Context, id int64, expectedAttempt int) (int, bool, error)
}

type ScheduleRepository struct {
	DB     *sql.DB
	Driver string
	Now    func() time.Time
}

const scheduleColumns = `id, session_id, phone_number, lead_name, last_message, conversation_context, funnel_stage,
        attempt_count, next_followup_at, is_active, lead_status, dispatch_failures,
        last_interaction_at, created_at, updated_at`

func (r *ScheduleRepository) now() time.Time {
	if r.Now != nil {
		return utc(r.Now())
	}
	return time.Now().UTC()
}

func (r *ScheduleRepository) q(query string) string {
	return rebind(r.Driver, query)
}

// ====================== Reads ======================

func (r *ScheduleRepository) GetActiveBySession(ctx context.Context, sessionID string) (*model.FollowUpSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM followup_schedules WHERE session_id=$1 AND is_active = TRUE`
	s, err := scanSchedule(r.DB.QueryRowContext(ctx, r.q(query), sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *ScheduleRepository) GetBySession(ctx context.Context, sessionID string) (*model.FollowUpSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM followup_schedules WHERE session_id=$1`
	s, err := scanSchedule(r.DB.QueryRowContext(ctx, r.q(query), sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *ScheduleRepository) List(ctx context.Context, filter model.ScheduleFilter) ([]*model.FollowUpSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM followup_schedules WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if filter.SessionID != "" {
		query += fmt.Sprintf(" AND session_id=$%d", argPos)
		args = append(args, filter.SessionID)
		argPos++
	}
	if filter.LeadStatus != "" {
		query += fmt.Sprintf(" AND lead_status=$%d", argPos)
		args = append(args, string(filter.LeadStatus))
		argPos++
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY updated_at DESC, id DESC LIMIT $%d", argPos)
	args = append(args, limit)

	return r.query(ctx, query, args...)
}

// ListDue returns active schedules whose next attempt is due, oldest first.
func (r *ScheduleRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.FollowUpSchedule, error) {
	query := `SELECT ` + scheduleColumns + `
        FROM followup_schedules
        WHERE is_active = TRUE AND next_followup_at IS NOT NULL AND next_followup_at <= $1
        ORDER BY next_followup_at ASC, id ASC
        LIMIT $2`
	return r.query(ctx, query, utc(now), limit)
}

func (r *ScheduleRepository) query(ctx context.Context, query string, args ...interface{}) ([]*model.FollowUpSchedule, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	schedules := []*model.FollowUpSchedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return schedules, nil
}

// ====================== Writes ======================

func (r *ScheduleRepository) Upsert(ctx context.Context, s *model.FollowUpSchedule) (bool, error) {
	turns, err := json.Marshal(contextOrEmpty(s.ConversationContext))
	if err != nil {
		return false, fmt.Errorf("encode conversation context: %w", err)
	}
	now := r.now()
	s.UpdatedAt = now
	if s.LastInteractionAt.IsZero() {
		s.LastInteractionAt = now
	}

	query := `
        INSERT INTO followup_schedules
        (session_id, phone_number, lead_name, last_message, conversation_context, funnel_stage,
         attempt_count, next_followup_at, is_active, lead_status, dispatch_failures,
         last_interaction_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        ON CONFLICT (session_id) DO UPDATE SET
            phone_number = excluded.phone_number,
            lead_name = excluded.lead_name,
            last_message = excluded.last_message,
            conversation_context = excluded.conversation_context,
            funnel_stage = excluded.funnel_stage,
            attempt_count = excluded.attempt_count,
            next_followup_at = excluded.next_followup_at,
            is_active = excluded.is_active,
            lead_status = excluded.lead_status,
            dispatch_failures = excluded.dispatch_failures,
            last_interaction_at = excluded.last_interaction_at,
            updated_at = excluded.updated_at
        WHERE followup_schedules.is_active = FALSE
        RETURNING id, created_at
    `
	var next interface{}
	if s.NextFollowupAt != nil {
		next = utc(*s.NextFollowupAt)
	}
	var created nullTime
	err = r.DB.QueryRowContext(ctx, r.q(query),
		s.SessionID, s.PhoneNumber, s.LeadName, s.LastMessage, string(turns), s.FunnelStage,
		s.AttemptCount, next, s.IsActive, string(s.LeadStatus), s.DispatchFailures,
		utc(s.LastInteractionAt), now, now,
	).Scan(&s.ID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("upsert schedule %s: %w", s.SessionID, err)
	}
	s.CreatedAt = created.Time
	return true, nil
}

func (r *ScheduleRepository) UpdateContext(ctx context.Context, s *model.FollowUpSchedule) (bool, error) {
	turns, err := json.Marshal(contextOrEmpty(s.ConversationContext))
	if err != nil {
		return false, fmt.Errorf("encode conversation context: %w", err)
	}
	now := r.now()
	s.UpdatedAt = now

	var next interface{}
	if s.NextFollowupAt != nil {
		next = utc(*s.NextFollowupAt)
	}
	query := `
        UPDATE followup_schedules
        SET phone_number=$1, lead_name=$2, last_message=$3, conversation_context=$4, funnel_stage=$5,
            next_followup_at=$6, last_interaction_at=$7, updated_at=$8
        WHERE id=$9 AND is_active = TRUE
    `
	return r.exec(ctx, query,
		s.PhoneNumber, s.LeadName, s.LastMessage, string(turns), s.FunnelStage,
		next, utc(s.LastInteractionAt), now, s.ID,
	)
}

func (r *ScheduleRepository) Deactivate(ctx context.Context, sessionID string, status model.LeadStatus) (bool, error) {
	query := `UPDATE followup_schedules SET is_active = FALSE, lead_status=$1, updated_at=$2 WHERE session_id=$3 AND is_active = TRUE`
	return r.exec(ctx, query, string(status), r.now(), sessionID)
}

func (r *ScheduleRepository) Advance(ctx context.Context, id int64, expectedAttempt, attemptCount int, next time.Time) (bool, error) {
	query := `
        UPDATE followup_schedules
        SET attempt_count=$1, next_followup_at=$2, dispatch_failures=0, updated_at=$3
        WHERE id=$4 AND is_active = TRUE AND attempt_count=$5
    `
	return r.exec(ctx, query, attemptCount, utc(next), r.now(), id, expectedAttempt)
}

func (r *ScheduleRepository) Finish(ctx context.Context, id int64, expectedAttempt, attemptCount int, status model.LeadStatus) (bool, error) {
	query := `
        UPDATE followup_schedules
        SET attempt_count=$1, is_active = FALSE, lead_status=$2, updated_at=$3
        WHERE id=$4 AND is_active = TRUE AND attempt_count=$5
    `
	return r.exec(ctx, query, attemptCount, string(status), r.now(), id, expectedAttempt)
}

func (r *ScheduleRepository) RecordDispatchFailure(ctx context.Context, id int64, expectedAttempt int) (int, bool, error) {
	query := `
        UPDATE followup_schedules
        SET dispatch_failures = dispatch_failures + 1, updated_at=$1
        WHERE id=$2 AND is_active = TRUE AND attempt_count=$3
        RETURNING dispatch_failures
    `
	var failures int
	err := r.DB.QueryRowContext(ctx, r.q(query), r.now(), id, expectedAttempt).Scan(&failures)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("record dispatch failure for schedule %d: %w", id, err)
	}
	return failures, true, nil
}

func (r *ScheduleRepository) exec(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := r.DB.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ====================== Scanning ======================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(row rowScanner) (*model.FollowUpSchedule, error) {
	var (
		s                     model.FollowUpSchedule
		leadName              sql.NullString
		turns                 []byte
		status                string
		next, lastInteraction nullTime
		createdAt, updatedAt  nullTime
	)
	err := row.Scan(
		&s.ID, &s.SessionID, &s.PhoneNumber, &leadName, &s.LastMessage, &turns, &s.FunnelStage,
		&s.AttemptCount, &next, &s.IsActive, &status, &s.DispatchFailures,
		&lastInteraction, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.LeadName = stringPtr(leadName)
	s.LeadStatus = model.LeadStatus(status)
	s.NextFollowupAt = next.Ptr()
	s.LastInteractionAt = lastInteraction.Time
	s.CreatedAt = createdAt.Time
	s.UpdatedAt = updatedAt.Time
	if len(turns) > 0 {
		if err := json.Unmarshal(turns, &s.ConversationContext); err != nil {
			return nil, fmt.Errorf("decode conversation context for %s: %w", s.SessionID, err)
		}
	}
	return &s, nil
}

func contextOrEmpty(turns []model.ConversationTurn) []model.ConversationTurn {
	if turns == nil {
		return []model.ConversationTurn{}
	}
	return turns
}

var _ ScheduleRepositoryInterface = (*ScheduleRepository)(nil)
