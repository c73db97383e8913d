// internal/model/followup_schedule.go
package model

import "time"

// LeadStatus is the lifecycle status of a follow-up campaign.
type LeadStatus string

const (
	LeadStatusActive       LeadStatus = "active"
	LeadStatusResponded    LeadStatus = "responded"
	LeadStatusStopped      LeadStatus = "stopped"
	LeadStatusUnresponsive LeadStatus = "unresponsive"
)

// IsTerminal reports whether no further attempts happen in this status.
func (s LeadStatus) IsTerminal() bool {
	return s == LeadStatusResponded || s == LeadStatusStopped || s == LeadStatusUnresponsive
}

// Valid reports whether s is one of the known statuses.
func (s LeadStatus) Valid() bool {
	return s == LeadStatusActive || s.IsTerminal()
}

// MaxStoredTurns bounds the conversation history kept on a schedule.
const MaxStoredTurns = 10

// FollowUpSchedule is the durable per-session follow-up campaign.
// There is exactly one row per session; a new campaign reuses it.
type FollowUpSchedule struct {
	ID                  int64              `db:"id" json:"id"`
	SessionID           string             `db:"session_id" json:"session_id"`
	PhoneNumber         string             `db:"phone_number" json:"phone_number"`
	LeadName            *string            `db:"lead_name" json:"lead_name,omitempty"`
	LastMessage         string             `db:"last_message" json:"last_message"`
	ConversationContext []ConversationTurn `db:"conversation_context" json:"conversation_context"`
	FunnelStage         string             `db:"funnel_stage" json:"funnel_stage"`
	AttemptCount        int                `db:"attempt_count" json:"attempt_count"`
	NextFollowupAt      *time.Time         `db:"next_followup_at" json:"next_followup_at,omitempty"`
	IsActive            bool               `db:"is_active" json:"is_active"`
	LeadStatus          LeadStatus         `db:"lead_status" json:"lead_status"`
	DispatchFailures    int                `db:"dispatch_failures" json:"dispatch_failures"`
	LastInteractionAt   time.Time          `db:"last_interaction_at" json:"last_interaction_at"`
	CreatedAt           time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `db:"updated_at" json:"updated_at"`
}

// RecentTurns returns at most n of the latest conversation turns.
func (s *FollowUpSchedule) RecentTurns(n int) []ConversationTurn {
	if n <= 0 || len(s.ConversationContext) <= n {
		return s.ConversationContext
	}
	return s.ConversationContext[len(s.ConversationContext)-n:]
}

// ScheduleFilter narrows schedule listings.
type ScheduleFilter struct {
	SessionID  string
	LeadStatus LeadStatus
	Limit      int
}
