// internal/model/conversation.go
package model

import "time"

// ConversationTurn is one message of the lead's conversation history.
type ConversationTurn struct {
	Role    string    `json:"role"` // lead, assistant
	Content string    `json:"content"`
	At      time.Time `json:"at,omitempty"`
}

// FollowUpContext is what callers hand over when a conversation goes idle.
type FollowUpContext struct {
	SessionID           string             `json:"session_id"`
	PhoneNumber         string             `json:"phone_number"`
	LeadName            *string            `json:"lead_name,omitempty"`
	LastMessage         string             `json:"last_message"`
	ConversationContext []ConversationTurn `json:"conversation_context"`
	FunnelStage         string             `json:"funnel_stage"`
	LastInteractionAt   *time.Time         `json:"last_interaction_at,omitempty"`
}

// BoundedTurns trims a history to the last MaxStoredTurns entries.
func BoundedTurns(turns []ConversationTurn) []ConversationTurn {
	if len(turns) <= MaxStoredTurns {
		return turns
	}
	out := make([]ConversationTurn, MaxStoredTurns)
	copy(out, turns[len(turns)-MaxStoredTurns:])
	return out
}
