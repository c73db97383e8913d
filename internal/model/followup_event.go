// internal/model/followup_event.go
package model

import "time"

type EventType string

const (
	EventScheduled      EventType = "scheduled"
	EventResponded      EventType = "responded"
	EventDispatched     EventType = "dispatched"
	EventDispatchFailed EventType = "dispatch_failed"
	EventStopped        EventType = "stopped"
	EventUnresponsive   EventType = "unresponsive"
	EventSuperseded     EventType = "superseded"
)

// FollowUpEvent is published on the event bus after each state change.
type FollowUpEvent struct {
	Type          EventType  `json:"type"`
	RunID         string     `json:"run_id,omitempty"`
	ScheduleID    int64      `json:"schedule_id"`
	SessionID     string     `json:"session_id"`
	AttemptNumber int        `json:"attempt_number"`
	LeadStatus    LeadStatus `json:"lead_status"`
	MessageID     string     `json:"message_id,omitempty"`
	Detail        string     `json:"detail,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}
