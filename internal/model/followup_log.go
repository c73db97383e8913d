// internal/model/followup_log.go
package model

import "time"

type DeliveryStatus string

const (
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// FollowUpLog is an append-only record of one dispatch attempt. Rows written
// when the analyzer vetoes an attempt carry no message and no delivery status.
type FollowUpLog struct {
	ID                int64          `db:"id" json:"id"`
	ScheduleID        int64          `db:"schedule_id" json:"schedule_id"`
	AttemptNumber     int            `db:"attempt_number" json:"attempt_number"`
	MessageSent       *string        `db:"message_sent" json:"message_sent,omitempty"`
	AnalyzerRationale string         `db:"analyzer_rationale" json:"analyzer_rationale"`
	Sentiment         string         `db:"sentiment" json:"sentiment,omitempty"`
	Urgency           string         `db:"urgency" json:"urgency,omitempty"`
	DeliveryStatus    DeliveryStatus `db:"delivery_status" json:"delivery_status,omitempty"`
	ProviderResponse  string         `db:"provider_response" json:"provider_response,omitempty"`
	SentAt            time.Time      `db:"sent_at" json:"sent_at"`
}

// FollowUpLogStats summarizes the logs of one schedule.
type FollowUpLogStats struct {
	Total     int `json:"total"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}
