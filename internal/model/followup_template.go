// internal/model/followup_template.go
package model

import "time"

// FollowUpTemplate is the fallback text for one attempt stage (1..6).
type FollowUpTemplate struct {
	ID           int64     `db:"id" json:"id"`
	AttemptStage int       `db:"attempt_stage" json:"attempt_stage"`
	TemplateText string    `db:"template_text" json:"template_text"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
