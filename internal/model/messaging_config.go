// internal/model/messaging_config.go
package model

import "time"

const (
	ProviderEvolution = "evolution"
	ProviderTwilio    = "twilio"
)

// MessagingConfig holds the gateway connection details. Only one row is
// active at a time.
type MessagingConfig struct {
	ID           int64     `db:"id" json:"id"`
	Provider     string    `db:"provider" json:"provider"`
	APIURL       string    `db:"api_url" json:"api_url"`
	InstanceName string    `db:"instance_name" json:"instance_name"`
	APIKey       string    `db:"api_key" json:"-"`
	PhoneNumber  string    `db:"phone_number" json:"phone_number"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
