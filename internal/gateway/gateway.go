// Package gateway sends WhatsApp/SMS text messages through the configured
// messaging provider.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/brunao23/GerenciaIA-sub000/internal/model"
)

// SendResult is the outcome of one send call. Raw holds the provider payload
// for the follow-up log.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Raw       string `json:"raw,omitempty"`
}

// ConnectionStatus reports whether the provider channel can send right now.
type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	State     string `json:"state"`
	Raw       string `json:"raw,omitempty"`
}

// Gateway is a messaging provider. Send never returns an error: transport and
// provider failures are reported through SendResult. Each call is a distinct
// send, there is no deduplication.
type Gateway interface {
	Send(ctx context.Context, number, text string, delay time.Duration) SendResult
	CheckStatus(ctx context.Context) (ConnectionStatus, error)
}

// New builds the gateway for an active messaging config.
func New(cfg model.MessagingConfig) (Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", model.ProviderEvolution:
		return NewEvolutionGateway(cfg, 0)
	case model.ProviderTwilio:
		return NewTwilioGateway(cfg)
	default:
		return nil, fmt.Errorf("unsupported messaging provider %q", cfg.Provider)
	}
}

// NormalizeNumber strips everything but digits from a phone number.
func NormalizeNumber(number string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, number)
}
