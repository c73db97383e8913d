package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/brunao23/GerenciaIA-sub000/internal/model"
)

const whatsappPrefix = "whatsapp:"

// twilioAPI is the subset of the Twilio REST client used here.
type twilioAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
	FetchAccount(sid string) (*twilioApi.ApiV2010Account, error)
}

// TwilioGateway sends through Twilio. For this provider the config's instance
// name is the account SID and the API key is the auth token.
type TwilioGateway struct {
	api        twilioAPI
	accountSID string
	from       string
}

func NewTwilioGateway(cfg model.MessagingConfig) (*TwilioGateway, error) {
	if cfg.InstanceName == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.PhoneNumber == "" {
		return nil, fmt.Errorf("sender phone number must be provided")
	}
	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.InstanceName,
			Password: cfg.APIKey,
		},
	)
	return &TwilioGateway{api: client.Api, accountSID: cfg.InstanceName, from: cfg.PhoneNumber}, nil
}

// Send delivers over WhatsApp when the sender is a whatsapp: address, SMS
// otherwise. Twilio has no typing delay, so delay is ignored.
func (g *TwilioGateway) Send(ctx context.Context, number, text string, _ time.Duration) SendResult {
	if err := ctx.Err(); err != nil {
		return SendResult{Error: err.Error()}
	}

	to := "+" + NormalizeNumber(number)
	if strings.HasPrefix(g.from, whatsappPrefix) {
		to = whatsappPrefix + to
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(g.from)
	params.SetBody(text)

	msg, err := g.api.CreateMessage(params)
	if err != nil {
		return SendResult{Error: err.Error()}
	}

	result := SendResult{Success: true}
	if raw, err := json.Marshal(msg); err == nil {
		result.Raw = string(raw)
	}
	if msg != nil && msg.Sid != nil {
		result.MessageID = *msg.Sid
	}
	if msg != nil && msg.Status != nil && (*msg.Status == "failed" || *msg.Status == "undelivered") {
		result.Success = false
		result.Error = "message " + *msg.Status
		if msg.ErrorMessage != nil {
			result.Error += ": " + *msg.ErrorMessage
		}
	}
	return result
}

func (g *TwilioGateway) CheckStatus(ctx context.Context) (ConnectionStatus, error) {
	if err := ctx.Err(); err != nil {
		return ConnectionStatus{}, err
	}
	account, err := g.api.FetchAccount(g.accountSID)
	if err != nil {
		return ConnectionStatus{}, fmt.Errorf("fetch twilio account: %w", err)
	}
	state := ""
	if account != nil && account.Status != nil {
		state = *account.Status
	}
	return ConnectionStatus{Connected: state == "active", State: state}, nil
}

var _ Gateway = (*TwilioGateway)(nil)
