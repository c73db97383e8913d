package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brunao23/GerenciaIA-sub000/internal/model"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	maxResponseBytes   = 64 * 1024
)

// EvolutionGateway talks to an Evolution API (WhatsApp) instance.
type EvolutionGateway struct {
	baseURL  string
	instance string
	apiKey   string
	client   *http.Client
}

func NewEvolutionGateway(cfg model.MessagingConfig, timeout time.Duration) (*EvolutionGateway, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("evolution gateway requires api url")
	}
	lower := strings.ToLower(baseURL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return nil, fmt.Errorf("unsupported api url scheme")
	}
	if strings.TrimSpace(cfg.InstanceName) == "" {
		return nil, fmt.Errorf("evolution gateway requires instance name")
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &EvolutionGateway{
		baseURL:  baseURL,
		instance: strings.TrimSpace(cfg.InstanceName),
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
	Delay  int64  `json:"delay,omitempty"`
}

func (g *EvolutionGateway) Send(ctx context.Context, number, text string, delay time.Duration) SendResult {
	body, err := json.Marshal(sendTextRequest{
		Number: NormalizeNumber(number),
		Text:   text,
		Delay:  delay.Milliseconds(),
	})
	if err != nil {
		return SendResult{Error: err.Error()}
	}

	endpoint := fmt.Sprintf("%s/message/sendText/%s", g.baseURL, g.instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return SendResult{Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", g.apiKey)

	res, err := g.client.Do(req)
	if err != nil {
		return SendResult{Error: err.Error()}
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	result := SendResult{Raw: strings.TrimSpace(string(raw))}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		result.Error = providerError(raw, res.Status)
		return result
	}

	var payload struct {
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		result.MessageID = payload.Key.ID
	}
	result.Success = true
	return result
}

func (g *EvolutionGateway) CheckStatus(ctx context.Context) (ConnectionStatus, error) {
	endpoint := fmt.Sprintf("%s/instance/connectionState/%s", g.baseURL, g.instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ConnectionStatus{}, err
	}
	req.Header.Set("apikey", g.apiKey)

	res, err := g.client.Do(req)
	if err != nil {
		return ConnectionStatus{}, fmt.Errorf("connection state request: %w", err)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return ConnectionStatus{Raw: string(raw)}, fmt.Errorf("connection state request failed: %s", providerError(raw, res.Status))
	}

	var payload struct {
		Instance struct {
			State string `json:"state"`
		} `json:"instance"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ConnectionStatus{Raw: string(raw)}, fmt.Errorf("decode connection state: %w", err)
	}
	return ConnectionStatus{
		Connected: payload.Instance.State == "open",
		State:     payload.Instance.State,
		Raw:       strings.TrimSpace(string(raw)),
	}, nil
}

// providerError extracts the most specific message the provider returned.
func providerError(raw []byte, status string) string {
	var payload struct {
		Response struct {
			Message json.RawMessage `json:"message"`
		} `json:"response"`
		Error   json.RawMessage `json:"error"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		for _, candidate := range []json.RawMessage{payload.Response.Message, payload.Error, payload.Message} {
			if msg := rawText(candidate); msg != "" {
				return msg
			}
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && len(text) <= 512 {
		return status + ": " + text
	}
	return status
}

// rawText renders a JSON string or array of strings; other shapes are kept as JSON.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []interface{}
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, strings.TrimSpace(fmt.Sprintf("%v", item)))
		}
		return strings.Join(parts, "; ")
	}
	return strings.TrimSpace(string(raw))
}

var _ Gateway = (*EvolutionGateway)(nil)
