// Package genai decides whether and how to follow up with an idle lead by
// asking an OpenAI chat model about the recent conversation.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	applog "github.com/brunao23/GerenciaIA-sub000/internal/logger"
	"github.com/brunao23/GerenciaIA-sub000/internal/model"
)

const (
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 30 * time.Second

	// RecentTurnLimit is how much history the model sees.
	RecentTurnLimit = 5
)

var (
	ErrNoChoicesReturned = errors.New("no choices returned")
	ErrMissingAPIKey     = errors.New("OpenAI API key not set")
)

// Sentiment and urgency values accepted from the model.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"

	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// AnalysisInput is the context the analyzer needs for one attempt.
type AnalysisInput struct {
	LeadName          *string
	LastInteractionAt time.Time
	FunnelStage       string
	RecentTurns       []model.ConversationTurn
	AttemptNumber     int
}

// Analysis is the analyzer's decision. Fallback is set when the safe default
// was returned instead of a model answer.
type Analysis struct {
	ShouldSendFollowup bool
	ContextualMessage  *string
	Reasoning          string
	Sentiment          string
	Urgency            string
	Fallback           bool
}

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

type completionsAdapter struct {
	svc *openai.ChatCompletionService
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Analyzer wraps the chat completion service.
type Analyzer struct {
	chat    chatService
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

type Option func(*analyzerOptions)

type analyzerOptions struct {
	apiKey  string
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func WithAPIKey(key string) Option {
	return func(o *analyzerOptions) { o.apiKey = key }
}

func WithModel(name string) Option {
	return func(o *analyzerOptions) { o.model = name }
}

func WithTimeout(d time.Duration) Option {
	return func(o *analyzerOptions) { o.timeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *analyzerOptions) { o.logger = l }
}

// NewAnalyzer builds an analyzer backed by the OpenAI API.
func NewAnalyzer(opts ...Option) (*Analyzer, error) {
	o := analyzerOptions{model: DefaultModel, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client := openai.NewClient(option.WithAPIKey(o.apiKey))
	return newAnalyzer(completionsAdapter{svc: &client.Chat.Completions}, o), nil
}

func newAnalyzer(chat chatService, o analyzerOptions) *Analyzer {
	if o.model == "" {
		o.model = DefaultModel
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	o.logger = applog.OrNop(o.logger)
	return &Analyzer{chat: chat, model: o.model, timeout: o.timeout, logger: o.logger}
}

// Analyze never fails: any problem with the call or the answer yields the
// safe default, which sends the stage template.
func (a *Analyzer) Analyze(ctx context.Context, in AnalysisInput) Analysis {
	analysis, err := a.analyze(ctx, in)
	if err != nil {
		a.logger.Warn("context analysis failed, using fallback",
			zap.Int("attempt", in.AttemptNumber),
			zap.Error(err),
		)
		return FallbackAnalysis(err)
	}
	return analysis
}

func (a *Analyzer) analyze(ctx context.Context, in AnalysisInput) (Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildUserPrompt(in)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(0.3),
	}

	resp, err := a.chat.Create(ctx, params)
	if err != nil {
		return Analysis{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Analysis{}, ErrNoChoicesReturned
	}
	return ParseAnalysis(resp.Choices[0].Message.Content)
}

// FallbackAnalysis is the decision used when the model cannot be consulted.
func FallbackAnalysis(cause error) Analysis {
	reason := "analyzer unavailable"
	if cause != nil {
		reason = cause.Error()
	}
	return Analysis{
		ShouldSendFollowup: true,
		Reasoning:          "fallback: " + reason + "; sending stage template",
		Sentiment:          SentimentNeutral,
		Urgency:            UrgencyMedium,
		Fallback:           true,
	}
}

// ParseAnalysis decodes and validates the model's JSON answer. Every field is
// required; contextualMessage may be null.
func ParseAnalysis(content string) (Analysis, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Analysis{}, errors.New("empty analysis")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return Analysis{}, fmt.Errorf("malformed analysis: %w", err)
	}

	var out Analysis
	if err := decodeField(raw, "shouldSendFollowup", &out.ShouldSendFollowup); err != nil {
		return Analysis{}, err
	}
	if err := decodeField(raw, "reasoning", &out.Reasoning); err != nil {
		return Analysis{}, err
	}
	if err := decodeField(raw, "sentiment", &out.Sentiment); err != nil {
		return Analysis{}, err
	}
	if err := decodeField(raw, "urgency", &out.Urgency); err != nil {
		return Analysis{}, err
	}

	msgRaw, ok := raw["contextualMessage"]
	if !ok {
		return Analysis{}, errors.New("missing field contextualMessage")
	}
	var msg *string
	if err := json.Unmarshal(msgRaw, &msg); err != nil {
		return Analysis{}, fmt.Errorf("field contextualMessage: %w", err)
	}
	if msg != nil && strings.TrimSpace(*msg) != "" {
		trimmed := strings.TrimSpace(*msg)
		out.ContextualMessage = &trimmed
	}

	switch out.Sentiment {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
	default:
		return Analysis{}, fmt.Errorf("invalid sentiment %q", out.Sentiment)
	}
	switch out.Urgency {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
	default:
		return Analysis{}, fmt.Errorf("invalid urgency %q", out.Urgency)
	}
	return out, nil
}

func decodeField(raw map[string]json.RawMessage, name string, dst interface{}) error {
	v, ok := raw[name]
	if !ok || string(v) == "null" {
		return fmt.Errorf("missing field %s", name)
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("field %s: %w", name, err)
	}
	return nil
}

// FallbackOnly is used when no API key is configured: every attempt gets the
// safe default and therefore the stage template.
type FallbackOnly struct{}

func (FallbackOnly) Analyze(ctx context.Context, in AnalysisInput) Analysis {
	return FallbackAnalysis(ErrMissingAPIKey)
}
