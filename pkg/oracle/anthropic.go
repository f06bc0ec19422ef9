package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicConfig configures the Messages API client.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Anthropic explains phrases and generates practice text with the Messages API.
type Anthropic struct {
	client anthropic.Client
	model  string
	log    *zap.Logger
}

// NewAnthropic builds a client. Extra request options are appended after the
// ones derived from cfg.
func NewAnthropic(cfg AnthropicConfig, log *zap.Logger, opts ...option.RequestOption) (*Anthropic, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("anthropic: %w: api key required", ErrNotConfigured)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultAnthropicModel
	}
	if log == nil {
		log = zap.NewNop()
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &Anthropic{
		client: anthropic.NewClient(reqOpts...),
		model:  model,
		log:    log.Named("anthropic"),
	}, nil
}

// Explain sends one batched request for all phrases.
func (a *Anthropic) Explain(ctx context.Context, text string, phrases []string) ([]Entry, error) {
	if len(phrases) == 0 {
		return nil, nil
	}
	out, err := a.message(ctx, explainSystemPrompt, explainUserPrompt(text, phrases), 2048, 1)
	if err != nil {
		return nil, err
	}
	entries, err := ParseExplanations(out)
	if err != nil {
		a.log.Warn("unparseable explanation response", zap.Int("phrases", len(phrases)), zap.Error(err))
		return nil, err
	}
	return entries, nil
}

// GenerateText asks for a short passage using every word.
func (a *Anthropic) GenerateText(ctx context.Context, words []Entry) (string, error) {
	prompt, err := generateUserPrompt(words)
	if err != nil {
		return "", err
	}
	out, err := a.message(ctx, generateSystemPrompt, prompt, 512, 0.8)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (a *Anthropic) message(ctx context.Context, system, prompt string, maxTokens int64, temperature float64) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &TransportError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", &TransportError{Provider: "anthropic", Err: err}
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", &ParseError{Err: errors.New("empty response")}
	}
	return b.String(), nil
}
