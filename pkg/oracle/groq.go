package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultGroqBaseURL = "https://api.groq.com/openai"
	DefaultGroqModel   = "groq/compound-mini"

	chatCompletionsPath = "/v1/chat/completions"
)

// GroqConfig configures the OpenAI-compatible chat completions client.
type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Groq explains phrases and generates practice text over the chat completions API.
type Groq struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	log        *zap.Logger
}

// NewGroq builds a client. A nil logger disables logging.
func NewGroq(cfg GroqConfig, log *zap.Logger) (*Groq, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("groq: %w: api key required", ErrNotConfigured)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultGroqBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultGroqModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Groq{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		timeout:    timeout,
		httpClient: &http.Client{Transport: tr},
		log:        log.Named("groq"),
	}, nil
}

// NewGroqWithHTTPClient is NewGroq with a custom client, used by tests.
func NewGroqWithHTTPClient(cfg GroqConfig, httpClient *http.Client, log *zap.Logger) (*Groq, error) {
	g, err := NewGroq(cfg, log)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		g.httpClient = httpClient
	}
	return g, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	Temperature         float64       `json:"temperature"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
	TopP                float64       `json:"top_p"`
	Stream              bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Explain sends one batched request for all phrases.
func (g *Groq) Explain(ctx context.Context, text string, phrases []string) ([]Entry, error) {
	if len(phrases) == 0 {
		return nil, nil
	}
	content, err := g.complete(ctx, chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: explainSystemPrompt},
			{Role: "user", Content: explainUserPrompt(text, phrases)},
		},
		Temperature:         1,
		MaxCompletionTokens: 1024,
		TopP:                1,
	})
	if err != nil {
		return nil, err
	}
	entries, err := ParseExplanations(content)
	if err != nil {
		g.log.Warn("unparseable explanation response", zap.Int("phrases", len(phrases)), zap.Error(err))
		return nil, err
	}
	g.log.Debug("explained phrases", zap.Int("phrases", len(phrases)), zap.Int("entries", len(entries)))
	return entries, nil
}

// GenerateText asks for a short passage using every word.
func (g *Groq) GenerateText(ctx context.Context, words []Entry) (string, error) {
	prompt, err := generateUserPrompt(words)
	if err != nil {
		return "", err
	}
	content, err := g.complete(ctx, chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: generateSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:         0.8,
		MaxCompletionTokens: 512,
		TopP:                1,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func (g *Groq) complete(ctx context.Context, body chatRequest) (string, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+chatCompletionsPath, &buf)
	if err != nil {
		return "", &TransportError{Provider: "groq", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Provider: "groq", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return "", &TransportError{Provider: "groq", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &TransportError{Provider: "groq", Err: err}
	}
	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &ParseError{Raw: string(raw), Err: err}
	}
	if len(out.Choices) == 0 {
		return "", &ParseError{Raw: string(raw), Err: errors.New("no choices")}
	}
	return out.Choices[0].Message.Content, nil
}
