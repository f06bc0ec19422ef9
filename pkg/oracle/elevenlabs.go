package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	DefaultElevenLabsVoice   = "ghgFyr7gmpr57xyTgX9q"
	DefaultElevenLabsModel   = "eleven_multilingual_v2"
)

// ElevenLabsConfig configures the text-to-speech client.
type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string
	VoiceID string
	ModelID string
	Timeout time.Duration
}

// ElevenLabs synthesizes speech as audio/mpeg.
type ElevenLabs struct {
	cfg        ElevenLabsConfig
	httpClient *http.Client
	log        *zap.Logger
}

// NewElevenLabs builds a client. A nil httpClient uses a client with cfg.Timeout.
func NewElevenLabs(cfg ElevenLabsConfig, httpClient *http.Client, log *zap.Logger) (*ElevenLabs, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("elevenlabs: %w: api key required", ErrNotConfigured)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultElevenLabsBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultElevenLabsVoice
	}
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultElevenLabsModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ElevenLabs{cfg: cfg, httpClient: httpClient, log: log.Named("elevenlabs")}, nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize returns MPEG audio for text.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("elevenlabs: text is required")
	}
	body, err := json.Marshal(speechRequest{
		Text:          text,
		ModelID:       e.cfg.ModelID,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	})
	if err != nil {
		return nil, fmt.Errorf("encode speech request: %w", err)
	}

	endpoint := e.cfg.BaseURL + "/v1/text-to-speech/" + url.PathEscape(e.cfg.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Provider: "elevenlabs", Err: err}
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.cfg.APIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Provider: "elevenlabs", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		e.log.Warn("speech request failed", zap.Int("status", resp.StatusCode))
		return nil, &TransportError{Provider: "elevenlabs", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, &TransportError{Provider: "elevenlabs", Err: err}
	}
	return audio, nil
}
