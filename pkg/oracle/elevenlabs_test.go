package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElevenLabs_Synthesize(t *testing.T) {
	audio := []byte{0xff, 0xfb, 0x90, 0x00}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/"+DefaultElevenLabsVoice, r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))

		var req speechRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Hund", req.Text)
		assert.Equal(t, DefaultElevenLabsModel, req.ModelID)
		assert.InDelta(t, 0.75, req.VoiceSettings.SimilarityBoost, 0.001)

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(audio)
	}))
	defer srv.Close()

	e, err := NewElevenLabs(ElevenLabsConfig{APIKey: "secret", BaseURL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)
	got, err := e.Synthesize(context.Background(), "Hund")
	require.NoError(t, err)
	assert.Equal(t, audio, got)
}

func TestElevenLabs_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"quota exceeded"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	e, err := NewElevenLabs(ElevenLabsConfig{APIKey: "secret", BaseURL: srv.URL, VoiceID: "voice"}, nil, nil)
	require.NoError(t, err)

	_, err = e.Synthesize(context.Background(), "Hund")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnauthorized, te.StatusCode)
	assert.Contains(t, te.Body, "quota exceeded")

	_, err = e.Synthesize(context.Background(), "  ")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrTransport)
}

func TestNewElevenLabs_RequiresKey(t *testing.T) {
	_, err := NewElevenLabs(ElevenLabsConfig{}, nil, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
