package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
	})
	require.NoError(t, err)
}

func TestGroq_Explain(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, chatCompletionsPath, r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultGroqModel, req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Contains(t, req.Messages[1].Content, "Text: Der Hund läuft schnell.")
		assert.Contains(t, req.Messages[1].Content, "- Hund\n- läuft")

		chatReply(t, w, "```json\n"+sampleResponse+"\n```")
	}))
	defer srv.Close()

	g, err := NewGroq(GroqConfig{APIKey: "test-key", BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	entries, err := g.Explain(context.Background(), "Der Hund läuft schnell.", []string{"Hund", "läuft"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "runs", entries[1].Explanation.Meaning)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGroq_ExplainNoPhrases(t *testing.T) {
	g, err := NewGroq(GroqConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1"}, nil)
	require.NoError(t, err)
	entries, err := g.Explain(context.Background(), "text", nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGroq_Errors(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		transport bool
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
			},
			transport: true,
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>oops</html>"))
			},
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[]}`))
			},
		},
		{
			name: "prose instead of array",
			handler: func(w http.ResponseWriter, r *http.Request) {
				chatReply(t, w, "I am not sure what you mean.")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			g, err := NewGroq(GroqConfig{APIKey: "k", BaseURL: srv.URL}, nil)
			require.NoError(t, err)
			_, err = g.Explain(context.Background(), "text", []string{"a"})
			require.Error(t, err)
			if tt.transport {
				assert.ErrorIs(t, err, ErrTransport)
				var te *TransportError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
			} else {
				assert.ErrorIs(t, err, ErrParse)
			}
		})
	}
}

func TestGroq_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g, err := NewGroq(GroqConfig{APIKey: "k", BaseURL: url}, nil)
	require.NoError(t, err)
	_, err = g.Explain(context.Background(), "text", []string{"a"})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestGroq_GenerateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.InDelta(t, 0.8, req.Temperature, 0.001)
		assert.Equal(t, 512, req.MaxCompletionTokens)

		var words []Entry
		require.NoError(t, json.Unmarshal([]byte(req.Messages[1].Content), &words))
		require.Len(t, words, 1)
		assert.Equal(t, "Hund", words[0].Phrase)

		chatReply(t, w, "\n  Der Hund spielt im Garten.  \n")
	}))
	defer srv.Close()

	g, err := NewGroq(GroqConfig{APIKey: "k", BaseURL: srv.URL + "/"}, nil)
	require.NoError(t, err)
	text, err := g.GenerateText(context.Background(), []Entry{{Phrase: "Hund"}})
	require.NoError(t, err)
	assert.Equal(t, "Der Hund spielt im Garten.", text)
}

func TestNewGroq_RequiresKey(t *testing.T) {
	_, err := NewGroq(GroqConfig{APIKey: "  "}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.True(t, strings.HasPrefix(err.Error(), "groq"))
}
