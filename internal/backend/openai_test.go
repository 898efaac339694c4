package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openaiStub captures the raw chat-completion request body and replies
// with a single choice.
func openaiStub(t *testing.T, status int, content string, capture *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}))
}

func TestOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI("", "", "")
	assert.Error(t, err)
}

func TestOpenAIChat(t *testing.T) {
	var got map[string]any
	srv := openaiStub(t, http.StatusOK, "hi", &got)
	defer srv.Close()

	c, err := NewOpenAI("key", "gpt-4o-mini", srv.URL)
	require.NoError(t, err)

	res, err := c.Chat(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Text)

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	sys := msgs[0].(map[string]any)
	assert.Equal(t, "system", sys["role"])
	assert.Equal(t, systemPrompt, sys["content"])

	// Conversational default temperature is sent for regular models.
	assert.InDelta(t, defaultTemperature, got["temperature"].(float64), 0.001)
}

func TestOpenAITemperatureOmittedForReasoningModels(t *testing.T) {
	var got map[string]any
	srv := openaiStub(t, http.StatusOK, "ok", &got)
	defer srv.Close()

	c, err := NewOpenAI("key", "o1-mini", srv.URL)
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), "hello")
	require.NoError(t, err)

	_, present := got["temperature"]
	assert.False(t, present, "temperature must be absent for o-series models, not defaulted")
}

func TestOmitsTemperature(t *testing.T) {
	tests := []struct {
		model string
		omit  bool
	}{
		{"gpt-4o-mini", false},
		{"gpt-4.1", false},
		{"o1-mini", true},
		{"o3", true},
		{"O4-mini", true},
		{"gpt-5-mini", true},
		{"gpt-5-nano", true},
		{"gpt-5", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.omit, omitsTemperature(tt.model))
		})
	}
}

func TestOpenAIAnalyzeImageUsesDataURL(t *testing.T) {
	var got map[string]any
	srv := openaiStub(t, http.StatusOK, "a dog", &got)
	defer srv.Close()

	c, err := NewOpenAI("key", "gpt-4o-mini", srv.URL)
	require.NoError(t, err)

	res, err := c.AnalyzeImage(context.Background(), []byte{1, 2, 3}, "image/jpeg", "what is this?")
	require.NoError(t, err)
	assert.Equal(t, "a dog", res.Text)
	assert.False(t, res.Degraded)

	msgs := got["messages"].([]any)
	user := msgs[1].(map[string]any)
	parts := user["content"].([]any)
	require.Len(t, parts, 2)
	img := parts[1].(map[string]any)
	assert.Equal(t, "image_url", img["type"])
	url := img["image_url"].(map[string]any)["url"].(string)
	assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"), url)
}

func TestOpenAIAnalyzeAudioDegrades(t *testing.T) {
	var got map[string]any
	srv := openaiStub(t, http.StatusOK, "best effort", &got)
	defer srv.Close()

	c, err := NewOpenAI("key", "gpt-4o-mini", srv.URL)
	require.NoError(t, err)

	res, err := c.AnalyzeAudio(context.Background(), []byte{1}, "audio/wav", "transcribe this")
	require.NoError(t, err)
	assert.True(t, res.Degraded, "audio has no native support and must be marked degraded")
	assert.Equal(t, "best effort", res.Text)

	// The audio bytes never travel; a text note does.
	msgs := got["messages"].([]any)
	user := msgs[1].(map[string]any)
	note := user["content"].(string)
	assert.Contains(t, note, "audio/wav")
	assert.Contains(t, note, "transcribe this")
}

func TestOpenAIRateLimitSurfacesRaw(t *testing.T) {
	srv := openaiStub(t, http.StatusTooManyRequests, "", nil)
	defer srv.Close()

	c, err := NewOpenAI("key", "gpt-4o-mini", srv.URL)
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
