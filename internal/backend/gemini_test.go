package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiStub(t *testing.T, status int, text string, capture *geminiRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
			return
		}
		resp := map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini("", "", "")
	assert.Error(t, err)
}

func TestGeminiChat(t *testing.T) {
	var got geminiRequest
	srv := geminiStub(t, http.StatusOK, "hello there", &got)
	defer srv.Close()

	g, err := NewGemini("key", "gemini-2.0-flash", srv.URL)
	require.NoError(t, err)

	res, err := g.Chat(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", res.Text)
	assert.False(t, res.Degraded)
	assert.False(t, res.ProducedAt.IsZero())

	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, systemPrompt, got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 1)
	assert.Equal(t, "hi", got.Contents[0].Parts[0].Text)
	assert.InDelta(t, defaultTemperature, got.GenerationConfig.Temperature, 0.001)
}

func TestGeminiAnalyzeImageInlinesData(t *testing.T) {
	var got geminiRequest
	srv := geminiStub(t, http.StatusOK, "a cat", &got)
	defer srv.Close()

	g, err := NewGemini("key", "", srv.URL)
	require.NoError(t, err)

	raw := []byte{0x89, 0x50, 0x4e, 0x47}
	res, err := g.AnalyzeImage(context.Background(), raw, "image/png", "what is this?")
	require.NoError(t, err)
	assert.Equal(t, "a cat", res.Text)

	parts := got.Contents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "what is this?", parts[0].Text)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/png", parts[1].InlineData.MIMEType)
	decoded, err := base64.StdEncoding.DecodeString(parts[1].InlineData.Data)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestGeminiSendsKeyHeaderAndModelPath(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "ok"}}}},
			},
		})
	}))
	defer srv.Close()

	g, err := NewGemini("secret", "gemini-2.0-flash", srv.URL)
	require.NoError(t, err)
	_, err = g.Chat(context.Background(), "ping")
	require.NoError(t, err)

	assert.Equal(t, "secret", gotKey)
	assert.True(t, strings.HasSuffix(gotPath, "/v1beta/models/gemini-2.0-flash:generateContent"), gotPath)
}

func TestGeminiErrorCarriesStatus(t *testing.T) {
	srv := geminiStub(t, http.StatusTooManyRequests, "", nil)
	defer srv.Close()

	g, err := NewGemini("key", "", srv.URL)
	require.NoError(t, err)

	_, err = g.Chat(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGeminiEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer srv.Close()

	g, err := NewGemini("key", "", srv.URL)
	require.NoError(t, err)
	_, err = g.Chat(context.Background(), "hi")
	assert.ErrorContains(t, err, "empty response")
}
