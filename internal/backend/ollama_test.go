package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ollamaStub(t *testing.T, models []string, response string, capture *ollamaGenerateRequest) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		entries := make([]map[string]string, 0, len(models))
		for _, m := range models {
			entries = append(entries, map[string]string{"name": m})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"models": entries})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"response": response})
	})
	return httptest.NewServer(mux)
}

func TestOllamaSupportsOnlyChat(t *testing.T) {
	o := NewOllama("", "llama3.2")
	assert.True(t, o.Supports(CapabilityChat))
	assert.False(t, o.Supports(CapabilityImage))
	assert.False(t, o.Supports(CapabilityAudio))
}

func TestOllamaChat(t *testing.T) {
	var got ollamaGenerateRequest
	srv := ollamaStub(t, nil, "  hi from local  ", &got)
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3.2")
	res, err := o.Chat(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi from local", res.Text)

	assert.Equal(t, "llama3.2", got.Model)
	assert.Equal(t, "hello", got.Prompt)
	assert.Equal(t, systemPrompt, got.System)
	assert.False(t, got.Stream)
	assert.InDelta(t, defaultTemperature, got.Options.Temperature, 0.001)
}

func TestOllamaListModels(t *testing.T) {
	srv := ollamaStub(t, []string{"llama3.2", "mistral"}, "", nil)
	defer srv.Close()

	o := NewOllama(srv.URL, "")
	models, err := o.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2", "mistral"}, models)
}

func TestOllamaListModelsUnreachable(t *testing.T) {
	o := NewOllama("http://127.0.0.1:1", "")
	_, err := o.ListModels(context.Background())
	assert.Error(t, err, "transport failures propagate; discovery decides what to swallow")
}

func TestOllamaWithModel(t *testing.T) {
	o := NewOllama("http://localhost:11434", "llama3.2")
	clone := o.WithModel("mistral")
	assert.Equal(t, "mistral", clone.Model())
	assert.Equal(t, "llama3.2", o.Model(), "original adapter unchanged")
	assert.Equal(t, o.BaseURL(), clone.BaseURL())
}

func TestOllamaGenerateErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "missing")
	_, err := o.Chat(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
