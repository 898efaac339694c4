package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, valid := range []string{"gemini", "openai", "ollama"} {
		k, err := ParseKind(valid)
		require.NoError(t, err)
		assert.Equal(t, Kind(valid), k)
	}

	_, err := ParseKind("claude")
	assert.Error(t, err)
	_, err = ParseKind("")
	assert.Error(t, err)
}

func TestValidateConfigHostedRequiresKey(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		cfg     Config
		wantErr bool
	}{
		{"gemini with key", KindGemini, Config{APIKey: "k"}, false},
		{"gemini without key", KindGemini, Config{}, true},
		{"openai with key", KindOpenAI, Config{APIKey: "k"}, false},
		{"openai without key", KindOpenAI, Config{}, true},
		{"ollama without key", KindOllama, Config{}, false},
		{"bad base url", KindOllama, Config{BaseURL: "not a url"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateConfig(tt.kind, tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateConfigDefaults(t *testing.T) {
	cfg, err := ValidateConfig(KindGemini, Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultGeminiModel, cfg.Model)

	cfg, err = ValidateConfig(KindOpenAI, Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIModel, cfg.Model)

	cfg, err = ValidateConfig(KindOllama, Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultOllamaURL, cfg.BaseURL)
	assert.Empty(t, cfg.Model, "ollama model stays empty until discovery")
}

func TestValidateConfigKeepsExplicitValues(t *testing.T) {
	cfg, err := ValidateConfig(KindOpenAI, Config{APIKey: "k", Model: "gpt-4.1"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", cfg.Model)
}

func TestRequestCapabilities(t *testing.T) {
	assert.Equal(t, CapabilityImage, ImageBytes{}.Capability())
	assert.Equal(t, CapabilityAudio, AudioBytes{}.Capability())
	assert.Equal(t, CapabilityChat, ChatText{}.Capability())
}

func TestKindHosted(t *testing.T) {
	assert.True(t, KindGemini.Hosted())
	assert.True(t, KindOpenAI.Hosted())
	assert.False(t, KindOllama.Hosted())
}
