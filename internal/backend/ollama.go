package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Ollama talks to a local inference server. It has no vision or audio
// support; Supports reports that and the dispatcher substitutes a
// text-only fallback for image/audio requests.
type Ollama struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewOllama builds an adapter for the local backend. model may be empty
// until discovery selects one.
func NewOllama(baseURL, model string) *Ollama {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	return &Ollama{
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Model returns the currently selected model, empty if none.
func (o *Ollama) Model() string { return o.model }

// BaseURL returns the server address the adapter targets.
func (o *Ollama) BaseURL() string { return o.baseURL }

// WithModel returns a copy of the adapter bound to a different model.
func (o *Ollama) WithModel(model string) *Ollama {
	clone := *o
	clone.model = model
	return &clone
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (o *Ollama) Kind() Kind { return KindOllama }

func (o *Ollama) Supports(c Capability) bool { return c == CapabilityChat }

func (o *Ollama) AnalyzeImage(ctx context.Context, _ []byte, _, prompt string) (Result, error) {
	return o.Chat(ctx, prompt)
}

func (o *Ollama) AnalyzeAudio(ctx context.Context, _ []byte, _, prompt string) (Result, error) {
	return o.Chat(ctx, prompt)
}

func (o *Ollama) Chat(ctx context.Context, text string) (Result, error) {
	reqBody := ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  text,
		System:  systemPrompt,
		Stream:  false,
		Options: ollamaOptions{Temperature: defaultTemperature},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Result{}, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(respBody))
	}

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return Result{}, fmt.Errorf("ollama: decode response: %w", err)
	}
	return newResult(strings.TrimSpace(genResp.Response)), nil
}

// ListModels queries the server's tag catalog. Transport failures
// propagate; discovery decides whether to swallow them.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: status %d from /api/tags", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("ollama: decode tags: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
