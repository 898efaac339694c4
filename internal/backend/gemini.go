package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// Gemini calls the Generative Language API's generateContent endpoint.
// Image and audio payloads travel as inline base64 parts with an explicit
// mime type, so all three capabilities are natively supported.
type Gemini struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGemini builds an adapter for the hosted multimodal backend.
func NewGemini(apiKey, model, baseURL string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &Gemini{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}, nil
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature float64 `json:"temperature"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"system_instruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generation_config"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) Kind() Kind { return KindGemini }

func (g *Gemini) Supports(Capability) bool { return true }

func (g *Gemini) AnalyzeImage(ctx context.Context, data []byte, mime, prompt string) (Result, error) {
	return g.generate(ctx, []geminiPart{
		{Text: prompt},
		{InlineData: &geminiInlineData{MIMEType: mime, Data: base64.StdEncoding.EncodeToString(data)}},
	})
}

func (g *Gemini) AnalyzeAudio(ctx context.Context, data []byte, mime, prompt string) (Result, error) {
	return g.generate(ctx, []geminiPart{
		{Text: prompt},
		{InlineData: &geminiInlineData{MIMEType: mime, Data: base64.StdEncoding.EncodeToString(data)}},
	})
}

func (g *Gemini) Chat(ctx context.Context, text string) (Result, error) {
	return g.generate(ctx, []geminiPart{{Text: text}})
}

// generate performs the single outbound generateContent call and extracts
// the first candidate's text.
func (g *Gemini) generate(ctx context.Context, parts []geminiPart) (Result, error) {
	reqBody := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		Contents:          []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig:  geminiGenerationConfig{Temperature: defaultTemperature},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Result{}, fmt.Errorf("gemini: status %d: %s", resp.StatusCode, string(respBody))
	}

	var genResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return Result{}, fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return Result{}, fmt.Errorf("gemini: empty response")
	}
	return newResult(strings.TrimSpace(genResp.Candidates[0].Content.Parts[0].Text)), nil
}
