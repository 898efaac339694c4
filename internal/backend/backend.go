// Package backend defines the adapter contract shared by the three AI
// backends (Gemini, OpenAI, Ollama) and the request/result types that
// flow through them.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Kind identifies one of the supported backends.
type Kind string

const (
	KindGemini Kind = "gemini" // hosted multimodal
	KindOpenAI Kind = "openai" // hosted chat completion
	KindOllama Kind = "ollama" // local inference
)

// ParseKind converts a config string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindGemini, KindOpenAI, KindOllama:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown backend kind: %q", s)
	}
}

// Hosted reports whether the kind is a cloud backend requiring a credential.
func (k Kind) Hosted() bool {
	return k == KindGemini || k == KindOpenAI
}

// Capability is the operation family a request belongs to.
type Capability string

const (
	CapabilityImage Capability = "image"
	CapabilityAudio Capability = "audio"
	CapabilityChat  Capability = "chat"
)

// DefaultModels per kind, applied when Config.Model is empty.
const (
	DefaultGeminiModel = "gemini-2.0-flash"
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultOllamaURL   = "http://localhost:11434"
)

// systemPrompt is the fixed assistant instruction prepended to every
// request. Adapters may change how it is transported, never its content.
const systemPrompt = "You are a helpful desktop assistant. Answer concisely and directly."

// defaultTemperature is a conservative conversational setting used by all
// backends, except models that reject the parameter (see omitsTemperature).
const defaultTemperature = 0.7

// Config carries the per-kind settings supplied by the caller.
// APIKey is required for hosted kinds; BaseURL is only meaningful for
// Ollama (and for pointing hosted adapters at stubs in tests).
type Config struct {
	APIKey  string
	Model   string `validate:"omitempty,printascii"`
	BaseURL string `validate:"omitempty,url"`
}

var validate = validator.New()

// ValidateConfig checks a config against its kind and fills in defaults.
// A hosted kind without a credential is rejected here, never deferred to
// the first request.
func ValidateConfig(kind Kind, cfg Config) (Config, error) {
	if kind.Hosted() && cfg.APIKey == "" {
		return Config{}, fmt.Errorf("%s backend requires an API key", kind)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid %s config: %w", kind, err)
	}
	switch kind {
	case KindGemini:
		if cfg.Model == "" {
			cfg.Model = DefaultGeminiModel
		}
	case KindOpenAI:
		if cfg.Model == "" {
			cfg.Model = DefaultOpenAIModel
		}
	case KindOllama:
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultOllamaURL
		}
	}
	return cfg, nil
}

// Request is the tagged union of the three analysis shapes. It carries no
// backend identity; the session supplies that at dispatch time.
type Request interface {
	Capability() Capability
}

// ImageBytes is a raw image payload with its mime type and a user prompt.
type ImageBytes struct {
	Data   []byte
	MIME   string
	Prompt string
}

// AudioBytes is a raw audio payload with its mime type and a user prompt.
type AudioBytes struct {
	Data   []byte
	MIME   string
	Prompt string
}

// ChatText is a plain text request.
type ChatText struct {
	Text string
}

func (ImageBytes) Capability() Capability { return CapabilityImage }
func (AudioBytes) Capability() Capability { return CapabilityAudio }
func (ChatText) Capability() Capability   { return CapabilityChat }

// Result is the uniform outcome of any analysis, regardless of backend.
// Degraded marks best-effort answers produced without native support for
// the requested capability (e.g. a text-only take on an image).
type Result struct {
	Text       string
	Degraded   bool
	ProducedAt time.Time
}

func newResult(text string) Result {
	return Result{Text: text, ProducedAt: time.Now()}
}

// Adapter is the contract every backend implements. Each method performs
// exactly one outbound call, honors ctx cancellation, and returns raw
// errors untouched; classification happens in one place downstream.
type Adapter interface {
	Kind() Kind
	Supports(c Capability) bool
	AnalyzeImage(ctx context.Context, data []byte, mime, prompt string) (Result, error)
	AnalyzeAudio(ctx context.Context, data []byte, mime, prompt string) (Result, error)
	Chat(ctx context.Context, text string) (Result, error)
}
