// Package session holds the live routing state of the assistant: which
// backend is active, its resolved configuration, and the dispatcher that
// routes analysis requests through it.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"assistant-core/internal/backend"
	"assistant-core/internal/classify"
	"assistant-core/internal/discovery"
)

// Status is the initialization state of the session.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusReady         Status = "ready"
	// StatusDegraded means the local backend was constructed but no model
	// could be auto-selected yet. Requests fail until discovery succeeds.
	StatusDegraded Status = "degraded"
)

// Session is the single mutable entity of the routing core. Exactly one
// exists per running assistant; it is mutated only by SwitchTo, never
// implicitly during a request.
type Session struct {
	mu      sync.RWMutex
	kind    backend.Kind
	cfg     backend.Config
	status  Status
	adapter backend.Adapter
	disco   *discovery.Service

	log *slog.Logger
}

// Info is a read-only view of the session for status reporting.
type Info struct {
	Kind   backend.Kind `json:"kind"`
	Model  string       `json:"model"`
	Status Status       `json:"status"`
}

// New constructs the session from initial configuration. Hosted kinds go
// straight to ready once the config validates; the local kind runs a
// discovery/verify cycle and may come up degraded.
func New(ctx context.Context, kind backend.Kind, cfg backend.Config, log *slog.Logger) (*Session, error) {
	s := &Session{status: StatusUninitialized, log: log}
	st, err := s.build(ctx, kind, cfg)
	if err != nil {
		return nil, err
	}
	s.apply(st)
	return s, nil
}

// state is everything SwitchTo replaces in one shot, so a request dispatch
// observes either the pre-switch or post-switch session, never a mix.
type state struct {
	kind    backend.Kind
	cfg     backend.Config
	status  Status
	adapter backend.Adapter
	disco   *discovery.Service
}

// build resolves config into a full replacement state. It performs all
// validation and discovery before anything is published to readers.
func (s *Session) build(ctx context.Context, kind backend.Kind, cfg backend.Config) (state, error) {
	resolved, err := backend.ValidateConfig(kind, cfg)
	if err != nil {
		return state{}, classify.Constructionf(err, "%v", err)
	}

	st := state{kind: kind, cfg: resolved, status: StatusReady}
	switch kind {
	case backend.KindGemini:
		ad, err := backend.NewGemini(resolved.APIKey, resolved.Model, resolved.BaseURL)
		if err != nil {
			return state{}, classify.Constructionf(err, "%v", err)
		}
		st.adapter = ad
	case backend.KindOpenAI:
		ad, err := backend.NewOpenAI(resolved.APIKey, resolved.Model, resolved.BaseURL)
		if err != nil {
			return state{}, classify.Constructionf(err, "%v", err)
		}
		st.adapter = ad
	case backend.KindOllama:
		ollama := backend.NewOllama(resolved.BaseURL, resolved.Model)
		st.disco = discovery.New(ollama, s.log)
		model, ok := st.disco.Resolve(ctx, resolved.Model)
		if !ok {
			// Discovery failure alone must not block construction; the
			// session sits degraded until a later cycle succeeds.
			st.status = StatusDegraded
			st.cfg.Model = ""
			st.adapter = ollama.WithModel("")
			s.log.Warn("no usable local model found", "url", resolved.BaseURL)
			break
		}
		st.cfg.Model = model
		st.adapter = ollama.WithModel(model)
	default:
		return state{}, classify.Constructionf(nil, "unknown backend kind: %q", kind)
	}
	return st, nil
}

func (s *Session) apply(st state) {
	s.mu.Lock()
	s.kind = st.kind
	s.cfg = st.cfg
	s.status = st.status
	s.adapter = st.adapter
	s.disco = st.disco
	s.mu.Unlock()
}

func (s *Session) snapshot() state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return state{kind: s.kind, cfg: s.cfg, status: s.status, adapter: s.adapter, disco: s.disco}
}

// SwitchTo re-targets the session at another backend. The new state is
// built completely (including discovery for the local kind) before the
// swap, which is atomic with respect to concurrent Perform calls.
func (s *Session) SwitchTo(ctx context.Context, kind backend.Kind, cfg backend.Config) error {
	st, err := s.build(ctx, kind, cfg)
	if err != nil {
		return err
	}
	s.apply(st)
	s.log.Info("switched backend", "kind", kind, "model", st.cfg.Model, "status", st.status)
	return nil
}

// Retry re-runs discovery for a degraded local session. It is the only
// path from degraded back to ready.
func (s *Session) Retry(ctx context.Context) error {
	st := s.snapshot()
	if st.kind != backend.KindOllama {
		return nil
	}
	return s.SwitchTo(ctx, st.kind, backend.Config{BaseURL: st.cfg.BaseURL})
}

// Describe returns the current kind, model and status.
func (s *Session) Describe() Info {
	st := s.snapshot()
	return Info{Kind: st.kind, Model: st.cfg.Model, Status: st.status}
}

// ListAvailableModels returns the local server's catalog. Hosted kinds
// have no discoverable catalog here and return an empty list.
func (s *Session) ListAvailableModels(ctx context.Context) []string {
	st := s.snapshot()
	if st.disco == nil {
		return []string{}
	}
	models := st.disco.List(ctx)
	if models == nil {
		return []string{}
	}
	return models
}

// ConnStatus is the outcome of a connection test.
type ConnStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// TestConnection issues one minimal round-trip to the active backend to
// confirm reachability and credential validity.
func (s *Session) TestConnection(ctx context.Context) ConnStatus {
	st := s.snapshot()
	if st.kind == backend.KindOllama {
		ollama, ok := st.adapter.(*backend.Ollama)
		if ok {
			if _, err := ollama.ListModels(ctx); err != nil {
				return ConnStatus{Error: classify.Classify(err).Message}
			}
			return ConnStatus{OK: true}
		}
	}
	if _, err := st.adapter.Chat(ctx, "ping"); err != nil {
		return ConnStatus{Error: classify.Classify(err).Message}
	}
	return ConnStatus{OK: true}
}

func fallbackPrompt(c backend.Capability, mime, prompt string) string {
	what := "an image"
	if c == backend.CapabilityAudio {
		what = "an audio recording"
	}
	if prompt == "" {
		prompt = "Help the user with whatever they captured."
	}
	return fmt.Sprintf("The user captured %s (%s), but the active local model is text-only and cannot "+
		"inspect it. Give the most useful text-only answer you can to the request below.\n\nRequest: %s",
		what, mime, prompt)
}
