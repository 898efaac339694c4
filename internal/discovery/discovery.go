// Package discovery finds and verifies usable models on the local
// inference server.
package discovery

import (
	"context"
	"log/slog"

	"assistant-core/internal/backend"
)

// Service drives the list -> select -> verify cycle for one Ollama server.
type Service struct {
	ollama *backend.Ollama
	log    *slog.Logger
}

func New(ollama *backend.Ollama, log *slog.Logger) *Service {
	return &Service{ollama: ollama, log: log}
}

// List returns the models the server advertises. Transport failures are
// swallowed into an empty list: callers treat "no models" and "server
// unreachable" identically.
func (s *Service) List(ctx context.Context) []string {
	models, err := s.ollama.ListModels(ctx)
	if err != nil {
		s.log.Debug("model discovery failed", "url", s.ollama.BaseURL(), "err", err)
		return nil
	}
	return models
}

// Select picks preferred if the server has it, otherwise the first
// advertised model. ok is false when nothing is available.
func (s *Service) Select(ctx context.Context, preferred string) (model string, ok bool) {
	models := s.List(ctx)
	if len(models) == 0 {
		return "", false
	}
	for _, m := range models {
		if m == preferred {
			return preferred, true
		}
	}
	return models[0], true
}

// Verify issues one minimal generation against the model to confirm it
// actually answers.
func (s *Service) Verify(ctx context.Context, model string) error {
	_, err := s.ollama.WithModel(model).Chat(ctx, "ping")
	return err
}

// Resolve runs the full cycle: select a model and verify it, falling back
// once to the first other advertised model on verification failure.
// ok=false means the session should sit in degraded status; that alone is
// not an error until a request is attempted.
func (s *Service) Resolve(ctx context.Context, preferred string) (model string, ok bool) {
	candidate, found := s.Select(ctx, preferred)
	if !found {
		return "", false
	}
	if err := s.Verify(ctx, candidate); err == nil {
		return candidate, true
	} else {
		s.log.Warn("model failed verification", "model", candidate, "err", err)
	}

	for _, m := range s.List(ctx) {
		if m == candidate {
			continue
		}
		if err := s.Verify(ctx, m); err == nil {
			return m, true
		}
		// One fallback attempt only.
		break
	}
	return "", false
}
