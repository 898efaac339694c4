package session

import (
	"context"
	"fmt"
	"time"

	"assistant-core/internal/backend"
	"assistant-core/internal/classify"
)

// Perform is the single analysis entry point. It resolves the adapter for
// the active backend, enforces capability support before any network
// call, invokes the adapter, and normalizes failures through the
// classifier. Retry policy belongs to the caller.
func (s *Session) Perform(ctx context.Context, req backend.Request) (backend.Result, error) {
	st := s.snapshot()
	capability := req.Capability()
	start := time.Now()

	// A degraded local session has no model to run; fail locally with the
	// endpoint in the message instead of issuing a doomed call.
	if st.kind == backend.KindOllama && st.cfg.Model == "" {
		return backend.Result{}, &classify.Error{
			Kind:    classify.Unavailable,
			Message: fmt.Sprintf("no local model available at %s", st.cfg.BaseURL),
		}
	}

	if !st.adapter.Supports(capability) {
		res, err, handled := s.localFallback(ctx, st, req)
		if handled {
			s.observe(st, capability, start, err, true)
			return res, err
		}
		return backend.Result{}, classify.Unsupportedf("%s backend does not support %s requests", st.kind, capability)
	}

	var (
		res backend.Result
		err error
	)
	switch r := req.(type) {
	case backend.ImageBytes:
		res, err = st.adapter.AnalyzeImage(ctx, r.Data, r.MIME, r.Prompt)
	case backend.AudioBytes:
		res, err = st.adapter.AnalyzeAudio(ctx, r.Data, r.MIME, r.Prompt)
	case backend.ChatText:
		res, err = st.adapter.Chat(ctx, r.Text)
	default:
		return backend.Result{}, classify.Unsupportedf("unrecognized request type %T", req)
	}
	s.observe(st, capability, start, err, false)
	if err != nil {
		return backend.Result{}, classify.Classify(err)
	}
	return res, nil
}

// localFallback handles image/audio requests against the text-only local
// backend: a documented degraded text response, not an error. handled is
// false when the request has no fallback and must be rejected as
// unsupported.
func (s *Session) localFallback(ctx context.Context, st state, req backend.Request) (backend.Result, error, bool) {
	if st.kind != backend.KindOllama {
		return backend.Result{}, nil, false
	}
	var mime, prompt string
	switch r := req.(type) {
	case backend.ImageBytes:
		mime, prompt = r.MIME, r.Prompt
	case backend.AudioBytes:
		mime, prompt = r.MIME, r.Prompt
	default:
		return backend.Result{}, nil, false
	}
	res, err := st.adapter.Chat(ctx, fallbackPrompt(req.Capability(), mime, prompt))
	if err != nil {
		return backend.Result{}, classify.Classify(err), true
	}
	res.Degraded = true
	return res, nil, true
}

func (s *Session) observe(st state, capability backend.Capability, start time.Time, err error, degraded bool) {
	attrs := []any{
		"kind", st.kind,
		"model", st.cfg.Model,
		"capability", capability,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if degraded {
		attrs = append(attrs, "degraded", true)
	}
	if err != nil {
		s.log.Warn("analysis failed", append(attrs, "err", err)...)
		return
	}
	s.log.Info("analysis complete", attrs...)
}
