package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"assistant-core/internal/app"
	"assistant-core/internal/backend"
	"assistant-core/internal/cache"
	"assistant-core/internal/classify"
	"assistant-core/internal/events"
	"assistant-core/internal/httputil"
	"assistant-core/internal/session"
	"assistant-core/internal/store"
)

func main() {
	ctx := context.Background()
	deps, err := app.Build(ctx)
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}

	srv := &server{
		log:      deps.Log,
		core:     deps.Session,
		store:    deps.Store,
		cache:    deps.Cache,
		events:   deps.Events,
		cacheTTL: deps.CacheTTL,
	}
	r := httputil.NewRouter(deps.Log)
	srv.routes(r)

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	httpSrv := &http.Server{Addr: addr, Handler: r}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps.Log.Info("assistantd listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		select {
		case <-stop:
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("assistantd stopped", "err", err)
	}
}

// core is the slice of session behavior the handlers need; tests swap in
// a fake.
type core interface {
	Perform(ctx context.Context, req backend.Request) (backend.Result, error)
	SwitchTo(ctx context.Context, kind backend.Kind, cfg backend.Config) error
	Retry(ctx context.Context) error
	Describe() session.Info
	ListAvailableModels(ctx context.Context) []string
	TestConnection(ctx context.Context) session.ConnStatus
}

type server struct {
	log      *slog.Logger
	core     core
	store    store.Store // nil when history persistence is disabled
	cache    cache.Cache
	events   events.Publisher
	cacheTTL time.Duration
}

func (s *server) routes(r chi.Router) {
	r.Post("/api/chat", s.chatHandler())
	r.Post("/api/analyze/image", s.analyzeHandler(backend.CapabilityImage))
	r.Post("/api/analyze/audio", s.analyzeHandler(backend.CapabilityAudio))
	r.Get("/api/backend", s.backendStatusHandler())
	r.Post("/api/backend", s.switchHandler())
	r.Post("/api/backend/retry", s.retryHandler())
	r.Get("/api/models", s.modelsHandler())
	r.Get("/api/test-connection", s.testConnectionHandler())
	r.Get("/api/history", s.historyHandler())
	r.Get("/healthz", httputil.HealthHandler(s.log))
}

type chatRequest struct {
	Text string `json:"text"`
}

type analyzeRequest struct {
	Data   string `json:"data_base64"`
	MIME   string `json:"mime_type"`
	Prompt string `json:"prompt"`
}

type analysisResponse struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Degraded   bool      `json:"degraded,omitempty"`
	ProducedAt time.Time `json:"produced_at"`
}

func (s *server) chatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
			httputil.Fail(s.log, w, "text is required", err, http.StatusBadRequest)
			return
		}

		info := s.core.Describe()
		key := cache.Key(string(info.Kind), info.Model, req.Text)
		if hit, err := s.cache.GetAnswer(r.Context(), key); err != nil {
			s.log.Warn("cache lookup failed", "err", err)
		} else if hit != nil {
			httputil.WriteJSON(w, http.StatusOK, analysisResponse{
				ID:         uuid.New().String(),
				Text:       hit.Text,
				Degraded:   hit.Degraded,
				ProducedAt: time.Now(),
			})
			return
		}

		start := time.Now()
		res, err := s.core.Perform(r.Context(), backend.ChatText{Text: req.Text})
		if err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.cache.SetAnswer(r.Context(), key, &cache.Answer{Text: res.Text, Degraded: res.Degraded}, s.cacheTTL); err != nil {
			s.log.Warn("cache store failed", "err", err)
		}
		s.finish(r.Context(), w, backend.CapabilityChat, req.Text, res, time.Since(start))
	}
}

func (s *server) analyzeHandler(capability backend.Capability) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(s.log, w, "invalid request body", err, http.StatusBadRequest)
			return
		}
		data, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil || len(data) == 0 {
			httputil.Fail(s.log, w, "data_base64 is required and must be valid base64", err, http.StatusBadRequest)
			return
		}
		if req.MIME == "" {
			httputil.Fail(s.log, w, "mime_type is required", nil, http.StatusBadRequest)
			return
		}

		var analysisReq backend.Request
		if capability == backend.CapabilityImage {
			analysisReq = backend.ImageBytes{Data: data, MIME: req.MIME, Prompt: req.Prompt}
		} else {
			analysisReq = backend.AudioBytes{Data: data, MIME: req.MIME, Prompt: req.Prompt}
		}

		start := time.Now()
		res, err := s.core.Perform(r.Context(), analysisReq)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.finish(r.Context(), w, capability, req.Prompt, res, time.Since(start))
	}
}

// finish persists the record, emits the completion event, and writes the
// uniform response. Persistence and events are best-effort; the analysis
// already succeeded.
func (s *server) finish(ctx context.Context, w http.ResponseWriter, capability backend.Capability, prompt string, res backend.Result, elapsed time.Duration) {
	info := s.core.Describe()
	rec := store.Record{
		ID:         uuid.New(),
		Backend:    string(info.Kind),
		Model:      info.Model,
		Capability: string(capability),
		Prompt:     prompt,
		Response:   res.Text,
		Degraded:   res.Degraded,
		LatencyMS:  elapsed.Milliseconds(),
		CreatedAt:  res.ProducedAt,
	}
	if s.store != nil {
		if _, err := s.store.SaveRecord(ctx, rec); err != nil {
			s.log.Warn("failed to save analysis record", "err", err)
		}
	}
	ev := events.AnalysisCompleted{
		ID:         rec.ID,
		Backend:    rec.Backend,
		Capability: rec.Capability,
		Degraded:   rec.Degraded,
		LatencyMS:  rec.LatencyMS,
		At:         res.ProducedAt,
	}
	if err := events.PublishWithRetry(ctx, s.events, ev, 3, 100*time.Millisecond); err != nil {
		s.log.Warn("failed to publish analysis event", "err", err)
	}

	httputil.WriteJSON(w, http.StatusOK, analysisResponse{
		ID:         rec.ID.String(),
		Text:       res.Text,
		Degraded:   res.Degraded,
		ProducedAt: res.ProducedAt,
	})
}

type switchRequest struct {
	Kind    string `json:"kind"`
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

func (s *server) switchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req switchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(s.log, w, "invalid request body", err, http.StatusBadRequest)
			return
		}
		kind, err := backend.ParseKind(req.Kind)
		if err != nil {
			httputil.Fail(s.log, w, err.Error(), err, http.StatusBadRequest)
			return
		}
		cfg := backend.Config{APIKey: req.APIKey, Model: req.Model, BaseURL: req.BaseURL}
		if err := s.core.SwitchTo(r.Context(), kind, cfg); err != nil {
			s.writeError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, s.core.Describe())
	}
}

func (s *server) retryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.core.Retry(r.Context()); err != nil {
			s.writeError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, s.core.Describe())
	}
}

func (s *server) backendStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, s.core.Describe())
	}
}

func (s *server) modelsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"models": s.core.ListAvailableModels(r.Context()),
		})
	}
}

func (s *server) testConnectionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, s.core.TestConnection(r.Context()))
	}
}

func (s *server) historyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.store == nil {
			httputil.Fail(s.log, w, "history persistence is not configured", nil, http.StatusNotFound)
			return
		}
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		recs, err := s.store.ListRecent(r.Context(), limit)
		if err != nil {
			httputil.Fail(s.log, w, "failed to list history", err, http.StatusInternalServerError)
			return
		}
		out := make([]map[string]any, 0, len(recs))
		for _, rec := range recs {
			out = append(out, map[string]any{
				"id":         rec.ID.String(),
				"backend":    rec.Backend,
				"model":      rec.Model,
				"capability": rec.Capability,
				"prompt":     rec.Prompt,
				"response":   rec.Response,
				"degraded":   rec.Degraded,
				"latency_ms": rec.LatencyMS,
				"created_at": rec.CreatedAt,
			})
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": out})
	}
}

// writeError renders classified errors with the right status; anything
// else is classified first so the wire shape stays uniform.
func (s *server) writeError(w http.ResponseWriter, err error) {
	var clsErr *classify.Error
	if !errors.As(err, &clsErr) {
		clsErr = classify.Classify(err)
	}
	httputil.WriteClassified(s.log, w, clsErr)
}
