package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"assistant-core/internal/backend"
	"assistant-core/internal/cache"
	"assistant-core/internal/config"
	"assistant-core/internal/events"
	"assistant-core/internal/logger"
	"assistant-core/internal/session"
	"assistant-core/internal/store"
)

// Deps bundles common runtime dependencies for the service.
type Deps struct {
	Config   config.Config
	Log      *slog.Logger
	Session  *session.Session
	Store    store.Store
	Cache    cache.Cache
	Events   events.Publisher
	CacheTTL time.Duration
}

// Build loads env, config, and shared components.
func Build(ctx context.Context) (Deps, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "err", err)
	}
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	sess, err := buildSession(ctx, cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize session: %w", err)
	}
	st, err := buildStore(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize store: %w", err)
	}
	c, err := buildCache(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize cache: %w", err)
	}
	pub, err := buildEvents(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize events: %w", err)
	}
	return Deps{
		Config:   cfg,
		Log:      log,
		Session:  sess,
		Store:    st,
		Cache:    c,
		Events:   pub,
		CacheTTL: time.Duration(cfg.CacheTTLSec) * time.Second,
	}, nil
}

func buildSession(ctx context.Context, cfg config.Config, log *slog.Logger) (*session.Session, error) {
	kind, err := backend.ParseKind(cfg.Backend)
	if err != nil {
		return nil, err
	}
	bcfg, err := BackendConfigFor(cfg, kind)
	if err != nil {
		return nil, err
	}
	sess, err := session.New(ctx, kind, bcfg, log)
	if err != nil {
		return nil, err
	}
	info := sess.Describe()
	log.Info("session initialized", "kind", info.Kind, "model", info.Model, "status", info.Status)
	return sess, nil
}

// BackendConfigFor maps env config onto a backend config for a kind. The
// HTTP switch endpoint reuses it when the caller supplies no overrides.
func BackendConfigFor(cfg config.Config, kind backend.Kind) (backend.Config, error) {
	switch kind {
	case backend.KindGemini:
		return backend.Config{APIKey: cfg.GeminiKey, Model: cfg.GeminiModel}, nil
	case backend.KindOpenAI:
		return backend.Config{APIKey: cfg.OpenAIKey, Model: cfg.OpenAIModel}, nil
	case backend.KindOllama:
		return backend.Config{BaseURL: cfg.OllamaURL, Model: cfg.OllamaModel}, nil
	default:
		return backend.Config{}, fmt.Errorf("unknown backend kind: %q", kind)
	}
}

func buildStore(cfg config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreProvider {
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required when STORE_PROVIDER=postgres")
		}
		db, err := store.NewPostgres(cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		log.Info("using Postgres history store")
		return db, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid STORE_PROVIDER: %s (valid options: postgres, none)", cfg.StoreProvider)
	}
}

func buildCache(cfg config.Config, log *slog.Logger) (cache.Cache, error) {
	switch cfg.CacheProvider {
	case "redis":
		c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			// Cache is an optimization; fall back to no-op when Redis is down.
			log.Warn("redis unavailable, disabling answer cache", "err", err)
			return cache.NewNoOpCache(), nil
		}
		log.Info("using Redis answer cache", "addr", cfg.RedisAddr)
		return c, nil
	case "none", "":
		return cache.NewNoOpCache(), nil
	default:
		return nil, fmt.Errorf("invalid CACHE_PROVIDER: %s (valid options: redis, none)", cfg.CacheProvider)
	}
}

func buildEvents(cfg config.Config, log *slog.Logger) (events.Publisher, error) {
	switch cfg.EventsProvider {
	case "nats":
		if cfg.NATSURL == "" {
			return nil, fmt.Errorf("NATS_URL is required when EVENTS_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("publishing analysis events to NATS")
		return events.NewNATS(log, nc), nil
	case "none", "":
		return events.NewNoOpPublisher(), nil
	default:
		return nil, fmt.Errorf("invalid EVENTS_PROVIDER: %s (valid options: nats, none)", cfg.EventsProvider)
	}
}
