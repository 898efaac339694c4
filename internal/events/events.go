package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"assistant-core/internal/retry"
)

// AnalysisCompleted is emitted after every successful analysis so other
// tooling (usage dashboards, notification hooks) can observe the
// assistant without sitting in the request path.
type AnalysisCompleted struct {
	ID         uuid.UUID `json:"id"`
	Backend    string    `json:"backend"`
	Capability string    `json:"capability"`
	Degraded   bool      `json:"degraded"`
	LatencyMS  int64     `json:"latency_ms"`
	At         time.Time `json:"at"`
}

// Publisher exposes a minimal contract to emit completion events.
type Publisher interface {
	Publish(ctx context.Context, ev AnalysisCompleted) error
	Close() error
}

// PublishWithRetry attempts to publish with retries and exponential backoff.
func PublishWithRetry(ctx context.Context, p Publisher, ev AnalysisCompleted, attempts int, base time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if err := p.Publish(ctx, ev); err == nil {
			return nil
		} else if attempt == attempts-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry.ExponentialBackoff(attempt, base)):
		}
	}
	return nil
}
