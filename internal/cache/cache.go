package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Cache stores chat answers so repeated questions against the same
// backend/model skip the outbound call. Image and audio analyses are
// never cached; their payloads are one-shot captures.
type Cache interface {
	// GetAnswer retrieves a cached answer by key. Returns nil on a miss.
	GetAnswer(ctx context.Context, key string) (*Answer, error)

	// SetAnswer stores an answer with TTL.
	SetAnswer(ctx context.Context, key string, answer *Answer, ttl time.Duration) error

	// Close closes the cache connection.
	Close() error
}

// Answer is a cached chat response.
type Answer struct {
	Text     string `json:"text"`
	Degraded bool   `json:"degraded"`
}

// Key derives a stable cache key from the backend identity and the chat
// text, so answers from one backend/model never leak into another.
func Key(kind, model, text string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", kind, model, text)))
	return hex.EncodeToString(sum[:])
}
