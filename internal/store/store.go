package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrRecordNotFound = errors.New("analysis record not found")

// Record is one completed analysis, kept for the assistant's history view.
type Record struct {
	ID         uuid.UUID
	Backend    string
	Model      string
	Capability string
	Prompt     string
	Response   string
	Degraded   bool
	LatencyMS  int64
	CreatedAt  time.Time
}

// Store defines persistence contract; an external DB implementation can replace this.
type Store interface {
	SaveRecord(ctx context.Context, rec Record) (Record, error)
	GetRecord(ctx context.Context, id uuid.UUID) (Record, error)
	ListRecent(ctx context.Context, limit int) ([]Record, error)
}
