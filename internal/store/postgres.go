package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Advisory lock prevents concurrent migrations when several instances
	// start at once. In production, run migrations as a separate step.
	const lockID = 824611007

	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !acquired {
		// Another instance is migrating; wait briefly and skip.
		time.Sleep(2 * time.Second)
		return nil
	}
	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analysis_records (
			id UUID PRIMARY KEY,
			backend TEXT NOT NULL,
			model TEXT,
			capability TEXT NOT NULL,
			prompt TEXT,
			response TEXT,
			degraded BOOLEAN DEFAULT FALSE,
			latency_ms BIGINT,
			created_at TIMESTAMPTZ DEFAULT now()
		);`)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS analysis_records_created_idx
		ON analysis_records (created_at DESC)
	`)
	return err
}

func (s *PostgresStore) SaveRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_records (id, backend, model, capability, prompt, response, degraded, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Backend, rec.Model, rec.Capability, rec.Prompt, rec.Response, rec.Degraded, rec.LatencyMS, rec.CreatedAt,
	)
	if err != nil {
		// 22021: invalid byte sequence, usually NUL bytes in prompt text.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "22021" {
			return Record{}, fmt.Errorf("prompt contains invalid characters: %w", err)
		}
		return Record{}, err
	}
	return rec, nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, id uuid.UUID) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, backend, model, capability, prompt, response, degraded, latency_ms, created_at
		FROM analysis_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, backend, model, capability, prompt, response, degraded, latency_ms, created_at
		FROM analysis_records ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.Backend, &rec.Model, &rec.Capability, &rec.Prompt,
		&rec.Response, &rec.Degraded, &rec.LatencyMS, &rec.CreatedAt)
	return rec, err
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
