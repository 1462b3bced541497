package recordings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists recordings in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS recordings (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			duration_ms BIGINT NOT NULL,
			transcript TEXT NOT NULL,
			summary TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			audio BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_recordings_created ON recordings (created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, rec Recording) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO recordings (id, session_id, started_at, duration_ms, transcript, summary, mime_type, audio, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID,
		rec.SessionID,
		rec.StartedAt,
		rec.Duration.Milliseconds(),
		rec.Transcript,
		rec.Summary,
		rec.MIMEType,
		rec.Audio,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save recording: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]Recording, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, started_at, duration_ms, transcript, summary, mime_type, octet_length(audio), created_at
		 FROM recordings ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	items := make([]Recording, 0, limit)
	for rows.Next() {
		var r Recording
		var audioBytes int32
		if err := rows.Scan(&r.ID, &r.SessionID, &r.StartedAt, &r.DurationMS, &r.Transcript, &r.Summary, &r.MIMEType, &audioBytes, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recording row: %w", err)
		}
		r.Duration = time.Duration(r.DurationMS) * time.Millisecond
		r.AudioBytes = int(audioBytes)
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recording rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Recording, error) {
	var r Recording
	err := s.pool.QueryRow(ctx,
		`SELECT id, session_id, started_at, duration_ms, transcript, summary, mime_type, audio, created_at
		 FROM recordings WHERE id=$1`,
		id,
	).Scan(&r.ID, &r.SessionID, &r.StartedAt, &r.DurationMS, &r.Transcript, &r.Summary, &r.MIMEType, &r.Audio, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Recording{}, ErrNotFound
	}
	if err != nil {
		return Recording{}, fmt.Errorf("get recording: %w", err)
	}
	r.Duration = time.Duration(r.DurationMS) * time.Millisecond
	r.AudioBytes = len(r.Audio)
	return r, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
