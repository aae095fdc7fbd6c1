package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bdougie/handscan/internal/models"
)

// resultDims is the length of ResultVector
const resultDims = 6

// DB is the part of *pgxpool.Pool the journal uses
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresJournal stores capture records in PostgreSQL. Classified records
// also get a pgvector embedding of their result so similar outcomes can be
// looked up later.
type PostgresJournal struct {
	db     DB
	close  func()
	logger *slog.Logger
}

// NewPostgresJournal connects to databaseURL and makes sure the schema exists
func NewPostgresJournal(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresJournal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := InitSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresJournal{db: pool, close: pool.Close, logger: logger}, nil
}

func (s *PostgresJournal) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

// Add inserts the record; a second record for the same attempt is ignored
func (s *PostgresJournal) Add(ctx context.Context, rec models.CaptureRecord) error {
	var (
		embedding *pgvector.Vector
		c         models.ScanResult
	)
	if rec.Classification != nil {
		c = *rec.Classification
		v := pgvector.NewVector(ResultVector(c))
		embedding = &v
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO capture_records
        (attempt_id, scan_id, outcome, image_ref, reason, frames_sent, started_at, ended_at,
         explanation, classified, min_age, max_age, classified_age, classified_gender,
         confidence_age, confidence_gender, result_id, embedding)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
        ON CONFLICT (attempt_id) DO NOTHING`,
		rec.AttemptID, rec.ScanID, rec.Outcome, rec.ImageRef, rec.Reason, rec.FramesSent,
		rec.StartedAt, rec.EndedAt, rec.Explanation, rec.Classification != nil,
		c.MinAge, c.MaxAge, c.ClassifiedAge, c.ClassifiedGender,
		c.ConfidenceAge, c.ConfidenceGender, c.ID, embedding)
	if err != nil {
		return fmt.Errorf("failed to store capture record: %w", err)
	}
	return nil
}

// Flush is a no-op, records are written immediately
func (s *PostgresJournal) Flush(context.Context) error {
	return nil
}

func (s *PostgresJournal) Recent(ctx context.Context, limit int) ([]models.CaptureRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT attempt_id, scan_id, outcome, image_ref, reason, frames_sent, started_at, ended_at,
        explanation, classified, min_age, max_age, classified_age, classified_gender,
        confidence_age, confidence_gender, result_id
        FROM capture_records
        ORDER BY ended_at DESC
        LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture records: %w", err)
	}
	defer rows.Close()

	var records []models.CaptureRecord
	for rows.Next() {
		var (
			rec        models.CaptureRecord
			c          models.ScanResult
			classified bool
		)
		if err := rows.Scan(&rec.AttemptID, &rec.ScanID, &rec.Outcome, &rec.ImageRef, &rec.Reason,
			&rec.FramesSent, &rec.StartedAt, &rec.EndedAt, &rec.Explanation, &classified,
			&c.MinAge, &c.MaxAge, &c.ClassifiedAge, &c.ClassifiedGender,
			&c.ConfidenceAge, &c.ConfidenceGender, &c.ID); err != nil {
			return nil, fmt.Errorf("failed to scan capture record: %w", err)
		}
		if classified {
			rec.Classification = &c
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SimilarResults finds journaled classifications closest to result
func (s *PostgresJournal) SimilarResults(ctx context.Context, result models.ScanResult, limit int) ([]models.ResultSearchHit, error) {
	rows, err := s.db.Query(ctx,
		`SELECT scan_id, result_id, min_age, max_age, classified_age, classified_gender,
        confidence_age, confidence_gender, 1 - (embedding <=> $1) AS similarity
        FROM capture_records
        WHERE embedding IS NOT NULL AND result_id <> $2
        ORDER BY embedding <=> $1
        LIMIT $3`,
		pgvector.NewVector(ResultVector(result)), result.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar results: %w", err)
	}
	defer rows.Close()

	var hits []models.ResultSearchHit
	for rows.Next() {
		var h models.ResultSearchHit
		if err := rows.Scan(&h.ScanID, &h.Result.ID, &h.Result.MinAge, &h.Result.MaxAge,
			&h.Result.ClassifiedAge, &h.Result.ClassifiedGender,
			&h.Result.ConfidenceAge, &h.Result.ConfidenceGender, &h.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ScanAttempts returns the number of journaled attempts for a scan
func (s *PostgresJournal) ScanAttempts(ctx context.Context, scanID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		"SELECT count(*) FROM capture_records WHERE scan_id = $1", scanID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return n, nil
}

// ResultVector embeds a classification. Ages are scaled to roughly [0,1] so
// every dimension carries comparable weight.
func ResultVector(r models.ScanResult) []float32 {
	return []float32{
		float32(r.ClassifiedAge) / 100,
		float32(r.MinAge) / 100,
		float32(r.MaxAge) / 100,
		float32(r.ClassifiedGender),
		float32(r.ConfidenceAge),
		float32(r.ConfidenceGender),
	}
}

// InitSchema creates the table and indexes if they don't exist
func InitSchema(ctx context.Context, db DB) error {
	var exists bool
	err := db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for vector extension: %w", err)
	}
	if !exists {
		if _, err := db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("failed to create vector extension: %w", err)
		}
	}

	_, err = db.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS capture_records (
            id SERIAL PRIMARY KEY,
            attempt_id VARCHAR(64) NOT NULL UNIQUE,
            scan_id VARCHAR(255) NOT NULL,
            outcome VARCHAR(32) NOT NULL,
            image_ref TEXT NOT NULL DEFAULT '',
            reason TEXT NOT NULL DEFAULT '',
            frames_sent INTEGER NOT NULL DEFAULT 0,
            started_at TIMESTAMPTZ NOT NULL,
            ended_at TIMESTAMPTZ NOT NULL,
            explanation TEXT NOT NULL DEFAULT '',
            classified BOOLEAN NOT NULL DEFAULT FALSE,
            result_id VARCHAR(255) NOT NULL DEFAULT '',
            min_age INTEGER NOT NULL DEFAULT 0,
            max_age INTEGER NOT NULL DEFAULT 0,
            classified_age INTEGER NOT NULL DEFAULT 0,
            classified_gender INTEGER NOT NULL DEFAULT 0,
            confidence_age DOUBLE PRECISION NOT NULL DEFAULT 0,
            confidence_gender DOUBLE PRECISION NOT NULL DEFAULT 0,
            embedding vector(%d)
        );

        CREATE INDEX IF NOT EXISTS idx_capture_records_scan_id ON capture_records(scan_id);
        CREATE INDEX IF NOT EXISTS idx_capture_records_ended_at ON capture_records(ended_at);
        CREATE INDEX IF NOT EXISTS idx_capture_records_embedding ON capture_records USING hnsw (embedding vector_cosine_ops);
    `, resultDims))
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}
	return nil
}
