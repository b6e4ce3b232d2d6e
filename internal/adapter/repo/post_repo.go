// Package repo persists generation and publish history to PostgreSQL. The
// store is optional: without a database pool the service runs stateless and
// callers skip these writes entirely.
package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"postty/internal/domain"
)

// PostRepositoryPG records generation runs and publish outcomes.
type PostRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewPostRepository creates a history repository backed by PostgreSQL.
func NewPostRepository(pool *pgxpool.Pool) *PostRepositoryPG {
	return &PostRepositoryPG{pool: pool}
}

// CreateRun inserts a new generation run in the running state.
func (r *PostRepositoryPG) CreateRun(ctx context.Context, run *domain.GenerationRun) error {
	query := `
INSERT INTO generation_runs (id, prompt, candidate_count, enriched, locale, status)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Prompt,
		run.CandidateCount,
		run.Enriched,
		run.Locale,
		run.Status,
	)
	return err
}

// FinishRun records a run's terminal state and optionally its result payload
// or failure message.
func (r *PostRepositoryPG) FinishRun(ctx context.Context, runID string, status domain.RunStatus, errMsg *string, resultJSON []byte) error {
	query := `
UPDATE generation_runs
SET status = $2,
    updated_at = NOW(),
    error_message = COALESCE($3, error_message),
    result_json = COALESCE($4, result_json)
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, runID, status, errMsg, nullableBytes(resultJSON))
	return err
}

// GetRun fetches one generation run by its request id.
func (r *PostRepositoryPG) GetRun(ctx context.Context, runID string) (*domain.GenerationRun, error) {
	query := `
SELECT id, prompt, candidate_count, enriched, locale, status, result_json, error_message, created_at, updated_at
FROM generation_runs
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, runID)
	var run domain.GenerationRun
	if err := row.Scan(
		&run.ID,
		&run.Prompt,
		&run.CandidateCount,
		&run.Enriched,
		&run.Locale,
		&run.Status,
		&run.ResultJSON,
		&run.ErrorMessage,
		&run.CreatedAt,
		&run.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (r *PostRepositoryPG) ListRuns(ctx context.Context, limit int) ([]*domain.GenerationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
SELECT id, prompt, candidate_count, enriched, locale, status, result_json, error_message, created_at, updated_at
FROM generation_runs
ORDER BY created_at DESC
LIMIT $1;
`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.GenerationRun
	for rows.Next() {
		var run domain.GenerationRun
		if err := rows.Scan(
			&run.ID,
			&run.Prompt,
			&run.CandidateCount,
			&run.Enriched,
			&run.Locale,
			&run.Status,
			&run.ResultJSON,
			&run.ErrorMessage,
			&run.CreatedAt,
			&run.UpdatedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// RecordPublish inserts one publish outcome.
func (r *PostRepositoryPG) RecordPublish(ctx context.Context, rec *domain.PublishRecord) error {
	query := `
INSERT INTO publish_records (id, media_url, caption, media_kind, container_id, media_id, outcome, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.MediaURL,
		rec.Caption,
		rec.MediaKind,
		nullableString(rec.ContainerID),
		rec.MediaID,
		rec.Outcome,
		rec.ErrorMessage,
	)
	return err
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
