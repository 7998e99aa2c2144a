package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/bobarin/storyreel/internal/models"
)

const createJobsTable = `
	CREATE TABLE IF NOT EXISTS render_jobs (
		id           TEXT PRIMARY KEY,
		status       TEXT NOT NULL,
		progress     INTEGER NOT NULL DEFAULT 0,
		payload      JSONB NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	)
`

// PostgresBackend mirrors jobs into a render_jobs table. The full job is
// kept in payload; status and timestamps are copied out for querying.
type PostgresBackend struct {
	db *sql.DB
}

var _ Backend = (*PostgresBackend)(nil)

func NewPostgresBackend(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, createJobsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create render_jobs table: %w", err)
	}
	return &PostgresBackend{db: db}, nil
}

func (b *PostgresBackend) Load(ctx context.Context) ([]models.RenderJob, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT payload FROM render_jobs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.RenderJob
	for rows.Next() {
		var job models.RenderJob
		if err := rows.Scan(&job); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (b *PostgresBackend) Get(ctx context.Context, id string) (*models.RenderJob, error) {
	var job models.RenderJob
	err := b.db.QueryRowContext(ctx, `SELECT payload FROM render_jobs WHERE id = $1`, id).Scan(&job)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (b *PostgresBackend) Save(ctx context.Context, job models.RenderJob) error {
	query := `
		INSERT INTO render_jobs (id, status, progress, payload, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err := b.db.ExecContext(ctx, query,
		job.ID, string(job.Status), job.Progress, job, job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Close() error {
	return b.db.Close()
}
