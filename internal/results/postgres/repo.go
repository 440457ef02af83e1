package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"synthgen/internal/results"
)

// Repo implements results.Repository for Postgres on a pgx pool.
type Repo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg results.Config) (results.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() { r.pool.Close() }

func (r *Repo) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS synth_runs (
  id UUID PRIMARY KEY,
  model TEXT NOT NULL,
  row_count BIGINT NOT NULL,
  column_count BIGINT NOT NULL,
  quality_score DOUBLE PRECISION NOT NULL,
  train_seconds DOUBLE PRECISION NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
);`)
	return err
}

func (r *Repo) InsertRun(ctx context.Context, run results.Run) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO synth_runs (id, model, row_count, column_count, quality_score, train_seconds, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Model, run.Rows, run.Columns,
		run.QualityScore, run.TrainSeconds, run.CreatedAt,
	)
	return err
}

func (r *Repo) ListRuns(ctx context.Context, model string, limit int) ([]results.Run, error) {
	var b strings.Builder
	b.WriteString(`SELECT id, model, row_count, column_count, quality_score, train_seconds, created_at
		FROM synth_runs`)
	var args []any
	if model != "" {
		b.WriteString(" WHERE model = $1")
		args = append(args, model)
	}
	b.WriteString(" ORDER BY created_at DESC")
	if limit > 0 {
		if model != "" {
			b.WriteString(" LIMIT $2")
		} else {
			b.WriteString(" LIMIT $1")
		}
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []results.Run
	for rows.Next() {
		var run results.Run
		if err := rows.Scan(&run.ID, &run.Model, &run.Rows, &run.Columns,
			&run.QualityScore, &run.TrainSeconds, &run.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
