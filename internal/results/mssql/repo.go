package mssql

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"synthgen/internal/results"
)

// Repo implements results.Repository for SQL Server.
type Repo struct {
	db *sql.DB
}

func init() {
	results.Register("mssql", New)
}

func New(ctx context.Context, cfg results.Config) (results.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) EnsureSchema(ctx context.Context) error {
	// SQL Server has no CREATE TABLE IF NOT EXISTS.
	_, err := r.db.ExecContext(ctx, `
IF OBJECT_ID('synth_runs', 'U') IS NULL
CREATE TABLE synth_runs (
  id UNIQUEIDENTIFIER PRIMARY KEY,
  model NVARCHAR(64) NOT NULL,
  row_count BIGINT NOT NULL,
  column_count BIGINT NOT NULL,
  quality_score FLOAT NOT NULL,
  train_seconds FLOAT NOT NULL,
  created_at DATETIMEOFFSET NOT NULL
);`)
	return err
}

func (r *Repo) InsertRun(ctx context.Context, run results.Run) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO synth_runs (id, model, row_count, column_count, quality_score, train_seconds, created_at)
		 VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7)`,
		run.ID, run.Model, run.Rows, run.Columns,
		run.QualityScore, run.TrainSeconds, run.CreatedAt,
	)
	return err
}

func (r *Repo) ListRuns(ctx context.Context, model string, limit int) ([]results.Run, error) {
	var b strings.Builder
	b.WriteString("SELECT ")
	if limit > 0 {
		// TOP must come before the column list.
		b.WriteString("TOP (@limit) ")
	}
	b.WriteString(`id, model, row_count, column_count, quality_score, train_seconds, created_at
		FROM synth_runs`)
	var args []any
	if limit > 0 {
		args = append(args, sql.Named("limit", limit))
	}
	if model != "" {
		b.WriteString(" WHERE model = @model")
		args = append(args, sql.Named("model", model))
	}
	b.WriteString(" ORDER BY created_at DESC")

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
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
