package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"synthgen/internal/results"
)

// Repo implements results.Repository for SQLite.
//
// SQLite has no native TIMESTAMPTZ type; created_at is stored as an
// RFC3339Nano string for reliable round-trip behavior and easy
// debugging.
type Repo struct {
	db *sql.DB
}

func init() {
	results.Register("sqlite", New)
}

func New(ctx context.Context, cfg results.Config) (results.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
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
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS synth_runs (
  id TEXT PRIMARY KEY,
  model TEXT NOT NULL,
  row_count INTEGER NOT NULL,
  column_count INTEGER NOT NULL,
  quality_score REAL NOT NULL,
  train_seconds REAL NOT NULL,
  created_at TEXT NOT NULL
);`)
	if err != nil {
		return fmt.Errorf("create table synth_runs: %w", err)
	}
	return nil
}

func (r *Repo) InsertRun(ctx context.Context, run results.Run) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO synth_runs (id, model, row_count, column_count, quality_score, train_seconds, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Model, run.Rows, run.Columns,
		run.QualityScore, run.TrainSeconds, formatTime(run.CreatedAt),
	)
	return err
}

func (r *Repo) ListRuns(ctx context.Context, model string, limit int) ([]results.Run, error) {
	var b strings.Builder
	b.WriteString(`SELECT id, model, row_count, column_count, quality_score, train_seconds, created_at
		FROM synth_runs`)
	var args []any
	if model != "" {
		b.WriteString(" WHERE model = ?")
		args = append(args, model)
	}
	b.WriteString(" ORDER BY created_at DESC")
	if limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []results.Run
	for rows.Next() {
		var run results.Run
		var created string
		if err := rows.Scan(&run.ID, &run.Model, &run.Rows, &run.Columns,
			&run.QualityScore, &run.TrainSeconds, &created); err != nil {
			return nil, err
		}
		run.CreatedAt, err = parseTime(created)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse synth_runs.created_at=%q: %w", created, err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
