// Package results persists synthesis run history so quality can be
// compared across runs and backends.
//
// Backends register themselves from init() in their own packages;
// importing results/all pulls in every built-in backend.
package results

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run is one completed model run.
type Run struct {
	ID           string
	Model        string
	Rows         int
	Columns      int
	QualityScore float64
	TrainSeconds float64
	CreatedAt    time.Time
}

// NewRun stamps a run with a fresh id and the current time.
func NewRun(model string, rows, columns int, score, trainSeconds float64) Run {
	return Run{
		ID:           uuid.NewString(),
		Model:        model,
		Rows:         rows,
		Columns:      columns,
		QualityScore: score,
		TrainSeconds: trainSeconds,
		CreatedAt:    time.Now().UTC(),
	}
}

// Config selects and configures a backend.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Repository is a backend-agnostic store for run history.
type Repository interface {
	// Close releases backend resources. Treat as "call once".
	Close()

	// EnsureSchema creates the runs table if needed. Idempotent.
	EnsureSchema(ctx context.Context) error

	// InsertRun persists one run.
	InsertRun(ctx context.Context, run Run) error

	// ListRuns returns runs newest-first. An empty model matches all
	// models; limit <= 0 means no limit.
	ListRuns(ctx context.Context, model string, limit int) ([]Run, error)
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres",
// "sqlite"). Call from an init() function in a backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. This is intentional to fail fast
//     and avoid ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("results: Register called with empty kind")
	}
	if f == nil {
		panic("results: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("results: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Concurrency:
//   - Safe for concurrent use with Register. New takes a read lock
//     while selecting the factory.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("results: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported results kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
