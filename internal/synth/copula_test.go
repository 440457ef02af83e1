package synth

import (
	"context"
	"math"
	"reflect"
	"testing"

	"synthgen/internal/table"
)

func newFitTable(t *testing.T) *table.Table {
	t.Helper()
	tb := table.New([]string{"value", "indicator", "count"})
	tb.Kinds = []table.Kind{table.KindNumeric, table.KindCategorical, table.KindNumeric}
	rows := [][]string{
		{"72.5", "heart_rate", "1"},
		{"80", "heart_rate", "2"},
		{"95", "blood_oxygen", "3"},
		{"98", "blood_oxygen", "4"},
		{"60.25", "heart_rate", "5"},
		{"97", "blood_oxygen", "6"},
	}
	tb.Rows = append(tb.Rows, rows...)
	return tb
}

func TestGaussianCopulaSampleShape(t *testing.T) {
	t.Parallel()

	g := NewGaussianCopula(CopulaOptions{Seed: 7})
	if err := g.Fit(context.Background(), newFitTable(t)); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	out, err := g.Sample(context.Background(), 25)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if out.NumRows() != 25 {
		t.Fatalf("NumRows()=%d, want 25", out.NumRows())
	}
	if !reflect.DeepEqual(out.Columns, []string{"value", "indicator", "count"}) {
		t.Fatalf("Columns=%v, schema not preserved", out.Columns)
	}
}

// TestGaussianCopulaEnforcements verifies min/max bounds and rounding
// of integer-only columns on the sampled output.
func TestGaussianCopulaEnforcements(t *testing.T) {
	t.Parallel()

	g := NewGaussianCopula(CopulaOptions{
		EnforceMinMax:   true,
		EnforceRounding: true,
		Seed:            7,
	})
	if err := g.Fit(context.Background(), newFitTable(t)); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	out, err := g.Sample(context.Background(), 200)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}

	seen := map[string]bool{"heart_rate": false, "blood_oxygen": false}
	for _, row := range out.Rows {
		v, ok := table.ParseFloat(row[0])
		if !ok {
			t.Fatalf("value cell %q not numeric", row[0])
		}
		if v < 60.25 || v > 98 {
			t.Fatalf("value %v outside observed range [60.25, 98]", v)
		}
		c, ok := table.ParseFloat(row[2])
		if !ok || c != math.Trunc(c) {
			t.Fatalf("count cell %q not an integer", row[2])
		}
		if c < 1 || c > 6 {
			t.Fatalf("count %v outside observed range [1, 6]", c)
		}
		if _, known := seen[row[1]]; !known {
			t.Fatalf("indicator %q never observed in training", row[1])
		}
		seen[row[1]] = true
	}
	for cat, hit := range seen {
		if !hit {
			t.Fatalf("category %q never sampled in 200 rows", cat)
		}
	}
}

func TestGaussianCopulaDeterministicForSeed(t *testing.T) {
	t.Parallel()

	sample := func() *table.Table {
		g := NewGaussianCopula(CopulaOptions{Seed: 99})
		if err := g.Fit(context.Background(), newFitTable(t)); err != nil {
			t.Fatalf("Fit: %v", err)
		}
		out, err := g.Sample(context.Background(), 10)
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		return out
	}
	a, b := sample(), sample()
	if !reflect.DeepEqual(a.Rows, b.Rows) {
		t.Fatalf("same seed produced different samples")
	}
}

func TestGaussianCopulaErrors(t *testing.T) {
	t.Parallel()

	t.Run("sample_before_fit", func(t *testing.T) {
		t.Parallel()
		g := NewGaussianCopula(CopulaOptions{Seed: 1})
		if _, err := g.Sample(context.Background(), 5); err == nil {
			t.Fatalf("Sample before Fit: err=nil, want error")
		}
	})

	t.Run("too_few_rows", func(t *testing.T) {
		t.Parallel()
		tb := table.New([]string{"value"})
		tb.Rows = append(tb.Rows, []string{"1"})
		g := NewGaussianCopula(CopulaOptions{Seed: 1})
		if err := g.Fit(context.Background(), tb); err == nil {
			t.Fatalf("Fit with 1 row: err=nil, want error")
		}
	})

	t.Run("cancelled_context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		g := NewGaussianCopula(CopulaOptions{Seed: 1})
		if err := g.Fit(ctx, newFitTable(t)); err == nil {
			t.Fatalf("Fit with cancelled ctx: err=nil, want error")
		}
	})
}

// TestGaussianCopulaConstantColumn exercises the identity-shrinkage
// path: a constant column makes the raw correlation matrix
// rank-deficient.
func TestGaussianCopulaConstantColumn(t *testing.T) {
	t.Parallel()

	tb := table.New([]string{"value", "flag"})
	tb.Kinds = []table.Kind{table.KindNumeric, table.KindNumeric}
	for i := 0; i < 10; i++ {
		tb.Rows = append(tb.Rows, []string{table.FormatFloat(float64(i)), "5"})
	}

	g := NewGaussianCopula(CopulaOptions{EnforceMinMax: true, Seed: 3})
	if err := g.Fit(context.Background(), tb); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	out, err := g.Sample(context.Background(), 20)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	for _, row := range out.Rows {
		if row[1] != "5" {
			t.Fatalf("constant column sampled %q, want 5", row[1])
		}
	}
}
