package synth

import (
	"math"
	"math/rand"
	"testing"

	"synthgen/internal/table"
)

func TestTableEncoderDimensions(t *testing.T) {
	t.Parallel()

	tb := table.New([]string{"value", "indicator"})
	tb.Kinds = []table.Kind{table.KindNumeric, table.KindCategorical}
	tb.Rows = append(tb.Rows,
		[]string{"1", "a"},
		[]string{"2", "b"},
		[]string{"3", "c"},
	)

	e, err := newTableEncoder(tb)
	if err != nil {
		t.Fatalf("newTableEncoder: %v", err)
	}
	if e.dim != 4 { // 1 numeric + 3 one-hot
		t.Fatalf("dim=%d, want 4", e.dim)
	}
}

// TestEncodeDecodeRoundTrip checks that encoding a row and decoding it
// recovers the original cells: numeric scaling inverts exactly at the
// observed extremes and one-hot decode picks the hot category.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	tb := table.New([]string{"value", "indicator"})
	tb.Kinds = []table.Kind{table.KindNumeric, table.KindCategorical}
	tb.Rows = append(tb.Rows,
		[]string{"10", "heart_rate"},
		[]string{"20", "steps"},
		[]string{"30", "heart_rate"},
	)

	e, err := newTableEncoder(tb)
	if err != nil {
		t.Fatalf("newTableEncoder: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	vec := make([]float64, e.dim)
	for _, in := range tb.Rows {
		e.encodeRow(in, vec)
		// The gumbel tie-break noise is scaled to 0.05, far below the
		// 1.0 gap between hot and cold one-hot entries.
		got := e.decodeRow(vec, rng)
		if got[0] != in[0] || got[1] != in[1] {
			t.Fatalf("round trip %v -> %v", in, got)
		}
	}
}

func TestEncodeNumericScaling(t *testing.T) {
	t.Parallel()

	tb := table.New([]string{"value"})
	tb.Kinds = []table.Kind{table.KindNumeric}
	tb.Rows = append(tb.Rows, []string{"0"}, []string{"100"})

	e, err := newTableEncoder(tb)
	if err != nil {
		t.Fatalf("newTableEncoder: %v", err)
	}
	vec := make([]float64, e.dim)

	e.encodeRow([]string{"0"}, vec)
	if vec[0] != -1 {
		t.Fatalf("min encodes to %v, want -1", vec[0])
	}
	e.encodeRow([]string{"100"}, vec)
	if vec[0] != 1 {
		t.Fatalf("max encodes to %v, want 1", vec[0])
	}
	e.encodeRow([]string{"50"}, vec)
	if vec[0] != 0 {
		t.Fatalf("midpoint encodes to %v, want 0", vec[0])
	}
	// Missing cells encode as the midpoint too.
	e.encodeRow([]string{""}, vec)
	if vec[0] != 0 {
		t.Fatalf("missing cell encodes to %v, want 0", vec[0])
	}
}

// TestDecodeClampsAndRounds: out-of-range generator outputs clamp to
// the observed range and integer-only columns round.
func TestDecodeClampsAndRounds(t *testing.T) {
	t.Parallel()

	tb := table.New([]string{"count"})
	tb.Kinds = []table.Kind{table.KindNumeric}
	tb.Rows = append(tb.Rows, []string{"2"}, []string{"8"})

	e, err := newTableEncoder(tb)
	if err != nil {
		t.Fatalf("newTableEncoder: %v", err)
	}
	rng := rand.New(rand.NewSource(1))

	if got := e.decodeRow([]float64{5}, rng); got[0] != "8" {
		t.Fatalf("overshoot decodes to %q, want clamp to 8", got[0])
	}
	if got := e.decodeRow([]float64{-5}, rng); got[0] != "2" {
		t.Fatalf("undershoot decodes to %q, want clamp to 2", got[0])
	}
	got := e.decodeRow([]float64{0.1}, rng)
	f, ok := table.ParseFloat(got[0])
	if !ok || f != math.Trunc(f) {
		t.Fatalf("integer column decodes to %q, want rounded integer", got[0])
	}
}

func TestEncoderEmptyTableErrors(t *testing.T) {
	t.Parallel()

	tb := table.New(nil)
	if _, err := newTableEncoder(tb); err == nil {
		t.Fatalf("zero-dimension table: err=nil, want error")
	}
}
