package synth

import (
	"context"
	"strconv"
	"testing"

	"synthgen/internal/table"
)

// newSequentialTable builds three users with sequence lengths 3, 2 and
// 1; the single-step user must be dropped from training.
func newSequentialTable(t *testing.T) *table.Table {
	t.Helper()
	tb := table.New([]string{"user_id", "sequence_index", "value", "indicator"})
	tb.Kinds = []table.Kind{
		table.KindID, table.KindNumeric, table.KindNumeric, table.KindCategorical,
	}
	rows := [][]string{
		{"101", "0", "70", "heart_rate"},
		{"101", "1", "72", "heart_rate"},
		{"101", "2", "75", "steps"},
		{"202", "0", "95", "blood_oxygen"},
		{"202", "1", "97", "blood_oxygen"},
		{"303", "0", "50", "heart_rate"},
	}
	tb.Rows = append(tb.Rows, rows...)
	return tb
}

func TestPARSampleSequences(t *testing.T) {
	t.Parallel()

	p := NewPAR(PAROptions{Seed: 11})
	if err := p.Fit(context.Background(), newSequentialTable(t)); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	out, err := p.Sample(context.Background(), 4)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}

	// Lengths come from the empirical distribution {3, 2}, so per-user
	// counts must be one of those and the ids fresh 1..4.
	byUser := map[string][]string{}
	for _, row := range out.Rows {
		byUser[row[0]] = append(byUser[row[0]], row[1])
	}
	if len(byUser) != 4 {
		t.Fatalf("sampled %d users, want 4", len(byUser))
	}
	for s := 1; s <= 4; s++ {
		id := strconv.Itoa(s)
		steps, ok := byUser[id]
		if !ok {
			t.Fatalf("missing synthetic user %s", id)
		}
		if len(steps) != 2 && len(steps) != 3 {
			t.Fatalf("user %s has %d steps, want 2 or 3 (empirical lengths)", id, len(steps))
		}
		for i, idx := range steps {
			if idx != strconv.Itoa(i) {
				t.Fatalf("user %s step %d has sequence_index %q", id, i, idx)
			}
		}
	}
}

func TestPARSampledValuesStayInRange(t *testing.T) {
	t.Parallel()

	p := NewPAR(PAROptions{Seed: 5})
	if err := p.Fit(context.Background(), newSequentialTable(t)); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	out, err := p.Sample(context.Background(), 20)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	known := map[string]bool{"heart_rate": true, "steps": true, "blood_oxygen": true}
	for _, row := range out.Rows {
		v, ok := table.ParseFloat(row[2])
		if !ok {
			t.Fatalf("value cell %q not numeric", row[2])
		}
		// The 50 observation belongs to the dropped single-step user, so
		// the trained range is [70, 97].
		if v < 70 || v > 97 {
			t.Fatalf("value %v outside trained range [70, 97]", v)
		}
		if !known[row[3]] {
			t.Fatalf("indicator %q never observed in training", row[3])
		}
	}
}

func TestPARFitErrors(t *testing.T) {
	t.Parallel()

	t.Run("no_sequence_key", func(t *testing.T) {
		t.Parallel()
		tb := table.New([]string{"value"})
		tb.Rows = append(tb.Rows, []string{"1"}, []string{"2"})
		p := NewPAR(PAROptions{Seed: 1})
		if err := p.Fit(context.Background(), tb); err == nil {
			t.Fatalf("Fit without user_id: err=nil, want error")
		}
	})

	t.Run("all_sequences_too_short", func(t *testing.T) {
		t.Parallel()
		tb := table.New([]string{"user_id", "sequence_index", "value"})
		tb.Rows = append(tb.Rows,
			[]string{"1", "0", "5"},
			[]string{"2", "0", "6"},
		)
		p := NewPAR(PAROptions{Seed: 1})
		if err := p.Fit(context.Background(), tb); err == nil {
			t.Fatalf("Fit with single-step sequences: err=nil, want error")
		}
	})

	t.Run("sample_before_fit", func(t *testing.T) {
		t.Parallel()
		p := NewPAR(PAROptions{Seed: 1})
		if _, err := p.Sample(context.Background(), 3); err == nil {
			t.Fatalf("Sample before Fit: err=nil, want error")
		}
	})
}

// TestGroupSequencesOrdersSteps: out-of-order input rows sort by the
// index column within each user.
func TestGroupSequencesOrdersSteps(t *testing.T) {
	t.Parallel()

	tb := table.New([]string{"user_id", "sequence_index", "value"})
	tb.Rows = append(tb.Rows,
		[]string{"1", "10", "c"},
		[]string{"1", "2", "b"},
		[]string{"1", "0", "a"},
	)
	seqs := groupSequences(tb, "user_id", "sequence_index")
	if len(seqs) != 1 || len(seqs[0]) != 3 {
		t.Fatalf("got %d sequences, want 1 of length 3", len(seqs))
	}
	// Numeric compare: 2 sorts before 10.
	want := []string{"a", "b", "c"}
	for i, row := range seqs[0] {
		if row[2] != want[i] {
			t.Fatalf("step %d value %q, want %q", i, row[2], want[i])
		}
	}
}
