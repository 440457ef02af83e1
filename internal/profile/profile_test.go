package profile

import (
	"testing"

	"synthgen/internal/table"
)

func buildColumn(t *testing.T, vals []string) *table.Table {
	t.Helper()
	tb := table.New([]string{"col"})
	for _, v := range vals {
		if err := tb.AppendRow([]string{v}); err != nil {
			t.Fatalf("AppendRow: %v", err)
		}
	}
	return tb
}

// TestCoercionThresholdBoundary pins the numeric coercion boundary:
// a 75% parse rate clears the default 0.74 threshold, 50% does not.
func TestCoercionThresholdBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		vals []string
		want table.Kind
	}{
		{
			name: "three_of_four_numeric_coerces",
			vals: []string{"1", "2", "3", "x"},
			want: table.KindNumeric,
		},
		{
			name: "half_numeric_stays_categorical",
			vals: []string{"1", "2", "x", "y"},
			want: table.KindCategorical,
		},
		{
			name: "missing_cells_do_not_count_against",
			vals: []string{"1", "2", "3", "", "", ""},
			want: table.KindNumeric,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := Table(buildColumn(t, tc.vals), Options{})
			if got := p.Columns[0].Kind; got != tc.want {
				t.Fatalf("Kind=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestTimestampInference(t *testing.T) {
	t.Parallel()

	p := Table(buildColumn(t, []string{
		"2023-01-02 03:04:05",
		"2023-05-06 07:08:09",
		"2023-09-10 11:12:13",
		"not-a-time",
	}), Options{})

	col := p.Columns[0]
	if col.Kind != table.KindTimestamp {
		t.Fatalf("Kind=%v, want timestamp", col.Kind)
	}
	if col.Layout != "2006-01-02 15:04:05" {
		t.Fatalf("Layout=%q, want %q", col.Layout, "2006-01-02 15:04:05")
	}
	if col.CoercionRate != 0.75 {
		t.Fatalf("CoercionRate=%v, want 0.75", col.CoercionRate)
	}
}

func TestMissingRatioAndDistinct(t *testing.T) {
	t.Parallel()

	p := Table(buildColumn(t, []string{"a", "a", "b", "", "  "}), Options{})
	col := p.Columns[0]

	if col.MissingRatio != 0.4 {
		t.Fatalf("MissingRatio=%v, want 0.4", col.MissingRatio)
	}
	if col.Distinct != 2 {
		t.Fatalf("Distinct=%d, want 2", col.Distinct)
	}
	if col.Total != 3 {
		t.Fatalf("Total=%d, want 3", col.Total)
	}
}

func TestMaxRowsBoundsScan(t *testing.T) {
	t.Parallel()

	vals := make([]string, 100)
	for i := range vals {
		vals[i] = "x"
	}
	p := Table(buildColumn(t, vals), Options{MaxRows: 10})
	if p.Rows != 10 {
		t.Fatalf("Rows=%d, want 10", p.Rows)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		wantOK bool
	}{
		{in: "2023-01-02 03:04:05", wantOK: true},
		{in: "2023-01-02", wantOK: true},
		{in: "2023/01/02", wantOK: true},
		{in: "02-01-2023", wantOK: false},
		{in: "", wantOK: false},
	}
	for _, tc := range tests {
		if _, ok := ParseTimestamp(tc.in); ok != tc.wantOK {
			t.Fatalf("ParseTimestamp(%q) ok=%v, want %v", tc.in, ok, tc.wantOK)
		}
	}
}
