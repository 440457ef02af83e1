// Package eval scores synthetic tables against the real data they
// were trained on and renders comparison reports.
package eval

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"synthgen/internal/table"
)

// Score measures how closely a synthetic table matches the real one,
// in [0, 1] (1 is a perfect match). Per shared column:
//   - numeric/id: complement of the two-sample KS statistic
//   - categorical/timestamp: complement of total variation distance
//
// The table score is the mean over shared columns. Tables sharing no
// columns, or with no rows on either side, score 0.
func Score(real, synth *table.Table) float64 {
	if real.NumRows() == 0 || synth.NumRows() == 0 {
		return 0
	}
	var sum float64
	var n int
	for i, col := range real.Columns {
		j := synth.ColumnIndex(col)
		if j < 0 {
			continue
		}
		var s float64
		switch real.Kinds[i] {
		case table.KindNumeric, table.KindID:
			s = 1 - ksStatistic(real.FloatColumn(col), synth.FloatColumn(col))
		default:
			s = 1 - tvDistance(real.Column(col), synth.Column(col))
		}
		sum += s
		n++
	}
	if n == 0 {
		return 0
	}
	return clamp01(sum / float64(n))
}

// ksStatistic is the two-sample Kolmogorov-Smirnov statistic: the
// maximum gap between the two empirical CDFs. Empty samples yield 1
// (maximum distance).
func ksStatistic(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 1
	}
	a = append([]float64(nil), a...)
	b = append([]float64(nil), b...)
	sort.Float64s(a)
	sort.Float64s(b)

	var d float64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		// Consume every observation at the current point on both sides
		// before measuring, so ties don't inflate the gap.
		x := a[i]
		if b[j] < x {
			x = b[j]
		}
		for i < len(a) && a[i] == x {
			i++
		}
		for j < len(b) && b[j] == x {
			j++
		}
		gap := math.Abs(float64(i)/float64(len(a)) - float64(j)/float64(len(b)))
		if gap > d {
			d = gap
		}
	}
	return d
}

// tvDistance is the total variation distance between the two columns'
// category distributions, in [0, 1].
func tvDistance(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 1
	}
	pa := frequencies(a)
	pb := frequencies(b)
	seen := map[string]bool{}
	var d float64
	for v, p := range pa {
		d += math.Abs(p - pb[v])
		seen[v] = true
	}
	for v, p := range pb {
		if !seen[v] {
			d += p
		}
	}
	return d / 2
}

func frequencies(vals []string) map[string]float64 {
	out := make(map[string]float64, 16)
	for _, v := range vals {
		out[v]++
	}
	for v := range out {
		out[v] /= float64(len(vals))
	}
	return out
}

// Summary holds descriptive statistics of one numeric column.
type Summary struct {
	Count  int
	Mean   float64
	Std    float64
	Min    float64
	Max    float64
	Median float64
}

// Describe computes descriptive statistics for the named column.
// Missing and unparseable cells are skipped; an all-missing column
// yields a zero Summary.
func Describe(t *table.Table, column string) Summary {
	vals := t.FloatColumn(column)
	if len(vals) == 0 {
		return Summary{}
	}
	s := Summary{Count: len(vals)}
	s.Mean, _ = stats.Mean(vals)
	s.Std, _ = stats.StandardDeviation(vals)
	s.Min, _ = stats.Min(vals)
	s.Max, _ = stats.Max(vals)
	s.Median, _ = stats.Median(vals)
	return s
}

// FrequencyError compares category frequencies between real and
// synthetic data over the topN most frequent real categories of the
// named column. The result is the mean absolute difference in
// percentage points; a missing column on either side yields an error.
func FrequencyError(real, synth *table.Table, column string, topN int) (float64, error) {
	rv := real.Column(column)
	sv := synth.Column(column)
	if rv == nil || sv == nil {
		return 0, fmt.Errorf("eval: column %q missing from real or synthetic data", column)
	}
	rf := frequencies(rv)
	sf := frequencies(sv)

	type catFreq struct {
		cat  string
		freq float64
	}
	top := make([]catFreq, 0, len(rf))
	for c, f := range rf {
		top = append(top, catFreq{c, f})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].freq != top[j].freq {
			return top[i].freq > top[j].freq
		}
		return top[i].cat < top[j].cat
	})
	if len(top) > topN {
		top = top[:topN]
	}
	if len(top) == 0 {
		return 0, fmt.Errorf("eval: column %q has no categories", column)
	}

	var sum float64
	for _, cf := range top {
		sum += math.Abs(cf.freq-sf[cf.cat]) * 100
	}
	return sum / float64(len(top)), nil
}

// Grade maps a frequency error (percentage points) to a verdict.
func Grade(freqError float64) string {
	switch {
	case freqError < 0.5:
		return "excellent"
	case freqError < 1.0:
		return "good"
	case freqError < 1.5:
		return "needs improvement"
	default:
		return "poor"
	}
}

// SequenceSummary describes sequence structure of sequential data.
type SequenceSummary struct {
	Sequences int
	MinLen    int
	MaxLen    int
	MeanLen   float64
}

// SequenceStats groups rows by the key column and summarizes sequence
// lengths. A missing key column yields a zero summary.
func SequenceStats(t *table.Table, keyColumn string) SequenceSummary {
	i := t.ColumnIndex(keyColumn)
	if i < 0 {
		return SequenceSummary{}
	}
	counts := map[string]int{}
	for _, row := range t.Rows {
		counts[row[i]]++
	}
	if len(counts) == 0 {
		return SequenceSummary{}
	}
	s := SequenceSummary{Sequences: len(counts), MinLen: math.MaxInt}
	total := 0
	for _, n := range counts {
		total += n
		if n < s.MinLen {
			s.MinLen = n
		}
		if n > s.MaxLen {
			s.MaxLen = n
		}
	}
	s.MeanLen = float64(total) / float64(len(counts))
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
