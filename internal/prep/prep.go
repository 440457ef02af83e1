// Package prep implements the column-wise preprocessing pipeline that
// every synthesizer trains on.
//
// The pipeline is heuristic and lenient by contract: a column that
// fails numeric coercion is treated as categorical, a time column that
// is mostly unparseable is dropped, and no step ever fails the run for
// data-quality reasons. Failures of that kind are silent fallbacks.
package prep

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"

	"synthgen/internal/table"
)

// Strategy names for cardinality reduction.
const (
	StrategyFrequencyBased = "frequency_based"
	StrategyAdaptive       = "adaptive"
	StrategySimple         = "simple"
)

// Options select the preprocessing strategies for one run.
type Options struct {
	// UserID selects a single user's rows. Zero keeps all rows.
	UserID int64
	// SampleSize caps the row count after user selection. Zero keeps
	// all rows.
	SampleSize int
	// Seed drives sampling. The default is 42.
	Seed int64

	// MissingDropRatio drops columns whose missing ratio exceeds it.
	// The default is 0.8.
	MissingDropRatio float64
	// CoercionThreshold is the parse success rate required to coerce
	// a column to numeric or timestamp. The default is 0.74.
	CoercionThreshold float64

	// ReduceCardinality enables categorical bucketing (needed by the
	// GAN-family models).
	ReduceCardinality bool
	// Strategy selects the bucketing heuristic. The default is
	// frequency_based.
	Strategy string
	// OtherCeiling caps the fraction of rows the frequency_based
	// strategy may label "other". The default is 0.5.
	OtherCeiling float64
}

func (o *Options) setDefaults() {
	if o.Seed == 0 {
		o.Seed = 42
	}
	if o.MissingDropRatio == 0 {
		o.MissingDropRatio = 0.8
	}
	if o.CoercionThreshold == 0 {
		o.CoercionThreshold = 0.74
	}
	if o.Strategy == "" {
		o.Strategy = StrategyFrequencyBased
	}
	if o.OtherCeiling == 0 {
		o.OtherCeiling = 0.5
	}
}

// protectedFields are never bucketed, outlier-clamped, or dropped by
// cardinality reduction. They carry the signal the models exist for.
var protectedFields = map[string]bool{
	"value":   true,
	"user_id": true,
	"id":      true,
}

// Preprocess runs the full pipeline and returns a new table.
//
// Step order matters and mirrors the run contract: user selection and
// sampling first (so every later ratio is computed on the modeled
// subset), then missing handling, value protection, type coercion,
// optional bucketing, time expansion, outlier clamping, cleanup.
func Preprocess(t *table.Table, opt Options) (*table.Table, error) {
	opt.setDefaults()

	out := SelectUser(t, opt.UserID)
	if out.NumRows() == 0 {
		return nil, fmt.Errorf("prep: no rows after user selection")
	}
	if opt.SampleSize > 0 {
		out = out.Sample(opt.SampleSize, opt.Seed)
	}

	dropHighMissing(out, opt.MissingDropRatio)
	coerceKinds(out, opt.CoercionThreshold)
	imputeMissing(out)
	protectNumericFields(out)
	if opt.ReduceCardinality {
		reduceCardinality(out, opt.Strategy, opt.OtherCeiling)
	}
	expandTimeColumns(out)
	clampOutliers(out)
	dropEmptyRows(out)
	return out, nil
}

// SelectUser returns the rows belonging to userID. When the table has
// no user_id column all rows are kept; when the user has no rows the
// first user present is selected instead.
func SelectUser(t *table.Table, userID int64) *table.Table {
	ci := t.ColumnIndex("user_id")
	if ci < 0 || userID == 0 {
		return t.Clone()
	}
	want := strconv.FormatInt(userID, 10)
	out := t.Filter(func(row []string) bool { return row[ci] == want })
	if out.NumRows() > 0 {
		return out
	}
	// Fall back to the first user present.
	for _, row := range t.Rows {
		if row[ci] != "" {
			want = row[ci]
			break
		}
	}
	return t.Filter(func(row []string) bool { return row[ci] == want })
}

func dropHighMissing(t *table.Table, ratio float64) {
	var drop []string
	for i, name := range t.Columns {
		if t.MissingRatio(i) > ratio {
			drop = append(drop, name)
		}
	}
	if len(drop) > 0 {
		t.DropColumns(drop...)
	}
}

// coerceKinds assigns column kinds. A column becomes numeric when the
// parse success rate over meaningful cells is at least threshold;
// otherwise a timestamp when a known layout clears the same bar;
// otherwise it stays categorical. There is no error path: coercion
// failure is a silent categorical fallback.
func coerceKinds(t *table.Table, threshold float64) {
	for i, name := range t.Columns {
		if name == "user_id" || name == "id" {
			t.Kinds[i] = table.KindID
			continue
		}
		var total, numericOK, timeOK int
		for _, row := range t.Rows {
			v := row[i]
			if v == "" {
				continue
			}
			total++
			if _, ok := table.ParseFloat(v); ok {
				numericOK++
			} else if _, ok := parseAnyTime(v); ok {
				timeOK++
			}
		}
		if total == 0 {
			t.Kinds[i] = table.KindCategorical
			continue
		}
		switch {
		case float64(numericOK)/float64(total) >= threshold:
			t.Kinds[i] = table.KindNumeric
		case float64(numericOK+timeOK)/float64(total) >= threshold && timeOK > numericOK:
			t.Kinds[i] = table.KindTimestamp
		default:
			t.Kinds[i] = table.KindCategorical
		}
	}
}

// imputeMissing fills numeric gaps with the column median and
// categorical gaps with the mode ("unknown" when there is none).
func imputeMissing(t *table.Table) {
	for i := range t.Columns {
		switch t.Kinds[i] {
		case table.KindNumeric, table.KindID:
			vals := make([]float64, 0, t.NumRows())
			for _, row := range t.Rows {
				if f, ok := table.ParseFloat(row[i]); ok {
					vals = append(vals, f)
				}
			}
			if len(vals) == 0 {
				continue
			}
			med, err := stats.Median(vals)
			if err != nil {
				continue
			}
			fill := table.FormatFloat(med)
			for _, row := range t.Rows {
				if row[i] == "" {
					row[i] = fill
				}
			}
		case table.KindCategorical:
			counts := map[string]int{}
			for _, row := range t.Rows {
				if row[i] != "" {
					counts[row[i]]++
				}
			}
			fill := "unknown"
			best := 0
			for v, n := range counts {
				if n > best || (n == best && v < fill) {
					fill, best = v, n
				}
			}
			for _, row := range t.Rows {
				if row[i] == "" {
					row[i] = fill
				}
			}
		}
	}
}

// clampOutliers applies IQR clamping to unprotected numeric columns.
// Columns where outliers exceed 10% of rows are left alone: that much
// mass is a distribution feature, not noise.
func clampOutliers(t *table.Table) {
	for i, name := range t.Columns {
		if t.Kinds[i] != table.KindNumeric || protectedFields[name] {
			continue
		}
		vals := t.FloatColumn(name)
		if len(vals) < 4 {
			continue
		}
		q, err := stats.Quartile(vals)
		if err != nil {
			continue
		}
		iqr := q.Q3 - q.Q1
		if iqr <= 0 {
			continue
		}
		lo := q.Q1 - 1.5*iqr
		hi := q.Q3 + 1.5*iqr

		outliers := 0
		for _, v := range vals {
			if v < lo || v > hi {
				outliers++
			}
		}
		ratio := float64(outliers) / float64(t.NumRows())
		if ratio == 0 || ratio >= 0.1 {
			continue
		}
		for _, row := range t.Rows {
			f, ok := table.ParseFloat(row[i])
			if !ok {
				continue
			}
			if f < lo {
				row[i] = table.FormatFloat(lo)
			} else if f > hi {
				row[i] = table.FormatFloat(hi)
			}
		}
	}
}

func dropEmptyRows(t *table.Table) {
	keep := t.Rows[:0]
	for _, row := range t.Rows {
		empty := true
		for _, v := range row {
			if strings.TrimSpace(v) != "" {
				empty = false
				break
			}
		}
		if !empty {
			keep = append(keep, row)
		}
	}
	t.Rows = keep
}
