// Package profile implements dataset sampling and column inference.
//
// The profile package is responsible for:
//   - Taking a bounded sample of an input table
//   - Inferring per-column kinds (numeric, timestamp, boolean, categorical)
//   - Measuring missing ratios and bounded uniqueness statistics
//   - Rendering a human-readable profile report for cmd/inspect
//
// Design constraints:
//   - All inference is best-effort and must never fail the run.
//   - Distinct counting is bounded in memory regardless of cardinality.
//   - A column that fails coercion falls back to categorical silently.
package profile

import (
	"strings"
	"time"

	"synthgen/internal/table"
)

// DefaultCoercionThreshold is the fraction of non-missing cells that
// must parse for a column to be coerced to a typed kind.
const DefaultCoercionThreshold = 0.74

const distinctCapPerColumn = 10000

// Options control profiling behavior.
type Options struct {
	// CoercionThreshold overrides DefaultCoercionThreshold when > 0.
	CoercionThreshold float64
	// MaxRows bounds how many rows are scanned. Zero means all rows.
	MaxRows int
}

// Column is the profile of a single column.
type Column struct {
	Name string
	Kind table.Kind

	// Total is the number of scanned rows with a meaningful value.
	// It is the denominator for Distinct-based ratios, never the
	// overall row count.
	Total        int
	MissingRatio float64

	// CoercionRate is the fraction of meaningful cells that parsed
	// under the winning kind (1.0 for categorical).
	CoercionRate float64

	// Layout is the winning time layout for timestamp columns.
	Layout string

	Distinct int
	Capped   bool
}

// Profile is the result of scanning a table sample.
type Profile struct {
	Rows    int
	Columns []Column
}

// timestampLayouts are tried in order; first layout that clears the
// threshold wins and is recorded on the column.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
}

// Table profiles t. Inference is lenient: unparseable values count
// against the coercion rate but never produce an error.
func Table(t *table.Table, opt Options) Profile {
	threshold := opt.CoercionThreshold
	if threshold <= 0 {
		threshold = DefaultCoercionThreshold
	}
	rows := t.Rows
	if opt.MaxRows > 0 && opt.MaxRows < len(rows) {
		rows = rows[:opt.MaxRows]
	}

	p := Profile{Rows: len(rows)}
	for i, name := range t.Columns {
		col := Column{Name: name, Kind: table.KindCategorical, CoercionRate: 1}

		distinct := make(map[string]struct{})
		var total, missing, numericOK int
		layoutOK := make([]int, len(timestampLayouts))

		for _, row := range rows {
			v := row[i]
			if strings.TrimSpace(v) == "" {
				missing++
				continue
			}
			total++

			if !col.Capped {
				distinct[v] = struct{}{}
				if len(distinct) >= distinctCapPerColumn {
					col.Capped = true
					distinct = nil
				}
			}

			if _, ok := table.ParseFloat(v); ok {
				numericOK++
			}
			for li, layout := range timestampLayouts {
				if _, err := time.Parse(layout, v); err == nil {
					layoutOK[li]++
				}
			}
		}

		col.Total = total
		if len(rows) > 0 {
			col.MissingRatio = float64(missing) / float64(len(rows))
		}
		if col.Capped {
			col.Distinct = distinctCapPerColumn
		} else {
			col.Distinct = len(distinct)
		}

		if total > 0 {
			if rate := float64(numericOK) / float64(total); rate >= threshold {
				col.Kind = table.KindNumeric
				col.CoercionRate = rate
			} else if layout, rate := bestLayout(layoutOK, total); rate >= threshold {
				col.Kind = table.KindTimestamp
				col.CoercionRate = rate
				col.Layout = layout
			}
		}

		p.Columns = append(p.Columns, col)
	}
	return p
}

func bestLayout(layoutOK []int, total int) (string, float64) {
	best, bestIdx := 0, -1
	for i, n := range layoutOK {
		if n > best {
			best, bestIdx = n, i
		}
	}
	if bestIdx < 0 {
		return "", 0
	}
	return timestampLayouts[bestIdx], float64(best) / float64(total)
}

// ParseTimestamp parses v against the known layouts, in order.
func ParseTimestamp(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
