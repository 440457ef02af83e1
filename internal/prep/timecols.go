package prep

import (
	"fmt"
	"strconv"
	"time"

	"synthgen/internal/profile"
	"synthgen/internal/table"
)

// knownTimeColumns are handled by expandTimeColumns, in this order.
var knownTimeColumns = []string{"start_time", "end_time", "create_time", "update_time"}

// expandedTimeColumns are the ones that get feature columns; the rest
// are parsed for validity and then dropped.
var expandedTimeColumns = map[string]bool{"start_time": true, "end_time": true}

func parseAnyTime(v string) (time.Time, bool) {
	return profile.ParseTimestamp(v)
}

// expandTimeColumns converts the known time columns into model-usable
// features. A column where fewer than half the cells parse is dropped
// outright. start_time and end_time emit _year/_month/_day/_hour/
// _weekday numeric features; the original string column is always
// dropped because synthesizers cannot sample raw timestamps.
func expandTimeColumns(t *table.Table) {
	for _, name := range knownTimeColumns {
		ci := t.ColumnIndex(name)
		if ci < 0 {
			continue
		}

		parsed := make([]time.Time, t.NumRows())
		oks := make([]bool, t.NumRows())
		valid := 0
		for r, row := range t.Rows {
			if ts, ok := parseAnyTime(row[ci]); ok {
				parsed[r], oks[r] = ts, true
				valid++
			}
		}
		if t.NumRows() == 0 || float64(valid)/float64(t.NumRows()) < 0.5 {
			t.DropColumns(name)
			continue
		}

		if expandedTimeColumns[name] {
			addTimeFeature(t, name+"_year", parsed, oks, func(ts time.Time) int { return ts.Year() }, 2023)
			addTimeFeature(t, name+"_month", parsed, oks, func(ts time.Time) int { return int(ts.Month()) }, 1)
			addTimeFeature(t, name+"_day", parsed, oks, func(ts time.Time) int { return ts.Day() }, 1)
			addTimeFeature(t, name+"_hour", parsed, oks, func(ts time.Time) int { return ts.Hour() }, 0)
			addTimeFeature(t, name+"_weekday", parsed, oks, mondayIndexed, 0)
		}
		t.DropColumns(name)
	}
}

// mondayIndexed matches the source data's weekday convention
// (Monday=0 .. Sunday=6).
func mondayIndexed(ts time.Time) int {
	return (int(ts.Weekday()) + 6) % 7
}

func addTimeFeature(t *table.Table, name string, parsed []time.Time, oks []bool, f func(time.Time) int, fallback int) {
	cells := make([]string, len(parsed))
	for r := range parsed {
		if oks[r] {
			cells[r] = strconv.Itoa(f(parsed[r]))
		} else {
			cells[r] = strconv.Itoa(fallback)
		}
	}
	// Length always matches; the error path is unreachable here.
	_ = t.AddColumn(name, table.KindNumeric, cells)
}

// SequentialOptions configure PreprocessSequential.
type SequentialOptions struct {
	UserID     int64
	SampleSize int
	Seed       int64

	// OtherCeiling is passed through to the frequency_based bucketing
	// the sequential path always applies.
	OtherCeiling float64
}

// droppedSequentialColumns carry no sequence signal and confuse the
// autoregressive model.
var droppedSequentialColumns = []string{"id", "source_table_id", "comment", "indicator_id"}

// PreprocessSequential prepares a table for the autoregressive (PAR)
// model: it keeps all rows in per-user time order and emits a
// sequence_index column instead of expanding timestamps into
// features.
//
// The first known time column where at least 80% of cells parse
// becomes the ordering key and also emits hour/day_of_week/month
// features. When no time column qualifies the original row order is
// kept.
func PreprocessSequential(t *table.Table, opt SequentialOptions) (*table.Table, error) {
	if opt.Seed == 0 {
		opt.Seed = 42
	}
	if opt.OtherCeiling == 0 {
		opt.OtherCeiling = 0.5
	}

	out := t.Clone()
	out.DropColumns(droppedSequentialColumns...)

	if opt.UserID != 0 {
		out = SelectUser(out, opt.UserID)
	}
	if out.NumRows() == 0 {
		return nil, fmt.Errorf("prep: no rows after user selection")
	}
	if opt.SampleSize > 0 && opt.SampleSize < out.NumRows() {
		out = out.Sample(opt.SampleSize, opt.Seed)
	}

	orderSequentialRows(out)

	coerceKinds(out, 0.74)
	protectNumericFields(out)
	reduceCardinality(out, StrategyFrequencyBased, opt.OtherCeiling)
	imputeMissing(out)
	addSequenceIndex(out)
	dropEmptyRows(out)
	return out, nil
}

// orderSequentialRows sorts by (user_id, best time column) and
// replaces the chosen time column with unix-seconds plus derived
// time-of-day features. The remaining known time columns are dropped.
func orderSequentialRows(t *table.Table) {
	// create_time first: its completeness is the best upstream.
	candidates := []string{"create_time", "start_time", "update_time", "end_time"}

	chosen := ""
	for _, name := range candidates {
		ci := t.ColumnIndex(name)
		if ci < 0 {
			continue
		}
		valid := 0
		for _, row := range t.Rows {
			if _, ok := parseAnyTime(row[ci]); ok {
				valid++
			}
		}
		if t.NumRows() > 0 && float64(valid)/float64(t.NumRows()) >= 0.8 {
			chosen = name
			break
		}
	}

	if chosen != "" {
		ci := t.ColumnIndex(chosen)
		hours := make([]string, t.NumRows())
		weekdays := make([]string, t.NumRows())
		months := make([]string, t.NumRows())
		for r, row := range t.Rows {
			if ts, ok := parseAnyTime(row[ci]); ok {
				row[ci] = strconv.FormatInt(ts.Unix(), 10)
				hours[r] = strconv.Itoa(ts.Hour())
				weekdays[r] = strconv.Itoa(mondayIndexed(ts))
				months[r] = strconv.Itoa(int(ts.Month()))
			} else {
				row[ci] = ""
				hours[r], weekdays[r], months[r] = "12", "0", "1"
			}
		}
		t.SetKind(chosen, table.KindNumeric)
		_ = t.AddColumn("hour", table.KindNumeric, hours)
		_ = t.AddColumn("day_of_week", table.KindNumeric, weekdays)
		_ = t.AddColumn("month", table.KindNumeric, months)
	}

	var dropRest []string
	for _, name := range candidates {
		if name != chosen && t.HasColumn(name) {
			dropRest = append(dropRest, name)
		}
	}
	t.DropColumns(dropRest...)

	var sortCols []int
	if ui := t.ColumnIndex("user_id"); ui >= 0 {
		sortCols = append(sortCols, ui)
	}
	if chosen != "" {
		sortCols = append(sortCols, t.ColumnIndex(chosen))
	}
	if len(sortCols) > 0 {
		t.SortBy(sortCols...)
	}
}

// addSequenceIndex numbers each user's rows 0..n-1 in their current
// order. Without a user column the index is global.
func addSequenceIndex(t *table.Table) {
	ui := t.ColumnIndex("user_id")
	cells := make([]string, t.NumRows())
	counters := map[string]int{}
	for r, row := range t.Rows {
		key := ""
		if ui >= 0 {
			key = row[ui]
		}
		cells[r] = strconv.Itoa(counters[key])
		counters[key]++
	}
	_ = t.AddColumn("sequence_index", table.KindNumeric, cells)
}
