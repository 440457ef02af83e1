package prep

import (
	"math"
	"strconv"
	"strings"
	"time"

	"synthgen/internal/table"
)

// protectNumericFields keeps the identifier and measurement columns
// numeric regardless of what coercion decided, and clamps the value
// column into the plausible range for its indicator family.
func protectNumericFields(t *table.Table) {
	for _, name := range []string{"user_id", "id"} {
		ci := t.ColumnIndex(name)
		if ci < 0 {
			continue
		}
		t.Kinds[ci] = table.KindID
		for _, row := range t.Rows {
			f, ok := table.ParseFloat(row[ci])
			if !ok {
				f = 0
			}
			row[ci] = strconv.FormatInt(int64(f), 10)
		}
	}
	clampValueField(t)
}

// clampValueField rewrites out-of-range measurements based on the
// indicator each row reports. Ranges come from the source data's
// indicator families; anything that cannot be parsed becomes 0 so the
// column stays numeric end to end.
func clampValueField(t *table.Table) {
	vi := t.ColumnIndex("value")
	ii := t.ColumnIndex("indicator")
	if vi < 0 || ii < 0 {
		return
	}
	t.Kinds[vi] = table.KindNumeric

	for _, row := range t.Rows {
		f, ok := table.ParseFloat(row[vi])
		if !ok {
			row[vi] = "0"
			continue
		}
		row[vi] = table.FormatFloat(clampForIndicator(strings.ToLower(row[ii]), f))
	}
}

var timeKeywords = []string{"_start_time", "_end_time", "sleep_start", "sleep_end", "_time_", "time_avg", "avg_start", "avg_end"}

func hasAny(s string, keys []string) bool {
	for _, k := range keys {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func clampForIndicator(indicator string, v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	switch {
	case hasAny(indicator, timeKeywords):
		// Time-of-day indicators are stored inconsistently upstream:
		// unix timestamps, seconds-since-midnight, or plain hours.
		switch {
		case v > 1e9:
			return float64(time.Unix(int64(v), 0).UTC().Hour())
		case v > 86400:
			return math.Mod(v, 86400) / 3600
		case v > 24:
			return math.Mod(v, 24)
		case v < 0:
			return 0
		}
		return v

	case strings.Contains(indicator, "blood_oxygen") || strings.Contains(indicator, "oxygen"):
		if v > 100 {
			return math.Min(100, math.Max(90, math.Mod(v, 100)+90))
		}
		if v < 50 {
			return math.Max(90, 95+math.Mod(v, 10))
		}
		return v

	case strings.Contains(indicator, "heart_rate") || strings.Contains(indicator, "hr_"):
		if v > 200 {
			return math.Min(200, math.Max(40, math.Mod(v, 160)+40))
		}
		if v < 30 {
			return math.Max(40, 60+math.Mod(v, 20))
		}
		return v

	case hasAny(indicator, []string{"percentage", "percent", "ratio"}):
		if v > 100 {
			return math.Mod(v, 100)
		}
		if v < 0 {
			return math.Mod(math.Abs(v), 100)
		}
		return v

	case strings.Contains(indicator, "steps"):
		if v > 50000 {
			return math.Mod(v, 50000)
		}
		if v < 0 {
			return math.Mod(math.Abs(v), 50000)
		}
		return v

	case strings.Contains(indicator, "duration"):
		// Durations normalize to minutes, capped at a day.
		switch {
		case v > 86400:
			return math.Min(1440, math.Mod(v, 86400)/60)
		case v > 3600:
			return math.Min(1440, v/60)
		case v > 1440:
			return math.Mod(v, 1440)
		case v < 0:
			return 0
		}
		return v

	case hasAny(indicator, []string{"count", "_days_", "frequency"}):
		if v > 365 {
			v = math.Mod(v, 365)
		}
		if v < 0 {
			v = 0
		}
		return math.Trunc(v)

	case strings.Contains(indicator, "distance"):
		if v > 100000 {
			return math.Mod(v, 100000)
		}
		if v < 0 {
			return 0
		}
		return v

	case strings.Contains(indicator, "vo2"):
		if v > 100 {
			return math.Min(80, math.Max(10, math.Mod(v, 80)+10))
		}
		if v < 0 {
			return math.Max(10, 30+math.Mod(math.Abs(v), 20))
		}
		return v
	}
	return v
}
