package prep

import (
	"sort"

	"synthgen/internal/table"
)

// OtherBucket is the catch-all label for bucketed categories.
const OtherBucket = "other"

// cardinalityFloor is the distinct count above which a categorical
// column is bucketed. Single-user slices are small, so the floor is
// low.
const cardinalityFloor = 50

// keep-set sizes for the fixed strategies.
const (
	frequencyKeepTop = 30
	simpleKeepTop    = 15
	adaptiveCoverage = 0.9
)

// reduceCardinality buckets every unprotected categorical column whose
// distinct count exceeds the floor.
func reduceCardinality(t *table.Table, strategy string, otherCeiling float64) {
	for i, name := range t.Columns {
		if protectedFields[name] || t.Kinds[i] != table.KindCategorical {
			continue
		}
		col := make([]string, t.NumRows())
		for r, row := range t.Rows {
			col[r] = row[i]
		}
		if distinctCount(col) <= cardinalityFloor {
			continue
		}
		BucketColumn(col, strategy, otherCeiling)
		for r, row := range t.Rows {
			row[i] = col[r]
		}
	}
}

// BucketColumn rewrites values in place, replacing everything outside
// the keep-set with OtherBucket.
//
// Strategies:
//   - frequency_based: keep the top 30 values by count, then widen the
//     keep-set until at most ceiling of the rows are labeled other.
//   - adaptive: keep the most frequent values whose cumulative share
//     stays within 90% of the rows.
//   - simple: keep the top 15 values.
//
// The ceiling applies only to frequency_based; it exists because a
// fixed top-N can dump the majority of a long-tailed column into
// other, which starves the models of the very categories they are
// supposed to reproduce.
func BucketColumn(col []string, strategy string, otherCeiling float64) {
	ranked := rankByCount(col)
	var keep map[string]bool

	switch strategy {
	case StrategyAdaptive:
		keep = make(map[string]bool)
		budget := int(float64(len(col)) * adaptiveCoverage)
		used := 0
		for _, rc := range ranked {
			if used+rc.n > budget {
				break
			}
			keep[rc.v] = true
			used += rc.n
		}
	case StrategySimple:
		keep = keepTop(ranked, simpleKeepTop)
	default: // frequency_based
		n := frequencyKeepTop
		if otherCeiling <= 0 {
			otherCeiling = 0.5
		}
		for {
			keep = keepTop(ranked, n)
			if otherShare(col, keep) <= otherCeiling || n >= len(ranked) {
				break
			}
			n += frequencyKeepTop
		}
	}

	for i, v := range col {
		if v != "" && !keep[v] {
			col[i] = OtherBucket
		}
	}
}

type rankedCount struct {
	v string
	n int
}

func rankByCount(col []string) []rankedCount {
	counts := map[string]int{}
	for _, v := range col {
		if v != "" {
			counts[v]++
		}
	}
	out := make([]rankedCount, 0, len(counts))
	for v, n := range counts {
		out = append(out, rankedCount{v, n})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].n != out[b].n {
			return out[a].n > out[b].n
		}
		return out[a].v < out[b].v
	})
	return out
}

func keepTop(ranked []rankedCount, n int) map[string]bool {
	if n > len(ranked) {
		n = len(ranked)
	}
	keep := make(map[string]bool, n)
	for _, rc := range ranked[:n] {
		keep[rc.v] = true
	}
	return keep
}

func otherShare(col []string, keep map[string]bool) float64 {
	if len(col) == 0 {
		return 0
	}
	other := 0
	for _, v := range col {
		if v != "" && !keep[v] {
			other++
		}
	}
	return float64(other) / float64(len(col))
}

func distinctCount(col []string) int {
	seen := map[string]struct{}{}
	for _, v := range col {
		if v != "" {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}
