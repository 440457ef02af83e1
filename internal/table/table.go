// Package table implements the in-memory tabular dataset shared by the
// preprocessing, synthesis, and evaluation stages.
//
// A Table is rows × named columns of string cells. The empty string is
// the missing value; loaders normalize blank/whitespace-only cells to
// "" on the way in. Column kinds (numeric, categorical, timestamp, id)
// are assigned by the preprocessor and carried alongside the data so
// downstream stages never re-infer them.
//
// The column set of a Table is fixed for the lifetime of one run:
// mutating helpers (DropColumns, AddColumn) return the same Table for
// chaining but are only used during preprocessing, before the table is
// handed to a synthesizer.
package table

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
)

// Kind classifies a column for modeling purposes.
type Kind int

const (
	KindUnknown Kind = iota
	KindNumeric
	KindCategorical
	KindTimestamp
	KindID
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindCategorical:
		return "categorical"
	case KindTimestamp:
		return "timestamp"
	case KindID:
		return "id"
	default:
		return "unknown"
	}
}

// Table holds a dataset in memory. Rows are aligned to Columns; Kinds
// is aligned to Columns as well (KindUnknown until assigned).
type Table struct {
	Columns []string
	Kinds   []Kind
	Rows    [][]string
}

// New creates an empty table with the given column names.
func New(columns []string) *Table {
	return &Table{
		Columns: append([]string(nil), columns...),
		Kinds:   make([]Kind, len(columns)),
	}
}

func (t *Table) NumRows() int { return len(t.Rows) }
func (t *Table) NumCols() int { return len(t.Columns) }

// ColumnIndex returns the index of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool { return t.ColumnIndex(name) >= 0 }

// Kind returns the kind of the named column (KindUnknown if absent).
func (t *Table) Kind(name string) Kind {
	if i := t.ColumnIndex(name); i >= 0 {
		return t.Kinds[i]
	}
	return KindUnknown
}

// SetKind assigns the kind of the named column; unknown names are ignored.
func (t *Table) SetKind(name string, k Kind) {
	if i := t.ColumnIndex(name); i >= 0 {
		t.Kinds[i] = k
	}
}

// Cell returns the value at (row, col index). Missing cells are "".
func (t *Table) Cell(row, col int) string { return t.Rows[row][col] }

// Float parses the cell at (row, col) as a float64.
// The second return is false for missing or unparseable cells.
func (t *Table) Float(row, col int) (float64, bool) {
	return ParseFloat(t.Rows[row][col])
}

// ParseFloat parses a single cell leniently: edge whitespace is
// trimmed and "" is missing.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// FormatFloat renders a float the way cells store numerics: integers
// without a decimal point, everything else with minimal digits.
func FormatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Column returns a copy of the named column's cells.
// Missing columns yield nil.
func (t *Table) Column(name string) []string {
	i := t.ColumnIndex(name)
	if i < 0 {
		return nil
	}
	out := make([]string, len(t.Rows))
	for r := range t.Rows {
		out[r] = t.Rows[r][i]
	}
	return out
}

// FloatColumn returns the parseable values of the named column,
// skipping missing and unparseable cells.
func (t *Table) FloatColumn(name string) []float64 {
	i := t.ColumnIndex(name)
	if i < 0 {
		return nil
	}
	out := make([]float64, 0, len(t.Rows))
	for r := range t.Rows {
		if f, ok := ParseFloat(t.Rows[r][i]); ok {
			out = append(out, f)
		}
	}
	return out
}

// MissingRatio returns the fraction of rows where the column at index
// i is missing. Empty tables report 0.
func (t *Table) MissingRatio(i int) float64 {
	if len(t.Rows) == 0 {
		return 0
	}
	missing := 0
	for r := range t.Rows {
		if t.Rows[r][i] == "" {
			missing++
		}
	}
	return float64(missing) / float64(len(t.Rows))
}

// AppendRow appends a row. The row length must match the column count.
func (t *Table) AppendRow(row []string) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("table: row has %d cells, want %d", len(row), len(t.Columns))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Kinds:   append([]Kind(nil), t.Kinds...),
		Rows:    make([][]string, len(t.Rows)),
	}
	for r := range t.Rows {
		out.Rows[r] = append([]string(nil), t.Rows[r]...)
	}
	return out
}

// DropColumns removes the named columns in place. Unknown names are
// ignored.
func (t *Table) DropColumns(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	keep := make([]int, 0, len(t.Columns))
	for i, c := range t.Columns {
		if !drop[c] {
			keep = append(keep, i)
		}
	}
	if len(keep) == len(t.Columns) {
		return
	}
	cols := make([]string, len(keep))
	kinds := make([]Kind, len(keep))
	for j, i := range keep {
		cols[j] = t.Columns[i]
		kinds[j] = t.Kinds[i]
	}
	for r := range t.Rows {
		row := make([]string, len(keep))
		for j, i := range keep {
			row[j] = t.Rows[r][i]
		}
		t.Rows[r] = row
	}
	t.Columns = cols
	t.Kinds = kinds
}

// AddColumn appends a new column with the given cells. The cell count
// must match the row count.
func (t *Table) AddColumn(name string, kind Kind, cells []string) error {
	if len(cells) != len(t.Rows) {
		return fmt.Errorf("table: column %s has %d cells, want %d", name, len(cells), len(t.Rows))
	}
	t.Columns = append(t.Columns, name)
	t.Kinds = append(t.Kinds, kind)
	for r := range t.Rows {
		t.Rows[r] = append(t.Rows[r], cells[r])
	}
	return nil
}

// Filter returns a new table containing the rows for which keep
// returns true. Schema (columns, kinds) is shared-by-copy.
func (t *Table) Filter(keep func(row []string) bool) *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Kinds:   append([]Kind(nil), t.Kinds...),
	}
	for _, row := range t.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Sample returns a new table with at most n rows, drawn without
// replacement using the given seed. When n >= NumRows the receiver's
// rows are kept as-is. Selected rows keep their original order so
// time-ordered data stays time-ordered.
func (t *Table) Sample(n int, seed int64) *Table {
	if n >= len(t.Rows) {
		return t.Clone()
	}
	rng := rand.New(rand.NewSource(seed))
	idx := rng.Perm(len(t.Rows))[:n]
	sort.Ints(idx)

	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Kinds:   append([]Kind(nil), t.Kinds...),
		Rows:    make([][]string, 0, n),
	}
	for _, i := range idx {
		out.Rows = append(out.Rows, append([]string(nil), t.Rows[i]...))
	}
	return out
}

// SortBy sorts rows in place by the given column indices, comparing
// numerically when both cells parse and lexically otherwise. Missing
// cells sort first.
func (t *Table) SortBy(cols ...int) {
	sort.SliceStable(t.Rows, func(a, b int) bool {
		for _, c := range cols {
			va, vb := t.Rows[a][c], t.Rows[b][c]
			if va == vb {
				continue
			}
			if va == "" {
				return true
			}
			if vb == "" {
				return false
			}
			fa, oka := ParseFloat(va)
			fb, okb := ParseFloat(vb)
			if oka && okb {
				if fa != fb {
					return fa < fb
				}
				continue
			}
			return va < vb
		}
		return false
	})
}
