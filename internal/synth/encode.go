package synth

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"synthgen/internal/table"
)

// tableEncoder maps table rows onto fixed-width float vectors for the
// neural models and back.
//
// Encoding per column:
//   - numeric/id: one dimension, min-max scaled to [-1, 1]. Columns
//     whose observed values are all integers decode with rounding.
//   - categorical/datetime-as-string: one-hot over the observed
//     categories.
//
// Decoding samples categoricals by gumbel-argmax over the raw outputs
// so near-ties stay diverse instead of collapsing onto one category.
type tableEncoder struct {
	columns []string
	kinds   []table.Kind
	codecs  []colCodec
	dim     int
}

type colCodec struct {
	offset  int
	width   int
	numeric bool

	min, max float64
	allInt   bool

	cats  []string
	index map[string]int
}

func newTableEncoder(t *table.Table) (*tableEncoder, error) {
	e := &tableEncoder{
		columns: append([]string(nil), t.Columns...),
		kinds:   append([]table.Kind(nil), t.Kinds...),
	}
	for i := range t.Columns {
		c := colCodec{offset: e.dim}
		switch t.Kinds[i] {
		case table.KindNumeric, table.KindID:
			c.numeric = true
			c.width = 1
			c.min, c.max = math.Inf(1), math.Inf(-1)
			c.allInt = true
			for _, row := range t.Rows {
				f, ok := table.ParseFloat(row[i])
				if !ok {
					continue
				}
				c.min = math.Min(c.min, f)
				c.max = math.Max(c.max, f)
				if f != math.Trunc(f) {
					c.allInt = false
				}
			}
			if math.IsInf(c.min, 1) {
				c.min, c.max = 0, 0
			}
		default:
			c.index = map[string]int{}
			for _, row := range t.Rows {
				v := row[i]
				if _, ok := c.index[v]; !ok {
					c.index[v] = 0
					c.cats = append(c.cats, v)
				}
			}
			sort.Strings(c.cats)
			for j, v := range c.cats {
				c.index[v] = j
			}
			if len(c.cats) == 0 {
				return nil, fmt.Errorf("synth: column %s has no values to encode", t.Columns[i])
			}
			c.width = len(c.cats)
		}
		e.dim += c.width
		e.codecs = append(e.codecs, c)
	}
	if e.dim == 0 {
		return nil, fmt.Errorf("synth: table encodes to zero dimensions")
	}
	return e, nil
}

func (e *tableEncoder) encodeRow(row []string, dst []float64) {
	for i := range dst {
		dst[i] = 0
	}
	for ci, c := range e.codecs {
		if c.numeric {
			f, ok := table.ParseFloat(row[ci])
			if !ok {
				f = (c.min + c.max) / 2
			}
			dst[c.offset] = scaleTo(f, c.min, c.max)
			continue
		}
		j, ok := c.index[row[ci]]
		if !ok {
			j = 0
		}
		dst[c.offset+j] = 1
	}
}

// matrix encodes all rows into a rows×dim dense matrix.
func (e *tableEncoder) matrix(t *table.Table) *mat.Dense {
	m := mat.NewDense(t.NumRows(), e.dim, nil)
	for r, row := range t.Rows {
		e.encodeRow(row, m.RawRowView(r))
	}
	return m
}

// decodeRow converts one generated vector back into table cells.
func (e *tableEncoder) decodeRow(vec []float64, rng *rand.Rand) []string {
	row := make([]string, len(e.codecs))
	for ci, c := range e.codecs {
		if c.numeric {
			f := scaleFrom(clamp(vec[c.offset], -1, 1), c.min, c.max)
			if c.allInt {
				f = math.Round(f)
			}
			row[ci] = table.FormatFloat(f)
			continue
		}
		best, bestScore := 0, math.Inf(-1)
		for j := 0; j < c.width; j++ {
			score := vec[c.offset+j] + gumbel(rng)*0.05
			if score > bestScore {
				best, bestScore = j, score
			}
		}
		row[ci] = c.cats[best]
	}
	return row
}

// newTable builds an empty output table in the training schema.
func (e *tableEncoder) newTable() *table.Table {
	out := table.New(e.columns)
	copy(out.Kinds, e.kinds)
	return out
}

func scaleTo(f, min, max float64) float64 {
	if max <= min {
		return 0
	}
	return 2*(f-min)/(max-min) - 1
}

func scaleFrom(v, min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + (v+1)/2*(max-min)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func gumbel(rng *rand.Rand) float64 {
	u := rng.Float64()
	for u == 0 {
		u = rng.Float64()
	}
	return -math.Log(-math.Log(u))
}
