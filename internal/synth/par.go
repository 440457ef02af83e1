package synth

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"

	"github.com/montanaflynn/stats"
	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"

	"synthgen/internal/table"
)

// PAROptions configure the par model.
type PAROptions struct {
	Verbose bool
	Seed    int64
}

// PAR is the sequential model: rows are grouped into per-user
// sequences ordered by their sequence index, and each column is fit
// with an order-1 autoregressive model over consecutive steps.
// Categorical columns use a Markov transition table, numeric columns a
// least-squares AR(1) with Gaussian residuals. Sequences shorter than
// two steps carry no transition signal and are dropped from training.
// Sampling draws whole sequences under fresh synthetic user ids, with
// lengths drawn from the empirical length distribution.
type PAR struct {
	verbose bool
	rng     *rand.Rand

	columns []string
	kinds   []table.Kind
	seqKey  string
	seqIdx  string
	lengths []int
	cols    []parColumn
	fitted  bool
}

type parColumn struct {
	index   int
	numeric bool

	// numeric AR(1): next = a + b*cur + N(0, sigma).
	a, b, sigma        float64
	initMean, initStd  float64
	minVal, maxVal     float64
	allInt             bool

	// categorical Markov chain. initCum and each transCum row are
	// cumulative distributions over cats.
	cats     []string
	catIdx   map[string]int
	initCum  []float64
	transCum [][]float64
}

func NewPAR(opt PAROptions) *PAR {
	seed := opt.Seed
	if seed == 0 {
		seed = 1
	}
	return &PAR{verbose: opt.Verbose, rng: rand.New(rand.NewSource(seed))}
}

func (p *PAR) Name() string { return "par" }

func (p *PAR) Fit(ctx context.Context, t *table.Table) error {
	meta := DetectSequentialMetadata(t)
	if meta.SequenceKey == "" {
		return fmt.Errorf("par: table has no sequence key column")
	}
	p.seqKey = meta.SequenceKey
	p.seqIdx = meta.SequenceIndex
	p.columns = append([]string(nil), t.Columns...)
	p.kinds = append([]table.Kind(nil), t.Kinds...)

	seqs := groupSequences(t, p.seqKey, p.seqIdx)
	// A single row carries no transition signal.
	kept := seqs[:0]
	for _, s := range seqs {
		if len(s) >= 2 {
			kept = append(kept, s)
		}
	}
	seqs = kept
	if len(seqs) == 0 {
		return fmt.Errorf("par: no sequences with at least 2 steps")
	}
	p.lengths = p.lengths[:0]
	for _, s := range seqs {
		p.lengths = append(p.lengths, len(s))
	}

	keyIdx := t.ColumnIndex(p.seqKey)
	idxIdx := t.ColumnIndex(p.seqIdx)
	p.cols = p.cols[:0]
	for i := range t.Columns {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i == keyIdx || i == idxIdx {
			continue
		}
		switch t.Kinds[i] {
		case table.KindNumeric, table.KindID:
			p.cols = append(p.cols, fitNumericAR(seqs, i))
		default:
			p.cols = append(p.cols, fitMarkov(seqs, i))
		}
	}
	p.fitted = true
	return nil
}

// groupSequences splits rows into per-key sequences ordered by the
// index column. Rows arrive already sorted by key and index, so the
// in-group sort is a no-op except for unsorted input.
func groupSequences(t *table.Table, key, idx string) [][][]string {
	keyIdx := t.ColumnIndex(key)
	idxIdx := t.ColumnIndex(idx)

	byKey := map[string][][]string{}
	var order []string
	for _, row := range t.Rows {
		k := row[keyIdx]
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], row)
	}

	out := make([][][]string, 0, len(order))
	for _, k := range order {
		s := byKey[k]
		if idxIdx >= 0 {
			sort.SliceStable(s, func(a, b int) bool {
				fa, oka := table.ParseFloat(s[a][idxIdx])
				fb, okb := table.ParseFloat(s[b][idxIdx])
				if oka && okb {
					return fa < fb
				}
				return s[a][idxIdx] < s[b][idxIdx]
			})
		}
		out = append(out, s)
	}
	return out
}

func fitNumericAR(seqs [][][]string, col int) parColumn {
	c := parColumn{index: col, numeric: true, allInt: true}

	var firsts, all, xs, ys []float64
	for _, s := range seqs {
		var prev float64
		havePrev := false
		for step, row := range s {
			f, ok := table.ParseFloat(row[col])
			if !ok {
				havePrev = false
				continue
			}
			all = append(all, f)
			if f != math.Trunc(f) {
				c.allInt = false
			}
			if step == 0 {
				firsts = append(firsts, f)
			}
			if havePrev {
				xs = append(xs, prev)
				ys = append(ys, f)
			}
			prev, havePrev = f, true
		}
	}
	if len(all) == 0 {
		all = []float64{0}
	}
	c.minVal, _ = stats.Min(all)
	c.maxVal, _ = stats.Max(all)
	if len(firsts) == 0 {
		firsts = all
	}
	c.initMean, _ = stats.Mean(firsts)
	c.initStd, _ = stats.StandardDeviation(firsts)

	// Least-squares AR(1). Constant or empty pairs degrade to a flat
	// walk around the initial mean.
	c.a, c.b = c.initMean, 0
	if len(xs) >= 2 {
		mx, _ := stats.Mean(xs)
		my, _ := stats.Mean(ys)
		var sxx, sxy float64
		for i := range xs {
			sxx += (xs[i] - mx) * (xs[i] - mx)
			sxy += (xs[i] - mx) * (ys[i] - my)
		}
		if sxx > 0 {
			c.b = sxy / sxx
			c.a = my - c.b*mx
		}
		resid := make([]float64, len(xs))
		for i := range xs {
			resid[i] = ys[i] - (c.a + c.b*xs[i])
		}
		c.sigma, _ = stats.StandardDeviation(resid)
	}
	return c
}

func fitMarkov(seqs [][][]string, col int) parColumn {
	c := parColumn{index: col, catIdx: map[string]int{}}

	counts := map[string]int{}
	for _, s := range seqs {
		for _, row := range s {
			counts[row[col]]++
		}
	}
	for v := range counts {
		c.cats = append(c.cats, v)
	}
	sort.Strings(c.cats)
	for k, v := range c.cats {
		c.catIdx[v] = k
	}
	n := len(c.cats)

	initCounts := make([]float64, n)
	trans := make([][]float64, n)
	for k := range trans {
		// Add-one smoothing keeps unseen transitions reachable.
		trans[k] = make([]float64, n)
		for j := range trans[k] {
			trans[k][j] = 1
		}
	}
	for _, s := range seqs {
		initCounts[c.catIdx[s[0][col]]]++
		for step := 1; step < len(s); step++ {
			from := c.catIdx[s[step-1][col]]
			to := c.catIdx[s[step][col]]
			trans[from][to]++
		}
	}

	c.initCum = cumulative(initCounts)
	c.transCum = make([][]float64, n)
	for k := range trans {
		c.transCum[k] = cumulative(trans[k])
	}
	return c
}

// cumulative normalizes counts into a cumulative distribution ending
// at 1. All-zero counts become uniform.
func cumulative(counts []float64) []float64 {
	total := 0.0
	for _, v := range counts {
		total += v
	}
	out := make([]float64, len(counts))
	if total == 0 {
		for k := range out {
			out[k] = float64(k+1) / float64(len(counts))
		}
		return out
	}
	run := 0.0
	for k, v := range counts {
		run += v
		out[k] = run / total
	}
	out[len(out)-1] = 1
	return out
}

func drawCum(cum []float64, rng *rand.Rand) int {
	u := rng.Float64()
	for k, c := range cum {
		if u < c {
			return k
		}
	}
	return len(cum) - 1
}

// Sample generates n synthetic sequences. Sequence keys are fresh ids
// (1..n) so synthetic users never collide with training users.
func (p *PAR) Sample(ctx context.Context, n int) (*table.Table, error) {
	if !p.fitted {
		return nil, fmt.Errorf("par: Sample before Fit")
	}
	out := table.New(p.columns)
	copy(out.Kinds, p.kinds)
	keyIdx := out.ColumnIndex(p.seqKey)
	idxIdx := out.ColumnIndex(p.seqIdx)

	emit := func(s int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		length := p.lengths[p.rng.Intn(len(p.lengths))]
		state := make([]interface{}, len(p.cols))
		for step := 0; step < length; step++ {
			row := make([]string, len(p.columns))
			if keyIdx >= 0 {
				row[keyIdx] = strconv.Itoa(s + 1)
			}
			if idxIdx >= 0 {
				row[idxIdx] = strconv.Itoa(step)
			}
			for ci, c := range p.cols {
				if c.numeric {
					var x float64
					if step == 0 {
						x = c.initMean + p.rng.NormFloat64()*c.initStd
					} else {
						x = c.a + c.b*state[ci].(float64) + p.rng.NormFloat64()*c.sigma
					}
					x = clamp(x, c.minVal, c.maxVal)
					state[ci] = x
					if c.allInt {
						x = math.Round(x)
					}
					row[c.index] = table.FormatFloat(x)
				} else {
					var k int
					if step == 0 {
						k = drawCum(c.initCum, p.rng)
					} else {
						k = drawCum(c.transCum[state[ci].(int)], p.rng)
					}
					state[ci] = k
					row[c.index] = c.cats[k]
				}
			}
			out.Rows = append(out.Rows, row)
		}
		return nil
	}

	if p.verbose {
		var loopErr error
		_ = tqdm.With(iterators.Interval(0, n), "par", func(v interface{}) (brk bool) {
			if err := emit(v.(int)); err != nil {
				loopErr = err
				return true
			}
			return false
		})
		if loopErr != nil {
			return nil, loopErr
		}
	} else {
		for s := 0; s < n; s++ {
			if err := emit(s); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
