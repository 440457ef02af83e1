package synth

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"synthgen/internal/table"
)

// CopulaOptions configure the gaussian_copula model.
type CopulaOptions struct {
	// EnforceMinMax keeps sampled numerics inside the observed range.
	EnforceMinMax bool
	// EnforceRounding rounds columns whose observed values were all
	// integers.
	EnforceRounding bool
	Seed            int64
}

// GaussianCopula couples empirical per-column marginals through a
// Gaussian copula: every cell is mapped to a uniform via its marginal
// CDF, the uniforms to normal scores, and the correlation of those
// scores is what the model learns. Categorical columns participate by
// occupying their cumulative-frequency interval on the uniform scale.
type GaussianCopula struct {
	opt  CopulaOptions
	rng  *rand.Rand
	meta Metadata

	marginals []marginal
	columns   []string
	kinds     []table.Kind
	chol      mat.Cholesky
	fitted    bool
}

func NewGaussianCopula(opt CopulaOptions) *GaussianCopula {
	seed := opt.Seed
	if seed == 0 {
		seed = 1
	}
	return &GaussianCopula{opt: opt, rng: rand.New(rand.NewSource(seed))}
}

func (g *GaussianCopula) Name() string { return "gaussian_copula" }

type marginal struct {
	numeric bool

	// numeric: sorted observations.
	sorted []float64
	allInt bool

	// categorical: categories with cumulative-frequency bounds, so
	// category k owns the uniform interval [cum[k], cum[k+1]).
	cats []string
	cum  []float64
}

func (g *GaussianCopula) Fit(ctx context.Context, t *table.Table) error {
	if t.NumRows() < 2 {
		return fmt.Errorf("gaussian_copula: need at least 2 rows, have %d", t.NumRows())
	}
	g.columns = append([]string(nil), t.Columns...)
	g.kinds = append([]table.Kind(nil), t.Kinds...)
	g.meta = DetectMetadata(t)
	g.marginals = make([]marginal, len(t.Columns))

	for i := range t.Columns {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch t.Kinds[i] {
		case table.KindNumeric, table.KindID:
			g.marginals[i] = fitNumericMarginal(t, i)
		default:
			g.marginals[i] = fitCategoricalMarginal(t, i)
		}
	}

	// Normal scores of every cell.
	n, d := t.NumRows(), len(t.Columns)
	z := mat.NewDense(n, d, nil)
	norm := distuv.UnitNormal
	for r, row := range t.Rows {
		for i := range row {
			u := g.marginals[i].toUniform(row[i], g.rng)
			z.Set(r, i, norm.Quantile(clamp(u, 1e-6, 1-1e-6)))
		}
	}

	corr := mat.NewSymDense(d, nil)
	stat.CorrelationMatrix(corr, z, nil)
	sanitizeCorrelation(corr)

	// Constant columns make the matrix rank-deficient; shrink toward
	// the identity until the factorization succeeds.
	for jitter := 0.0; ; jitter += 0.05 {
		if jitter > 1 {
			return fmt.Errorf("gaussian_copula: correlation matrix not positive definite")
		}
		shrunk := shrinkToIdentity(corr, jitter)
		if g.chol.Factorize(shrunk) {
			break
		}
	}
	g.fitted = true
	return nil
}

func (g *GaussianCopula) Sample(ctx context.Context, n int) (*table.Table, error) {
	if !g.fitted {
		return nil, fmt.Errorf("gaussian_copula: Sample before Fit")
	}
	d := len(g.columns)
	var l mat.TriDense
	g.chol.LTo(&l)

	out := table.New(g.columns)
	copy(out.Kinds, g.kinds)

	norm := distuv.UnitNormal
	eps := make([]float64, d)
	z := make([]float64, d)
	for r := 0; r < n; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range eps {
			eps[i] = g.rng.NormFloat64()
		}
		for i := 0; i < d; i++ {
			sum := 0.0
			for j := 0; j <= i; j++ {
				sum += l.At(i, j) * eps[j]
			}
			z[i] = sum
		}
		row := make([]string, d)
		for i := 0; i < d; i++ {
			u := norm.CDF(z[i])
			row[i] = g.marginals[i].fromUniform(u, g.opt)
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func fitNumericMarginal(t *table.Table, col int) marginal {
	m := marginal{numeric: true, allInt: true}
	for _, row := range t.Rows {
		f, ok := table.ParseFloat(row[col])
		if !ok {
			continue
		}
		m.sorted = append(m.sorted, f)
		if f != math.Trunc(f) {
			m.allInt = false
		}
	}
	if len(m.sorted) == 0 {
		m.sorted = []float64{0}
	}
	sort.Float64s(m.sorted)
	return m
}

func fitCategoricalMarginal(t *table.Table, col int) marginal {
	counts := map[string]int{}
	total := 0
	for _, row := range t.Rows {
		counts[row[col]]++
		total++
	}
	m := marginal{}
	for v := range counts {
		m.cats = append(m.cats, v)
	}
	sort.Strings(m.cats)
	m.cum = make([]float64, len(m.cats)+1)
	for k, v := range m.cats {
		m.cum[k+1] = m.cum[k] + float64(counts[v])/float64(total)
	}
	m.cum[len(m.cats)] = 1
	return m
}

// toUniform maps a cell onto (0,1) under the marginal. Numeric values
// take their mid-rank; categoricals draw uniformly from their
// cumulative-frequency interval, which is what lets a discrete column
// live on the continuous copula scale.
func (m marginal) toUniform(v string, rng *rand.Rand) float64 {
	if m.numeric {
		f, ok := table.ParseFloat(v)
		if !ok {
			f = m.sorted[len(m.sorted)/2]
		}
		lo := sort.SearchFloat64s(m.sorted, f)
		hi := sort.Search(len(m.sorted), func(i int) bool { return m.sorted[i] > f })
		return (float64(lo+hi)/2 + 0.5) / float64(len(m.sorted)+1)
	}
	k := sort.SearchStrings(m.cats, v)
	if k >= len(m.cats) || m.cats[k] != v {
		k = 0
	}
	lo, hi := m.cum[k], m.cum[k+1]
	return lo + rng.Float64()*(hi-lo)
}

// fromUniform inverts the marginal. Numeric inversion indexes into the
// sorted observations, so min/max enforcement holds by construction.
func (m marginal) fromUniform(u float64, opt CopulaOptions) string {
	if m.numeric {
		idx := int(u * float64(len(m.sorted)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(m.sorted) {
			idx = len(m.sorted) - 1
		}
		f := m.sorted[idx]
		if opt.EnforceRounding && m.allInt {
			f = math.Round(f)
		}
		if opt.EnforceMinMax {
			f = clamp(f, m.sorted[0], m.sorted[len(m.sorted)-1])
		}
		return table.FormatFloat(f)
	}
	for k := range m.cats {
		if u < m.cum[k+1] {
			return m.cats[k]
		}
	}
	return m.cats[len(m.cats)-1]
}

func sanitizeCorrelation(s *mat.SymDense) {
	d := s.SymmetricDim()
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			v := s.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				if i == j {
					s.SetSym(i, j, 1)
				} else {
					s.SetSym(i, j, 0)
				}
			}
		}
	}
}

func shrinkToIdentity(s *mat.SymDense, lambda float64) *mat.SymDense {
	d := s.SymmetricDim()
	out := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			v := s.At(i, j) * (1 - lambda)
			if i == j {
				v = s.At(i, j)*(1-lambda) + lambda
			}
			out.SetSym(i, j, v)
		}
	}
	return out
}
