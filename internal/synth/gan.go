package synth

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"
	"gonum.org/v1/gonum/mat"

	"synthgen/internal/synth/nn"
	"synthgen/internal/table"
)

// ganConfig is the shared adversarial-training configuration behind
// ctgan and copulagan.
type ganConfig struct {
	name      string
	epochs    int
	batchSize int
	genDims   []int
	discDims  []int
	genLR     float64
	discLR    float64
	discSteps int
	pac       int
	embedding int
	verbose   bool
	seed      int64
}

// gan trains a generator against a pac-grouped discriminator on the
// encoded table. The discriminator outputs logits; both losses are
// binary cross-entropy with logits, the generator uses the
// non-saturating form.
type gan struct {
	cfg ganConfig
	rng *rand.Rand

	enc    *tableEncoder
	gen    *nn.Network
	disc   *nn.Network
	data   *mat.Dense
	fitted bool
}

func newGAN(cfg ganConfig) *gan {
	if cfg.seed == 0 {
		cfg.seed = 1
	}
	if cfg.pac <= 0 {
		cfg.pac = 1
	}
	if cfg.embedding <= 0 {
		cfg.embedding = 128
	}
	return &gan{cfg: cfg, rng: rand.New(rand.NewSource(cfg.seed))}
}

func (g *gan) fit(ctx context.Context, t *table.Table) error {
	if t.NumRows() < g.cfg.pac {
		return fmt.Errorf("%s: need at least %d rows, have %d", g.cfg.name, g.cfg.pac, t.NumRows())
	}
	enc, err := newTableEncoder(t)
	if err != nil {
		return fmt.Errorf("%s: %w", g.cfg.name, err)
	}
	g.enc = enc
	g.data = enc.matrix(t)

	genSizes := append([]int{g.cfg.embedding}, g.cfg.genDims...)
	genSizes = append(genSizes, enc.dim)
	g.gen = nn.New(g.rng, genSizes, nn.ReLU, nn.Tanh)

	discSizes := append([]int{enc.dim * g.cfg.pac}, g.cfg.discDims...)
	discSizes = append(discSizes, 1)
	g.disc = nn.New(g.rng, discSizes, nn.ReLU, nn.Linear)

	optG := nn.NewAdam(g.cfg.genLR)
	optD := nn.NewAdam(g.cfg.discLR)

	// The batch must split evenly into pac groups.
	batch := g.cfg.batchSize - g.cfg.batchSize%g.cfg.pac
	if batch < g.cfg.pac {
		batch = g.cfg.pac
	}
	if batch > t.NumRows() {
		batch = t.NumRows() - t.NumRows()%g.cfg.pac
		if batch < g.cfg.pac {
			batch = g.cfg.pac
		}
	}
	stepsPerEpoch := t.NumRows() / batch
	if stepsPerEpoch < 1 {
		stepsPerEpoch = 1
	}

	epoch := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for s := 0; s < stepsPerEpoch; s++ {
			for ds := 0; ds < g.cfg.discSteps; ds++ {
				g.discriminatorStep(batch, optD)
			}
			g.generatorStep(batch, optG)
		}
		return nil
	}

	if g.cfg.verbose {
		var loopErr error
		_ = tqdm.With(iterators.Interval(0, g.cfg.epochs), g.cfg.name, func(v interface{}) (brk bool) {
			if err := epoch(); err != nil {
				loopErr = err
				return true
			}
			return false
		})
		if loopErr != nil {
			return loopErr
		}
	} else {
		for e := 0; e < g.cfg.epochs; e++ {
			if err := epoch(); err != nil {
				return err
			}
		}
	}
	g.fitted = true
	return nil
}

func (g *gan) discriminatorStep(batch int, opt *nn.Adam) {
	real := g.realBatch(batch)
	fake, _ := g.gen.Forward(g.noise(batch))

	realPacked := packRows(real, g.cfg.pac)
	fakePacked := packRows(fake, g.cfg.pac)

	// Real half: label 1.
	outR, cacheR := g.disc.Forward(realPacked)
	gradsR, _ := g.disc.Backward(cacheR, bceLogitGrad(outR, 1))
	opt.Step(g.disc, gradsR)

	// Fake half: label 0.
	outF, cacheF := g.disc.Forward(fakePacked)
	gradsF, _ := g.disc.Backward(cacheF, bceLogitGrad(outF, 0))
	opt.Step(g.disc, gradsF)
}

func (g *gan) generatorStep(batch int, opt *nn.Adam) {
	z := g.noise(batch)
	fake, genCache := g.gen.Forward(z)
	packed := packRows(fake, g.cfg.pac)

	out, discCache := g.disc.Forward(packed)
	// Non-saturating generator loss: pretend the fakes are real and
	// push the resulting gradient back through the discriminator.
	_, dPacked := g.disc.Backward(discCache, bceLogitGrad(out, 1))

	dFake := unpackRows(dPacked, g.cfg.pac, g.enc.dim)
	grads, _ := g.gen.Backward(genCache, dFake)
	opt.Step(g.gen, grads)
}

func (g *gan) sample(ctx context.Context, n int) (*table.Table, error) {
	if !g.fitted {
		return nil, fmt.Errorf("%s: Sample before Fit", g.cfg.name)
	}
	out := g.enc.newTable()
	vecs, _ := g.gen.Forward(g.noise(n))
	for r := 0; r < n; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out.Rows = append(out.Rows, g.enc.decodeRow(vecs.RawRowView(r), g.rng))
	}
	return out, nil
}

func (g *gan) realBatch(batch int) *mat.Dense {
	rows, _ := g.data.Dims()
	out := mat.NewDense(batch, g.enc.dim, nil)
	for r := 0; r < batch; r++ {
		copy(out.RawRowView(r), g.data.RawRowView(g.rng.Intn(rows)))
	}
	return out
}

func (g *gan) noise(n int) *mat.Dense {
	z := mat.NewDense(n, g.cfg.embedding, nil)
	for r := 0; r < n; r++ {
		zr := z.RawRowView(r)
		for j := range zr {
			zr[j] = g.rng.NormFloat64()
		}
	}
	return z
}

// bceLogitGrad is d(BCE-with-logits)/d(logit) = sigmoid(logit)-label.
func bceLogitGrad(logits *mat.Dense, label float64) *mat.Dense {
	rows, cols := logits.Dims()
	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		lr, or := logits.RawRowView(r), out.RawRowView(r)
		for j := range lr {
			or[j] = 1/(1+math.Exp(-lr[j])) - label
		}
	}
	return out
}

// packRows concatenates consecutive groups of pac rows into one row.
func packRows(m *mat.Dense, pac int) *mat.Dense {
	rows, cols := m.Dims()
	groups := rows / pac
	out := mat.NewDense(groups, cols*pac, nil)
	for gi := 0; gi < groups; gi++ {
		dst := out.RawRowView(gi)
		for k := 0; k < pac; k++ {
			copy(dst[k*cols:(k+1)*cols], m.RawRowView(gi*pac+k))
		}
	}
	return out
}

// unpackRows splits packed gradient rows back into per-sample rows.
func unpackRows(m *mat.Dense, pac, cols int) *mat.Dense {
	groups, _ := m.Dims()
	out := mat.NewDense(groups*pac, cols, nil)
	for gi := 0; gi < groups; gi++ {
		src := m.RawRowView(gi)
		for k := 0; k < pac; k++ {
			copy(out.RawRowView(gi*pac+k), src[k*cols:(k+1)*cols])
		}
	}
	return out
}
