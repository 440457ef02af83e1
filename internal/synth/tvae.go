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

// TVAEOptions configure the tvae model.
type TVAEOptions struct {
	Epochs  int
	Verbose bool
	Seed    int64
}

// TVAE is the variational autoencoder: an encoder produces a Gaussian
// posterior over a latent code, the decoder reconstructs the encoded
// row, and sampling decodes latent draws from the prior.
type TVAE struct {
	epochs    int
	batchSize int
	latent    int
	l2scale   float64
	verbose   bool

	rng     *rand.Rand
	enc     *tableEncoder
	encoder *nn.Network // dim -> 64 -> 64 -> 2*latent (mu, logvar)
	decoder *nn.Network // latent -> 64 -> 64 -> dim
	fitted  bool
}

func NewTVAE(opt TVAEOptions) *TVAE {
	epochs := opt.Epochs
	if epochs <= 0 {
		epochs = 20
	}
	seed := opt.Seed
	if seed == 0 {
		seed = 1
	}
	return &TVAE{
		epochs:    epochs,
		batchSize: 500,
		latent:    32,
		l2scale:   1e-5,
		verbose:   opt.Verbose,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

func (v *TVAE) Name() string { return "tvae" }

func (v *TVAE) Fit(ctx context.Context, t *table.Table) error {
	if t.NumRows() < 2 {
		return fmt.Errorf("tvae: need at least 2 rows, have %d", t.NumRows())
	}
	enc, err := newTableEncoder(t)
	if err != nil {
		return fmt.Errorf("tvae: %w", err)
	}
	v.enc = enc
	data := enc.matrix(t)

	v.encoder = nn.New(v.rng, []int{enc.dim, 64, 64, 2 * v.latent}, nn.ReLU, nn.Linear)
	v.decoder = nn.New(v.rng, []int{v.latent, 64, 64, enc.dim}, nn.ReLU, nn.Tanh)

	optE := nn.NewAdam(1e-3)
	optE.WeightDecay = v.l2scale
	optD := nn.NewAdam(1e-3)
	optD.WeightDecay = v.l2scale

	batch := v.batchSize
	if batch > t.NumRows() {
		batch = t.NumRows()
	}
	stepsPerEpoch := t.NumRows() / batch
	if stepsPerEpoch < 1 {
		stepsPerEpoch = 1
	}
	klWeight := 1 / float64(enc.dim)

	epoch := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for s := 0; s < stepsPerEpoch; s++ {
			v.step(data, batch, klWeight, optE, optD)
		}
		return nil
	}

	if v.verbose {
		var loopErr error
		_ = tqdm.With(iterators.Interval(0, v.epochs), "tvae", func(interface{}) (brk bool) {
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
		for e := 0; e < v.epochs; e++ {
			if err := epoch(); err != nil {
				return err
			}
		}
	}
	v.fitted = true
	return nil
}

func (v *TVAE) step(data *mat.Dense, batch int, klWeight float64, optE, optD *nn.Adam) {
	rows, _ := data.Dims()
	x := mat.NewDense(batch, v.enc.dim, nil)
	for r := 0; r < batch; r++ {
		copy(x.RawRowView(r), data.RawRowView(v.rng.Intn(rows)))
	}

	encOut, encCache := v.encoder.Forward(x)

	// Reparameterize: z = mu + eps * exp(logvar/2).
	z := mat.NewDense(batch, v.latent, nil)
	eps := mat.NewDense(batch, v.latent, nil)
	for r := 0; r < batch; r++ {
		er, zr, or := eps.RawRowView(r), z.RawRowView(r), encOut.RawRowView(r)
		for j := 0; j < v.latent; j++ {
			er[j] = v.rng.NormFloat64()
			zr[j] = or[j] + er[j]*math.Exp(or[v.latent+j]/2)
		}
	}

	xhat, decCache := v.decoder.Forward(z)

	// Reconstruction gradient.
	dXhat := mat.NewDense(batch, v.enc.dim, nil)
	for r := 0; r < batch; r++ {
		xr, hr, dr := x.RawRowView(r), xhat.RawRowView(r), dXhat.RawRowView(r)
		for j := range dr {
			dr[j] = 2 * (hr[j] - xr[j])
		}
	}
	decGrads, dZ := v.decoder.Backward(decCache, dXhat)
	optD.Step(v.decoder, decGrads)

	// Gradient w.r.t. the encoder output: the reparameterized path
	// plus the KL term against the unit Gaussian prior.
	dEnc := mat.NewDense(batch, 2*v.latent, nil)
	for r := 0; r < batch; r++ {
		or, zr, der := encOut.RawRowView(r), dZ.RawRowView(r), dEnc.RawRowView(r)
		for j := 0; j < v.latent; j++ {
			mu, lv := or[j], or[v.latent+j]
			der[j] = zr[j] + klWeight*mu
			der[v.latent+j] = zr[j]*0.5*math.Exp(lv/2)*epsAt(z, encOut, r, j, v.latent) +
				klWeight*0.5*(math.Exp(lv)-1)
		}
	}
	encGrads, _ := v.encoder.Backward(encCache, dEnc)
	optE.Step(v.encoder, encGrads)
}

// epsAt recovers the noise draw from z = mu + eps*exp(lv/2).
func epsAt(z, encOut *mat.Dense, r, j, latent int) float64 {
	mu := encOut.At(r, j)
	lv := encOut.At(r, latent+j)
	return (z.At(r, j) - mu) / math.Exp(lv/2)
}

func (v *TVAE) Sample(ctx context.Context, n int) (*table.Table, error) {
	if !v.fitted {
		return nil, fmt.Errorf("tvae: Sample before Fit")
	}
	z := mat.NewDense(n, v.latent, nil)
	for r := 0; r < n; r++ {
		zr := z.RawRowView(r)
		for j := range zr {
			zr[j] = v.rng.NormFloat64()
		}
	}
	vecs, _ := v.decoder.Forward(z)

	out := v.enc.newTable()
	for r := 0; r < n; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out.Rows = append(out.Rows, v.enc.decodeRow(vecs.RawRowView(r), v.rng))
	}
	return out, nil
}
