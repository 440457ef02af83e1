package synth

import (
	"context"

	"synthgen/internal/table"
)

// CTGANOptions configure the ctgan model. Zero values take the tuned
// defaults below.
type CTGANOptions struct {
	Epochs  int
	Verbose bool
	Seed    int64
}

// CTGAN is the adversarial tabular model: deep generator, pac-grouped
// discriminator, matched learning rates.
type CTGAN struct {
	core *gan
}

func NewCTGAN(opt CTGANOptions) *CTGAN {
	epochs := opt.Epochs
	if epochs <= 0 {
		epochs = 150
	}
	return &CTGAN{core: newGAN(ganConfig{
		name:      "ctgan",
		epochs:    epochs,
		batchSize: 750,
		genDims:   []int{256, 256, 128},
		discDims:  []int{256, 256},
		genLR:     1.5e-4,
		discLR:    1.5e-4,
		discSteps: 1,
		pac:       10,
		verbose:   opt.Verbose,
		seed:      opt.Seed,
	})}
}

func (c *CTGAN) Name() string { return "ctgan" }

func (c *CTGAN) Fit(ctx context.Context, t *table.Table) error {
	return c.core.fit(ctx, t)
}

func (c *CTGAN) Sample(ctx context.Context, n int) (*table.Table, error) {
	return c.core.sample(ctx, n)
}
