// Package synth implements the five synthetic-data models and the
// common interface the commands drive them through.
//
// Models:
//   - gaussian_copula: statistical model; empirical marginals coupled
//     through a Gaussian copula. Fast, deterministic training.
//   - ctgan / copulagan: adversarial generators over the encoded
//     table (copulagan normalizes marginals to normal scores first).
//   - tvae: variational autoencoder over the encoded table.
//   - par: autoregressive model over per-user sequences.
//
// All models consume a preprocessed table.Table and produce sampled
// rows in the same schema. Training and sampling are blocking and
// honor ctx cancellation between epochs/rows.
package synth

import (
	"context"
	"fmt"

	"synthgen/internal/table"
)

// Synthesizer is one trainable synthetic-data model.
type Synthesizer interface {
	Name() string
	// Fit trains on the preprocessed table.
	Fit(ctx context.Context, t *table.Table) error
	// Sample generates n synthetic rows in the training schema. For
	// the sequential par model n counts sequences, not rows.
	Sample(ctx context.Context, n int) (*table.Table, error)
}

// Output tags sampled rows with their origin for the evaluator.
type Output struct {
	Model string
	Rows  *table.Table
}

// ModelNames lists the models in their canonical run order.
var ModelNames = []string{"gaussian_copula", "ctgan", "copulagan", "tvae", "par"}

// Descriptions summarizes each model for reports.
var Descriptions = map[string]string{
	"gaussian_copula": "classic statistical model, fast training, suited to structured data",
	"ctgan":           "adversarial deep model, highest fidelity, slowest training",
	"copulagan":       "hybrid copula+adversarial model, balances speed and quality",
	"tvae":            "variational autoencoder, suited to feature learning",
	"par":             "probabilistic autoregressive model for sequential data",
}

// New constructs a synthesizer by canonical name with its fixed
// hyperparameters. seed drives all stochastic behavior.
func New(name string, seed int64) (Synthesizer, error) {
	switch name {
	case "gaussian_copula":
		return NewGaussianCopula(CopulaOptions{
			EnforceMinMax:   true,
			EnforceRounding: true,
			Seed:            seed,
		}), nil
	case "ctgan":
		return NewCTGAN(CTGANOptions{Seed: seed}), nil
	case "copulagan":
		return NewCopulaGAN(CopulaGANOptions{Seed: seed}), nil
	case "tvae":
		return NewTVAE(TVAEOptions{Seed: seed}), nil
	case "par":
		return NewPAR(PAROptions{Seed: seed}), nil
	default:
		return nil, fmt.Errorf("synth: unknown model %q", name)
	}
}
