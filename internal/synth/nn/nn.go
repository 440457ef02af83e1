// Package nn is the small dense-network toolkit behind the neural
// synthesizers. It provides an MLP with manual backprop and SGD/Adam
// optimizers; nothing here is model-specific.
package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Activation selects a layer's nonlinearity.
type Activation int

const (
	Linear Activation = iota
	ReLU
	Tanh
	Sigmoid
)

func activate(a Activation, x float64) float64 {
	switch a {
	case ReLU:
		if x > 0 {
			return x
		}
		return 0
	case Tanh:
		return math.Tanh(x)
	case Sigmoid:
		return 1 / (1 + math.Exp(-x))
	default:
		return x
	}
}

// activatePrime is the derivative at pre-activation x.
func activatePrime(a Activation, x float64) float64 {
	switch a {
	case ReLU:
		if x > 0 {
			return 1
		}
		return 0
	case Tanh:
		t := math.Tanh(x)
		return 1 - t*t
	case Sigmoid:
		s := 1 / (1 + math.Exp(-x))
		return s * (1 - s)
	default:
		return 1
	}
}

// Layer is one dense layer: out = act(in·W + b).
type Layer struct {
	W   *mat.Dense // in × out
	B   []float64
	Act Activation
}

// Network is a feed-forward MLP.
type Network struct {
	Layers []*Layer
}

// New builds an MLP with the given layer sizes (len ≥ 2). Hidden
// layers use hidden; the last layer uses output. Weights use scaled
// normal init, biases start at zero.
func New(rng *rand.Rand, sizes []int, hidden, output Activation) *Network {
	n := &Network{}
	for i := 0; i+1 < len(sizes); i++ {
		in, out := sizes[i], sizes[i+1]
		w := mat.NewDense(in, out, nil)
		std := math.Sqrt(2 / float64(in))
		for r := 0; r < in; r++ {
			for c := 0; c < out; c++ {
				w.Set(r, c, rng.NormFloat64()*std)
			}
		}
		act := hidden
		if i+2 == len(sizes) {
			act = output
		}
		n.Layers = append(n.Layers, &Layer{W: w, B: make([]float64, out), Act: act})
	}
	return n
}

// Cache holds the per-layer intermediates of one forward pass.
type Cache struct {
	inputs []*mat.Dense // input to each layer
	preact []*mat.Dense // pre-activation of each layer
}

// Forward runs the batch x (rows are samples) through the network and
// returns the output plus the cache needed for Backward.
func (n *Network) Forward(x *mat.Dense) (*mat.Dense, *Cache) {
	c := &Cache{}
	cur := x
	for _, l := range n.Layers {
		rows, _ := cur.Dims()
		_, out := l.W.Dims()

		z := mat.NewDense(rows, out, nil)
		z.Mul(cur, l.W)
		for r := 0; r < rows; r++ {
			zr := z.RawRowView(r)
			for j := range zr {
				zr[j] += l.B[j]
			}
		}

		a := mat.NewDense(rows, out, nil)
		for r := 0; r < rows; r++ {
			zr, ar := z.RawRowView(r), a.RawRowView(r)
			for j := range zr {
				ar[j] = activate(l.Act, zr[j])
			}
		}

		c.inputs = append(c.inputs, cur)
		c.preact = append(c.preact, z)
		cur = a
	}
	return cur, c
}

// Grads holds parameter gradients aligned with Network.Layers.
type Grads struct {
	W []*mat.Dense
	B [][]float64
}

// Backward propagates dOut (gradient of the loss w.r.t. the network
// output) through the cached pass. It returns the parameter gradients
// and the gradient w.r.t. the network input, which adversarial
// training needs to push through a second network.
func (n *Network) Backward(c *Cache, dOut *mat.Dense) (Grads, *mat.Dense) {
	g := Grads{
		W: make([]*mat.Dense, len(n.Layers)),
		B: make([][]float64, len(n.Layers)),
	}

	delta := dOut
	for li := len(n.Layers) - 1; li >= 0; li-- {
		l := n.Layers[li]
		z := c.preact[li]
		in := c.inputs[li]
		rows, out := z.Dims()

		// dZ = delta ⊙ act'(z)
		dz := mat.NewDense(rows, out, nil)
		for r := 0; r < rows; r++ {
			zr, dr, dzr := z.RawRowView(r), delta.RawRowView(r), dz.RawRowView(r)
			for j := range zr {
				dzr[j] = dr[j] * activatePrime(l.Act, zr[j])
			}
		}

		inRows, inCols := in.Dims()
		_ = inRows

		gw := mat.NewDense(inCols, out, nil)
		gw.Mul(in.T(), dz)
		gw.Scale(1/float64(rows), gw)
		g.W[li] = gw

		gb := make([]float64, out)
		for r := 0; r < rows; r++ {
			dzr := dz.RawRowView(r)
			for j := range dzr {
				gb[j] += dzr[j]
			}
		}
		for j := range gb {
			gb[j] /= float64(rows)
		}
		g.B[li] = gb

		dIn := mat.NewDense(rows, inCols, nil)
		dIn.Mul(dz, l.W.T())
		delta = dIn
	}
	return g, delta
}
