package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// SGD updates parameters in place with a fixed learning rate.
type SGD struct{ LR float64 }

func (o *SGD) Step(n *Network, g Grads) {
	for li, l := range n.Layers {
		var scaled mat.Dense
		scaled.Scale(o.LR, g.W[li])
		l.W.Sub(l.W, &scaled)
		for j := range l.B {
			l.B[j] -= o.LR * g.B[li][j]
		}
	}
}

// Adam implements the Adam optimizer with optional decoupled weight
// decay (used by tvae for its l2 scale).
type Adam struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64

	t  int
	mW []*mat.Dense
	vW []*mat.Dense
	mB [][]float64
	vB [][]float64
}

// NewAdam returns Adam with the usual defaults for everything but lr.
func NewAdam(lr float64) *Adam {
	return &Adam{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}
}

func (o *Adam) ensureState(n *Network) {
	if o.mW != nil {
		return
	}
	for _, l := range n.Layers {
		r, c := l.W.Dims()
		o.mW = append(o.mW, mat.NewDense(r, c, nil))
		o.vW = append(o.vW, mat.NewDense(r, c, nil))
		o.mB = append(o.mB, make([]float64, len(l.B)))
		o.vB = append(o.vB, make([]float64, len(l.B)))
	}
}

func (o *Adam) Step(n *Network, g Grads) {
	o.ensureState(n)
	o.t++
	c1 := 1 - math.Pow(o.Beta1, float64(o.t))
	c2 := 1 - math.Pow(o.Beta2, float64(o.t))

	for li, l := range n.Layers {
		rows, cols := l.W.Dims()
		for r := 0; r < rows; r++ {
			wr := l.W.RawRowView(r)
			gr := g.W[li].RawRowView(r)
			mr := o.mW[li].RawRowView(r)
			vr := o.vW[li].RawRowView(r)
			for j := 0; j < cols; j++ {
				grad := gr[j]
				if o.WeightDecay > 0 {
					grad += o.WeightDecay * wr[j]
				}
				mr[j] = o.Beta1*mr[j] + (1-o.Beta1)*grad
				vr[j] = o.Beta2*vr[j] + (1-o.Beta2)*grad*grad
				wr[j] -= o.LR * (mr[j] / c1) / (math.Sqrt(vr[j]/c2) + o.Eps)
			}
		}
		for j := range l.B {
			grad := g.B[li][j]
			o.mB[li][j] = o.Beta1*o.mB[li][j] + (1-o.Beta1)*grad
			o.vB[li][j] = o.Beta2*o.vB[li][j] + (1-o.Beta2)*grad*grad
			l.B[j] -= o.LR * (o.mB[li][j] / c1) / (math.Sqrt(o.vB[li][j]/c2) + o.Eps)
		}
	}
}
