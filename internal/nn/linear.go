package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Linear is a fully connected layer y = x·Wᵀ + b with W of shape Out×In.
type Linear struct {
	In, Out int
	W, B    *Param
}

// NewLinear creates a layer initialized from U(-1/√in, 1/√in).
func NewLinear(name string, in, out int, rng *rand.Rand) *Linear {
	l := &Linear{
		In:  in,
		Out: out,
		W:   NewParam(name+".weight", out, in),
		B:   NewParam(name+".bias", out),
	}
	bound := 1 / math.Sqrt(float64(in))
	l.W.InitUniform(rng, bound)
	l.B.InitUniform(rng, bound)
	return l
}

// Forward maps a batch×In input to batch×Out.
func (l *Linear) Forward(x []float64, batch int) []float64 {
	xm := mat.NewDense(batch, l.In, x)
	wm := mat.NewDense(l.Out, l.In, l.W.Data)

	var y mat.Dense
	y.Mul(xm, wm.T())

	out := make([]float64, batch*l.Out)
	for r := 0; r < batch; r++ {
		row := out[r*l.Out : (r+1)*l.Out]
		mat.Row(row, r, &y)
		floats.Add(row, l.B.Data)
	}
	return out
}

// Backward accumulates parameter gradients for dy (batch×Out) and returns dx (batch×In).
func (l *Linear) Backward(x, dy []float64, batch int) []float64 {
	xm := mat.NewDense(batch, l.In, x)
	dym := mat.NewDense(batch, l.Out, dy)
	wm := mat.NewDense(l.Out, l.In, l.W.Data)

	var dw mat.Dense
	dw.Mul(dym.T(), xm)
	gw := mat.NewDense(l.Out, l.In, l.W.Grad)
	gw.Add(gw, &dw)

	for r := 0; r < batch; r++ {
		floats.Add(l.B.Grad, dy[r*l.Out:(r+1)*l.Out])
	}

	var dx mat.Dense
	dx.Mul(dym, wm)
	out := make([]float64, batch*l.In)
	for r := 0; r < batch; r++ {
		mat.Row(out[r*l.In:(r+1)*l.In], r, &dx)
	}
	return out
}

// Params returns the weight and bias.
func (l *Linear) Params() []*Param {
	return []*Param{l.W, l.B}
}
