// Package nn holds the numeric building blocks of the classifier: parameters,
// layers with explicit forward and backward passes, the loss and the optimizer.
package nn

import (
	"math"
	"math/rand"
)

// Param is a named tensor with its gradient, stored row-major.
type Param struct {
	Name  string
	Shape []int
	Data  []float64
	Grad  []float64
}

// NewParam allocates a zero parameter of the given shape.
func NewParam(name string, shape ...int) *Param {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Param{
		Name:  name,
		Shape: append([]int(nil), shape...),
		Data:  make([]float64, n),
		Grad:  make([]float64, n),
	}
}

// Size returns the number of elements.
func (p *Param) Size() int {
	return len(p.Data)
}

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() {
	clear(p.Grad)
}

// InitUniform fills the parameter from U(-bound, bound).
func (p *Param) InitUniform(rng *rand.Rand, bound float64) {
	for i := range p.Data {
		p.Data[i] = (rng.Float64()*2 - 1) * bound
	}
}

// InitXavier applies Glorot uniform initialization using the first two dimensions.
func (p *Param) InitXavier(rng *rand.Rand) {
	fanOut, fanIn := p.Shape[0], 1
	if len(p.Shape) > 1 {
		fanIn = p.Shape[1]
	}
	p.InitUniform(rng, math.Sqrt(6.0/float64(fanIn+fanOut)))
}

// Fill sets every element to v.
func (p *Param) Fill(v float64) {
	for i := range p.Data {
		p.Data[i] = v
	}
}

// ZeroGrads clears the gradients of params.
func ZeroGrads(params []*Param) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
