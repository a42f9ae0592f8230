package nn

import "math"

// Adam implements the Adam optimizer with bias correction.
type Adam struct {
	LR, Beta1, Beta2, Eps float64

	params []*Param
	m, v   [][]float64
	t      int
}

// NewAdam creates an optimizer over params with β=(0.9, 0.999) and ε=1e-8.
func NewAdam(params []*Param, lr float64) *Adam {
	a := &Adam{
		LR:     lr,
		Beta1:  0.9,
		Beta2:  0.999,
		Eps:    1e-8,
		params: params,
		m:      make([][]float64, len(params)),
		v:      make([][]float64, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float64, p.Size())
		a.v[i] = make([]float64, p.Size())
	}
	return a
}

// ZeroGrad clears the gradients of every managed parameter.
func (a *Adam) ZeroGrad() {
	ZeroGrads(a.params)
}

// Step applies one update from the accumulated gradients.
func (a *Adam) Step() {
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for i, p := range a.params {
		m, v := a.m[i], a.v[i]
		for k, g := range p.Grad {
			m[k] = a.Beta1*m[k] + (1-a.Beta1)*g
			v[k] = a.Beta2*v[k] + (1-a.Beta2)*g*g
			p.Data[k] -= a.LR * (m[k] / c1) / (math.Sqrt(v[k]/c2) + a.Eps)
		}
	}
}
