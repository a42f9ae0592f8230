package nn

import "math/rand"

// Dropout zeroes elements with probability P during training and scales the
// survivors by 1/(1-P). It is the identity at inference.
type Dropout struct {
	P   float64
	rng *rand.Rand
}

// NewDropout creates a dropout layer drawing masks from rng.
func NewDropout(p float64, rng *rand.Rand) *Dropout {
	return &Dropout{P: p, rng: rng}
}

// Forward applies dropout and returns the output with the mask used, nil when
// nothing was dropped.
func (d *Dropout) Forward(x []float64, train bool) ([]float64, []float64) {
	out := append([]float64(nil), x...)
	if !train || d.P == 0 {
		return out, nil
	}
	scale := 1 / (1 - d.P)
	mask := make([]float64, len(x))
	for i := range out {
		if d.rng.Float64() >= d.P {
			mask[i] = scale
		}
		out[i] *= mask[i]
	}
	return out, mask
}

// Backward applies the mask returned by Forward to dy.
func (d *Dropout) Backward(mask, dy []float64) []float64 {
	dx := append([]float64(nil), dy...)
	if mask == nil {
		return dx
	}
	for i := range dx {
		dx[i] *= mask[i]
	}
	return dx
}
