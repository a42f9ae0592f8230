package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// matVecAdd adds W·x to dst for a rows×cols row-major W.
func matVecAdd(dst, w []float64, rows, cols int, x []float64) {
	for r := 0; r < rows; r++ {
		dst[r] += floats.Dot(w[r*cols:(r+1)*cols], x)
	}
}

// matTVecAdd adds Wᵀ·y to dst for a rows×cols row-major W.
func matTVecAdd(dst, w []float64, rows, cols int, y []float64) {
	for r := 0; r < rows; r++ {
		if y[r] != 0 {
			floats.AddScaled(dst, y[r], w[r*cols:(r+1)*cols])
		}
	}
}

// outerAdd adds y⊗x to the rows×cols row-major dst.
func outerAdd(dst []float64, rows, cols int, y, x []float64) {
	for r := 0; r < rows; r++ {
		if y[r] != 0 {
			floats.AddScaled(dst[r*cols:(r+1)*cols], y[r], x)
		}
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Softmax returns the normalized exponentials of one row of scores.
func Softmax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	max := floats.Max(scores)
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(s - max)
		sum += out[i]
	}
	floats.Scale(1/sum, out)
	return out
}

// ArgMax returns the index of the largest score, the first one on ties.
func ArgMax(scores []float64) int {
	return floats.MaxIdx(scores)
}
