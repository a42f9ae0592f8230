package nn

import (
	"fmt"
	"math"
)

// CrossEntropy computes the mean softmax cross-entropy of batch × classes logits
// against integer labels. It returns the loss, the per-row probabilities and the
// gradient with respect to the logits.
func CrossEntropy(logits []float64, labels []int, classes int) (float64, [][]float64, []float64, error) {
	batch := len(labels)
	if len(logits) != batch*classes {
		return 0, nil, nil, fmt.Errorf("logits have %d values, want %d", len(logits), batch*classes)
	}

	var loss float64
	probs := make([][]float64, batch)
	grad := make([]float64, len(logits))
	n := float64(batch)
	for b, y := range labels {
		if y < 0 || y >= classes {
			return 0, nil, nil, fmt.Errorf("label %d out of range [0,%d)", y, classes)
		}
		p := Softmax(logits[b*classes : (b+1)*classes])
		probs[b] = p
		loss -= math.Log(math.Max(p[y], 1e-12))
		for k, v := range p {
			g := v
			if k == y {
				g--
			}
			grad[b*classes+k] = g / n
		}
	}
	return loss / n, probs, grad, nil
}
