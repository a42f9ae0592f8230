package nn

import (
	"fmt"
	"math"
	"math/rand"
)

// Conv is a single-input-channel 2-D convolution whose kernel spans the full
// embedding width, followed by ReLU and a max-pool over all positions.
type Conv struct {
	Kernel, Width, Channels int
	W, B                    *Param // W is Channels × (Kernel·Width)
}

// NewConv creates a branch with PyTorch's default U(-1/√fanIn, 1/√fanIn) init.
func NewConv(name string, kernel, width, channels int, rng *rand.Rand) *Conv {
	c := &Conv{
		Kernel:   kernel,
		Width:    width,
		Channels: channels,
		W:        NewParam(name+".weight", channels, kernel*width),
		B:        NewParam(name+".bias", channels),
	}
	bound := 1 / math.Sqrt(float64(kernel*width))
	c.W.InitUniform(rng, bound)
	c.B.InitUniform(rng, bound)
	return c
}

// ConvCache records, per sample and channel, the winning window or -1 when the
// channel was clipped by ReLU.
type ConvCache struct {
	seqs   [][]float64
	argmax [][]int
}

// Forward returns batch × Channels pooled features.
func (c *Conv) Forward(seqs [][]float64, seqLen int) ([]float64, *ConvCache, error) {
	if seqLen < c.Kernel {
		return nil, nil, fmt.Errorf("sequence length %d shorter than kernel %d", seqLen, c.Kernel)
	}
	span := c.Kernel * c.Width
	positions := seqLen - c.Kernel + 1

	out := make([]float64, len(seqs)*c.Channels)
	cache := &ConvCache{seqs: seqs, argmax: make([][]int, len(seqs))}
	scores := make([]float64, c.Channels)

	for b, seq := range seqs {
		if len(seq) != seqLen*c.Width {
			return nil, nil, fmt.Errorf("conv input %d has %d values, want %d", b, len(seq), seqLen*c.Width)
		}
		best := make([]int, c.Channels)
		for ch := range best {
			best[ch] = -1
		}
		pooled := out[b*c.Channels : (b+1)*c.Channels]
		for t := 0; t < positions; t++ {
			copy(scores, c.B.Data)
			matVecAdd(scores, c.W.Data, c.Channels, span, seq[t*c.Width:t*c.Width+span])
			for ch, s := range scores {
				if s > pooled[ch] {
					pooled[ch] = s
					best[ch] = t
				}
			}
		}
		cache.argmax[b] = best
	}
	return out, cache, nil
}

// Backward routes dOut (batch × Channels) to the winning windows. The input is
// the frozen encoder output, so no input gradient is produced.
func (c *Conv) Backward(cache *ConvCache, dOut []float64) {
	span := c.Kernel * c.Width
	for b, seq := range cache.seqs {
		for ch, t := range cache.argmax[b] {
			if t < 0 {
				continue
			}
			g := dOut[b*c.Channels+ch]
			if g == 0 {
				continue
			}
			row := c.W.Grad[ch*span : (ch+1)*span]
			window := seq[t*c.Width : t*c.Width+span]
			for k, v := range window {
				row[k] += g * v
			}
			c.B.Grad[ch] += g
		}
	}
}

// Params returns the kernel and bias.
func (c *Conv) Params() []*Param {
	return []*Param{c.W, c.B}
}
