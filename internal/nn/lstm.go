package nn

import (
	"fmt"
	"math"
	"math/rand"
)

// State is an LSTM hidden/cell state of shape (layers·2) × batch × hidden.
type State struct {
	Layers, Batch, Hidden int
	H, C                  []float64
}

// NewState returns a zero state.
func NewState(layers, batch, hidden int) *State {
	n := layers * 2 * batch * hidden
	return &State{
		Layers: layers,
		Batch:  batch,
		Hidden: hidden,
		H:      make([]float64, n),
		C:      make([]float64, n),
	}
}

func (s *State) slot(layer, dir, b int) ([]float64, []float64) {
	off := ((layer*2+dir)*s.Batch + b) * s.Hidden
	return s.H[off : off+s.Hidden], s.C[off : off+s.Hidden]
}

type lstmCell struct {
	in, hidden int
	wih, whh   *Param // 4H×in, 4H×H; gate order i, f, g, o
	bih, bhh   *Param
}

func newLSTMCell(name string, in, hidden int, rng *rand.Rand) *lstmCell {
	c := &lstmCell{
		in:     in,
		hidden: hidden,
		wih:    NewParam(name+".weight_ih", 4*hidden, in),
		whh:    NewParam(name+".weight_hh", 4*hidden, hidden),
		bih:    NewParam(name+".bias_ih", 4*hidden),
		bhh:    NewParam(name+".bias_hh", 4*hidden),
	}
	bound := 1 / math.Sqrt(float64(hidden))
	for _, p := range c.params() {
		p.InitUniform(rng, bound)
	}
	return c
}

func (c *lstmCell) params() []*Param {
	return []*Param{c.wih, c.whh, c.bih, c.bhh}
}

type lstmStep struct {
	x, hPrev, cPrev []float64
	i, f, g, o      []float64
	tanhC           []float64
}

func (c *lstmCell) step(x, hPrev, cPrev []float64) (h, cNext []float64, st lstmStep) {
	H := c.hidden
	gates := make([]float64, 4*H)
	copy(gates, c.bih.Data)
	for k, v := range c.bhh.Data {
		gates[k] += v
	}
	matVecAdd(gates, c.wih.Data, 4*H, c.in, x)
	matVecAdd(gates, c.whh.Data, 4*H, H, hPrev)

	st = lstmStep{
		x:     x,
		hPrev: hPrev,
		cPrev: cPrev,
		i:     make([]float64, H),
		f:     make([]float64, H),
		g:     make([]float64, H),
		o:     make([]float64, H),
		tanhC: make([]float64, H),
	}
	h = make([]float64, H)
	cNext = make([]float64, H)
	for k := 0; k < H; k++ {
		st.i[k] = sigmoid(gates[k])
		st.f[k] = sigmoid(gates[H+k])
		st.g[k] = math.Tanh(gates[2*H+k])
		st.o[k] = sigmoid(gates[3*H+k])
		cNext[k] = st.f[k]*cPrev[k] + st.i[k]*st.g[k]
		st.tanhC[k] = math.Tanh(cNext[k])
		h[k] = st.o[k] * st.tanhC[k]
	}
	return h, cNext, st
}

// backward takes dh, dc flowing into this step and returns the gradients for
// the previous hidden and cell state. dx is accumulated when non-nil.
func (c *lstmCell) backward(st lstmStep, dh, dc, dx []float64) (dhPrev, dcPrev []float64) {
	H := c.hidden
	da := make([]float64, 4*H)
	dcPrev = make([]float64, H)
	for k := 0; k < H; k++ {
		do := dh[k] * st.tanhC[k]
		dct := dc[k] + dh[k]*st.o[k]*(1-st.tanhC[k]*st.tanhC[k])
		di := dct * st.g[k]
		dg := dct * st.i[k]
		df := dct * st.cPrev[k]
		dcPrev[k] = dct * st.f[k]

		da[k] = di * st.i[k] * (1 - st.i[k])
		da[H+k] = df * st.f[k] * (1 - st.f[k])
		da[2*H+k] = dg * (1 - st.g[k]*st.g[k])
		da[3*H+k] = do * st.o[k] * (1 - st.o[k])
	}

	outerAdd(c.wih.Grad, 4*H, c.in, da, st.x)
	outerAdd(c.whh.Grad, 4*H, H, da, st.hPrev)
	for k, v := range da {
		c.bih.Grad[k] += v
		c.bhh.Grad[k] += v
	}

	if dx != nil {
		matTVecAdd(dx, c.wih.Data, 4*H, c.in, da)
	}
	dhPrev = make([]float64, H)
	matTVecAdd(dhPrev, c.whh.Data, 4*H, H, da)
	return dhPrev, dcPrev
}

// LSTM is a batch-first, bidirectional, multi-layer LSTM.
type LSTM struct {
	InputSize, HiddenSize, NumLayers int
	cells                            [][2]*lstmCell
}

// NewLSTM creates the layer with PyTorch's U(-1/√H, 1/√H) initialization.
func NewLSTM(name string, inputSize, hiddenSize, numLayers int, rng *rand.Rand) *LSTM {
	l := &LSTM{
		InputSize:  inputSize,
		HiddenSize: hiddenSize,
		NumLayers:  numLayers,
		cells:      make([][2]*lstmCell, numLayers),
	}
	for layer := 0; layer < numLayers; layer++ {
		in := inputSize
		if layer > 0 {
			in = 2 * hiddenSize
		}
		l.cells[layer][0] = newLSTMCell(fmt.Sprintf("%s.l%d", name, layer), in, hiddenSize, rng)
		l.cells[layer][1] = newLSTMCell(fmt.Sprintf("%s.l%d_reverse", name, layer), in, hiddenSize, rng)
	}
	return l
}

// Params returns every trainable tensor.
func (l *LSTM) Params() []*Param {
	var ps []*Param
	for _, pair := range l.cells {
		for _, c := range pair {
			ps = append(ps, c.params()...)
		}
	}
	return ps
}

// LSTMCache keeps what Backward needs from a Forward call.
type LSTMCache struct {
	seqLen int
	// steps[b][layer][dir] in processing order
	steps [][][2][]lstmStep
}

// Forward runs every sequence (seqLen × InputSize, row-major) from the initial
// state and returns, per sample, the last layer's final forward hidden state
// followed by its final backward hidden state (batch × 2H).
func (l *LSTM) Forward(seqs [][]float64, seqLen int, state *State) ([]float64, *LSTMCache, error) {
	batch := len(seqs)
	if state.Batch != batch || state.Layers != l.NumLayers || state.Hidden != l.HiddenSize {
		return nil, nil, fmt.Errorf("lstm state shape (%d,%d,%d) does not match (%d,%d,%d)",
			state.Layers, state.Batch, state.Hidden, l.NumLayers, batch, l.HiddenSize)
	}

	H := l.HiddenSize
	feat := make([]float64, batch*2*H)
	cache := &LSTMCache{seqLen: seqLen, steps: make([][][2][]lstmStep, batch)}

	for b, seq := range seqs {
		if len(seq) != seqLen*l.InputSize {
			return nil, nil, fmt.Errorf("lstm input %d has %d values, want %d", b, len(seq), seqLen*l.InputSize)
		}
		cache.steps[b] = make([][2][]lstmStep, l.NumLayers)

		input, inSize := seq, l.InputSize
		for layer := 0; layer < l.NumLayers; layer++ {
			out := make([]float64, seqLen*2*H)
			for dir := 0; dir < 2; dir++ {
				cell := l.cells[layer][dir]
				h0, c0 := state.slot(layer, dir, b)
				h := append([]float64(nil), h0...)
				c := append([]float64(nil), c0...)

				steps := make([]lstmStep, seqLen)
				for s := 0; s < seqLen; s++ {
					t := position(dir, s, seqLen)
					var st lstmStep
					h, c, st = cell.step(input[t*inSize:(t+1)*inSize], h, c)
					steps[s] = st
					copy(out[t*2*H+dir*H:t*2*H+(dir+1)*H], h)
				}
				cache.steps[b][layer][dir] = steps

				if layer == l.NumLayers-1 {
					copy(feat[b*2*H+dir*H:b*2*H+(dir+1)*H], h)
				}
			}
			input, inSize = out, 2*H
		}
	}
	return feat, cache, nil
}

// Backward propagates dFeat (batch × 2H) through time and layers, accumulating
// parameter gradients. Input gradients of the first layer are not computed.
func (l *LSTM) Backward(cache *LSTMCache, dFeat []float64) {
	H := l.HiddenSize
	L := cache.seqLen

	for b, layers := range cache.steps {
		dOut := make([]float64, L*2*H)
		copy(dOut[(L-1)*2*H:(L-1)*2*H+H], dFeat[b*2*H:b*2*H+H])
		copy(dOut[H:2*H], dFeat[b*2*H+H:(b+1)*2*H])

		for layer := l.NumLayers - 1; layer >= 0; layer-- {
			var dIn []float64
			inSize := l.cells[layer][0].in
			if layer > 0 {
				dIn = make([]float64, L*inSize)
			}

			for dir := 0; dir < 2; dir++ {
				cell := l.cells[layer][dir]
				steps := layers[layer][dir]
				dh := make([]float64, H)
				dc := make([]float64, H)
				for s := L - 1; s >= 0; s-- {
					t := position(dir, s, L)
					for k := 0; k < H; k++ {
						dh[k] += dOut[t*2*H+dir*H+k]
					}
					var dx []float64
					if dIn != nil {
						dx = dIn[t*inSize : (t+1)*inSize]
					}
					dh, dc = cell.backward(steps[s], dh, dc, dx)
				}
			}
			dOut = dIn
		}
	}
}

// position maps a processing step to its sequence index.
func position(dir, step, seqLen int) int {
	if dir == 0 {
		return step
	}
	return seqLen - 1 - step
}
