// Package encoder implements the frozen BERT-style text encoder that turns
// token ids into contextual embeddings. It only runs forward.
package encoder

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"

	"sentiment-classifier/internal/config"
	"sentiment-classifier/internal/nn"

	"gonum.org/v1/gonum/floats"
)

const (
	checkpointMagic = "BERT"
	typeVocabSize   = 2
	layerNormEps    = 1e-12
	maskedScore     = -10000.0
)

type layerNorm struct {
	gamma, beta *nn.Param
}

func newLayerNorm(name string, dim int) *layerNorm {
	ln := &layerNorm{
		gamma: nn.NewParam(name+".gamma", dim),
		beta:  nn.NewParam(name+".beta", dim),
	}
	ln.gamma.Fill(1)
	return ln
}

func (ln *layerNorm) apply(x []float64, rows int) {
	dim := len(ln.gamma.Data)
	for r := 0; r < rows; r++ {
		row := x[r*dim : (r+1)*dim]
		mean := floats.Sum(row) / float64(dim)
		var variance float64
		for _, v := range row {
			variance += (v - mean) * (v - mean)
		}
		inv := 1 / math.Sqrt(variance/float64(dim)+layerNormEps)
		for i, v := range row {
			row[i] = (v-mean)*inv*ln.gamma.Data[i] + ln.beta.Data[i]
		}
	}
}

func (ln *layerNorm) params() []*nn.Param {
	return []*nn.Param{ln.gamma, ln.beta}
}

type transformerLayer struct {
	query, key, value, output *nn.Linear
	attnNorm                  *layerNorm
	intermediate, ffnOut      *nn.Linear
	ffnNorm                   *layerNorm
}

func (l *transformerLayer) params() []*nn.Param {
	var ps []*nn.Param
	for _, lin := range []*nn.Linear{l.query, l.key, l.value, l.output} {
		ps = append(ps, lin.Params()...)
	}
	ps = append(ps, l.attnNorm.params()...)
	ps = append(ps, l.intermediate.Params()...)
	ps = append(ps, l.ffnOut.Params()...)
	return append(ps, l.ffnNorm.params()...)
}

// Encoder is a stack of post-LayerNorm transformer layers over word, position
// and token-type embeddings.
type Encoder struct {
	cfg config.EncoderConfig

	wordEmb, posEmb, typeEmb *nn.Param
	embNorm                  *layerNorm
	layers                   []*transformerLayer
}

// New builds an encoder with Xavier-initialized weights and zero biases.
func New(cfg config.EncoderConfig, rng *rand.Rand) (*Encoder, error) {
	if cfg.HiddenSize <= 0 || cfg.NumHeads <= 0 || cfg.HiddenSize%cfg.NumHeads != 0 {
		return nil, fmt.Errorf("hidden size %d not divisible by %d heads", cfg.HiddenSize, cfg.NumHeads)
	}
	if cfg.VocabSize <= 0 || cfg.MaxPositions <= 0 || cfg.IntermediateSize <= 0 {
		return nil, fmt.Errorf("invalid encoder sizes %+v", cfg)
	}

	E := cfg.HiddenSize
	e := &Encoder{
		cfg:     cfg,
		wordEmb: nn.NewParam("embeddings.word", cfg.VocabSize, E),
		posEmb:  nn.NewParam("embeddings.position", cfg.MaxPositions, E),
		typeEmb: nn.NewParam("embeddings.token_type", typeVocabSize, E),
		embNorm: newLayerNorm("embeddings.norm", E),
	}
	e.wordEmb.InitXavier(rng)
	e.posEmb.InitXavier(rng)
	e.typeEmb.InitXavier(rng)

	for i := 0; i < cfg.NumLayers; i++ {
		name := fmt.Sprintf("layer.%d", i)
		l := &transformerLayer{
			query:        newDense(name+".attention.query", E, E, rng),
			key:          newDense(name+".attention.key", E, E, rng),
			value:        newDense(name+".attention.value", E, E, rng),
			output:       newDense(name+".attention.output", E, E, rng),
			attnNorm:     newLayerNorm(name+".attention.norm", E),
			intermediate: newDense(name+".intermediate", E, cfg.IntermediateSize, rng),
			ffnOut:       newDense(name+".output", cfg.IntermediateSize, E, rng),
			ffnNorm:      newLayerNorm(name+".output.norm", E),
		}
		e.layers = append(e.layers, l)
	}
	return e, nil
}

func newDense(name string, in, out int, rng *rand.Rand) *nn.Linear {
	l := nn.NewLinear(name, in, out, rng)
	l.W.InitXavier(rng)
	l.B.Fill(0)
	return l
}

// Dim returns the embedding width.
func (e *Encoder) Dim() int {
	return e.cfg.HiddenSize
}

// Params returns every tensor in checkpoint order.
func (e *Encoder) Params() []*nn.Param {
	ps := []*nn.Param{e.wordEmb, e.posEmb, e.typeEmb}
	ps = append(ps, e.embNorm.params()...)
	for _, l := range e.layers {
		ps = append(ps, l.params()...)
	}
	return ps
}

// Encode returns the L × Dim last hidden state for one sequence. Positions with a
// zero mask are excluded as attention keys.
func (e *Encoder) Encode(ids, mask []int) ([]float64, error) {
	L, E := len(ids), e.cfg.HiddenSize
	if len(mask) != L {
		return nil, fmt.Errorf("mask length %d, ids length %d", len(mask), L)
	}
	if L > e.cfg.MaxPositions {
		return nil, fmt.Errorf("sequence length %d exceeds %d positions", L, e.cfg.MaxPositions)
	}

	x := make([]float64, L*E)
	for t, id := range ids {
		if id < 0 || id >= e.cfg.VocabSize {
			return nil, fmt.Errorf("token id %d outside vocabulary of %d", id, e.cfg.VocabSize)
		}
		row := x[t*E : (t+1)*E]
		copy(row, e.wordEmb.Data[id*E:(id+1)*E])
		floats.Add(row, e.posEmb.Data[t*E:(t+1)*E])
		floats.Add(row, e.typeEmb.Data[:E])
	}
	e.embNorm.apply(x, L)

	for _, l := range e.layers {
		x = e.layerForward(l, x, mask)
	}
	return x, nil
}

func (e *Encoder) layerForward(l *transformerLayer, x []float64, mask []int) []float64 {
	L, E := len(mask), e.cfg.HiddenSize
	heads := e.cfg.NumHeads
	d := E / heads
	scale := 1 / math.Sqrt(float64(d))

	q := l.query.Forward(x, L)
	k := l.key.Forward(x, L)
	v := l.value.Forward(x, L)

	ctx := make([]float64, L*E)
	scores := make([]float64, L)
	for h := 0; h < heads; h++ {
		off := h * d
		for i := 0; i < L; i++ {
			qi := q[i*E+off : i*E+off+d]
			for j := 0; j < L; j++ {
				scores[j] = floats.Dot(qi, k[j*E+off:j*E+off+d]) * scale
				if mask[j] == 0 {
					scores[j] += maskedScore
				}
			}
			probs := nn.Softmax(scores)
			out := ctx[i*E+off : i*E+off+d]
			for j, p := range probs {
				floats.AddScaled(out, p, v[j*E+off:j*E+off+d])
			}
		}
	}

	attn := l.output.Forward(ctx, L)
	floats.Add(attn, x)
	l.attnNorm.apply(attn, L)

	inter := l.intermediate.Forward(attn, L)
	for i, val := range inter {
		inter[i] = gelu(val)
	}
	out := l.ffnOut.Forward(inter, L)
	floats.Add(out, attn)
	l.ffnNorm.apply(out, L)
	return out
}

func gelu(x float64) float64 {
	return 0.5 * x * (1 + math.Erf(x/math.Sqrt2))
}

// Save writes the encoder weights.
func (e *Encoder) Save(w io.Writer) error {
	return nn.WriteParams(w, checkpointMagic, e.Params())
}

// Load replaces the encoder weights with a checkpoint written by Save.
func (e *Encoder) Load(r io.Reader) error {
	return nn.ReadParams(r, checkpointMagic, e.Params())
}

// LoadFile loads weights from path.
func (e *Encoder) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open encoder checkpoint: %w", err)
	}
	defer f.Close()

	if err := e.Load(f); err != nil {
		return fmt.Errorf("failed to load encoder checkpoint %s: %w", path, err)
	}
	return nil
}
