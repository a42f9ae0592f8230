// Package classifier is the BiLSTM + TextCNN sentiment head that sits on top of
// the frozen encoder.
package classifier

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"slices"

	"sentiment-classifier/internal/config"
	"sentiment-classifier/internal/models"
	"sentiment-classifier/internal/nn"
)

const checkpointMagic = "SCLS"

// Encoder produces per-token embeddings for one padded sequence.
type Encoder interface {
	Encode(ids, mask []int) ([]float64, error)
	Dim() int
}

// Config sizes the trainable head.
type Config struct {
	Embedding int
	Hidden    int
	Layers    int
	Classes   int
	DropProb  float64
	Kernels   []int
}

// FromConfig derives the head configuration from the application config.
func FromConfig(c *config.Config) Config {
	return Config{
		Embedding: c.Encoder.HiddenSize,
		Hidden:    c.Model.HiddenDim,
		Layers:    c.Model.NumLayers,
		Classes:   c.Model.ClassNum,
		DropProb:  *c.Model.DropProb,
		Kernels:   slices.Clone(c.Model.Kernels),
	}
}

// Model is the full classifier: frozen encoder, BiLSTM and conv branches,
// dropout and the output projection.
type Model struct {
	cfg     Config
	encoder Encoder

	lstm    *nn.LSTM
	convs   []*nn.Conv
	dropout *nn.Dropout
	fc      *nn.Linear
}

// New builds a model with freshly initialized trainable parameters.
func New(cfg Config, enc Encoder, rng *rand.Rand) (*Model, error) {
	if enc.Dim() != cfg.Embedding {
		return nil, fmt.Errorf("encoder width %d, want %d", enc.Dim(), cfg.Embedding)
	}
	if cfg.Hidden < 1 || cfg.Layers < 1 || cfg.Classes < 2 || len(cfg.Kernels) == 0 {
		return nil, fmt.Errorf("invalid classifier config %+v", cfg)
	}

	m := &Model{
		cfg:     cfg,
		encoder: enc,
		lstm:    nn.NewLSTM("lstm", cfg.Embedding, cfg.Hidden, cfg.Layers, rng),
		dropout: nn.NewDropout(cfg.DropProb, rng),
	}
	for _, k := range cfg.Kernels {
		m.convs = append(m.convs, nn.NewConv(fmt.Sprintf("conv%d", k), k, cfg.Embedding, cfg.Hidden, rng))
	}
	m.fc = nn.NewLinear("fc", m.featureSize(), cfg.Classes, rng)
	return m, nil
}

func (m *Model) featureSize() int {
	return (len(m.cfg.Kernels) + 2) * m.cfg.Hidden
}

// Config returns the head configuration.
func (m *Model) Config() Config {
	return m.cfg
}

// MinLen is the shortest sequence every conv branch accepts.
func (m *Model) MinLen() int {
	return slices.Max(m.cfg.Kernels)
}

// InitHidden returns a zero LSTM state for batch samples.
func (m *Model) InitHidden(batch int) *nn.State {
	return nn.NewState(m.cfg.Layers, batch, m.cfg.Hidden)
}

// Params returns the trainable parameters. The encoder is not included.
func (m *Model) Params() []*nn.Param {
	ps := m.lstm.Params()
	for _, c := range m.convs {
		ps = append(ps, c.Params()...)
	}
	return append(ps, m.fc.Params()...)
}

// Output is the result of a forward pass. It keeps the activations needed for
// Backward.
type Output struct {
	Logits        []float64
	Probabilities [][]float64
	Predictions   []int

	batch      int
	features   []float64
	dropped    []float64
	mask       []float64
	lstmCache  *nn.LSTMCache
	convCaches []*nn.ConvCache
}

// Forward classifies a batch. In train mode dropout is active and the returned
// Output can be passed to Backward.
func (m *Model) Forward(batch *models.Batch, state *nn.State, train bool) (*Output, error) {
	n := batch.Size()
	if n == 0 {
		return nil, errors.New("empty batch")
	}
	seqLen := len(batch.InputIDs[0])
	if seqLen < m.MinLen() {
		return nil, fmt.Errorf("sequence length %d shorter than widest kernel %d", seqLen, m.MinLen())
	}

	seqs := make([][]float64, n)
	for b := range seqs {
		if len(batch.InputIDs[b]) != seqLen {
			return nil, fmt.Errorf("sample %d has length %d, want %d", b, len(batch.InputIDs[b]), seqLen)
		}
		emb, err := m.encoder.Encode(batch.InputIDs[b], batch.AttentionMask[b])
		if err != nil {
			return nil, fmt.Errorf("failed to encode sample %d: %w", b, err)
		}
		seqs[b] = emb
	}

	lstmFeat, lstmCache, err := m.lstm.Forward(seqs, seqLen, state)
	if err != nil {
		return nil, err
	}

	H := m.cfg.Hidden
	width := m.featureSize()
	features := make([]float64, n*width)
	out := &Output{batch: n, lstmCache: lstmCache}
	for i, conv := range m.convs {
		pooled, cache, err := conv.Forward(seqs, seqLen)
		if err != nil {
			return nil, err
		}
		out.convCaches = append(out.convCaches, cache)
		for b := 0; b < n; b++ {
			copy(features[b*width+i*H:b*width+(i+1)*H], pooled[b*H:(b+1)*H])
		}
	}
	lstmOff := len(m.convs) * H
	for b := 0; b < n; b++ {
		copy(features[b*width+lstmOff:(b+1)*width], lstmFeat[b*2*H:(b+1)*2*H])
	}

	out.features = features
	out.dropped, out.mask = m.dropout.Forward(features, train)
	out.Logits = m.fc.Forward(out.dropped, n)

	C := m.cfg.Classes
	out.Probabilities = make([][]float64, n)
	out.Predictions = make([]int, n)
	for b := 0; b < n; b++ {
		out.Probabilities[b] = nn.Softmax(out.Logits[b*C : (b+1)*C])
		out.Predictions[b] = nn.ArgMax(out.Logits[b*C : (b+1)*C])
	}
	return out, nil
}

// Backward accumulates gradients of the trainable parameters for dLogits.
func (m *Model) Backward(out *Output, dLogits []float64) {
	n := out.batch
	H := m.cfg.Hidden
	width := m.featureSize()

	dDropped := m.fc.Backward(out.dropped, dLogits, n)
	dFeat := m.dropout.Backward(out.mask, dDropped)

	for i, conv := range m.convs {
		dPooled := make([]float64, n*H)
		for b := 0; b < n; b++ {
			copy(dPooled[b*H:(b+1)*H], dFeat[b*width+i*H:b*width+(i+1)*H])
		}
		conv.Backward(out.convCaches[i], dPooled)
	}

	lstmOff := len(m.convs) * H
	dLSTM := make([]float64, n*2*H)
	for b := 0; b < n; b++ {
		copy(dLSTM[b*2*H:(b+1)*2*H], dFeat[b*width+lstmOff:(b+1)*width])
	}
	m.lstm.Backward(out.lstmCache, dLSTM)
}

// Save writes the trainable parameters.
func (m *Model) Save(w io.Writer) error {
	return nn.WriteParams(w, checkpointMagic, m.Params())
}

// Load restores trainable parameters written by Save.
func (m *Model) Load(r io.Reader) error {
	return nn.ReadParams(r, checkpointMagic, m.Params())
}

// SaveFile writes the checkpoint to path, creating its directory.
func (m *Model) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}
	if err := m.Save(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return f.Close()
}

// LoadFile restores the checkpoint at path.
func (m *Model) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer f.Close()

	if err := m.Load(f); err != nil {
		return fmt.Errorf("failed to load checkpoint %s: %w", path, err)
	}
	return nil
}
