package service

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"sentiment-classifier/internal/classifier"
	"sentiment-classifier/internal/config"
	"sentiment-classifier/internal/corpus"
	"sentiment-classifier/internal/dataset"
	"sentiment-classifier/internal/encoder"
	"sentiment-classifier/internal/models"
	"sentiment-classifier/internal/nn"
	"sentiment-classifier/internal/repository"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// wordTokenizer gives each known word a fixed id between [CLS]=2 and [SEP]=3.
type wordTokenizer struct{}

var vocab = map[string]int{"good": 5, "bad": 6, "day": 7, "movie": 8}

func (wordTokenizer) Encode(text string) ([]int, []int, error) {
	ids := []int{2}
	for _, w := range strings.Fields(text) {
		id, ok := vocab[w]
		if !ok {
			id = 1
		}
		ids = append(ids, id)
	}
	ids = append(ids, 3)
	mask := make([]int, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	return ids, mask, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Tokenizer.MaxLen = 8
	cfg.Encoder = config.EncoderConfig{
		Model:            "tiny-bert",
		VocabSize:        16,
		HiddenSize:       8,
		NumLayers:        1,
		NumHeads:         2,
		IntermediateSize: 16,
		MaxPositions:     16,
	}
	cfg.Model.HiddenDim = 4
	cfg.Model.ClassNames = []string{"positive", "negative"}
	cfg.Model.Checkpoint = filepath.Join(t.TempDir(), "classifier.bin")
	cfg.Training.BatchSize = 2
	require.NoError(t, cfg.Validate())
	return cfg
}

func newModel(t *testing.T, cfg *config.Config) (*classifier.Model, *encoder.Encoder) {
	t.Helper()
	rng := rand.New(rand.NewSource(*cfg.Training.Seed))
	enc, err := encoder.New(cfg.Encoder, rng)
	require.NoError(t, err)
	model, err := classifier.New(classifier.FromConfig(cfg), enc, rng)
	require.NoError(t, err)
	return model, enc
}

func snapshot(params []*nn.Param) [][]float64 {
	out := make([][]float64, len(params))
	for i, p := range params {
		out[i] = slices.Clone(p.Data)
	}
	return out
}

func changed(params []*nn.Param, before [][]float64) bool {
	for i, p := range params {
		if !slices.Equal(p.Data, before[i]) {
			return true
		}
	}
	return false
}

func splitCorpus(t *testing.T) (train, test *dataset.Dataset) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.txt")
	require.NoError(t, os.WriteFile(path, []byte("good\t0\nbad\t1\ngood\t0\nbad\t1\n"), 0644))

	samples, err := corpus.TSVSource{Path: path}.Load(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, samples, 4)

	train = dataset.New(samples[:2], wordTokenizer{}, 8, 0)
	test = dataset.New(samples[2:], wordTokenizer{}, 8, 0)
	return train, test
}

func newRunRepo(t *testing.T) repository.RunRepository {
	t.Helper()
	db, err := repository.NewDB("sqlite", filepath.Join(t.TempDir(), "runs.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repository.MigrateDB(db, "sqlite", zap.NewNop()))
	return repository.NewRunRepository(db)
}

func trainOptions(cfg *config.Config) TrainOptions {
	return TrainOptions{
		ModelName:    cfg.Encoder.Model,
		Epochs:       cfg.Training.Epochs,
		BatchSize:    cfg.Training.BatchSize,
		LearningRate: cfg.Training.LearningRate,
		Shuffle:      *cfg.Training.Shuffle,
		Seed:         *cfg.Training.Seed,
	}
}

func TestTrainerEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	model, enc := newModel(t, cfg)
	train, test := splitCorpus(t)
	runs := newRunRepo(t)
	clock := clockwork.NewFakeClock()

	frozen := snapshot(enc.Params())
	trainable := snapshot(model.Params())

	trainer := NewTrainer(model, runs, clock, zap.NewNop(), trainOptions(cfg))
	details, err := trainer.Run(context.Background(), train, test)
	require.NoError(t, err)

	require.Len(t, details.Epochs, 1)
	result := details.Epochs[0]
	assert.Equal(t, 2, result.TP+result.TN+result.FP+result.FN)
	for name, v := range map[string]float64{
		"accuracy":  result.Accuracy,
		"precision": result.Precision,
		"recall":    result.Recall,
		"f1":        result.F1,
	} {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}
	if result.AUC != nil {
		assert.GreaterOrEqual(t, *result.AUC, 0.0)
		assert.LessOrEqual(t, *result.AUC, 1.0)
	}
	assert.False(t, math.IsNaN(result.TrainLoss))

	assert.False(t, changed(enc.Params(), frozen), "encoder weights must stay frozen")
	assert.True(t, changed(model.Params(), trainable), "trainable weights should be updated")

	stored, err := runs.GetRun(context.Background(), details.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, stored.Status)
	assert.Equal(t, 2, stored.TrainSize)
	require.NotNil(t, stored.CompletedAt)

	epochs, err := runs.GetEpochs(context.Background(), details.Run.ID)
	require.NoError(t, err)
	require.Len(t, epochs, 1)
	assert.Equal(t, result.TP, epochs[0].TP)

	history := trainer.History()
	assert.Equal(t, 1, history.Len())
}

// cancelOnCreate cancels the run context once the run record exists.
type cancelOnCreate struct {
	repository.RunRepository
	cancel context.CancelFunc
}

func (r cancelOnCreate) CreateRun(ctx context.Context, run *models.Run) error {
	err := r.RunRepository.CreateRun(ctx, run)
	r.cancel()
	return err
}

func TestTrainerCancelled(t *testing.T) {
	cfg := testConfig(t)
	model, _ := newModel(t, cfg)
	train, test := splitCorpus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runs := cancelOnCreate{RunRepository: newRunRepo(t), cancel: cancel}

	details, err := NewTrainer(model, runs, clockwork.NewFakeClock(), zap.NewNop(), trainOptions(cfg)).
		Run(ctx, train, test)
	require.ErrorIs(t, err, context.Canceled)

	stored, err := runs.GetRun(context.Background(), details.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
}

func TestTrainerMalformedLabel(t *testing.T) {
	cfg := testConfig(t)
	model, _ := newModel(t, cfg)
	bad := dataset.New([]models.Sample{{Text: "good", Label: "x"}, {Text: "bad", Label: "1"}}, wordTokenizer{}, 8, 0)

	_, err := NewTrainer(model, nil, clockwork.NewFakeClock(), zap.NewNop(), trainOptions(cfg)).
		Run(context.Background(), bad, bad)
	require.ErrorIs(t, err, dataset.ErrMalformedLabel)
}

func TestEvaluateOnly(t *testing.T) {
	cfg := testConfig(t)
	model, _ := newModel(t, cfg)
	_, test := splitCorpus(t)

	report, err := Evaluate(context.Background(), model, test, trainOptions(cfg), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total())
}

func TestEvaluationCoversPartialBatchTail(t *testing.T) {
	cfg := testConfig(t)
	model, _ := newModel(t, cfg)
	test := dataset.New([]models.Sample{
		{Text: "good", Label: "0"},
		{Text: "good", Label: "0"},
		{Text: "bad", Label: "1"},
	}, wordTokenizer{}, 8, 0)

	trainer := NewTrainer(model, nil, clockwork.NewFakeClock(), zap.NewNop(), trainOptions(cfg))
	loader := trainer.loader(test)

	negatives := 0
	for pass := 0; pass < 20; pass++ {
		report, err := trainer.Evaluate(context.Background(), loader)
		require.NoError(t, err)
		require.Equal(t, 2, report.Total(), "drop-last keeps one full batch")
		// label 1 is the last index, dropped on every pass without shuffling
		negatives += report.TN + report.FP
	}
	assert.Positive(t, negatives)
	assert.Less(t, negatives, 20)
}

func TestPredictor(t *testing.T) {
	cfg := testConfig(t)
	model, _ := newModel(t, cfg)
	p := NewPredictor(model, wordTokenizer{}, PredictorOptions{
		MaxLen:      cfg.Tokenizer.MaxLen,
		PadID:       cfg.Tokenizer.PadID,
		ClassNames:  cfg.Model.ClassNames,
		EncoderName: cfg.Encoder.Model,
	}, zap.NewNop())

	resp, err := p.Classify(context.Background(), "good movie")
	require.NoError(t, err)
	assert.Contains(t, cfg.Model.ClassNames, resp.Category)
	assert.Equal(t, cfg.Model.ClassNames[resp.CategoryID], resp.Category)
	require.Len(t, resp.Probabilities, 2)
	assert.InDelta(t, 1.0, resp.Probabilities[0]+resp.Probabilities[1], 1e-9)
	assert.Equal(t, resp.Probabilities[resp.CategoryID], resp.Confidence)

	again, err := p.Classify(context.Background(), "good movie")
	require.NoError(t, err)
	assert.Equal(t, resp.Probabilities, again.Probabilities)

	_, err = p.Classify(context.Background(), "")
	assert.Error(t, err)

	batch, err := p.ClassifyBatch(context.Background(), []models.BatchMessage{
		{ID: 7, Text: "bad day"},
		{ID: 8, Text: ""},
	})
	require.NoError(t, err)
	require.Equal(t, 2, batch.Total)
	assert.Equal(t, int64(7), batch.Results[0].ID)
	assert.Equal(t, "error", batch.Results[1].Category)

	info := p.ModelInfo()
	assert.Equal(t, 2, info.NumLabels)
	assert.Equal(t, "tiny-bert", info.Encoder)
	assert.Equal(t, 8, info.MaxLength)
}

func TestBuildModel(t *testing.T) {
	cfg := testConfig(t)

	_, err := BuildModel(cfg, true, zap.NewNop())
	require.Error(t, err, "missing head checkpoint")

	trained, err := BuildModel(cfg, false, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, trained.SaveFile(cfg.Model.Checkpoint))

	encPath := filepath.Join(t.TempDir(), "encoder.bin")
	enc, err := encoder.New(cfg.Encoder, rand.New(rand.NewSource(*cfg.Training.Seed)))
	require.NoError(t, err)
	f, err := os.Create(encPath)
	require.NoError(t, err)
	require.NoError(t, enc.Save(f))
	require.NoError(t, f.Close())
	cfg.Encoder.Checkpoint = encPath

	loaded, err := BuildModel(cfg, true, zap.NewNop())
	require.NoError(t, err)

	batch := &models.Batch{
		InputIDs:      [][]int{{2, 5, 8, 3, 0, 0, 0, 0}},
		AttentionMask: [][]int{{1, 1, 1, 1, 0, 0, 0, 0}},
		Labels:        []int{0},
	}
	a, err := trained.Forward(batch, trained.InitHidden(1), false)
	require.NoError(t, err)
	b, err := loaded.Forward(batch, loaded.InitHidden(1), false)
	require.NoError(t, err)
	assert.InDeltaSlice(t, a.Logits, b.Logits, 1e-3)
}
