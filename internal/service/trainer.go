package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"sentiment-classifier/internal/classifier"
	"sentiment-classifier/internal/dataset"
	"sentiment-classifier/internal/evaluation"
	"sentiment-classifier/internal/metrics"
	"sentiment-classifier/internal/models"
	"sentiment-classifier/internal/nn"
	"sentiment-classifier/internal/repository"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// TrainOptions are the loop hyperparameters.
type TrainOptions struct {
	ModelName    string
	Epochs       int
	BatchSize    int
	LearningRate float64
	Shuffle      bool
	Seed         int64
}

// Trainer runs the train/evaluate loop and records every run.
type Trainer struct {
	model   *classifier.Model
	opt     *nn.Adam
	runs    repository.RunRepository
	clock   clockwork.Clock
	logger  *zap.Logger
	opts    TrainOptions
	rng     *rand.Rand
	history evaluation.History
}

// NewTrainer creates a trainer. runs may be nil, in which case nothing is persisted.
func NewTrainer(
	model *classifier.Model,
	runs repository.RunRepository,
	clock clockwork.Clock,
	logger *zap.Logger,
	opts TrainOptions,
) *Trainer {
	return &Trainer{
		model:  model,
		opt:    nn.NewAdam(model.Params(), opts.LearningRate),
		runs:   runs,
		clock:  clock,
		logger: logger,
		opts:   opts,
		rng:    rand.New(rand.NewSource(opts.Seed)),
	}
}

// History returns the per-epoch metric lists collected so far.
func (t *Trainer) History() evaluation.History {
	return t.history
}

// TrainEpoch makes one pass over loader and returns the mean batch loss.
func (t *Trainer) TrainEpoch(ctx context.Context, loader *dataset.Loader) (float64, error) {
	state := t.model.InitHidden(t.opts.BatchSize)

	var total float64
	var batches int
	it := loader.Iter()
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		batch := it.Batch()

		out, err := t.model.Forward(batch, state, true)
		if err != nil {
			return 0, fmt.Errorf("forward pass failed: %w", err)
		}
		loss, _, dLogits, err := nn.CrossEntropy(out.Logits, batch.Labels, t.model.Config().Classes)
		if err != nil {
			return 0, fmt.Errorf("loss failed: %w", err)
		}

		t.opt.ZeroGrad()
		t.model.Backward(out, dLogits)
		t.opt.Step()

		total += loss
		batches++
		metrics.TrainBatchesTotal.Inc()
		metrics.TrainLoss.Set(loss)
		t.logger.Info("Train batch",
			zap.Int("batch", batches),
			zap.String("loss", fmt.Sprintf("%.3f", loss)))
	}
	if err := it.Err(); err != nil {
		return 0, fmt.Errorf("failed to load training batch: %w", err)
	}

	if batches == 0 {
		return 0, nil
	}
	return total / float64(batches), nil
}

// Evaluate runs loader in inference mode and returns the metric report.
func (t *Trainer) Evaluate(ctx context.Context, loader *dataset.Loader) (evaluation.Report, error) {
	state := t.model.InitHidden(t.opts.BatchSize)

	var confusion evaluation.Confusion
	var scores []float64
	var labels []int

	it := loader.Iter()
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return evaluation.Report{}, err
		}
		batch := it.Batch()

		out, err := t.model.Forward(batch, state, false)
		if err != nil {
			return evaluation.Report{}, fmt.Errorf("forward pass failed: %w", err)
		}
		for b, pred := range out.Predictions {
			confusion.Add(pred, batch.Labels[b])
			scores = append(scores, out.Probabilities[b][1])
			labels = append(labels, batch.Labels[b])
		}
	}
	if err := it.Err(); err != nil {
		return evaluation.Report{}, fmt.Errorf("failed to load evaluation batch: %w", err)
	}

	return evaluation.NewReport(confusion, scores, labels), nil
}

// Run trains for the configured number of epochs, evaluating after each one.
func (t *Trainer) Run(ctx context.Context, train, test *dataset.Dataset) (*models.RunDetails, error) {
	run := &models.Run{
		ID:           uuid.New().String(),
		Status:       models.RunProcessing,
		ModelName:    t.opts.ModelName,
		Epochs:       t.opts.Epochs,
		BatchSize:    t.opts.BatchSize,
		LearningRate: t.opts.LearningRate,
		TrainSize:    train.Len(),
		TestSize:     test.Len(),
		StartedAt:    t.clock.Now().UTC(),
	}
	if t.runs != nil {
		if err := t.runs.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
	}
	t.logger.Info("Training started",
		zap.String("run_id", run.ID),
		zap.Int("train_size", run.TrainSize),
		zap.Int("test_size", run.TestSize))

	details := &models.RunDetails{Run: run}
	trainLoader := t.loader(train)
	testLoader := t.loader(test)

	for epoch := 1; epoch <= t.opts.Epochs; epoch++ {
		result, err := t.runEpoch(ctx, run.ID, epoch, trainLoader, testLoader)
		if err != nil {
			t.finish(run, err)
			return details, err
		}
		details.Epochs = append(details.Epochs, result)
	}

	t.finish(run, nil)
	return details, nil
}

func (t *Trainer) runEpoch(ctx context.Context, runID string, epoch int, train, test *dataset.Loader) (*models.EpochResult, error) {
	start := t.clock.Now()
	loss, err := t.TrainEpoch(ctx, train)
	if err != nil {
		return nil, fmt.Errorf("epoch %d training failed: %w", epoch, err)
	}
	metrics.EpochDuration.WithLabelValues("train").Observe(t.clock.Since(start).Seconds())

	start = t.clock.Now()
	report, err := t.Evaluate(ctx, test)
	if err != nil {
		return nil, fmt.Errorf("epoch %d evaluation failed: %w", epoch, err)
	}
	metrics.EpochDuration.WithLabelValues("eval").Observe(t.clock.Since(start).Seconds())

	t.history.Append(report)
	t.logReport(epoch, report)

	result := &models.EpochResult{
		RunID:     runID,
		Epoch:     epoch,
		TrainLoss: loss,
		TP:        report.TP,
		TN:        report.TN,
		FP:        report.FP,
		FN:        report.FN,
		Accuracy:  report.Accuracy,
		Precision: report.Precision,
		Recall:    report.Recall,
		F1:        report.F1,
		AUC:       report.AUC,
		CreatedAt: t.clock.Now().UTC(),
	}
	if t.runs != nil {
		if err := t.runs.SaveEpoch(ctx, result); err != nil {
			return nil, fmt.Errorf("failed to save epoch %d: %w", epoch, err)
		}
	}
	return result, nil
}

func (t *Trainer) logReport(epoch int, r evaluation.Report) {
	metrics.EvalMetric.WithLabelValues("accuracy").Set(r.Accuracy)
	metrics.EvalMetric.WithLabelValues("precision").Set(r.Precision)
	metrics.EvalMetric.WithLabelValues("recall").Set(r.Recall)
	metrics.EvalMetric.WithLabelValues("f1").Set(r.F1)

	fields := []zap.Field{
		zap.Int("epoch", epoch),
		zap.Int("tp", r.TP),
		zap.Int("tn", r.TN),
		zap.Int("fp", r.FP),
		zap.Int("fn", r.FN),
		zap.String("accuracy", evaluation.FormatPercents(t.history.Accuracy)),
		zap.String("precision", evaluation.FormatPercents(t.history.Precision)),
		zap.String("recall", evaluation.FormatPercents(t.history.Recall)),
		zap.String("f1", evaluation.FormatPercents(t.history.F1)),
		zap.Float64s("auc", t.history.AUC),
	}
	if r.AUC != nil {
		metrics.EvalMetric.WithLabelValues("auc").Set(*r.AUC)
	}
	t.logger.Info("Epoch evaluated", fields...)
}

func (t *Trainer) finish(run *models.Run, runErr error) {
	completed := t.clock.Now().UTC()
	run.CompletedAt = &completed
	run.Status = models.RunCompleted
	if runErr != nil {
		run.Status = models.RunFailed
		msg := runErr.Error()
		run.ErrorMessage = &msg
		t.logger.Error("Training failed", zap.String("run_id", run.ID), zap.Error(runErr))
	} else {
		t.logger.Info("Training completed",
			zap.String("run_id", run.ID),
			zap.Duration("elapsed", completed.Sub(run.StartedAt)))
	}

	if t.runs == nil {
		return
	}
	// the run context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.runs.UpdateRun(ctx, run); err != nil {
		t.logger.Error("Failed to update run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// loader batches ds the same way for both splits: shuffled when configured,
// dropping the last partial batch.
func (t *Trainer) loader(ds *dataset.Dataset) *dataset.Loader {
	return dataset.NewLoader(ds, t.opts.BatchSize, t.opts.Shuffle, t.rng)
}

// Evaluate runs model over ds once in inference mode and logs the report.
// Only BatchSize, Shuffle and Seed of opts are used.
func Evaluate(ctx context.Context, model *classifier.Model, ds *dataset.Dataset, opts TrainOptions, logger *zap.Logger) (evaluation.Report, error) {
	t := &Trainer{
		model:  model,
		logger: logger,
		opts:   opts,
		rng:    rand.New(rand.NewSource(opts.Seed)),
	}
	report, err := t.Evaluate(ctx, t.loader(ds))
	if err != nil {
		return report, err
	}
	t.history.Append(report)
	t.logReport(1, report)
	return report, nil
}
