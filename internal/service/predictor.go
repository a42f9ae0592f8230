package service

import (
	"context"
	"fmt"
	"time"

	"sentiment-classifier/internal/classifier"
	"sentiment-classifier/internal/metrics"
	"sentiment-classifier/internal/models"
	"sentiment-classifier/internal/tokenizer"

	"go.uber.org/zap"
)

const serviceName = "sentiment-classifier"

// Version is reported by the model info endpoint.
var Version = "dev"

// Predictor classifies single texts with a trained model. It is safe for
// concurrent use since inference never mutates the model.
type Predictor struct {
	model       *classifier.Model
	tok         tokenizer.Tokenizer
	maxLen      int
	padID       int
	classNames  []string
	encoderName string
	logger      *zap.Logger
}

// PredictorOptions describe how texts are prepared and labelled.
type PredictorOptions struct {
	MaxLen      int
	PadID       int
	ClassNames  []string
	EncoderName string
}

// NewPredictor creates a predictor.
func NewPredictor(model *classifier.Model, tok tokenizer.Tokenizer, opts PredictorOptions, logger *zap.Logger) *Predictor {
	return &Predictor{
		model:       model,
		tok:         tok,
		maxLen:      opts.MaxLen,
		padID:       opts.PadID,
		classNames:  opts.ClassNames,
		encoderName: opts.EncoderName,
		logger:      logger,
	}
}

// Classify predicts the category of one text.
func (p *Predictor) Classify(ctx context.Context, text string) (*models.ClassifyResponse, error) {
	start := time.Now()
	resp, err := p.classify(ctx, text)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	resp.ProcessingTimeMs = float64(elapsed.Microseconds()) / 1000
	metrics.PredictDuration.WithLabelValues("single").Observe(elapsed.Seconds())
	return resp, nil
}

func (p *Predictor) classify(ctx context.Context, text string) (*models.ClassifyResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	ids, mask, err := p.tok.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("tokenization failed: %w", err)
	}
	ids, mask = tokenizer.Pad(ids, mask, p.maxLen, p.padID)

	batch := &models.Batch{
		InputIDs:      [][]int{ids},
		AttentionMask: [][]int{mask},
		Labels:        []int{0},
	}
	out, err := p.model.Forward(batch, p.model.InitHidden(1), false)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	pred := out.Predictions[0]
	category := p.categoryName(pred)
	metrics.PredictionsTotal.WithLabelValues(category).Inc()

	return &models.ClassifyResponse{
		Text:          text,
		Category:      category,
		CategoryID:    pred,
		Confidence:    out.Probabilities[0][pred],
		Probabilities: out.Probabilities[0],
	}, nil
}

// ClassifyBatch classifies every message in order. A message that fails is
// logged and reported with category "error".
func (p *Predictor) ClassifyBatch(ctx context.Context, messages []models.BatchMessage) (*models.BatchClassifyResponse, error) {
	start := time.Now()
	results := make([]models.BatchResult, 0, len(messages))

	for i, msg := range messages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := p.classify(ctx, msg.Text)
		if err != nil {
			p.logger.Warn("Failed to classify message in batch",
				zap.Int("index", i),
				zap.Int64("id", msg.ID),
				zap.Error(err))
			resp = &models.ClassifyResponse{Text: msg.Text, Category: "error", CategoryID: -1}
		}
		results = append(results, models.BatchResult{ID: msg.ID, ClassifyResponse: *resp})
	}

	elapsed := time.Since(start)
	metrics.PredictDuration.WithLabelValues("batch").Observe(elapsed.Seconds())
	return &models.BatchClassifyResponse{
		Results:          results,
		Total:            len(results),
		ProcessingTimeMs: float64(elapsed.Microseconds()) / 1000,
	}, nil
}

// ModelInfo describes the loaded model.
func (p *Predictor) ModelInfo() *models.ModelInfo {
	return &models.ModelInfo{
		ServiceName: serviceName,
		Version:     Version,
		Encoder:     p.encoderName,
		Classes:     p.classNames,
		NumLabels:   len(p.classNames),
		Device:      "cpu",
		MaxLength:   p.maxLen,
	}
}

func (p *Predictor) categoryName(id int) string {
	if id >= 0 && id < len(p.classNames) {
		return p.classNames[id]
	}
	return fmt.Sprintf("class_%d", id)
}
