package service

import (
	"errors"
	"fmt"
	"math/rand"
	"os"

	"sentiment-classifier/internal/classifier"
	"sentiment-classifier/internal/config"
	"sentiment-classifier/internal/encoder"
	"sentiment-classifier/internal/tokenizer"

	"go.uber.org/zap"
)

// LoadTokenizer opens the configured tokenizer.json, or builds a WordPiece
// tokenizer from vocab.txt when no tokenizer file is set.
func LoadTokenizer(cfg *config.Config) (*tokenizer.WordPiece, error) {
	if cfg.Tokenizer.Path != "" {
		return tokenizer.FromFile(cfg.Tokenizer.Path)
	}
	return tokenizer.FromVocab(cfg.Tokenizer.Vocab, cfg.Tokenizer.Lowercase)
}

// BuildModel assembles the frozen encoder and the classifier head. The encoder
// is read from its checkpoint when configured, otherwise seeded. When
// loadHead is set the head is restored from the model checkpoint.
func BuildModel(cfg *config.Config, loadHead bool, logger *zap.Logger) (*classifier.Model, error) {
	rng := rand.New(rand.NewSource(*cfg.Training.Seed))

	enc, err := encoder.New(cfg.Encoder, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to build encoder: %w", err)
	}
	if cfg.Encoder.Checkpoint != "" {
		if err := enc.LoadFile(cfg.Encoder.Checkpoint); err != nil {
			return nil, err
		}
		logger.Info("Encoder loaded", zap.String("checkpoint", cfg.Encoder.Checkpoint))
	} else {
		logger.Warn("No encoder checkpoint configured, using seeded weights",
			zap.String("model", cfg.Encoder.Model),
			zap.Int64("seed", *cfg.Training.Seed))
	}

	model, err := classifier.New(classifier.FromConfig(cfg), enc, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier: %w", err)
	}

	if loadHead {
		if _, err := os.Stat(cfg.Model.Checkpoint); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("model checkpoint %s not found, run training first", cfg.Model.Checkpoint)
		}
		if err := model.LoadFile(cfg.Model.Checkpoint); err != nil {
			return nil, err
		}
		logger.Info("Classifier loaded", zap.String("checkpoint", cfg.Model.Checkpoint))
	}
	return model, nil
}
