package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"sentiment-classifier/internal/models"
)

// ErrMalformedLine is returned when a line does not hold exactly two tab-separated fields.
var ErrMalformedLine = errors.New("malformed corpus line")

// Source yields labeled samples, truncated to the first limit entries when limit > 0.
type Source interface {
	Load(ctx context.Context, limit int) ([]models.Sample, error)
}

// ReadTSV reads text/label pairs from a tab-separated file, one sample per line.
// Empty lines are skipped.
func ReadTSV(path string, limit int) ([]string, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read corpus file: %w", err)
	}

	var texts, labels []string
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 2 {
			return nil, nil, fmt.Errorf("%s:%d: %w: got %d fields, want 2", path, i+1, ErrMalformedLine, len(fields))
		}
		texts = append(texts, fields[0])
		labels = append(labels, fields[1])
	}

	if limit > 0 && limit < len(texts) {
		return texts[:limit], labels[:limit], nil
	}
	return texts, labels, nil
}

// TSVSource loads samples from a flat file.
type TSVSource struct {
	Path string
}

// Load implements Source.
func (s TSVSource) Load(ctx context.Context, limit int) ([]models.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	texts, labels, err := ReadTSV(s.Path, limit)
	if err != nil {
		return nil, err
	}
	return Zip(texts, labels), nil
}

// Zip pairs parallel text and label sequences. The shorter one bounds the result.
func Zip(texts, labels []string) []models.Sample {
	n := min(len(texts), len(labels))
	samples := make([]models.Sample, n)
	for i := 0; i < n; i++ {
		samples[i] = models.Sample{Text: texts[i], Label: labels[i]}
	}
	return samples
}
