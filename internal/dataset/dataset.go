package dataset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sentiment-classifier/internal/models"
	"sentiment-classifier/internal/tokenizer"
)

var (
	// ErrMalformedLabel is returned when a label is not an integer.
	ErrMalformedLabel = errors.New("malformed label")
	// ErrNoText is returned when no sample in the dataset carries text.
	ErrNoText = errors.New("dataset has no text")
)

// Dataset tokenizes samples on access.
type Dataset struct {
	samples []models.Sample
	tok     tokenizer.Tokenizer
	maxLen  int
	padID   int
}

// New wraps samples with a tokenizer and the fixed sequence length.
func New(samples []models.Sample, tok tokenizer.Tokenizer, maxLen, padID int) *Dataset {
	return &Dataset{
		samples: samples,
		tok:     tok,
		maxLen:  maxLen,
		padID:   padID,
	}
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.samples)
}

// MaxLen returns the padded sequence length.
func (d *Dataset) MaxLen() int {
	return d.maxLen
}

// Get tokenizes the sample at index. A sample with empty text is replaced by the
// next one, wrapping around the end of the dataset.
func (d *Dataset) Get(index int) (models.Example, error) {
	n := len(d.samples)
	if index < 0 || index >= n {
		return models.Example{}, fmt.Errorf("index %d out of range [0,%d)", index, n)
	}

	for tries := 0; tries < n; tries++ {
		s := d.samples[index]
		if s.Text == "" {
			index = (index + 1) % n
			continue
		}

		label, err := strconv.Atoi(strings.TrimSpace(s.Label))
		if err != nil {
			return models.Example{}, fmt.Errorf("sample %d: %w %q", index, ErrMalformedLabel, s.Label)
		}

		ids, mask, err := d.tok.Encode(s.Text)
		if err != nil {
			return models.Example{}, fmt.Errorf("sample %d: %w", index, err)
		}
		ids, mask = tokenizer.Pad(ids, mask, d.maxLen, d.padID)

		return models.Example{InputIDs: ids, AttentionMask: mask, Label: label}, nil
	}

	return models.Example{}, ErrNoText
}
