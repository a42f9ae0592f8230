package tokenizer

import (
	"fmt"

	tkz "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	"github.com/sugarme/tokenizer/processor"
)

// Tokenizer turns text into subword ids and an attention mask of equal length.
type Tokenizer interface {
	Encode(text string) (ids []int, mask []int, err error)
}

// WordPiece is a BERT subword tokenizer.
type WordPiece struct {
	tk *tkz.Tokenizer
}

// FromFile loads a HuggingFace tokenizer.json.
func FromFile(path string) (*WordPiece, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", path, err)
	}
	return &WordPiece{tk: tk}, nil
}

// FromVocab builds a BERT tokenizer from a vocab.txt: BERT normalization and
// pre-tokenization, [CLS] ... [SEP] post-processing.
func FromVocab(vocabPath string, lowercase bool) (*WordPiece, error) {
	model, err := wordpiece.NewWordPieceFromFile(vocabPath, "[UNK]")
	if err != nil {
		return nil, fmt.Errorf("failed to load vocab %s: %w", vocabPath, err)
	}

	tk := tkz.NewTokenizer(model)
	tk.WithNormalizer(normalizer.NewBertNormalizer(true, lowercase, true, lowercase))
	tk.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	sepID, ok := tk.TokenToId("[SEP]")
	if !ok {
		return nil, fmt.Errorf("vocab %s has no [SEP] token", vocabPath)
	}
	clsID, ok := tk.TokenToId("[CLS]")
	if !ok {
		return nil, fmt.Errorf("vocab %s has no [CLS] token", vocabPath)
	}
	tk.WithPostProcessor(processor.NewBertProcessing(
		processor.PostToken{Id: sepID, Value: "[SEP]"},
		processor.PostToken{Id: clsID, Value: "[CLS]"},
	))

	return &WordPiece{tk: tk}, nil
}

// Encode implements Tokenizer. Special tokens are added.
func (w *WordPiece) Encode(text string) ([]int, []int, error) {
	enc, err := w.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to tokenize: %w", err)
	}
	ids := append([]int(nil), enc.GetIds()...)
	mask := append([]int(nil), enc.GetAttentionMask()...)
	return ids, mask, nil
}

// Pad right-pads ids with padID and mask with zeros up to maxLen, then truncates
// both to maxLen. The inputs are not modified.
func Pad(ids, mask []int, maxLen, padID int) ([]int, []int) {
	outIDs := make([]int, maxLen)
	outMask := make([]int, maxLen)
	for i := 0; i < maxLen; i++ {
		if i < len(ids) {
			outIDs[i] = ids[i]
		} else {
			outIDs[i] = padID
		}
		if i < len(mask) {
			outMask[i] = mask[i]
		}
	}
	return outIDs, outMask
}
