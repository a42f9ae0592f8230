package models

// Sample is one labeled text as read from the corpus.
// An empty Text marks a missing comment.
type Sample struct {
	Text  string `json:"text" db:"comment"`
	Label string `json:"label" db:"state"`
}

// Example is a tokenized Sample padded or truncated to the configured max length.
type Example struct {
	InputIDs      []int `json:"input_ids"`
	AttentionMask []int `json:"attention_mask"`
	Label         int   `json:"label"`
}

// Batch groups a fixed number of examples.
type Batch struct {
	InputIDs      [][]int
	AttentionMask [][]int
	Labels        []int
}

// Size returns the number of examples in the batch.
func (b *Batch) Size() int {
	return len(b.Labels)
}
