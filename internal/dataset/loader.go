package dataset

import (
	"math/rand"

	"sentiment-classifier/internal/models"
)

// Loader groups dataset items into fixed-size batches. The trailing partial batch is dropped.
type Loader struct {
	ds        *Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
}

// NewLoader creates a loader. rng drives shuffling and may be nil when shuffle is false.
func NewLoader(ds *Dataset, batchSize int, shuffle bool, rng *rand.Rand) *Loader {
	if shuffle && rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Loader{
		ds:        ds,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rng,
	}
}

// NumBatches returns how many full batches one pass yields.
func (l *Loader) NumBatches() int {
	if l.batchSize <= 0 {
		return 0
	}
	return l.ds.Len() / l.batchSize
}

// NumExamples returns how many examples one pass yields.
func (l *Loader) NumExamples() int {
	return l.NumBatches() * l.batchSize
}

// Iter starts a new pass over the dataset, reshuffling when enabled.
func (l *Loader) Iter() *Iterator {
	order := make([]int, l.ds.Len())
	for i := range order {
		order[i] = i
	}
	if l.shuffle {
		l.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}
	return &Iterator{loader: l, order: order}
}

// Iterator walks the batches of one pass.
//
//	it := loader.Iter()
//	for it.Next() {
//		b := it.Batch()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	loader *Loader
	order  []int
	pos    int
	batch  *models.Batch
	err    error
}

// Next prepares the next batch. It returns false at the end of the pass or on error.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	size := it.loader.batchSize
	if size <= 0 || it.pos+size > len(it.order) {
		return false
	}

	b := &models.Batch{
		InputIDs:      make([][]int, 0, size),
		AttentionMask: make([][]int, 0, size),
		Labels:        make([]int, 0, size),
	}
	for _, idx := range it.order[it.pos : it.pos+size] {
		ex, err := it.loader.ds.Get(idx)
		if err != nil {
			it.err = err
			return false
		}
		b.InputIDs = append(b.InputIDs, ex.InputIDs)
		b.AttentionMask = append(b.AttentionMask, ex.AttentionMask)
		b.Labels = append(b.Labels, ex.Label)
	}
	it.pos += size
	it.batch = b
	return true
}

// Batch returns the batch prepared by the last successful Next.
func (it *Iterator) Batch() *models.Batch {
	return it.batch
}

// Err returns the first error met during the pass.
func (it *Iterator) Err() error {
	return it.err
}
