// Package dataset defines the data access contract the training loop
// consumes. Real dataset construction and tokenization happen outside the
// miner core; tests and the reference command use the in-memory loader.
package dataset

// Batch is one mini-batch of examples. Inputs are row-major feature
// vectors; Labels are class indices for classification tasks and next-token
// ids for language modelling tasks.
type Batch struct {
	Inputs [][]float64
	Labels []int
}

func (b Batch) Size() int {
	return len(b.Inputs)
}

// Loader yields batches in order. Next returns false when the pass is
// exhausted; Reset rewinds for the next epoch.
type Loader interface {
	Next() (Batch, bool)
	Reset()
}

type sliceLoader struct {
	batches []Batch
	pos     int
}

func NewSliceLoader(batches []Batch) Loader {
	return &sliceLoader{batches: batches}
}

func (l *sliceLoader) Next() (Batch, bool) {
	if l.pos >= len(l.batches) {
		return Batch{}, false
	}
	b := l.batches[l.pos]
	l.pos++

	return b, true
}

func (l *sliceLoader) Reset() {
	l.pos = 0
}
