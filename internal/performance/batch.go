package performance

import "sync"

// BatchProcessor groups items and hands them to a processing function
// batchSize at a time.
type BatchProcessor[T any] struct {
	size    int
	process func([]T) error

	mu      sync.Mutex
	pending []T
}

// NewBatchProcessor creates a batch processor. A batchSize below one is
// treated as one.
func NewBatchProcessor[T any](batchSize int, process func([]T) error) *BatchProcessor[T] {
	if batchSize < 1 {
		batchSize = 1
	}
	return &BatchProcessor[T]{
		size:    batchSize,
		process: process,
		pending: make([]T, 0, batchSize),
	}
}

// Add appends item and processes the batch once it is full. The batch is
// dropped from the processor whether or not processing succeeds.
func (b *BatchProcessor[T]) Add(item T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, item)
	if len(b.pending) < b.size {
		return nil
	}
	return b.flushLocked()
}

// Flush processes whatever is pending.
func (b *BatchProcessor[T]) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *BatchProcessor[T]) flushLocked() error {
	if len(b.pending) == 0 {
		return nil
	}
	batch := b.pending
	b.pending = make([]T, 0, b.size)
	return b.process(batch)
}
