package store

// DefaultBatchSize is the batch capacity used when the caller has no
// stronger opinion: enough to hold a handful of blocks' worth of index
// mutations before flushing.
const DefaultBatchSize = 10 * 1024 * 1024

// Batch is a write-only staging area: puts and deletes accumulate in memory
// and are committed atomically by Write. A Batch instance must not be used
// concurrently.
type Batch interface {
	KeyValueWriter
	KeyValueRangeDeleter
	// Size reports the accumulated size of the staged writes.
	Size() int
	// Write flushes the staged writes atomically.
	Write() error
	// Reset discards the staged writes.
	Reset()
}

// Batcher produces Batch instances.
type Batcher interface {
	NewBatch() Batch
	NewBatchWithSize(size int) Batch
}

// IndexedBatch is a Batch that can also be read from, seeing both the
// batch's own pending writes and the underlying committed data.
type IndexedBatch interface {
	Batch
	KeyValueReader
	Iterable
}

// IndexedBatcher produces IndexedBatch instances.
type IndexedBatcher interface {
	NewIndexedBatch() IndexedBatch
	NewIndexedBatchWithSize(size int) IndexedBatch
}
