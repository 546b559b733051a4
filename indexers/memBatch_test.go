package indexers

// memBatch is a minimal in-memory Batch used by this package's tests: a
// plain map recording puts and deletes so IndexBlock/UnindexBlock roundtrip
// behavior can be asserted without a real store.
type memBatch struct {
	data map[string][]byte
}

func newMemBatch() *memBatch {
	return &memBatch{data: make(map[string][]byte)}
}

func (b *memBatch) Put(key, value []byte) error {
	b.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (b *memBatch) Delete(key []byte) error {
	delete(b.data, string(key))
	return nil
}
