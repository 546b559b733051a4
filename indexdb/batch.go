package indexdb

import (
	"bytes"
	"fmt"

	"chainidx/store"
)

// restrictedBatch wraps a store.IndexedBatch and rejects any write outside
// the owning plugin's declared key prefixes, so one plugin's bug can never
// corrupt another plugin's keyspace.
type restrictedBatch struct {
	batch    store.IndexedBatch
	prefixes [][]byte
}

func (b *restrictedBatch) Put(key, value []byte) error {
	if err := b.check(key); err != nil {
		return err
	}
	return b.batch.Put(key, value)
}

func (b *restrictedBatch) Delete(key []byte) error {
	if err := b.check(key); err != nil {
		return err
	}
	return b.batch.Delete(key)
}

func (b *restrictedBatch) check(key []byte) error {
	for _, p := range b.prefixes {
		if bytes.HasPrefix(key, p) {
			return nil
		}
	}
	return &ErrInvariantViolation{Detail: fmt.Sprintf("plugin wrote outside its declared prefix: key %x", key)}
}
