// Package indexers defines the pluggable indexer contract and the two
// concrete indexers the engine ships: TxIndexer (transaction lookup by
// hash) and AddrIndexer (address-to-transaction and address-to-coin
// lookups). Neither indexer owns a batch; IndexDB hands each plugin a
// batch handle to record puts/deletes into.
package indexers

import "chainidx/chainclient"

// Indexer is the contract every plugin implements. IndexBlock/UnindexBlock
// must be exact inverses of each other for the same (entry, block, view):
// running both in sequence over the same batch is a no-op on the store.
type Indexer interface {
	// Name identifies the indexer for logging and configuration.
	Name() string
	// Prefixes lists the key tags this indexer is permitted to write.
	// IndexDB enforces that a plugin never writes outside its declared
	// prefixes.
	Prefixes() [][]byte

	// IndexBlock computes forward mutations for block into batch.
	IndexBlock(batch Batch, entry chainclient.Entry, block chainclient.Block, view chainclient.View) error
	// UnindexBlock computes the exact inverse of IndexBlock into batch.
	UnindexBlock(batch Batch, entry chainclient.Entry, block chainclient.Block, view chainclient.View) error
}

// Batch is the subset of store.IndexedBatch an indexer needs: it can put
// and delete but never commits or reads back its own prior writes within
// the same block (the contract forbids inspecting another plugin's
// writes, and an indexer need not inspect its own either).
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}
