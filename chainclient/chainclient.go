// Package chainclient defines the contract between the index engine and
// the chain producer it observes. The core treats the producer purely as
// an event source plus a read-only query surface; this package never
// interprets transaction or script bytes itself.
package chainclient

import "chainidx/chaincfg/chainhash"

// OutPoint identifies an output by the hash of the transaction that
// created it and its index within that transaction's outputs.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// TxOut is a single transaction output: opaque script bytes plus whatever
// address hash the producer has already resolved for it (nil if the script
// doesn't pay to a recognized address type).
type TxOut struct {
	Value      int64
	PkScript   []byte
	AddrHash   []byte
}

// TxIn is a single transaction input, identifying the output it spends.
type TxIn struct {
	PreviousOutPoint OutPoint
}

// Tx is the opaque-bytes view of a transaction the core operates on: it
// never decodes scripts itself, it only consumes typed hashes and the
// address hashes the producer (or View) resolves on its behalf.
type Tx interface {
	Hash() chainhash.Hash
	IsCoinBase() bool
	Inputs() []TxIn
	Outputs() []TxOut
	// Bytes returns the raw transaction bytes, opaque to the core, stored
	// verbatim in TxIndexer records.
	Bytes() []byte
}

// Block is an ordered sequence of transactions plus whatever header fields
// the core needs.
type Block interface {
	Txs() []Tx
}

// Entry is the producer's lightweight handle for a block: hash, height,
// time, and a link to the previous entry.
type Entry interface {
	Hash() chainhash.Hash
	Height() uint32
	Time() uint32
	PrevHash() chainhash.Hash
}

// View resolves spent outputs, letting the core learn which address hash a
// given input actually spent without decoding chain state itself.
type View interface {
	// GetSpentOutput returns the output referenced by op, or ok=false if
	// the view cannot resolve it. Indexers skip input-side mutations for an
	// unresolved input only when the view is EmptyView; any other view that
	// returns ok=false makes AddrIndexer fail with ErrMissingSpentOutput.
	GetSpentOutput(op OutPoint) (out TxOut, ok bool)
}

// EmptyView is a View that never resolves anything, used when the
// producer has no better answer during catch-up.
type EmptyView struct{}

// GetSpentOutput always reports no match.
func (EmptyView) GetSpentOutput(OutPoint) (TxOut, bool) { return TxOut{}, false }

// EventKind discriminates the variants carried by Event.
type EventKind int

const (
	// EventConnect signals a new best-chain block.
	EventConnect EventKind = iota
	// EventDisconnect signals the removal of the current tip block.
	EventDisconnect
	// EventReset signals the producer discarded its chain down to Tip.
	EventReset
	// EventTx signals an unconfirmed transaction observed by the producer.
	EventTx
)

// Event is the single message type the producer emits; IndexDB serializes
// these through its exclusion lock.
type Event struct {
	Kind  EventKind
	Entry Entry
	Block Block
	View  View
	Tip   Entry
	Tx    Tx
}

// Client is the contract the index engine consumes from the chain
// producer: an event source plus a read-only query surface.
type Client interface {
	// Events returns the channel the producer publishes Events on. The
	// channel is closed when the client is stopped.
	Events() <-chan Event

	// GetEntry resolves a hash to its Entry, or ok=false if unknown.
	GetEntry(hash chainhash.Hash) (Entry, bool)
	// GetEntryByHeight resolves a height to its Entry on the producer's
	// current best chain, or ok=false if out of range.
	GetEntryByHeight(height uint32) (Entry, bool)
	// GetBlock fetches the full block for hash.
	GetBlock(hash chainhash.Hash) (Block, error)
	// GetNext returns the entry immediately following e on the producer's
	// current best chain, or ok=false if e is the tip.
	GetNext(e Entry) (Entry, bool)
	// GetHashes returns the inclusive range of canonical hashes
	// [start, end] at bootstrap time.
	GetHashes(start, end uint32) ([]chainhash.Hash, error)
	// GetTip returns the producer's current best-chain tip.
	GetTip() (Entry, error)

	// Start begins emitting events on the channel returned by Events.
	Start() error
	// Stop halts event emission; after Stop returns, no further events
	// will be sent and the Events channel is closed.
	Stop()
}
