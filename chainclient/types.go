package chainclient

import "chainidx/chaincfg/chainhash"

// SimpleEntry is a concrete, value-type Entry suitable for any client
// implementation that doesn't need a richer header.
type SimpleEntry struct {
	HashV     chainhash.Hash
	HeightV   uint32
	TimeV     uint32
	PrevHashV chainhash.Hash
}

func (e SimpleEntry) Hash() chainhash.Hash     { return e.HashV }
func (e SimpleEntry) Height() uint32           { return e.HeightV }
func (e SimpleEntry) Time() uint32             { return e.TimeV }
func (e SimpleEntry) PrevHash() chainhash.Hash { return e.PrevHashV }

// SimpleTx is a concrete Tx backed by in-memory fields, used by MemClient
// and by tests that need to construct transactions by hand.
type SimpleTx struct {
	HashV       chainhash.Hash
	CoinBase    bool
	InputsV     []TxIn
	OutputsV    []TxOut
	RawBytes    []byte
}

func (t *SimpleTx) Hash() chainhash.Hash { return t.HashV }
func (t *SimpleTx) IsCoinBase() bool     { return t.CoinBase }
func (t *SimpleTx) Inputs() []TxIn       { return t.InputsV }
func (t *SimpleTx) Outputs() []TxOut     { return t.OutputsV }
func (t *SimpleTx) Bytes() []byte        { return t.RawBytes }

// SimpleBlock is a concrete Block backed by a slice of transactions.
type SimpleBlock struct {
	TxsV []Tx
}

func (b *SimpleBlock) Txs() []Tx { return b.TxsV }
