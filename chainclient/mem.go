package chainclient

import (
	"fmt"
	"sync"

	"chainidx/chaincfg/chainhash"
)

// MemClient is a fully in-process reference chain producer: it holds its
// chain as a slice of blocks in memory and drives the Client event
// surface directly from calls made by the test or demo driving it. It is
// the "chain producer" collaborator the engine excludes from its own
// scope, reference-implemented here so the engine is runnable and
// testable end to end without a real node.
//
// MemClient also doubles as the View the engine consults to resolve spent
// outputs: it keeps a simple UTXO set that mirrors whatever chain state it
// currently holds, so it can answer GetSpentOutput even while the engine
// is mid catch-up scan.
type MemClient struct {
	mu sync.Mutex

	chain []memBlockRec // height-indexed, chain[0] is genesis
	utxo  map[OutPoint]TxOut

	events  chan Event
	started bool
}

type memBlockRec struct {
	entry SimpleEntry
	block *SimpleBlock
}

// NewMemClient returns a MemClient seeded with a single genesis block at
// height 0 containing no transactions.
func NewMemClient(genesisHash chainhash.Hash, genesisTime uint32) *MemClient {
	c := &MemClient{
		utxo:   make(map[OutPoint]TxOut),
		events: make(chan Event, 64),
	}
	c.chain = append(c.chain, memBlockRec{
		entry: SimpleEntry{HashV: genesisHash, HeightV: 0, TimeV: genesisTime},
		block: &SimpleBlock{},
	})
	return c
}

func (c *MemClient) Events() <-chan Event { return c.events }

func (c *MemClient) Start() error {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	return nil
}

func (c *MemClient) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.started = false
	close(c.events)
}

func (c *MemClient) GetEntry(hash chainhash.Hash) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.chain {
		if b.entry.HashV == hash {
			return b.entry, true
		}
	}
	return nil, false
}

func (c *MemClient) GetEntryByHeight(height uint32) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(height) >= len(c.chain) {
		return nil, false
	}
	return c.chain[height].entry, true
}

func (c *MemClient) GetBlock(hash chainhash.Hash) (Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.chain {
		if b.entry.HashV == hash {
			return b.block, nil
		}
	}
	return nil, fmt.Errorf("chainclient: unknown block %s", hash)
}

func (c *MemClient) GetNext(e Entry) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := e.Height() + 1
	if int(next) >= len(c.chain) {
		return nil, false
	}
	return c.chain[next].entry, true
}

func (c *MemClient) GetHashes(start, end uint32) ([]chainhash.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(end) >= len(c.chain) {
		return nil, fmt.Errorf("chainclient: height %d out of range", end)
	}
	out := make([]chainhash.Hash, 0, end-start+1)
	for h := start; h <= end; h++ {
		out = append(out, c.chain[h].entry.HashV)
	}
	return out, nil
}

func (c *MemClient) GetTip() (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chain[len(c.chain)-1].entry, nil
}

// GetSpentOutput implements View by consulting the client's own UTXO set
// first, then falling back to a scan of committed blocks for an output
// that's since been spent. The fallback is what makes MemClient usable as
// the view passed to a catch-up scan, which by definition replays blocks
// whose inputs spend outputs no longer in the live UTXO set.
func (c *MemClient) GetSpentOutput(op OutPoint) (TxOut, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if out, ok := c.utxo[op]; ok {
		return out, true
	}
	return c.lookupHistoricOutput(op)
}

// Connect appends a new block as the chain tip and emits EventConnect.
// Outputs of txs in block are recorded into the UTXO set and outputs
// spent by block's inputs are removed from it, so that later blocks and
// catch-up scans can still resolve addresses for inputs spending this
// block's outputs.
func (c *MemClient) Connect(hash chainhash.Hash, blockTime uint32, txs []Tx) SimpleEntry {
	c.mu.Lock()
	prev := c.chain[len(c.chain)-1].entry
	entry := SimpleEntry{
		HashV:     hash,
		HeightV:   prev.HeightV + 1,
		TimeV:     blockTime,
		PrevHashV: prev.HashV,
	}
	block := &SimpleBlock{TxsV: txs}
	// Resolve spent outputs against the UTXO set as it stood *before* this
	// block's own outputs/spends are applied, then apply the mutations.
	spent := c.snapshotSpent(txs)
	c.chain = append(c.chain, memBlockRec{entry: entry, block: block})
	c.applyUTXO(txs)
	view := &memView{spent: spent}
	c.mu.Unlock()

	c.emit(Event{Kind: EventConnect, Entry: entry, Block: block, View: view})
	return entry
}

// Disconnect removes the current tip block and emits EventDisconnect.
func (c *MemClient) Disconnect() {
	c.mu.Lock()
	top := c.chain[len(c.chain)-1]
	// The outputs this block's inputs spent are no longer in c.utxo
	// (applyUTXO removed them on connect), so resolve them from committed
	// blocks while the block being removed is still part of c.chain.
	spent := make(map[OutPoint]TxOut)
	for _, tx := range top.block.TxsV {
		if tx.IsCoinBase() {
			continue
		}
		for _, in := range tx.Inputs() {
			if out, ok := c.lookupHistoricOutput(in.PreviousOutPoint); ok {
				spent[in.PreviousOutPoint] = out
			}
		}
	}
	c.chain = c.chain[:len(c.chain)-1]
	c.unapplyUTXO(top.block.TxsV)
	view := &memView{spent: spent}
	c.mu.Unlock()

	c.emit(Event{Kind: EventDisconnect, Entry: top.entry, Block: top.block, View: view})
}

// snapshotSpent resolves, against the UTXO set as it currently stands,
// every output that txs' non-coinbase inputs reference.
func (c *MemClient) snapshotSpent(txs []Tx) map[OutPoint]TxOut {
	spent := make(map[OutPoint]TxOut)
	for _, tx := range txs {
		if tx.IsCoinBase() {
			continue
		}
		for _, in := range tx.Inputs() {
			if out, ok := c.utxo[in.PreviousOutPoint]; ok {
				spent[in.PreviousOutPoint] = out
			}
		}
	}
	return spent
}

// Reset truncates the chain down to height and emits EventReset.
func (c *MemClient) Reset(height uint32) {
	c.mu.Lock()
	for int(height)+1 < len(c.chain) {
		top := c.chain[len(c.chain)-1]
		c.chain = c.chain[:len(c.chain)-1]
		c.unapplyUTXO(top.block.TxsV)
	}
	tip := c.chain[len(c.chain)-1].entry
	c.mu.Unlock()

	c.emit(Event{Kind: EventReset, Tip: tip})
}

func (c *MemClient) applyUTXO(txs []Tx) {
	for _, tx := range txs {
		for i, out := range tx.Outputs() {
			c.utxo[OutPoint{Hash: tx.Hash(), Index: uint32(i)}] = out
		}
		if !tx.IsCoinBase() {
			for _, in := range tx.Inputs() {
				delete(c.utxo, in.PreviousOutPoint)
			}
		}
	}
}

func (c *MemClient) unapplyUTXO(txs []Tx) {
	// Inverse of applyUTXO: restore spent inputs' outputs (recoverable
	// only because MemClient keeps every connected block, so the original
	// output is still addressable) and remove this block's own outputs.
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		for j := range tx.Outputs() {
			delete(c.utxo, OutPoint{Hash: tx.Hash(), Index: uint32(j)})
		}
		if !tx.IsCoinBase() {
			for _, in := range tx.Inputs() {
				if out, ok := c.lookupHistoricOutput(in.PreviousOutPoint); ok {
					c.utxo[in.PreviousOutPoint] = out
				}
			}
		}
	}
}

// lookupHistoricOutput scans committed blocks for the output identified by
// op; used to resolve spent outputs no longer in the live UTXO set
// (GetSpentOutput, Disconnect) and to restore the UTXO set on disconnect.
func (c *MemClient) lookupHistoricOutput(op OutPoint) (TxOut, bool) {
	for _, b := range c.chain {
		for _, tx := range b.block.TxsV {
			if tx.Hash() == op.Hash {
				outs := tx.Outputs()
				if int(op.Index) < len(outs) {
					return outs[op.Index], true
				}
			}
		}
	}
	return TxOut{}, false
}

func (c *MemClient) emit(ev Event) {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return
	}
	c.events <- ev
}

// memView resolves spent outputs for one specific block transition from a
// fixed snapshot taken at the moment the transition was computed, so it
// stays correct regardless of later mutations to the client's live UTXO
// set.
type memView struct {
	spent map[OutPoint]TxOut
}

func (v *memView) GetSpentOutput(op OutPoint) (TxOut, bool) {
	out, ok := v.spent[op]
	return out, ok
}
