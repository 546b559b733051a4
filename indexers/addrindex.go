package indexers

import (
	"errors"

	"chainidx/chainclient"
	"chainidx/store"
)

// ErrMissingSpentOutput is returned by AddrIndexer.IndexBlock when a
// non-coinbase input's originating output cannot be resolved through a
// view that isn't chainclient.EmptyView{}: the producer promised a usable
// view and failed to honor it. It is a plain sentinel (match it with
// errors.Is); IndexDB returns it as is, not wrapped in
// indexdb.ErrInvariantViolation. EmptyView,
// which catch-up scans are permitted to pass, is tolerated instead — the
// affected coin edge is left to a later forward pass or rescan.
var ErrMissingSpentOutput = errors.New("indexers: view has no output for spent outpoint")

// AddrIndexer maps address hashes to the set of transactions that
// reference them (AddrTxEdge, tag T) and to the set of outpoints they
// currently own (AddrCoinEdge, tag C). It owns both keyspaces because the
// spec names a single AddrIndexer responsible for both edge kinds.
type AddrIndexer struct{}

// NewAddrIndexer constructs an AddrIndexer.
func NewAddrIndexer() *AddrIndexer { return &AddrIndexer{} }

func (idx *AddrIndexer) Name() string { return "address index" }

func (idx *AddrIndexer) Prefixes() [][]byte {
	return [][]byte{store.TagAddrTx.Prefix(), store.TagAddrCoin.Prefix()}
}

func addrTxKey(addr []byte, txHash []byte) []byte {
	return store.TagAddrTx.Key(addr, txHash)
}

func addrCoinKey(addr []byte, txHash []byte, vout uint32) []byte {
	return store.TagAddrCoin.Key(addr, txHash, store.U32BE(vout))
}

// addrHashes returns the set of address hashes tx touches: every output's
// resolved address plus, for non-coinbase transactions, every input's
// originating output's resolved address (via view). Order is stable
// (outputs then inputs, each in their original order) but duplicates are
// removed so callers get a true set.
func addrHashes(tx chainclient.Tx, view chainclient.View) ([]string, map[string][]byte, error) {
	seen := make(map[string][]byte)
	order := make([]string, 0, 4)
	add := func(a []byte) {
		if len(a) == 0 {
			return
		}
		k := string(a)
		if _, ok := seen[k]; !ok {
			seen[k] = a
			order = append(order, k)
		}
	}

	for _, out := range tx.Outputs() {
		add(out.AddrHash)
	}
	if !tx.IsCoinBase() {
		_, isEmptyView := view.(chainclient.EmptyView)
		for _, in := range tx.Inputs() {
			coin, ok := view.GetSpentOutput(in.PreviousOutPoint)
			if !ok {
				if isEmptyView {
					continue
				}
				return nil, nil, ErrMissingSpentOutput
			}
			add(coin.AddrHash)
		}
	}
	return order, seen, nil
}

func (idx *AddrIndexer) IndexBlock(batch Batch, entry chainclient.Entry, block chainclient.Block, view chainclient.View) error {
	_, isEmptyView := view.(chainclient.EmptyView)

	for _, tx := range block.Txs() {
		hash := tx.Hash()

		order, addrs, err := addrHashes(tx, view)
		if err != nil {
			return err
		}
		for _, k := range order {
			if err := batch.Put(addrTxKey(addrs[k], hash[:]), nil); err != nil {
				return err
			}
		}

		if !tx.IsCoinBase() {
			for _, in := range tx.Inputs() {
				coin, ok := view.GetSpentOutput(in.PreviousOutPoint)
				if !ok {
					if isEmptyView {
						continue
					}
					return ErrMissingSpentOutput
				}
				if len(coin.AddrHash) == 0 {
					continue
				}
				ph := in.PreviousOutPoint.Hash
				key := addrCoinKey(coin.AddrHash, ph[:], in.PreviousOutPoint.Index)
				if err := batch.Delete(key); err != nil {
					return err
				}
			}
		}

		for j, out := range tx.Outputs() {
			if len(out.AddrHash) == 0 {
				continue
			}
			key := addrCoinKey(out.AddrHash, hash[:], uint32(j))
			if err := batch.Put(key, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (idx *AddrIndexer) UnindexBlock(batch Batch, entry chainclient.Entry, block chainclient.Block, view chainclient.View) error {
	_, isEmptyView := view.(chainclient.EmptyView)

	// Undo in reverse tx order: a transaction can spend an output created
	// earlier in the same block, so indexBlock's put (by the earlier tx)
	// and delete (by the later tx) of the same coin edge must be inverted
	// in reverse to land on the same final key state indexBlock started
	// from, rather than whichever inverse op happens to run last.
	txs := block.Txs()
	for idxPos := len(txs) - 1; idxPos >= 0; idxPos-- {
		tx := txs[idxPos]
		hash := tx.Hash()

		for j, out := range tx.Outputs() {
			if len(out.AddrHash) == 0 {
				continue
			}
			key := addrCoinKey(out.AddrHash, hash[:], uint32(j))
			if err := batch.Delete(key); err != nil {
				return err
			}
		}

		if !tx.IsCoinBase() {
			for _, in := range tx.Inputs() {
				coin, ok := view.GetSpentOutput(in.PreviousOutPoint)
				if !ok {
					if isEmptyView {
						continue
					}
					return ErrMissingSpentOutput
				}
				if len(coin.AddrHash) == 0 {
					continue
				}
				ph := in.PreviousOutPoint.Hash
				key := addrCoinKey(coin.AddrHash, ph[:], in.PreviousOutPoint.Index)
				if err := batch.Put(key, nil); err != nil {
					return err
				}
			}
		}

		order, addrs, err := addrHashes(tx, view)
		if err != nil {
			return err
		}
		for _, k := range order {
			if err := batch.Delete(addrTxKey(addrs[k], hash[:])); err != nil {
				return err
			}
		}
	}
	return nil
}
