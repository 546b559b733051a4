package indexdb

import (
	"fmt"

	"chainidx/chaincfg/chainhash"
	"chainidx/store"
)

// tipUpdate is what setTip needs to know about the new tip; it mirrors
// chainclient.Entry's Hash/Height without requiring a live Entry (rollback
// reconstructs these from stored records, not from the producer).
type tipUpdate struct {
	Hash   chainhash.Hash
	Height uint32
}

// setTip mutates d.state according to the tip-transition rules and writes,
// into batch, h[tip.Height] = tip.Hash and R = encode(state). The caller
// commits batch; any per-block indexer writes for the same transition must
// already be recorded in the same batch before commit.
func (d *IndexDB) setTip(batch store.IndexedBatch, tip tipUpdate) error {
	next := d.state.Clone()

	switch {
	case tip.Height == d.state.Height+1:
		next.Height = tip.Height
	case tip.Height == d.state.Height:
		// idempotent re-index of the last block, permitted for crash
		// recovery.
		next.Height = tip.Height
	case tip.Height < d.state.Height:
		for k := d.state.Height; k > tip.Height; k-- {
			if err := batch.Delete(store.TagHeightMap.Key(store.U32BE(k))); err != nil {
				return &ErrStoreError{Cause: err}
			}
		}
		next.Height = tip.Height
	default:
		return &ErrInvariantViolation{Detail: fmt.Sprintf(
			"setTip: forbidden jump from height %d to %d, caller must scan instead", d.state.Height, tip.Height)}
	}

	if tip.Height < next.StartHeight {
		next.StartHeight = tip.Height
		next.StartHash = tip.Hash
	}

	if err := batch.Put(store.TagHeightMap.Key(store.U32BE(tip.Height)), tip.Hash[:]); err != nil {
		return &ErrStoreError{Cause: err}
	}
	if err := batch.Put(store.TagIndexState.Key(), encodeIndexState(next)); err != nil {
		return &ErrStoreError{Cause: err}
	}

	d.state = next
	return nil
}

// markState advances only startHeight/startHash, used after a completed
// rescan; committed as a single-row batch. height is where the rescan
// began, so the known-complete window can only grow to include it — a
// rescan that started above the existing startHeight leaves it untouched.
func (d *IndexDB) markState(hash chainhash.Hash, height uint32) error {
	if height >= d.state.StartHeight {
		return nil
	}

	next := d.state.Clone()
	next.StartHeight = height
	next.StartHash = hash

	err := d.kv.Update(func(batch store.IndexedBatch) error {
		return batch.Put(store.TagIndexState.Key(), encodeIndexState(next))
	})
	if err != nil {
		return &ErrStoreError{Cause: err}
	}
	d.state = next
	return nil
}
