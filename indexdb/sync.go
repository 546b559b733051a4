package indexdb

import (
	"errors"
	"fmt"
	"sort"

	"chainidx/chaincfg/chainhash"
	"chainidx/chainclient"
	"chainidx/indexers"
	"chainidx/store"
)

// syncState establishes d.state from whatever the store already holds,
// bootstrapping from the producer's current chain when nothing is
// persisted yet, or rebuilding the heightmap when a persisted cursor
// exists but the heightmap doesn't cover it (a store that crashed between
// writing R and the heightmap, or was upgraded from an older layout).
func (d *IndexDB) syncState() error {
	var persisted IndexState
	var found bool

	err := d.kv.Get(store.TagIndexState.Key(), func(v []byte) error {
		s, derr := decodeIndexState(v)
		if derr != nil {
			return derr
		}
		persisted = s
		found = true
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
		return &ErrStoreError{Cause: err}
	}

	if !found {
		return d.bootstrap()
	}

	has, err := d.kv.Has(store.TagHeightMap.Key(store.U32BE(0)))
	if err != nil {
		return &ErrStoreError{Cause: err}
	}
	if !has {
		if err := d.migrateState(persisted); err != nil {
			return err
		}
	}

	d.state = persisted
	return nil
}

// bootstrap populates h[0..tip] and an initial R from the producer's
// current view, used the first time this store is opened.
func (d *IndexDB) bootstrap() error {
	tip, err := d.client.GetTip()
	if err != nil {
		return &ErrClientError{Cause: err}
	}

	hashes, err := d.client.GetHashes(0, tip.Height())
	if err != nil {
		return &ErrClientError{Cause: err}
	}

	st := IndexState{StartHeight: tip.Height(), StartHash: tip.Hash(), Height: tip.Height()}

	err = d.kv.Update(func(batch store.IndexedBatch) error {
		for i, h := range hashes {
			if err := batch.Put(store.TagHeightMap.Key(store.U32BE(uint32(i))), h[:]); err != nil {
				return err
			}
		}
		return batch.Put(store.TagIndexState.Key(), encodeIndexState(st))
	})
	if err != nil {
		return &ErrStoreError{Cause: err}
	}

	d.state = st
	log.Infof("bootstrapped from empty store at height %d", st.Height)
	return nil
}

// migrateState rebuilds h[0..persisted.Height] from the producer without
// touching R, used when a persisted cursor survived but the heightmap
// didn't.
func (d *IndexDB) migrateState(persisted IndexState) error {
	hashes, err := d.client.GetHashes(0, persisted.Height)
	if err != nil {
		return &ErrClientError{Cause: err}
	}
	err = d.kv.Update(func(batch store.IndexedBatch) error {
		for i, h := range hashes {
			if err := batch.Put(store.TagHeightMap.Key(store.U32BE(uint32(i))), h[:]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &ErrStoreError{Cause: err}
	}
	log.Infof("migrated heightmap up to height %d from persisted cursor", persisted.Height)
	return nil
}

// syncChain walks backward from the persisted tip using the local
// heightmap until it finds a height the producer still recognizes (the
// common ancestor after a reorg that happened while this store was
// closed), then scans forward from there.
func (d *IndexDB) syncChain() error {
	height := d.state.Height
	for height > 0 {
		hash, err := d.heightMapHash(height)
		if err != nil {
			return err
		}
		if _, ok := d.client.GetEntry(hash); ok {
			break
		}
		height--
	}

	hash, err := d.heightMapHash(height)
	if err != nil {
		return err
	}
	if _, ok := d.client.GetEntry(hash); !ok {
		return &ErrInvariantViolation{Detail: "syncChain: producer does not recognize local genesis hash"}
	}

	return d.scan(height)
}

// scan rolls back every block above height, then indexes forward from
// height using the producer's current canonical chain until it runs out
// of blocks.
func (d *IndexDB) scan(height uint32) error {
	if err := d.rollback(height); err != nil {
		return err
	}

	entry, ok := d.client.GetEntryByHeight(height)
	if !ok {
		return &ErrInvariantViolation{Detail: fmt.Sprintf("scan: producer no longer has height %d", height)}
	}

	view := d.scanView()
	for {
		next, ok := d.client.GetNext(entry)
		if !ok {
			break
		}
		block, err := d.client.GetBlock(next.Hash())
		if err != nil {
			return &ErrClientError{Cause: err}
		}
		if err := d.indexAndCommit(next, block, view); err != nil {
			return err
		}
		entry = next
	}

	startHash, err := d.heightMapHash(height)
	if err != nil {
		return err
	}
	return d.markState(startHash, height)
}

// rollback undoes every committed block above height, one block per
// commit, reconstructing each undone block purely from its already-stored
// TxIndexer records so it never has to ask the producer for a block it may
// no longer have (the producer reorged it out, which is exactly why
// rollback runs). A crash mid-rollback leaves a prefix of the intended
// deletions plus an R consistent with the last block actually undone.
func (d *IndexDB) rollback(height uint32) error {
	for d.state.Height > height {
		h := d.state.Height
		hash, err := d.heightMapHash(h)
		if err != nil {
			return err
		}

		recs, hashes, err := d.loadTxRecordsForHeight(h)
		if err != nil {
			return err
		}

		var blockTime uint32
		if len(recs) > 0 {
			blockTime = recs[0].BlockTime
		}
		entry := chainclient.SimpleEntry{HashV: hash, HeightV: h, TimeV: blockTime}
		block, view := indexers.ReconstructBlock(hashes, recs)

		var prevHash chainhash.Hash
		if h > 0 {
			prevHash, err = d.heightMapHash(h - 1)
			if err != nil {
				return err
			}
		}

		batch := d.kv.NewIndexedBatch()
		for i := len(d.plugins) - 1; i >= 0; i-- {
			p := d.plugins[i]
			if err := p.UnindexBlock(&restrictedBatch{batch: batch, prefixes: p.Prefixes()}, entry, block, view); err != nil {
				batch.Reset()
				return err
			}
		}
		if err := d.setTip(batch, tipUpdate{Hash: prevHash, Height: h - 1}); err != nil {
			batch.Reset()
			return err
		}
		if err := batch.Write(); err != nil {
			return &ErrStoreError{Cause: err}
		}

		log.Debugf("rolled back height %d", h)
	}
	return nil
}

// loadTxRecordsForHeight returns every TxRecord stored for height, ordered
// by their original in-block tx index, along with their tx hashes.
// TxRecords are keyed by tx hash rather than height, so this is a full scan
// of the t[] keyspace filtered by BlockHeight; acceptable for the
// relatively rare case of an interrupted-store reorg rollback, and the only
// option available without a second height-indexed keyspace the spec
// doesn't ask for.
func (d *IndexDB) loadTxRecordsForHeight(height uint32) ([]indexers.TxRecord, [][32]byte, error) {
	it, err := d.kv.NewIterator(store.TagTxRecord.Prefix(), true)
	if err != nil {
		return nil, nil, &ErrStoreError{Cause: err}
	}
	defer it.Close()

	type found struct {
		hash [32]byte
		rec  indexers.TxRecord
	}
	var matches []found

	for ok := it.First(); ok; ok = it.Next() {
		val, err := it.Value()
		if err != nil {
			return nil, nil, &ErrStoreError{Cause: err}
		}
		rec, err := indexers.DecodeTxRecord(val)
		if err != nil {
			return nil, nil, &ErrStoreError{Cause: err}
		}
		if rec.BlockHeight != height {
			continue
		}
		key := it.Key()
		var hash [32]byte
		copy(hash[:], key[1:])
		matches = append(matches, found{hash: hash, rec: rec})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].rec.TxIndex < matches[j].rec.TxIndex })

	recs := make([]indexers.TxRecord, len(matches))
	hashes := make([][32]byte, len(matches))
	for i, m := range matches {
		recs[i] = m.rec
		hashes[i] = m.hash
	}
	return recs, hashes, nil
}
