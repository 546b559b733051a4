package indexdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chainidx/chaincfg/chainhash"
	"chainidx/chainclient"
	"chainidx/indexers"
	"chainidx/store"
)

func newMemKV(t *testing.T) store.KeyValueStore {
	t.Helper()
	kv, err := store.OpenPebble(store.PebbleConfig{Memory: true})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func coinbaseTx(t *testing.T, label string) *chainclient.SimpleTx {
	t.Helper()
	return &chainclient.SimpleTx{
		HashV:    chainhash.HashH([]byte(label)),
		CoinBase: true,
		RawBytes: []byte(label),
		OutputsV: []chainclient.TxOut{{Value: 50, AddrHash: []byte("addr-" + label)}},
	}
}

func spendTx(t *testing.T, label string, spent *chainclient.SimpleTx) *chainclient.SimpleTx {
	t.Helper()
	return &chainclient.SimpleTx{
		HashV:    chainhash.HashH([]byte(label)),
		RawBytes: []byte(label),
		InputsV:  []chainclient.TxIn{{PreviousOutPoint: chainclient.OutPoint{Hash: spent.HashV, Index: 0}}},
		OutputsV: []chainclient.TxOut{{Value: 49, AddrHash: []byte("addr-" + label)}},
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond)
}

func TestOpenBootstrapsFromProducer(t *testing.T) {
	kv := newMemKV(t)
	client := chainclient.NewMemClient(chainhash.HashH([]byte("genesis")), 1000)
	client.Connect(chainhash.HashH([]byte("h1")), 1001, nil)

	db, err := Open(kv, client, []indexers.Indexer{indexers.NewTxIndexer(), indexers.NewAddrIndexer()}, 1)
	require.NoError(t, err)
	defer db.Close()

	st := db.State()
	require.Equal(t, uint32(1), st.Height)

	var h0, h1 chainhash.Hash
	require.NoError(t, kv.Get(store.TagHeightMap.Key(store.U32BE(0)), func(v []byte) error { copy(h0[:], v); return nil }))
	require.NoError(t, kv.Get(store.TagHeightMap.Key(store.U32BE(1)), func(v []byte) error { copy(h1[:], v); return nil }))
	require.Equal(t, chainhash.HashH([]byte("genesis")), h0)
	require.Equal(t, chainhash.HashH([]byte("h1")), h1)
}

func TestConnectIndexesNewBlock(t *testing.T) {
	kv := newMemKV(t)
	client := chainclient.NewMemClient(chainhash.HashH([]byte("genesis")), 1000)

	db, err := Open(kv, client, []indexers.Indexer{indexers.NewTxIndexer(), indexers.NewAddrIndexer()}, 1)
	require.NoError(t, err)
	defer db.Close()

	cb := coinbaseTx(t, "cb")
	client.Connect(chainhash.HashH([]byte("blk1")), 1001, []chainclient.Tx{cb})

	eventually(t, func() bool { return db.State().Height == 1 })

	has, err := kv.Has(store.TagTxRecord.Key(cb.HashV[:]))
	require.NoError(t, err)
	require.True(t, has)

	has, err = kv.Has(store.TagAddrCoin.Key([]byte("addr-cb"), cb.HashV[:], store.U32BE(0)))
	require.NoError(t, err)
	require.True(t, has)
}

func TestReorgRemovesOldAddsNew(t *testing.T) {
	kv := newMemKV(t)
	client := chainclient.NewMemClient(chainhash.HashH([]byte("genesis")), 1000)

	db, err := Open(kv, client, []indexers.Indexer{indexers.NewTxIndexer(), indexers.NewAddrIndexer()}, 1)
	require.NoError(t, err)
	defer db.Close()

	cbA := coinbaseTx(t, "cbA")
	client.Connect(chainhash.HashH([]byte("blkA")), 1001, []chainclient.Tx{cbA})
	eventually(t, func() bool { return db.State().Height == 1 })

	client.Disconnect()
	eventually(t, func() bool { return db.State().Height == 0 })

	hasA, err := kv.Has(store.TagTxRecord.Key(cbA.HashV[:]))
	require.NoError(t, err)
	require.False(t, hasA, "disconnected block's tx record must be gone")

	cbB := coinbaseTx(t, "cbB")
	client.Connect(chainhash.HashH([]byte("blkB")), 1002, []chainclient.Tx{cbB})
	eventually(t, func() bool { return db.State().Height == 1 })

	hasB, err := kv.Has(store.TagTxRecord.Key(cbB.HashV[:]))
	require.NoError(t, err)
	require.True(t, hasB)

	var h1 chainhash.Hash
	require.NoError(t, kv.Get(store.TagHeightMap.Key(store.U32BE(1)), func(v []byte) error { copy(h1[:], v); return nil }))
	require.Equal(t, chainhash.HashH([]byte("blkB")), h1)
}

func TestGapForcesScan(t *testing.T) {
	kv := newMemKV(t)
	client := chainclient.NewMemClient(chainhash.HashH([]byte("genesis")), 1000)

	// Seed the heightmap for genesis directly, the way bootstrap would, and
	// start the core at height 0 without handing it the later blocks below.
	require.NoError(t, kv.Update(func(batch store.IndexedBatch) error {
		h0 := chainhash.HashH([]byte("genesis"))
		return batch.Put(store.TagHeightMap.Key(store.U32BE(0)), h0[:])
	}))
	d := &IndexDB{
		kv:      kv,
		client:  client,
		plugins: []indexers.Indexer{indexers.NewTxIndexer(), indexers.NewAddrIndexer()},
		network: 1,
		state:   IndexState{Height: 0},
	}

	// The producer races ahead by three blocks while the core isn't
	// watching (no Start/event plumbing involved here), so the next event
	// it observes arrives far past its own tip, a gap.
	cb1 := coinbaseTx(t, "g1")
	cb2 := coinbaseTx(t, "g2")
	cb3 := coinbaseTx(t, "g3")
	client.Connect(chainhash.HashH([]byte("g1")), 1001, []chainclient.Tx{cb1})
	client.Connect(chainhash.HashH([]byte("g2")), 1002, []chainclient.Tx{cb2})
	entry3 := client.Connect(chainhash.HashH([]byte("g3")), 1003, []chainclient.Tx{cb3})
	block3, err := client.GetBlock(entry3.HashV)
	require.NoError(t, err)

	require.NoError(t, d.handleConnect(entry3, block3, client))

	require.Equal(t, uint32(3), d.state.Height)
	for _, cb := range []*chainclient.SimpleTx{cb1, cb2, cb3} {
		has, err := kv.Has(store.TagTxRecord.Key(cb.HashV[:]))
		require.NoError(t, err)
		require.True(t, has)
	}
}

func TestScanResolvesSpendFromHistory(t *testing.T) {
	kv := newMemKV(t)
	client := chainclient.NewMemClient(chainhash.HashH([]byte("genesis")), 1000)

	require.NoError(t, kv.Update(func(batch store.IndexedBatch) error {
		h0 := chainhash.HashH([]byte("genesis"))
		return batch.Put(store.TagHeightMap.Key(store.U32BE(0)), h0[:])
	}))
	d := &IndexDB{
		kv:      kv,
		client:  client,
		plugins: []indexers.Indexer{indexers.NewTxIndexer(), indexers.NewAddrIndexer()},
		network: 1,
		state:   IndexState{Height: 0},
	}

	// hist1's coinbase output is spent by hist2's tx. By the time scan replays
	// both blocks from height 0, the live MemClient UTXO set has already
	// removed that output (hist2 was connected for real when the chain was
	// built), so resolving it during the scan depends on GetSpentOutput's
	// historic-block fallback rather than the live UTXO set.
	cb1 := coinbaseTx(t, "hist-cb")
	client.Connect(chainhash.HashH([]byte("hist1")), 1001, []chainclient.Tx{cb1})
	spender := spendTx(t, "hist-sp", cb1)
	entry2 := client.Connect(chainhash.HashH([]byte("hist2")), 1002, []chainclient.Tx{spender})
	block2, err := client.GetBlock(entry2.HashV)
	require.NoError(t, err)

	require.NoError(t, d.handleConnect(entry2, block2, client))

	require.Equal(t, uint32(2), d.state.Height)

	has, err := kv.Has(store.TagTxRecord.Key(spender.HashV[:]))
	require.NoError(t, err)
	require.True(t, has)

	// The spend must have resolved cb1's address, recording a tx edge from
	// the spender to the coinbase's address and clearing its coin edge.
	hasSpentTxEdge, err := kv.Has(store.TagAddrTx.Key([]byte("addr-hist-cb"), spender.HashV[:]))
	require.NoError(t, err)
	require.True(t, hasSpentTxEdge)

	hasSpentCoin, err := kv.Has(store.TagAddrCoin.Key([]byte("addr-hist-cb"), cb1.HashV[:], store.U32BE(0)))
	require.NoError(t, err)
	require.False(t, hasSpentCoin)
}

func TestHandleDisconnectAtGenesisIsFatal(t *testing.T) {
	kv := newMemKV(t)
	d := &IndexDB{kv: kv, state: IndexState{Height: 0}}

	genesisEntry := chainclient.SimpleEntry{HashV: chainhash.HashH([]byte("genesis")), HeightV: 0}
	err := d.handleDisconnect(genesisEntry, &chainclient.SimpleBlock{}, chainclient.EmptyView{})
	require.Error(t, err)
	var badDisconnect *ErrBadDisconnect
	require.ErrorAs(t, err, &badDisconnect)
	require.Equal(t, uint32(0), d.state.Height, "tip must not advance on a fatal disconnect")
}

func TestSetTipRejectsForbiddenJump(t *testing.T) {
	kv := newMemKV(t)
	d := &IndexDB{kv: kv, state: IndexState{Height: 1}}

	batch := kv.NewIndexedBatch()
	defer batch.Reset()
	err := d.setTip(batch, tipUpdate{Hash: chainhash.HashH([]byte("far")), Height: 5})
	require.Error(t, err)
	var invariant *ErrInvariantViolation
	require.ErrorAs(t, err, &invariant)
}

func TestSetTipIdempotentReapply(t *testing.T) {
	kv := newMemKV(t)
	d := &IndexDB{kv: kv, state: IndexState{Height: 2, StartHeight: 0}}

	hash := chainhash.HashH([]byte("tip"))
	batch := kv.NewIndexedBatch()
	require.NoError(t, d.setTip(batch, tipUpdate{Hash: hash, Height: 2}))
	require.NoError(t, batch.Write())
	require.Equal(t, uint32(2), d.state.Height)
}
