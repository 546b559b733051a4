package indexers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chainidx/chaincfg/chainhash"
	"chainidx/chainclient"
	"chainidx/store"
)

func TestAddrIndexerIndexBlockWritesExpectedEdges(t *testing.T) {
	coinbase := sampleTx(t, "cb", nil)
	spender := sampleTx(t, "sp", coinbase)

	view := fixedView{
		{Hash: coinbase.HashV, Index: 0}: {Value: 100, AddrHash: []byte("addr-cb")},
	}

	entry := chainclient.SimpleEntry{HashV: chainhash.HashH([]byte("blk")), HeightV: 3}
	block := &chainclient.SimpleBlock{TxsV: []chainclient.Tx{coinbase, spender}}

	idx := NewAddrIndexer()
	batch := newMemBatch()
	require.NoError(t, idx.IndexBlock(batch, entry, block, view))

	// coinbase output creates a T edge; its C edge is put then immediately
	// deleted again within the same batch since spender spends it.
	_, hasT := batch.data[string(addrTxKey([]byte("addr-cb"), coinbase.HashV[:]))]
	require.True(t, hasT)
	_, hasC := batch.data[string(addrCoinKey([]byte("addr-cb"), coinbase.HashV[:], 0))]
	require.False(t, hasC)

	// spender's output creates its own T/C edges.
	_, hasSpT := batch.data[string(addrTxKey([]byte("addr-sp"), spender.HashV[:]))]
	require.True(t, hasSpT)
	_, hasSpC := batch.data[string(addrCoinKey([]byte("addr-sp"), spender.HashV[:], 0))]
	require.True(t, hasSpC)

	// spending the coinbase output deletes its coin edge and also records a
	// T edge from the spender tx to the coinbase's address.
	_, spentAddrT := batch.data[string(addrTxKey([]byte("addr-cb"), spender.HashV[:]))]
	require.True(t, spentAddrT)
}

func TestAddrIndexerRoundTripIsNoOp(t *testing.T) {
	coinbase := sampleTx(t, "cb2", nil)
	spender := sampleTx(t, "sp2", coinbase)
	view := fixedView{
		{Hash: coinbase.HashV, Index: 0}: {Value: 100, AddrHash: []byte("addr-cb2")},
	}
	entry := chainclient.SimpleEntry{HashV: chainhash.HashH([]byte("blk2")), HeightV: 4}
	block := &chainclient.SimpleBlock{TxsV: []chainclient.Tx{coinbase, spender}}

	idx := NewAddrIndexer()
	batch := newMemBatch()
	require.NoError(t, idx.IndexBlock(batch, entry, block, view))
	require.NotEmpty(t, batch.data)

	require.NoError(t, idx.UnindexBlock(batch, entry, block, view))
	require.Empty(t, batch.data)
}

func TestAddrIndexerToleratesEmptyViewDuringCatchUp(t *testing.T) {
	coinbase := sampleTx(t, "cb3", nil)
	spender := sampleTx(t, "sp3", coinbase)
	entry := chainclient.SimpleEntry{HashV: chainhash.HashH([]byte("blk3")), HeightV: 5}
	block := &chainclient.SimpleBlock{TxsV: []chainclient.Tx{coinbase, spender}}

	idx := NewAddrIndexer()
	batch := newMemBatch()
	require.NoError(t, idx.IndexBlock(batch, entry, block, chainclient.EmptyView{}))

	// Output-side edges are still recorded even without a view.
	_, hasSpT := batch.data[string(addrTxKey([]byte("addr-sp3"), spender.HashV[:]))]
	require.True(t, hasSpT)
	// Input-side edges are skipped since the view can't resolve the spent
	// output: no T edge links the spender to the coinbase's address.
	_, hasCbT := batch.data[string(addrTxKey([]byte("addr-cb3"), spender.HashV[:]))]
	require.False(t, hasCbT)
}

func TestAddrIndexerPrefixesCoverBothTags(t *testing.T) {
	idx := NewAddrIndexer()
	prefixes := idx.Prefixes()
	require.Contains(t, prefixes, store.TagAddrTx.Prefix())
	require.Contains(t, prefixes, store.TagAddrCoin.Prefix())
}
