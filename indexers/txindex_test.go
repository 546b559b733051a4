package indexers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chainidx/chaincfg/chainhash"
	"chainidx/chainclient"
)

type fixedView map[chainclient.OutPoint]chainclient.TxOut

func (v fixedView) GetSpentOutput(op chainclient.OutPoint) (chainclient.TxOut, bool) {
	out, ok := v[op]
	return out, ok
}

func sampleTx(t *testing.T, label string, prev *chainclient.SimpleTx) *chainclient.SimpleTx {
	t.Helper()
	hash := chainhash.HashH([]byte(label))
	tx := &chainclient.SimpleTx{
		HashV:    hash,
		RawBytes: []byte(label),
		OutputsV: []chainclient.TxOut{
			{Value: 100, AddrHash: []byte("addr-" + label)},
		},
	}
	if prev != nil {
		tx.InputsV = []chainclient.TxIn{
			{PreviousOutPoint: chainclient.OutPoint{Hash: prev.HashV, Index: 0}},
		}
	} else {
		tx.CoinBase = true
	}
	return tx
}

func TestTxIndexerEncodeDecodeRoundTrip(t *testing.T) {
	coinbase := sampleTx(t, "coinbase", nil)
	spender := sampleTx(t, "spender", coinbase)

	view := fixedView{
		{Hash: coinbase.HashV, Index: 0}: {Value: 100, AddrHash: []byte("addr-coinbase")},
	}

	entry := chainclient.SimpleEntry{HashV: chainhash.HashH([]byte("block")), HeightV: 7, TimeV: 1234}
	idx := NewTxIndexer()
	batch := newMemBatch()

	block := &chainclient.SimpleBlock{TxsV: []chainclient.Tx{coinbase, spender}}
	require.NoError(t, idx.IndexBlock(batch, entry, block, view))
	require.Len(t, batch.data, 2)

	raw, ok := batch.data[string(append([]byte{'t'}, spender.HashV[:]...))]
	require.True(t, ok)

	rec, err := DecodeTxRecord(raw)
	require.NoError(t, err)
	require.Equal(t, entry.HeightV, rec.BlockHeight)
	require.Equal(t, entry.TimeV, rec.BlockTime)
	require.False(t, rec.CoinBase)
	require.Equal(t, []byte("addr-spender"), rec.OutputAddrs[0])
	require.Equal(t, int64(100), rec.OutputValue[0])
	require.Len(t, rec.InputOutpoints, 1)
	require.Equal(t, coinbase.HashV, rec.InputOutpoints[0].Hash)
	require.Equal(t, []byte("addr-coinbase"), rec.InputAddrs[0])
	require.Equal(t, spender.RawBytes, rec.Raw)
}

func TestTxIndexerRoundTripIsNoOp(t *testing.T) {
	tx := sampleTx(t, "solo", nil)
	entry := chainclient.SimpleEntry{HashV: chainhash.HashH([]byte("block2")), HeightV: 1}
	block := &chainclient.SimpleBlock{TxsV: []chainclient.Tx{tx}}

	idx := NewTxIndexer()
	batch := newMemBatch()
	require.NoError(t, idx.IndexBlock(batch, entry, block, chainclient.EmptyView{}))
	require.Len(t, batch.data, 1)

	require.NoError(t, idx.UnindexBlock(batch, entry, block, chainclient.EmptyView{}))
	require.Empty(t, batch.data)
}
