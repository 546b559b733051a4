package indexers

import "chainidx/chainclient"

// reconstructedView answers GetSpentOutput purely from the address hashes
// stored alongside a rolled-back transaction's inputs; it carries no
// script or value data because rollback never needs more than the address
// hash to reverse a T/C edge.
type reconstructedView struct {
	byOutpoint map[chainclient.OutPoint]chainclient.TxOut
}

func (v *reconstructedView) GetSpentOutput(op chainclient.OutPoint) (chainclient.TxOut, bool) {
	out, ok := v.byOutpoint[op]
	return out, ok
}

// ReconstructBlock rebuilds a Block and a View sufficient to call
// UnindexBlock for every plugin, entirely from previously-stored
// TxRecords — used by IndexDB's rollback when the original block is no
// longer available from the chain producer (it was reorged out from under
// a catch-up scan). hashes and recs must be parallel slices in original
// in-block order.
func ReconstructBlock(hashes [][32]byte, recs []TxRecord) (chainclient.Block, chainclient.View) {
	view := &reconstructedView{byOutpoint: make(map[chainclient.OutPoint]chainclient.TxOut)}
	txs := make([]chainclient.Tx, len(recs))

	for i, rec := range recs {
		outs := make([]chainclient.TxOut, len(rec.OutputAddrs))
		for j := range outs {
			outs[j] = chainclient.TxOut{Value: rec.OutputValue[j], AddrHash: rec.OutputAddrs[j]}
		}

		ins := make([]chainclient.TxIn, len(rec.InputOutpoints))
		for j, op := range rec.InputOutpoints {
			ins[j] = chainclient.TxIn{PreviousOutPoint: op}
			// Every input resolves, with an empty address hash where none
			// was stored, so UnindexBlock skips exactly the edges IndexBlock
			// skipped instead of reporting the input as unresolved.
			view.byOutpoint[op] = chainclient.TxOut{AddrHash: rec.InputAddrs[j]}
		}

		txs[i] = &chainclient.SimpleTx{
			HashV:    hashes[i],
			CoinBase: rec.CoinBase,
			InputsV:  ins,
			OutputsV: outs,
			RawBytes: rec.Raw,
		}
	}

	return &chainclient.SimpleBlock{TxsV: txs}, view
}
