package rpc

import (
	ctypes "github.com/tendermint/tendermint/rpc/core/types"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	meml "github.com/aptos-labs/aptos-core-sub050/mempool"
	"github.com/aptos-labs/aptos-core-sub050/types"
)

// BroadcastTxAsync submits a transaction to the local mempool and returns
// without waiting for consensus.
func BroadcastTxAsync(ctx *rpctypes.Context, tx types.Tx) (*ctypes.ResultBroadcastTx, error) {
	if err := env.Mempool.CheckTx(tx, meml.TxInfo{}); err != nil {
		return nil, err
	}
	return &ctypes.ResultBroadcastTx{Hash: tx.Hash()}, nil
}

type ResultUnconfirmedTxs struct {
	Count      int   `json:"n_txs"`
	TotalBytes int64 `json:"total_bytes"`
}

func NumUnconfirmedTxs(ctx *rpctypes.Context) (*ResultUnconfirmedTxs, error) {
	return &ResultUnconfirmedTxs{
		Count:      env.Mempool.Size(),
		TotalBytes: env.Mempool.TxsBytes(),
	}, nil
}
