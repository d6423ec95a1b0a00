package mempool

import (
	"github.com/tendermint/tendermint/p2p"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

// Mempool holds transactions waiting to be packed into a proposal. Ordering
// is arrival order. The consensus proposer reaps from it and Update removes
// what a committed block carried.
type Mempool interface {
	// CheckTx validates a new transaction and adds it to the pool.
	CheckTx(tx types.Tx, txInfo TxInfo) error

	// ReapTxs returns transactions, in order, up to maxBytes total size.
	// A negative maxBytes means no limit.
	ReapTxs(maxBytes int64) types.Txs

	// ReapMaxTxs returns up to max transactions in order. A negative max
	// returns everything.
	ReapMaxTxs(max int) types.Txs

	// Lock locks the mempool. Callers must hold it across Update so reaping
	// cannot interleave with commit-driven removal.
	Lock()

	// Unlock unlocks the mempool.
	Unlock()

	// Update removes the committed transactions. Called once per committed
	// block, with the round it was committed at; the caller handles locking.
	Update(round types.Round, txs types.Txs) error

	// Flush removes all transactions and resets the cache.
	Flush()

	// Size returns the number of pooled transactions.
	Size() int

	// TxsBytes returns the total size of pooled transactions.
	TxsBytes() int64
}

//--------------------------------------------------------------------------------

// PreCheckFunc is an optional filter run before a transaction is admitted.
type PreCheckFunc func(types.Tx) error

// TxInfo are parameters that get passed when attempting to add a tx to the
// mempool.
type TxInfo struct {
	// SenderID is the internal peer ID used in the mempool to identify the
	// sender, storing 2 bytes with each tx instead of 20 bytes for the p2p.ID.
	SenderID uint16
	// SenderP2PID is the actual p2p.ID of the sender, used e.g. for logging.
	SenderP2PID p2p.ID
}
