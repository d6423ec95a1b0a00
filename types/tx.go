package types

import (
	"fmt"

	"github.com/tendermint/tendermint/crypto/merkle"
	"github.com/tendermint/tendermint/crypto/tmhash"
)

// Tx is an opaque transaction payload. Validity and execution semantics live
// outside the consensus core.
type Tx []byte

func (tx Tx) Hash() []byte {
	return tmhash.Sum(tx)
}

func (tx Tx) ComputeSize() int64 {
	return int64(len(tx))
}

func (tx Tx) String() string {
	return fmt.Sprintf("Tx{%X}", tx.Hash())
}

// ===== tx array =====

type Txs []Tx

// Hash returns the merkle root of the transactions.
func (txs Txs) Hash() []byte {
	txBzs := make([][]byte, len(txs))
	for i := 0; i < len(txs); i++ {
		txBzs[i] = txs[i].Hash()
	}
	return merkle.HashFromByteSlices(txBzs)
}

func (txs Txs) ComputeSize() int64 {
	var dataSize int64
	for _, tx := range txs {
		dataSize += tx.ComputeSize()
	}
	return dataSize
}

func (txs Txs) Append(other Txs) Txs {
	return append(txs, other...)
}
