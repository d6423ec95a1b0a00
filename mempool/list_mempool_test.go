package mempool

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/log"
	tmrand "github.com/tendermint/tendermint/libs/rand"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

func newTestMempool(t *testing.T, options ...ListMempoolOption) *ListMempool {
	t.Helper()
	mem := NewListMempool(cfg.TestConfig().Mempool, options...)
	mem.SetLogger(log.TestingLogger())
	return mem
}

func checkTxs(t *testing.T, mem *ListMempool, count int) types.Txs {
	t.Helper()
	txs := make(types.Txs, 0, count)
	for i := 0; i < count; i++ {
		tx := types.Tx(fmt.Sprintf("tx-%d-%s", i, tmrand.Str(8)))
		require.NoError(t, mem.CheckTx(tx, TxInfo{SenderID: UnknownPeerID}))
		txs = append(txs, tx)
	}
	return txs
}

func TestMempoolAddRemove(t *testing.T) {
	mem := newTestMempool(t)

	txs := checkTxs(t, mem, 5)
	assert.Equal(t, 5, mem.Size())
	assert.True(t, mem.TxsBytes() > 0)

	// duplicates are caught by the cache
	err := mem.CheckTx(txs[0], TxInfo{})
	assert.ErrorIs(t, err, ErrTxInCache)
	assert.Equal(t, 5, mem.Size())

	// committing the first three removes them
	mem.Lock()
	require.NoError(t, mem.Update(1, txs[:3]))
	mem.Unlock()
	assert.Equal(t, 2, mem.Size())

	// a committed tx stays in the cache and is rejected on rebroadcast
	err = mem.CheckTx(txs[0], TxInfo{})
	assert.ErrorIs(t, err, ErrTxInCache)

	mem.Flush()
	assert.Equal(t, 0, mem.Size())
	assert.EqualValues(t, 0, mem.TxsBytes())
}

func TestMempoolReapOrder(t *testing.T) {
	mem := newTestMempool(t)
	txs := checkTxs(t, mem, 10)

	// arrival order is preserved
	reaped := mem.ReapMaxTxs(-1)
	require.Len(t, reaped, 10)
	for i, tx := range reaped {
		assert.Equal(t, txs[i], tx)
	}

	assert.Len(t, mem.ReapMaxTxs(3), 3)

	// byte-bounded reap never exceeds the budget
	budget := int64(len(txs[0]) + len(txs[1]))
	reaped = mem.ReapTxs(budget)
	var total int64
	for _, tx := range reaped {
		total += int64(len(tx))
	}
	assert.LessOrEqual(t, total, budget)

	// reaping does not remove
	assert.Equal(t, 10, mem.Size())
}

func TestMempoolPreCheck(t *testing.T) {
	rejectAll := func(types.Tx) error { return fmt.Errorf("rejected") }
	mem := newTestMempool(t, WithPreCheck(rejectAll))

	err := mem.CheckTx(types.Tx("tx"), TxInfo{})
	require.Error(t, err)
	assert.True(t, IsPreCheckError(err))
	assert.Equal(t, 0, mem.Size())
}

func TestMempoolTxsAvailable(t *testing.T) {
	mem := newTestMempool(t)
	mem.EnableTxsAvailable()

	select {
	case <-mem.TxsAvailable():
		t.Fatal("should not fire on empty mempool")
	default:
	}

	checkTxs(t, mem, 1)
	select {
	case <-mem.TxsAvailable():
	default:
		t.Fatal("expected TxsAvailable to fire")
	}
}
