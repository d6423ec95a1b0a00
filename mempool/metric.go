package mempool

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
)

func newMemMetric() *memMetric {
	return &memMetric{}
}

// memMetric reports pool occupancy over the metrics endpoint.
type memMetric struct {
	mtx      sync.RWMutex
	TxsNum   int   `json:"txs_num"`
	TxsBytes int64 `json:"txs_bytes"`

	FailedTxs    int64 `json:"failed_txs"`
	CommittedTxs int64 `json:"committed_txs"`
}

func (mm *memMetric) JSONString() string {
	mm.mtx.RLock()
	defer mm.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(mm)
	return s
}

func (mm *memMetric) MarkTxsNum(n int) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.TxsNum = n
}

func (mm *memMetric) MarkTxsBytes(n int64) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.TxsBytes = n
}

func (mm *memMetric) MarkFailedTx() {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.FailedTxs++
}

func (mm *memMetric) MarkCommittedTxs(n int64) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.CommittedTxs += n
}
