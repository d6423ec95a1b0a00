package mempool

import (
	"container/list"
	"crypto/sha256"
	"fmt"
	"sync"
	"sync/atomic"

	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/clist"
	"github.com/tendermint/tendermint/libs/log"
	tmmath "github.com/tendermint/tendermint/libs/math"
	tmsync "github.com/tendermint/tendermint/libs/sync"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

// TxKeySize is the size of the transaction key index
const TxKeySize = sha256.Size

// TxKey is the fixed length array hash used as the key in maps.
func TxKey(tx types.Tx) [TxKeySize]byte {
	return sha256.Sum256(tx)
}

// ListMempool is an ordered in-memory pool of transactions stored in a
// concurrent linked-list. Transactions are gossiped to peers and reaped in
// FIFO order when this node proposes.
type ListMempool struct {
	// Atomic integers
	txsBytes int64 // total size of mempool, in bytes

	config *cfg.MempoolConfig

	// Exclusive mutex for Update method to prevent concurrent execution of
	// CheckTx or ReapMaxBytes methods.
	updateMtx tmsync.RWMutex
	preCheck  PreCheckFunc

	txs    *clist.CList // concurrent linked-list of good txs
	txsMap sync.Map     // TxKey -> *clist.CElement

	// Keep a cache of already-seen txs.
	cache txCache

	// notify the consensus proposer that there is something to pack
	txsAvailable         chan struct{}
	notifiedTxsAvailable bool

	logger log.Logger
	metric *memMetric
}

var _ Mempool = (*ListMempool)(nil)

// ListMempoolOption sets an optional parameter on the mempool.
type ListMempoolOption func(*ListMempool)

func NewListMempool(config *cfg.MempoolConfig, options ...ListMempoolOption) *ListMempool {
	mem := &ListMempool{
		config: config,
		txs:    clist.New(),
		logger: log.NewNopLogger(),
		metric: newMemMetric(),
	}
	if config.CacheSize > 0 {
		mem.cache = newMapTxCache(config.CacheSize)
	} else {
		mem.cache = nopTxCache{}
	}
	for _, option := range options {
		option(mem)
	}
	return mem
}

// WithPreCheck sets a filter for the mempool to reject a tx if f(tx)
// returns an error. This is ran before CheckTx.
func WithPreCheck(f PreCheckFunc) ListMempoolOption {
	return func(mem *ListMempool) { mem.preCheck = f }
}

func (mem *ListMempool) SetLogger(l log.Logger) {
	mem.logger = l
}

// Metric exposes the mempool's metric item for registration.
func (mem *ListMempool) Metric() *memMetric {
	return mem.metric
}

// EnableTxsAvailable initializes the TxsAvailable channel. It must be called
// before the mempool is started.
func (mem *ListMempool) EnableTxsAvailable() {
	mem.txsAvailable = make(chan struct{}, 1)
}

// TxsAvailable returns a channel which fires once for every height, once
// there are transactions in the mempool.
func (mem *ListMempool) TxsAvailable() <-chan struct{} {
	return mem.txsAvailable
}

// Lock implements Mempool
func (mem *ListMempool) Lock() {
	mem.updateMtx.Lock()
}

// Unlock implements Mempool
func (mem *ListMempool) Unlock() {
	mem.updateMtx.Unlock()
}

// Size implements Mempool
func (mem *ListMempool) Size() int {
	return mem.txs.Len()
}

// TxsBytes implements Mempool
func (mem *ListMempool) TxsBytes() int64 {
	return atomic.LoadInt64(&mem.txsBytes)
}

// Flush implements Mempool
func (mem *ListMempool) Flush() {
	mem.updateMtx.Lock()
	defer mem.updateMtx.Unlock()

	_ = atomic.SwapInt64(&mem.txsBytes, 0)
	mem.cache.Reset()

	for e := mem.txs.Front(); e != nil; e = e.Next() {
		mem.txs.Remove(e)
		e.DetachPrev()
	}
	mem.txsMap.Range(func(key, _ interface{}) bool {
		mem.txsMap.Delete(key)
		return true
	})
	mem.updateMetric()
}

// TxsFront returns the first transaction in the ordered list for peer
// goroutines to call .NextWait() on.
func (mem *ListMempool) TxsFront() *clist.CElement {
	return mem.txs.Front()
}

// TxsWaitChan returns a channel to wait on transactions. It will be closed
// once the mempool is not empty (ie. the internal `mem.txs` has at least one
// element)
func (mem *ListMempool) TxsWaitChan() <-chan struct{} {
	return mem.txs.WaitChan()
}

// CheckTx implements Mempool
func (mem *ListMempool) CheckTx(tx types.Tx, txInfo TxInfo) error {
	mem.updateMtx.RLock()
	// use defer to unlock mutex because application (*local client*) might panic
	defer mem.updateMtx.RUnlock()

	txSize := len(tx)
	if err := mem.isFull(txSize); err != nil {
		return err
	}
	if txSize > mem.config.MaxTxBytes {
		return ErrTxTooLarge{mem.config.MaxTxBytes, txSize}
	}
	if mem.preCheck != nil {
		if err := mem.preCheck(tx); err != nil {
			return ErrPreCheck{err}
		}
	}

	if !mem.cache.Push(tx) {
		// Record a new sender for a tx we've already seen.
		if e, ok := mem.txsMap.Load(TxKey(tx)); ok {
			memTx := e.(*clist.CElement).Value.(*mempoolTx)
			memTx.senders.LoadOrStore(txInfo.SenderID, true)
		}
		return ErrTxInCache
	}

	memTx := &mempoolTx{tx: tx}
	memTx.senders.Store(txInfo.SenderID, true)
	mem.addTx(memTx)
	mem.logger.Debug("added good transaction",
		"tx", fmt.Sprintf("%X", TxKey(tx)),
		"total", mem.Size(),
	)
	mem.notifyTxsAvailable()
	return nil
}

func (mem *ListMempool) addTx(memTx *mempoolTx) {
	e := mem.txs.PushBack(memTx)
	mem.txsMap.Store(TxKey(memTx.tx), e)
	atomic.AddInt64(&mem.txsBytes, int64(len(memTx.tx)))
	mem.updateMetric()
}

// Called from:
//   - Update (lock held) if tx was committed
func (mem *ListMempool) removeTx(tx types.Tx, elem *clist.CElement, removeFromCache bool) {
	mem.txs.Remove(elem)
	elem.DetachPrev()
	mem.txsMap.Delete(TxKey(tx))
	atomic.AddInt64(&mem.txsBytes, int64(-len(tx)))

	if removeFromCache {
		mem.cache.Remove(tx)
	}
	mem.updateMetric()
}

func (mem *ListMempool) isFull(txSize int) error {
	var (
		memSize  = mem.Size()
		txsBytes = mem.TxsBytes()
	)
	if memSize >= mem.config.Size ||
		int64(txSize)+txsBytes > mem.config.MaxTxsBytes {
		return ErrMempoolIsFull{
			memSize, mem.config.Size,
			txsBytes, mem.config.MaxTxsBytes,
		}
	}
	return nil
}

func (mem *ListMempool) notifyTxsAvailable() {
	if mem.Size() == 0 {
		return
	}
	if mem.txsAvailable != nil && !mem.notifiedTxsAvailable {
		// channel cap is 1, so this will send once
		mem.notifiedTxsAvailable = true
		select {
		case mem.txsAvailable <- struct{}{}:
		default:
		}
	}
}

// ReapTxs implements Mempool
func (mem *ListMempool) ReapTxs(maxBytes int64) types.Txs {
	mem.updateMtx.RLock()
	defer mem.updateMtx.RUnlock()

	var totalBytes int64
	txs := make(types.Txs, 0, tmmath.MinInt(mem.txs.Len(), 64))
	for e := mem.txs.Front(); e != nil; e = e.Next() {
		memTx := e.Value.(*mempoolTx)
		if maxBytes > -1 && totalBytes+int64(len(memTx.tx)) > maxBytes {
			return txs
		}
		totalBytes += int64(len(memTx.tx))
		txs = append(txs, memTx.tx)
	}
	return txs
}

// ReapMaxTxs implements Mempool
func (mem *ListMempool) ReapMaxTxs(max int) types.Txs {
	mem.updateMtx.RLock()
	defer mem.updateMtx.RUnlock()

	if max < 0 {
		max = mem.txs.Len()
	}
	txs := make(types.Txs, 0, tmmath.MinInt(mem.txs.Len(), max))
	for e := mem.txs.Front(); e != nil && len(txs) < max; e = e.Next() {
		memTx := e.Value.(*mempoolTx)
		txs = append(txs, memTx.tx)
	}
	return txs
}

// Update implements Mempool; caller holds the lock.
func (mem *ListMempool) Update(round types.Round, txs types.Txs) error {
	mem.notifiedTxsAvailable = false

	for _, tx := range txs {
		// committed txs stay in the cache so a rebroadcast is rejected
		if e, ok := mem.txsMap.Load(TxKey(tx)); ok {
			mem.removeTx(tx, e.(*clist.CElement), false)
		}
	}
	mem.logger.Debug("updated mempool after commit", "round", round, "size", mem.Size())

	if mem.Size() > 0 {
		mem.notifyTxsAvailable()
	}
	return nil
}

//--------------------------------------------------------------------------------

// mempoolTx is a transaction that successfully ran
type mempoolTx struct {
	tx types.Tx

	// ids of peers who've sent us this tx (as a map for quick lookups).
	// senders: PeerID -> bool
	senders sync.Map
}

//--------------------------------------------------------------------------------

type txCache interface {
	Reset()
	Push(tx types.Tx) bool
	Remove(tx types.Tx)
}

// mapTxCache maintains a LRU cache of transactions. This only stores the
// hash of the tx, due to memory concerns.
type mapTxCache struct {
	mtx      tmsync.Mutex
	size     int
	cacheMap map[[TxKeySize]byte]*list.Element
	list     *list.List
}

var _ txCache = (*mapTxCache)(nil)

// newMapTxCache returns a new mapTxCache.
func newMapTxCache(cacheSize int) *mapTxCache {
	return &mapTxCache{
		size:     cacheSize,
		cacheMap: make(map[[TxKeySize]byte]*list.Element, cacheSize),
		list:     list.New(),
	}
}

// Reset resets the cache to an empty state.
func (cache *mapTxCache) Reset() {
	cache.mtx.Lock()
	cache.cacheMap = make(map[[TxKeySize]byte]*list.Element, cache.size)
	cache.list.Init()
	cache.mtx.Unlock()
}

// Push adds the given tx to the cache and returns true. It returns
// false if tx is already in the cache.
func (cache *mapTxCache) Push(tx types.Tx) bool {
	cache.mtx.Lock()
	defer cache.mtx.Unlock()

	// Use the tx hash in the cache
	txHash := TxKey(tx)
	if moved, exists := cache.cacheMap[txHash]; exists {
		cache.list.MoveToBack(moved)
		return false
	}

	if cache.list.Len() >= cache.size {
		popped := cache.list.Front()
		if popped != nil {
			poppedTxHash := popped.Value.([TxKeySize]byte)
			delete(cache.cacheMap, poppedTxHash)
			cache.list.Remove(popped)
		}
	}
	e := cache.list.PushBack(txHash)
	cache.cacheMap[txHash] = e
	return true
}

// Remove removes the given tx from the cache.
func (cache *mapTxCache) Remove(tx types.Tx) {
	cache.mtx.Lock()
	txHash := TxKey(tx)
	popped := cache.cacheMap[txHash]
	delete(cache.cacheMap, txHash)
	if popped != nil {
		cache.list.Remove(popped)
	}
	cache.mtx.Unlock()
}

type nopTxCache struct{}

var _ txCache = (*nopTxCache)(nil)

func (nopTxCache) Reset()             {}
func (nopTxCache) Push(types.Tx) bool { return true }
func (nopTxCache) Remove(types.Tx)   {}

//--------------------------------------------------------------------------------

func (mem *ListMempool) updateMetric() {
	mem.metric.MarkTxsNum(mem.Size())
	mem.metric.MarkTxsBytes(mem.TxsBytes())
}
