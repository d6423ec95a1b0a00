package blocksync

import (
	"fmt"

	"github.com/tendermint/tendermint/libs/cmap"
	"github.com/tendermint/tendermint/libs/service"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

// FetchedCallback receives the result of a background fetch. It runs on the
// fetch goroutine, so it must hand off to the consumer's own queue rather
// than do heavy work inline.
type FetchedCallback func(qc *types.QuorumCert, blocks []*types.Block)

// FetchManager runs chain retrievals in the background so the consensus
// routine never blocks on a multi-round fetch. Requests are deduplicated by
// (start, target): a fetch already in flight absorbs repeat requests.
type FetchManager struct {
	service.BaseService

	retriever *Retriever
	inFlight  *cmap.CMap // "start##target" -> struct{}
	onFetched FetchedCallback
}

func NewFetchManager(retriever *Retriever, onFetched FetchedCallback) *FetchManager {
	fm := &FetchManager{
		retriever: retriever,
		inFlight:  cmap.NewCMap(),
		onFetched: onFetched,
	}
	fm.BaseService = *service.NewBaseService(nil, "FetchManager", fm)
	return fm
}

func (fm *FetchManager) OnStart() error { return nil }

func (fm *FetchManager) OnStop() {}

// FetchChain schedules retrieval of numBlocks ancestors of qc's certified
// block down to targetID and returns immediately. Results are delivered via
// the callback; terminal fetch failures are logged and dropped, leaving a
// later certificate to trigger a fresh fetch.
func (fm *FetchManager) FetchChain(qc *types.QuorumCert, targetID types.BlockID, numBlocks uint64) {
	if !fm.IsRunning() {
		return
	}
	key := fetchKey(qc.BlockID, targetID)
	if fm.inFlight.Has(key) {
		return
	}
	fm.inFlight.Set(key, struct{}{})

	fm.Logger.Info("fetching ancestor chain",
		"start", qc.BlockID, "target", targetID, "n", numBlocks)
	go func() {
		defer fm.inFlight.Delete(key)

		blocks, err := fm.retriever.RetrieveChain(qc, targetID, numBlocks)
		if err != nil {
			fm.Logger.Error("ancestor chain fetch failed",
				"start", qc.BlockID, "target", targetID, "err", err)
			return
		}
		if !fm.IsRunning() {
			return
		}
		fm.onFetched(qc, blocks)
	}()
}

func fetchKey(start, target types.BlockID) string {
	return fmt.Sprintf("%v##%v", start, target)
}
