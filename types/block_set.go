package types

import (
	"sync"
)

// BlockSet is the node-local cache of uncommitted blocks, keyed both by id
// and by round. At most one block is accepted per round, so the round index
// is single-valued. The consensus event loop is the only writer; the block
// retrieval server reads concurrently.
type BlockSet struct {
	mtx     sync.RWMutex
	byID    map[string]*Block
	byRound map[Round]*Block
}

func NewBlockSet() *BlockSet {
	return &BlockSet{
		byID:    make(map[string]*Block),
		byRound: make(map[Round]*Block),
	}
}

// Add caches a block. It returns false if a block with the same id is
// already present.
func (bs *BlockSet) Add(b *Block) bool {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	key := string(b.Hash())
	if _, ok := bs.byID[key]; ok {
		return false
	}
	bs.byID[key] = b
	if _, ok := bs.byRound[b.Round]; !ok {
		bs.byRound[b.Round] = b
	}
	return true
}

func (bs *BlockSet) GetByID(id BlockID) *Block {
	bs.mtx.RLock()
	defer bs.mtx.RUnlock()
	return bs.byID[string(id)]
}

func (bs *BlockSet) GetByRound(round Round) *Block {
	bs.mtx.RLock()
	defer bs.mtx.RUnlock()
	return bs.byRound[round]
}

func (bs *BlockSet) HasRound(round Round) bool {
	return bs.GetByRound(round) != nil
}

func (bs *BlockSet) Size() int {
	bs.mtx.RLock()
	defer bs.mtx.RUnlock()
	return len(bs.byID)
}

// PruneBelow drops every cached block with a round strictly below the given
// round. Certificates still holding a pointer keep their block alive.
func (bs *BlockSet) PruneBelow(round Round) {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	for key, b := range bs.byID {
		if b.Round < round {
			delete(bs.byID, key)
		}
	}
	for r := range bs.byRound {
		if r < round {
			delete(bs.byRound, r)
		}
	}
}

// Blocks returns a snapshot of the cached blocks in unspecified order.
func (bs *BlockSet) Blocks() []*Block {
	bs.mtx.RLock()
	defer bs.mtx.RUnlock()

	blocks := make([]*Block, 0, len(bs.byID))
	for _, b := range bs.byID {
		blocks = append(blocks, b)
	}
	return blocks
}
