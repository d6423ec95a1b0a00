package store

import (
	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	tmsync "github.com/tendermint/tendermint/libs/sync"
	tmdb "github.com/tendermint/tm-db"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

// BlockStore persists committed blocks, indexed by id and by round.
type BlockStore interface {
	SaveBlock(block *types.Block) error
	LoadBlockByID(id types.BlockID) *types.Block
	LoadBlockByRound(round types.Round) *types.Block

	// TipRound is the highest round saved so far, zero for a fresh store.
	TipRound() types.Round
}

var (
	blockKeyPrefix = []byte("B:")
	roundKeyPrefix = []byte("R:")
	tipKey         = []byte("tip")
)

func blockKey(id types.BlockID) []byte {
	return append(blockKeyPrefix, id...)
}

func roundKey(round types.Round) []byte {
	return append(roundKeyPrefix, round.Hash()...)
}

// KVBlockStore is a BlockStore over a tm-db backend.
type KVBlockStore struct {
	db     tmdb.DB
	logger log.Logger

	mtx tmsync.RWMutex
	tip types.Round
}

var _ BlockStore = (*KVBlockStore)(nil)

func NewBlockStore(db tmdb.DB, logger log.Logger) *KVBlockStore {
	bs := &KVBlockStore{db: db, logger: logger}
	bs.tip = bs.loadTip()
	return bs
}

func (bs *KVBlockStore) loadTip() types.Round {
	bz, err := bs.db.Get(tipKey)
	if err != nil || len(bz) == 0 {
		return types.RoundZero
	}
	var tip types.Round
	if err := tmjson.Unmarshal(bz, &tip); err != nil {
		bs.logger.Error("corrupt tip record, starting from zero", "err", err)
		return types.RoundZero
	}
	return tip
}

// SaveBlock writes the block and its round index atomically and advances the
// tip when the block is ahead of it.
func (bs *KVBlockStore) SaveBlock(block *types.Block) error {
	bz, err := tmjson.Marshal(block)
	if err != nil {
		return errors.Wrap(err, "marshal block")
	}
	id := block.Hash()

	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	batch := bs.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(blockKey(id), bz); err != nil {
		return err
	}
	if err := batch.Set(roundKey(block.Round), id); err != nil {
		return err
	}
	if block.Round.Greater(bs.tip) {
		tipBz, err := tmjson.Marshal(block.Round)
		if err != nil {
			return err
		}
		if err := batch.Set(tipKey, tipBz); err != nil {
			return err
		}
	}
	if err := batch.WriteSync(); err != nil {
		return errors.Wrap(err, "write block batch")
	}
	if block.Round.Greater(bs.tip) {
		bs.tip = block.Round
	}
	return nil
}

func (bs *KVBlockStore) LoadBlockByID(id types.BlockID) *types.Block {
	bz, err := bs.db.Get(blockKey(id))
	if err != nil {
		bs.logger.Error("failed to read block", "id", id, "err", err)
		return nil
	}
	if len(bz) == 0 {
		return nil
	}
	block := new(types.Block)
	if err := tmjson.Unmarshal(bz, block); err != nil {
		bs.logger.Error("corrupt block record", "id", id, "err", err)
		return nil
	}
	return block
}

func (bs *KVBlockStore) LoadBlockByRound(round types.Round) *types.Block {
	id, err := bs.db.Get(roundKey(round))
	if err != nil {
		bs.logger.Error("failed to read round index", "round", round, "err", err)
		return nil
	}
	if len(id) == 0 {
		return nil
	}
	return bs.LoadBlockByID(id)
}

func (bs *KVBlockStore) TipRound() types.Round {
	bs.mtx.RLock()
	defer bs.mtx.RUnlock()
	return bs.tip
}
