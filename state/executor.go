package state

import (
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/aptos-labs/aptos-core-sub050/mempool"
	"github.com/aptos-labs/aptos-core-sub050/store"
	"github.com/aptos-labs/aptos-core-sub050/types"
)

// maxProposalBytes bounds the payload reaped into a single proposal.
const maxProposalBytes = 1024 * 1024

// BlockExecutor packs proposals from the mempool and applies committed
// blocks: persist, update the committed frontier, drop the block's txs from
// the pool.
type BlockExecutor interface {
	CreateProposalBlock(state State, round types.Round, qc *types.QuorumCert, tc *types.TimeoutCert, proposer types.Address) *types.Block

	ApplyBlock(state State, block *types.Block) (State, error)

	SetLogger(logger log.Logger)
}

func NewBlockExecutor(stateStore Store, blockStore store.BlockStore, mempool mempool.Mempool) BlockExecutor {
	return &blockExecutor{
		stateStore: stateStore,
		blockStore: blockStore,
		mempool:    mempool,
		logger:     log.NewNopLogger(),
	}
}

type blockExecutor struct {
	stateStore Store
	blockStore store.BlockStore
	mempool    mempool.Mempool

	logger log.Logger
}

func (exec *blockExecutor) SetLogger(logger log.Logger) {
	exec.logger = logger
}

// CreateProposalBlock reaps pending transactions in arrival order and wraps
// them in a block justified by qc (and tc after a timed-out round). The
// block is returned unsigned.
func (exec *blockExecutor) CreateProposalBlock(state State, round types.Round, qc *types.QuorumCert, tc *types.TimeoutCert, proposer types.Address) *types.Block {
	txs := exec.mempool.ReapTxs(maxProposalBytes)
	return types.MakeBlock(state.ChainID, round, qc, tc, txs, proposer)
}

// ApplyBlock finalizes one committed block. Blocks arrive here oldest first
// and each must directly extend the committed frontier.
func (exec *blockExecutor) ApplyBlock(state State, block *types.Block) (State, error) {
	if err := exec.validateBlock(state, block); err != nil {
		return state, err
	}

	if err := exec.blockStore.SaveBlock(block); err != nil {
		return state, errors.Wrap(err, "persist committed block")
	}

	if len(block.Data.Txs) > 0 {
		exec.mempool.Lock()
		err := exec.mempool.Update(block.Round, block.Data.Txs)
		exec.mempool.Unlock()
		if err != nil {
			return state, errors.Wrap(err, "update mempool")
		}
	}

	newState := state.Copy()
	newState.LastCommittedRound = block.Round
	newState.LastCommittedID = block.Hash()
	newState.LastCommitTime = time.Now()

	if err := exec.stateStore.Save(newState); err != nil {
		return state, errors.Wrap(err, "persist state")
	}

	exec.logger.Info("committed block",
		"round", block.Round, "id", block.Hash(), "txs", len(block.Data.Txs))
	return newState, nil
}

func (exec *blockExecutor) validateBlock(state State, block *types.Block) error {
	if err := block.ValidateBasic(); err != nil {
		return err
	}
	if block.ChainID != state.ChainID {
		return errors.Errorf("block chain id %q, expected %q", block.ChainID, state.ChainID)
	}
	if !block.Round.Greater(state.LastCommittedRound) {
		return errors.Errorf("block round %v not beyond committed round %v",
			block.Round, state.LastCommittedRound)
	}
	return nil
}
