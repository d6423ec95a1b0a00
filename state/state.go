package state

import (
	"time"

	"github.com/pkg/errors"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

// State is the committed-frontier view of one node: everything below and
// including LastCommittedRound is final. It is a value type; the executor
// returns an updated copy on every applied block.
type State struct {
	ChainID     string    `json:"chain_id"`
	GenesisTime time.Time `json:"genesis_time"`

	Validators *types.ValidatorSet `json:"validators"`

	LastCommittedRound types.Round   `json:"last_committed_round"`
	LastCommittedID    types.BlockID `json:"last_committed_id"`
	LastCommitTime     time.Time     `json:"last_commit_time"`
}

// MakeGenesisState builds the initial state from a genesis document.
func MakeGenesisState(genDoc *types.GenesisDoc) (State, error) {
	if err := genDoc.ValidateAndComplete(); err != nil {
		return State{}, errors.Wrap(err, "invalid genesis doc")
	}
	vals := genDoc.ValidatorSet()

	gen := types.MakeGenesisBlock(genDoc.ChainID, genDoc.GenesisTime)
	return State{
		ChainID:            genDoc.ChainID,
		GenesisTime:        genDoc.GenesisTime,
		Validators:         vals,
		LastCommittedRound: types.RoundZero,
		LastCommittedID:    gen.Hash(),
	}, nil
}

// GenesisBlock reconstructs the chain's genesis block; it is deterministic
// for a given chain id.
func (state State) GenesisBlock() *types.Block {
	return types.MakeGenesisBlock(state.ChainID, state.GenesisTime)
}

func (state State) IsEmpty() bool {
	return state.Validators == nil
}

// Copy returns a deep enough copy for the single-writer executor: the
// validator set is shared (it is immutable after genesis), ids are copied.
func (state State) Copy() State {
	next := state
	next.LastCommittedID = make(types.BlockID, len(state.LastCommittedID))
	copy(next.LastCommittedID, state.LastCommittedID)
	return next
}

func (state State) Equals(other State) bool {
	return state.ChainID == other.ChainID &&
		state.LastCommittedRound.Equal(other.LastCommittedRound) &&
		state.LastCommittedID.Equal(other.LastCommittedID)
}
