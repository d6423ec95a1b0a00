package cstypes

import (
	"fmt"

	"github.com/pkg/errors"
	tmsync "github.com/tendermint/tendermint/libs/sync"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

var (
	ErrVoteUnknownValidator       = errors.New("vote from unknown validator")
	ErrVoteConflictingBlockID     = errors.New("conflicting vote from validator")
	ErrTimeoutVoteConflictingHigh = errors.New("conflicting timeout vote from validator")
)

// roundVotes tallies votes and timeout votes for one round. Certificates are
// formed at most once and never reset.
type roundVotes struct {
	round types.Round

	votes   map[string]*types.Vote // validator address -> vote
	byBlock map[string][]*types.Vote

	timeouts map[string]*types.TimeoutVote
	maxQC    *types.QuorumCert // highest qc carried by a timeout vote

	qc *types.QuorumCert
	tc *types.TimeoutCert
}

func newRoundVotes(round types.Round) *roundVotes {
	return &roundVotes{
		round:    round,
		votes:    make(map[string]*types.Vote),
		byBlock:  make(map[string][]*types.Vote),
		timeouts: make(map[string]*types.TimeoutVote),
	}
}

// VoteSet keeps vote tallies for all rounds this node has seen. It is safe
// for concurrent use; the rpc status endpoint reads it outside the consensus
// routine.
type VoteSet struct {
	chainID string
	valSet  *types.ValidatorSet

	mtx    tmsync.Mutex
	rounds map[types.Round]*roundVotes
}

func NewVoteSet(chainID string, valSet *types.ValidatorSet) *VoteSet {
	return &VoteSet{
		chainID: chainID,
		valSet:  valSet,
		rounds:  make(map[types.Round]*roundVotes),
	}
}

func (vs *VoteSet) getRound(round types.Round) *roundVotes {
	rv, ok := vs.rounds[round]
	if !ok {
		rv = newRoundVotes(round)
		vs.rounds[round] = rv
	}
	return rv
}

// AddVote records a vote. A second vote from the same validator for the same
// round is ignored when identical and rejected when it names a different
// block.
func (vs *VoteSet) AddVote(vote *types.Vote) (bool, error) {
	if !vs.valSet.HasAddress(vote.ValidatorAddress) {
		return false, ErrVoteUnknownValidator
	}

	vs.mtx.Lock()
	defer vs.mtx.Unlock()

	rv := vs.getRound(vote.Round)
	key := string(vote.ValidatorAddress)
	if existing, ok := rv.votes[key]; ok {
		if existing.BlockID.Equal(vote.BlockID) {
			return false, nil
		}
		return false, errors.Wrapf(ErrVoteConflictingBlockID,
			"validator %X voted %v and %v in round %v",
			vote.ValidatorAddress, existing.BlockID, vote.BlockID, vote.Round)
	}

	rv.votes[key] = vote
	blockKey := vote.BlockID.String()
	rv.byBlock[blockKey] = append(rv.byBlock[blockKey], vote)
	return true, nil
}

// AddTimeoutVote records a timeout vote and tracks the highest qc carried by
// any of them, which seeds the eventual timeout certificate.
func (vs *VoteSet) AddTimeoutVote(vote *types.TimeoutVote) (bool, error) {
	if !vs.valSet.HasAddress(vote.ValidatorAddress) {
		return false, ErrVoteUnknownValidator
	}

	vs.mtx.Lock()
	defer vs.mtx.Unlock()

	rv := vs.getRound(vote.Round)
	key := string(vote.ValidatorAddress)
	if _, ok := rv.timeouts[key]; ok {
		return false, nil
	}

	rv.timeouts[key] = vote
	rv.maxQC = types.MaxQC(rv.maxQC, vote.HighQC)
	return true, nil
}

// TryGenQC returns the quorum certificate for the round once some block has
// gathered a quorum of votes, and nil before that. The certificate is formed
// once; later calls return the same value.
func (vs *VoteSet) TryGenQC(round types.Round) *types.QuorumCert {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()

	rv := vs.getRound(round)
	if rv.qc != nil {
		return rv.qc
	}

	quorum := vs.valSet.QuorumSize()
	for _, votes := range rv.byBlock {
		if len(votes) < quorum {
			continue
		}
		voters := make([]types.Address, 0, len(votes))
		var aggSig []byte
		for _, v := range votes {
			voters = append(voters, v.ValidatorAddress)
			aggSig = append(aggSig, v.Signature...)
		}
		rv.qc = &types.QuorumCert{
			Round:     round,
			BlockID:   votes[0].BlockID,
			Voters:    voters,
			Signature: aggSig,
		}
		return rv.qc
	}
	return nil
}

// TryGenTC returns the timeout certificate for the round once a quorum of
// timeout votes has been collected, and nil before that.
func (vs *VoteSet) TryGenTC(round types.Round) *types.TimeoutCert {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()

	rv := vs.getRound(round)
	if rv.tc != nil {
		return rv.tc
	}
	if len(rv.timeouts) < vs.valSet.QuorumSize() {
		return nil
	}

	voters := make([]types.Address, 0, len(rv.timeouts))
	var aggSig []byte
	for _, tv := range rv.timeouts {
		voters = append(voters, tv.ValidatorAddress)
		aggSig = append(aggSig, tv.Signature...)
	}
	rv.tc = &types.TimeoutCert{
		Round:     round,
		HighQC:    rv.maxQC,
		Voters:    voters,
		Signature: aggSig,
	}
	return rv.tc
}

// VoteCount returns the number of distinct voters in the round.
func (vs *VoteSet) VoteCount(round types.Round) int {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()
	return len(vs.getRound(round).votes)
}

// TimeoutVoteCount returns the number of distinct timeout voters in the round.
func (vs *VoteSet) TimeoutVoteCount(round types.Round) int {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()
	return len(vs.getRound(round).timeouts)
}

// PruneBelow drops tallies for rounds strictly below the given round.
func (vs *VoteSet) PruneBelow(round types.Round) {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()
	for r := range vs.rounds {
		if r < round {
			delete(vs.rounds, r)
		}
	}
}

func (vs *VoteSet) StringShort() string {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()
	return fmt.Sprintf("VoteSet{rounds:%d}", len(vs.rounds))
}
