package cstypes

import (
	"fmt"
	"time"

	tmjson "github.com/tendermint/tendermint/libs/json"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

// RoundState holds the mutable consensus state of a single node. It is owned
// by the consensus routine; readers take a copy via the state's GetRoundState.
//
// Monotonicity: CurRound, VoteRound, HighQC.Round and CommittedRound only
// ever increase.
type RoundState struct {
	CurRound  types.Round `json:"cur_round"`
	VoteRound types.Round `json:"vote_round"` // highest round voted in

	// EnteredRound is the highest round whose entry actions (proposal
	// multicast, tc hand-off, timer arming) have run, so re-entry is a no-op.
	EnteredRound types.Round `json:"entered_round"`
	StartTime    time.Time   `json:"start_time"` // when CurRound was entered

	HighQC *types.QuorumCert `json:"high_qc"`
	HighTC *types.TimeoutCert `json:"high_tc"`

	CommittedRound types.Round  `json:"committed_round"`
	CommittedBlock *types.Block `json:"committed_block"`

	Proposal *types.Block `json:"proposal"` // proposal seen for CurRound, if any

	Validators *types.ValidatorSet `json:"validators"`
	Blocks     *types.BlockSet     `json:"-"`
	Votes      *VoteSet            `json:"-"`
}

// Leader returns the proposer of the given round.
func (rs *RoundState) Leader(round types.Round) *types.Validator {
	return rs.Validators.GetLeader(round)
}

// IsLeader reports whether addr proposes in the current round.
func (rs *RoundState) IsLeader(addr types.Address) bool {
	leader := rs.Validators.GetLeader(rs.CurRound)
	return leader != nil && types.AddressEqual(leader.Address, addr)
}

// RoundStateSimple is the trimmed representation served over rpc.
type RoundStateSimple struct {
	CurRound       types.Round       `json:"cur_round"`
	VoteRound      types.Round       `json:"vote_round"`
	HighQCRound    types.Round       `json:"high_qc_round"`
	CommittedRound types.Round       `json:"committed_round"`
	CommittedID    types.BlockID     `json:"committed_id"`
	Proposer       types.Address     `json:"proposer"`
}

func (rs *RoundState) RoundStateSimple() RoundStateSimple {
	simple := RoundStateSimple{
		CurRound:       rs.CurRound,
		VoteRound:      rs.VoteRound,
		CommittedRound: rs.CommittedRound,
	}
	if rs.HighQC != nil {
		simple.HighQCRound = rs.HighQC.Round
	}
	if rs.CommittedBlock != nil {
		simple.CommittedID = rs.CommittedBlock.Hash()
	}
	if leader := rs.Leader(rs.CurRound); leader != nil {
		simple.Proposer = leader.Address
	}
	return simple
}

func (rs *RoundState) String() string {
	bz, err := tmjson.Marshal(rs.RoundStateSimple())
	if err != nil {
		return fmt.Sprintf("RoundState{marshal error: %v}", err)
	}
	return string(bz)
}

func (rs *RoundState) StringShort() string {
	return fmt.Sprintf("RoundState{round:%v vote:%v committed:%v}",
		rs.CurRound, rs.VoteRound, rs.CommittedRound)
}
