package types

import (
	"errors"
	"time"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// Vote endorses one block at one round. A validator casts at most one vote
// per round; it is unicast to the leader of the following round.
type Vote struct {
	Round            Round            `json:"round"`
	BlockID          BlockID          `json:"block_id"`
	Timestamp        time.Time        `json:"timestamp"`
	ValidatorAddress Address          `json:"validator_address"`
	ValidatorIndex   int32            `json:"validator_index"`
	Signature        tmbytes.HexBytes `json:"signature"`
}

func (v *Vote) ValidateBasic() error {
	if v == nil {
		return errors.New("nil vote")
	}
	if !v.Round.Greater(RoundZero) {
		return errors.New("vote for genesis round")
	}
	if len(v.BlockID) == 0 {
		return errors.New("vote has no block id")
	}
	if len(v.ValidatorAddress) == 0 {
		return errors.New("vote has no validator address")
	}
	if v.ValidatorIndex < 0 {
		return errors.New("vote has negative validator index")
	}
	if len(v.Signature) == 0 {
		return errors.New("vote has no signature")
	}
	return nil
}

func (v *Vote) Equal(other *Vote) bool {
	if v == nil || other == nil {
		return v == other
	}
	return v.Round == other.Round &&
		v.BlockID.Equal(other.BlockID) &&
		AddressEqual(v.ValidatorAddress, other.ValidatorAddress)
}

// TimeoutVote announces that a validator gave up on Round; it carries the
// highest quorum certificate the sender has seen so far.
type TimeoutVote struct {
	Round            Round            `json:"round"`
	HighQC           *QuorumCert      `json:"high_qc"`
	Timestamp        time.Time        `json:"timestamp"`
	ValidatorAddress Address          `json:"validator_address"`
	ValidatorIndex   int32            `json:"validator_index"`
	Signature        tmbytes.HexBytes `json:"signature"`
}

func (tv *TimeoutVote) ValidateBasic() error {
	if tv == nil {
		return errors.New("nil timeout vote")
	}
	if !tv.Round.Greater(RoundZero) {
		return errors.New("timeout vote for genesis round")
	}
	if tv.HighQC == nil {
		return errors.New("timeout vote has no high qc")
	}
	if err := tv.HighQC.ValidateBasic(); err != nil {
		return err
	}
	if len(tv.ValidatorAddress) == 0 {
		return errors.New("timeout vote has no validator address")
	}
	if len(tv.Signature) == 0 {
		return errors.New("timeout vote has no signature")
	}
	return nil
}
