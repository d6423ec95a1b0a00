package types

import (
	tmjson "github.com/tendermint/tendermint/libs/json"
)

// Canonical sign-bytes for the three message kinds a validator signs. The
// encoding only has to be deterministic and identical across nodes.

type canonicalProposal struct {
	ChainID      string  `json:"chain_id"`
	Round        Round   `json:"round"`
	ParentID     BlockID `json:"parent_id"`
	TxsHash      []byte  `json:"txs_hash"`
	ProposerAddr Address `json:"proposer_addr"`
}

type canonicalVote struct {
	ChainID        string  `json:"chain_id"`
	Round          Round   `json:"round"`
	BlockID        BlockID `json:"block_id"`
	ValidatorAddr  Address `json:"validator_addr"`
	ValidatorIndex int32   `json:"validator_index"`
}

type canonicalTimeout struct {
	ChainID       string  `json:"chain_id"`
	Round         Round   `json:"round"`
	HighQCRound   Round   `json:"high_qc_round"`
	ValidatorAddr Address `json:"validator_addr"`
}

func ProposalSignBytes(chainID string, b *Block) []byte {
	bz, err := tmjson.Marshal(canonicalProposal{
		ChainID:      chainID,
		Round:        b.Round,
		ParentID:     b.ParentID,
		TxsHash:      b.Data.Hash(),
		ProposerAddr: b.ProposerAddr,
	})
	if err != nil {
		panic(err)
	}
	return bz
}

func VoteSignBytes(chainID string, v *Vote) []byte {
	bz, err := tmjson.Marshal(canonicalVote{
		ChainID:        chainID,
		Round:          v.Round,
		BlockID:        v.BlockID,
		ValidatorAddr:  v.ValidatorAddress,
		ValidatorIndex: v.ValidatorIndex,
	})
	if err != nil {
		panic(err)
	}
	return bz
}

func TimeoutVoteSignBytes(chainID string, tv *TimeoutVote) []byte {
	bz, err := tmjson.Marshal(canonicalTimeout{
		ChainID:       chainID,
		Round:         tv.Round,
		HighQCRound:   tv.HighQC.Round,
		ValidatorAddr: tv.ValidatorAddress,
	})
	if err != nil {
		panic(err)
	}
	return bz
}
