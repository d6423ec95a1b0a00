package types

import (
	"time"
)

// MakeGenesisBlock returns the unique round-zero block every chain starts
// from. It carries no payload and no justification.
func MakeGenesisBlock(chainID string, genesisTime time.Time) *Block {
	b := &Block{
		Header: Header{
			ChainID:      chainID,
			Round:        RoundZero,
			ParentID:     BlockID{},
			ProposalTime: genesisTime,
		},
		Data: Data{
			Txs: Txs{},
		},
	}
	b.Hash()
	return b
}

// MakeBlock assembles an unsigned proposal for the given round. The parent is
// the block certified by qc; tc is attached only when the proposer entered
// the round via a timeout.
func MakeBlock(
	chainID string,
	round Round,
	qc *QuorumCert,
	tc *TimeoutCert,
	txs Txs,
	proposer Address,
) *Block {
	b := &Block{
		Header: Header{
			ChainID:      chainID,
			Round:        round,
			ParentID:     qc.BlockID,
			ProposerAddr: proposer,
			ProposalTime: time.Now(),
		},
		Data: Data{
			Txs: txs,
		},
		QC: qc,
		TC: tc,
	}
	b.Hash()
	return b
}
