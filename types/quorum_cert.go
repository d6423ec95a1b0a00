package types

import (
	"errors"
	"fmt"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// QuorumCert attests that a quorum of validators voted for BlockID at Round.
// Ordering between certificates is by round only.
type QuorumCert struct {
	Round   Round   `json:"round"`
	BlockID BlockID `json:"block_id"`

	// Voters records which validators contributed votes; the block retriever
	// uses it as the candidate peer set for ancestor fetches.
	Voters []Address `json:"voters"`

	// Signature stands in for an aggregate over the votes.
	Signature tmbytes.HexBytes `json:"signature"`

	// block is the locally resolved certified block. It is not part of the
	// wire form; receivers resolve it against their block cache.
	block *Block
}

// NewQuorumCert builds a certificate for a locally known block.
func NewQuorumCert(block *Block, voters []Address) *QuorumCert {
	return &QuorumCert{
		Round:     block.Round,
		BlockID:   block.Hash(),
		Voters:    voters,
		Signature: []byte("aggregated signature"),
		block:     block,
	}
}

// GenesisQC returns the certificate every node starts from.
func GenesisQC(genesis *Block) *QuorumCert {
	return &QuorumCert{
		Round:   RoundZero,
		BlockID: genesis.Hash(),
		block:   genesis,
	}
}

func (qc *QuorumCert) IsGenesis() bool {
	return qc.Round == RoundZero
}

// CertifiedBlock returns the locally resolved block, or nil if the block is
// not known yet.
func (qc *QuorumCert) CertifiedBlock() *Block {
	return qc.block
}

// SetCertifiedBlock resolves the certificate against a local block. The block
// hash must match the certified id.
func (qc *QuorumCert) SetCertifiedBlock(b *Block) error {
	if !qc.BlockID.Equal(b.Hash()) {
		return errors.New("block does not match certified id")
	}
	qc.block = b
	return nil
}

// Greater reports whether qc certifies a strictly higher round than other.
// A nil other always compares lower.
func (qc *QuorumCert) Greater(other *QuorumCert) bool {
	if other == nil {
		return true
	}
	return qc.Round.Greater(other.Round)
}

// MaxQC returns the certificate with the higher round; ties keep a.
func MaxQC(a, b *QuorumCert) *QuorumCert {
	if a == nil {
		return b
	}
	if b != nil && b.Greater(a) {
		return b
	}
	return a
}

func (qc *QuorumCert) ValidateBasic() error {
	if qc == nil {
		return errors.New("nil quorum cert")
	}
	if len(qc.BlockID) == 0 {
		return errors.New("quorum cert has no block id")
	}
	if qc.Round < RoundZero {
		return errors.New("quorum cert has negative round")
	}
	if !qc.IsGenesis() && len(qc.Voters) == 0 {
		return errors.New("non-genesis quorum cert has no voters")
	}
	return nil
}

func (qc *QuorumCert) String() string {
	if qc == nil {
		return "nil-QC"
	}
	return fmt.Sprintf("QC{round=%v block=%X voters=%d}", qc.Round, qc.BlockID, len(qc.Voters))
}
