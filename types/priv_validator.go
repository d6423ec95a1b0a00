package types

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/ed25519"
)

// PrivValidator signs consensus messages on behalf of one validator.
type PrivValidator interface {
	GetPubKey() (crypto.PubKey, error)

	SignProposal(chainID string, block *Block) error
	SignVote(chainID string, vote *Vote) error
	SignTimeoutVote(chainID string, tv *TimeoutVote) error
}

//----------------------------------------
// MockPV

// MockPV implements PrivValidator without any safety or persistence.
// Only use it for testing.
type MockPV struct {
	PrivKey crypto.PrivKey
}

func NewMockPV() MockPV {
	return MockPV{ed25519.GenPrivKey()}
}

func (pv MockPV) GetPubKey() (crypto.PubKey, error) {
	return pv.PrivKey.PubKey(), nil
}

func (pv MockPV) SignProposal(chainID string, block *Block) error {
	sig, err := pv.PrivKey.Sign(ProposalSignBytes(chainID, block))
	if err != nil {
		return err
	}
	block.Header.Signature = sig
	return nil
}

func (pv MockPV) SignVote(chainID string, vote *Vote) error {
	sig, err := pv.PrivKey.Sign(VoteSignBytes(chainID, vote))
	if err != nil {
		return err
	}
	vote.Signature = sig
	return nil
}

func (pv MockPV) SignTimeoutVote(chainID string, tv *TimeoutVote) error {
	sig, err := pv.PrivKey.Sign(TimeoutVoteSignBytes(chainID, tv))
	if err != nil {
		return err
	}
	tv.Signature = sig
	return nil
}

func (pv MockPV) String() string {
	addr := pv.PrivKey.PubKey().Address()
	return fmt.Sprintf("MockPV{%v}", addr)
}

//----------------------------------------

// PrivValidatorsByAddress sorts a set of signers by address.
type PrivValidatorsByAddress []PrivValidator

var _ sort.Interface = (PrivValidatorsByAddress)(nil)

func (pvs PrivValidatorsByAddress) Len() int { return len(pvs) }

func (pvs PrivValidatorsByAddress) Less(i, j int) bool {
	pvi, err := pvs[i].GetPubKey()
	if err != nil {
		panic(err)
	}
	pvj, err := pvs[j].GetPubKey()
	if err != nil {
		panic(err)
	}
	return bytes.Compare(pvi.Address(), pvj.Address()) == -1
}

func (pvs PrivValidatorsByAddress) Swap(i, j int) {
	pvs[i], pvs[j] = pvs[j], pvs[i]
}
