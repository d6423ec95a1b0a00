package consensus

import (
	"fmt"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"

	"github.com/aptos-labs/aptos-core-sub050/network"
	"github.com/aptos-labs/aptos-core-sub050/types"
)

func init() {
	tmjson.RegisterType(&ProposalMessage{}, "consensus/Proposal")
	tmjson.RegisterType(&VoteMessage{}, "consensus/Vote")
	tmjson.RegisterType(&TimeoutVoteMessage{}, "consensus/TimeoutVote")
	tmjson.RegisterType(&TimeoutCertMessage{}, "consensus/TimeoutCert")
}

// ProposalMessage carries a leader's block for its round.
type ProposalMessage struct {
	Block *types.Block `json:"block"`
}

var _ network.Message = (*ProposalMessage)(nil)

func (m *ProposalMessage) ValidateBasic() error {
	if m.Block == nil {
		return errors.New("missing block")
	}
	return m.Block.ValidateBasic()
}

func (m *ProposalMessage) String() string {
	return fmt.Sprintf("[Proposal %v]", m.Block)
}

// VoteMessage is sent to the leader of the round after the voted one.
type VoteMessage struct {
	Vote *types.Vote `json:"vote"`
}

var _ network.Message = (*VoteMessage)(nil)

func (m *VoteMessage) ValidateBasic() error {
	if m.Vote == nil {
		return errors.New("missing vote")
	}
	return m.Vote.ValidateBasic()
}

func (m *VoteMessage) String() string {
	return fmt.Sprintf("[Vote %v]", m.Vote)
}

// TimeoutVoteMessage is multicast when a round timer fires.
type TimeoutVoteMessage struct {
	Vote *types.TimeoutVote `json:"vote"`
}

var _ network.Message = (*TimeoutVoteMessage)(nil)

func (m *TimeoutVoteMessage) ValidateBasic() error {
	if m.Vote == nil {
		return errors.New("missing timeout vote")
	}
	return m.Vote.ValidateBasic()
}

func (m *TimeoutVoteMessage) String() string {
	return fmt.Sprintf("[TimeoutVote %v]", m.Vote)
}

// TimeoutCertMessage hands a formed timeout certificate to a peer, typically
// the next leader so it can justify its proposal.
type TimeoutCertMessage struct {
	Cert *types.TimeoutCert `json:"cert"`
}

var _ network.Message = (*TimeoutCertMessage)(nil)

func (m *TimeoutCertMessage) ValidateBasic() error {
	if m.Cert == nil {
		return errors.New("missing timeout cert")
	}
	return m.Cert.ValidateBasic()
}

func (m *TimeoutCertMessage) String() string {
	return fmt.Sprintf("[TimeoutCert %v]", m.Cert)
}

// retrievedBlocksMessage is internal only: the fetch manager delivers a
// completed ancestor fetch back into the consensus routine with it.
type retrievedBlocksMessage struct {
	QC     *types.QuorumCert `json:"qc"`
	Blocks []*types.Block    `json:"blocks"`
}

func (m *retrievedBlocksMessage) ValidateBasic() error {
	if m.QC == nil {
		return errors.New("missing qc")
	}
	if len(m.Blocks) == 0 {
		return errors.New("no blocks")
	}
	return nil
}

func (m *retrievedBlocksMessage) String() string {
	return fmt.Sprintf("[RetrievedBlocks qc=%v n=%d]", m.QC.Round, len(m.Blocks))
}
