package blocksync

import (
	"fmt"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"

	"github.com/aptos-labs/aptos-core-sub050/network"
	"github.com/aptos-labs/aptos-core-sub050/types"
)

func init() {
	tmjson.RegisterType(&BlockRetrievalRequest{}, "blocksync/BlockRetrievalRequest")
	tmjson.RegisterType(&BlockRetrievalResponse{}, "blocksync/BlockRetrievalResponse")
}

// RetrievalStatus is the responder's verdict on a retrieval request.
type RetrievalStatus int32

const (
	// RetrievalStatusSucceeded: all requested blocks were returned.
	RetrievalStatusSucceeded RetrievalStatus = iota
	// RetrievalStatusSucceededWithTarget: the walk reached the target block
	// before the requested count; the target is the last block returned.
	RetrievalStatusSucceededWithTarget
	// RetrievalStatusIDNotFound: the start block is unknown to the responder.
	RetrievalStatusIDNotFound
	// RetrievalStatusNotEnoughBlocks: the walk ran out of known ancestors
	// before reaching either the count or the target.
	RetrievalStatusNotEnoughBlocks
)

func (s RetrievalStatus) String() string {
	switch s {
	case RetrievalStatusSucceeded:
		return "Succeeded"
	case RetrievalStatusSucceededWithTarget:
		return "SucceededWithTarget"
	case RetrievalStatusIDNotFound:
		return "IDNotFound"
	case RetrievalStatusNotEnoughBlocks:
		return "NotEnoughBlocks"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(s))
	}
}

// BlockRetrievalRequest asks a peer for up to NumBlocks blocks, starting at
// StartID and walking parent links backward, stopping early if TargetID is
// reached.
type BlockRetrievalRequest struct {
	StartID   types.BlockID `json:"start_id"`
	TargetID  types.BlockID `json:"target_id"`
	NumBlocks uint64        `json:"num_blocks"`
}

var _ network.Message = (*BlockRetrievalRequest)(nil)

func (m *BlockRetrievalRequest) ValidateBasic() error {
	if len(m.StartID) == 0 {
		return errors.New("empty start id")
	}
	if len(m.TargetID) == 0 {
		return errors.New("empty target id")
	}
	if m.NumBlocks == 0 {
		return errors.New("zero blocks requested")
	}
	return nil
}

func (m *BlockRetrievalRequest) String() string {
	return fmt.Sprintf("BlockRetrievalRequest{start:%v target:%v n:%d}",
		m.StartID, m.TargetID, m.NumBlocks)
}

// BlockRetrievalResponse carries the retrieved blocks, ordered from StartID
// backward along parent links.
type BlockRetrievalResponse struct {
	Status RetrievalStatus `json:"status"`
	Blocks []*types.Block  `json:"blocks"`
}

var _ network.Message = (*BlockRetrievalResponse)(nil)

func (m *BlockRetrievalResponse) ValidateBasic() error {
	switch m.Status {
	case RetrievalStatusSucceeded, RetrievalStatusSucceededWithTarget:
		if len(m.Blocks) == 0 {
			return errors.New("successful response carries no blocks")
		}
	case RetrievalStatusIDNotFound, RetrievalStatusNotEnoughBlocks:
	default:
		return errors.Errorf("unknown retrieval status %d", m.Status)
	}
	for i, b := range m.Blocks {
		if b == nil {
			return errors.Errorf("nil block at index %d", i)
		}
		if err := b.ValidateBasic(); err != nil {
			return errors.Wrapf(err, "invalid block at index %d", i)
		}
	}
	return nil
}

// Verify checks a successful response against the request it answers: the
// chain must start at the requested id, be parent-linked, respect the
// requested count, and, for a with-target status, end at the target.
// Responses with a non-success status pass trivially; the caller decides how
// to treat them.
func (m *BlockRetrievalResponse) Verify(req *BlockRetrievalRequest) error {
	if m.Status != RetrievalStatusSucceeded && m.Status != RetrievalStatusSucceededWithTarget {
		return nil
	}
	if uint64(len(m.Blocks)) > req.NumBlocks {
		return errors.Errorf("got %d blocks, requested at most %d", len(m.Blocks), req.NumBlocks)
	}
	if !m.Blocks[0].Hash().Equal(req.StartID) {
		return errors.Errorf("chain starts at %v, requested %v", m.Blocks[0].Hash(), req.StartID)
	}
	for i := 0; i < len(m.Blocks)-1; i++ {
		if !m.Blocks[i].ParentID.Equal(m.Blocks[i+1].Hash()) {
			return errors.Errorf("broken parent link at index %d", i)
		}
	}
	last := m.Blocks[len(m.Blocks)-1]
	if m.Status == RetrievalStatusSucceededWithTarget && !last.Hash().Equal(req.TargetID) {
		return errors.Errorf("chain ends at %v, target was %v", last.Hash(), req.TargetID)
	}
	return nil
}

func (m *BlockRetrievalResponse) String() string {
	return fmt.Sprintf("BlockRetrievalResponse{%v %d blocks}", m.Status, len(m.Blocks))
}
