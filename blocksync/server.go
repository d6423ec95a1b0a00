package blocksync

import (
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/aptos-labs/aptos-core-sub050/network"
	"github.com/aptos-labs/aptos-core-sub050/types"
)

// BlockReader resolves blocks by id. Both the in-memory block cache and the
// persistent store satisfy it; a node serves from their union.
type BlockReader interface {
	LoadBlockByID(id types.BlockID) *types.Block
}

// SetReader adapts the in-memory block cache to BlockReader.
type SetReader struct {
	Set *types.BlockSet
}

func (r SetReader) LoadBlockByID(id types.BlockID) *types.Block {
	return r.Set.GetByID(id)
}

// MultiReader tries each reader in order.
type MultiReader []BlockReader

func (m MultiReader) LoadBlockByID(id types.BlockID) *types.Block {
	for _, r := range m {
		if b := r.LoadBlockByID(id); b != nil {
			return b
		}
	}
	return nil
}

// Server answers block retrieval requests from local history.
type Server struct {
	logger log.Logger
	reader BlockReader
}

func NewServer(logger log.Logger, reader BlockReader) *Server {
	return &Server{logger: logger, reader: reader}
}

// HandleRequest implements network.RPCHandler. It walks parent links from
// the requested start id, stopping at the requested count, the target block,
// or the end of known history, whichever comes first.
func (s *Server) HandleRequest(msg network.Message, from types.Address) (network.Message, error) {
	req, ok := msg.(*BlockRetrievalRequest)
	if !ok {
		return nil, errors.Errorf("unexpected request type %T", msg)
	}
	if err := req.ValidateBasic(); err != nil {
		return nil, err
	}

	var (
		blocks []*types.Block
		status = RetrievalStatusIDNotFound
	)
	id := req.StartID
	for uint64(len(blocks)) < req.NumBlocks {
		b := s.reader.LoadBlockByID(id)
		if b == nil {
			break
		}
		blocks = append(blocks, b)
		if b.Hash().Equal(req.TargetID) {
			status = RetrievalStatusSucceededWithTarget
			break
		}
		if b.IsGenesis() {
			break
		}
		id = b.ParentID
	}
	if status != RetrievalStatusSucceededWithTarget {
		switch {
		case uint64(len(blocks)) == req.NumBlocks:
			status = RetrievalStatusSucceeded
		case len(blocks) > 0:
			status = RetrievalStatusNotEnoughBlocks
		}
	}

	s.logger.Debug("served block retrieval request",
		"start", req.StartID, "n", req.NumBlocks, "status", status, "returned", len(blocks))
	return &BlockRetrievalResponse{Status: status, Blocks: blocks}, nil
}
