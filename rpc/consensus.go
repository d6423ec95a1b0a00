package rpc

import (
	"github.com/pkg/errors"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	cstypes "github.com/aptos-labs/aptos-core-sub050/consensus/types"
	"github.com/aptos-labs/aptos-core-sub050/libs/utils"
	"github.com/aptos-labs/aptos-core-sub050/types"
)

type ResultStatus struct {
	ChainID        string        `json:"chain_id"`
	CurRound       types.Round   `json:"cur_round"`
	VoteRound      types.Round   `json:"vote_round"`
	HighQCRound    types.Round   `json:"high_qc_round"`
	CommittedRound types.Round   `json:"committed_round"`
	CommittedID    types.BlockID `json:"committed_id"`
}

func Status(ctx *rpctypes.Context) (*ResultStatus, error) {
	rs := env.Consensus.GetRoundState()
	st := env.Consensus.GetState()
	return &ResultStatus{
		ChainID:        st.ChainID,
		CurRound:       rs.CurRound,
		VoteRound:      rs.VoteRound,
		HighQCRound:    rs.HighQC.Round,
		CommittedRound: rs.CommittedRound,
		CommittedID:    rs.CommittedBlock.Hash(),
	}, nil
}

func RoundState(ctx *rpctypes.Context) (*cstypes.RoundStateSimple, error) {
	simple := env.Consensus.GetRoundState().RoundStateSimple()
	return &simple, nil
}

type ResultBlock struct {
	Round    types.Round   `json:"round"`
	BlockID  types.BlockID `json:"block_id"`
	ParentID types.BlockID `json:"parent_id"`
	Proposer types.Address `json:"proposer"`
	TxNum    int           `json:"tx_num"`
}

type ResultChain struct {
	Blocks    []ResultBlock       `json:"blocks"`
	Intervals ResultRoundInterval `json:"intervals"`
}

// ResultRoundInterval aggregates the proposal-time gaps between consecutive
// committed blocks, in seconds.
type ResultRoundInterval struct {
	BlockNum   int     `json:"block_num"`
	MaxSeconds float64 `json:"max_seconds"`
	MinSeconds float64 `json:"min_seconds"`
	MedSeconds float64 `json:"med_seconds"`
	AvgSeconds float64 `json:"avg_seconds"`
}

// Chain returns the committed blocks in [from, to] plus interval statistics.
// A zero "to" means the latest committed round.
func Chain(ctx *rpctypes.Context, from, to int64) (*ResultChain, error) {
	fromRound := types.Round(from)
	if fromRound == types.RoundZero {
		fromRound = types.Round(1)
	}
	toRound := types.Round(to)
	if toRound == types.RoundZero {
		toRound = env.BlockStore.TipRound()
	}
	if toRound.Greater(env.BlockStore.TipRound()) {
		return nil, errors.Errorf("round %d not committed yet", toRound)
	}

	var blocks []ResultBlock
	var intervals []float64
	var prev *types.Block
	for r := fromRound; !r.Greater(toRound); r = r.Next() {
		block := env.BlockStore.LoadBlockByRound(r)
		if block == nil {
			// round had no committed block (timeout)
			continue
		}
		blocks = append(blocks, ResultBlock{
			Round:    block.Round,
			BlockID:  block.Hash(),
			ParentID: block.ParentID,
			Proposer: block.ProposerAddr,
			TxNum:    len(block.Data.Txs),
		})
		if prev != nil {
			intervals = append(intervals, block.ProposalTime.Sub(prev.ProposalTime).Seconds())
		}
		prev = block
	}

	return &ResultChain{
		Blocks: blocks,
		Intervals: ResultRoundInterval{
			BlockNum:   len(blocks),
			MaxSeconds: utils.Max(intervals...),
			MinSeconds: utils.Min(intervals...),
			MedSeconds: utils.Median(intervals...),
			AvgSeconds: utils.Avg(intervals...),
		},
	}, nil
}

// Block returns a committed block by round; round 0 means the latest
// committed block.
func Block(ctx *rpctypes.Context, round int64) (*ResultBlock, error) {
	r := types.Round(round)
	if r == types.RoundZero {
		r = env.BlockStore.TipRound()
	}
	block := env.BlockStore.LoadBlockByRound(r)
	if block == nil {
		return nil, errors.Errorf("no committed block at round %d", r)
	}
	return &ResultBlock{
		Round:    block.Round,
		BlockID:  block.Hash(),
		ParentID: block.ParentID,
		Proposer: block.ProposerAddr,
		TxNum:    len(block.Data.Txs),
	}, nil
}
