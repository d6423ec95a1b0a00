package blocksync

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/aptos-labs/aptos-core-sub050/network"
	"github.com/aptos-labs/aptos-core-sub050/types"
)

var (
	// ErrNoPeers: none of the certificate's voters is a known validator.
	ErrNoPeers = errors.New("no peers to retrieve blocks from")

	// ErrFetchExhausted: every retry failed and nothing is in flight.
	ErrFetchExhausted = errors.New("could not fetch block")

	// ErrFetchFailed: a peer answered with a non-success status, which
	// means the requested history is not available from the quorum.
	ErrFetchFailed = errors.New("block retrieval failed")
)

const (
	DefaultRetryInterval   = 200 * time.Millisecond
	DefaultRPCTimeout      = 2 * time.Second
	DefaultNumRetries      = 5
	DefaultRequestNumPeers = 3
	DefaultMaxBlocks       = 10
)

// Retriever fetches chains of ancestor blocks from the voters of a quorum
// certificate. The synchronous RetrieveChain blocks until the full chain is
// fetched or the fetch fails terminally; callers wanting a wall-clock bound
// must impose their own deadline around it.
type Retriever struct {
	logger    log.Logger
	transport network.Transport
	valSet    *types.ValidatorSet

	retryInterval   time.Duration
	rpcTimeout      time.Duration
	numRetries      int
	requestNumPeers int
	maxBlocks       uint64
}

type RetrieverOption func(*Retriever)

func WithRetryInterval(d time.Duration) RetrieverOption {
	return func(r *Retriever) { r.retryInterval = d }
}

func WithRPCTimeout(d time.Duration) RetrieverOption {
	return func(r *Retriever) { r.rpcTimeout = d }
}

func WithNumRetries(n int) RetrieverOption {
	return func(r *Retriever) { r.numRetries = n }
}

func WithRequestNumPeers(n int) RetrieverOption {
	return func(r *Retriever) { r.requestNumPeers = n }
}

func WithMaxBlocksToRequest(n uint64) RetrieverOption {
	return func(r *Retriever) { r.maxBlocks = n }
}

func NewRetriever(logger log.Logger, transport network.Transport, valSet *types.ValidatorSet, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		logger:          logger,
		transport:       transport,
		valSet:          valSet,
		retryInterval:   DefaultRetryInterval,
		rpcTimeout:      DefaultRPCTimeout,
		numRetries:      DefaultNumRetries,
		requestNumPeers: DefaultRequestNumPeers,
		maxBlocks:       DefaultMaxBlocks,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RetrieveChain fetches up to numBlocks ancestors starting at the block
// certified by qc and walking parent links back to targetID. The returned
// chain is ordered from the certified block backward and always ends at the
// target block.
//
// The peer set is qc's voters restricted to the known validator set; the
// preferred peer is the proposer of qc's round.
func (r *Retriever) RetrieveChain(qc *types.QuorumCert, targetID types.BlockID, numBlocks uint64) ([]*types.Block, error) {
	if numBlocks == 0 {
		return nil, errors.New("zero blocks requested")
	}
	peers := r.eligiblePeers(qc)
	if len(peers) == 0 {
		return nil, ErrNoPeers
	}
	var preferred types.Address
	if leader := r.valSet.GetLeader(qc.Round); leader != nil {
		preferred = leader.Address
	}

	var chain []*types.Block
	frontier := qc.BlockID
	remaining := numBlocks
	for remaining > 0 {
		want := remaining
		if want > r.maxBlocks {
			want = r.maxBlocks
		}
		resp, err := r.retrieveChunk(frontier, targetID, want, peers, preferred)
		if err != nil {
			return nil, err
		}
		switch resp.Status {
		case RetrievalStatusSucceeded:
			chain = append(chain, resp.Blocks...)
		case RetrievalStatusSucceededWithTarget:
			chain = append(chain, resp.Blocks...)
			remaining = 0
			continue
		default:
			return nil, errors.Wrapf(ErrFetchFailed, "peer reported %v for start %v", resp.Status, frontier)
		}
		remaining -= uint64(len(resp.Blocks))
		frontier = chain[len(chain)-1].ParentID
	}

	last := chain[len(chain)-1]
	if !last.Hash().Equal(targetID) {
		panic(fmt.Sprintf("retrieved chain ends at %v round %v, expected target %v",
			last.Hash(), last.Round, targetID))
	}
	return chain, nil
}

// retrieveChunk fetches one batch of blocks, retrying on a fixed interval
// with fresh peers until a response arrives or peers and retries run out.
// The first attempt queries only the preferred peer; later attempts fan out
// to several peers concurrently and the first response wins. Losing in-flight
// requests are not cancelled; their results are dropped.
func (r *Retriever) retrieveChunk(startID, targetID types.BlockID, numBlocks uint64, peers []types.Address, preferred types.Address) (*BlockRetrievalResponse, error) {
	req := &BlockRetrievalRequest{StartID: startID, TargetID: targetID, NumBlocks: numBlocks}
	picker := newPeerPicker(peers, preferred)

	type result struct {
		peer types.Address
		resp *BlockRetrievalResponse
		err  error
	}
	resCh := make(chan result, len(peers)+1)

	attempts := 0
	inFlight := 0
	launch := func() {
		if attempts >= r.numRetries {
			return
		}
		var batch []types.Address
		if attempts == 0 {
			if peer, ok := picker.Pick(); ok {
				batch = []types.Address{peer}
			}
		} else {
			batch = picker.PickN(r.requestNumPeers)
		}
		attempts++
		for _, peer := range batch {
			inFlight++
			go func(peer types.Address) {
				resp, err := r.request(req, peer)
				resCh <- result{peer: peer, resp: resp, err: err}
			}(peer)
		}
	}
	exhausted := func() bool {
		return attempts >= r.numRetries || picker.Len() == 0
	}

	ticker := time.NewTicker(r.retryInterval)
	defer ticker.Stop()

	launch()
	for {
		if inFlight == 0 && exhausted() {
			return nil, errors.Wrapf(ErrFetchExhausted, "start %v after %d attempts", startID, attempts)
		}
		select {
		case res := <-resCh:
			inFlight--
			if res.err != nil {
				r.logger.Debug("block retrieval attempt failed",
					"peer", fmt.Sprintf("%X", res.peer), "err", res.err)
				continue
			}
			if err := res.resp.Verify(req); err != nil {
				r.logger.Error("peer returned inconsistent chain",
					"peer", fmt.Sprintf("%X", res.peer), "err", err)
				continue
			}
			return res.resp, nil
		case <-ticker.C:
			launch()
		}
	}
}

func (r *Retriever) request(req *BlockRetrievalRequest, peer types.Address) (*BlockRetrievalResponse, error) {
	msg, err := r.transport.RequestRPC(req, peer, r.rpcTimeout)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*BlockRetrievalResponse)
	if !ok {
		return nil, errors.Errorf("unexpected response type %T", msg)
	}
	if err := resp.ValidateBasic(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *Retriever) eligiblePeers(qc *types.QuorumCert) []types.Address {
	peers := make([]types.Address, 0, len(qc.Voters))
	for _, voter := range qc.Voters {
		if r.valSet.HasAddress(voter) {
			peers = append(peers, voter)
		}
	}
	return peers
}
