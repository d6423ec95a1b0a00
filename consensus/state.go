package consensus

import (
	"fmt"
	"time"

	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	tmsync "github.com/tendermint/tendermint/libs/sync"

	"github.com/aptos-labs/aptos-core-sub050/blocksync"
	"github.com/aptos-labs/aptos-core-sub050/config"
	cstypes "github.com/aptos-labs/aptos-core-sub050/consensus/types"
	"github.com/aptos-labs/aptos-core-sub050/network"
	sm "github.com/aptos-labs/aptos-core-sub050/state"
	"github.com/aptos-labs/aptos-core-sub050/types"
)

const msgQueueSize = 1000

// Events fired on the consensus event switch.
const (
	EventNewRound = "NewRound"
	EventProposal = "Proposal"
	EventVote     = "Vote"
	EventTimeout  = "Timeout"
	EventCommit   = "Commit"
)

// msgInfo couples an inbound message with its sender; an empty sender means
// the message was generated locally.
type msgInfo struct {
	Msg    network.Message `json:"msg"`
	PeerID types.Address   `json:"peer"`
}

// ConsensusState drives one node's participation in the protocol: propose
// when leader, vote on valid proposals, time out on silence, form
// certificates, advance rounds, commit.
//
// All protocol state transitions run on the single receiveRoutine, so the
// monotonicity of CurRound, VoteRound, HighQC and the committed frontier
// holds without per-field locking; cs.mtx only guards against readers.
type ConsensusState struct {
	service.BaseService

	config *config.ConsensusConfig

	blockExec sm.BlockExecutor
	transport network.Transport
	fetcher   *blocksync.FetchManager

	privVal  types.PrivValidator
	privAddr types.Address
	valIndex int32

	mtx tmsync.RWMutex
	cstypes.RoundState
	state sm.State // view after the last committed block

	peerMsgQueue     chan msgInfo
	internalMsgQueue chan msgInfo
	roundClock       RoundClock
	eventSwitch      events.EventSwitch

	// overridable for tests
	decideProposal func(round types.Round)

	metric *consensusMetric
	done   chan struct{}
}

type ConsensusOption func(*ConsensusState)

// SetPrivValidator gives the node a signing identity. Without one the node
// follows the protocol passively (observes, commits, never votes).
func SetPrivValidator(privVal types.PrivValidator) ConsensusOption {
	return func(cs *ConsensusState) { cs.privVal = privVal }
}

// SetFetchManager wires the background ancestor fetcher; retrieved chains
// come back through the internal message queue.
func SetFetchManager(fetcher *blocksync.FetchManager) ConsensusOption {
	return func(cs *ConsensusState) { cs.fetcher = fetcher }
}

func NewConsensusState(
	cfg *config.ConsensusConfig,
	state sm.State,
	blockExec sm.BlockExecutor,
	transport network.Transport,
	options ...ConsensusOption,
) *ConsensusState {
	gen := state.GenesisBlock()
	blocks := types.NewBlockSet()
	blocks.Add(gen)

	cs := &ConsensusState{
		config:    cfg,
		blockExec: blockExec,
		transport: transport,
		RoundState: cstypes.RoundState{
			CurRound:       1,
			VoteRound:      types.RoundZero,
			EnteredRound:   types.RoundZero,
			HighQC:         types.GenesisQC(gen),
			CommittedRound: types.RoundZero,
			CommittedBlock: gen,
			Validators:     state.Validators,
			Blocks:         blocks,
			Votes:          cstypes.NewVoteSet(state.ChainID, state.Validators),
		},
		state:            state,
		peerMsgQueue:     make(chan msgInfo, msgQueueSize),
		internalMsgQueue: make(chan msgInfo, msgQueueSize),
		roundClock:       NewRoundClock(),
		eventSwitch:      events.NewEventSwitch(),
		valIndex:         -1,
		metric:           newConsensusMetric(),
		done:             make(chan struct{}),
	}
	cs.decideProposal = cs.defaultDecideProposal
	cs.BaseService = *service.NewBaseService(nil, "ConsensusState", cs)

	for _, opt := range options {
		opt(cs)
	}
	return cs
}

func (cs *ConsensusState) SetLogger(logger log.Logger) {
	cs.BaseService.Logger = logger
	if rc, ok := cs.roundClock.(*roundClock); ok {
		rc.SetLogger(logger)
	}
}

// String returns a string.
func (cs *ConsensusState) String() string {
	// better not to access shared variables
	return "ConsensusState"
}

// EventSwitch exposes the consensus events (new round, proposal, commit...)
// for reactors and tests to subscribe to.
func (cs *ConsensusState) EventSwitch() events.EventSwitch {
	return cs.eventSwitch
}

// Metric exposes the consensus metric item for registration.
func (cs *ConsensusState) Metric() *consensusMetric {
	return cs.metric
}

func (cs *ConsensusState) OnStart() error {
	if cs.privVal != nil {
		pub, err := cs.privVal.GetPubKey()
		if err != nil {
			return err
		}
		cs.privAddr = pub.Address()
		cs.valIndex, _ = cs.Validators.GetByAddress(cs.privAddr)
	}

	if err := cs.eventSwitch.Start(); err != nil {
		return err
	}
	if err := cs.roundClock.Start(); err != nil {
		return err
	}

	cs.mtx.Lock()
	cs.enterNewRound()
	cs.mtx.Unlock()

	go cs.receiveRoutine()

	if cs.config.RunDuration > 0 {
		// bounded runs stop themselves, used by test deployments
		time.AfterFunc(cs.config.RunDuration, func() {
			cs.Logger.Info("run duration elapsed, stopping")
			if err := cs.Stop(); err != nil {
				cs.Logger.Error("error stopping after bounded run", "err", err)
			}
		})
	}
	return nil
}

func (cs *ConsensusState) OnStop() {
	if err := cs.roundClock.Stop(); err != nil {
		cs.Logger.Error("failed to stop round clock", "err", err)
	}
	if err := cs.eventSwitch.Stop(); err != nil {
		cs.Logger.Error("failed to stop event switch", "err", err)
	}
}

// Wait blocks until the receive routine has exited after Stop.
func (cs *ConsensusState) Wait() {
	<-cs.done
}

// GetRoundState returns a shallow copy of the internal round state.
func (cs *ConsensusState) GetRoundState() *cstypes.RoundState {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	rs := cs.RoundState
	return &rs
}

// GetState returns the committed-frontier state.
func (cs *ConsensusState) GetState() sm.State {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	return cs.state.Copy()
}

//--------------------------------------------------------------------------------
// inbound plumbing

// Receive implements network.Receiver: messages from peers enter the
// consensus routine through here.
func (cs *ConsensusState) Receive(msg network.Message, from types.Address) {
	if !cs.IsRunning() {
		return
	}
	select {
	case cs.peerMsgQueue <- msgInfo{Msg: msg, PeerID: from}:
	default:
		cs.Logger.Debug("peer msg queue is full, dropping message", "from", from)
	}
}

// OnBlocksRetrieved implements the fetch manager's delivery callback.
func (cs *ConsensusState) OnBlocksRetrieved(qc *types.QuorumCert, blocks []*types.Block) {
	cs.sendInternalMessage(msgInfo{Msg: &retrievedBlocksMessage{QC: qc, Blocks: blocks}})
}

// sendInternalMessage feeds our own proposals, votes and fetch results into
// the receive routine without blocking it.
func (cs *ConsensusState) sendInternalMessage(mi msgInfo) {
	select {
	case cs.internalMsgQueue <- mi:
	default:
		// NOTE: using the go-routine means our votes can
		// be processed out of order.
		cs.Logger.Debug("internal msg queue is full; using a go-routine")
		go func() { cs.internalMsgQueue <- mi }()
	}
}

// receiveRoutine serializes every protocol state transition.
func (cs *ConsensusState) receiveRoutine() {
	defer close(cs.done)
	for {
		select {
		case mi := <-cs.peerMsgQueue:
			cs.handleMsg(mi)
		case mi := <-cs.internalMsgQueue:
			cs.handleMsg(mi)
		case ti := <-cs.roundClock.Chan():
			cs.handleTimeout(ti)
		case <-cs.Quit():
			return
		}
	}
}

func (cs *ConsensusState) handleMsg(mi msgInfo) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	if err := mi.Msg.ValidateBasic(); err != nil {
		cs.Logger.Debug("dropping malformed message", "from", mi.PeerID, "err", err)
		return
	}

	switch msg := mi.Msg.(type) {
	case *ProposalMessage:
		cs.handleProposal(msg.Block)
	case *VoteMessage:
		cs.handleVote(msg.Vote)
	case *TimeoutVoteMessage:
		cs.handleTimeoutVote(msg.Vote)
	case *TimeoutCertMessage:
		cs.handleTimeoutCert(msg.Cert)
	case *retrievedBlocksMessage:
		cs.handleRetrievedBlocks(msg)
	default:
		cs.Logger.Error("unknown message type", "type", fmt.Sprintf("%T", msg))
	}
}

//--------------------------------------------------------------------------------
// round entry

// enterNewRound runs the entry actions for CurRound exactly once: propose
// when leader, otherwise hand the previous round's timeout certificate to
// the leader, and arm the round timer. Caller holds cs.mtx.
func (cs *ConsensusState) enterNewRound() {
	if !cs.CurRound.Greater(cs.EnteredRound) {
		return
	}
	round := cs.CurRound
	cs.EnteredRound = round
	cs.StartTime = time.Now()
	cs.Proposal = nil

	leader := cs.Validators.GetLeader(round)
	isLeader := cs.privVal != nil && types.AddressEqual(leader.Address, cs.privAddr)
	cs.Logger.Info("entering new round", "round", round,
		"leader", leader.Address, "is_leader", isLeader)
	cs.metric.MarkRound(round, cs.StartTime, isLeader, leader.Address.String())

	// a tc for round-1 justifies proposing without a fresh qc; the new
	// leader may not have seen it
	tc := cs.HighTC
	if tc != nil && !tc.Round.Equal(round.Prev()) {
		tc = nil
	}

	if isLeader {
		cs.decideProposal(round)
	} else if tc != nil {
		if err := cs.transport.Unicast(&TimeoutCertMessage{Cert: tc}, leader.Address); err != nil {
			cs.Logger.Error("failed to forward tc to leader", "err", err)
		}
	}

	cs.roundClock.ScheduleTimeout(timeoutInfo{Duration: cs.config.RoundTimeout(), Round: round})
	cs.eventSwitch.FireEvent(EventNewRound, round)
}

// defaultDecideProposal packs a block justified by HighQC (plus the round-1
// tc after a timeout), signs it and sends it to everyone including self.
func (cs *ConsensusState) defaultDecideProposal(round types.Round) {
	var tc *types.TimeoutCert
	if cs.HighTC != nil && cs.HighTC.Round.Equal(round.Prev()) {
		tc = cs.HighTC
	}

	block := cs.blockExec.CreateProposalBlock(cs.state, round, cs.HighQC, tc, cs.privAddr)
	if err := cs.privVal.SignProposal(cs.state.ChainID, block); err != nil {
		cs.Logger.Error("failed to sign proposal", "round", round, "err", err)
		return
	}

	cs.Logger.Info("proposing block", "round", round, "id", block.Hash(), "txs", len(block.Data.Txs))
	cs.metric.MarkProposal()
	cs.sendInternalMessage(msgInfo{Msg: &ProposalMessage{Block: block}, PeerID: cs.privAddr})
	if err := cs.transport.Multicast(&ProposalMessage{Block: block}); err != nil {
		cs.Logger.Error("failed to multicast proposal", "err", err)
	}
}

//--------------------------------------------------------------------------------
// handlers

// handleProposal accepts the first block per round from that round's leader,
// folds its certificates into local state and votes when the justification
// is valid.
func (cs *ConsensusState) handleProposal(block *types.Block) {
	if block.ChainID != cs.state.ChainID {
		cs.Logger.Debug("proposal for wrong chain", "chain", block.ChainID)
		return
	}
	leader := cs.Validators.GetLeader(block.Round)
	if leader == nil || !types.AddressEqual(leader.Address, block.ProposerAddr) {
		cs.Logger.Debug("proposal from unexpected leader",
			"round", block.Round, "proposer", block.ProposerAddr)
		return
	}
	if !leader.PubKey.VerifySignature(types.ProposalSignBytes(cs.state.ChainID, block), block.Signature) {
		cs.Logger.Error("invalid proposal signature", "round", block.Round)
		return
	}
	if cs.Blocks.HasRound(block.Round) {
		cs.Logger.Debug("already have a block for this round", "round", block.Round)
		return
	}
	if err := cs.verifyQC(block.QC); err != nil {
		cs.Logger.Error("proposal carries invalid qc", "round", block.Round, "err", err)
		return
	}
	if block.TC != nil {
		if err := cs.verifyTC(block.TC); err != nil {
			cs.Logger.Error("proposal carries invalid tc", "round", block.Round, "err", err)
			return
		}
	}

	cs.Blocks.Add(block)
	if block.Round.Equal(cs.CurRound) {
		cs.Proposal = block
	}
	cs.resolveQC(block.QC)
	cs.eventSwitch.FireEvent(EventProposal, block)

	cs.advanceRound(block.QC, block.TC)
	cs.lockQC(block.QC)
	cs.tryCommit(block.QC)
	cs.enterNewRound()

	cs.tryVote(block)

	// a quorum of votes may have arrived before the block itself
	if qc := cs.Votes.TryGenQC(block.Round); qc != nil {
		_ = qc.SetCertifiedBlock(block)
		cs.advanceRound(qc, nil)
		cs.lockQC(qc)
		cs.tryCommit(qc)
		cs.enterNewRound()
	}
}

// tryVote casts at most one vote per round, only for the current round, and
// only when the block's justification covers round-1 directly or through a
// timeout certificate.
func (cs *ConsensusState) tryVote(block *types.Block) {
	round := block.Round
	if cs.privVal == nil || cs.valIndex < 0 {
		return
	}
	if !round.Equal(cs.CurRound) || !round.Greater(cs.VoteRound) {
		return
	}

	justified := block.QC.Round.Equal(round.Prev())
	if !justified && block.TC != nil && block.TC.Round.Equal(round.Prev()) {
		// after a timeout the proposal must build on at least the highest
		// qc the timing-out quorum saw
		justified = !block.TC.HighQC.Greater(block.QC)
	}
	if !justified {
		cs.Logger.Debug("proposal justification does not cover the previous round",
			"round", round, "qc_round", block.QC.Round)
		return
	}

	vote := &types.Vote{
		Round:            round,
		BlockID:          block.Hash(),
		Timestamp:        time.Now(),
		ValidatorAddress: cs.privAddr,
		ValidatorIndex:   cs.valIndex,
	}
	if err := cs.privVal.SignVote(cs.state.ChainID, vote); err != nil {
		cs.Logger.Error("failed to sign vote", "round", round, "err", err)
		return
	}
	cs.VoteRound = round
	cs.metric.MarkVote()

	// votes go to the leader of the next round, who aggregates them
	next := cs.Validators.GetLeader(round.Next())
	cs.Logger.Debug("voting", "round", round, "block", vote.BlockID, "to", next.Address)
	if err := cs.transport.Unicast(&VoteMessage{Vote: vote}, next.Address); err != nil {
		cs.Logger.Error("failed to send vote", "err", err)
	}
}

// handleVote tallies a vote; at quorum, with the voted block known locally,
// it forms the round's quorum certificate.
func (cs *ConsensusState) handleVote(vote *types.Vote) {
	_, val := cs.Validators.GetByAddress(vote.ValidatorAddress)
	if val == nil {
		cs.Logger.Debug("vote from unknown validator", "addr", vote.ValidatorAddress)
		return
	}
	if !val.PubKey.VerifySignature(types.VoteSignBytes(cs.state.ChainID, vote), vote.Signature) {
		cs.Logger.Error("invalid vote signature", "round", vote.Round, "addr", vote.ValidatorAddress)
		return
	}

	added, err := cs.Votes.AddVote(vote)
	if err != nil {
		cs.Logger.Error("rejected vote", "round", vote.Round, "err", err)
		return
	}
	if !added {
		return
	}
	cs.eventSwitch.FireEvent(EventVote, vote)

	qc := cs.Votes.TryGenQC(vote.Round)
	if qc == nil {
		return
	}
	if blk := cs.Blocks.GetByID(qc.BlockID); blk != nil {
		_ = qc.SetCertifiedBlock(blk)
	} else {
		// quorum reached but the block never arrived here
		cs.Logger.Debug("qc formed for unknown block", "round", qc.Round, "id", qc.BlockID)
		cs.fetchAncestors(qc)
		return
	}

	cs.Logger.Info("formed qc", "round", qc.Round, "id", qc.BlockID)
	cs.advanceRound(qc, nil)
	cs.lockQC(qc)
	cs.tryCommit(qc)
	cs.enterNewRound()
}

// handleTimeout reacts to the round timer: if the round is still current,
// stop voting in it and multicast a timeout vote carrying our highest qc.
func (cs *ConsensusState) handleTimeout(ti timeoutInfo) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	if !ti.Round.Equal(cs.CurRound) {
		// stale firing for a round we already left
		return
	}
	cs.Logger.Info("round timed out", "round", ti.Round)
	cs.metric.MarkTimeout()
	if ti.Round.Greater(cs.VoteRound) {
		cs.VoteRound = ti.Round
	}
	cs.eventSwitch.FireEvent(EventTimeout, ti.Round)

	if cs.privVal == nil || cs.valIndex < 0 {
		return
	}
	vote := &types.TimeoutVote{
		Round:            ti.Round,
		HighQC:           cs.HighQC,
		Timestamp:        time.Now(),
		ValidatorAddress: cs.privAddr,
		ValidatorIndex:   cs.valIndex,
	}
	if err := cs.privVal.SignTimeoutVote(cs.state.ChainID, vote); err != nil {
		cs.Logger.Error("failed to sign timeout vote", "round", ti.Round, "err", err)
		return
	}

	cs.sendInternalMessage(msgInfo{Msg: &TimeoutVoteMessage{Vote: vote}, PeerID: cs.privAddr})
	if err := cs.transport.Multicast(&TimeoutVoteMessage{Vote: vote}); err != nil {
		cs.Logger.Error("failed to multicast timeout vote", "err", err)
	}
}

// handleTimeoutVote tallies a timeout vote, forming the round's timeout
// certificate at quorum, and folds the vote's qc into local state either way.
func (cs *ConsensusState) handleTimeoutVote(vote *types.TimeoutVote) {
	_, val := cs.Validators.GetByAddress(vote.ValidatorAddress)
	if val == nil {
		cs.Logger.Debug("timeout vote from unknown validator", "addr", vote.ValidatorAddress)
		return
	}
	if !val.PubKey.VerifySignature(types.TimeoutVoteSignBytes(cs.state.ChainID, vote), vote.Signature) {
		cs.Logger.Error("invalid timeout vote signature", "round", vote.Round)
		return
	}

	if _, err := cs.Votes.AddTimeoutVote(vote); err != nil {
		cs.Logger.Debug("rejected timeout vote", "round", vote.Round, "err", err)
		return
	}

	if tc := cs.Votes.TryGenTC(vote.Round); tc != nil {
		if cs.HighTC == nil || tc.Round.Greater(cs.HighTC.Round) {
			cs.Logger.Info("formed tc", "round", tc.Round, "high_qc", tc.HighQC.Round)
			cs.HighTC = tc
		}
	}

	cs.resolveQC(vote.HighQC)
	cs.advanceRound(vote.HighQC, cs.HighTC)
	cs.lockQC(vote.HighQC)
	cs.tryCommit(vote.HighQC)
	cs.enterNewRound()
}

// handleTimeoutCert adopts a higher timeout certificate observed from a peer.
func (cs *ConsensusState) handleTimeoutCert(tc *types.TimeoutCert) {
	if err := cs.verifyTC(tc); err != nil {
		cs.Logger.Error("invalid timeout cert", "round", tc.Round, "err", err)
		return
	}
	if cs.HighTC == nil || tc.Round.Greater(cs.HighTC.Round) {
		cs.HighTC = tc
	}

	cs.resolveQC(tc.HighQC)
	cs.advanceRound(nil, tc)
	cs.lockQC(tc.HighQC)
	cs.tryCommit(tc.HighQC)
	cs.enterNewRound()
}

// handleRetrievedBlocks folds a fetched ancestor chain into the block cache
// and retries the commit that was blocked on the missing history.
func (cs *ConsensusState) handleRetrievedBlocks(msg *retrievedBlocksMessage) {
	// fetched chains are ordered newest first
	for i := len(msg.Blocks) - 1; i >= 0; i-- {
		cs.Blocks.Add(msg.Blocks[i])
	}
	cs.Logger.Info("fetched missing ancestors", "n", len(msg.Blocks), "qc", msg.QC.Round)

	cs.resolveQC(msg.QC)
	cs.advanceRound(msg.QC, nil)
	cs.lockQC(msg.QC)
	cs.tryCommit(msg.QC)
	cs.enterNewRound()
}

//--------------------------------------------------------------------------------
// state transitions

// advanceRound moves CurRound past any round certified by a qc or tc. It
// never decreases CurRound.
func (cs *ConsensusState) advanceRound(qc *types.QuorumCert, tc *types.TimeoutCert) {
	if qc != nil && qc.Round.Next().Greater(cs.CurRound) {
		cs.CurRound = qc.Round.Next()
	}
	if tc != nil && tc.Round.Next().Greater(cs.CurRound) {
		cs.CurRound = tc.Round.Next()
	}
}

// lockQC raises HighQC; it never decreases.
func (cs *ConsensusState) lockQC(qc *types.QuorumCert) {
	if qc == nil {
		return
	}
	cs.HighQC = types.MaxQC(cs.HighQC, qc)
	cs.metric.MarkHighQC(cs.HighQC.Round)
}

// tryCommit applies the direct-commit rule: when qc's certified block and
// its parent sit in consecutive rounds, the parent and all its uncommitted
// ancestors become final.
func (cs *ConsensusState) tryCommit(qc *types.QuorumCert) {
	if qc == nil || qc.IsGenesis() {
		return
	}
	certified := cs.Blocks.GetByID(qc.BlockID)
	if certified == nil {
		cs.fetchAncestors(qc)
		return
	}
	if certified.IsGenesis() {
		return
	}
	parent := cs.Blocks.GetByID(certified.ParentID)
	if parent == nil {
		cs.fetchAncestors(certified.QC)
		return
	}
	if !parent.Round.Equal(certified.Round.Prev()) {
		// rounds not adjacent: the parent was certified after a timeout
		// gap and is not yet safe to commit
		return
	}
	cs.commitBlock(parent)
}

// commitBlock finalizes b and every uncommitted ancestor, oldest first. The
// chain from b must reach the previously committed block; anything else is a
// fork and therefore fatal.
func (cs *ConsensusState) commitBlock(b *types.Block) {
	if !b.Round.Greater(cs.CommittedRound) {
		// already final
		return
	}

	var toCommit []*types.Block
	cur := b
	for cur.Round.Greater(cs.CommittedRound) {
		toCommit = append(toCommit, cur)
		parent := cs.Blocks.GetByID(cur.ParentID)
		if parent == nil {
			cs.Logger.Error("SAFETY VIOLATION: commit chain has a hole",
				"round", cur.Round, "missing_parent", cur.ParentID,
				"committed_round", cs.CommittedRound)
			panic(fmt.Sprintf("safety violation: missing ancestor %v of block at round %v (committed round %v)",
				cur.ParentID, cur.Round, cs.CommittedRound))
		}
		cur = parent
	}
	if !cur.Round.Equal(cs.CommittedRound) || !cur.Hash().Equal(cs.CommittedBlock.Hash()) {
		cs.Logger.Error("SAFETY VIOLATION: commit chain does not pass through the last committed block",
			"committed_round", cs.CommittedRound, "committed_id", cs.CommittedBlock.Hash(),
			"ancestor_round", cur.Round, "ancestor_id", cur.Hash(), "new_round", b.Round)
		panic(fmt.Sprintf("safety violation: block at round %v does not descend from committed block at round %v",
			b.Round, cs.CommittedRound))
	}

	// apply oldest first so the frontier only moves forward
	for i := len(toCommit) - 1; i >= 0; i-- {
		blk := toCommit[i]
		newState, err := cs.blockExec.ApplyBlock(cs.state, blk)
		if err != nil {
			panic(fmt.Sprintf("failed to apply committed block at round %v: %v", blk.Round, err))
		}
		cs.state = newState
		cs.eventSwitch.FireEvent(EventCommit, blk)
	}

	cs.CommittedBlock = b
	cs.CommittedRound = b.Round
	cs.metric.MarkCommitted(b.Round, int64(len(toCommit)))
	cs.Logger.Info("committed", "round", b.Round, "id", b.Hash(), "blocks", len(toCommit))

	cs.Blocks.PruneBelow(cs.CommittedRound)
	cs.Votes.PruneBelow(cs.CommittedRound)
}

// fetchAncestors schedules a background fetch of the chain between qc's
// certified block and the committed frontier.
func (cs *ConsensusState) fetchAncestors(qc *types.QuorumCert) {
	if cs.fetcher == nil {
		cs.Logger.Debug("missing ancestors and no fetcher configured", "qc", qc.Round)
		return
	}
	if !qc.Round.Greater(cs.CommittedRound) {
		return
	}
	// the chunk count includes the target block itself
	numBlocks := uint64(qc.Round.Int64()-cs.CommittedRound.Int64()) + 1
	cs.fetcher.FetchChain(qc, cs.CommittedBlock.Hash(), numBlocks)
}

//--------------------------------------------------------------------------------
// certificate verification

func (cs *ConsensusState) verifyQC(qc *types.QuorumCert) error {
	if qc == nil {
		return fmt.Errorf("nil qc")
	}
	if err := qc.ValidateBasic(); err != nil {
		return err
	}
	if qc.IsGenesis() {
		genesis := cs.state.GenesisBlock()
		if !qc.BlockID.Equal(genesis.Hash()) {
			return fmt.Errorf("genesis qc for foreign chain")
		}
		return nil
	}
	seen := make(map[string]struct{}, len(qc.Voters))
	for _, voter := range qc.Voters {
		if !cs.Validators.HasAddress(voter) {
			return fmt.Errorf("voter %X not in validator set", voter)
		}
		if _, dup := seen[string(voter)]; dup {
			return fmt.Errorf("duplicate voter %X", voter)
		}
		seen[string(voter)] = struct{}{}
	}
	if len(qc.Voters) < cs.Validators.QuorumSize() {
		return fmt.Errorf("qc has %d voters, quorum is %d", len(qc.Voters), cs.Validators.QuorumSize())
	}
	return nil
}

func (cs *ConsensusState) verifyTC(tc *types.TimeoutCert) error {
	if tc == nil {
		return fmt.Errorf("nil tc")
	}
	if err := tc.ValidateBasic(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(tc.Voters))
	for _, voter := range tc.Voters {
		if !cs.Validators.HasAddress(voter) {
			return fmt.Errorf("voter %X not in validator set", voter)
		}
		if _, dup := seen[string(voter)]; dup {
			return fmt.Errorf("duplicate voter %X", voter)
		}
		seen[string(voter)] = struct{}{}
	}
	if len(tc.Voters) < cs.Validators.QuorumSize() {
		return fmt.Errorf("tc has %d voters, quorum is %d", len(tc.Voters), cs.Validators.QuorumSize())
	}
	return cs.verifyQC(tc.HighQC)
}

// resolveQC links a certificate to its locally known block, if any.
func (cs *ConsensusState) resolveQC(qc *types.QuorumCert) {
	if qc == nil || qc.CertifiedBlock() != nil {
		return
	}
	if blk := cs.Blocks.GetByID(qc.BlockID); blk != nil {
		_ = qc.SetCertifiedBlock(blk)
	}
}
