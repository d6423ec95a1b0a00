package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
	tmsync "github.com/tendermint/tendermint/libs/sync"
	tmdb "github.com/tendermint/tm-db"

	"github.com/aptos-labs/aptos-core-sub050/blocksync"
	"github.com/aptos-labs/aptos-core-sub050/config"
	mpmock "github.com/aptos-labs/aptos-core-sub050/mempool/mock"
	"github.com/aptos-labs/aptos-core-sub050/network"
	sm "github.com/aptos-labs/aptos-core-sub050/state"
	"github.com/aptos-labs/aptos-core-sub050/store"
	"github.com/aptos-labs/aptos-core-sub050/types"
)

//--------------------------------------------------------------------------------
// helpers

// recordingTransport captures outbound traffic without delivering it.
type recordingTransport struct {
	mtx        tmsync.Mutex
	unicasts   []sentMsg
	multicasts []network.Message
	size       int
}

type sentMsg struct {
	msg    network.Message
	target types.Address
}

var _ network.Transport = (*recordingTransport)(nil)

func (t *recordingTransport) Unicast(msg network.Message, target types.Address) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.unicasts = append(t.unicasts, sentMsg{msg: msg, target: target})
	return nil
}

func (t *recordingTransport) Multicast(msg network.Message) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.multicasts = append(t.multicasts, msg)
	return nil
}

func (t *recordingTransport) RequestRPC(network.Message, types.Address, time.Duration) (network.Message, error) {
	return nil, network.ErrPeerUnreachable
}

func (t *recordingTransport) Size() int                        { return t.size }
func (t *recordingTransport) SetReceiver(network.Receiver)     {}
func (t *recordingTransport) SetRPCHandler(network.RPCHandler) {}

func (t *recordingTransport) multicastCount() int {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return len(t.multicasts)
}

func (t *recordingTransport) lastMulticast() network.Message {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if len(t.multicasts) == 0 {
		return nil
	}
	return t.multicasts[len(t.multicasts)-1]
}

func (t *recordingTransport) lastUnicast() (network.Message, types.Address) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if len(t.unicasts) == 0 {
		return nil, nil
	}
	last := t.unicasts[len(t.unicasts)-1]
	return last.msg, last.target
}

func (t *recordingTransport) unicastCount() int {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return len(t.unicasts)
}

func makeGenesisState(t *testing.T, n int) (sm.State, []types.PrivValidator) {
	t.Helper()

	valSet, privs := types.RandValidatorSet(n)
	genVals := make([]types.GenesisValidator, 0, n)
	valSet.Iterate(func(_ int, val *types.Validator) bool {
		genVals = append(genVals, types.GenesisValidator{
			Address: val.Address,
			PubKey:  val.PubKey,
		})
		return false
	})
	genDoc := &types.GenesisDoc{
		GenesisTime: time.Unix(0, 0),
		ChainID:     "test-chain",
		Validators:  genVals,
	}
	st, err := sm.MakeGenesisState(genDoc)
	require.NoError(t, err)
	return st, privs
}

func privOf(t *testing.T, privs []types.PrivValidator, addr types.Address) types.PrivValidator {
	t.Helper()
	for _, p := range privs {
		pub, err := p.GetPubKey()
		require.NoError(t, err)
		if types.AddressEqual(pub.Address(), addr) {
			return p
		}
	}
	t.Fatalf("no priv validator for %X", addr)
	return nil
}

func newTestCS(t *testing.T, st sm.State, priv types.PrivValidator, transport network.Transport) *ConsensusState {
	t.Helper()

	exec := sm.NewBlockExecutor(
		sm.NewStore(tmdb.NewMemDB()),
		store.NewBlockStore(tmdb.NewMemDB(), log.TestingLogger()),
		mpmock.Mempool{},
	)
	cs := NewConsensusState(config.TestConsensusConfig(), st, exec, transport,
		SetPrivValidator(priv))
	cs.SetLogger(log.TestingLogger())
	return cs
}

// identity derivation normally happens in OnStart; tests that drive handlers
// directly need it up front.
func initIdentity(t *testing.T, cs *ConsensusState) {
	t.Helper()
	pub, err := cs.privVal.GetPubKey()
	require.NoError(t, err)
	cs.privAddr = pub.Address()
	cs.valIndex, _ = cs.Validators.GetByAddress(cs.privAddr)
	require.True(t, cs.valIndex >= 0)
}

func enterRound(cs *ConsensusState) {
	cs.mtx.Lock()
	cs.enterNewRound()
	cs.mtx.Unlock()
}

func deliver(cs *ConsensusState, msg network.Message, from types.Address) {
	cs.handleMsg(msgInfo{Msg: msg, PeerID: from})
}

func makeQC(st sm.State, block *types.Block) *types.QuorumCert {
	voters := make([]types.Address, 0, st.Validators.QuorumSize())
	st.Validators.Iterate(func(i int, val *types.Validator) bool {
		voters = append(voters, val.Address)
		return len(voters) == st.Validators.QuorumSize()
	})
	return types.NewQuorumCert(block, voters)
}

func makeTC(st sm.State, round types.Round, highQC *types.QuorumCert) *types.TimeoutCert {
	voters := make([]types.Address, 0, st.Validators.QuorumSize())
	st.Validators.Iterate(func(i int, val *types.Validator) bool {
		voters = append(voters, val.Address)
		return len(voters) == st.Validators.QuorumSize()
	})
	return types.NewTimeoutCert(round, highQC, voters)
}

func signedProposal(t *testing.T, st sm.State, privs []types.PrivValidator,
	round types.Round, qc *types.QuorumCert, tc *types.TimeoutCert) *types.Block {
	t.Helper()
	leader := st.Validators.GetLeader(round)
	block := types.MakeBlock(st.ChainID, round, qc, tc, nil, leader.Address)
	require.NoError(t, privOf(t, privs, leader.Address).SignProposal(st.ChainID, block))
	return block
}

func signedTestVote(t *testing.T, st sm.State, privs []types.PrivValidator,
	index int32, round types.Round, blockID types.BlockID) *types.Vote {
	t.Helper()
	addr, _ := st.Validators.GetByIndex(index)
	vote := &types.Vote{
		Round:            round,
		BlockID:          blockID,
		Timestamp:        time.Now(),
		ValidatorAddress: addr,
		ValidatorIndex:   index,
	}
	require.NoError(t, privOf(t, privs, addr).SignVote(st.ChainID, vote))
	return vote
}

func signedTestTimeoutVote(t *testing.T, st sm.State, privs []types.PrivValidator,
	index int32, round types.Round, highQC *types.QuorumCert) *types.TimeoutVote {
	t.Helper()
	addr, _ := st.Validators.GetByIndex(index)
	tv := &types.TimeoutVote{
		Round:            round,
		HighQC:           highQC,
		Timestamp:        time.Now(),
		ValidatorAddress: addr,
		ValidatorIndex:   index,
	}
	require.NoError(t, privOf(t, privs, addr).SignTimeoutVote(st.ChainID, tv))
	return tv
}

//--------------------------------------------------------------------------------
// round entry

func TestEnterRoundProposes(t *testing.T) {
	st, privs := makeGenesisState(t, 4)
	leader := st.Validators.GetLeader(1)
	trans := &recordingTransport{size: 4}
	cs := newTestCS(t, st, privOf(t, privs, leader.Address), trans)
	initIdentity(t, cs)

	enterRound(cs)

	rs := cs.GetRoundState()
	assert.EqualValues(t, 1, rs.CurRound.Int64())
	assert.EqualValues(t, 1, rs.EnteredRound.Int64())

	require.Equal(t, 1, trans.multicastCount())
	prop, ok := trans.lastMulticast().(*ProposalMessage)
	require.True(t, ok)
	assert.EqualValues(t, 1, prop.Block.Round.Int64())
	assert.True(t, prop.Block.QC.IsGenesis())
	assert.NotEmpty(t, prop.Block.Signature)

	// entry actions run once per round
	enterRound(cs)
	assert.Equal(t, 1, trans.multicastCount())
}

func TestEnterRoundNonLeaderStaysQuiet(t *testing.T) {
	st, privs := makeGenesisState(t, 4)
	leader := st.Validators.GetLeader(1)
	var priv types.PrivValidator
	st.Validators.Iterate(func(_ int, val *types.Validator) bool {
		if !types.AddressEqual(val.Address, leader.Address) {
			priv = privOf(t, privs, val.Address)
			return true
		}
		return false
	})
	trans := &recordingTransport{size: 4}
	cs := newTestCS(t, st, priv, trans)
	initIdentity(t, cs)

	enterRound(cs)
	assert.Equal(t, 0, trans.multicastCount())
	assert.Equal(t, 0, trans.unicastCount())
}

//--------------------------------------------------------------------------------
// proposals and votes

func TestVoteOnProposal(t *testing.T) {
	st, privs := makeGenesisState(t, 4)
	leader1 := st.Validators.GetLeader(1)
	leader2 := st.Validators.GetLeader(2)

	// a node that neither proposes round 1 nor collects its votes
	var priv types.PrivValidator
	st.Validators.Iterate(func(_ int, val *types.Validator) bool {
		if !types.AddressEqual(val.Address, leader1.Address) &&
			!types.AddressEqual(val.Address, leader2.Address) {
			priv = privOf(t, privs, val.Address)
			return true
		}
		return false
	})
	trans := &recordingTransport{size: 4}
	cs := newTestCS(t, st, priv, trans)
	initIdentity(t, cs)
	enterRound(cs)

	gen := st.GenesisBlock()
	block := signedProposal(t, st, privs, 1, types.GenesisQC(gen), nil)
	deliver(cs, &ProposalMessage{Block: block}, leader1.Address)

	rs := cs.GetRoundState()
	assert.EqualValues(t, 1, rs.VoteRound.Int64())
	require.Equal(t, 1, trans.unicastCount())
	msg, target := trans.lastUnicast()
	vote, ok := msg.(*VoteMessage)
	require.True(t, ok)
	assert.True(t, vote.Vote.BlockID.Equal(block.Hash()))
	assert.True(t, types.AddressEqual(target, leader2.Address), "vote goes to the next leader")

	// a second block for the same round is ignored
	other := types.MakeBlock(st.ChainID, 1, types.GenesisQC(gen), nil, types.Txs{types.Tx("x")}, leader1.Address)
	require.NoError(t, privOf(t, privs, leader1.Address).SignProposal(st.ChainID, other))
	deliver(cs, &ProposalMessage{Block: other}, leader1.Address)
	assert.Equal(t, 1, trans.unicastCount())
}

func TestProposalFromWrongLeaderRejected(t *testing.T) {
	st, privs := makeGenesisState(t, 4)
	leader1 := st.Validators.GetLeader(1)

	var impostor *types.Validator
	st.Validators.Iterate(func(_ int, val *types.Validator) bool {
		if !types.AddressEqual(val.Address, leader1.Address) {
			impostor = val
			return true
		}
		return false
	})

	trans := &recordingTransport{size: 4}
	cs := newTestCS(t, st, privs[0], trans)
	initIdentity(t, cs)
	enterRound(cs)
	before := trans.unicastCount()

	gen := st.GenesisBlock()
	block := types.MakeBlock(st.ChainID, 1, types.GenesisQC(gen), nil, nil, impostor.Address)
	require.NoError(t, privOf(t, privs, impostor.Address).SignProposal(st.ChainID, block))
	deliver(cs, &ProposalMessage{Block: block}, impostor.Address)

	assert.EqualValues(t, 0, cs.GetRoundState().VoteRound.Int64())
	assert.Equal(t, before, trans.unicastCount())
	assert.Nil(t, cs.GetRoundState().Blocks.GetByRound(1))
}

func TestVoteQuorumFormsQC(t *testing.T) {
	st, privs := makeGenesisState(t, 4)
	leader2 := st.Validators.GetLeader(2)
	trans := &recordingTransport{size: 4}
	cs := newTestCS(t, st, privOf(t, privs, leader2.Address), trans)
	initIdentity(t, cs)
	enterRound(cs)

	gen := st.GenesisBlock()
	block := signedProposal(t, st, privs, 1, types.GenesisQC(gen), nil)
	deliver(cs, &ProposalMessage{Block: block}, block.ProposerAddr)
	proposalsBefore := trans.multicastCount()

	// two votes are below the 3-of-4 quorum
	for i := int32(0); i < 2; i++ {
		deliver(cs, &VoteMessage{Vote: signedTestVote(t, st, privs, i, 1, block.Hash())}, nil)
	}
	assert.EqualValues(t, 1, cs.GetRoundState().CurRound.Int64())
	assert.True(t, cs.GetRoundState().HighQC.IsGenesis())

	deliver(cs, &VoteMessage{Vote: signedTestVote(t, st, privs, 2, 1, block.Hash())}, nil)

	rs := cs.GetRoundState()
	assert.EqualValues(t, 2, rs.CurRound.Int64())
	assert.EqualValues(t, 1, rs.HighQC.Round.Int64())
	assert.True(t, rs.HighQC.BlockID.Equal(block.Hash()))

	// as leader of round 2 the node proposes on top of the fresh qc
	require.Greater(t, trans.multicastCount(), proposalsBefore)
	prop, ok := trans.lastMulticast().(*ProposalMessage)
	require.True(t, ok)
	assert.EqualValues(t, 2, prop.Block.Round.Int64())
	assert.True(t, prop.Block.ParentID.Equal(block.Hash()))
}

//--------------------------------------------------------------------------------
// timeouts

func TestRoundTimeoutBroadcastsTimeoutVote(t *testing.T) {
	st, privs := makeGenesisState(t, 4)
	trans := &recordingTransport{size: 4}
	cs := newTestCS(t, st, privs[0], trans)
	initIdentity(t, cs)
	enterRound(cs)
	before := trans.multicastCount()

	cs.handleTimeout(timeoutInfo{Duration: time.Millisecond, Round: 1})

	rs := cs.GetRoundState()
	assert.EqualValues(t, 1, rs.VoteRound.Int64(), "timed-out round can no longer be voted")
	require.Equal(t, before+1, trans.multicastCount())
	tv, ok := trans.lastMulticast().(*TimeoutVoteMessage)
	require.True(t, ok)
	assert.EqualValues(t, 1, tv.Vote.Round.Int64())
	assert.True(t, tv.Vote.HighQC.IsGenesis())

	// a stale firing for a round already left is ignored
	cs.handleTimeout(timeoutInfo{Duration: time.Millisecond, Round: 0})
	assert.Equal(t, before+1, trans.multicastCount())
}

func TestTimeoutQuorumFormsTC(t *testing.T) {
	st, privs := makeGenesisState(t, 4)
	leader2 := st.Validators.GetLeader(2)

	var priv types.PrivValidator
	st.Validators.Iterate(func(_ int, val *types.Validator) bool {
		if !types.AddressEqual(val.Address, leader2.Address) {
			priv = privOf(t, privs, val.Address)
			return true
		}
		return false
	})
	trans := &recordingTransport{size: 4}
	cs := newTestCS(t, st, priv, trans)
	initIdentity(t, cs)
	enterRound(cs)

	gen := st.GenesisBlock()
	genQC := types.GenesisQC(gen)
	for i := int32(0); i < 3; i++ {
		deliver(cs, &TimeoutVoteMessage{Vote: signedTestTimeoutVote(t, st, privs, i, 1, genQC)}, nil)
	}

	rs := cs.GetRoundState()
	require.NotNil(t, rs.HighTC)
	assert.EqualValues(t, 1, rs.HighTC.Round.Int64())
	assert.EqualValues(t, 2, rs.CurRound.Int64())

	// a non-leader entering via tc hands it to the new leader
	found := false
	trans.mtx.Lock()
	for _, sent := range trans.unicasts {
		if _, ok := sent.msg.(*TimeoutCertMessage); ok && types.AddressEqual(sent.target, leader2.Address) {
			found = true
		}
	}
	trans.mtx.Unlock()
	assert.True(t, found, "tc forwarded to the round-2 leader")

	// round 2 proposal justified by the tc gets a vote
	block := signedProposal(t, st, privs, 2, genQC, rs.HighTC)
	deliver(cs, &ProposalMessage{Block: block}, block.ProposerAddr)
	assert.EqualValues(t, 2, cs.GetRoundState().VoteRound.Int64())
}

func TestProposalNotCoveredByTCRejected(t *testing.T) {
	st, privs := makeGenesisState(t, 4)
	trans := &recordingTransport{size: 4}
	cs := newTestCS(t, st, privs[0], trans)
	initIdentity(t, cs)
	enterRound(cs)

	gen := st.GenesisBlock()
	genQC := types.GenesisQC(gen)

	// a chain with a certified round-1 block the proposer pretends not to know
	b1 := signedProposal(t, st, privs, 1, genQC, nil)
	deliver(cs, &ProposalMessage{Block: b1}, b1.ProposerAddr)
	qc1 := makeQC(st, b1)

	tc2 := makeTC(st, 2, qc1)
	deliver(cs, &TimeoutCertMessage{Cert: tc2}, nil)
	require.EqualValues(t, 3, cs.GetRoundState().CurRound.Int64())
	before := cs.GetRoundState().VoteRound

	// round 3 proposal extending genesis despite the tc's high qc at round 1
	block := signedProposal(t, st, privs, 3, genQC, tc2)
	deliver(cs, &ProposalMessage{Block: block}, block.ProposerAddr)
	assert.EqualValues(t, before.Int64(), cs.GetRoundState().VoteRound.Int64(),
		"proposal below the tc's high qc must not be voted")
}

func TestTimeoutCertAdvancesRound(t *testing.T) {
	st, privs := makeGenesisState(t, 4)
	trans := &recordingTransport{size: 4}
	cs := newTestCS(t, st, privs[0], trans)
	initIdentity(t, cs)
	enterRound(cs)

	gen := st.GenesisBlock()
	tc5 := makeTC(st, 5, types.GenesisQC(gen))
	deliver(cs, &TimeoutCertMessage{Cert: tc5}, nil)

	rs := cs.GetRoundState()
	assert.EqualValues(t, 6, rs.CurRound.Int64())
	require.NotNil(t, rs.HighTC)
	assert.EqualValues(t, 5, rs.HighTC.Round.Int64())

	// an older tc neither regresses the round nor replaces the high tc
	tc2 := makeTC(st, 2, types.GenesisQC(gen))
	deliver(cs, &TimeoutCertMessage{Cert: tc2}, nil)
	rs = cs.GetRoundState()
	assert.EqualValues(t, 6, rs.CurRound.Int64())
	assert.EqualValues(t, 5, rs.HighTC.Round.Int64())
}

//--------------------------------------------------------------------------------
// the commit rule

func TestTwoChainCommit(t *testing.T) {
	st, privs := makeGenesisState(t, 4)
	trans := &recordingTransport{size: 4}
	cs := newTestCS(t, st, privs[0], trans)
	initIdentity(t, cs)
	enterRound(cs)

	gen := st.GenesisBlock()

	b1 := signedProposal(t, st, privs, 1, types.GenesisQC(gen), nil)
	deliver(cs, &ProposalMessage{Block: b1}, b1.ProposerAddr)
	assert.EqualValues(t, 0, cs.GetRoundState().CommittedRound.Int64())

	b2 := signedProposal(t, st, privs, 2, makeQC(st, b1), nil)
	deliver(cs, &ProposalMessage{Block: b2}, b2.ProposerAddr)
	assert.EqualValues(t, 0, cs.GetRoundState().CommittedRound.Int64(),
		"one qc certifies, two adjacent qcs commit")

	b3 := signedProposal(t, st, privs, 3, makeQC(st, b2), nil)
	deliver(cs, &ProposalMessage{Block: b3}, b3.ProposerAddr)
	rs := cs.GetRoundState()
	assert.EqualValues(t, 1, rs.CommittedRound.Int64())
	assert.True(t, rs.CommittedBlock.Hash().Equal(b1.Hash()))
	assert.True(t, cs.GetState().LastCommittedID.Equal(b1.Hash()))

	// round 4 timed out: b5 extends b3 under tc cover, committing b2
	qc3 := makeQC(st, b3)
	b5 := signedProposal(t, st, privs, 5, qc3, makeTC(st, 4, qc3))
	deliver(cs, &ProposalMessage{Block: b5}, b5.ProposerAddr)
	assert.EqualValues(t, 2, cs.GetRoundState().CommittedRound.Int64())

	// qc5 certifies b5 but its parent sits at round 3: not adjacent, no commit
	b6 := signedProposal(t, st, privs, 6, makeQC(st, b5), nil)
	deliver(cs, &ProposalMessage{Block: b6}, b6.ProposerAddr)
	assert.EqualValues(t, 2, cs.GetRoundState().CommittedRound.Int64())

	// qc6 over b6 commits b5 together with its uncommitted ancestor b3
	b7 := signedProposal(t, st, privs, 7, makeQC(st, b6), nil)
	deliver(cs, &ProposalMessage{Block: b7}, b7.ProposerAddr)
	rs = cs.GetRoundState()
	assert.EqualValues(t, 5, rs.CommittedRound.Int64())
	assert.True(t, rs.CommittedBlock.Hash().Equal(b5.Hash()))

	frontier := cs.GetState()
	assert.EqualValues(t, 5, frontier.LastCommittedRound.Int64())
	assert.True(t, frontier.LastCommittedID.Equal(b5.Hash()))
}

func TestCommitIsIdempotent(t *testing.T) {
	st, privs := makeGenesisState(t, 4)
	trans := &recordingTransport{size: 4}
	cs := newTestCS(t, st, privs[0], trans)
	initIdentity(t, cs)
	enterRound(cs)

	gen := st.GenesisBlock()
	b1 := signedProposal(t, st, privs, 1, types.GenesisQC(gen), nil)
	deliver(cs, &ProposalMessage{Block: b1}, b1.ProposerAddr)
	b2 := signedProposal(t, st, privs, 2, makeQC(st, b1), nil)
	deliver(cs, &ProposalMessage{Block: b2}, b2.ProposerAddr)
	b3 := signedProposal(t, st, privs, 3, makeQC(st, b2), nil)
	deliver(cs, &ProposalMessage{Block: b3}, b3.ProposerAddr)
	require.EqualValues(t, 1, cs.GetRoundState().CommittedRound.Int64())

	// replaying the committing certificate changes nothing
	cs.mtx.Lock()
	cs.tryCommit(b3.QC)
	cs.commitBlock(b1)
	cs.mtx.Unlock()
	assert.EqualValues(t, 1, cs.GetRoundState().CommittedRound.Int64())
}

func TestCommitForkPanics(t *testing.T) {
	st, privs := makeGenesisState(t, 4)
	trans := &recordingTransport{size: 4}
	cs := newTestCS(t, st, privs[0], trans)
	initIdentity(t, cs)
	enterRound(cs)

	gen := st.GenesisBlock()
	b1 := signedProposal(t, st, privs, 1, types.GenesisQC(gen), nil)
	deliver(cs, &ProposalMessage{Block: b1}, b1.ProposerAddr)
	b2 := signedProposal(t, st, privs, 2, makeQC(st, b1), nil)
	deliver(cs, &ProposalMessage{Block: b2}, b2.ProposerAddr)
	b3 := signedProposal(t, st, privs, 3, makeQC(st, b2), nil)
	deliver(cs, &ProposalMessage{Block: b3}, b3.ProposerAddr)
	require.EqualValues(t, 1, cs.GetRoundState().CommittedRound.Int64())

	// a conflicting round-1 block and a child extending it
	f1 := types.MakeBlock(st.ChainID, 1, types.GenesisQC(gen), nil, types.Txs{types.Tx("fork")}, b1.ProposerAddr)
	f2 := types.MakeBlock(st.ChainID, 2, makeQC(st, f1), nil, nil, b2.ProposerAddr)

	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	cs.Blocks.Add(f1)
	cs.Blocks.Add(f2)
	assert.Panics(t, func() { cs.commitBlock(f2) },
		"committing a block off the committed chain is a safety violation")
}

//--------------------------------------------------------------------------------
// catch-up via the block fetcher

func TestRetrievedChainAdvancesRound(t *testing.T) {
	st, privs := makeGenesisState(t, 4)
	trans := &recordingTransport{size: 4}
	cs := newTestCS(t, st, privs[0], trans)
	initIdentity(t, cs)
	enterRound(cs)

	gen := st.GenesisBlock()
	b1 := signedProposal(t, st, privs, 1, types.GenesisQC(gen), nil)
	b2 := signedProposal(t, st, privs, 2, makeQC(st, b1), nil)
	b3 := signedProposal(t, st, privs, 3, makeQC(st, b2), nil)
	qc3 := makeQC(st, b3)

	// the fetched chain is this node's first sight of rounds 1..3
	deliver(cs, &retrievedBlocksMessage{QC: qc3, Blocks: []*types.Block{b3, b2, b1}}, nil)

	rs := cs.GetRoundState()
	assert.EqualValues(t, 4, rs.CurRound.Int64(), "a qc learned only from a fetch still moves the round")
	assert.EqualValues(t, 3, rs.HighQC.Round.Int64())
	assert.EqualValues(t, 2, rs.CommittedRound.Int64())
	assert.True(t, rs.CommittedBlock.Hash().Equal(b2.Hash()))
}

func TestLaggingNodeFetchesAncestorsAndCommits(t *testing.T) {
	st, privs := makeGenesisState(t, 4)

	gen := st.GenesisBlock()
	b1 := signedProposal(t, st, privs, 1, types.GenesisQC(gen), nil)
	b2 := signedProposal(t, st, privs, 2, makeQC(st, b1), nil)
	b3 := signedProposal(t, st, privs, 3, makeQC(st, b2), nil)
	qc3 := makeQC(st, b3)

	// the qc's voters serve the whole chain, genesis included
	net := network.NewInmemNetwork()
	history := types.NewBlockSet()
	for _, b := range []*types.Block{gen, b1, b2, b3} {
		history.Add(b)
	}
	srv := blocksync.NewServer(log.TestingLogger(), blocksync.SetReader{Set: history})
	for _, voter := range qc3.Voters {
		net.CreateTransport(voter).SetRPCHandler(srv.HandleRequest)
	}

	// the lagging node knows nothing past genesis
	addr, _ := st.Validators.GetByIndex(3)
	transport := net.CreateTransport(addr)
	retriever := blocksync.NewRetriever(log.TestingLogger(), transport, st.Validators,
		blocksync.WithRetryInterval(10*time.Millisecond),
		blocksync.WithRPCTimeout(time.Second),
	)

	var cs *ConsensusState
	fm := blocksync.NewFetchManager(retriever, func(qc *types.QuorumCert, blocks []*types.Block) {
		cs.handleMsg(msgInfo{Msg: &retrievedBlocksMessage{QC: qc, Blocks: blocks}})
	})
	require.NoError(t, fm.Start())
	t.Cleanup(func() { _ = fm.Stop() })

	exec := sm.NewBlockExecutor(
		sm.NewStore(tmdb.NewMemDB()),
		store.NewBlockStore(tmdb.NewMemDB(), log.TestingLogger()),
		mpmock.Mempool{},
	)
	cs = NewConsensusState(config.TestConsensusConfig(), st, exec, transport,
		SetPrivValidator(privOf(t, privs, addr)),
		SetFetchManager(fm),
	)
	cs.SetLogger(log.TestingLogger())
	initIdentity(t, cs)
	enterRound(cs)

	// a round-4 proposal whose entire ancestry is unknown here triggers a
	// fetch of rounds 3..0 and, once folded in, commits through round 2
	b4 := signedProposal(t, st, privs, 4, qc3, nil)
	deliver(cs, &ProposalMessage{Block: b4}, b4.ProposerAddr)

	deadline := time.Now().Add(5 * time.Second)
	for cs.GetRoundState().CommittedRound.Int64() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("lagging node never caught up: %s", cs.GetRoundState().StringShort())
		}
		time.Sleep(10 * time.Millisecond)
	}
	rs := cs.GetRoundState()
	assert.True(t, rs.CommittedBlock.Hash().Equal(b2.Hash()))
	assert.EqualValues(t, 3, rs.HighQC.Round.Int64())
}

//--------------------------------------------------------------------------------
// full nodes over an in-memory network

type netNode struct {
	cs   *ConsensusState
	bs   store.BlockStore
	addr types.Address
}

func startTestNetwork(t *testing.T, st sm.State, privs []types.PrivValidator,
	skip map[string]bool) []*netNode {
	t.Helper()

	net := network.NewInmemNetwork()
	nodes := make([]*netNode, 0, len(privs))
	for _, priv := range privs {
		pub, err := priv.GetPubKey()
		require.NoError(t, err)
		addr := pub.Address()
		if skip[addr.String()] {
			continue
		}
		transport := net.CreateTransport(addr)
		bs := store.NewBlockStore(tmdb.NewMemDB(), log.TestingLogger())
		exec := sm.NewBlockExecutor(sm.NewStore(tmdb.NewMemDB()), bs, mpmock.Mempool{})
		cs := NewConsensusState(config.TestConsensusConfig(), st, exec, transport,
			SetPrivValidator(priv))
		cs.SetLogger(log.TestingLogger())
		transport.SetReceiver(cs)
		nodes = append(nodes, &netNode{cs: cs, bs: bs, addr: addr})
	}
	for _, node := range nodes {
		require.NoError(t, node.cs.Start())
	}
	t.Cleanup(func() {
		for _, node := range nodes {
			_ = node.cs.Stop()
		}
	})
	return nodes
}

func waitForCommit(t *testing.T, nodes []*netNode, round int64, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		done := true
		for _, node := range nodes {
			if node.cs.GetRoundState().CommittedRound.Int64() < round {
				done = false
			}
		}
		if done {
			return
		}
		if time.Now().After(deadline) {
			for _, node := range nodes {
				t.Logf("%X: %s", node.addr, node.cs.GetRoundState().StringShort())
			}
			t.Fatalf("nodes did not commit round %d within %v", round, timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNetworkCommitsHappyPath(t *testing.T) {
	st, privs := makeGenesisState(t, 4)
	nodes := startTestNetwork(t, st, privs, nil)

	waitForCommit(t, nodes, 3, 10*time.Second)

	// the slowest frontier is a block every node has committed; all stores
	// must agree on it
	minRound := nodes[0].cs.GetRoundState().CommittedRound
	for _, node := range nodes[1:] {
		if r := node.cs.GetRoundState().CommittedRound; minRound.Greater(r) {
			minRound = r
		}
	}
	var id types.BlockID
	for _, node := range nodes {
		b := node.bs.LoadBlockByRound(minRound)
		require.NotNil(t, b)
		if id == nil {
			id = b.Hash()
		}
		assert.True(t, b.Hash().Equal(id))
	}
}

func TestNetworkSurvivesDeadLeader(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timeout-path network test in short mode")
	}
	st, privs := makeGenesisState(t, 4)

	// the round-1 leader never comes up; the rest must time out, form a
	// tc and keep committing
	dead := st.Validators.GetLeader(1)
	nodes := startTestNetwork(t, st, privs, map[string]bool{dead.Address.String(): true})
	require.Len(t, nodes, 3)

	waitForCommit(t, nodes, 1, 20*time.Second)
	for _, node := range nodes {
		assert.Nil(t, node.bs.LoadBlockByRound(1), "round 1 timed out, nothing to commit there")
	}
}
