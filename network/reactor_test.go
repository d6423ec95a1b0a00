package network

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/p2p/mock"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

func startTestReactor(t *testing.T) *Reactor {
	t.Helper()
	self, _ := types.RandValidator()
	r := NewReactor(self.Address)
	r.SetLogger(log.TestingLogger())
	require.NoError(t, r.Start())
	t.Cleanup(func() { _ = r.Stop() })
	return r
}

// announce registers the mock peer under the given validator address, the
// same way a hello received on the wire would.
func announce(t *testing.T, r *Reactor, peer p2p.Peer, addr types.Address) {
	t.Helper()
	bz, err := tmjson.Marshal(&wireEnvelope{From: addr, Msg: &helloMessage{Addr: addr}})
	require.NoError(t, err)
	r.Receive(ConsensusChannel, peer, bz)
}

func TestReactorPeerRouting(t *testing.T) {
	r := startTestReactor(t)
	val, _ := types.RandValidator()
	peer := mock.NewPeer(net.IP{127, 0, 0, 1})

	// unknown address before any hello
	assert.ErrorIs(t, r.Unicast(&helloMessage{Addr: val.Address}, val.Address), ErrPeerUnreachable)

	announce(t, r, peer, val.Address)
	assert.Equal(t, 2, r.Size())
	assert.NoError(t, r.Unicast(&helloMessage{Addr: val.Address}, val.Address))

	r.RemovePeer(peer, "test")
	assert.Equal(t, 1, r.Size())
	assert.ErrorIs(t, r.Unicast(&helloMessage{Addr: val.Address}, val.Address), ErrPeerUnreachable)

	// removing a peer that never announced is a no-op
	r.RemovePeer(mock.NewPeer(net.IP{127, 0, 0, 2}), "test")
	assert.Equal(t, 1, r.Size())
}

func TestReactorRPCUnknownPeer(t *testing.T) {
	r := startTestReactor(t)
	stranger, _ := types.RandValidator()

	_, err := r.RequestRPC(&helloMessage{Addr: stranger.Address}, stranger.Address, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrPeerUnreachable)
}

func TestReactorDropsStaleReply(t *testing.T) {
	r := startTestReactor(t)
	val, _ := types.RandValidator()

	// a reply nobody is waiting for is dropped on the floor
	bz, err := tmjson.Marshal(&rpcEnvelope{ID: 42, From: val.Address, Msg: &helloMessage{Addr: val.Address}})
	require.NoError(t, err)
	r.Receive(SyncReplyChannel, mock.NewPeer(net.IP{127, 0, 0, 1}), bz)
}
