package network

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/cmap"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmsync "github.com/tendermint/tendermint/libs/sync"
	"github.com/tendermint/tendermint/p2p"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

const (
	// ConsensusChannel carries fire-and-forget protocol messages.
	ConsensusChannel = byte(0x20)
	// SyncRequestChannel and SyncReplyChannel carry the block retrieval RPC.
	SyncRequestChannel = byte(0x21)
	SyncReplyChannel   = byte(0x22)

	maxMsgSize = 1048576 // 1MB
)

func init() {
	tmjson.RegisterType(&helloMessage{}, "network/Hello")
}

// helloMessage announces the sender's validator address on connect, so peers
// can route unicasts by address instead of p2p ID.
type helloMessage struct {
	Addr types.Address `json:"addr"`
}

func (m *helloMessage) ValidateBasic() error {
	if len(m.Addr) == 0 {
		return errors.New("hello without address")
	}
	return nil
}

// wireEnvelope frames every message on ConsensusChannel with its sender.
type wireEnvelope struct {
	From types.Address `json:"from"`
	Msg  Message       `json:"msg"`
}

// rpcEnvelope frames request/reply pairs on the sync channels. ID correlates
// a reply with its waiting caller.
type rpcEnvelope struct {
	ID   uint64        `json:"id"`
	From types.Address `json:"from"`
	Msg  Message       `json:"msg,omitempty"`
	Err  string        `json:"err,omitempty"`
}

// Reactor implements Transport over a tendermint p2p switch.
type Reactor struct {
	p2p.BaseReactor

	selfAddr types.Address

	mtx        tmsync.RWMutex
	receiver   Receiver
	rpcHandler RPCHandler

	peers   *cmap.CMap // validator address -> p2p.Peer
	peerIDs *cmap.CMap // p2p ID -> validator address

	reqID   uint64
	pending *cmap.CMap // request id -> chan *rpcEnvelope
}

var _ Transport = (*Reactor)(nil)

func NewReactor(selfAddr types.Address) *Reactor {
	r := &Reactor{
		selfAddr: selfAddr,
		peers:    cmap.NewCMap(),
		peerIDs:  cmap.NewCMap(),
		pending:  cmap.NewCMap(),
	}
	r.BaseReactor = *p2p.NewBaseReactor("Network", r)
	return r
}

func (r *Reactor) SetReceiver(recv Receiver) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.receiver = recv
}

func (r *Reactor) SetRPCHandler(h RPCHandler) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.rpcHandler = h
}

func (r *Reactor) GetChannels() []*p2p.ChannelDescriptor {
	return []*p2p.ChannelDescriptor{
		{
			ID:                 ConsensusChannel,
			Priority:           10,
			SendQueueCapacity:  100,
			RecvBufferCapacity: maxMsgSize,
		},
		{
			ID:                 SyncRequestChannel,
			Priority:           5,
			SendQueueCapacity:  10,
			RecvBufferCapacity: maxMsgSize,
		},
		{
			ID:                 SyncReplyChannel,
			Priority:           5,
			SendQueueCapacity:  10,
			RecvBufferCapacity: maxMsgSize,
		},
	}
}

// AddPeer introduces ourselves; routing by validator address only works once
// the peer's hello arrives.
func (r *Reactor) AddPeer(peer p2p.Peer) {
	bz, err := tmjson.Marshal(&wireEnvelope{
		From: r.selfAddr,
		Msg:  &helloMessage{Addr: r.selfAddr},
	})
	if err != nil {
		r.Logger.Error("failed to marshal hello", "err", err)
		return
	}
	peer.Send(ConsensusChannel, bz)
}

func (r *Reactor) RemovePeer(peer p2p.Peer, reason interface{}) {
	id := string(peer.ID())
	if addr := r.peerIDs.Get(id); addr != nil {
		r.peers.Delete(addr.(string))
		r.peerIDs.Delete(id)
	}
	r.Logger.Info("peer removed", "peer", peer.ID(), "reason", reason)
}

func (r *Reactor) Receive(chID byte, src p2p.Peer, msgBytes []byte) {
	if !r.IsRunning() {
		return
	}

	switch chID {
	case ConsensusChannel:
		var env wireEnvelope
		if err := tmjson.Unmarshal(msgBytes, &env); err != nil {
			r.Logger.Error("failed to unmarshal envelope", "peer", src.ID(), "err", err)
			return
		}
		if hello, ok := env.Msg.(*helloMessage); ok {
			if err := hello.ValidateBasic(); err != nil {
				r.Logger.Error("bad hello", "peer", src.ID(), "err", err)
				return
			}
			r.peers.Set(string(hello.Addr), src)
			r.peerIDs.Set(string(src.ID()), string(hello.Addr))
			r.Logger.Debug("peer announced", "peer", src.ID(), "addr", hello.Addr)
			return
		}
		r.mtx.RLock()
		recv := r.receiver
		r.mtx.RUnlock()
		if recv != nil {
			recv.Receive(env.Msg, env.From)
		}

	case SyncRequestChannel:
		var env rpcEnvelope
		if err := tmjson.Unmarshal(msgBytes, &env); err != nil {
			r.Logger.Error("failed to unmarshal sync request", "peer", src.ID(), "err", err)
			return
		}
		// handlers hit the block store; keep them off the p2p recv routine
		go r.handleRequest(src, &env)

	case SyncReplyChannel:
		var env rpcEnvelope
		if err := tmjson.Unmarshal(msgBytes, &env); err != nil {
			r.Logger.Error("failed to unmarshal sync reply", "peer", src.ID(), "err", err)
			return
		}
		if ch := r.pending.Get(rpcKey(env.ID)); ch != nil {
			select {
			case ch.(chan *rpcEnvelope) <- &env:
			default:
			}
		}

	default:
		r.Logger.Error("unknown channel", "ch", chID)
	}
}

func (r *Reactor) handleRequest(src p2p.Peer, req *rpcEnvelope) {
	r.mtx.RLock()
	handler := r.rpcHandler
	r.mtx.RUnlock()

	reply := rpcEnvelope{ID: req.ID, From: r.selfAddr}
	if handler == nil {
		reply.Err = "no handler"
	} else if resp, err := handler(req.Msg, req.From); err != nil {
		reply.Err = err.Error()
	} else {
		reply.Msg = resp
	}

	bz, err := tmjson.Marshal(&reply)
	if err != nil {
		r.Logger.Error("failed to marshal sync reply", "err", err)
		return
	}
	src.Send(SyncReplyChannel, bz)
}

//--------------------------------------------------------------------------------
// Transport

func (r *Reactor) Unicast(msg Message, target types.Address) error {
	if types.AddressEqual(target, r.selfAddr) {
		r.mtx.RLock()
		recv := r.receiver
		r.mtx.RUnlock()
		if recv != nil {
			recv.Receive(msg, r.selfAddr)
		}
		return nil
	}

	peer := r.peers.Get(string(target))
	if peer == nil {
		return ErrPeerUnreachable
	}
	bz, err := tmjson.Marshal(&wireEnvelope{From: r.selfAddr, Msg: msg})
	if err != nil {
		return errors.Wrap(err, "marshal unicast")
	}
	if !peer.(p2p.Peer).Send(ConsensusChannel, bz) {
		return ErrPeerUnreachable
	}
	return nil
}

func (r *Reactor) Multicast(msg Message) error {
	bz, err := tmjson.Marshal(&wireEnvelope{From: r.selfAddr, Msg: msg})
	if err != nil {
		return errors.Wrap(err, "marshal multicast")
	}
	r.Switch.Broadcast(ConsensusChannel, bz)
	return nil
}

func (r *Reactor) RequestRPC(req Message, target types.Address, timeout time.Duration) (Message, error) {
	peer := r.peers.Get(string(target))
	if peer == nil {
		return nil, ErrPeerUnreachable
	}

	id := atomic.AddUint64(&r.reqID, 1)
	ch := make(chan *rpcEnvelope, 1)
	r.pending.Set(rpcKey(id), ch)
	defer r.pending.Delete(rpcKey(id))

	bz, err := tmjson.Marshal(&rpcEnvelope{ID: id, From: r.selfAddr, Msg: req})
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}
	if !peer.(p2p.Peer).Send(SyncRequestChannel, bz) {
		return nil, ErrPeerUnreachable
	}

	select {
	case reply := <-ch:
		if reply.Err != "" {
			return nil, errors.New(reply.Err)
		}
		return reply.Msg, nil
	case <-time.After(timeout):
		return nil, ErrRPCTimeout
	}
}

// Size counts connected peers plus self.
func (r *Reactor) Size() int {
	return r.peers.Size() + 1
}

func rpcKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}
