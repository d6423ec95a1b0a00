package network

import (
	"sync"
	"time"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

// InmemNetwork connects a set of InmemTransports directly, without
// serialization or sockets. It backs deterministic multi-node tests and
// local clusters.
type InmemNetwork struct {
	mtx        sync.RWMutex
	transports map[string]*InmemTransport
	down       map[string]bool // simulated crashed/partitioned nodes
}

func NewInmemNetwork() *InmemNetwork {
	return &InmemNetwork{
		transports: make(map[string]*InmemTransport),
		down:       make(map[string]bool),
	}
}

// CreateTransport registers a new endpoint for the given address.
func (n *InmemNetwork) CreateTransport(addr types.Address) *InmemTransport {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	t := &InmemTransport{
		addr:   addr,
		net:    n,
		logger: log.NewNopLogger(),
	}
	n.transports[string(addr)] = t
	return t
}

// Partition cuts a node off: messages to and from it are dropped and RPCs
// against it fail as unreachable.
func (n *InmemNetwork) Partition(addr types.Address) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.down[string(addr)] = true
}

// Heal reconnects a previously partitioned node.
func (n *InmemNetwork) Heal(addr types.Address) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	delete(n.down, string(addr))
}

func (n *InmemNetwork) lookup(addr types.Address) *InmemTransport {
	n.mtx.RLock()
	defer n.mtx.RUnlock()
	if n.down[string(addr)] {
		return nil
	}
	return n.transports[string(addr)]
}

func (n *InmemNetwork) reachable(addr types.Address) bool {
	n.mtx.RLock()
	defer n.mtx.RUnlock()
	return !n.down[string(addr)]
}

func (n *InmemNetwork) others(addr types.Address) []*InmemTransport {
	n.mtx.RLock()
	defer n.mtx.RUnlock()

	res := make([]*InmemTransport, 0, len(n.transports))
	for key, t := range n.transports {
		if key == string(addr) || n.down[key] {
			continue
		}
		res = append(res, t)
	}
	return res
}

func (n *InmemNetwork) size() int {
	n.mtx.RLock()
	defer n.mtx.RUnlock()
	return len(n.transports)
}

//--------------------------------------------------------------------------------

// InmemTransport implements Transport against an InmemNetwork.
type InmemTransport struct {
	addr   types.Address
	net    *InmemNetwork
	logger log.Logger

	mtx        sync.RWMutex
	receiver   Receiver
	rpcHandler RPCHandler
}

var _ Transport = (*InmemTransport)(nil)

func (t *InmemTransport) SetLogger(l log.Logger) {
	t.logger = l
}

func (t *InmemTransport) SetReceiver(r Receiver) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.receiver = r
}

func (t *InmemTransport) SetRPCHandler(h RPCHandler) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.rpcHandler = h
}

func (t *InmemTransport) Addr() types.Address {
	return t.addr
}

func (t *InmemTransport) Size() int {
	return t.net.size()
}

// Unicast delivers msg to target. Delivery to an unknown or partitioned peer
// is silently dropped, matching fire-and-forget semantics.
func (t *InmemTransport) Unicast(msg Message, target types.Address) error {
	if !t.net.reachable(t.addr) {
		return nil
	}
	if types.AddressEqual(target, t.addr) {
		// self-addressed: bypass the network entirely
		t.deliver(msg, t.addr)
		return nil
	}
	dst := t.net.lookup(target)
	if dst == nil {
		return nil
	}
	go dst.deliver(msg, t.addr)
	return nil
}

// Multicast delivers msg to every other reachable node.
func (t *InmemTransport) Multicast(msg Message) error {
	if !t.net.reachable(t.addr) {
		return nil
	}
	for _, dst := range t.net.others(t.addr) {
		go dst.deliver(msg, t.addr)
	}
	return nil
}

// RequestRPC runs the target's handler and waits up to timeout for the
// response. In-flight handlers are not cancelled on timeout; their result is
// dropped.
func (t *InmemTransport) RequestRPC(req Message, target types.Address, timeout time.Duration) (Message, error) {
	dst := t.net.lookup(target)
	if dst == nil || !t.net.reachable(t.addr) {
		return nil, ErrPeerUnreachable
	}

	dst.mtx.RLock()
	handler := dst.rpcHandler
	dst.mtx.RUnlock()
	if handler == nil {
		return nil, ErrPeerUnreachable
	}

	type rpcResult struct {
		resp Message
		err  error
	}
	resCh := make(chan rpcResult, 1)
	go func() {
		resp, err := handler(req, t.addr)
		resCh <- rpcResult{resp, err}
	}()

	select {
	case res := <-resCh:
		return res.resp, res.err
	case <-time.After(timeout):
		return nil, ErrRPCTimeout
	}
}

func (t *InmemTransport) deliver(msg Message, from types.Address) {
	t.mtx.RLock()
	r := t.receiver
	t.mtx.RUnlock()
	if r == nil {
		return
	}
	r.Receive(msg, from)
}
