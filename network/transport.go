package network

import (
	"time"

	"github.com/pkg/errors"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

var (
	// ErrRPCTimeout is returned when a request got no response within the
	// caller's deadline. It is distinguishable from peer errors so the
	// retry layer can treat both as transient.
	ErrRPCTimeout = errors.New("rpc request timed out")

	// ErrPeerUnreachable is returned when the target is not connected.
	ErrPeerUnreachable = errors.New("peer unreachable")
)

// Message is anything that can travel between nodes. Concrete types register
// themselves with the tendermint json codec so the wire reactor can decode
// into the interface.
type Message interface {
	ValidateBasic() error
}

// Receiver consumes inbound fire-and-forget messages. Implementations must
// not block for long; the consensus state machine hands messages off to its
// own queue.
type Receiver interface {
	Receive(msg Message, from types.Address)
}

// RPCHandler answers a sync request. It runs outside the consensus event
// loop and may only touch thread-safe state.
type RPCHandler func(req Message, from types.Address) (Message, error)

// Transport is point-to-point delivery between named validators.
//
// Unicast and Multicast are fire-and-forget: no delivery or ordering
// guarantee, and failures are not surfaced to protocol logic. RequestRPC is
// a single in-flight request that fails with ErrRPCTimeout after the given
// duration. Self-addressed sends bypass serialization and network I/O.
type Transport interface {
	Unicast(msg Message, target types.Address) error
	Multicast(msg Message) error
	RequestRPC(req Message, target types.Address, timeout time.Duration) (Message, error)

	// Size returns the number of nodes in the network, including self.
	Size() int

	SetReceiver(r Receiver)
	SetRPCHandler(h RPCHandler)
}
