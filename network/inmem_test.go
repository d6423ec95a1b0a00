package network

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

type echoMessage struct {
	Body string `json:"body"`
}

func (m *echoMessage) ValidateBasic() error { return nil }

type received struct {
	msg  Message
	from types.Address
}

type chanReceiver struct {
	ch chan received
}

func newChanReceiver() *chanReceiver {
	return &chanReceiver{ch: make(chan received, 16)}
}

func (r *chanReceiver) Receive(msg Message, from types.Address) {
	r.ch <- received{msg: msg, from: from}
}

func (r *chanReceiver) next(t *testing.T) received {
	t.Helper()
	select {
	case got := <-r.ch:
		return got
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return received{}
	}
}

func addr(b byte) types.Address {
	a := make(types.Address, 20)
	a[0] = b
	return a
}

func TestInmemUnicast(t *testing.T) {
	net := NewInmemNetwork()
	a := net.CreateTransport(addr(1))
	b := net.CreateTransport(addr(2))

	recvB := newChanReceiver()
	b.SetReceiver(recvB)

	require.NoError(t, a.Unicast(&echoMessage{Body: "hi"}, addr(2)))
	got := recvB.next(t)
	assert.Equal(t, "hi", got.msg.(*echoMessage).Body)
	assert.True(t, types.AddressEqual(addr(1), got.from))

	// self-addressed sends come straight back
	recvA := newChanReceiver()
	a.SetReceiver(recvA)
	require.NoError(t, a.Unicast(&echoMessage{Body: "self"}, addr(1)))
	assert.Equal(t, "self", recvA.next(t).msg.(*echoMessage).Body)
}

func TestInmemMulticastExcludesSelf(t *testing.T) {
	net := NewInmemNetwork()
	a := net.CreateTransport(addr(1))
	recvA := newChanReceiver()
	a.SetReceiver(recvA)

	receivers := make([]*chanReceiver, 0, 3)
	for i := byte(2); i <= 4; i++ {
		tr := net.CreateTransport(addr(i))
		r := newChanReceiver()
		tr.SetReceiver(r)
		receivers = append(receivers, r)
	}
	assert.Equal(t, 4, a.Size())

	require.NoError(t, a.Multicast(&echoMessage{Body: "all"}))
	for _, r := range receivers {
		assert.Equal(t, "all", r.next(t).msg.(*echoMessage).Body)
	}
	select {
	case <-recvA.ch:
		t.Fatal("multicast must not loop back to the sender")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInmemPartition(t *testing.T) {
	net := NewInmemNetwork()
	a := net.CreateTransport(addr(1))
	b := net.CreateTransport(addr(2))
	recvB := newChanReceiver()
	b.SetReceiver(recvB)

	net.Partition(addr(2))
	require.NoError(t, a.Unicast(&echoMessage{Body: "lost"}, addr(2)))
	select {
	case <-recvB.ch:
		t.Fatal("partitioned node must not receive")
	case <-time.After(50 * time.Millisecond):
	}

	net.Heal(addr(2))
	require.NoError(t, a.Unicast(&echoMessage{Body: "back"}, addr(2)))
	assert.Equal(t, "back", recvB.next(t).msg.(*echoMessage).Body)
}

func TestInmemRequestRPC(t *testing.T) {
	net := NewInmemNetwork()
	a := net.CreateTransport(addr(1))
	b := net.CreateTransport(addr(2))

	b.SetRPCHandler(func(req Message, from types.Address) (Message, error) {
		return &echoMessage{Body: "re: " + req.(*echoMessage).Body}, nil
	})

	resp, err := a.RequestRPC(&echoMessage{Body: "ping"}, addr(2), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "re: ping", resp.(*echoMessage).Body)

	// handler errors pass through
	b.SetRPCHandler(func(Message, types.Address) (Message, error) {
		return nil, errors.New("nope")
	})
	_, err = a.RequestRPC(&echoMessage{}, addr(2), time.Second)
	assert.EqualError(t, err, "nope")
}

func TestInmemRequestRPCTimeout(t *testing.T) {
	net := NewInmemNetwork()
	a := net.CreateTransport(addr(1))
	b := net.CreateTransport(addr(2))

	b.SetRPCHandler(func(Message, types.Address) (Message, error) {
		time.Sleep(200 * time.Millisecond)
		return &echoMessage{}, nil
	})

	_, err := a.RequestRPC(&echoMessage{}, addr(2), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrRPCTimeout)

	// unknown target fails fast
	_, err = a.RequestRPC(&echoMessage{}, addr(9), time.Second)
	assert.ErrorIs(t, err, ErrPeerUnreachable)
}
