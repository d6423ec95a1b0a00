package blocksync

import (
	tmrand "github.com/tendermint/tendermint/libs/rand"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

// peerPicker draws peers from a finite pool without replacement. The very
// first pick always returns the preferred peer (the proposer of the round
// being fetched); later picks are uniform over whatever remains. Once the
// pool is empty no further peers are handed out.
type peerPicker struct {
	preferred types.Address
	pool      []types.Address
	first     bool
}

func newPeerPicker(peers []types.Address, preferred types.Address) *peerPicker {
	pool := make([]types.Address, len(peers))
	copy(pool, peers)
	return &peerPicker{
		preferred: preferred,
		pool:      pool,
		first:     true,
	}
}

func (p *peerPicker) Len() int {
	return len(p.pool)
}

func (p *peerPicker) remove(i int) types.Address {
	peer := p.pool[i]
	p.pool = append(p.pool[:i], p.pool[i+1:]...)
	return peer
}

// Pick returns the next peer to query, or false when the pool is exhausted.
func (p *peerPicker) Pick() (types.Address, bool) {
	if p.first {
		p.first = false
		for i, peer := range p.pool {
			if types.AddressEqual(peer, p.preferred) {
				return p.remove(i), true
			}
		}
		// the preferred peer is queried even when outside the pool
		if len(p.preferred) > 0 {
			return p.preferred, true
		}
	}
	if len(p.pool) == 0 {
		return nil, false
	}
	return p.remove(tmrand.Intn(len(p.pool))), true
}

// PickN returns up to n distinct peers.
func (p *peerPicker) PickN(n int) []types.Address {
	peers := make([]types.Address, 0, n)
	for len(peers) < n {
		peer, ok := p.Pick()
		if !ok {
			break
		}
		peers = append(peers, peer)
	}
	return peers
}
