package types

import (
	"encoding/binary"
	"fmt"
)

// Round identifies one step of the leader-rotation protocol.
// A correct node's current round never decreases.
type Round int64

const (
	// RoundZero is reserved for the genesis block.
	RoundZero = Round(0)
)

func (r Round) Int64() int64 {
	return int64(r)
}

// Next returns the immediately following round.
func (r Round) Next() Round {
	return r + 1
}

// Prev returns the immediately preceding round.
func (r Round) Prev() Round {
	return r - 1
}

func (r Round) Equal(other Round) bool {
	return r == other
}

func (r Round) Greater(other Round) bool {
	return r > other
}

// Mod maps the round onto an index in [0, n), used by the leader schedule.
func (r Round) Mod(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("round mod with non-positive size %d", n))
	}
	return int(int64(r) % int64(n))
}

// Hash returns the canonical byte representation used as a merkle leaf.
func (r Round) Hash() []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, uint64(r))
	return bz
}

func (r Round) String() string {
	return fmt.Sprintf("%d", int64(r))
}
