package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuorumSize(t *testing.T) {
	testCases := []struct {
		n, f, q int
	}{
		{1, 0, 1},
		{3, 0, 2},
		{4, 1, 3},
		{5, 1, 4},
		{7, 2, 5},
		{10, 3, 7},
	}

	for _, tc := range testCases {
		vals, _ := RandValidatorSet(tc.n)
		assert.Equal(t, tc.f, vals.MaxFaulty(), "n=%d", tc.n)
		assert.Equal(t, tc.q, vals.QuorumSize(), "n=%d", tc.n)
	}
}

func TestLeaderSchedule(t *testing.T) {
	vals, _ := RandValidatorSet(4)

	// deterministic and rotating
	for r := Round(1); r <= 12; r++ {
		leader := vals.GetLeader(r)
		assert.NotNil(t, leader)
		assert.Equal(t, leader.Address, vals.GetLeader(r).Address)

		_, expected := vals.GetByIndex(int32(r.Mod(vals.Size())))
		assert.Equal(t, expected.Address, leader.Address)
	}

	// every validator leads within one full rotation
	seen := map[string]struct{}{}
	for r := Round(0); r < Round(vals.Size()); r++ {
		seen[string(vals.GetLeader(r).Address)] = struct{}{}
	}
	assert.Len(t, seen, vals.Size())
}

func TestGetByAddress(t *testing.T) {
	vals, _ := RandValidatorSet(4)

	addr, val := vals.GetByIndex(2)
	idx, got := vals.GetByAddress(addr)
	assert.EqualValues(t, 2, idx)
	assert.Equal(t, val.Address, got.Address)
	assert.True(t, vals.HasAddress(addr))

	missing, _ := RandValidator()
	idx, got = vals.GetByAddress(missing.Address)
	assert.EqualValues(t, -1, idx)
	assert.Nil(t, got)
}
