package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func makeChain(t testing.TB, chainID string, length int) []*Block {
	t.Helper()

	val, _ := RandValidator()
	gen := MakeGenesisBlock(chainID, time.Unix(0, 0))
	blocks := []*Block{gen}
	qc := GenesisQC(gen)
	for r := 1; r <= length; r++ {
		b := MakeBlock(chainID, Round(r), qc, nil, nil, val.Address)
		blocks = append(blocks, b)
		qc = NewQuorumCert(b, []Address{val.Address})
	}
	return blocks
}

func TestBlockSet(t *testing.T) {
	blocks := makeChain(t, "test-chain", 3)
	bs := NewBlockSet()

	for _, b := range blocks {
		assert.True(t, bs.Add(b))
	}
	assert.False(t, bs.Add(blocks[1]), "duplicate id rejected")
	assert.Equal(t, len(blocks), bs.Size())

	assert.Equal(t, blocks[2], bs.GetByID(blocks[2].Hash()))
	assert.Equal(t, blocks[2], bs.GetByRound(2))
	assert.True(t, bs.HasRound(3))
	assert.Nil(t, bs.GetByRound(9))

	bs.PruneBelow(2)
	assert.Nil(t, bs.GetByRound(1))
	assert.Nil(t, bs.GetByID(blocks[0].Hash()))
	assert.Equal(t, blocks[2], bs.GetByRound(2))
	assert.Equal(t, 2, bs.Size())
}
