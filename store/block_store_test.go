package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

func TestBlockStoreRoundTrip(t *testing.T) {
	bs := NewBlockStore(tmdb.NewMemDB(), log.TestingLogger())

	val, priv := types.RandValidator()
	gen := types.MakeGenesisBlock("test-chain", time.Unix(0, 0))
	b1 := types.MakeBlock("test-chain", 1, types.GenesisQC(gen), nil, types.Txs{types.Tx("tx1")}, val.Address)
	require.NoError(t, priv.SignProposal("test-chain", b1))

	require.NoError(t, bs.SaveBlock(gen))
	require.NoError(t, bs.SaveBlock(b1))
	assert.EqualValues(t, 1, bs.TipRound().Int64())

	got := bs.LoadBlockByID(b1.Hash())
	require.NotNil(t, got)
	assert.True(t, got.Hash().Equal(b1.Hash()))
	assert.Equal(t, b1.Round, got.Round)
	assert.Len(t, got.Data.Txs, 1)
	require.NotNil(t, got.QC)
	assert.True(t, got.QC.BlockID.Equal(gen.Hash()))
	assert.NoError(t, got.ValidateBasic())

	byRound := bs.LoadBlockByRound(1)
	require.NotNil(t, byRound)
	assert.True(t, byRound.Hash().Equal(b1.Hash()))

	assert.Nil(t, bs.LoadBlockByRound(7))
	assert.Nil(t, bs.LoadBlockByID(types.BlockID("nope")))
}

func TestBlockStoreTipPersists(t *testing.T) {
	db := tmdb.NewMemDB()
	bs := NewBlockStore(db, log.TestingLogger())

	val, _ := types.RandValidator()
	gen := types.MakeGenesisBlock("test-chain", time.Unix(0, 0))
	qc := types.GenesisQC(gen)
	require.NoError(t, bs.SaveBlock(gen))
	for r := 1; r <= 3; r++ {
		b := types.MakeBlock("test-chain", types.Round(r), qc, nil, nil, val.Address)
		require.NoError(t, bs.SaveBlock(b))
		qc = types.NewQuorumCert(b, []types.Address{val.Address})
	}

	reopened := NewBlockStore(db, log.TestingLogger())
	assert.EqualValues(t, 3, reopened.TipRound().Int64())
}
