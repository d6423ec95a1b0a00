package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenesisBlock(t *testing.T) {
	gen := MakeGenesisBlock("test-chain", time.Unix(0, 0))

	assert.True(t, gen.IsGenesis())
	assert.NotEmpty(t, gen.Hash())
	assert.NoError(t, gen.ValidateBasic())

	// hash is deterministic for the same chain id
	gen2 := MakeGenesisBlock("test-chain", time.Unix(100, 0))
	assert.Equal(t, gen.Hash(), gen2.Hash())

	gen3 := MakeGenesisBlock("other-chain", time.Unix(0, 0))
	assert.NotEqual(t, gen.Hash(), gen3.Hash())
}

func TestBlockValidateBasic(t *testing.T) {
	gen := MakeGenesisBlock("test-chain", time.Unix(0, 0))
	genQC := GenesisQC(gen)
	val, priv := RandValidator()

	b := MakeBlock("test-chain", 1, genQC, nil, Txs{Tx("tx1")}, val.Address)
	require.Error(t, b.ValidateBasic(), "unsigned block must not validate")

	require.NoError(t, priv.SignProposal("test-chain", b))
	assert.NoError(t, b.ValidateBasic())
	assert.Equal(t, genQC.BlockID, b.ParentID)

	// a qc at or above the block round is inconsistent
	bad := MakeBlock("test-chain", 1, &QuorumCert{Round: 1, BlockID: gen.Hash(), Voters: []Address{val.Address}}, nil, nil, val.Address)
	require.NoError(t, priv.SignProposal("test-chain", bad))
	assert.Error(t, bad.ValidateBasic())
}

func TestQuorumCertOrdering(t *testing.T) {
	gen := MakeGenesisBlock("test-chain", time.Unix(0, 0))
	genQC := GenesisQC(gen)
	val, _ := RandValidator()

	b1 := MakeBlock("test-chain", 1, genQC, nil, nil, val.Address)
	qc1 := NewQuorumCert(b1, []Address{val.Address})

	b5 := MakeBlock("test-chain", 5, qc1, nil, nil, val.Address)
	qc5 := NewQuorumCert(b5, []Address{val.Address})

	assert.True(t, qc5.Greater(qc1))
	assert.False(t, qc1.Greater(qc5))
	assert.True(t, qc1.Greater(nil))

	assert.Equal(t, qc5, MaxQC(qc1, qc5))
	assert.Equal(t, qc5, MaxQC(qc5, qc1))
	assert.Equal(t, qc1, MaxQC(qc1, nil))
	assert.Equal(t, qc1, MaxQC(nil, qc1))

	// ties keep the first argument
	qc1b := NewQuorumCert(b1, []Address{val.Address})
	assert.Equal(t, qc1, MaxQC(qc1, qc1b))
}

func TestQuorumCertResolve(t *testing.T) {
	gen := MakeGenesisBlock("test-chain", time.Unix(0, 0))
	val, _ := RandValidator()
	b1 := MakeBlock("test-chain", 1, GenesisQC(gen), nil, nil, val.Address)

	qc := &QuorumCert{Round: 1, BlockID: b1.Hash(), Voters: []Address{val.Address}}
	assert.Nil(t, qc.CertifiedBlock())

	require.NoError(t, qc.SetCertifiedBlock(b1))
	assert.Equal(t, b1, qc.CertifiedBlock())

	other := MakeBlock("test-chain", 2, NewQuorumCert(b1, []Address{val.Address}), nil, nil, val.Address)
	assert.Error(t, qc.SetCertifiedBlock(other))
}

func TestTimeoutCertValidateBasic(t *testing.T) {
	gen := MakeGenesisBlock("test-chain", time.Unix(0, 0))
	genQC := GenesisQC(gen)
	val, _ := RandValidator()

	tc := NewTimeoutCert(3, genQC, []Address{val.Address})
	assert.NoError(t, tc.ValidateBasic())

	// the high qc must be strictly below the timed-out round
	b3 := MakeBlock("test-chain", 3, genQC, nil, nil, val.Address)
	qc3 := NewQuorumCert(b3, []Address{val.Address})
	bad := NewTimeoutCert(3, qc3, []Address{val.Address})
	assert.Error(t, bad.ValidateBasic())

	assert.Error(t, NewTimeoutCert(0, genQC, []Address{val.Address}).ValidateBasic())
}
