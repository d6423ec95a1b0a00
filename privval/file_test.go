package privval

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

func tempFiles(t *testing.T) (string, string) {
	t.Helper()
	dir, err := ioutil.TempDir("", "privval-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "priv_validator_key.json"), filepath.Join(dir, "priv_validator_state.json")
}

func TestLoadOrGenFilePV(t *testing.T) {
	keyFile, stateFile := tempFiles(t)

	pv := LoadOrGenFilePV(keyFile, stateFile)
	require.NotNil(t, pv)
	pub, err := pv.GetPubKey()
	require.NoError(t, err)
	assert.True(t, types.AddressEqual(pub.Address(), pv.GetAddress()))

	// a second load yields the same identity
	pv2 := LoadOrGenFilePV(keyFile, stateFile)
	pub2, err := pv2.GetPubKey()
	require.NoError(t, err)
	assert.Equal(t, pub, pub2)
}

func TestFilePVSignVote(t *testing.T) {
	keyFile, stateFile := tempFiles(t)
	pv := LoadOrGenFilePV(keyFile, stateFile)

	vote := &types.Vote{
		Round:            3,
		BlockID:          []byte("block-3"),
		Timestamp:        time.Now(),
		ValidatorAddress: pv.GetAddress(),
		ValidatorIndex:   0,
	}
	require.NoError(t, pv.SignVote("chain", vote))
	assert.NotEmpty(t, vote.Signature)
	assert.True(t, pv.Key.PubKey.VerifySignature(types.VoteSignBytes("chain", vote), vote.Signature))

	// re-signing the identical vote is allowed, a conflicting one is not
	require.NoError(t, pv.SignVote("chain", vote))
	conflict := &types.Vote{
		Round:            3,
		BlockID:          []byte("other-3"),
		ValidatorAddress: pv.GetAddress(),
	}
	assert.Error(t, pv.SignVote("chain", conflict))

	// older rounds are refused, even across a restart
	pv = LoadFilePV(keyFile, stateFile)
	old := &types.Vote{
		Round:            2,
		BlockID:          []byte("block-2"),
		ValidatorAddress: pv.GetAddress(),
	}
	assert.Error(t, pv.SignVote("chain", old))
}

func TestFilePVSignProposal(t *testing.T) {
	keyFile, stateFile := tempFiles(t)
	pv := LoadOrGenFilePV(keyFile, stateFile)

	gen := types.MakeGenesisBlock("chain", time.Unix(0, 0))
	block := types.MakeBlock("chain", 1, types.GenesisQC(gen), nil, nil, pv.GetAddress())
	require.NoError(t, pv.SignProposal("chain", block))
	assert.NotEmpty(t, block.Signature)

	// one proposal per round
	again := types.MakeBlock("chain", 1, types.GenesisQC(gen), nil, nil, pv.GetAddress())
	assert.Error(t, pv.SignProposal("chain", again))
}

func TestFilePVSignTimeoutVote(t *testing.T) {
	keyFile, stateFile := tempFiles(t)
	pv := LoadOrGenFilePV(keyFile, stateFile)

	gen := types.MakeGenesisBlock("chain", time.Unix(0, 0))
	tv := &types.TimeoutVote{
		Round:            4,
		HighQC:           types.GenesisQC(gen),
		ValidatorAddress: pv.GetAddress(),
	}
	require.NoError(t, pv.SignTimeoutVote("chain", tv))
	assert.True(t, pv.Key.PubKey.VerifySignature(types.TimeoutVoteSignBytes("chain", tv), tv.Signature))

	older := &types.TimeoutVote{
		Round:            2,
		HighQC:           types.GenesisQC(gen),
		ValidatorAddress: pv.GetAddress(),
	}
	assert.Error(t, pv.SignTimeoutVote("chain", older))
}
