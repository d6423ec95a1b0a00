package privval

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/ed25519"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/libs/tempfile"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

// FilePVKey is the persisted part of a validator's identity.
type FilePVKey struct {
	Address types.Address  `json:"address"`
	PubKey  crypto.PubKey  `json:"pub_key"`
	PrivKey crypto.PrivKey `json:"priv_key"`

	filePath string
}

func (pvKey FilePVKey) Save() {
	if pvKey.filePath == "" {
		panic("cannot save PrivValidator key: filePath not set")
	}
	jsonBytes, err := tmjson.MarshalIndent(pvKey, "", "  ")
	if err != nil {
		panic(err)
	}
	if err := tempfile.WriteFileAtomic(pvKey.filePath, jsonBytes, 0600); err != nil {
		panic(err)
	}
}

// FilePVLastSignState tracks the most recent rounds signed, so a restarted
// validator cannot equivocate.
type FilePVLastSignState struct {
	VoteRound        types.Round   `json:"vote_round"`
	VoteBlockID      types.BlockID `json:"vote_block_id"`
	TimeoutVoteRound types.Round   `json:"timeout_vote_round"`
	ProposalRound    types.Round   `json:"proposal_round"`

	filePath string
}

func (lss *FilePVLastSignState) Save() {
	if lss.filePath == "" {
		panic("cannot save PrivValidator state: filePath not set")
	}
	jsonBytes, err := tmjson.MarshalIndent(lss, "", "  ")
	if err != nil {
		panic(err)
	}
	if err := tempfile.WriteFileAtomic(lss.filePath, jsonBytes, 0600); err != nil {
		panic(err)
	}
}

// FilePV is a PrivValidator backed by two files: a key file and a last-sign
// state file. Signing updates the state file before the signature leaves this
// process.
type FilePV struct {
	Key           FilePVKey
	LastSignState FilePVLastSignState
}

var _ types.PrivValidator = (*FilePV)(nil)

// GenFilePV creates a fresh ed25519 validator key. Call Save to persist.
func GenFilePV(keyFilePath, stateFilePath string) *FilePV {
	privKey := ed25519.GenPrivKey()
	return &FilePV{
		Key: FilePVKey{
			Address:  privKey.PubKey().Address(),
			PubKey:   privKey.PubKey(),
			PrivKey:  privKey,
			filePath: keyFilePath,
		},
		LastSignState: FilePVLastSignState{
			filePath: stateFilePath,
		},
	}
}

// LoadFilePV reads both the key and last-sign state files.
func LoadFilePV(keyFilePath, stateFilePath string) *FilePV {
	keyJSONBytes := tmos.MustReadFile(keyFilePath)
	pvKey := FilePVKey{}
	if err := tmjson.Unmarshal(keyJSONBytes, &pvKey); err != nil {
		tmos.Exit(fmt.Sprintf("Error reading PrivValidator key from %v: %v\n", keyFilePath, err))
	}
	pvKey.filePath = keyFilePath

	stateJSONBytes := tmos.MustReadFile(stateFilePath)
	lss := FilePVLastSignState{}
	if err := tmjson.Unmarshal(stateJSONBytes, &lss); err != nil {
		tmos.Exit(fmt.Sprintf("Error reading PrivValidator state from %v: %v\n", stateFilePath, err))
	}
	lss.filePath = stateFilePath

	return &FilePV{Key: pvKey, LastSignState: lss}
}

// LoadOrGenFilePV loads an existing validator key, generating a new one when
// neither file exists yet.
func LoadOrGenFilePV(keyFilePath, stateFilePath string) *FilePV {
	if tmos.FileExists(keyFilePath) {
		return LoadFilePV(keyFilePath, stateFilePath)
	}
	pv := GenFilePV(keyFilePath, stateFilePath)
	pv.Save()
	return pv
}

func (pv *FilePV) Save() {
	pv.Key.Save()
	pv.LastSignState.Save()
}

func (pv *FilePV) GetAddress() types.Address {
	return pv.Key.Address
}

func (pv *FilePV) GetPubKey() (crypto.PubKey, error) {
	return pv.Key.PubKey, nil
}

func (pv *FilePV) SignProposal(chainID string, block *types.Block) error {
	lss := &pv.LastSignState
	if !block.Round.Greater(lss.ProposalRound) {
		return errors.Errorf("already proposed at round %v, refusing round %v",
			lss.ProposalRound, block.Round)
	}
	sig, err := pv.Key.PrivKey.Sign(types.ProposalSignBytes(chainID, block))
	if err != nil {
		return err
	}
	lss.ProposalRound = block.Round
	lss.Save()
	block.Header.Signature = sig
	return nil
}

func (pv *FilePV) SignVote(chainID string, vote *types.Vote) error {
	lss := &pv.LastSignState
	if vote.Round.Equal(lss.VoteRound) && !vote.BlockID.Equal(lss.VoteBlockID) {
		return errors.Errorf("conflicting vote at round %v", vote.Round)
	}
	if lss.VoteRound.Greater(vote.Round) {
		return errors.Errorf("already voted at round %v, refusing round %v",
			lss.VoteRound, vote.Round)
	}
	sig, err := pv.Key.PrivKey.Sign(types.VoteSignBytes(chainID, vote))
	if err != nil {
		return err
	}
	lss.VoteRound = vote.Round
	lss.VoteBlockID = vote.BlockID
	lss.Save()
	vote.Signature = sig
	return nil
}

func (pv *FilePV) SignTimeoutVote(chainID string, tv *types.TimeoutVote) error {
	lss := &pv.LastSignState
	if lss.TimeoutVoteRound.Greater(tv.Round) {
		return errors.Errorf("already signed a timeout at round %v, refusing round %v",
			lss.TimeoutVoteRound, tv.Round)
	}
	sig, err := pv.Key.PrivKey.Sign(types.TimeoutVoteSignBytes(chainID, tv))
	if err != nil {
		return err
	}
	lss.TimeoutVoteRound = tv.Round
	lss.Save()
	tv.Signature = sig
	return nil
}

func (pv *FilePV) String() string {
	return fmt.Sprintf("FilePV{%v, vote_round: %v}", pv.GetAddress(), pv.LastSignState.VoteRound)
}
