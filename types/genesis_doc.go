package types

import (
	"errors"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/tendermint/tendermint/crypto"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
)

// GenesisValidator is one validator as listed in the genesis file. NodeID is
// the p2p identity the validator is reachable under; the network layer uses
// it to map consensus addresses onto peers.
type GenesisValidator struct {
	Address Address       `json:"address"`
	PubKey  crypto.PubKey `json:"pub_key"`
	NodeID  string        `json:"node_id"`
	Name    string        `json:"name"`
}

// GenesisDoc defines the initial conditions of the chain.
type GenesisDoc struct {
	GenesisTime time.Time          `json:"genesis_time"`
	ChainID     string             `json:"chain_id"`
	Validators  []GenesisValidator `json:"validators"`
}

// ValidatorSet returns the consensus group described by the document.
func (genDoc *GenesisDoc) ValidatorSet() *ValidatorSet {
	valz := make([]*Validator, len(genDoc.Validators))
	for i, gv := range genDoc.Validators {
		valz[i] = NewValidator(gv.PubKey)
	}
	return NewValidatorSet(valz)
}

// ValidateAndComplete checks that all necessary fields are present and fills
// in defaults for optional fields left empty.
func (genDoc *GenesisDoc) ValidateAndComplete() error {
	if genDoc.ChainID == "" {
		return errors.New("genesis doc must include non-empty chain_id")
	}
	if len(genDoc.Validators) == 0 {
		return errors.New("genesis doc must include at least one validator")
	}
	for i, gv := range genDoc.Validators {
		if gv.PubKey == nil {
			return fmt.Errorf("genesis validator #%d has no pubkey", i)
		}
		if len(gv.Address) == 0 {
			genDoc.Validators[i].Address = gv.PubKey.Address()
		} else if !AddressEqual(gv.Address, gv.PubKey.Address()) {
			return fmt.Errorf("genesis validator #%d address does not match pubkey", i)
		}
	}
	if genDoc.GenesisTime.IsZero() {
		genDoc.GenesisTime = time.Now()
	}
	return nil
}

// SaveAs is a utility method for saving GenesisDoc as a JSON file.
func (genDoc *GenesisDoc) SaveAs(file string) error {
	genDocBytes, err := tmjson.MarshalIndent(genDoc, "", "  ")
	if err != nil {
		return err
	}
	return tmos.WriteFile(file, genDocBytes, 0644)
}

// GenesisDocFromJSON unmarshals JSON data into a GenesisDoc and validates it.
func GenesisDocFromJSON(jsonBlob []byte) (*GenesisDoc, error) {
	genDoc := GenesisDoc{}
	if err := tmjson.Unmarshal(jsonBlob, &genDoc); err != nil {
		return nil, err
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, err
	}
	return &genDoc, nil
}

// GenesisDocFromFile reads and validates the GenesisDoc at the given path.
func GenesisDocFromFile(genDocFile string) (*GenesisDoc, error) {
	jsonBlob, err := ioutil.ReadFile(genDocFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't read GenesisDoc file: %w", err)
	}
	genDoc, err := GenesisDocFromJSON(jsonBlob)
	if err != nil {
		return nil, fmt.Errorf("error reading GenesisDoc at %v: %w", genDocFile, err)
	}
	return genDoc, nil
}
