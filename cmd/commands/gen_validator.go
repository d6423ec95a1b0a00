package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"

	"github.com/aptos-labs/aptos-core-sub050/privval"
)

// GenValidatorCmd generates a fresh validator keypair and prints it.
var GenValidatorCmd = &cobra.Command{
	Use:   "gen-validator",
	Short: "Generate new validator keypair",
	RunE:  genValidator,
}

func genValidator(cmd *cobra.Command, args []string) error {
	privValKeyFile := config.PrivValidatorKeyFile()
	if tmos.FileExists(privValKeyFile) {
		return fmt.Errorf("private validator already exists at %v", privValKeyFile)
	}

	pv := privval.GenFilePV(privValKeyFile, config.PrivValidatorStateFile())
	pv.Save()

	jsbz, err := tmjson.Marshal(pv.Key)
	if err != nil {
		return err
	}
	fmt.Printf("%v\n", string(jsbz))
	return nil
}
