package main

import (
	"os"
	"path/filepath"

	"github.com/tendermint/tendermint/libs/cli"

	cmd "github.com/aptos-labs/aptos-core-sub050/cmd/commands"
	nm "github.com/aptos-labs/aptos-core-sub050/node"
)

func main() {
	rootCmd := cmd.RootCmd
	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cmd.GenValidatorCmd,
		cmd.GenNodeKeyCmd,
		cmd.ShowNodeIDCmd,
		cmd.TestnetFilesCmd,
		cli.NewCompletionCmd(rootCmd, true),
	)

	// Users wishing to supply a genesis doc from another source or provide
	// their own DB implementation can swap DefaultNewNode for their own
	// provider here.
	nodeFunc := nm.DefaultNewNode
	rootCmd.AddCommand(cmd.NewRunNodeCmd(nodeFunc))

	baseCmd := cli.PrepareBaseCmd(rootCmd, "SMR", os.ExpandEnv(filepath.Join("$HOME", ".smr")))
	if err := baseCmd.Execute(); err != nil {
		panic(err)
	}
}
