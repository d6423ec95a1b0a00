package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	tmcfg "github.com/tendermint/tendermint/config"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	"github.com/tendermint/tendermint/p2p"
	tmtime "github.com/tendermint/tendermint/types/time"

	cfg "github.com/aptos-labs/aptos-core-sub050/config"
	"github.com/aptos-labs/aptos-core-sub050/privval"
	"github.com/aptos-labs/aptos-core-sub050/types"
)

var (
	nValidators       int
	outputDir         string
	startingIPAddress string
	p2pPort           int
)

func init() {
	TestnetFilesCmd.Flags().IntVar(&nValidators, "v", 4,
		"number of validators to initialize the testnet with")
	TestnetFilesCmd.Flags().StringVar(&outputDir, "o", "./mytestnet",
		"directory to store initialization data for the testnet")
	TestnetFilesCmd.Flags().StringVar(&startingIPAddress, "starting-ip-address", "127.0.0.1",
		"starting IP address of the first validator")
	TestnetFilesCmd.Flags().IntVar(&p2pPort, "p2p-port", 26656, "p2p port for all nodes")
}

// TestnetFilesCmd initializes files for a local cluster: one directory per
// validator with its keys, a shared genesis and persistent peers prewired.
var TestnetFilesCmd = &cobra.Command{
	Use:   "testnet",
	Short: "Initialize files for a local testnet",
	RunE:  testnetFiles,
}

func testnetFiles(cmd *cobra.Command, args []string) error {
	genVals := make([]types.GenesisValidator, nValidators)
	peers := make([]string, nValidators)

	for i := 0; i < nValidators; i++ {
		nodeDir := filepath.Join(outputDir, fmt.Sprintf("node%d", i))
		nodeConfig := cfg.DefaultConfig()
		nodeConfig.SetRoot(nodeDir)
		nodeConfig.Moniker = fmt.Sprintf("node%d", i)

		if err := os.MkdirAll(filepath.Join(nodeDir, "config"), 0755); err != nil {
			_ = os.RemoveAll(outputDir)
			return err
		}
		if err := os.MkdirAll(filepath.Join(nodeDir, "data"), 0755); err != nil {
			_ = os.RemoveAll(outputDir)
			return err
		}

		pv := privval.GenFilePV(nodeConfig.PrivValidatorKeyFile(), nodeConfig.PrivValidatorStateFile())
		pv.Save()

		nodeKey, err := p2p.LoadOrGenNodeKey(nodeConfig.NodeKeyFile())
		if err != nil {
			_ = os.RemoveAll(outputDir)
			return err
		}

		pubKey, err := pv.GetPubKey()
		if err != nil {
			_ = os.RemoveAll(outputDir)
			return err
		}
		genVals[i] = types.GenesisValidator{
			Address: pubKey.Address(),
			PubKey:  pubKey,
			NodeID:  string(nodeKey.ID()),
			Name:    nodeConfig.Moniker,
		}
		peers[i] = p2p.IDAddressString(nodeKey.ID(),
			fmt.Sprintf("%s:%d", startingIPAddress, p2pPort+i))
	}

	genDoc := &types.GenesisDoc{
		ChainID:     "chain-" + tmrand.Str(6),
		GenesisTime: tmtime.Now(),
		Validators:  genVals,
	}

	persistentPeers := strings.Join(peers, ",")
	for i := 0; i < nValidators; i++ {
		nodeDir := filepath.Join(outputDir, fmt.Sprintf("node%d", i))
		nodeConfig := cfg.DefaultConfig()
		nodeConfig.SetRoot(nodeDir)
		nodeConfig.Moniker = fmt.Sprintf("node%d", i)
		nodeConfig.P2P.ListenAddress = fmt.Sprintf("tcp://0.0.0.0:%d", p2pPort+i)
		nodeConfig.P2P.PersistentPeers = persistentPeers
		nodeConfig.P2P.AllowDuplicateIP = true

		if err := genDoc.SaveAs(nodeConfig.GenesisFile()); err != nil {
			_ = os.RemoveAll(outputDir)
			return err
		}
		tmcfg.WriteConfigFile(filepath.Join(nodeDir, "config", "config.toml"), nodeConfig.Config)
	}

	logger.Info("Successfully initialized node directories", "dir", outputDir, "validators", nValidators)
	return nil
}
