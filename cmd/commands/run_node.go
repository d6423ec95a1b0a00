package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	nm "github.com/aptos-labs/aptos-core-sub050/node"
)

// AddNodeFlags exposes the config options most commonly overridden from the
// command line.
func AddNodeFlags(cmd *cobra.Command) {
	cmd.Flags().String("moniker", config.Moniker, "node name")

	cmd.Flags().String("rpc.laddr", config.RPC.ListenAddress, "RPC listen address")
	cmd.Flags().String("p2p.laddr", config.P2P.ListenAddress, "node listen address")
	cmd.Flags().String("p2p.persistent_peers", config.P2P.PersistentPeers,
		"comma-delimited ID@host:port persistent peers")

	cmd.Flags().Duration("consensus.network_delay", config.Consensus.NetworkDelay,
		"assumed one-way network delay, the base unit of round timers")
	cmd.Flags().Int64("consensus.leader_timeout", config.Consensus.LeaderTimeout,
		"round timeout as a multiple of network_delay")
	cmd.Flags().Duration("consensus.run_duration", config.Consensus.RunDuration,
		"stop the node after this long; 0 runs forever")
}

// NewRunNodeCmd returns the command that starts the node with the given
// provider and blocks until it is signalled to stop.
func NewRunNodeCmd(nodeProvider nm.Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "node",
		Aliases: []string{"run"},
		Short:   "Run the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := nodeProvider(config, logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}
			if err := n.Start(); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}
			logger.Info("Started node", "nodeInfo", n.NodeInfo())

			tmos.TrapSignal(logger, func() {
				if n.IsRunning() {
					if err := n.Stop(); err != nil {
						logger.Error("unable to stop the node", "err", err)
					}
				}
			})

			// run forever; TrapSignal exits the process
			select {}
		},
	}

	AddNodeFlags(cmd)
	return cmd
}
