package config

import (
	"time"

	"github.com/pkg/errors"
	tmcfg "github.com/tendermint/tendermint/config"
)

// Config extends the tendermint node configuration (base paths, p2p, rpc,
// mempool sections) with the sections this node adds. The embedded Consensus
// section of the tendermint config is unused; ours shadows it.
type Config struct {
	*tmcfg.Config `mapstructure:",squash"`

	Consensus *ConsensusConfig `mapstructure:"consensus"`
	BlockSync *BlockSyncConfig `mapstructure:"blocksync"`
}

func DefaultConfig() *Config {
	return &Config{
		Config:    tmcfg.DefaultConfig(),
		Consensus: DefaultConsensusConfig(),
		BlockSync: DefaultBlockSyncConfig(),
	}
}

// TestConfig keeps timeouts short enough for multi-node tests to converge in
// well under a second per round.
func TestConfig() *Config {
	return &Config{
		Config:    tmcfg.TestConfig(),
		Consensus: TestConsensusConfig(),
		BlockSync: TestBlockSyncConfig(),
	}
}

func (cfg *Config) SetRoot(root string) *Config {
	cfg.Config.SetRoot(root)
	return cfg
}

func (cfg *Config) ValidateBasic() error {
	if err := cfg.Config.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Consensus.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [consensus] section")
	}
	if err := cfg.BlockSync.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [blocksync] section")
	}
	return nil
}

//--------------------------------------------------------------------------------

// ConsensusConfig sizes the round timers.
type ConsensusConfig struct {
	// NetworkDelay is the assumed one-way message delay; the base unit for
	// all protocol timeouts.
	NetworkDelay time.Duration `mapstructure:"network_delay"`

	// LeaderTimeout is the round timer expressed as a multiple of
	// NetworkDelay: a round times out after LeaderTimeout * NetworkDelay
	// without progress.
	LeaderTimeout int64 `mapstructure:"leader_timeout"`

	// RunDuration stops the node after a fixed wall-clock time. Zero means
	// run forever; bounded runs exist for test deployments.
	RunDuration time.Duration `mapstructure:"run_duration"`
}

func DefaultConsensusConfig() *ConsensusConfig {
	return &ConsensusConfig{
		NetworkDelay:  500 * time.Millisecond,
		LeaderTimeout: 6,
	}
}

func TestConsensusConfig() *ConsensusConfig {
	return &ConsensusConfig{
		NetworkDelay:  10 * time.Millisecond,
		LeaderTimeout: 4,
	}
}

// RoundTimeout is the armed duration of a round timer.
func (cfg *ConsensusConfig) RoundTimeout() time.Duration {
	return cfg.NetworkDelay * time.Duration(cfg.LeaderTimeout)
}

func (cfg *ConsensusConfig) ValidateBasic() error {
	if cfg.NetworkDelay <= 0 {
		return errors.New("network_delay must be positive")
	}
	if cfg.LeaderTimeout <= 0 {
		return errors.New("leader_timeout must be positive")
	}
	if cfg.RunDuration < 0 {
		return errors.New("run_duration cannot be negative")
	}
	return nil
}

//--------------------------------------------------------------------------------

// BlockSyncConfig sizes the ancestor-chain retriever.
type BlockSyncConfig struct {
	// RetryInterval is the tick between retry waves within one chunk fetch.
	RetryInterval time.Duration `mapstructure:"retry_interval"`

	// RPCTimeout bounds each individual peer request.
	RPCTimeout time.Duration `mapstructure:"rpc_timeout"`

	// NumRetries is the maximum number of retry waves per chunk.
	NumRetries int `mapstructure:"num_retries"`

	// RequestNumPeers is how many peers each wave after the first fans out to.
	RequestNumPeers int `mapstructure:"request_num_peers"`

	// MaxBlocksToRequest caps the blocks asked for in a single request.
	MaxBlocksToRequest uint64 `mapstructure:"max_blocks_to_request"`
}

func DefaultBlockSyncConfig() *BlockSyncConfig {
	return &BlockSyncConfig{
		RetryInterval:      200 * time.Millisecond,
		RPCTimeout:         2 * time.Second,
		NumRetries:         5,
		RequestNumPeers:    3,
		MaxBlocksToRequest: 10,
	}
}

func TestBlockSyncConfig() *BlockSyncConfig {
	return &BlockSyncConfig{
		RetryInterval:      20 * time.Millisecond,
		RPCTimeout:         500 * time.Millisecond,
		NumRetries:         3,
		RequestNumPeers:    2,
		MaxBlocksToRequest: 5,
	}
}

func (cfg *BlockSyncConfig) ValidateBasic() error {
	if cfg.RetryInterval <= 0 {
		return errors.New("retry_interval must be positive")
	}
	if cfg.RPCTimeout <= 0 {
		return errors.New("rpc_timeout must be positive")
	}
	if cfg.NumRetries <= 0 {
		return errors.New("num_retries must be positive")
	}
	if cfg.RequestNumPeers <= 0 {
		return errors.New("request_num_peers must be positive")
	}
	if cfg.MaxBlocksToRequest == 0 {
		return errors.New("max_blocks_to_request must be positive")
	}
	return nil
}
