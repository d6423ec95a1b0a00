package rpc

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/aptos-labs/aptos-core-sub050/consensus"
	"github.com/aptos-labs/aptos-core-sub050/libs/metric"
	"github.com/aptos-labs/aptos-core-sub050/mempool"
	"github.com/aptos-labs/aptos-core-sub050/store"
)

var (
	env  *Environment
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// SetEnvironment hands the rpc handlers their backing components. Must be
// called before the http server starts.
func SetEnvironment(e *Environment) {
	env = e
}

type Environment struct {
	Mempool    mempool.Mempool
	Consensus  *consensus.ConsensusState
	BlockStore store.BlockStore

	MetricSet *metric.MetricSet
}
