package rpc

import rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"

var Routes = map[string]*rpcserver.RPCFunc{
	"status":      rpcserver.NewRPCFunc(Status, ""),
	"round_state": rpcserver.NewRPCFunc(RoundState, ""),
	"block":       rpcserver.NewRPCFunc(Block, "round"),
	"chain":       rpcserver.NewRPCFunc(Chain, "from,to"),

	"broadcast_tx":        rpcserver.NewRPCFunc(BroadcastTxAsync, "tx"),
	"num_unconfirmed_txs": rpcserver.NewRPCFunc(NumUnconfirmedTxs, ""),

	"metrics": rpcserver.NewRPCFunc(JSONMetrics, "label"),
}
