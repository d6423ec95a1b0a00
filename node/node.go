package node

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/p2p/conn"
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"
	"github.com/tendermint/tendermint/version"
	dbm "github.com/tendermint/tm-db"

	"github.com/aptos-labs/aptos-core-sub050/blocksync"
	cfg "github.com/aptos-labs/aptos-core-sub050/config"
	"github.com/aptos-labs/aptos-core-sub050/consensus"
	"github.com/aptos-labs/aptos-core-sub050/libs/metric"
	mempl "github.com/aptos-labs/aptos-core-sub050/mempool"
	"github.com/aptos-labs/aptos-core-sub050/network"
	"github.com/aptos-labs/aptos-core-sub050/privval"
	"github.com/aptos-labs/aptos-core-sub050/rpc"
	sm "github.com/aptos-labs/aptos-core-sub050/state"
	"github.com/aptos-labs/aptos-core-sub050/store"
	"github.com/aptos-labs/aptos-core-sub050/types"
)

// Provider takes a config and a logger and returns a ready-to-go Node.
type Provider func(*cfg.Config, log.Logger) (*Node, error)

// DBContext specifies config information for loading a new DB.
type DBContext struct {
	ID     string
	Config *cfg.Config
}

// DBProvider takes a DBContext and returns an instantiated DB.
type DBProvider func(*DBContext) (dbm.DB, error)

// DefaultDBProvider returns a database using the DBBackend and DBDir
// specified in the config.
func DefaultDBProvider(ctx *DBContext) (dbm.DB, error) {
	dbType := dbm.BackendType(ctx.Config.DBBackend)
	return dbm.NewDB(ctx.ID, dbType, ctx.Config.DBDir())
}

// Node ties the consensus core, mempool, block sync and networking together
// into one process.
type Node struct {
	service.BaseService

	config     *cfg.Config
	genesisDoc *types.GenesisDoc

	// network
	transport *p2p.MultiplexTransport
	sw        *p2p.Switch
	nodeInfo  p2p.NodeInfo
	nodeKey   *p2p.NodeKey

	// services
	netReactor     *network.Reactor
	mempool        *mempl.ListMempool
	mempoolReactor *mempl.Reactor
	consensus      *consensus.ConsensusState
	fetchManager   *blocksync.FetchManager
	blockStore     store.BlockStore
	stateStore     sm.Store
	metricSet      *metric.MetricSet

	rpcListeners []net.Listener
}

type Option func(*Node)

// DefaultNewNode loads the node key, genesis doc and priv validator from the
// locations named in the config.
func DefaultNewNode(config *cfg.Config, logger log.Logger) (*Node, error) {
	nodeKey, err := p2p.LoadOrGenNodeKey(config.NodeKeyFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load or gen node key %s: %w", config.NodeKeyFile(), err)
	}
	genDoc, err := types.GenesisDocFromFile(config.GenesisFile())
	if err != nil {
		return nil, err
	}
	pv := privval.LoadOrGenFilePV(config.PrivValidatorKeyFile(), config.PrivValidatorStateFile())

	return NewNode(config, genDoc, pv, nodeKey, DefaultDBProvider, logger)
}

func NewNode(
	config *cfg.Config,
	genDoc *types.GenesisDoc,
	pv types.PrivValidator,
	nodeKey *p2p.NodeKey,
	dbProvider DBProvider,
	logger log.Logger,
	options ...Option,
) (*Node, error) {
	blockDB, err := dbProvider(&DBContext{ID: "blockstore", Config: config})
	if err != nil {
		return nil, err
	}
	stateDB, err := dbProvider(&DBContext{ID: "state", Config: config})
	if err != nil {
		return nil, err
	}

	blockStore := store.NewBlockStore(blockDB, logger.With("module", "store"))
	stateStore := sm.NewStore(stateDB)

	state, err := stateStore.Load()
	if err != nil {
		return nil, err
	}
	if state.IsEmpty() {
		state, err = sm.MakeGenesisState(genDoc)
		if err != nil {
			return nil, err
		}
		if err := stateStore.Save(state); err != nil {
			return nil, err
		}
	}

	pubKey, err := pv.GetPubKey()
	if err != nil {
		return nil, fmt.Errorf("can't get pubkey: %w", err)
	}
	selfAddr := pubKey.Address()

	// mempool
	memLogger := logger.With("module", "mempool")
	mem := mempl.NewListMempool(config.Mempool)
	mem.SetLogger(memLogger)
	memReactor := mempl.NewReactor(config.Mempool, mem)
	memReactor.SetLogger(memLogger)

	// networking for consensus and block sync
	netReactor := network.NewReactor(selfAddr)
	netReactor.SetLogger(logger.With("module", "network"))

	blockExec := sm.NewBlockExecutor(stateStore, blockStore, mem)
	blockExec.SetLogger(logger.With("module", "state"))

	// block sync: serve our blocks, fetch missing ancestors
	syncLogger := logger.With("module", "blocksync")
	retriever := blocksync.NewRetriever(syncLogger, netReactor, state.Validators,
		blocksync.WithRetryInterval(config.BlockSync.RetryInterval),
		blocksync.WithRPCTimeout(config.BlockSync.RPCTimeout),
		blocksync.WithNumRetries(config.BlockSync.NumRetries),
		blocksync.WithRequestNumPeers(config.BlockSync.RequestNumPeers),
		blocksync.WithMaxBlocksToRequest(config.BlockSync.MaxBlocksToRequest),
	)

	var cs *consensus.ConsensusState
	fetchManager := blocksync.NewFetchManager(retriever, func(qc *types.QuorumCert, blocks []*types.Block) {
		cs.OnBlocksRetrieved(qc, blocks)
	})
	fetchManager.SetLogger(syncLogger)

	cs = consensus.NewConsensusState(config.Consensus, state, blockExec, netReactor,
		consensus.SetPrivValidator(pv),
		consensus.SetFetchManager(fetchManager),
	)
	cs.SetLogger(logger.With("module", "consensus"))
	netReactor.SetReceiver(cs)

	// serve retrieval requests from the uncommitted cache first, then the store
	syncServer := blocksync.NewServer(syncLogger, blocksync.MultiReader{
		blocksync.SetReader{Set: cs.Blocks},
		blockStore,
	})
	netReactor.SetRPCHandler(syncServer.HandleRequest)

	metricSet := metric.NewMetricSet()
	if err := metricSet.SetMetrics("consensus", cs.Metric()); err != nil {
		return nil, err
	}
	if err := metricSet.SetMetrics("mempool", mem.Metric()); err != nil {
		return nil, err
	}

	nodeInfo, err := makeNodeInfo(config, nodeKey, genDoc.ChainID)
	if err != nil {
		return nil, err
	}
	transport := createTransport(nodeInfo, nodeKey)
	sw := createSwitch(config, transport, netReactor, memReactor, nodeInfo, nodeKey,
		logger.With("module", "p2p"))

	node := &Node{
		config:         config,
		genesisDoc:     genDoc,
		transport:      transport,
		sw:             sw,
		nodeInfo:       nodeInfo,
		nodeKey:        nodeKey,
		netReactor:     netReactor,
		mempool:        mem,
		mempoolReactor: memReactor,
		consensus:      cs,
		fetchManager:   fetchManager,
		blockStore:     blockStore,
		stateStore:     stateStore,
		metricSet:      metricSet,
	}
	node.BaseService = *service.NewBaseService(logger, "Node", node)

	for _, option := range options {
		option(node)
	}
	return node, nil
}

func createTransport(nodeInfo p2p.NodeInfo, nodeKey *p2p.NodeKey) *p2p.MultiplexTransport {
	return p2p.NewMultiplexTransport(nodeInfo, *nodeKey, conn.DefaultMConnConfig())
}

func createSwitch(
	config *cfg.Config,
	transport p2p.Transport,
	netReactor *network.Reactor,
	memReactor *mempl.Reactor,
	nodeInfo p2p.NodeInfo,
	nodeKey *p2p.NodeKey,
	p2pLogger log.Logger,
) *p2p.Switch {
	sw := p2p.NewSwitch(config.P2P, transport)
	sw.SetLogger(p2pLogger)
	sw.AddReactor("NETWORK", netReactor)
	sw.AddReactor("MEMPOOL", memReactor)
	sw.SetNodeInfo(nodeInfo)
	sw.SetNodeKey(nodeKey)

	p2pLogger.Info("P2P Node ID", "ID", nodeKey.ID(), "file", config.NodeKeyFile())
	return sw
}

func makeNodeInfo(config *cfg.Config, nodeKey *p2p.NodeKey, chainID string) (p2p.NodeInfo, error) {
	nodeInfo := p2p.DefaultNodeInfo{
		ProtocolVersion: p2p.NewProtocolVersion(8, 11, 0),
		DefaultNodeID:   nodeKey.ID(),
		Network:         chainID,
		Version:         version.TMCoreSemVer,
		Channels: []byte{
			network.ConsensusChannel,
			network.SyncRequestChannel,
			network.SyncReplyChannel,
			mempl.MempoolChannel,
		},
		Moniker: config.Moniker,
		Other: p2p.DefaultNodeInfoOther{
			TxIndex:    "off",
			RPCAddress: config.RPC.ListenAddress,
		},
	}

	lAddr := config.P2P.ExternalAddress
	if lAddr == "" {
		lAddr = config.P2P.ListenAddress
	}
	nodeInfo.ListenAddr = lAddr

	return nodeInfo, nodeInfo.Validate()
}

func (n *Node) OnStart() error {
	addr, err := p2p.NewNetAddressString(p2p.IDAddressString(n.nodeKey.ID(), n.config.P2P.ListenAddress))
	if err != nil {
		return err
	}
	if err := n.transport.Listen(*addr); err != nil {
		return err
	}

	if err := n.sw.Start(); err != nil {
		return err
	}

	if err := n.sw.DialPeersAsync(splitAndTrimEmpty(n.config.P2P.PersistentPeers, ",", " ")); err != nil {
		return fmt.Errorf("could not dial peers from persistent_peers field: %w", err)
	}

	if err := n.fetchManager.Start(); err != nil {
		return err
	}
	if err := n.consensus.Start(); err != nil {
		return err
	}

	if n.config.RPC.ListenAddress != "" {
		listeners, err := n.startRPC()
		if err != nil {
			return err
		}
		n.rpcListeners = listeners
	}
	return nil
}

func (n *Node) OnStop() {
	for _, l := range n.rpcListeners {
		if err := l.Close(); err != nil {
			n.Logger.Error("error closing rpc listener", "err", err)
		}
	}
	if err := n.consensus.Stop(); err != nil {
		n.Logger.Error("error stopping consensus", "err", err)
	}
	if err := n.fetchManager.Stop(); err != nil {
		n.Logger.Error("error stopping fetch manager", "err", err)
	}
	if err := n.sw.Stop(); err != nil {
		n.Logger.Error("error stopping switch", "err", err)
	}
	if err := n.transport.Close(); err != nil {
		n.Logger.Error("error closing transport", "err", err)
	}
}

func (n *Node) startRPC() ([]net.Listener, error) {
	rpc.SetEnvironment(&rpc.Environment{
		Mempool:    n.mempool,
		Consensus:  n.consensus,
		BlockStore: n.blockStore,
		MetricSet:  n.metricSet,
	})

	listenAddrs := splitAndTrimEmpty(n.config.RPC.ListenAddress, ",", " ")
	rpcLogger := n.Logger.With("module", "rpc-server")

	config := rpcserver.DefaultConfig()
	config.MaxOpenConnections = n.config.RPC.MaxOpenConnections

	listeners := make([]net.Listener, 0, len(listenAddrs))
	for _, listenAddr := range listenAddrs {
		mux := http.NewServeMux()
		rpcserver.RegisterRPCFuncs(mux, rpc.Routes, rpcLogger)

		listener, err := rpcserver.Listen(listenAddr, config)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := rpcserver.Serve(listener, mux, rpcLogger, config); err != nil {
				rpcLogger.Error("rpc server stopped", "err", err)
			}
		}()
		listeners = append(listeners, listener)
	}
	return listeners, nil
}

//--------------------------------------------------------------------------------

func (n *Node) Switch() *p2p.Switch                       { return n.sw }
func (n *Node) NodeInfo() p2p.NodeInfo                    { return n.nodeInfo }
func (n *Node) GenesisDoc() *types.GenesisDoc             { return n.genesisDoc }
func (n *Node) ConsensusState() *consensus.ConsensusState { return n.consensus }
func (n *Node) Mempool() mempl.Mempool                    { return n.mempool }
func (n *Node) BlockStore() store.BlockStore              { return n.blockStore }
func (n *Node) MetricSet() *metric.MetricSet              { return n.metricSet }

func splitAndTrimEmpty(s, sep, cutset string) []string {
	if s == "" {
		return []string{}
	}

	spl := strings.Split(s, sep)
	nonEmptyStrings := make([]string, 0, len(spl))
	for i := 0; i < len(spl); i++ {
		element := strings.Trim(spl[i], cutset)
		if element != "" {
			nonEmptyStrings = append(nonEmptyStrings, element)
		}
	}
	return nonEmptyStrings
}
