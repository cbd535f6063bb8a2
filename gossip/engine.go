// Package gossip implements the peer-to-peer state machine: block, mempool
// transaction, chain-length and block-range synchronisation over
// WebSocket, one JSON envelope per frame.
package gossip

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agecoder/rubinchain/chain"
	"github.com/agecoder/rubinchain/mempool"
)

// defaultMaxRetries bounds connect_to_peer's retry loop before a peer uri
// is evicted from the known-peers set.
const defaultMaxRetries = 3

// defaultMaxPeers bounds the connected-peer registry size. The source
// system has no such cap (every registered peer is kept); this is an
// ambient safety limit carried over from the teacher's node.Config, not
// a DoS-hardened peer-scoring system.
const defaultMaxPeers = 64

// txPoolCooldown is the minimum interval between REQUEST_TX_POOL
// broadcasts, to avoid request storms when many peers come and go.
const txPoolCooldown = 5 * time.Second

// reconnectDelay is the pause between connect_to_peer retries.
const reconnectDelay = 10 * time.Second

// Config parameterizes an Engine.
type Config struct {
	NodeID      string // defaults to a fresh UUID if empty
	SelfURI     string
	BootNodeURI string
	PeersFile   string
	MaxRetries  int
	MaxPeers    int
	Logger      *zap.Logger
}

// Engine owns the peer registry and the gossip state machine
// ({Idle, SyncingChain, SyncingMempool} per node). One Engine serves both
// inbound connections (via Upgrade) and outbound ones (via ConnectToPeer).
type Engine struct {
	nodeID      string
	selfURI     string
	bootNodeURI string
	peersFile   string
	maxRetries  int
	maxPeers    int

	chain   *chain.Blockchain
	pool    *mempool.Mempool
	logger  *zap.Logger
	dialer  *websocket.Dialer
	upgrade websocket.Upgrader

	mu                sync.Mutex
	peers             map[string]*Peer
	knownPeers        map[string]struct{}
	syncingChain      bool
	txPoolSyncing     bool
	lastTxPoolRequest time.Time

	broadcastQueue chan broadcastRequest

	// OnChainReplaced, if set, is called after every gossip-driven
	// chain.ReplaceChain succeeds, so an owner can keep derived state (the
	// node's height/txid lookup index) in sync with network-driven updates
	// and not just locally mined ones.
	OnChainReplaced func()
}

// broadcastRequest bridges a blocking caller (the HTTP handler) onto the
// gossip dispatcher: Done is closed once the broadcast attempt completes.
type broadcastRequest struct {
	msgType string
	payload any
	exclude *Peer
	done    chan error
}

// New constructs an Engine wired to bc and pool.
func New(bc *chain.Blockchain, pool *mempool.Mempool, cfg Config) *Engine {
	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.PeersFile == "" {
		cfg.PeersFile = "peers.json"
	}
	if cfg.MaxPeers <= 0 {
		cfg.MaxPeers = defaultMaxPeers
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		nodeID:         cfg.NodeID,
		selfURI:        cfg.SelfURI,
		bootNodeURI:    cfg.BootNodeURI,
		peersFile:      cfg.PeersFile,
		maxRetries:     cfg.MaxRetries,
		maxPeers:       cfg.MaxPeers,
		chain:          bc,
		pool:           pool,
		logger:         logger,
		dialer:         websocket.DefaultDialer,
		upgrade:        websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		peers:          make(map[string]*Peer),
		knownPeers:     make(map[string]struct{}),
		broadcastQueue: make(chan broadcastRequest, 256),
	}
	e.knownPeers = e.loadPeers()
	return e
}

// NodeID returns this engine's gossip identity.
func (e *Engine) NodeID() string { return e.nodeID }

// PeerCount returns the number of currently connected peers.
func (e *Engine) PeerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.peers)
}

// RunDispatcher drains the broadcast bridge until ctx-like stop channel
// closes; callers typically run this in its own goroutine, the one
// goroutine allowed to mutate the peer registry alongside connection
// lifecycle callbacks (all of which funnel through Engine methods that
// take e.mu).
func (e *Engine) RunDispatcher(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case req := <-e.broadcastQueue:
			msg, err := e.encode(req.msgType, req.payload)
			if err != nil {
				req.done <- err
				continue
			}
			e.broadcast(msg, req.exclude)
			req.done <- nil
		}
	}
}

// QueueBroadcast posts a broadcast onto the dispatcher and blocks for its
// completion — the HTTP→gossip bridge a blocking request handler uses to
// get a transaction or block onto the wire without itself touching the
// peer registry. Returns ErrLoopUnavailable if the dispatcher is not
// draining the queue (e.g. RunDispatcher was never started).
func (e *Engine) QueueBroadcast(msgType string, payload any) error {
	req := broadcastRequest{msgType: msgType, payload: payload, done: make(chan error, 1)}
	select {
	case e.broadcastQueue <- req:
	default:
		return newErr(ErrLoopUnavailable, "broadcast queue full or dispatcher not running")
	}
	select {
	case err := <-req.done:
		return err
	case <-time.After(10 * time.Second):
		return newErr(ErrLoopUnavailable, "timed out waiting for dispatcher")
	}
}

// broadcast sends message to every connected peer except exclude,
// removing any peer whose Send fails.
func (e *Engine) broadcast(message []byte, exclude *Peer) {
	e.mu.Lock()
	targets := make([]*Peer, 0, len(e.peers))
	for _, p := range e.peers {
		if p != exclude {
			targets = append(targets, p)
		}
	}
	e.mu.Unlock()

	e.logger.Debug("broadcasting", zap.Int("peers", len(targets)))
	var failed []*Peer
	for _, p := range targets {
		if err := p.Send(message); err != nil {
			e.logger.Warn("send failed, marking for removal", zap.String("uri", p.URI), zap.Error(err))
			failed = append(failed, p)
		}
	}
	for _, p := range failed {
		e.removePeer(p.URI)
	}

	e.mu.Lock()
	noPeers := len(e.peers) == 0
	cooldownElapsed := time.Since(e.lastTxPoolRequest) > txPoolCooldown
	e.mu.Unlock()
	if noPeers && cooldownElapsed {
		e.requestTxPoolFromAll()
	}
}

// atCapacity reports whether the peer registry has reached maxPeers.
func (e *Engine) atCapacity() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.peers) >= e.maxPeers
}

func (e *Engine) removePeer(uri string) {
	e.mu.Lock()
	p, ok := e.peers[uri]
	if ok {
		delete(e.peers, uri)
		delete(e.knownPeers, uri)
	}
	e.mu.Unlock()
	if ok {
		p.Close()
		e.savePeers()
		e.logger.Info("peer removed", zap.String("uri", uri))
	}
}

func (e *Engine) addPeer(uri string, p *Peer) {
	e.mu.Lock()
	e.peers[uri] = p
	e.knownPeers[uri] = struct{}{}
	e.mu.Unlock()
	e.savePeers()
}

func (e *Engine) markTxPoolSyncing(v bool) {
	e.mu.Lock()
	e.txPoolSyncing = v
	if v {
		e.lastTxPoolRequest = time.Now()
	}
	e.mu.Unlock()
}

func (e *Engine) txPoolCooldownElapsed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Since(e.lastTxPoolRequest) > txPoolCooldown
}

func (e *Engine) isTxPoolSyncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.txPoolSyncing
}

func (e *Engine) setSyncingChain(v bool) {
	e.mu.Lock()
	e.syncingChain = v
	e.mu.Unlock()
}

func (e *Engine) isSyncingChain() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncingChain
}

// requestTxPoolFromAll broadcasts REQUEST_TX_POOL and marks the engine as
// syncing its mempool, subject to the shared cooldown.
func (e *Engine) requestTxPoolFromAll() {
	e.markTxPoolSyncing(true)
	msg, err := e.encode(MsgRequestTxPool, nil)
	if err != nil {
		e.logger.Error("failed to encode REQUEST_TX_POOL", zap.Error(err))
		return
	}
	e.broadcast(msg, nil)
}
