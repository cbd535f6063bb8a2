package gossip

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Upgrade promotes an inbound HTTP request to a WebSocket peer connection
// and runs its read loop until the peer disconnects. Intended as an
// http.HandlerFunc registered on the node's gossip listen address.
func (e *Engine) Upgrade(w http.ResponseWriter, r *http.Request) {
	if e.atCapacity() {
		http.Error(w, "peer registry full", http.StatusServiceUnavailable)
		return
	}
	conn, err := e.upgrade.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Error("upgrade failed", zap.Error(err))
		return
	}
	uri := "ws://" + r.RemoteAddr
	p := newPeer(uri, conn, e.logger)
	e.addPeer(uri, p)
	e.logger.Info("new peer connected", zap.String("uri", uri))
	go p.writePump()

	e.sendTo(p, MsgRequestChainLen, nil)
	if !e.isTxPoolSyncing() && e.txPoolCooldownElapsed() {
		e.markTxPoolSyncing(true)
		e.sendTo(p, MsgRequestTxPool, nil)
	}

	p.readPump(func(data []byte) { e.HandleMessage(data, p) }, func() {
		e.removePeer(uri)
	})
}

// ConnectToPeer dials uri and runs its read loop, retrying up to
// e.maxRetries times on failure before evicting uri from the known-peers
// set, mirroring connect_to_peer's retry/backoff/eviction shape.
func (e *Engine) ConnectToPeer(uri string, retries int) {
	e.mu.Lock()
	_, already := e.peers[uri]
	e.mu.Unlock()
	if already {
		return
	}
	if e.atCapacity() {
		e.logger.Debug("peer registry full, not dialing", zap.String("uri", uri))
		return
	}
	if retries >= e.maxRetries {
		e.mu.Lock()
		delete(e.knownPeers, uri)
		e.mu.Unlock()
		e.savePeers()
		e.logger.Info("max retries reached, dropping peer", zap.String("uri", uri))
		return
	}

	conn, _, err := e.dialer.Dial(uri, nil)
	if err != nil {
		e.logger.Error("failed to connect to peer", zap.String("uri", uri), zap.Error(err), zap.Int("retry", retries+1))
		time.Sleep(reconnectDelay)
		e.ConnectToPeer(uri, retries+1)
		return
	}

	p := newPeer(uri, conn, e.logger)
	e.addPeer(uri, p)
	e.logger.Info("connected to peer", zap.String("uri", uri))
	go p.writePump()

	e.sendTo(p, MsgRequestChainLen, nil)
	if !e.isTxPoolSyncing() && e.txPoolCooldownElapsed() {
		e.markTxPoolSyncing(true)
		e.sendTo(p, MsgRequestTxPool, nil)
	}

	disconnected := make(chan struct{})
	p.readPump(func(data []byte) { e.HandleMessage(data, p) }, func() {
		e.removePeer(uri)
		close(disconnected)
	})
	<-disconnected
	time.Sleep(reconnectDelay)
	e.ConnectToPeer(uri, retries+1)
}

// RegisterWithBootNode dials the boot node and announces this engine's
// own URI, retrying up to e.maxRetries times.
func (e *Engine) RegisterWithBootNode(retries int) {
	if e.bootNodeURI == "" || e.selfURI == e.bootNodeURI {
		return
	}
	if retries >= e.maxRetries {
		e.logger.Error("max retries reached for boot node", zap.String("uri", e.bootNodeURI))
		return
	}
	conn, _, err := e.dialer.Dial(e.bootNodeURI, nil)
	if err != nil {
		e.logger.Error("failed to register with boot node", zap.Error(err), zap.Int("retry", retries+1))
		time.Sleep(reconnectDelay / 2)
		e.RegisterWithBootNode(retries + 1)
		return
	}
	p := newPeer(e.bootNodeURI, conn, e.logger)
	go p.writePump()
	e.sendTo(p, MsgRegisterPeer, e.selfURI)
	p.readPump(func(data []byte) { e.HandleMessage(data, p) }, func() {})
}

// RunPeerDiscovery registers with the boot node (if configured) and
// dials every peer previously persisted to peers.json. Intended to be
// started once, in its own goroutine, at node startup.
func (e *Engine) RunPeerDiscovery() {
	e.logger.Info("starting peer discovery")
	if e.bootNodeURI != "" && e.selfURI != e.bootNodeURI {
		go e.RegisterWithBootNode(0)
	}
	e.mu.Lock()
	uris := make([]string, 0, len(e.knownPeers))
	for uri := range e.knownPeers {
		uris = append(uris, uri)
	}
	e.mu.Unlock()
	for _, uri := range uris {
		if uri == e.selfURI || uri == e.nodeID {
			continue
		}
		go e.ConnectToPeer(uri, 0)
	}
}
