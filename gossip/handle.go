package gossip

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/agecoder/rubinchain/consensus"
)

// HandleMessage dispatches one inbound frame by its envelope type. Errors
// are logged and swallowed rather than propagated — a malformed or
// rule-violating message from one peer must never take down the read
// loop serving the rest of the gossip state machine, matching the source
// system's catch-and-log handler.
func (e *Engine) HandleMessage(raw []byte, from *Peer) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		e.logger.Warn("invalid envelope", zap.Error(err))
		return
	}
	e.logger.Debug("received message", zap.String("type", env.Type), zap.String("from", env.From))

	switch env.Type {
	case MsgNewBlock:
		e.handleNewBlock(env.Data, from)
	case MsgNewTx:
		e.handleNewTx(env.Data, from)
	case MsgRequestChain:
		e.handleRequestChain(from)
	case MsgResponseChain:
		e.handleResponseChain(env.Data)
	case MsgRequestTxPool:
		e.handleRequestTxPool(from)
	case MsgResponseTxPool:
		e.handleResponseTxPool(env.Data)
	case MsgPeerList:
		e.handlePeerList(env.Data)
	case MsgRequestChainLen:
		e.handleRequestChainLength(from)
	case MsgResponseChainLen:
		e.handleResponseChainLength(env.Data, from)
	case MsgRequestBlocks:
		e.handleRequestBlocks(env.Data, from)
	case MsgResponseBlocks:
		e.handleResponseBlocks(env.Data)
	case MsgRequestTx:
		e.handleRequestTx(env.Data, from)
	case MsgResponseTx:
		e.handleResponseTx(env.Data)
	case MsgRegisterPeer:
		e.handleRegisterPeer(env.Data, from)
	default:
		e.logger.Warn("unknown message type", zap.String("type", env.Type))
	}
}

func (e *Engine) handleNewBlock(data json.RawMessage, from *Peer) {
	var block consensus.Block
	if err := json.Unmarshal(data, &block); err != nil {
		e.logger.Error("NEW_BLOCK: invalid payload", zap.Error(err))
		return
	}
	tip := e.chain.Tip()
	if block.Hash == tip.Hash {
		e.logger.Debug("duplicate block received, skipping")
		return
	}

	if missing := e.missingPrevTxIDs(&block); len(missing) > 0 {
		e.logger.Warn("NEW_BLOCK: ancestor transaction not yet known, requesting and deferring",
			zap.Strings("tx_ids", missing))
		for _, id := range missing {
			e.sendTo(from, MsgRequestTx, id)
		}
		return
	}

	candidate := append(e.chain.Chain(), &block)
	if err := e.chain.ReplaceChain(candidate); err != nil {
		e.logger.Error("failed to replace chain from NEW_BLOCK", zap.Error(err))
		return
	}
	e.pool.ClearBlockchainTransactions(e.chain.Chain())
	e.refreshIndex()
	e.broadcastExcluding(MsgNewBlock, &block, from)
}

// missingPrevTxIDs reports every prev_tx_id referenced by a non-coinbase
// transaction in block that isn't present in the local UTXO set — the
// ancestor hasn't arrived yet, so the block can't be validated until it
// does.
func (e *Engine) missingPrevTxIDs(block *consensus.Block) []string {
	utxo := e.chain.UTXOSnapshot()
	var missing []string
	for _, tx := range block.Data {
		if tx.IsCoinbase {
			continue
		}
		for _, id := range tx.Input.PrevTxIDs {
			if _, ok := utxo[id]; !ok {
				missing = append(missing, id)
			}
		}
	}
	return missing
}

// refreshIndex notifies the owner (if any) that the chain was just
// replaced, so derived lookup state can be rebuilt.
func (e *Engine) refreshIndex() {
	if e.OnChainReplaced != nil {
		e.OnChainReplaced()
	}
}

func (e *Engine) handleNewTx(data json.RawMessage, from *Peer) {
	var tx consensus.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		e.logger.Error("NEW_TX: invalid payload", zap.Error(err))
		return
	}
	if e.pool.AlreadyProcessed(tx.ID) {
		if existing := e.findPending(tx.ID); existing == nil || tx.Input.Timestamp <= existing.Input.Timestamp {
			return
		}
	}
	if err := e.pool.SetTransaction(&tx, nil); err != nil {
		e.logger.Error("NEW_TX: rejected", zap.String("tx_id", tx.ID), zap.Error(err))
		return
	}
	e.broadcastExcluding(MsgNewTx, &tx, from)
	if e.txPoolCooldownElapsed() {
		e.requestTxPoolFromAll()
	}
}

func (e *Engine) findPending(id string) *consensus.Transaction {
	for _, tx := range e.pool.TransactionData() {
		if tx.ID == id {
			return tx
		}
	}
	return nil
}

func (e *Engine) handleRequestChain(from *Peer) {
	e.sendTo(from, MsgResponseChain, e.chain.Chain())
}

func (e *Engine) handleResponseChain(data json.RawMessage) {
	var blocks []*consensus.Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		e.logger.Error("RESPONSE_CHAIN: invalid payload", zap.Error(err))
		return
	}
	if e.isSyncingChain() || len(blocks) <= len(e.chain.Chain()) {
		return
	}
	e.setSyncingChain(true)
	defer e.setSyncingChain(false)
	if err := e.chain.ReplaceChain(blocks); err != nil {
		e.logger.Error("RESPONSE_CHAIN: replace failed", zap.Error(err))
		return
	}
	e.pool.ClearBlockchainTransactions(e.chain.Chain())
	e.refreshIndex()
	if !e.isTxPoolSyncing() && e.txPoolCooldownElapsed() {
		e.requestTxPoolFromAll()
	}
}

func (e *Engine) handleRequestTxPool(from *Peer) {
	e.sendTo(from, MsgResponseTxPool, e.pool.TransactionData())
}

func (e *Engine) handleResponseTxPool(data json.RawMessage) {
	if !e.isTxPoolSyncing() {
		return
	}
	var txs []*consensus.Transaction
	if err := json.Unmarshal(data, &txs); err != nil {
		e.logger.Error("RESPONSE_TX_POOL: invalid payload", zap.Error(err))
		return
	}
	var added int
	for _, tx := range txs {
		if err := e.pool.SetTransaction(tx, nil); err != nil {
			e.logger.Error("RESPONSE_TX_POOL: rejected", zap.String("tx_id", tx.ID), zap.Error(err))
			continue
		}
		added++
	}
	e.logger.Info("tx pool sync batch applied", zap.Int("added", added))
	if added == 0 {
		e.markTxPoolSyncing(false)
	} else if e.txPoolCooldownElapsed() {
		e.requestTxPoolFromAll()
	}
}

func (e *Engine) handlePeerList(data json.RawMessage) {
	var uris []string
	if err := json.Unmarshal(data, &uris); err != nil {
		e.logger.Error("PEER_LIST: invalid payload", zap.Error(err))
		return
	}
	for _, uri := range uris {
		if uri == e.nodeID || uri == e.selfURI {
			continue
		}
		e.mu.Lock()
		_, connected := e.peers[uri]
		_, known := e.knownPeers[uri]
		e.mu.Unlock()
		if connected || known {
			continue
		}
		e.mu.Lock()
		e.knownPeers[uri] = struct{}{}
		e.mu.Unlock()
		e.savePeers()
		go e.ConnectToPeer(uri, 0)
	}
}

func (e *Engine) handleRequestChainLength(from *Peer) {
	e.sendTo(from, MsgResponseChainLen, len(e.chain.Chain()))
}

func (e *Engine) handleResponseChainLength(data json.RawMessage, from *Peer) {
	var peerLength int
	if err := json.Unmarshal(data, &peerLength); err != nil {
		e.logger.Error("RESPONSE_CHAIN_LENGTH: invalid payload", zap.Error(err))
		return
	}
	localLength := len(e.chain.Chain())
	if peerLength > localLength && !e.isSyncingChain() {
		e.setSyncingChain(true)
		e.sendTo(from, MsgRequestBlocks, localLength)
	}
}

func (e *Engine) handleRequestBlocks(data json.RawMessage, from *Peer) {
	var startIndex int
	if err := json.Unmarshal(data, &startIndex); err != nil {
		e.logger.Error("REQUEST_BLOCKS: invalid payload", zap.Error(err))
		return
	}
	full := e.chain.Chain()
	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex > len(full) {
		startIndex = len(full)
	}
	e.sendTo(from, MsgResponseBlocks, full[startIndex:])
}

func (e *Engine) handleResponseBlocks(data json.RawMessage) {
	var blocks []*consensus.Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		e.logger.Error("RESPONSE_BLOCKS: invalid payload", zap.Error(err))
		e.setSyncingChain(false)
		return
	}
	defer e.setSyncingChain(false)
	if len(blocks) == 0 {
		return
	}
	candidate := append(e.chain.Chain(), blocks...)
	if err := e.chain.ReplaceChain(candidate); err != nil {
		e.logger.Error("RESPONSE_BLOCKS: replace failed", zap.Error(err))
		return
	}
	e.pool.ClearBlockchainTransactions(e.chain.Chain())
	e.refreshIndex()
	if !e.isTxPoolSyncing() && e.txPoolCooldownElapsed() {
		e.requestTxPoolFromAll()
	}
}

func (e *Engine) handleRequestTx(data json.RawMessage, from *Peer) {
	var txID string
	if err := json.Unmarshal(data, &txID); err != nil {
		e.logger.Error("REQUEST_TX: invalid payload", zap.Error(err))
		return
	}
	tx := e.findPending(txID)
	if tx == nil {
		e.logger.Warn("requested transaction not found", zap.String("tx_id", txID))
		return
	}
	e.sendTo(from, MsgResponseTx, tx)
}

func (e *Engine) handleResponseTx(data json.RawMessage) {
	var tx consensus.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		e.logger.Error("RESPONSE_TX: invalid payload", zap.Error(err))
		return
	}
	if err := e.pool.SetTransaction(&tx, nil); err != nil {
		e.logger.Error("RESPONSE_TX: rejected", zap.String("tx_id", tx.ID), zap.Error(err))
		return
	}
	e.logger.Info("added transaction from peer", zap.String("tx_id", tx.ID))
}

func (e *Engine) handleRegisterPeer(data json.RawMessage, from *Peer) {
	var uri string
	if err := json.Unmarshal(data, &uri); err != nil {
		e.logger.Error("REGISTER_PEER: invalid payload", zap.Error(err))
		return
	}
	from.URI = uri
	e.addPeer(uri, from)
	e.broadcastPeerList()
}

func (e *Engine) broadcastPeerList() {
	e.mu.Lock()
	uris := make([]string, 0, len(e.peers))
	for uri := range e.peers {
		uris = append(uris, uri)
	}
	e.mu.Unlock()
	msg, err := e.encode(MsgPeerList, uris)
	if err != nil {
		e.logger.Error("failed to encode PEER_LIST", zap.Error(err))
		return
	}
	e.broadcast(msg, nil)
}

func (e *Engine) sendTo(p *Peer, msgType string, payload any) {
	msg, err := e.encode(msgType, payload)
	if err != nil {
		e.logger.Error("failed to encode message", zap.String("type", msgType), zap.Error(err))
		return
	}
	if err := p.Send(msg); err != nil {
		e.logger.Warn("send failed", zap.String("uri", p.URI), zap.Error(err))
		e.removePeer(p.URI)
	}
}

func (e *Engine) broadcastExcluding(msgType string, payload any, exclude *Peer) {
	msg, err := e.encode(msgType, payload)
	if err != nil {
		e.logger.Error("failed to encode message", zap.String("type", msgType), zap.Error(err))
		return
	}
	e.broadcast(msg, exclude)
}
