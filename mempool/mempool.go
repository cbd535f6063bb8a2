// Package mempool holds admitted, unconfirmed transactions and orders them
// by fee priority for block construction.
package mempool

import (
	"container/list"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/agecoder/rubinchain/consensus"
)

// defaultProcessedCapacity bounds the processed-transaction dedup set when
// no explicit capacity is given to New. Sized generously relative to a
// single node's expected working set; node.New passes 0, so this fixed
// value is the capacity in use.
const defaultProcessedCapacity = 4096

// Mempool is the node-local set of admitted unconfirmed transactions, plus
// a bounded record of every transaction ID ever admitted (so re-gossip of
// an already-seen transaction is rejected without a full validity replay).
type Mempool struct {
	mu sync.RWMutex

	transactions map[string]*consensus.Transaction

	processedCap   int
	processedOrder *list.List
	processedIndex map[string]*list.Element

	logger *zap.Logger
}

// New returns an empty Mempool. capacity bounds the processed-transaction
// LRU; a non-positive value uses defaultProcessedCapacity. logger may be
// nil, in which case a no-op logger is used.
func New(capacity int, logger *zap.Logger) *Mempool {
	if capacity <= 0 {
		capacity = defaultProcessedCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mempool{
		transactions:   make(map[string]*consensus.Transaction),
		processedCap:   capacity,
		processedOrder: list.New(),
		processedIndex: make(map[string]*list.Element),
		logger:         logger,
	}
}

// SetTransaction validates tx and admits it. If tx.ID is already present,
// it is replaced only if tx's input timestamp is strictly newer than the
// existing entry's; otherwise the call is a no-op (not an error — a
// stale or equal-timestamp resubmission is simply ignored). utxo may be
// nil to skip UTXO cross-referencing, matching consensus.Transaction.IsValid.
func (mp *Mempool) SetTransaction(tx *consensus.Transaction, utxo consensus.UTXOView) error {
	if err := tx.IsValid(utxo); err != nil {
		return err
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if existing, ok := mp.transactions[tx.ID]; ok {
		if tx.Input.Timestamp <= existing.Input.Timestamp {
			return nil
		}
	}
	mp.transactions[tx.ID] = tx
	mp.markProcessed(tx.ID)
	return nil
}

// markProcessed records id as seen, evicting the least-recently-admitted
// entry once processedCap is exceeded. Caller must hold mp.mu.
func (mp *Mempool) markProcessed(id string) {
	if el, ok := mp.processedIndex[id]; ok {
		mp.processedOrder.MoveToFront(el)
		return
	}
	el := mp.processedOrder.PushFront(id)
	mp.processedIndex[id] = el
	if mp.processedOrder.Len() > mp.processedCap {
		oldest := mp.processedOrder.Back()
		if oldest != nil {
			mp.processedOrder.Remove(oldest)
			delete(mp.processedIndex, oldest.Value.(string))
		}
	}
}

// AlreadyProcessed reports whether id has ever been admitted, within the
// bound of the processed-transaction LRU's capacity.
func (mp *Mempool) AlreadyProcessed(id string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	_, ok := mp.processedIndex[id]
	return ok
}

// ExistingTransaction returns a pending transaction whose input address is
// addr, if any, so a wallet can amend its own in-flight transaction
// instead of creating a second one.
func (mp *Mempool) ExistingTransaction(addr string) *consensus.Transaction {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	for _, tx := range mp.transactions {
		if tx.Input.Address == addr {
			return tx
		}
	}
	return nil
}

// TransactionData returns every pending transaction, in no particular
// order (see GetPriorityTransactions for the ordered view).
func (mp *Mempool) TransactionData() []*consensus.Transaction {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	out := make([]*consensus.Transaction, 0, len(mp.transactions))
	for _, tx := range mp.transactions {
		out = append(out, tx)
	}
	return out
}

// GetPriorityTransactions returns every pending transaction sorted by
// fee/size descending — a miner takes a prefix of this up to the block
// size limit.
func (mp *Mempool) GetPriorityTransactions() []*consensus.Transaction {
	txs := mp.TransactionData()
	sort.SliceStable(txs, func(i, j int) bool {
		return feeRate(txs[i]) > feeRate(txs[j])
	})
	return txs
}

func feeRate(tx *consensus.Transaction) float64 {
	if tx.Size <= 0 {
		return 0
	}
	return tx.Fee / float64(tx.Size)
}

// ClearBlockchainTransactions drops every pending transaction whose ID
// appears in any block of chainList — called after a block is mined
// locally or a chain replacement confirms transactions this node already
// had pending.
func (mp *Mempool) ClearBlockchainTransactions(chainList []*consensus.Block) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	for _, block := range chainList {
		for _, tx := range block.Data {
			delete(mp.transactions, tx.ID)
		}
	}
}

// Remove discards a pending transaction by ID without confirming it —
// the broadcast-failure rollback path (a transaction admitted locally but
// never successfully gossiped is not left dangling in the pool).
func (mp *Mempool) Remove(id string) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	delete(mp.transactions, id)
}

// Len reports the number of pending transactions.
func (mp *Mempool) Len() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return len(mp.transactions)
}
