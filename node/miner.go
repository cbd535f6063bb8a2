package node

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agecoder/rubinchain/consensus"
	"github.com/agecoder/rubinchain/gossip"
)

// idleMineDelay is how long Run pauses after a failed mining attempt
// (e.g. a race with an incoming block) before trying again.
const idleMineDelay = 500 * time.Millisecond

// Miner repeatedly assembles a coinbase plus the mempool's highest
// fee-rate transactions into a new block and mines it. It runs on its
// own goroutine, never the gossip dispatcher's — generalized from the
// teacher's single-shot devnet miner into a cancellable long-running
// search loop.
type Miner struct {
	node    *Node
	address string
	logger  *zap.Logger
}

// NewMiner constructs a Miner that credits mined blocks to address.
func NewMiner(n *Node, address string, logger *zap.Logger) *Miner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Miner{node: n, address: address, logger: logger}
}

// Run mines blocks in a loop until ctx is canceled.
func (m *Miner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		block, err := m.MineOnce()
		if err != nil {
			m.logger.Warn("mine attempt failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(idleMineDelay):
			}
			continue
		}
		m.logger.Info("mined block", zap.Uint64("height", block.Height), zap.String("hash", block.Hash[:8]))
	}
}

// MineOnce assembles and mines exactly one block on top of the current
// tip, crediting the reward plus collected fees to m.address.
func (m *Miner) MineOnce() (*consensus.Block, error) {
	pending := m.node.Pool.GetPriorityTransactions()

	var totalFees float64
	for _, tx := range pending {
		totalFees += tx.Fee
	}

	nextHeight := m.node.Chain.Height() + 1
	coinbase, err := consensus.NewCoinbaseTransaction(m.address, nextHeight, totalFees)
	if err != nil {
		return nil, err
	}

	transactions := make([]*consensus.Transaction, 0, len(pending)+1)
	transactions = append(transactions, coinbase)
	transactions = append(transactions, pending...)

	block, err := m.node.Chain.AddBlock(transactions)
	if err != nil {
		return nil, err
	}

	m.node.Pool.ClearBlockchainTransactions(m.node.Chain.Chain())
	m.node.RefreshIndex()
	if err := m.node.Gossip.QueueBroadcast(gossip.MsgNewBlock, block); err != nil {
		m.logger.Warn("failed to broadcast mined block", zap.Error(err))
	}
	return block, nil
}
