// Package feerate estimates a suggested fee rate (coin per byte) from
// mempool depth and recent block fullness, refreshed on a TTL. Grounded
// on original_source/backend/services/fee_rate_estimator.py, with the
// asyncio lock translated to a sync.Mutex — there is no cooperative
// scheduler here, just concurrent HTTP handlers calling Rate().
package feerate

import (
	"sync"
	"time"

	"github.com/agecoder/rubinchain/chain"
	"github.com/agecoder/rubinchain/mempool"
)

const (
	// DefaultFeeRate is the floor the estimator never drops below,
	// matching the original's DEFAULT_FEE_RATE (coin per byte).
	DefaultFeeRate = 0.00001

	// MempoolThreshold is the pending-transaction count above which the
	// estimate starts climbing. original_source imports this name from
	// config but never defines it; chosen as a round number in the same
	// register as the rest of config.py's constants (see DESIGN.md).
	MempoolThreshold = 1000

	// BlockFullnessThreshold is the recent-blocks fullness ratio above
	// which the estimate climbs further. Same unresolved-import
	// situation as MempoolThreshold; chosen to sit below 1.0 so the
	// adjustment can actually trigger before blocks are completely full.
	BlockFullnessThreshold = 0.75

	// UpdateInterval bounds how stale Rate()'s answer may be before a
	// recompute is triggered.
	UpdateInterval = 30 * time.Second

	// blockSizeLimit matches consensus.BlockSizeLimit; duplicated here
	// rather than imported to keep feerate decoupled from consensus
	// internals it otherwise has no need of.
	blockSizeLimit = 1_000_000

	recentBlockWindow = 10
)

// Estimator holds the current fee-rate estimate and recomputes it lazily.
type Estimator struct {
	chain *chain.Blockchain
	pool  *mempool.Mempool

	mu         sync.Mutex
	currentFee float64
	lastUpdate time.Time
}

// New constructs an Estimator starting at DefaultFeeRate.
func New(bc *chain.Blockchain, pool *mempool.Mempool) *Estimator {
	return &Estimator{chain: bc, pool: pool, currentFee: DefaultFeeRate}
}

// Rate returns the current fee-rate estimate, refreshing it first if it
// has gone stale past UpdateInterval.
func (e *Estimator) Rate() float64 {
	e.mu.Lock()
	stale := time.Since(e.lastUpdate) > UpdateInterval
	e.mu.Unlock()
	if stale {
		e.Refresh()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentFee
}

// Fullness reports the current recent-block-fullness ratio used by
// Refresh, exposed for the control surface's `/fee-rate` response.
func (e *Estimator) Fullness() float64 {
	return recentFullness(e.chain)
}

func recentFullness(bc *chain.Blockchain) float64 {
	full := bc.Chain()
	recent := full
	if len(full) > recentBlockWindow {
		recent = full[len(full)-recentBlockWindow:]
	}
	if len(recent) == 0 {
		return 0
	}
	var totalBytes int
	for _, block := range recent {
		for _, tx := range block.Data {
			totalBytes += tx.Size
		}
	}
	return float64(totalBytes) / (float64(len(recent)) * blockSizeLimit)
}

// Refresh recomputes the fee-rate estimate from current mempool depth and
// recent block fullness.
func (e *Estimator) Refresh() {
	mempoolSize := e.pool.Len()
	fullness := recentFullness(e.chain)

	rate := DefaultFeeRate
	if mempoolSize > MempoolThreshold {
		rate *= 1 + (float64(mempoolSize)/MempoolThreshold)*0.5
	}
	if fullness > BlockFullnessThreshold {
		rate *= 1 + (fullness/BlockFullnessThreshold)*0.3
	}
	if rate < DefaultFeeRate {
		rate = DefaultFeeRate
	}

	e.mu.Lock()
	e.currentFee = rate
	e.lastUpdate = time.Now()
	e.mu.Unlock()
}
