// Package chain owns the canonical block list and the UTXO set derived
// from it, and implements the longest-chain replacement rule.
package chain

import (
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/agecoder/rubinchain/consensus"
)

// Blockchain is the authoritative in-memory ledger: an ordered block list
// plus the UTXO set it implies. Every exported method is safe for
// concurrent use; callers never see a chain and UTXO set that disagree
// with each other.
type Blockchain struct {
	mu            sync.RWMutex
	chainList     []*consensus.Block
	utxoSet       consensus.UTXOView
	currentHeight uint64

	// difficultyWindow accumulates blocks since the last RetargetWindow
	// boundary, mirroring the source system's per-chain adjustment buffer.
	difficultyWindow []*consensus.Block

	logger *zap.Logger
}

// New returns a Blockchain seeded with the genesis block and its UTXO set.
// logger may be nil, in which case a no-op logger is used.
func New(logger *zap.Logger) *Blockchain {
	if logger == nil {
		logger = zap.NewNop()
	}
	genesis := consensus.Genesis()
	bc := &Blockchain{
		chainList: []*consensus.Block{genesis},
		utxoSet:   consensus.UTXOView{},
		logger:    logger,
	}
	bc.initializeUTXOSet()
	return bc
}

func (bc *Blockchain) initializeUTXOSet() {
	for _, tx := range bc.chainList[0].Data {
		if len(tx.Output) > 0 {
			bc.utxoSet[tx.ID] = tx.Output
		}
	}
}

// Tip returns the most recently accepted block.
func (bc *Blockchain) Tip() *consensus.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.chainList[len(bc.chainList)-1]
}

// Height returns the height of the current tip.
func (bc *Blockchain) Height() uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.currentHeight
}

// Chain returns a shallow copy of the current block list, safe for the
// caller to range over without holding the chain's lock.
func (bc *Blockchain) Chain() []*consensus.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	out := make([]*consensus.Block, len(bc.chainList))
	copy(out, bc.chainList)
	return out
}

// UTXOSnapshot returns a shallow copy of the current UTXO set.
func (bc *Blockchain) UTXOSnapshot() consensus.UTXOView {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	out := make(consensus.UTXOView, len(bc.utxoSet))
	for k, v := range bc.utxoSet {
		out[k] = v
	}
	return out
}

// AddBlock validates transactions against the current UTXO set, mines a
// block extending the tip, appends it, and folds it into the UTXO set.
// Transactions referencing UTXOs that do not cover their claimed input
// amount are rejected before mining is attempted.
func (bc *Blockchain) AddBlock(transactions []*consensus.Transaction) (*consensus.Block, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	last := bc.chainList[len(bc.chainList)-1]
	for _, tx := range transactions {
		if tx.IsCoinbase {
			continue
		}
		var utxoAmount float64
		for _, prevID := range tx.Input.PrevTxIDs {
			entry, ok := bc.utxoSet[prevID]
			if !ok {
				return nil, fmt.Errorf("invalid transaction input: no utxo found for tx %s and address %s", prevID, tx.Input.Address)
			}
			v, ok := entry[tx.Input.Address]
			if !ok {
				return nil, fmt.Errorf("invalid transaction input: no utxo found for tx %s and address %s", prevID, tx.Input.Address)
			}
			utxoAmount += v
		}
		if tx.Input.Amount > utxoAmount {
			return nil, fmt.Errorf("invalid transaction input: input amount %.4f exceeds utxo amount %.4f", tx.Input.Amount, utxoAmount)
		}
	}

	block, err := consensus.Mine(last, transactions)
	if err != nil {
		bc.logger.Error("block rejected", zap.Uint64("height", last.Height+1), zap.Error(err))
		return nil, err
	}
	bc.chainList = append(bc.chainList, block)
	bc.currentHeight = block.Height
	bc.updateUTXOSet(block)
	bc.difficultyWindow = append(bc.difficultyWindow, block)
	if uint64(len(bc.difficultyWindow)) > consensus.RetargetWindow {
		bc.difficultyWindow = bc.difficultyWindow[1:]
	}
	bc.logger.Info("block added", zap.Uint64("height", block.Height), zap.String("hash", block.Hash[:8]))
	return block, nil
}

// updateUTXOSet folds one already-accepted block into the UTXO set:
// every input's prev_tx_id entry is deleted in full (see the whole-
// transaction consumption model in DESIGN.md), then every output map is
// inserted keyed by its owning transaction's ID.
func (bc *Blockchain) updateUTXOSet(block *consensus.Block) {
	for _, tx := range block.Data {
		if !tx.IsCoinbase {
			for _, prevID := range tx.Input.PrevTxIDs {
				delete(bc.utxoSet, prevID)
			}
		}
		if len(tx.Output) > 0 {
			bc.utxoSet[tx.ID] = tx.Output
		}
	}
}

// CalculateDifficulty reports the window-based retarget once
// RetargetWindow blocks have accumulated since the last boundary,
// otherwise the tip's current difficulty.
func (bc *Blockchain) CalculateDifficulty() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if uint64(len(bc.difficultyWindow)) < consensus.RetargetWindow {
		return bc.chainList[len(bc.chainList)-1].Difficulty
	}
	first := bc.difficultyWindow[0]
	last := bc.difficultyWindow[len(bc.difficultyWindow)-1]
	bc.difficultyWindow = nil
	return consensus.RetargetWindowDifficulty(first, last)
}

// ReplaceChain atomically swaps in candidate if it is longer and valid,
// rebuilding the UTXO set from scratch. On any failure the chain and UTXO
// set are left exactly as they were; nothing is applied partway.
func (bc *Blockchain) ReplaceChain(candidate []*consensus.Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if len(candidate) <= len(bc.chainList) {
		return fmt.Errorf("new chain must be longer: got %d, have %d", len(candidate), len(bc.chainList))
	}
	if err := IsValidChain(candidate); err != nil {
		return fmt.Errorf("replace chain: %w", err)
	}
	newUTXO, err := RebuildUTXOSet(candidate)
	if err != nil {
		return fmt.Errorf("replace chain: rebuild utxo set: %w", err)
	}
	bc.chainList = candidate
	bc.utxoSet = newUTXO
	bc.currentHeight = uint64(len(candidate) - 1)
	bc.difficultyWindow = nil
	bc.logger.Info("chain replaced", zap.Uint64("height", bc.currentHeight))
	return nil
}

// RebuildUTXOSet replays chain from scratch into a fresh UTXOView,
// rejecting a chain that references a UTXO no replay-so-far entry covers.
func RebuildUTXOSet(chainList []*consensus.Block) (consensus.UTXOView, error) {
	utxo := consensus.UTXOView{}
	for _, block := range chainList {
		for _, tx := range block.Data {
			if !tx.IsCoinbase {
				for _, prevID := range tx.Input.PrevTxIDs {
					if _, ok := utxo[prevID]; !ok {
						return nil, fmt.Errorf("invalid input for tx %s: utxo %s not found", tx.ID, prevID)
					}
					delete(utxo, prevID)
				}
			}
			if len(tx.Output) > 0 {
				utxo[tx.ID] = tx.Output
			}
		}
	}
	return utxo, nil
}

// IsValidChain replays candidate from genesis, checking block linkage,
// per-block proof-of-work (via consensus.Validate), height sequencing,
// coinbase placement, and that the chain's total minted subsidy plus fees
// matches consensus.TotalSubsidy for its length within SubsidyEpsilon.
func IsValidChain(candidate []*consensus.Block) error {
	if len(candidate) == 0 || candidate[0].Hash != consensus.Genesis().Hash {
		return fmt.Errorf("invalid genesis block")
	}

	utxo := consensus.UTXOView{}
	var totalSubsidy, totalFees float64
	var expectedHeight uint64

	for i, block := range candidate {
		if i > 0 {
			if err := consensus.Validate(candidate[i-1], block, nil); err != nil {
				return err
			}
		}
		if block.Height != expectedHeight {
			return fmt.Errorf("incorrect height at block %d", i)
		}
		expectedHeight++

		var hasCoinbase bool
		var coinbaseTx *consensus.Transaction
		var blockFees float64
		for _, tx := range block.Data {
			if tx.IsCoinbase {
				if hasCoinbase {
					return fmt.Errorf("multiple coinbase transactions at block %d", i)
				}
				hasCoinbase = true
				coinbaseTx = tx
			} else {
				if err := tx.IsValid(nil); err != nil {
					return err
				}
				for _, prevID := range tx.Input.PrevTxIDs {
					if _, ok := utxo[prevID]; !ok {
						return fmt.Errorf("invalid input for tx %s: utxo %s not found", tx.ID, prevID)
					}
					delete(utxo, prevID)
				}
				blockFees += tx.Fee
			}
			utxo[tx.ID] = tx.Output
		}
		if !hasCoinbase && i > 0 {
			return fmt.Errorf("missing coinbase transaction at block %d", i)
		}
		if coinbaseTx != nil {
			if coinbaseTx.Input.BlockHeight != block.Height {
				return fmt.Errorf("coinbase block height mismatch at block %d", i)
			}
			if math.Abs(coinbaseTx.Input.Fees-blockFees) > consensus.SubsidyEpsilon {
				return fmt.Errorf("coinbase fees field does not match block fees at block %d", i)
			}
			if err := coinbaseTx.IsValid(nil); err != nil {
				return err
			}
			totalSubsidy += coinbaseTx.Output.Total()
			totalFees += coinbaseTx.Input.Fees
		}
	}

	expectedSubsidy := consensus.TotalSubsidy(uint64(len(candidate)))
	got := totalSubsidy
	want := expectedSubsidy + totalFees
	delta := got - want
	if delta < 0 {
		delta = -delta
	}
	if delta > consensus.SubsidyEpsilon {
		return fmt.Errorf("invalid total subsidy: got %.4f, expected %.4f + fees %.4f", got, expectedSubsidy, totalFees)
	}
	return nil
}
