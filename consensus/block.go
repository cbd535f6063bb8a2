package consensus

import (
	"fmt"
	"math"
	"time"
)

// Block is the unit of chain extension: an ordered batch of transactions
// committed by a Merkle root, sealed by proof-of-work over a canonical
// encoding of its header fields.
type Block struct {
	Timestamp  int64 // nanoseconds
	LastHash   string
	Hash       string
	Data       []*Transaction
	Difficulty int
	Nonce      uint64
	Height     uint64
	Version    int
	MerkleRoot string
	TxCount    int
}

func (b *Block) headerArgs() []any {
	data := make([]any, len(b.Data))
	for i, tx := range b.Data {
		data[i] = tx.canonical()
	}
	return []any{b.Timestamp, b.LastHash, data, b.Difficulty, b.Nonce, b.Height, b.Version, b.MerkleRoot, b.TxCount}
}

func (b *Block) computeHash() string {
	return Hash(b.headerArgs()...)
}

// serializedSize is the canonical JSON byte length of the block body,
// used for the BlockSizeLimit check both while mining and while validating.
func (b *Block) serializedSize() int {
	data := make([]any, len(b.Data))
	for i, tx := range b.Data {
		data[i] = tx.canonical()
	}
	return len(CanonicalJSON(data))
}

// AdjustDifficulty computes the per-block difficulty delta: a faster than
// MinRate gap raises difficulty, a gap more than 2x TargetBlockTime lowers
// it (never below 1), otherwise it is unchanged.
func AdjustDifficulty(last *Block, newTimestamp int64) int {
	delta := newTimestamp - last.Timestamp
	if uint64(delta) < MinRate {
		return last.Difficulty + 1
	}
	if last.Difficulty > 1 && uint64(delta) > 2*TargetBlockTime {
		return last.Difficulty - 1
	}
	return last.Difficulty
}

// RetargetWindowDifficulty implements the every-RetargetWindow-blocks
// adjustment: first.difficulty * expected / actual, clamped to at least 1.
// Its only caller is chain.Blockchain.CalculateDifficulty; Mine and
// Validate apply the per-block AdjustDifficulty rule alone and never use
// this result.
func RetargetWindowDifficulty(first, last *Block) int {
	actualSeconds := float64(last.Timestamp-first.Timestamp) / 1e9
	if actualSeconds <= 0 {
		actualSeconds = 1
	}
	expectedSeconds := float64(RetargetWindow) * (float64(TargetBlockTime) / 1e9)
	difficulty := int(float64(first.Difficulty) * expectedSeconds / actualSeconds)
	if difficulty < 1 {
		difficulty = 1
	}
	return difficulty
}

// Mine produces the next block after last containing data, looping the
// nonce (and re-stamping the timestamp, which can shift difficulty) until
// the hash satisfies the target difficulty's leading-zero-bit requirement.
func Mine(last *Block, data []*Transaction) (*Block, error) {
	size := (&Block{Data: data}).serializedSize()
	if size > BlockSizeLimit {
		return nil, newErr(ErrInvalidBlock, fmt.Sprintf("block body %d bytes exceeds limit %d", size, BlockSizeLimit))
	}

	merkleRoot := MerkleRoot(data)
	height := last.Height + 1
	version := 1
	txCount := len(data)

	b := &Block{
		LastHash:   last.Hash,
		Data:       data,
		Height:     height,
		Version:    version,
		MerkleRoot: merkleRoot,
		TxCount:    txCount,
	}

	for {
		b.Timestamp = time.Now().UnixNano()
		b.Difficulty = AdjustDifficulty(last, b.Timestamp)
		b.Hash = b.computeHash()
		zeros, err := LeadingZeroBits(b.Hash)
		if err != nil {
			return nil, err
		}
		if zeros >= b.Difficulty {
			return b, nil
		}
		b.Nonce++
	}
}

// Validate checks block against its claimed predecessor last: hash linkage,
// proof-of-work, bounded difficulty delta, height sequencing, Merkle root,
// size limit, hash recomputation, and per-transaction + coinbase validity.
// utxo may be nil to skip UTXO cross-referencing (see Transaction.IsValid).
func Validate(last, block *Block, utxo UTXOView) error {
	if block.LastHash != last.Hash {
		return newErr(ErrInvalidBlock, "last_hash mismatch")
	}
	zeros, err := LeadingZeroBits(block.Hash)
	if err != nil {
		return newErr(ErrInvalidBlock, err.Error())
	}
	if zeros < block.Difficulty {
		return newErr(ErrInvalidBlock, "proof of work requirement not met")
	}
	diff := last.Difficulty - block.Difficulty
	if diff < 0 {
		diff = -diff
	}
	if diff > 1 {
		return newErr(ErrInvalidBlock, "difficulty adjustment too large")
	}
	if block.Height != last.Height+1 {
		return newErr(ErrInvalidBlock, "invalid block height")
	}
	if got := MerkleRoot(block.Data); got != block.MerkleRoot {
		return newErr(ErrInvalidBlock, "merkle root mismatch")
	}
	if block.serializedSize() > BlockSizeLimit {
		return newErr(ErrInvalidBlock, "block data exceeds size limit")
	}
	if got := block.computeHash(); got != block.Hash {
		return newErr(ErrInvalidBlock, "hash mismatch")
	}

	var coinbaseCount int
	var totalFees float64
	var coinbaseTx *Transaction
	for _, tx := range block.Data {
		if tx.IsCoinbase {
			coinbaseCount++
			if coinbaseCount > 1 {
				return newErr(ErrInvalidBlock, "multiple coinbase transactions")
			}
			coinbaseTx = tx
			continue
		}
		if err := tx.IsValid(utxo); err != nil {
			return err
		}
		totalFees += tx.Fee
	}
	if coinbaseCount == 0 && block.Height > 0 {
		return newErr(ErrInvalidBlock, "missing coinbase transaction")
	}
	if coinbaseTx != nil {
		if coinbaseTx.Input.BlockHeight != block.Height {
			return newErr(ErrInvalidBlock, "coinbase block height mismatch")
		}
		if math.Abs(coinbaseTx.Input.Fees-totalFees) > SubsidyEpsilon {
			return newErr(ErrInvalidBlock, "coinbase fees field does not match block fees")
		}
		if err := coinbaseTx.IsValid(utxo); err != nil {
			return err
		}
	}
	return nil
}
