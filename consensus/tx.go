package consensus

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agecoder/rubinchain/crypto"
)

// TxOutputMap maps a recipient address to the amount it is credited, the
// outputs of one transaction. Keys are unique within one map by construction
// (it is a Go map).
type TxOutputMap map[string]float64

// Total sums every credited amount.
func (m TxOutputMap) Total() float64 {
	var total float64
	for _, v := range m {
		total += v
	}
	return total
}

func (m TxOutputMap) canonical() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// TxInput carries the spend authorization for a non-coinbase transaction, or
// the minting claim for a coinbase one. Both shapes share this one struct —
// IsCoinbase on the owning Transaction disambiguates which fields apply —
// rather than a duck-typed dict sometimes shaped one way, sometimes another.
type TxInput struct {
	Timestamp int64  // nanoseconds
	Address   string // spender address, or "coinbase"
	PublicKey string // PEM SubjectPublicKeyInfo, or "coinbase"

	// Non-coinbase fields.
	Amount    float64         // sum of the consumed UTXO values
	Signature crypto.Signature // over the output map
	PrevTxIDs []string        // transaction IDs whose outputs are being consumed

	// Coinbase-only fields.
	BlockHeight  uint64
	Subsidy      float64
	Fees         float64
	CoinbaseData string
}

func (in TxInput) canonical() map[string]any {
	if in.Address == "coinbase" {
		return map[string]any{
			"address":       in.Address,
			"public_key":    in.PublicKey,
			"timestamp":     in.Timestamp,
			"block_height":  in.BlockHeight,
			"subsidy":       in.Subsidy,
			"fees":          in.Fees,
			"coinbase_data": in.CoinbaseData,
		}
	}
	return map[string]any{
		"timestamp":   in.Timestamp,
		"amount":      in.Amount,
		"address":     in.Address,
		"public_key":  in.PublicKey,
		"signature":   in.Signature.Hex(),
		"prev_tx_ids": in.PrevTxIDs,
	}
}

// Transaction is the single wire shape for both normal and coinbase
// transfers; IsCoinbase is the tag.
type Transaction struct {
	ID         string
	Input      TxInput
	Output     TxOutputMap
	Fee        float64
	Size       int
	IsCoinbase bool
}

func (tx *Transaction) canonical() map[string]any {
	return map[string]any{
		"id":          tx.ID,
		"input":       tx.Input.canonical(),
		"output":      tx.Output.canonical(),
		"fee":         tx.Fee,
		"size":        tx.Size,
		"is_coinbase": tx.IsCoinbase,
	}
}

// UTXOView is the subset of the UTXO set a transaction construction or
// validation needs: transaction ID -> that transaction's output map.
type UTXOView map[string]TxOutputMap

// NewTransaction constructs and signs a normal (non-coinbase) transfer from
// senderPriv's address to recipient. UTXOs addressed to the sender are
// selected in map-iteration order until the running total covers
// amount+MinFee; the fee is then fixed from the provisional size and the
// selection re-checked. Fails with ErrInsufficientFunds if either check
// fails; no further UTXOs are selected when the size-based fee is not
// covered.
func NewTransaction(utxo UTXOView, senderPriv *crypto.PrivateKey, recipient string, amount float64, feeRate float64) (*Transaction, error) {
	if amount <= 0 {
		return nil, newErr(ErrInsufficientFunds, "amount must be positive")
	}
	senderAddr := senderPriv.PublicKey().Address()

	var ids []string
	var total float64
	for txid, out := range utxo {
		v, ok := out[senderAddr]
		if !ok {
			continue
		}
		ids = append(ids, txid)
		total += v
		if total >= amount+MinFee {
			break
		}
	}
	if total < amount+MinFee {
		return nil, newErr(ErrInsufficientFunds, fmt.Sprintf("available %.4f < required %.4f", total, amount+MinFee))
	}

	provisional := TxOutputMap{recipient: amount, senderAddr: total - amount}
	size := len(CanonicalJSON(provisional.canonical())) + len(ids)*36 + BaseTxSize
	if size < BaseTxSize {
		size = BaseTxSize
	}
	fee := feeRate * float64(size)
	if fee < MinFee {
		fee = MinFee
	}
	if total < amount+fee {
		return nil, newErr(ErrInsufficientFunds, fmt.Sprintf("available %.4f < required %.4f", total, amount+fee))
	}

	output := TxOutputMap{recipient: amount, senderAddr: total - amount - fee}
	pubPEM, err := senderPriv.PublicKey().EncodePEM()
	if err != nil {
		return nil, err
	}
	sig, err := senderPriv.Sign(CanonicalJSON(output.canonical()))
	if err != nil {
		return nil, err
	}

	return &Transaction{
		ID: uuid.NewString(),
		Input: TxInput{
			Timestamp: time.Now().UnixNano(),
			Amount:    total,
			Address:   senderAddr,
			PublicKey: pubPEM,
			Signature: sig,
			PrevTxIDs: ids,
		},
		Output: output,
		Fee:    fee,
		Size:   size,
	}, nil
}

// Subsidy returns subsidy(height): the per-block minting reward, halving
// every HalvingInterval blocks.
func Subsidy(height uint64) float64 {
	return float64(BlockSubsidy >> (height / HalvingInterval))
}

// TotalSubsidy sums Subsidy(h) for h in [0, blockCount), i.e. the total
// reward a chain of blockCount blocks (including genesis) is entitled to
// mint — computed epoch-by-epoch rather than by summing one block at a
// time, since HalvingInterval can run into the hundreds of thousands.
func TotalSubsidy(blockCount uint64) float64 {
	if blockCount == 0 {
		return 0
	}
	var total float64
	halvings := blockCount / HalvingInterval
	for i := uint64(0); i <= halvings; i++ {
		remaining := blockCount - i*HalvingInterval
		blocksInPeriod := HalvingInterval
		if remaining < blocksInPeriod {
			blocksInPeriod = remaining
		}
		subsidy := BlockSubsidy >> i
		total += float64(blocksInPeriod) * float64(subsidy)
	}
	return total
}

// NewCoinbaseTransaction builds the first transaction of a block: subsidy
// plus the fees of every other transaction in that block, credited entirely
// to minerAddress. Fails if the total reward would be zero.
func NewCoinbaseTransaction(minerAddress string, height uint64, totalFees float64) (*Transaction, error) {
	subsidy := Subsidy(height)
	totalReward := subsidy + totalFees
	if totalReward <= 0 {
		return nil, newErr(ErrInvalidCoinbase, "total reward must be positive")
	}
	return &Transaction{
		ID: "coinbase_" + uuid.NewString(),
		Input: TxInput{
			Timestamp:    time.Now().UnixNano(),
			Address:      "coinbase",
			PublicKey:    "coinbase",
			BlockHeight:  height,
			Subsidy:      subsidy,
			Fees:         totalFees,
			CoinbaseData: fmt.Sprintf("Height:%d", height),
		},
		Output:     TxOutputMap{minerAddress: totalReward},
		Fee:        0,
		Size:       BaseTxSize,
		IsCoinbase: true,
	}, nil
}

// IsValid checks every invariant in the transaction model. utxo may be nil,
// in which case prev_tx_id/UTXO cross-referencing is skipped (used when
// validating a transaction in isolation, e.g. on mempool admission before a
// blockchain reference is available); pass a populated UTXOView to also
// enforce ErrInvalidUTXOReference.
func (tx *Transaction) IsValid(utxo UTXOView) error {
	if tx.IsCoinbase {
		if len(tx.Output) != 1 {
			return newErr(ErrInvalidCoinbase, "coinbase must have exactly one output")
		}
		var total float64
		for _, v := range tx.Output {
			total = v
		}
		if total <= 0 {
			return newErr(ErrInvalidCoinbase, "coinbase output must be positive")
		}
		subsidy := Subsidy(tx.Input.BlockHeight)
		if total > subsidy+tx.Input.Fees+SubsidyEpsilon {
			return newErr(ErrInvalidCoinbase, fmt.Sprintf("output %.4f exceeds subsidy %.4f + fees %.4f", total, subsidy, tx.Input.Fees))
		}
		return nil
	}

	outputTotal := tx.Output.Total()
	if outputTotal < 0 {
		return newErr(ErrInvalidTransaction, "negative output total")
	}
	if tx.Input.Amount < 0 {
		return newErr(ErrInvalidTransaction, "negative input amount")
	}
	if tx.Fee < MinFee {
		return newErr(ErrInvalidTransaction, fmt.Sprintf("fee %.4f below minimum %.4f", tx.Fee, MinFee))
	}
	if tx.Input.Amount < outputTotal+tx.Fee {
		return newErr(ErrInsufficientInput, fmt.Sprintf("input %.4f < output %.4f + fee %.4f", tx.Input.Amount, outputTotal, tx.Fee))
	}
	pub, err := crypto.DecodePublicKeyPEM(tx.Input.PublicKey)
	if err != nil {
		return newErr(ErrInvalidSignature, err.Error())
	}
	if !crypto.Verify(pub, CanonicalJSON(tx.Output.canonical()), tx.Input.Signature) {
		return newErr(ErrInvalidSignature, "signature does not verify")
	}
	if len(tx.Input.PrevTxIDs) == 0 {
		return newErr(ErrInvalidTransaction, "missing prev_tx_ids")
	}
	if utxo != nil {
		for _, prevID := range tx.Input.PrevTxIDs {
			entry, ok := utxo[prevID]
			if !ok {
				return newErr(ErrInvalidUTXOReference, fmt.Sprintf("prev_tx_id %s not in UTXO set", prevID))
			}
			if _, ok := entry[tx.Input.Address]; !ok {
				return newErr(ErrInvalidUTXOReference, fmt.Sprintf("prev_tx_id %s has no output for %s", prevID, tx.Input.Address))
			}
		}
	}
	return nil
}

// Update amends an in-flight (not yet confirmed) transaction to additionally
// credit recipient with amount out of the sender's own change, re-signing
// the output map with a fresh timestamp. This is the mempool-replacement
// path: the caller is expected to re-admit the result via Mempool.SetTransaction,
// whose strictly-newer-timestamp rule lets it supersede the prior version.
func (tx *Transaction) Update(senderPriv *crypto.PrivateKey, recipient string, amount float64) error {
	senderAddr := senderPriv.PublicKey().Address()
	available := tx.Output[senderAddr]
	if amount <= 0 || amount > available {
		return newErr(ErrInsufficientFunds, fmt.Sprintf("amount %.4f exceeds available %.4f", amount, available))
	}
	tx.Output[recipient] += amount
	tx.Output[senderAddr] -= amount
	sig, err := senderPriv.Sign(CanonicalJSON(tx.Output.canonical()))
	if err != nil {
		return err
	}
	tx.Input.Signature = sig
	tx.Input.Timestamp = time.Now().UnixNano()
	tx.Size = len(CanonicalJSON(tx.Output.canonical())) + len(tx.Input.PrevTxIDs)*36 + BaseTxSize
	return nil
}
