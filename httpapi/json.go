package httpapi

import (
	"github.com/agecoder/rubinchain/consensus"
)

// txInputJSON mirrors the two shapes consensus.TxInput.canonical renders
// (coinbase vs. signed transfer), re-derived here since that method is
// unexported — the control surface needs the same field names the
// original_source routers serve (input.address, input.timestamp, ...).
type txInputJSON struct {
	Timestamp int64  `json:"timestamp"`
	Address   string `json:"address"`
	PublicKey string `json:"public_key"`

	Amount    float64  `json:"amount,omitempty"`
	Signature string   `json:"signature,omitempty"`
	PrevTxIDs []string `json:"prev_tx_ids,omitempty"`

	BlockHeight  uint64  `json:"block_height,omitempty"`
	Subsidy      float64 `json:"subsidy,omitempty"`
	Fees         float64 `json:"fees,omitempty"`
	CoinbaseData string  `json:"coinbase_data,omitempty"`
}

type txJSON struct {
	ID         string             `json:"id"`
	Input      txInputJSON        `json:"input"`
	Output     consensus.TxOutputMap `json:"output"`
	Fee        float64            `json:"fee"`
	Size       int                `json:"size"`
	IsCoinbase bool               `json:"is_coinbase"`
}

func toTxJSON(tx *consensus.Transaction) txJSON {
	in := tx.Input
	var input txInputJSON
	if tx.IsCoinbase {
		input = txInputJSON{
			Timestamp:    in.Timestamp,
			Address:      in.Address,
			PublicKey:    in.PublicKey,
			BlockHeight:  in.BlockHeight,
			Subsidy:      in.Subsidy,
			Fees:         in.Fees,
			CoinbaseData: in.CoinbaseData,
		}
	} else {
		input = txInputJSON{
			Timestamp: in.Timestamp,
			Address:   in.Address,
			PublicKey: in.PublicKey,
			Amount:    in.Amount,
			Signature: in.Signature.Hex(),
			PrevTxIDs: in.PrevTxIDs,
		}
	}
	return txJSON{
		ID:         tx.ID,
		Input:      input,
		Output:     tx.Output,
		Fee:        tx.Fee,
		Size:       tx.Size,
		IsCoinbase: tx.IsCoinbase,
	}
}

type blockJSON struct {
	Timestamp  int64    `json:"timestamp"`
	LastHash   string   `json:"last_hash"`
	Hash       string   `json:"hash"`
	Data       []txJSON `json:"data"`
	Difficulty int      `json:"difficulty"`
	Nonce      uint64   `json:"nonce"`
	Height     uint64   `json:"height"`
	Version    int      `json:"version"`
	MerkleRoot string   `json:"merkle_root"`
	TxCount    int      `json:"tx_count"`
}

func toBlockJSON(b *consensus.Block) blockJSON {
	data := make([]txJSON, len(b.Data))
	for i, tx := range b.Data {
		data[i] = toTxJSON(tx)
	}
	return blockJSON{
		Timestamp:  b.Timestamp,
		LastHash:   b.LastHash,
		Hash:       b.Hash,
		Data:       data,
		Difficulty: b.Difficulty,
		Nonce:      b.Nonce,
		Height:     b.Height,
		Version:    b.Version,
		MerkleRoot: b.MerkleRoot,
		TxCount:    b.TxCount,
	}
}

func toBlockJSONs(blocks []*consensus.Block) []blockJSON {
	out := make([]blockJSON, len(blocks))
	for i, b := range blocks {
		out[i] = toBlockJSON(b)
	}
	return out
}
