package consensus

// GenesisAddress is the address credited by the genesis coinbase, matching
// the literal genesis fixture shared by every node (see S1).
const GenesisAddress = "20b2ee470d526eda4b12"

var genesisBlock *Block

// Genesis returns the fixed genesis block: height 0, one coinbase-like
// transaction crediting GenesisAddress with BlockSubsidy. Its hash and
// Merkle root are deterministic functions of its other fields, computed
// once and shared by every call.
func Genesis() *Block {
	if genesisBlock != nil {
		return genesisBlock
	}
	tx := &Transaction{
		ID: "genesis_initial_tx",
		Input: TxInput{
			Timestamp:    1,
			Address:      "coinbase",
			PublicKey:    "coinbase",
			BlockHeight:  0,
			Subsidy:      float64(BlockSubsidy),
			Fees:         0,
			CoinbaseData: "Initial funding",
		},
		Output:     TxOutputMap{GenesisAddress: float64(BlockSubsidy)},
		Fee:        0,
		Size:       BaseTxSize,
		IsCoinbase: true,
	}
	data := []*Transaction{tx}
	b := &Block{
		Timestamp:  1,
		LastHash:   "genesis_last_hash",
		Data:       data,
		Difficulty: StartingDifficulty,
		Nonce:      0,
		Height:     0,
		Version:    1,
		MerkleRoot: MerkleRoot(data),
		TxCount:    1,
	}
	b.Hash = b.computeHash()
	genesisBlock = b
	return b
}
