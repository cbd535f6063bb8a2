package chain

import (
	"testing"

	"github.com/agecoder/rubinchain/consensus"
	"github.com/agecoder/rubinchain/crypto"
)

func TestNewSeedsGenesisUTXO(t *testing.T) {
	bc := New(nil)
	if bc.Height() != 0 {
		t.Fatalf("height = %d, want 0", bc.Height())
	}
	snap := bc.UTXOSnapshot()
	out, ok := snap["genesis_initial_tx"]
	if !ok {
		t.Fatal("expected genesis utxo entry")
	}
	if out[consensus.GenesisAddress] != float64(consensus.BlockSubsidy) {
		t.Fatalf("genesis utxo = %v, want %v", out[consensus.GenesisAddress], consensus.BlockSubsidy)
	}
}

func TestAddBlockAppendsAndUpdatesUTXO(t *testing.T) {
	bc := New(nil)
	coinbase, err := consensus.NewCoinbaseTransaction("miner", 1, 0)
	if err != nil {
		t.Fatalf("NewCoinbaseTransaction: %v", err)
	}
	block, err := bc.AddBlock([]*consensus.Transaction{coinbase})
	if err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	if block.Height != 1 {
		t.Fatalf("height = %d, want 1", block.Height)
	}
	if bc.Height() != 1 {
		t.Fatalf("chain height = %d, want 1", bc.Height())
	}
	snap := bc.UTXOSnapshot()
	if snap[coinbase.ID]["miner"] != coinbase.Output["miner"] {
		t.Fatal("coinbase output missing from utxo set after AddBlock")
	}
}

func TestAddBlockRejectsUnknownUTXOReference(t *testing.T) {
	bc := New(nil)
	priv, _ := crypto.GenerateKey()
	tx := &consensus.Transaction{
		ID: "bogus",
		Input: consensus.TxInput{
			Address:   priv.PublicKey().Address(),
			Amount:    100,
			PrevTxIDs: []string{"does_not_exist"},
		},
		Output: consensus.TxOutputMap{"someone": 100},
	}
	if _, err := bc.AddBlock([]*consensus.Transaction{tx}); err == nil {
		t.Fatal("expected an error for a transaction referencing an unknown utxo")
	}
}

func buildSpend(t *testing.T, priv *crypto.PrivateKey, utxo consensus.UTXOView, recipient string, amount float64) *consensus.Transaction {
	t.Helper()
	tx, err := consensus.NewTransaction(utxo, priv, recipient, amount, consensus.MinFee)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	return tx
}

func TestIsValidChainAcceptsGenesisOnly(t *testing.T) {
	if err := IsValidChain([]*consensus.Block{consensus.Genesis()}); err != nil {
		t.Fatalf("IsValidChain rejected the genesis-only chain: %v", err)
	}
}

func TestIsValidChainRejectsWrongGenesis(t *testing.T) {
	tampered := *consensus.Genesis()
	tampered.Hash = "not-genesis"
	if err := IsValidChain([]*consensus.Block{&tampered}); err == nil {
		t.Fatal("expected an invalid genesis error")
	}
}

func TestIsValidChainRejectsMultiOutputCoinbase(t *testing.T) {
	coinbase, err := consensus.NewCoinbaseTransaction("miner", 1, 0)
	if err != nil {
		t.Fatalf("NewCoinbaseTransaction: %v", err)
	}
	total := coinbase.Output["miner"]
	coinbase.Output = consensus.TxOutputMap{"miner": total / 2, "accomplice": total / 2}

	block, err := consensus.Mine(consensus.Genesis(), []*consensus.Transaction{coinbase})
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	candidate := []*consensus.Block{consensus.Genesis(), block}
	if err := IsValidChain(candidate); err == nil {
		t.Fatal("expected a multi-output coinbase to be rejected")
	}
}

func TestReplaceChainRejectsShorterOrEqualChain(t *testing.T) {
	bc := New(nil)
	if err := bc.ReplaceChain([]*consensus.Block{consensus.Genesis()}); err == nil {
		t.Fatal("expected an error for a non-longer candidate chain")
	}
}

func TestReplaceChainSwapsInLongerValidChain(t *testing.T) {
	bc := New(nil)
	coinbase, err := consensus.NewCoinbaseTransaction("miner", 1, 0)
	if err != nil {
		t.Fatalf("NewCoinbaseTransaction: %v", err)
	}
	block, err := consensus.Mine(consensus.Genesis(), []*consensus.Transaction{coinbase})
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	candidate := []*consensus.Block{consensus.Genesis(), block}
	if err := bc.ReplaceChain(candidate); err != nil {
		t.Fatalf("ReplaceChain: %v", err)
	}
	if bc.Height() != 1 {
		t.Fatalf("height after replace = %d, want 1", bc.Height())
	}
}

func TestReplaceChainRollsBackOnInvalidCandidate(t *testing.T) {
	bc := New(nil)
	coinbase, err := consensus.NewCoinbaseTransaction("miner", 1, 0)
	if err != nil {
		t.Fatalf("NewCoinbaseTransaction: %v", err)
	}
	block, err := consensus.Mine(consensus.Genesis(), []*consensus.Transaction{coinbase})
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	block.MerkleRoot = "tampered"
	candidate := []*consensus.Block{consensus.Genesis(), block}

	before := bc.UTXOSnapshot()
	if err := bc.ReplaceChain(candidate); err == nil {
		t.Fatal("expected ReplaceChain to reject a tampered candidate")
	}
	if bc.Height() != 0 {
		t.Fatalf("height after failed replace = %d, want unchanged 0", bc.Height())
	}
	after := bc.UTXOSnapshot()
	if len(before) != len(after) {
		t.Fatal("utxo set must be unchanged after a rejected replacement")
	}
}
