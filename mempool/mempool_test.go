package mempool

import (
	"testing"

	"github.com/agecoder/rubinchain/consensus"
	"github.com/agecoder/rubinchain/crypto"
)

func fundedTx(t *testing.T, amount float64) (*consensus.Transaction, *crypto.PrivateKey, consensus.UTXOView) {
	t.Helper()
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	addr := priv.PublicKey().Address()
	utxo := consensus.UTXOView{"funding": consensus.TxOutputMap{addr: amount}}
	tx, err := consensus.NewTransaction(utxo, priv, "recipient", amount/2, consensus.MinFee)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	return tx, priv, utxo
}

func TestSetTransactionAdmitsValid(t *testing.T) {
	mp := New(0, nil)
	tx, _, utxo := fundedTx(t, 100)
	if err := mp.SetTransaction(tx, utxo); err != nil {
		t.Fatalf("SetTransaction: %v", err)
	}
	if mp.Len() != 1 {
		t.Fatalf("Len = %d, want 1", mp.Len())
	}
}

func TestSetTransactionRejectsInvalid(t *testing.T) {
	mp := New(0, nil)
	tx, _, _ := fundedTx(t, 100)
	tx.Fee = 0
	if err := mp.SetTransaction(tx, nil); err == nil {
		t.Fatal("expected a fee-too-low rejection")
	}
	if mp.Len() != 0 {
		t.Fatal("an invalid transaction must not be admitted")
	}
}

func TestSetTransactionReplacesOnNewerTimestamp(t *testing.T) {
	mp := New(0, nil)
	tx, priv, utxo := fundedTx(t, 100)
	if err := mp.SetTransaction(tx, utxo); err != nil {
		t.Fatalf("SetTransaction: %v", err)
	}
	updated := *tx
	updated.Output = consensus.TxOutputMap{}
	for addr, amount := range tx.Output {
		updated.Output[addr] = amount
	}
	if err := updated.Update(priv, "other", 1); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mp.SetTransaction(&updated, utxo); err != nil {
		t.Fatalf("SetTransaction (replace): %v", err)
	}
	if mp.Len() != 1 {
		t.Fatalf("Len after replace = %d, want 1", mp.Len())
	}
	got := mp.TransactionData()[0]
	if got.Output["other"] != 1 {
		t.Fatal("expected the newer version of the transaction to be stored")
	}
}

func TestSetTransactionIgnoresStaleResubmission(t *testing.T) {
	mp := New(0, nil)
	tx, _, utxo := fundedTx(t, 100)
	if err := mp.SetTransaction(tx, utxo); err != nil {
		t.Fatalf("SetTransaction: %v", err)
	}
	stale := *tx
	stale.Input.Timestamp = tx.Input.Timestamp - 1
	if err := mp.SetTransaction(&stale, utxo); err != nil {
		t.Fatalf("SetTransaction (stale): %v", err)
	}
	got := mp.TransactionData()[0]
	if got.Input.Timestamp != tx.Input.Timestamp {
		t.Fatal("a stale resubmission must not replace the existing transaction")
	}
}

func TestExistingTransactionFindsByAddress(t *testing.T) {
	mp := New(0, nil)
	tx, priv, utxo := fundedTx(t, 100)
	if err := mp.SetTransaction(tx, utxo); err != nil {
		t.Fatalf("SetTransaction: %v", err)
	}
	got := mp.ExistingTransaction(priv.PublicKey().Address())
	if got == nil || got.ID != tx.ID {
		t.Fatal("expected to find the pending transaction by sender address")
	}
}

func TestGetPriorityTransactionsSortsByFeePerSize(t *testing.T) {
	mp := New(0, nil)

	lowFeeRate, _, lowUTXO := fundedTx(t, 1000)
	lowFeeRate.Fee = 0.1
	lowFeeRate.Size = 1000

	highFeeRate, _, highUTXO := fundedTx(t, 1000)
	highFeeRate.Fee = 0.1
	highFeeRate.Size = 10

	if err := mp.SetTransaction(lowFeeRate, lowUTXO); err != nil {
		t.Fatalf("SetTransaction(low): %v", err)
	}
	if err := mp.SetTransaction(highFeeRate, highUTXO); err != nil {
		t.Fatalf("SetTransaction(high): %v", err)
	}

	ordered := mp.GetPriorityTransactions()
	if len(ordered) != 2 {
		t.Fatalf("len = %d, want 2", len(ordered))
	}
	if ordered[0].ID != highFeeRate.ID {
		t.Fatal("expected the higher fee/size transaction first")
	}
}

func TestClearBlockchainTransactionsDropsConfirmed(t *testing.T) {
	mp := New(0, nil)
	tx, _, utxo := fundedTx(t, 100)
	if err := mp.SetTransaction(tx, utxo); err != nil {
		t.Fatalf("SetTransaction: %v", err)
	}
	block := &consensus.Block{Data: []*consensus.Transaction{tx}}
	mp.ClearBlockchainTransactions([]*consensus.Block{block})
	if mp.Len() != 0 {
		t.Fatal("expected the confirmed transaction to be dropped from the mempool")
	}
}

func TestProcessedCapacityEvictsOldest(t *testing.T) {
	mp := New(2, nil)
	mp.markProcessed("a")
	mp.markProcessed("b")
	mp.markProcessed("c")
	if mp.AlreadyProcessed("a") {
		t.Fatal("expected the oldest entry to be evicted once capacity is exceeded")
	}
	if !mp.AlreadyProcessed("b") || !mp.AlreadyProcessed("c") {
		t.Fatal("expected the two most recent entries to remain")
	}
}
