package wallet

import (
	"testing"

	"github.com/agecoder/rubinchain/consensus"
)

func TestGenerateAndAddress(t *testing.T) {
	w, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(w.Address()) != 20 {
		t.Fatalf("address length = %d, want 20", len(w.Address()))
	}
}

func TestCalculateBalanceSumsAcrossUTXOEntries(t *testing.T) {
	w, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	addr := w.Address()
	utxo := consensus.UTXOView{
		"a": consensus.TxOutputMap{addr: 10, "other": 5},
		"b": consensus.TxOutputMap{addr: 7},
		"c": consensus.TxOutputMap{"other": 3},
	}
	if got, want := w.CalculateBalance(utxo), 17.0; got != want {
		t.Fatalf("CalculateBalance = %v, want %v", got, want)
	}
}

func TestCreateTransactionAndAmend(t *testing.T) {
	w, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	addr := w.Address()
	utxo := consensus.UTXOView{"funding": consensus.TxOutputMap{addr: 100}}

	tx, err := w.CreateTransaction(utxo, "recipient", 10, 0.001)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := tx.IsValid(utxo); err != nil {
		t.Fatalf("IsValid: %v", err)
	}

	if err := w.AmendTransaction(tx, "other", 1); err != nil {
		t.Fatalf("AmendTransaction: %v", err)
	}
	if err := tx.IsValid(utxo); err != nil {
		t.Fatalf("IsValid after amend: %v", err)
	}
	if tx.Output["other"] != 1 {
		t.Fatal("expected amended output to be present")
	}
}
