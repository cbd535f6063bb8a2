package consensus

import "testing"

func sampleTx(id string, amount float64) *Transaction {
	return &Transaction{
		ID:     id,
		Output: TxOutputMap{"addr": amount},
		Size:   BaseTxSize,
	}
}

func TestMerkleRootEmpty(t *testing.T) {
	if got, want := MerkleRoot(nil), Hash(""); got != want {
		t.Fatalf("MerkleRoot(nil) = %q, want %q", got, want)
	}
}

func TestMerkleRootSingleLeaf(t *testing.T) {
	tx := sampleTx("a", 1)
	got := MerkleRoot([]*Transaction{tx})
	want := Hash(string(CanonicalJSON(tx.canonical())))
	if got != want {
		t.Fatalf("single-tx merkle root should equal the leaf hash: got %q want %q", got, want)
	}
}

func TestMerkleRootOddCountPromotesLast(t *testing.T) {
	txs := []*Transaction{sampleTx("a", 1), sampleTx("b", 2), sampleTx("c", 3)}
	leaves := make([]string, len(txs))
	for i, tx := range txs {
		leaves[i] = Hash(string(CanonicalJSON(tx.canonical())))
	}
	want := Hash(Hash(leaves[0]+leaves[1]) + leaves[2])
	if got := MerkleRoot(txs); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMerkleRootIsOrderSensitive(t *testing.T) {
	a := MerkleRoot([]*Transaction{sampleTx("a", 1), sampleTx("b", 2)})
	b := MerkleRoot([]*Transaction{sampleTx("b", 2), sampleTx("a", 1)})
	if a == b {
		t.Fatal("merkle root must depend on transaction order within the block")
	}
}

func TestMerkleRootDeterministic(t *testing.T) {
	txs := []*Transaction{sampleTx("a", 1), sampleTx("b", 2)}
	if MerkleRoot(txs) != MerkleRoot(txs) {
		t.Fatal("MerkleRoot must be deterministic for identical input")
	}
}
