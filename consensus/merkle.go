package consensus

// MerkleRoot computes the Merkle root over txs: canonically serialise each
// transaction, hash each leaf, then repeatedly pair-hash the level. An odd
// element at any level is promoted unchanged rather than duplicated. An
// empty input yields Hash("").
func MerkleRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return Hash("")
	}
	level := make([]string, len(txs))
	for i, tx := range txs {
		level[i] = Hash(string(CanonicalJSON(tx.canonical())))
	}
	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, Hash(level[i]+level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}
