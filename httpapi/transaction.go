package httpapi

import (
	"net/http"
	"sort"

	"github.com/agecoder/rubinchain/consensus"
)

// handleTransactionPool returns every pending transaction, the control
// surface's view of transaction_pool.to_json().
func (s *Server) handleTransactionPool(w http.ResponseWriter, r *http.Request) {
	pending := s.node.Pool.TransactionData()
	out := make(map[string]txJSON, len(pending))
	for _, tx := range pending {
		out[tx.ID] = toTxJSON(tx)
	}
	s.writeJSON(w, http.StatusOK, out)
}

type txByAddressJSON struct {
	txJSON
	Status      string `json:"status"`
	BlockHeight uint64 `json:"blockHeight,omitempty"`
}

// handleTransactionsByAddress returns every transaction (pending or
// confirmed) where addr is either the input address or an output
// recipient, newest first. Mirrors route_transactions_by_address.
func (s *Server) handleTransactionsByAddress(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("address")
	var out []txByAddressJSON

	for _, tx := range s.node.Pool.TransactionData() {
		if !txTouchesAddress(tx, addr) {
			continue
		}
		out = append(out, txByAddressJSON{txJSON: toTxJSON(tx), Status: "pending"})
	}
	for _, block := range s.node.Chain.Chain() {
		for _, tx := range block.Data {
			if !txTouchesAddress(tx, addr) {
				continue
			}
			out = append(out, txByAddressJSON{
				txJSON:      toTxJSON(tx),
				Status:      "confirmed",
				BlockHeight: block.Height,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Input.Timestamp > out[j].Input.Timestamp
	})
	if out == nil {
		out = []txByAddressJSON{}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func txTouchesAddress(tx *consensus.Transaction, addr string) bool {
	if tx.Input.Address == addr {
		return true
	}
	_, ok := tx.Output[addr]
	return ok
}

type txByIDResponse struct {
	txJSON
	Status      string `json:"status"`
	BlockHeight uint64 `json:"block_height,omitempty"`
}

// handleTransactionByID looks a transaction up by ID in the mempool first,
// then the confirmed chain. Mirrors route_transaction_by_id.
func (s *Server) handleTransactionByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	for _, tx := range s.node.Pool.TransactionData() {
		if tx.ID == id {
			s.writeJSON(w, http.StatusOK, txByIDResponse{txJSON: toTxJSON(tx), Status: "pending"})
			return
		}
	}
	for _, block := range s.node.Chain.Chain() {
		for _, tx := range block.Data {
			if tx.ID == id {
				s.writeJSON(w, http.StatusOK, txByIDResponse{
					txJSON:      toTxJSON(tx),
					Status:      "confirmed",
					BlockHeight: block.Height,
				})
				return
			}
		}
	}
	s.writeError(w, http.StatusNotFound, "Transaction "+id+" not found in mempool or blockchain")
}

// handleKnownAddresses returns every address ever credited by an output
// in the confirmed chain, deduplicated. Mirrors route_known_addresses.
func (s *Server) handleKnownAddresses(w http.ResponseWriter, r *http.Request) {
	seen := make(map[string]struct{})
	for _, block := range s.node.Chain.Chain() {
		for _, tx := range block.Data {
			for addr := range tx.Output {
				seen[addr] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for addr := range seen {
		out = append(out, addr)
	}
	sort.Strings(out)
	s.writeJSON(w, http.StatusOK, out)
}
