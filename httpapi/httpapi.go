// Package httpapi is the node's control surface: a JSON HTTP API over the
// chain, mempool, wallet and fee-rate estimator, built on the standard
// library's method+pattern ServeMux (Go 1.22+) rather than a router
// library — see DESIGN.md for why no third-party mux is wired here.
// Routes and response shapes follow original_source/backend/routers and
// original_source/backend/schemas field-for-field where the design is
// otherwise silent, adapted into Go's (value, error) idiom in place of
// FastAPI's exception-based control flow.
package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/agecoder/rubinchain/node"
)

// Server wires a *node.Node into an http.Handler. It holds no state of
// its own beyond the node and a logger — every request reads the node's
// live chain/mempool/wallet directly, so there is nothing here to keep in
// sync.
type Server struct {
	node   *node.Node
	logger *zap.Logger
}

// New builds a Server for n. logger may be nil, in which case a no-op
// logger is used.
func New(n *node.Node, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{node: n, logger: logger}
}

// Handler returns the ServeMux with every route registered, suitable for
// http.Server.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /blockchain", s.handleBlockchain)
	mux.HandleFunc("GET /blockchain/paginated", s.handlePaginatedBlocks)
	mux.HandleFunc("GET /blockchain/latest", s.handleLatestBlocks)
	mux.HandleFunc("GET /blockchain/range", s.handleBlockchainRange)
	mux.HandleFunc("GET /blockchain/height", s.handleBlockchainHeight)
	mux.HandleFunc("GET /blockchain/height/{height}", s.handleBlockByHeight)
	mux.HandleFunc("GET /blockchain/hash/{hash}", s.handleBlockByHash)
	mux.HandleFunc("GET /blockchain/tx/{id}", s.handleBlockByTx)
	mux.HandleFunc("GET /blockchain/halving", s.handleHalving)
	mux.HandleFunc("POST /mine", s.handleMine)

	mux.HandleFunc("POST /wallet", s.handleWalletInit)
	mux.HandleFunc("GET /wallet/info", s.handleWalletInfo)
	mux.HandleFunc("POST /wallet/transact", s.handleWalletTransact)

	mux.HandleFunc("GET /transaction", s.handleTransactionPool)
	mux.HandleFunc("GET /transactions/{address}", s.handleTransactionsByAddress)
	mux.HandleFunc("GET /transaction/id/{id}", s.handleTransactionByID)

	mux.HandleFunc("GET /fee-rate", s.handleFeeRate)
	mux.HandleFunc("GET /known-addresses", s.handleKnownAddresses)

	return mux
}

// writeJSON marshals v as the response body with the given status code.
// A marshal failure here means a handler built an unmarshalable value, a
// programmer error; it is logged rather than silently swallowed.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// apiError is the JSON error body shape, mirroring FastAPI's
// {"detail": "..."} HTTPException responses so existing API consumers
// need no reshaping.
type apiError struct {
	Detail string `json:"detail"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, apiError{Detail: detail})
}
