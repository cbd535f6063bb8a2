package httpapi

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/agecoder/rubinchain/consensus"
	"github.com/agecoder/rubinchain/gossip"
	"github.com/agecoder/rubinchain/wallet"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type blockchainResponse struct {
	Chain         []blockJSON                      `json:"chain"`
	UTXOSet       map[string]consensus.TxOutputMap  `json:"utxo_set"`
	CurrentHeight uint64                            `json:"current_height"`
}

func (s *Server) handleBlockchain(w http.ResponseWriter, r *http.Request) {
	chainList := s.node.Chain.Chain()
	utxo := s.node.Chain.UTXOSnapshot()
	s.writeJSON(w, http.StatusOK, blockchainResponse{
		Chain:         toBlockJSONs(chainList),
		UTXOSet:       utxo,
		CurrentHeight: s.node.Chain.Height(),
	})
}

type paginatedBlocksResponse struct {
	Blocks      []blockJSON `json:"blocks"`
	Page        int         `json:"page"`
	PageSize    int         `json:"page_size"`
	TotalBlocks int         `json:"total_blocks"`
	TotalPages  int         `json:"total_pages"`
	HasNext     bool        `json:"has_next"`
	HasPrevious bool        `json:"has_previous"`
}

// handlePaginatedBlocks returns blocks latest-first, page 1 being the
// most recent page_size blocks — the reversed-slice math mirrors
// original_source's get_paginated_blocks exactly.
func (s *Server) handlePaginatedBlocks(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", defaultPageSize)
	if page < 1 {
		s.writeError(w, http.StatusUnprocessableEntity, "page must be >= 1")
		return
	}
	if pageSize < 1 || pageSize > maxPageSize {
		s.writeError(w, http.StatusUnprocessableEntity, "page_size must be between 1 and 100")
		return
	}

	chainList := s.node.Chain.Chain()
	total := len(chainList)
	if total == 0 {
		s.writeError(w, http.StatusNotFound, "No blocks found")
		return
	}
	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))
	if page > totalPages {
		s.writeError(w, http.StatusBadRequest, "Page number exceeds total pages")
		return
	}

	start := total - page*pageSize
	if start < 0 {
		start = 0
	}
	end := total - (page-1)*pageSize
	if end < 0 {
		end = 0
	}
	blocks := reverseBlocks(chainList[start:end])

	s.writeJSON(w, http.StatusOK, paginatedBlocksResponse{
		Blocks:      toBlockJSONs(blocks),
		Page:        page,
		PageSize:    pageSize,
		TotalBlocks: total,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	})
}

func (s *Server) handleLatestBlocks(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageSize)
	if limit < 1 || limit > maxPageSize {
		s.writeError(w, http.StatusUnprocessableEntity, "limit must be between 1 and 100")
		return
	}
	chainList := s.node.Chain.Chain()
	if len(chainList) == 0 {
		s.writeError(w, http.StatusNotFound, "No blocks found")
		return
	}
	start := len(chainList) - limit
	if start < 0 {
		start = 0
	}
	s.writeJSON(w, http.StatusOK, toBlockJSONs(reverseBlocks(chainList[start:])))
}

type blockchainRangeResponse struct {
	Chain []blockJSON `json:"chain"`
}

func (s *Server) handleBlockchainRange(w http.ResponseWriter, r *http.Request) {
	start := queryInt(r, "start", 0)
	end := queryInt(r, "end", defaultPageSize)
	reverse := r.URL.Query().Get("reverse") == "true"

	chainList := s.node.Chain.Chain()
	total := len(chainList)
	if start >= total {
		s.writeJSON(w, http.StatusOK, blockchainRangeResponse{Chain: []blockJSON{}})
		return
	}
	if start < 0 {
		start = max(0, total+start)
	}
	if end < 0 {
		end = max(0, total+end)
	}
	if start >= end {
		s.writeError(w, http.StatusBadRequest, "Invalid range parameters")
		return
	}
	if end > total {
		end = total
	}
	blocks := chainList[start:end]
	if reverse {
		blocks = reverseBlocks(blocks)
	}
	s.writeJSON(w, http.StatusOK, blockchainRangeResponse{Chain: toBlockJSONs(blocks)})
}

type blockchainHeightResponse struct {
	Height uint64 `json:"height"`
}

func (s *Server) handleBlockchainHeight(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, blockchainHeightResponse{Height: s.node.Chain.Height()})
}

type halvingResponse struct {
	Halvings uint64  `json:"halvings"`
	Subsidy  float64 `json:"subsidy"`
}

func (s *Server) handleHalving(w http.ResponseWriter, r *http.Request) {
	height := s.node.Chain.Height()
	s.writeJSON(w, http.StatusOK, halvingResponse{
		Halvings: height / consensus.HalvingInterval,
		Subsidy:  consensus.Subsidy(height),
	})
}

// handleBlockByHeight looks up the block confirmed at height via the
// derived bbolt index first (O(1)); an index miss or stale entry (e.g. a
// lookup racing a chain replacement's Rebuild) falls back to a scan of the
// live chain.
func (s *Server) handleBlockByHeight(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(r.PathValue("height"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid block height")
		return
	}
	if height > s.node.Chain.Height() {
		s.writeError(w, http.StatusBadRequest, "Invalid block height")
		return
	}
	chainList := s.node.Chain.Chain()
	if hash, ok, err := s.node.Index.HashAtHeight(height); err == nil && ok &&
		height < uint64(len(chainList)) && chainList[height].Hash == hash {
		s.writeJSON(w, http.StatusOK, toBlockJSON(chainList[height]))
		return
	}
	for _, b := range chainList {
		if b.Height == height {
			s.writeJSON(w, http.StatusOK, toBlockJSON(b))
			return
		}
	}
	s.writeError(w, http.StatusNotFound, "Block not found")
}

// handleBlockByHash mirrors handleBlockByHeight's index-first lookup,
// keyed by hash instead.
func (s *Server) handleBlockByHash(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	chainList := s.node.Chain.Chain()
	if height, ok, err := s.node.Index.HeightForHash(hash); err == nil && ok &&
		height < uint64(len(chainList)) && chainList[height].Hash == hash {
		s.writeJSON(w, http.StatusOK, toBlockJSON(chainList[height]))
		return
	}
	for _, b := range chainList {
		if b.Hash == hash {
			s.writeJSON(w, http.StatusOK, toBlockJSON(b))
			return
		}
	}
	s.writeError(w, http.StatusNotFound, "Block not found")
}

// handleBlockByTx looks up the block confirming transaction id via the
// index's txid-to-height mapping, falling back to a full chain scan on a
// miss.
func (s *Server) handleBlockByTx(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	chainList := s.node.Chain.Chain()
	if height, ok, err := s.node.Index.HeightForTx(id); err == nil && ok && height < uint64(len(chainList)) {
		b := chainList[height]
		for _, tx := range b.Data {
			if tx.ID == id {
				s.writeJSON(w, http.StatusOK, toBlockJSON(b))
				return
			}
		}
	}
	for _, b := range chainList {
		for _, tx := range b.Data {
			if tx.ID == id {
				s.writeJSON(w, http.StatusOK, toBlockJSON(b))
				return
			}
		}
	}
	s.writeError(w, http.StatusNotFound, "Transaction not found")
}

type mineRequest struct {
	MinerAddress string `json:"miner_address"`
}

type mineResponse struct {
	Message          string    `json:"message"`
	Block            blockJSON `json:"block"`
	Reward           float64   `json:"reward"`
	ConfirmedBalance float64   `json:"confirmed_balance"`
}

// handleMine assembles up to the top 10 priority mempool transactions
// (skipping any that no longer validate against the live UTXO set), mines
// a block crediting the miner, broadcasts it, and reports the miner's
// post-mine balance — mirroring original_source's route_mine.
func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	var req mineRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	wlt := s.node.CurrentWallet()
	minerAddress := req.MinerAddress
	if minerAddress == "" {
		minerAddress = wlt.Address()
	}

	pending := s.node.Pool.GetPriorityTransactions()
	if len(pending) > 10 {
		pending = pending[:10]
	}
	utxo := s.node.Chain.UTXOSnapshot()
	valid := make([]*consensus.Transaction, 0, len(pending))
	var totalFees float64
	for _, tx := range pending {
		if err := tx.IsValid(utxo); err != nil {
			s.logger.Warn("invalid transaction skipped while mining", zap.String("tx_id", tx.ID), zap.Error(err))
			continue
		}
		valid = append(valid, tx)
		totalFees += tx.Fee
	}

	coinbase, err := consensus.NewCoinbaseTransaction(minerAddress, s.node.Chain.Height()+1, totalFees)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	transactions := append([]*consensus.Transaction{coinbase}, valid...)

	block, err := s.node.Chain.AddBlock(transactions)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.node.Pool.ClearBlockchainTransactions(s.node.Chain.Chain())
	s.node.RefreshIndex()
	if err := s.node.Gossip.QueueBroadcast(gossip.MsgNewBlock, block); err != nil {
		s.logger.Warn("failed to broadcast mined block", zap.Error(err))
	}

	confirmedBalance := wallet.BalanceOf(s.node.Chain.UTXOSnapshot(), minerAddress)
	s.writeJSON(w, http.StatusOK, mineResponse{
		Message:          "Block mined successfully",
		Block:            toBlockJSON(block),
		Reward:           coinbase.Output[minerAddress],
		ConfirmedBalance: confirmedBalance,
	})
}

func reverseBlocks(blocks []*consensus.Block) []*consensus.Block {
	out := make([]*consensus.Block, len(blocks))
	for i, b := range blocks {
		out[len(blocks)-1-i] = b
	}
	return out
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
