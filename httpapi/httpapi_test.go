package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agecoder/rubinchain/node"
)

func newTestServer(t *testing.T) (*Server, *node.Node) {
	t.Helper()
	cfg := node.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.BindAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"

	n, err := node.New(cfg, nil)
	if err != nil {
		t.Fatalf("node.New: %v", err)
	}
	stop := make(chan struct{})
	go n.Gossip.RunDispatcher(stop)
	t.Cleanup(func() {
		close(stop)
		n.Close()
	})
	return New(n, nil), n
}

func doJSON(t *testing.T, mux http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestBlockchainHeightStartsAtZero(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/blockchain/height", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp blockchainHeightResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Height != 0 {
		t.Fatalf("height = %d, want 0", resp.Height)
	}
}

func TestMineExtendsChainAndCreditsDefaultWallet(t *testing.T) {
	s, n := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/mine", mineRequest{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp mineResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Block.Height != 1 {
		t.Fatalf("height = %d, want 1", resp.Block.Height)
	}
	if n.Chain.Height() != 1 {
		t.Fatalf("chain height = %d, want 1", n.Chain.Height())
	}
	if resp.Reward <= 0 {
		t.Fatalf("reward = %v, want > 0", resp.Reward)
	}
	if got := n.CurrentWallet().CalculateBalance(n.Chain.UTXOSnapshot()); got != resp.Reward {
		t.Fatalf("default wallet balance = %v, want the reward %v", got, resp.Reward)
	}
}

func TestWalletInitGeneratesAndPersistsIdentity(t *testing.T) {
	s, n := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/wallet", walletInitRequest{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp walletInitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Address == "" || resp.PrivateKey == "" {
		t.Fatalf("expected address and private key, got %+v", resp)
	}
	if n.CurrentWallet().Address() != resp.Address {
		t.Fatalf("node wallet not updated: got %s, want %s", n.CurrentWallet().Address(), resp.Address)
	}
}

func TestWalletInitRejectsBadPrivateKeyFormat(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/wallet", walletInitRequest{PrivateKey: "not-hex"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWalletInfoReportsZeroBalanceForFreshWallet(t *testing.T) {
	s, _ := newTestServer(t)
	doJSON(t, s.Handler(), http.MethodPost, "/wallet", walletInitRequest{})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/wallet/info", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp walletInfoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Balance != 0 {
		t.Fatalf("balance = %v, want 0", resp.Balance)
	}
}

func TestWalletTransactRejectsSelfSend(t *testing.T) {
	s, n := newTestServer(t)
	addr := n.CurrentWallet().Address()

	rec := doJSON(t, s.Handler(), http.MethodPost, "/wallet/transact", transactRequest{
		Recipient: addr,
		Amount:    1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestWalletTransactAfterMiningSucceeds(t *testing.T) {
	s, _ := newTestServer(t)
	doJSON(t, s.Handler(), http.MethodPost, "/mine", mineRequest{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/wallet/transact", transactRequest{
		Recipient: "recipient-address-000001",
		Amount:    1,
		Priority:  "high",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp transactResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Transaction.Output["recipient-address-000001"] != 1 {
		t.Fatalf("unexpected output map: %+v", resp.Transaction.Output)
	}
}

func TestWalletTransactRejectsBadPriority(t *testing.T) {
	s, _ := newTestServer(t)
	doJSON(t, s.Handler(), http.MethodPost, "/mine", mineRequest{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/wallet/transact", transactRequest{
		Recipient: "recipient-address-000001",
		Amount:    1,
		Priority:  "urgent",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestFeeRateReportsPriorityMultipliers(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/fee-rate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp feeRateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.PriorityMultipliers["high"] != 2.0 {
		t.Fatalf("priority_multipliers = %+v", resp.PriorityMultipliers)
	}
}

func TestKnownAddressesIncludesGenesisRecipient(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/known-addresses", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var addrs []string
	if err := json.Unmarshal(rec.Body.Bytes(), &addrs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(addrs) == 0 {
		t.Fatal("expected at least the genesis recipient")
	}
}

func TestTransactionByIDNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/transaction/id/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestBlockLookupsUseIndexAfterMining(t *testing.T) {
	s, _ := newTestServer(t)
	mineRec := doJSON(t, s.Handler(), http.MethodPost, "/mine", mineRequest{})
	if mineRec.Code != http.StatusOK {
		t.Fatalf("mine status = %d, body = %s", mineRec.Code, mineRec.Body.String())
	}
	var mined mineResponse
	if err := json.Unmarshal(mineRec.Body.Bytes(), &mined); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	heightRec := doJSON(t, s.Handler(), http.MethodGet, "/blockchain/height/1", nil)
	if heightRec.Code != http.StatusOK {
		t.Fatalf("by-height status = %d, body = %s", heightRec.Code, heightRec.Body.String())
	}
	hashRec := doJSON(t, s.Handler(), http.MethodGet, "/blockchain/hash/"+mined.Block.Hash, nil)
	if hashRec.Code != http.StatusOK {
		t.Fatalf("by-hash status = %d, body = %s", hashRec.Code, hashRec.Body.String())
	}
	coinbaseID := mined.Block.Data[0].ID
	txRec := doJSON(t, s.Handler(), http.MethodGet, "/blockchain/tx/"+coinbaseID, nil)
	if txRec.Code != http.StatusOK {
		t.Fatalf("by-tx status = %d, body = %s", txRec.Code, txRec.Body.String())
	}
}

func TestBlockByHeightOutOfRange(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/blockchain/height/99", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPaginatedBlocksRejectsPageZero(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/blockchain/paginated?page=0", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}
