package node

import (
	"path/filepath"
	"testing"
)

// startDispatcher runs the node's gossip dispatcher for the duration of a
// test — QueueBroadcast (used by Miner.MineOnce) blocks until the
// dispatcher drains its queue, so any test that mines must have one
// running. Returns a func to stop it.
func startDispatcher(n *Node) func() {
	stop := make(chan struct{})
	go n.Gossip.RunDispatcher(stop)
	return func() { close(stop) }
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.BindAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	return cfg
}

func TestNewBuildsWiredNode(t *testing.T) {
	n, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()

	if n.Wallet.Address() == "" {
		t.Fatal("expected a generated wallet address")
	}
	if n.Chain.Height() != 0 {
		t.Fatalf("height = %d, want 0 (genesis only)", n.Chain.Height())
	}
	if n.Gossip == nil || n.Pool == nil || n.FeeRate == nil || n.Index == nil {
		t.Fatal("expected all subsystems wired")
	}
}

func TestNewReloadsPersistedWallet(t *testing.T) {
	cfg := testConfig(t)

	first, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New (first): %v", err)
	}
	addr := first.Wallet.Address()
	first.Close()

	second, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New (second): %v", err)
	}
	defer second.Close()

	if second.Wallet.Address() != addr {
		t.Fatalf("address = %q, want %q (reloaded key)", second.Wallet.Address(), addr)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.BindAddr = "not-an-address"

	if _, err := New(cfg, nil); err == nil {
		t.Fatal("expected error for invalid bind_addr")
	}
}

func TestNewWithMiningEnabledConstructsMiner(t *testing.T) {
	cfg := testConfig(t)
	cfg.MineEnabled = true
	cfg.MinerAddress = "20b2ee470d526eda4b12"
	cfg.WalletFile = filepath.Join("wallet.pem")

	n, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()

	if n.Miner == nil {
		t.Fatal("expected a miner when MineEnabled is set")
	}
}
