// Package node wires the chain, mempool, gossip engine, wallet, derived
// index and fee-rate estimator into one running instance, and configures
// it from flags/JSON (config.go) the way the teacher's node.Config did
// for its own, narrower binary-protocol node.
package node

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/agecoder/rubinchain/chain"
	"github.com/agecoder/rubinchain/crypto"
	"github.com/agecoder/rubinchain/feerate"
	"github.com/agecoder/rubinchain/gossip"
	"github.com/agecoder/rubinchain/mempool"
	"github.com/agecoder/rubinchain/store"
	"github.com/agecoder/rubinchain/wallet"
)

// Node is one running instance: a chain, its mempool, the gossip engine
// synchronizing both with peers, a local wallet identity, a derived
// lookup index, and a fee-rate estimator for the control surface.
type Node struct {
	Config  Config
	Chain   *chain.Blockchain
	Pool    *mempool.Mempool
	Gossip  *gossip.Engine
	Wallet  *wallet.Wallet
	Index   *store.Index
	FeeRate *feerate.Estimator
	Miner   *Miner
	Logger  *zap.Logger

	walletMu   sync.RWMutex
	walletPath string
}

// New builds a Node from cfg: loads or generates the wallet identity,
// opens the derived index, and wires the chain/mempool into a gossip
// engine and (if cfg.MineEnabled) a miner.
func New(cfg Config, logger *zap.Logger) (*Node, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w, err := loadOrGenerateWallet(filepath.Join(cfg.DataDir, cfg.WalletFile))
	if err != nil {
		return nil, fmt.Errorf("node: wallet: %w", err)
	}

	bc := chain.New(logger.Named("chain"))
	pool := mempool.New(0, logger.Named("mempool"))

	idx, err := store.Open(filepath.Join(cfg.DataDir, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("node: index: %w", err)
	}
	if err := idx.Rebuild(bc.Chain()); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("node: initial index rebuild: %w", err)
	}

	engine := gossip.New(bc, pool, gossip.Config{
		SelfURI:     "ws://" + cfg.BindAddr,
		BootNodeURI: cfg.BootNodeURI,
		PeersFile:   filepath.Join(cfg.DataDir, cfg.PeersFile),
		MaxPeers:    cfg.MaxPeers,
		Logger:      logger.Named("gossip"),
	})

	fe := feerate.New(bc, pool)

	n := &Node{
		Config:     cfg,
		Chain:      bc,
		Pool:       pool,
		Gossip:     engine,
		Wallet:     w,
		Index:      idx,
		FeeRate:    fe,
		Logger:     logger,
		walletPath: filepath.Join(cfg.DataDir, cfg.WalletFile),
	}
	engine.OnChainReplaced = n.RefreshIndex
	if cfg.MineEnabled {
		n.Miner = NewMiner(n, cfg.MinerAddress, logger.Named("miner"))
	}
	return n, nil
}

// Close releases resources Node owns that are not garbage-collector
// reclaimable (currently just the derived index's bbolt file).
func (n *Node) Close() error {
	if n == nil || n.Index == nil {
		return nil
	}
	return n.Index.Close()
}

// CurrentWallet returns the node's active wallet identity, safe to call
// concurrently with SetWallet.
func (n *Node) CurrentWallet() *wallet.Wallet {
	n.walletMu.RLock()
	defer n.walletMu.RUnlock()
	return n.Wallet
}

// SetWallet replaces the node's active wallet identity and persists its
// private key to disk, the `POST /wallet` restore/initialise path.
func (n *Node) SetWallet(w *wallet.Wallet) error {
	if err := persistPrivateKey(n.walletPath, w.PrivateKey()); err != nil {
		return fmt.Errorf("node: persist wallet: %w", err)
	}
	n.walletMu.Lock()
	n.Wallet = w
	n.walletMu.Unlock()
	return nil
}

// RefreshIndex rebuilds the derived lookup index from the current chain.
// Call after every accepted chain mutation (AddBlock, ReplaceChain).
func (n *Node) RefreshIndex() {
	if err := n.Index.Rebuild(n.Chain.Chain()); err != nil {
		n.Logger.Error("failed to rebuild derived index", zap.Error(err))
	}
}

func loadOrGenerateWallet(path string) (*wallet.Wallet, error) {
	if raw, err := readFileByPath(path); err == nil {
		priv, err := crypto.DecodePrivateKeyPEM(string(raw))
		if err != nil {
			return nil, fmt.Errorf("decode wallet key: %w", err)
		}
		return wallet.New(priv), nil
	}

	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate wallet key: %w", err)
	}
	if err := persistPrivateKey(path, priv); err != nil {
		return nil, fmt.Errorf("persist wallet key: %w", err)
	}
	return wallet.New(priv), nil
}

// persistPrivateKey writes priv's PEM encoding to path via a temp file
// plus rename, the same crash-safe pattern gossip.savePeers uses for
// peers.json.
func persistPrivateKey(path string, priv *crypto.PrivateKey) error {
	pemStr, err := priv.EncodePEM()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmp, []byte(pemStr), 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
