// Command rubin-node runs one node: its chain, mempool, wallet, gossip
// engine and control surface, all wired through the node package.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agecoder/rubinchain/httpapi"
	"github.com/agecoder/rubinchain/node"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "rubin-node:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a node config JSON file (optional, flags below override it)")
		network    = flag.String("network", "", "network name")
		dataDir    = flag.String("data-dir", "", "data directory")
		bindAddr   = flag.String("bind-addr", "", "gossip (WebSocket) listen address")
		httpAddr   = flag.String("http-addr", "", "control-surface listen address")
		bootNode   = flag.String("boot-node", "", "boot node gossip URI to register with on startup")
		peers      = flag.String("peers", "", "comma-separated initial peer URIs")
		mine       = flag.Bool("mine", false, "enable mining")
		minerAddr  = flag.String("miner-address", "", "address to credit mined blocks to")
		logLevel   = flag.String("log-level", "", "log level: debug, info, warn, error")
	)
	flag.Parse()

	cfg := node.DefaultConfig()
	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	applyFlagOverrides(&cfg, *network, *dataDir, *bindAddr, *httpAddr, *bootNode, *peers, *minerAddr, *logLevel, *mine)

	if err := node.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	n, err := node.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("build node: %w", err)
	}
	defer n.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gossipSrv := &http.Server{Addr: cfg.BindAddr, Handler: http.HandlerFunc(n.Gossip.Upgrade)}
	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: httpapi.New(n, logger.Named("httpapi")).Handler()}

	dispatcherStop := make(chan struct{})
	go n.Gossip.RunDispatcher(dispatcherStop)
	go n.Gossip.RunPeerDiscovery()

	for _, peer := range cfg.Peers {
		go n.Gossip.ConnectToPeer(peer, 0)
	}
	if cfg.BootNodeURI != "" {
		go n.Gossip.RegisterWithBootNode(0)
	}

	if cfg.MineEnabled && n.Miner != nil {
		go n.Miner.Run(ctx)
	}

	serveErr := make(chan error, 2)
	go func() {
		logger.Info("gossip listener starting", zap.String("addr", cfg.BindAddr))
		if err := gossipSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- fmt.Errorf("gossip listener: %w", err)
		}
	}()
	go func() {
		logger.Info("control surface starting", zap.String("addr", cfg.HTTPAddr))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- fmt.Errorf("control surface: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		logger.Error("listener failed", zap.Error(err))
	}

	close(dispatcherStop)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = gossipSrv.Shutdown(shutdownCtx)
	_ = apiSrv.Shutdown(shutdownCtx)
	return nil
}

func applyFlagOverrides(cfg *node.Config, network, dataDir, bindAddr, httpAddr, bootNode, peers, minerAddr, logLevel string, mine bool) {
	if network != "" {
		cfg.Network = network
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if bindAddr != "" {
		cfg.BindAddr = bindAddr
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if bootNode != "" {
		cfg.BootNodeURI = bootNode
	}
	if peers != "" {
		cfg.Peers = node.NormalizePeers(peers)
	}
	if mine {
		cfg.MineEnabled = true
	}
	if minerAddr != "" {
		cfg.MinerAddress = minerAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
