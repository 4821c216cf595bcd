// Package cli implements the walletd command-line interface: a
// cobra.Command tree with serve, create-wallet, rotate-signing-key
// and rotate-kek subcommands. Grounded on
// Jasonyou1995-simple-eth-hd-wallet's internal/cli package (the
// rootCmd + one file per subcommand shape), with
// the viper config layer it uses replaced by this repo's own
// config.FromEnv/config.WithTOMLFile overlay (viper is not part of
// this pack's dependency surface; go-toml/v2 already is, via
// internal/config).
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/defisafe/hotwallet/internal/audit"
	"github.com/defisafe/hotwallet/internal/bridge"
	"github.com/defisafe/hotwallet/internal/chain"
	"github.com/defisafe/hotwallet/internal/config"
	"github.com/defisafe/hotwallet/internal/envelope"
	"github.com/defisafe/hotwallet/internal/listener"
	"github.com/defisafe/hotwallet/internal/multisig"
	"github.com/defisafe/hotwallet/internal/nonceengine"
	"github.com/defisafe/hotwallet/internal/storage"
	"github.com/defisafe/hotwallet/internal/tx"
	"github.com/defisafe/hotwallet/internal/walletmanager"
	"github.com/defisafe/hotwallet/internal/walletstore"
	"github.com/defisafe/hotwallet/pkg/models"
)

// allNetworks lists every network the registry may dial a client for,
// in the order cfg.RPCURLs/cfg.ChainIDs (internal/config.Default)
// enumerates them.
var allNetworks = []models.Network{
	models.NetworkETH,
	models.NetworkSepolia,
	models.NetworkPolygon,
	models.NetworkBSC,
	models.NetworkBSCTestnet,
	models.NetworkSolana,
}

// newLogger builds the process's one *slog.Logger, routed through
// audit.Handler so key material never reaches the sink even if a
// caller forgets to wrap it in a secretbuf.Buffer first (spec §9).
func newLogger() *slog.Logger {
	base := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(audit.New(base))
}

// loadConfig builds this binary's Config from the environment,
// layered with an optional TOML file. config.FromEnv always starts
// from a production-mode Default(), so the test-only env toggles
// (ALLOW_BRIDGE_MOCKS, TEST_SKIP_DECRYPT) are rejected here exactly as
// they would be in any other production binary; there is deliberately
// no CLI flag to downgrade Production, matching config_test.go's own
// non-production Configs, which are built directly in test code, not
// through this entry point.
func loadConfig(cfgFile string) (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	if cfgFile != "" {
		cfg, err = config.WithTOMLFile(cfg, cfgFile)
		if err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

// buildRegistry dials a real chain.Client for every network with a
// configured RPC URL, and logs a warning for the rest instead of
// failing outright — a single-chain deployment need not configure
// every network walletd knows about.
func buildRegistry(ctx context.Context, cfg config.Config, logger *slog.Logger) (*chain.Registry, error) {
	registry := chain.NewRegistry()
	for _, network := range allNetworks {
		rpcURL, ok := cfg.RPCURLs[string(network)]
		if !ok || rpcURL == "" {
			logger.Warn("no rpc url configured, chain unavailable", "network", network)
			continue
		}
		if network.IsEVM() {
			chainID := uint64(cfg.ChainIDs[string(network)])
			client, err := chain.DialEVM(ctx, network, rpcURL, chainID)
			if err != nil {
				return nil, err
			}
			registry.Register(client)
			continue
		}
		registry.Register(chain.NewSolanaClient(rpcURL))
	}
	return registry, nil
}

// buildManager wires every lower-level package into a
// walletmanager.Manager, the same dependency graph api_test.go and
// walletmanager_test.go assemble by hand for tests, with real chain
// clients in place of chain.FakeClient.
func buildManager(ctx context.Context, cfg config.Config, logger *slog.Logger) (*walletmanager.Manager, error) {
	registry, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	records := walletstore.NewMemoryStore()
	crypto := envelope.New(config.EnvKEKSource{Production: cfg.Production})

	nonces, err := nonceengine.New(records, registry, nil)
	if err != nil {
		return nil, err
	}

	builder := tx.NewBuilder(tx.BuilderConfig{MaxRetries: 3}, registry, storage.NewMemoryTxStore())
	ms := multisig.New()
	br := bridge.New(cfg.AllowBridgeMocks)

	listeners := listener.NewManager(func(ev models.BlockEvent) error {
		logger.Info("block event", "network", ev.Network, "tx_hash", ev.TxHash, "confirmed", ev.Confirmed)
		return nil
	})

	mgr := walletmanager.New(cfg, records, crypto, registry, nonces, builder, ms, br, listeners, nil)
	return mgr, nil
}
