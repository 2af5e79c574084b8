// ====================================
// File: cmd/bundler/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-bundler/internal/blockchain/solbc"
	"github.com/rovshanmuradov/solana-bundler/internal/config"
	"github.com/rovshanmuradov/solana-bundler/internal/distribution"
	"github.com/rovshanmuradov/solana-bundler/internal/gateway"
	"github.com/rovshanmuradov/solana-bundler/internal/logger"
	"github.com/rovshanmuradov/solana-bundler/internal/relay"
	"github.com/rovshanmuradov/solana-bundler/internal/utils/metrics"
)

const startupProbeTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to config file (optional, SOLANA_BUNDLER_* env is always applied)")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.New(cfg.DebugLogging, cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	if err := run(rootCtx, cfg, appLogger); err != nil {
		appLogger.Error("Bundler stopped with error", zap.Error(err))
		_ = logger.Sync(appLogger)
		os.Exit(1)
	}

	appLogger.Info("Bundler shut down gracefully")
	if err := logger.Sync(appLogger); err != nil {
		fmt.Fprintf(os.Stderr, "failed to sync logger during shutdown: %v\n", err)
	}
}

func run(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) error {
	collector := metrics.NewCollector()

	ledger, err := solbc.NewClient(cfg.RPCList, appLogger)
	if err != nil {
		return fmt.Errorf("ledger client: %w", err)
	}
	ledger.WithConfirmation(0, cfg.Relay.ConfirmTimeout()).WithMetrics(collector)
	defer func() {
		if cerr := ledger.Close(); cerr != nil {
			appLogger.Warn("Failed to close ledger client", zap.Error(cerr))
		}
	}()

	var confirmer relay.Confirmer
	if cfg.Relay.ConfirmSignatures {
		confirmer = ledger
	}
	submitter := relay.NewSubmitter(confirmer, appLogger).WithMetrics(collector)

	jitoOpts := relay.JitoOptions{
		PollInterval:   cfg.Relay.PollInterval(),
		ConfirmTimeout: cfg.Relay.ConfirmTimeout(),
	}
	relays := func(blockEngineURL string) (relay.Relay, error) {
		jito, err := relay.NewJitoRelay(blockEngineURL, jitoOpts, appLogger)
		if err != nil {
			return nil, err
		}
		return jito, nil
	}

	server, err := gateway.NewServer(gateway.Deps{
		Ledger:     ledger,
		Relays:     relays,
		Credential: cfg.Relay.AuthUUID,
		Submitter:  submitter,
		Options: distribution.Options{
			ChunkSize:      cfg.Distribution.ChunkSize,
			SuperChunkSize: cfg.Distribution.SuperChunkSize,
			TipLamports:    cfg.Distribution.TipLamports,
			TipEveryBundle: cfg.Distribution.TipEveryBundle,
		},
		DefaultBlockEngine: cfg.Relay.BlockEngineURL,
		Health:             ledger.Health,
		Metrics:            collector,
	}, appLogger)
	if err != nil {
		return err
	}

	appLogger.Info("Starting Solana bundler",
		zap.Int("rpc_nodes", len(cfg.RPCList)),
		zap.String("block_engine", cfg.Relay.BlockEngineURL),
		zap.Bool("relay_auth", cfg.Relay.AuthUUID != ""),
		zap.Bool("confirm_signatures", cfg.Relay.ConfirmSignatures))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Serve(gCtx, cfg.Server.ListenAddr, cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
	})

	// Проверка леджера при старте не блокирует шлюз
	g.Go(func() error {
		probeCtx, cancel := context.WithTimeout(gCtx, startupProbeTimeout)
		defer cancel()
		if err := ledger.Health(probeCtx); err != nil {
			appLogger.Warn("Ledger health probe failed", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}
