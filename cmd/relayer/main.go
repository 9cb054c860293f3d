package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"bridgeRelay/internal/chain"
	"bridgeRelay/internal/config"
	"bridgeRelay/internal/listener"
	"bridgeRelay/internal/relay"
	"bridgeRelay/internal/storage"
	"bridgeRelay/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "relayer",
		Short:        "Cross-chain event relay pipeline",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the event listener",
		RunE:  runListener,
	}

	runCmd.Flags().String("rpc", "", "source chain RPC URL")
	runCmd.Flags().String("contract", "", "bridge contract address")
	runCmd.Flags().String("event", "BridgeDepositInitiated", "contract event to listen for")
	runCmd.Flags().String("abi", "", "contract ABI JSON path (empty uses the built-in bridge ABI)")
	runCmd.Flags().Uint64("source-chain-id", 0, "source chain numeric identifier")
	runCmd.Flags().String("destination-url", "", "destination relayer endpoint URL")
	runCmd.Flags().String("destination-api-key", "", "destination relayer API key")
	runCmd.Flags().Duration("request-timeout", 10*time.Second, "destination request timeout")
	runCmd.Flags().Duration("poll-interval", 5*time.Second, "delay between filter polls")
	runCmd.Flags().Int("max-retries", 3, "delivery attempts per event")
	runCmd.Flags().Duration("retry-backoff", time.Second, "initial delivery retry backoff")
	runCmd.Flags().Duration("reconnect-delay", 15*time.Second, "delay before reconnecting after a failure")
	runCmd.Flags().String("dead-letter", "", "dead letter JSONL path (empty disables)")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN for the dead letter store (overrides dead-letter)")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runListener(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		err := fmt.Errorf("invalid contract address: %s", cfg.ContractAddress)
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}

	contractABI, err := chain.LoadABI(cfg.ABIPath)
	if err != nil {
		logger.Error("abi load failed", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, chain.Config{
		RPCURL:          cfg.RPCURL,
		ContractAddress: common.HexToAddress(cfg.ContractAddress),
		ContractABI:     contractABI,
	})
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer chainClient.Close()

	destRelayer := relay.New(relay.Config{
		Endpoint: cfg.DestinationURL,
		APIKey:   cfg.DestinationAPIKey,
		Timeout:  cfg.RequestTimeout,
	}, logger)

	deadLetter, closeDeadLetter, err := newDeadLetter(ctx, cfg, logger)
	if err != nil {
		logger.Error("dead letter setup failed", zap.Error(err))
		return err
	}
	if closeDeadLetter != nil {
		defer closeDeadLetter()
	}

	svc, err := listener.NewService(listener.Config{
		EventName:      cfg.EventName,
		SourceChainID:  cfg.SourceChainID,
		PollInterval:   cfg.PollInterval,
		MaxAttempts:    cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
		ReconnectDelay: cfg.ReconnectDelay,
	}, connectorAdapter{chainClient}, destRelayer, deadLetter, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}

	logger.Info("relayer start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("contract", cfg.ContractAddress),
		zap.String("event", cfg.EventName),
		zap.Uint64("source_chain_id", cfg.SourceChainID),
		zap.String("destination", cfg.DestinationURL),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Int("max_retries", cfg.MaxRetries),
	)

	if err := svc.Run(ctx); err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	return nil
}

// connectorAdapter narrows *chain.Client to the listener's Connector
// interface.
type connectorAdapter struct {
	*chain.Client
}

func (a connectorAdapter) Subscribe(ctx context.Context, eventName string) (listener.EventFilter, error) {
	return a.Client.Subscribe(ctx, eventName)
}

func newDeadLetter(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.DeadLetter, func(), error) {
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("dead letter store enabled", zap.String("kind", "postgres"))
		return store, store.Close, nil
	}
	if cfg.DeadLetterPath != "" {
		logger.Info("dead letter store enabled", zap.String("kind", "jsonl"), zap.String("path", cfg.DeadLetterPath))
		return storage.NewJsonlDeadLetter(cfg.DeadLetterPath), nil, nil
	}
	return nil, nil, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
