package app

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/trufnetwork/token-attester/internal/config"
	"github.com/trufnetwork/token-attester/internal/lit"
	"github.com/trufnetwork/token-attester/internal/metrics"
	"github.com/trufnetwork/token-attester/internal/task"
	"github.com/trufnetwork/token-attester/internal/wallet"
)

// NewRunner wires a connected network client, the wallet and the metrics
// recorder into a task.Runner. Closing the runner disconnects the client
// and releases the storage.
func NewRunner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*task.Runner, error) {
	signer, err := wallet.NewSigner(cfg.EthereumKey)
	if err != nil {
		return nil, errors.Wrap(err, "load wallet")
	}

	storage, err := lit.NewStorage(cfg.LitStorage)
	if err != nil {
		return nil, errors.Wrap(err, "open session storage")
	}
	closeStorage := func() error {
		if c, ok := storage.(io.Closer); ok {
			return c.Close()
		}
		return nil
	}

	recorder := metrics.NewRecorder(cfg.MetricsEnabled, logger)
	client, err := lit.NewClient(cfg.LitConfig(storage), logger, lit.WithMetrics(recorder))
	if err != nil {
		_ = closeStorage()
		return nil, errors.Wrap(err, "create network client")
	}
	if err := client.Connect(ctx); err != nil {
		_ = closeStorage()
		return nil, err
	}

	runner, err := task.New(cfg.TaskConfig(), client, signer,
		task.WithLogger(logger),
		task.WithMetrics(recorder),
		task.WithCloser(closeStorage),
		task.WithCloser(func() error { client.Disconnect(); return nil }),
	)
	if err != nil {
		client.Disconnect()
		_ = closeStorage()
		return nil, err
	}

	logger.Info("attester ready",
		zap.String("wallet", signer.Address().Hex()),
		zap.String("network", client.Network()),
		zap.Int("nodes", len(client.ConnectedNodes())))
	return runner, nil
}

// loadConfig reads the environment and builds the matching logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, nil, errors.Wrap(err, "create logger")
	}
	return cfg, logger, nil
}
