package main

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/trufnetwork/token-attester/app"
	"github.com/trufnetwork/token-attester/internal/config"
	"github.com/trufnetwork/token-attester/internal/task"
)

type AttestEvent struct {
	Address string `json:"address"`
}

// handler keeps one runner per container so warm invocations reuse the
// network connection and the session credential.
type handler struct {
	mu     sync.Mutex
	runner *task.Runner
	logger *zap.Logger
}

func (h *handler) getRunner(ctx context.Context) (*task.Runner, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.runner != nil {
		return h.runner, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}
	runner, err := app.NewRunner(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	h.runner, h.logger = runner, logger
	return runner, nil
}

func (h *handler) HandleRequest(ctx context.Context, event AttestEvent) (app.Summary, error) {
	runner, err := h.getRunner(ctx)
	if err != nil {
		return app.Summary{}, errors.Wrap(err, "initialize attester")
	}
	res, err := runner.Run(ctx, event.Address)
	if err != nil {
		h.logger.Error("attestation failed", zap.String("address", event.Address), zap.Error(err))
		return app.Summary{}, err
	}
	return app.Summarize(res), nil
}

func main() {
	lambda.Start((&handler{}).HandleRequest)
}
