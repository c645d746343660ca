package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/trufnetwork/token-attester/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RootCmd().ExecuteContext(ctx); err != nil {
		zap.L().Fatal("Failed to execute root command", zap.Error(err))
	}
}

func init() {
	zap.ReplaceGlobals(zap.Must(zap.NewProduction()))
}
