package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"post-digest/config"
	"post-digest/internal/logger"
)

func main() {
	config.InitApp()
	logger.InitFromEnv("LOG_LEVEL", config.GetConfig().Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
