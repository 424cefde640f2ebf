package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/factsync/internal/app"
	"github.com/MrSnakeDoc/factsync/internal/config"
	"github.com/MrSnakeDoc/factsync/internal/logger"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the polling loops until interrupted",
		Long: `Run the public IP and server time loops, the IP change watcher and, when
FACTSYNC_LISTEN_ADDR is set, the ops HTTP endpoints. SIGINT or SIGTERM stops
every unit within FACTSYNC_SHUTDOWN_TIMEOUT.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "factsync: %v\n", err)
		return err
	}

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = loggerClient.Sync() }()

	a, err := app.New(cfg, loggerClient)
	if err != nil {
		loggerClient.Error("startup failed", logger.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.Run(ctx)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
