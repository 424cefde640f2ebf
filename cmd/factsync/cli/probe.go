package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/factsync/internal/app"
	"github.com/MrSnakeDoc/factsync/internal/config"
	"github.com/MrSnakeDoc/factsync/internal/domain"
	"github.com/MrSnakeDoc/factsync/internal/logger"
	"github.com/MrSnakeDoc/factsync/internal/report"
)

// probeDeadline bounds a one-shot probe across every endpoint and retry.
const probeDeadline = 2 * time.Minute

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "probe ip|clock",
		Short:     "Run one probe and print the result",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"ip", "clock"},
		RunE:      runProbe,
	}
	cmd.Flags().BoolP("verbose", "v", false, "Log probe progress")
	return cmd
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "factsync: %v\n", err)
		return err
	}

	level := "error"
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	loggerClient := logger.New(level, true)
	defer func() { _ = loggerClient.Sync() }()

	probes, err := app.NewProbes(cfg, loggerClient)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdContext(cmd), probeDeadline)
	defer cancel()

	switch args[0] {
	case "ip":
		snap, err := probes.IP.Probe(ctx)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "factsync: %v\n", err)
			return err
		}
		return report.IP(cmd.OutOrStdout(), snap.(domain.IPSnapshot))
	default:
		snap, err := probes.Clock.Probe(ctx)
		if err != nil {
			return err
		}
		return report.Clock(cmd.OutOrStdout(), snap.(domain.ClockSnapshot))
	}
}
