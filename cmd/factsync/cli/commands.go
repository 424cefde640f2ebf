// Package cli holds the factsync cobra commands.
package cli

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/factsync/internal/report"
	"github.com/MrSnakeDoc/factsync/internal/version"
)

// NewRootCmd creates the root command. Without a subcommand it serves.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "factsync",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Publish the public IP and a timezone clock table to Redis",
		Long: `factsync is a long-running sidecar that polls the host's public IP address
and the current time in a set of timezones, and publishes both as JSON records
to Redis. Configuration comes from the environment (REDIS_HOST, FACTSYNC_*).`,
		RunE: runServe,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newProbeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}

			switch format {
			case "json":
				out, err := json.MarshalIndent(versionInfo{
					Version:   version.Version,
					Commit:    version.Commit,
					BuildDate: version.BuildDate,
					GoVersion: version.GoVersion,
					Platform:  runtime.GOOS + "/" + runtime.GOARCH,
				}, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format version info: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return err
			case "table":
				return report.Build(cmd.OutOrStdout())
			default:
				_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
				return err
			}
		},
	}
	cmd.Flags().String("format", "", "Output format (json|table)")
	return cmd
}
