// Package report renders snapshots as tables for terminal output.
package report

import (
	"fmt"
	"io"
	"runtime"

	"github.com/olekukonko/tablewriter"

	"github.com/MrSnakeDoc/factsync/internal/domain"
	"github.com/MrSnakeDoc/factsync/internal/version"
)

// Clock writes the timezone table of s, preceded by the UTC instant.
func Clock(w io.Writer, s domain.ClockSnapshot) error {
	if _, err := fmt.Fprintf(w, "Current time in %d timezones (UTC %s)\n", len(s.Zones), domain.FormatInstant(s.UTC)); err != nil {
		return err
	}
	if s.Offset != nil {
		if _, err := fmt.Fprintf(w, "Clock offset against NTP: %s\n", s.Offset.String()); err != nil {
			return err
		}
	}

	table := tablewriter.NewWriter(w)
	table.Header("Zone", "Local time")
	for _, z := range s.Zones {
		if err := table.Append(z.Label, z.Local); err != nil {
			return err
		}
	}
	return table.Render()
}

// IP writes the public address of s.
func IP(w io.Writer, s domain.IPSnapshot) error {
	table := tablewriter.NewWriter(w)
	table.Header("Public IP", "Observed at")
	if err := table.Append(s.Address, domain.FormatInstant(s.At)); err != nil {
		return err
	}
	return table.Render()
}

// Build writes version and platform details.
func Build(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	rows := [][2]string{
		{"Version", version.Version},
		{"Commit", version.Commit},
		{"Built", version.BuildDate},
		{"Go", version.GoVersion},
		{"Platform", runtime.GOOS + "/" + runtime.GOARCH},
	}
	for _, r := range rows {
		if err := table.Append(r[0], r[1]); err != nil {
			return err
		}
	}
	return table.Render()
}
