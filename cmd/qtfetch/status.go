package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusLimit int

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Display recent install runs",
		Long: `Display recent install runs recorded in the local history database:
what was installed, when, how much was downloaded, and whether the run
succeeded.`,
		Example: `  qtfetch status
  qtfetch status --limit 5`,
		RunE: statusRun,
	}

	cmd.Flags().IntVar(&statusLimit, "limit", 20, "maximum number of runs to show")

	return cmd
}

func statusRun(cmd *cobra.Command, args []string) error {
	if globalStore == nil {
		return fmt.Errorf("store not initialized")
	}

	runs, err := globalStore.ListInstallRuns(statusLimit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No install runs recorded")
		return nil
	}

	fmt.Printf("%-14s %-8s %-8s %-26s %9s %10s %-8s %-16s\n",
		"Command", "Host", "Target", "Version", "Packages", "Size", "Status", "Started")
	fmt.Println(strings.Repeat("-", 106))

	for _, r := range runs {
		version := r.Version
		if r.Arch != "" {
			version += " " + r.Arch
		}
		if len(version) > 26 {
			version = version[:26]
		}
		fmt.Printf("%-14s %-8s %-8s %-26s %9d %10s %-8s %-16s\n",
			r.Command,
			r.Host,
			r.Target,
			version,
			r.PackagesInstalled,
			humanize.Bytes(uint64(r.BytesDownloaded)),
			r.Status,
			r.StartTime.Format("2006-01-02 15:04"),
		)
		if r.Status == "failed" && r.ErrorMessage != "" {
			msg := r.ErrorMessage
			if i := strings.IndexByte(msg, '\n'); i >= 0 {
				msg = msg[:i]
			}
			fmt.Printf("    error: %s\n", msg)
		}
	}

	return nil
}
