package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var listRunID int64

func newListInstalledCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-installed",
		Short: "List packages recorded in the install history",
		Long: `List every package recorded in the local install history, or only
those from one run when --run is given. Run IDs are shown by "qtfetch
status".`,
		Example: `  qtfetch list-installed
  qtfetch list-installed --run 3`,
		RunE: listInstalledRun,
	}

	cmd.Flags().Int64Var(&listRunID, "run", 0, "limit to one install run ID (0 for all)")

	return cmd
}

func listInstalledRun(cmd *cobra.Command, args []string) error {
	if globalStore == nil {
		return fmt.Errorf("store not initialized")
	}

	pkgs, err := globalStore.ListInstalledPackages(listRunID)
	if err != nil {
		return err
	}

	if len(pkgs) == 0 {
		fmt.Println("No installed packages recorded")
		return nil
	}

	fmt.Printf("%-40s %-24s %10s %-16s\n", "Package", "Install Path", "Size", "Installed")
	fmt.Println(strings.Repeat("-", 94))

	for _, p := range pkgs {
		name := p.Name
		if len(name) > 40 {
			name = name[:40]
		}
		fmt.Printf("%-40s %-24s %10s %-16s\n",
			name,
			p.InstallPath,
			humanize.Bytes(uint64(p.Size)),
			p.InstalledAt.Format("2006-01-02 15:04"),
		)
	}

	count, err := globalStore.CountInstalledPackages()
	if err != nil {
		return err
	}
	fmt.Printf("\nTotal recorded packages: %d\n", count)

	return nil
}
