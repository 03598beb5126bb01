package main

import (
	"fmt"

	"github.com/qtfetch/qtfetch/internal/fetch"
	"github.com/qtfetch/qtfetch/internal/metadata"
	"github.com/spf13/cobra"
)

func newInstallToolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install-tool HOST TARGET TOOL_NAME [VARIANT]",
		Short: "Install a standalone tool from the SDK repository",
		Long: `Install a standalone tool such as CMake, Ninja or the maintenance tool.
Without a variant, every package published under the tool is installed;
with one, only the named package.`,
		Example: `  qtfetch install-tool linux desktop tools_cmake
  qtfetch install-tool windows desktop tools_ninja qt.tools.ninja
  qtfetch install-tool mac desktop tools_ifw -O ~/Qt`,
		Args: cobra.RangeArgs(3, 4),
		RunE: installToolRun,
	}

	addInstallFlags(cmd)

	return cmd
}

func installToolRun(cmd *cobra.Command, args []string) error {
	host, target, toolName := args[0], args[1], args[2]

	variant := ""
	if len(args) == 4 {
		variant = args[3]
	}

	if !validTarget(target) {
		return fmt.Errorf("unknown target %q (valid: %v)", target, metadata.Targets)
	}

	snap, err := installSettings()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	client := fetch.NewClient(snap, logger)
	catalog := metadata.NewCatalog(client)
	id := metadata.ArchiveID{Host: host, Target: target}

	var pkgs []metadata.PackageDescriptor
	err = fetch.RetryWithMirrors(ctx, func(baseURL string) error {
		var rerr error
		pkgs, rerr = catalog.ToolPackages(ctx, baseURL, id, toolName, variant)
		return rerr
	}, snap.MirrorList(), snap.Requests.MaxRetriesOnConnectionError, logger)
	if err != nil {
		return err
	}

	meta := runMeta{
		Command: "install-tool",
		Host:    host,
		Target:  target,
		Version: toolName,
		Arch:    variant,
	}
	return executeInstall(ctx, snap, pkgs, meta)
}
