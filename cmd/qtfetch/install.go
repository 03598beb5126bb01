package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/qtfetch/qtfetch/internal/fetch"
	"github.com/qtfetch/qtfetch/internal/installer"
	"github.com/qtfetch/qtfetch/internal/metadata"
	"github.com/qtfetch/qtfetch/internal/safety"
	"github.com/qtfetch/qtfetch/internal/settings"
	"github.com/qtfetch/qtfetch/internal/store"
	"github.com/spf13/cobra"
)

var (
	installOutputDir   string
	installBase        string
	installTimeout     float64
	installExternal    string
	installKeep        bool
	installArchiveDest string
	installModules     []string
	installDryRun      bool
)

// defaultArchs maps a host OS to the desktop architecture installed when
// none is given on the command line.
var defaultArchs = map[string]string{
	"linux":   "linux_gcc_64",
	"mac":     "clang_64",
	"windows": "win64_msvc2022_64",
}

func newInstallQtCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install-qt HOST TARGET VERSION [ARCH]",
		Short: "Install Qt SDK packages for a version and architecture",
		Long: `Install the Qt SDK for an exact version and architecture. The package
catalog is resolved from the configured mirror, archives are downloaded
concurrently with checksum verification, and each archive is extracted
into the output directory.

Extra Qt modules can be requested with --modules; pass "all" to install
every module published for the architecture.`,
		Example: `  qtfetch install-qt linux desktop 6.8.2
  qtfetch install-qt linux desktop 6.8.2 linux_gcc_64 -m qtcharts -m qtquick3d
  qtfetch install-qt windows desktop 6.8.2 win64_msvc2022_64 -O C:\Qt
  qtfetch install-qt mac desktop 6.8.2 --dry-run`,
		Args: cobra.RangeArgs(3, 4),
		RunE: installQtRun,
	}

	addInstallFlags(cmd)
	cmd.Flags().StringArrayVarP(&installModules, "modules", "m", nil, "extra modules to install (repeatable; \"all\" for every module)")

	return cmd
}

// addInstallFlags registers flags shared by install-qt and install-tool.
func addInstallFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&installOutputDir, "outputdir", "O", ".", "base directory to install into")
	cmd.Flags().StringVarP(&installBase, "base", "b", "", "mirror base URL (overrides settings)")
	cmd.Flags().Float64Var(&installTimeout, "timeout", 0, "connect and response timeout in seconds (overrides settings)")
	cmd.Flags().StringVarP(&installExternal, "external", "E", "", "external 7z command for archive extraction")
	cmd.Flags().BoolVarP(&installKeep, "keep", "k", false, "keep downloaded archives after extraction")
	cmd.Flags().StringVarP(&installArchiveDest, "archive-dest", "d", "", "directory to download archives into (implies a kept location)")
	cmd.Flags().BoolVar(&installDryRun, "dry-run", false, "print what would be installed without downloading anything")
}

func installQtRun(cmd *cobra.Command, args []string) error {
	host, target, version := args[0], args[1], args[2]

	arch := ""
	if len(args) == 4 {
		arch = args[3]
	} else if target == "desktop" {
		arch = defaultArchs[host]
	}
	if arch == "" {
		return fmt.Errorf("no default architecture for %s %s, pass one explicitly", host, target)
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
		pkgs, rerr = catalog.QtPackages(ctx, baseURL, id, version, arch, installModules)
		return rerr
	}, snap.MirrorList(), snap.Requests.MaxRetriesOnConnectionError, logger)
	if err != nil {
		return err
	}

	meta := runMeta{
		Command: "install-qt",
		Host:    host,
		Target:  target,
		Version: version,
		Arch:    arch,
	}
	return executeInstall(ctx, snap, pkgs, meta)
}

// validTarget reports whether target is a known target SDK name.
func validTarget(target string) bool {
	for _, t := range metadata.Targets {
		if t == target {
			return true
		}
	}
	return false
}

// installSettings copies the loaded settings and applies command-line
// overrides. The copy is what workers snapshot, so later flag parsing
// cannot race with a running install.
func installSettings() (*settings.Settings, error) {
	if globalSettings == nil {
		return nil, fmt.Errorf("settings not loaded")
	}

	snap := *globalSettings
	if installBase != "" {
		if _, err := safety.ValidateMirrorURL(installBase); err != nil {
			return nil, err
		}
		snap.Mirrors.BaseURL = installBase
	}
	if installTimeout > 0 {
		snap.Requests.ConnectionTimeout = installTimeout
		snap.Requests.ResponseTimeout = installTimeout
	}
	if installExternal != "" {
		snap.Install.SevenZipCmd = installExternal
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// runMeta carries the invocation identity recorded in install history.
type runMeta struct {
	Command string
	Host    string
	Target  string
	Version string
	Arch    string
}

// executeInstall runs the orchestrator over the resolved packages and
// records the outcome in the install history database. Dry runs touch
// neither the network nor the history.
func executeInstall(ctx context.Context, snap *settings.Settings, pkgs []metadata.PackageDescriptor, meta runMeta) error {
	baseDir, err := filepath.Abs(installOutputDir)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}

	keep := installKeep || snap.Install.AlwaysKeepArchives

	archiveDest := installArchiveDest
	if archiveDest == "" && keep {
		archiveDest = snap.Install.ArchiveDownloadLocation
	}

	orch := installer.New(snap, logger)
	opts := installer.Options{
		BaseDir:     baseDir,
		Keep:        keep,
		ExternalCmd: snap.Install.SevenZipCmd,
		DryRun:      installDryRun,
	}

	if installDryRun {
		_, err := orch.Run(ctx, pkgs, opts)
		return err
	}

	if archiveDest == "" {
		if keep {
			// Archives outlive the run, so they land beside the caller.
			archiveDest = "."
		} else {
			tmp, err := os.MkdirTemp("", "qtfetch-")
			if err != nil {
				return fmt.Errorf("failed to create download directory: %w", err)
			}
			defer os.RemoveAll(tmp)
			archiveDest = tmp
		}
	}
	if err := os.MkdirAll(archiveDest, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	opts.ArchiveDest = archiveDest

	run := &store.InstallRun{
		Command:   meta.Command,
		Host:      meta.Host,
		Target:    meta.Target,
		Version:   meta.Version,
		Arch:      meta.Arch,
		StartTime: time.Now(),
		Status:    "running",
	}
	if globalStore != nil {
		if serr := globalStore.CreateInstallRun(run); serr != nil {
			logger.Warn("failed to record install run", "error", serr)
		}
	}

	report, err := orch.Run(ctx, pkgs, opts)

	if globalStore != nil && run.ID != 0 {
		run.EndTime = time.Now()
		if err != nil {
			run.Status = "failed"
			run.ErrorMessage = err.Error()
		} else {
			run.Status = "success"
			run.PackagesInstalled = report.Installed
			run.BytesDownloaded = report.BytesDownloaded
		}
		if serr := globalStore.UpdateInstallRun(run); serr != nil {
			logger.Warn("failed to update install run", "error", serr)
		}
		if err == nil {
			recordPackages(pkgs, run.ID)
		}
	}

	return err
}

// recordPackages writes one history row per installed package.
func recordPackages(pkgs []metadata.PackageDescriptor, runID int64) {
	now := time.Now()
	for _, pkg := range pkgs {
		rec := &store.InstalledPackage{
			Name:         pkg.Name,
			ArchivePath:  path.Base(pkg.ArchivePath),
			InstallPath:  pkg.InstallPath,
			Size:         pkg.CompressedSize,
			InstallRunID: runID,
			InstalledAt:  now,
		}
		if err := globalStore.RecordInstalledPackage(rec); err != nil {
			logger.Warn("failed to record installed package", "package", pkg.Name, "error", err)
		}
	}
}
