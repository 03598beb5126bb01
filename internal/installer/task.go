package installer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/qtfetch/qtfetch/internal/extract"
	"github.com/qtfetch/qtfetch/internal/fetch"
	"github.com/qtfetch/qtfetch/internal/metadata"
	"github.com/qtfetch/qtfetch/internal/qterr"
	"github.com/qtfetch/qtfetch/internal/safety"
	"github.com/qtfetch/qtfetch/internal/settings"
)

// Task is the unit of work dispatched to one pool worker. Everything a
// worker needs travels in the task; workers never read ambient state.
type Task struct {
	Pkg         metadata.PackageDescriptor
	BaseDir     string
	ArchiveDest string
	Keep        bool
	ExternalCmd string
	// Settings is a by-value snapshot so concurrent tasks cannot observe
	// mutation of a shared configuration object.
	Settings settings.Settings
}

// taskResult reports one finished task back to the orchestrator.
type taskResult struct {
	pkg   metadata.PackageDescriptor
	bytes int64
	err   error
}

// joinURL joins a base mirror URL with a relative archive path.
func joinURL(base, rel string) string {
	return strings.TrimSuffix(base, "/") + "/" + rel
}

// runTask executes one package install: checksum fetch, download with
// two-level retry, extraction, archive cleanup, completion log. Errors
// propagate untranslated; the only error handling here is retry wrapping.
func runTask(ctx context.Context, task Task, sink *LogSink) (int64, error) {
	start := time.Now()
	logger := sink.WorkerLogger(task.Pkg.Name)

	// Workers build their own client from the settings snapshot rather
	// than sharing one with the controlling goroutine.
	client := fetch.NewClient(&task.Settings, logger)
	algo := task.Settings.Requests.HashAlgorithm
	archiveName := path.Base(task.Pkg.ArchivePath)
	archiveFile := filepath.Join(task.ArchiveDest, archiveName)

	// The descriptor's base URL leads the mirror walk; the configured
	// fallbacks follow, bounded by the connection-retry budget.
	mirrors := append([]string{task.Pkg.BaseURL}, task.Settings.Mirrors.Fallbacks...)
	connRetries := task.Settings.Requests.MaxRetriesOnConnectionError

	// Step 1: resolve the trusted hash, unless verification is disabled.
	var expectedHash string
	if !task.Settings.Requests.IgnoreHash {
		err := fetch.RetryWithMirrors(ctx, func(baseURL string) error {
			h, err := client.FetchChecksum(ctx, joinURL(baseURL, task.Pkg.ArchivePath), algo)
			if err != nil {
				return err
			}
			expectedHash = h
			return nil
		}, mirrors, connRetries, logger)
		if err != nil {
			return 0, err
		}
	}

	// Step 2: download. Outer loop retries checksum mismatches against the
	// same source; the inner mirror combinator handles connection failures
	// by switching base URLs.
	download := func() error {
		return fetch.RetryWithMirrors(ctx, func(baseURL string) error {
			url := joinURL(baseURL, task.Pkg.ArchivePath)
			logger.Debug("download URL", "url", url)
			return client.DownloadArchive(ctx, url, archiveFile, algo, expectedHash)
		}, mirrors, connRetries, logger)
	}
	err := fetch.RetryOnErrors(ctx, download, qterr.IsChecksumError,
		task.Settings.Requests.MaxRetriesOnChecksumError, "downloading "+task.Pkg.Name, logger)
	if err != nil {
		return 0, err
	}

	var size int64
	if fi, err := os.Stat(archiveFile); err == nil {
		size = fi.Size()
	}

	// Step 3: extract under the package's install subpath.
	destDir := task.BaseDir
	if task.Pkg.InstallPath != "" {
		destDir, err = safety.SafeJoinUnder(task.BaseDir, task.Pkg.InstallPath)
		if err != nil {
			return 0, err
		}
	}
	ex := extract.New(task.ExternalCmd, logger)
	if err := ex.Extract(ctx, archiveFile, destDir); err != nil {
		return 0, err
	}

	// Step 4: cleanup.
	if !task.Keep {
		if err := os.Remove(archiveFile); err != nil {
			return 0, err
		}
	}

	// Step 5: completion record with elapsed wall-clock time.
	logger.Info(fmt.Sprintf("finished installation of %s in %s", archiveName, time.Since(start).Round(time.Millisecond)),
		"size", humanize.Bytes(uint64(size)))
	return size, nil
}
