package installer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/qtfetch/qtfetch/internal/metadata"
	"github.com/qtfetch/qtfetch/internal/qterr"
	"github.com/qtfetch/qtfetch/internal/settings"
)

// narrowPlatformWorkerCap bounds pool size on 32-bit-addressable platforms,
// where concurrent extraction can exhaust the address space.
const narrowPlatformWorkerCap = 2

// Options configures one Run invocation.
type Options struct {
	BaseDir     string
	ArchiveDest string
	Keep        bool
	ExternalCmd string
	DryRun      bool
	// Out receives dry-run output. Defaults to os.Stdout.
	Out io.Writer
}

// Report summarizes a completed run.
type Report struct {
	Installed       int
	BytesDownloaded int64
	Elapsed         time.Duration
}

// Orchestrator owns the worker pool and the log aggregator for one batch
// of package installs.
type Orchestrator struct {
	settings *settings.Settings
	logger   *slog.Logger
}

// New creates an orchestrator with the given settings snapshot.
func New(s *settings.Settings, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{settings: s, logger: logger}
}

// workerCount derives the pool size from the configured concurrency,
// clamped on platforms with 32-bit ints.
func (o *Orchestrator) workerCount() int {
	workers := o.settings.Install.Concurrency
	if workers < 1 {
		workers = 1
	}
	if strconv.IntSize == 32 && workers > narrowPlatformWorkerCap {
		workers = narrowPlatformWorkerCap
	}
	return workers
}

// Run installs every package in the batch. Packages are independent and
// installed concurrently; the first unrecoverable failure terminates the
// pool without awaiting in-flight tasks and is surfaced as exactly one
// classified error. The log aggregator is stopped exactly once on every
// exit path.
func (o *Orchestrator) Run(ctx context.Context, pkgs []metadata.PackageDescriptor, opts Options) (*Report, error) {
	start := time.Now()

	if err := metadata.ValidateAll(pkgs); err != nil {
		return nil, err
	}

	if opts.DryRun {
		return o.dryRun(pkgs, opts)
	}

	sink := NewLogSink(o.logger)
	sink.Start()
	defer sink.Stop()

	// Only the controlling goroutine reacts to interrupt signals; workers
	// observe it solely through context cancellation.
	var interrupted atomic.Bool
	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			interrupted.Store(true)
			cancel()
		case <-poolCtx.Done():
		}
	}()

	workers := o.workerCount()
	tasks := make(chan Task, len(pkgs))
	results := make(chan taskResult, len(pkgs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				select {
				case <-poolCtx.Done():
					results <- taskResult{pkg: task.Pkg, err: poolCtx.Err()}
					continue
				default:
				}
				n, err := runTask(poolCtx, task, sink)
				results <- taskResult{pkg: task.Pkg, bytes: n, err: err}
			}
		}()
	}

	for _, pkg := range pkgs {
		tasks <- Task{
			Pkg:         pkg,
			BaseDir:     opts.BaseDir,
			ArchiveDest: opts.ArchiveDest,
			Keep:        opts.Keep || o.settings.Install.AlwaysKeepArchives,
			ExternalCmd: opts.ExternalCmd,
			Settings:    *o.settings,
		}
	}
	close(tasks)

	report := &Report{}
	var firstErr error
	for range pkgs {
		res := <-results
		if res.err != nil {
			if firstErr == nil || isCancellation(firstErr) && !isCancellation(res.err) {
				firstErr = res.err
			}
			// Terminate the pool: queued tasks drain as cancelled, running
			// tasks stop at their next blocking point.
			cancel()
			continue
		}
		report.Installed++
		report.BytesDownloaded += res.bytes
	}
	wg.Wait()

	if firstErr != nil {
		return nil, qterr.Classify(firstErr, opts.BaseDir, o.settings.Install.Concurrency, interrupted.Load())
	}

	report.Elapsed = time.Since(start)
	o.logger.Info("finished installation",
		"packages", report.Installed,
		"downloaded", humanize.Bytes(uint64(report.BytesDownloaded)),
		"elapsed", report.Elapsed.Round(time.Millisecond),
	)
	return report, nil
}

// isCancellation reports whether err is a bare context cancellation, which
// should not shadow the task failure that caused it.
func isCancellation(err error) bool {
	return err == context.Canceled || err == context.DeadlineExceeded
}

// dryRun prints what would be downloaded and installed, touching neither
// the network nor the filesystem.
func (o *Orchestrator) dryRun(pkgs []metadata.PackageDescriptor, opts Options) (*Report, error) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	fmt.Fprintln(out, "DRY RUN: would download and install the following:")
	for _, pkg := range pkgs {
		line := fmt.Sprintf("  - %s: %s", pkg.Name, path.Base(pkg.ArchivePath))
		if pkg.CompressedSize > 0 {
			line += fmt.Sprintf(" (%s)", humanize.Bytes(uint64(pkg.CompressedSize)))
		}
		if pkg.InstallPath != "" {
			line += " -> " + pkg.InstallPath
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "Total packages: %d\n", len(pkgs))

	return &Report{}, nil
}
