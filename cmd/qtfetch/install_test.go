package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/qtfetch/qtfetch/internal/settings"
	"github.com/qtfetch/qtfetch/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func resetInstallFlags(t *testing.T) {
	t.Helper()
	origBase, origTimeout, origExternal := installBase, installTimeout, installExternal
	origSettings, origLogger := globalSettings, logger
	t.Cleanup(func() {
		installBase, installTimeout, installExternal = origBase, origTimeout, origExternal
		globalSettings, logger = origSettings, origLogger
	})
	installBase, installTimeout, installExternal = "", 0, ""
	globalSettings = settings.Default()
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInstallSettingsDefaults(t *testing.T) {
	resetInstallFlags(t)

	snap, err := installSettings()
	if err != nil {
		t.Fatalf("installSettings() failed: %v", err)
	}
	if snap.Mirrors.BaseURL != settings.DefaultBaseURL {
		t.Errorf("expected default base URL, got %q", snap.Mirrors.BaseURL)
	}
	// The snapshot must be a copy, not an alias of the globals.
	snap.Mirrors.BaseURL = "https://example.com"
	if globalSettings.Mirrors.BaseURL == "https://example.com" {
		t.Error("installSettings() returned an alias of the global settings")
	}
}

func TestInstallSettingsOverrides(t *testing.T) {
	resetInstallFlags(t)
	installBase = "https://mirror.example.com/qt"
	installTimeout = 7.5
	installExternal = "7za"

	snap, err := installSettings()
	if err != nil {
		t.Fatalf("installSettings() failed: %v", err)
	}
	if snap.Mirrors.BaseURL != "https://mirror.example.com/qt" {
		t.Errorf("base URL override not applied: %q", snap.Mirrors.BaseURL)
	}
	if snap.Requests.ConnectionTimeout != 7.5 || snap.Requests.ResponseTimeout != 7.5 {
		t.Errorf("timeout override not applied: %v / %v",
			snap.Requests.ConnectionTimeout, snap.Requests.ResponseTimeout)
	}
	if snap.Install.SevenZipCmd != "7za" {
		t.Errorf("external command override not applied: %q", snap.Install.SevenZipCmd)
	}
}

func TestInstallSettingsRejectsBadBase(t *testing.T) {
	resetInstallFlags(t)
	installBase = "ftp://mirror.example.com/qt"

	if _, err := installSettings(); err == nil {
		t.Error("expected error for non-http mirror URL, got nil")
	}
}

func TestDefaultArch(t *testing.T) {
	if defaultArchs["linux"] != "linux_gcc_64" {
		t.Errorf("unexpected linux default arch: %q", defaultArchs["linux"])
	}
	if _, ok := defaultArchs["all_os"]; ok {
		t.Error("all_os must not have a default architecture")
	}
}

func TestValidTarget(t *testing.T) {
	if !validTarget("desktop") {
		t.Error("desktop should be a valid target")
	}
	if validTarget("gameboy") {
		t.Error("gameboy should not be a valid target")
	}
}

func TestStatusRunEmpty(t *testing.T) {
	st := newTestStore(t)

	origStore := globalStore
	globalStore = st
	t.Cleanup(func() { globalStore = origStore })

	out := captureStdout(t, func() {
		if err := statusRun(nil, nil); err != nil {
			t.Fatalf("statusRun returned error: %v", err)
		}
	})
	if !strings.Contains(out, "No install runs recorded") {
		t.Fatalf("expected empty message, got: %s", out)
	}
}

func TestStatusRunShowsRuns(t *testing.T) {
	st := newTestStore(t)
	run := &store.InstallRun{
		Command:           "install-qt",
		Host:              "linux",
		Target:            "desktop",
		Version:           "6.8.2",
		Arch:              "linux_gcc_64",
		StartTime:         time.Now(),
		EndTime:           time.Now(),
		PackagesInstalled: 2,
		BytesDownloaded:   4096,
		Status:            "success",
	}
	if err := st.CreateInstallRun(run); err != nil {
		t.Fatalf("CreateInstallRun() failed: %v", err)
	}

	origStore := globalStore
	origLimit := statusLimit
	globalStore = st
	statusLimit = 20
	t.Cleanup(func() {
		globalStore = origStore
		statusLimit = origLimit
	})

	out := captureStdout(t, func() {
		if err := statusRun(nil, nil); err != nil {
			t.Fatalf("statusRun returned error: %v", err)
		}
	})
	if !strings.Contains(out, "install-qt") || !strings.Contains(out, "6.8.2") {
		t.Fatalf("expected run details in output, got: %s", out)
	}
	if !strings.Contains(out, "success") {
		t.Fatalf("expected status in output, got: %s", out)
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	_ = w.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading captured stdout: %v", err)
	}
	_ = r.Close()
	return string(data)
}
