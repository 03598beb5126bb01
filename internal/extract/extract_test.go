package extract

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/qtfetch/qtfetch/internal/qterr"
)

type tarEntry struct {
	name     string
	typeflag byte
	linkname string
	body     string
}

// writeTarGz builds a gzip-compressed tar archive at path.
func writeTarGz(t *testing.T, path string, entries []tarEntry) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Typeflag: e.typeflag,
			Linkname: e.linkname,
			Mode:     0o644,
			Size:     int64(len(e.body)),
		}
		if e.typeflag == tar.TypeDir {
			hdr.Mode = 0o755
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("writing tar header: %v", err)
		}
		if _, err := tw.Write([]byte(e.body)); err != nil {
			t.Fatalf("writing tar body: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("closing gzip: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("writing archive: %v", err)
	}
}

// writeZip builds a zip archive at path from name->content pairs.
func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating zip entry: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("writing zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("writing archive: %v", err)
	}
}

func newTestExtractor(externalCmd string) *Extractor {
	return New(externalCmd, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDetectFormatIgnoresExtension(t *testing.T) {
	dir := t.TempDir()

	// A tar.gz masquerading as .7z must still be detected as tar.
	tarPath := filepath.Join(dir, "actually-tar.7z")
	writeTarGz(t, tarPath, []tarEntry{{name: "a.txt", typeflag: tar.TypeReg, body: "hello"}})

	zipPath := filepath.Join(dir, "actually-zip.txt")
	writeZip(t, zipPath, map[string]string{"b.txt": "world"})

	sevenPath := filepath.Join(dir, "actually-7z.zip")
	if err := os.WriteFile(sevenPath, []byte{0x37, 0x7a, 0xbc, 0xaf, 0x27, 0x1c, 0x00, 0x04}, 0o644); err != nil {
		t.Fatalf("writing 7z stub: %v", err)
	}

	cases := []struct {
		path string
		want Format
	}{
		{tarPath, FormatTar},
		{zipPath, FormatZip},
		{sevenPath, Format7z},
	}
	for _, tc := range cases {
		got, err := DetectFormat(tc.path)
		if err != nil {
			t.Fatalf("DetectFormat(%s) failed: %v", tc.path, err)
		}
		if got != tc.want {
			t.Errorf("DetectFormat(%s) = %s, want %s", filepath.Base(tc.path), got, tc.want)
		}
	}
}

func TestDetectFormatUnknown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.bin")
	if err := os.WriteFile(path, []byte("this is not an archive at all"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	got, err := DetectFormat(path)
	if err != nil {
		t.Fatalf("DetectFormat failed: %v", err)
	}
	if got != FormatUnknown {
		t.Errorf("expected FormatUnknown, got %s", got)
	}
}

func TestDetectFormatShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny")
	if err := os.WriteFile(path, []byte{0x50}, 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	got, err := DetectFormat(path)
	if err != nil {
		t.Fatalf("DetectFormat failed: %v", err)
	}
	if got != FormatUnknown {
		t.Errorf("expected FormatUnknown for short file, got %s", got)
	}
}

func TestExtractTarGz(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "pkg.tar.gz")
	writeTarGz(t, archive, []tarEntry{
		{name: "lib/", typeflag: tar.TypeDir},
		{name: "lib/libQt6Core.so.6", typeflag: tar.TypeReg, body: "binary"},
		{name: "lib/libQt6Core.so", typeflag: tar.TypeSymlink, linkname: "libQt6Core.so.6"},
	})

	dest := filepath.Join(dir, "out")
	if err := newTestExtractor("").Extract(context.Background(), archive, dest); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "lib", "libQt6Core.so.6"))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(data) != "binary" {
		t.Errorf("unexpected content %q", data)
	}

	if runtime.GOOS != "windows" {
		target, err := os.Readlink(filepath.Join(dest, "lib", "libQt6Core.so"))
		if err != nil {
			t.Fatalf("reading symlink: %v", err)
		}
		if target != "libQt6Core.so.6" {
			t.Errorf("unexpected symlink target %q", target)
		}
	}
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "pkg.zip")
	writeZip(t, archive, map[string]string{
		"bin/qmake":        "#!...",
		"mkspecs/q.conf":   "config",
		"include/QtCore.h": "header",
	})

	dest := filepath.Join(dir, "out")
	if err := newTestExtractor("").Extract(context.Background(), archive, dest); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	for _, rel := range []string{"bin/qmake", "mkspecs/q.conf", "include/QtCore.h"} {
		if _, err := os.Stat(filepath.Join(dest, filepath.FromSlash(rel))); err != nil {
			t.Errorf("expected %s to exist: %v", rel, err)
		}
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.gz")
	writeTarGz(t, archive, []tarEntry{
		{name: "../outside.txt", typeflag: tar.TypeReg, body: "escape"},
	})

	dest := filepath.Join(dir, "out")
	err := newTestExtractor("").Extract(context.Background(), archive, dest)
	if err == nil {
		t.Fatal("expected error for traversal entry, got nil")
	}
	var ee *qterr.ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExtractionError, got %T: %v", err, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "outside.txt")); !os.IsNotExist(err) {
		t.Error("traversal entry was written outside the destination")
	}
}

func TestExtractRejectsEscapingSymlink(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.gz")
	writeTarGz(t, archive, []tarEntry{
		{name: "link", typeflag: tar.TypeSymlink, linkname: "../../etc/passwd"},
	})

	dest := filepath.Join(dir, "out")
	if err := newTestExtractor("").Extract(context.Background(), archive, dest); err == nil {
		t.Fatal("expected error for escaping symlink, got nil")
	}
}

func TestExtractRejectsAbsoluteSymlink(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.gz")
	writeTarGz(t, archive, []tarEntry{
		{name: "link", typeflag: tar.TypeSymlink, linkname: "/etc/passwd"},
	})

	dest := filepath.Join(dir, "out")
	if err := newTestExtractor("").Extract(context.Background(), archive, dest); err == nil {
		t.Fatal("expected error for absolute symlink, got nil")
	}
}

func TestExtractUnknownFormatSuggestsExternal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "mystery.bin")
	if err := os.WriteFile(archive, []byte("no archive here"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	err := newTestExtractor("").Extract(context.Background(), archive, filepath.Join(dir, "out"))
	if err == nil {
		t.Fatal("expected error for unknown format, got nil")
	}
	if !strings.Contains(err.Error(), "--external") {
		t.Errorf("expected external tool hint in error, got %q", err.Error())
	}
}

func TestExtractExternalFailureCarriesOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script helper is not portable to windows")
	}
	dir := t.TempDir()

	tool := filepath.Join(dir, "fake7z")
	script := "#!/bin/sh\necho 'ERROR: cannot open archive' >&2\nexit 2\n"
	if err := os.WriteFile(tool, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake tool: %v", err)
	}

	archive := filepath.Join(dir, "mystery.bin")
	if err := os.WriteFile(archive, []byte("no archive here"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	err := newTestExtractor(tool).Extract(context.Background(), archive, filepath.Join(dir, "out"))
	if err == nil {
		t.Fatal("expected error from failing external tool, got nil")
	}
	var ee *qterr.ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExtractionError, got %T: %v", err, err)
	}
	if !strings.Contains(ee.Output, "cannot open archive") {
		t.Errorf("expected tool output captured, got %q", ee.Output)
	}
}

func TestExtractExternalReceivesStandardArgs(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script helper is not portable to windows")
	}
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")

	tool := filepath.Join(dir, "fake7z")
	script := "#!/bin/sh\necho \"$@\" > " + argsFile + "\nexit 0\n"
	if err := os.WriteFile(tool, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake tool: %v", err)
	}

	archive := filepath.Join(dir, "mystery.bin")
	if err := os.WriteFile(archive, []byte("no archive here"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	dest := filepath.Join(dir, "out")
	if err := newTestExtractor(tool).Extract(context.Background(), archive, dest); err != nil {
		t.Fatalf("Extract with external tool failed: %v", err)
	}

	raw, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("reading recorded args: %v", err)
	}
	got := strings.TrimSpace(string(raw))
	for _, want := range []string{"x", "-aoa", "-bd", "-y", "-o" + dest, archive} {
		if !strings.Contains(got, want) {
			t.Errorf("expected arg %q in invocation, got %q", want, got)
		}
	}
}

func TestExtractCancelled(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "pkg.tar.gz")
	writeTarGz(t, archive, []tarEntry{{name: "a.txt", typeflag: tar.TypeReg, body: "x"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestExtractor("").Extract(ctx, archive, filepath.Join(dir, "out"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
