package extract

import (
	"archive/tar"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"

	"github.com/qtfetch/qtfetch/internal/qterr"
	"github.com/qtfetch/qtfetch/internal/safety"
)

// Extractor extracts a downloaded archive into a destination directory.
// When ExternalCmd is set it replaces the built-in 7z path and serves as
// the fallback for unrecognized formats.
type Extractor struct {
	ExternalCmd string
	Logger      *slog.Logger
}

// New creates an extractor. externalCmd may be empty to use built-in
// extraction only.
func New(externalCmd string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{ExternalCmd: externalCmd, Logger: logger}
}

// Extract detects the archive format by content and extracts into destDir,
// creating it as needed. No entry may be written outside destDir.
func (e *Extractor) Extract(ctx context.Context, archivePath, destDir string) error {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	switch format {
	case FormatTar:
		return e.extractTar(ctx, archivePath, destDir)
	case FormatZip:
		return e.extractZip(ctx, archivePath, destDir)
	case Format7z:
		if e.ExternalCmd == "" {
			return e.extract7z(ctx, archivePath, destDir)
		}
		return e.extractExternal(ctx, archivePath, destDir)
	default:
		if e.ExternalCmd == "" {
			return qterr.NewExtractionError(
				fmt.Sprintf("unrecognized archive format in %s", filepath.Base(archivePath)), "",
				"Try the '--external' flag to extract with an external tool.")
		}
		return e.extractExternal(ctx, archivePath, destDir)
	}
}

// extractTar extracts a possibly-compressed tar archive. Only directories,
// regular files and safe symlinks are materialized.
func (e *Extractor) extractTar(ctx context.Context, archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, 6)
	n, _ := io.ReadFull(f, head)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r, err := decompressReader(f, head[:n])
	if err != nil {
		return qterr.NewExtractionError(fmt.Sprintf("opening compressed stream: %v", err), "")
	}
	defer r.Close()

	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return qterr.NewExtractionError(fmt.Sprintf("reading tar entry: %v", err), "")
		}

		switch header.Typeflag {
		case tar.TypeXGlobalHeader:
			continue
		case tar.TypeDir:
			destPath, err := safety.SafeJoinUnder(destDir, header.Name)
			if err != nil {
				return qterr.NewExtractionError(fmt.Sprintf("unsafe path in archive %q: %v", header.Name, err), "")
			}
			if err := os.MkdirAll(destPath, fs755(header.FileInfo().Mode())); err != nil {
				return err
			}
		case tar.TypeReg:
			destPath, err := safety.SafeJoinUnder(destDir, header.Name)
			if err != nil {
				return qterr.NewExtractionError(fmt.Sprintf("unsafe path in archive %q: %v", header.Name, err), "")
			}
			if err := writeFileFrom(destPath, tr, header.FileInfo().Mode()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			destPath, err := safety.SafeJoinUnder(destDir, header.Name)
			if err != nil {
				return qterr.NewExtractionError(fmt.Sprintf("unsafe path in archive %q: %v", header.Name, err), "")
			}
			if err := checkLinkTarget(destDir, destPath, header.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
				return err
			}
			_ = os.Remove(destPath)
			if err := os.Symlink(header.Linkname, destPath); err != nil {
				return err
			}
		default:
			return qterr.NewExtractionError(
				fmt.Sprintf("unsupported tar entry type for %s: %c", header.Name, header.Typeflag), "")
		}
	}
	return nil
}

// extractZip extracts a zip archive with the same traversal guard as tar.
func (e *Extractor) extractZip(ctx context.Context, archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return qterr.NewExtractionError(fmt.Sprintf("opening zip: %v", err), "")
	}
	defer zr.Close()

	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		destPath, err := safety.SafeJoinUnder(destDir, zf.Name)
		if err != nil {
			return qterr.NewExtractionError(fmt.Sprintf("unsafe path in archive %q: %v", zf.Name, err), "")
		}

		mode := zf.Mode()
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, fs755(mode)); err != nil {
				return err
			}
			continue
		}

		rc, err := zf.Open()
		if err != nil {
			return qterr.NewExtractionError(fmt.Sprintf("opening zip entry %s: %v", zf.Name, err), "")
		}

		if mode&os.ModeSymlink != 0 {
			target, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return qterr.NewExtractionError(fmt.Sprintf("reading symlink entry %s: %v", zf.Name, err), "")
			}
			if err := checkLinkTarget(destDir, destPath, string(target)); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
				return err
			}
			_ = os.Remove(destPath)
			if err := os.Symlink(string(target), destPath); err != nil {
				return err
			}
			continue
		}

		err = writeFileFrom(destPath, rc, mode)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// extract7z extracts a 7z archive with the built-in reader. Used only when
// no external extraction command is configured.
func (e *Extractor) extract7z(ctx context.Context, archivePath, destDir string) error {
	sz, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return qterr.NewExtractionError(fmt.Sprintf("opening 7z: %v", err), "")
	}
	defer sz.Close()

	for _, zf := range sz.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		destPath, err := safety.SafeJoinUnder(destDir, zf.Name)
		if err != nil {
			return qterr.NewExtractionError(fmt.Sprintf("unsafe path in archive %q: %v", zf.Name, err), "")
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, fs755(zf.Mode())); err != nil {
				return err
			}
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return qterr.NewExtractionError(fmt.Sprintf("opening 7z entry %s: %v", zf.Name, err), "")
		}
		err = writeFileFrom(destPath, rc, zf.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// extractExternal runs the configured external tool: extract, overwrite
// all, no progress, assume yes, into destDir.
func (e *Extractor) extractExternal(ctx context.Context, archivePath, destDir string) error {
	args := []string{"x", "-aoa", "-bd", "-y", "-o" + destDir, archivePath}
	cmd := exec.CommandContext(ctx, e.ExternalCmd, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return qterr.NewExtractionError(
			fmt.Sprintf("external extraction command failed: %v", err), strings.TrimSpace(string(out)))
	}
	e.Logger.Debug("external extraction complete", "cmd", e.ExternalCmd, "archive", filepath.Base(archivePath))
	return nil
}

// writeFileFrom streams r into destPath, creating parent directories.
// Write errors (including ENOSPC) propagate unchanged for classification.
func writeFileFrom(destPath string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs644(mode))
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(out, r)
	closeErr := out.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}

// checkLinkTarget rejects symlink targets that resolve outside destDir.
func checkLinkTarget(destDir, linkPath, target string) error {
	if filepath.IsAbs(target) {
		return qterr.NewExtractionError(fmt.Sprintf("absolute symlink target %q", target), "")
	}
	resolved := filepath.Join(filepath.Dir(linkPath), target)
	if _, err := safety.EnsureUnderRoot(destDir, resolved); err != nil {
		return qterr.NewExtractionError(fmt.Sprintf("symlink %q escapes destination: %v", target, err), "")
	}
	return nil
}

// fs755 keeps permission bits from the archive, defaulting to 0755.
func fs755(mode os.FileMode) os.FileMode {
	if perm := mode.Perm(); perm != 0 {
		return perm
	}
	return 0o755
}

// fs644 keeps permission bits from the archive, defaulting to 0644.
func fs644(mode os.FileMode) os.FileMode {
	if perm := mode.Perm(); perm != 0 {
		return perm
	}
	return 0o644
}
