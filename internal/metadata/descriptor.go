// Package metadata resolves the remote repository catalog into the package
// descriptors consumed by the installer pipeline.
package metadata

import (
	"fmt"

	"github.com/qtfetch/qtfetch/internal/safety"
)

// PackageDescriptor describes one downloadable archive and where to install
// it. Descriptors are immutable once built; the installer consumes them
// read-only.
type PackageDescriptor struct {
	// Name is the logical package name, e.g. "qt.qt6.682.linux_gcc_64".
	Name string
	// BaseURL is the mirror the archive was resolved against. Mirror
	// fallback may substitute an alternate base at download time.
	BaseURL string
	// ArchivePath is the archive location relative to the base URL.
	ArchivePath string
	// InstallPath is the extraction subpath relative to the base install
	// directory. Empty means the base directory itself.
	InstallPath string
	// CompressedSize is the advertised archive size in bytes, 0 if unknown.
	CompressedSize int64
	// Description is optional human-readable text from the catalog.
	Description string
}

// Validate enforces the descriptor invariant: archive path and install
// subpath are relative and free of traversal segments.
func (p *PackageDescriptor) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("package has no name")
	}
	if _, err := safety.CleanRelativePath(p.ArchivePath); err != nil {
		return fmt.Errorf("package %s: bad archive path: %w", p.Name, err)
	}
	if p.InstallPath != "" {
		if _, err := safety.CleanRelativePath(p.InstallPath); err != nil {
			return fmt.Errorf("package %s: bad install path: %w", p.Name, err)
		}
	}
	return nil
}

// ValidateAll validates every descriptor in a batch.
func ValidateAll(pkgs []PackageDescriptor) error {
	for i := range pkgs {
		if err := pkgs[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
