// Package safety guards filesystem and URL inputs that originate from
// remote metadata: relative archive paths, install subpaths, and archive
// entry names must never escape the directories they are joined under.
package safety

import (
	"fmt"
	"path/filepath"
	"strings"
)

// CleanRelativePath normalizes a slash-separated path from catalog metadata
// or an archive entry. Absolute paths and parent traversal are rejected, as
// is a path that normalizes away to nothing.
func CleanRelativePath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path in metadata")
	}

	clean := filepath.Clean(filepath.FromSlash(p))
	if clean == "." {
		return "", fmt.Errorf("path %q normalizes to nothing", p)
	}
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("refusing absolute path %q", p)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("refusing parent traversal in %q", p)
	}
	return clean, nil
}

// SafeJoinUnder joins an untrusted relative path under root, then re-checks
// that the joined result stayed inside root.
func SafeJoinUnder(root, rel string) (string, error) {
	cleanRel, err := CleanRelativePath(rel)
	if err != nil {
		return "", err
	}
	return EnsureUnderRoot(root, filepath.Join(root, cleanRel))
}

// EnsureUnderRoot resolves candidate against root and returns its absolute
// form, failing if the resolved path lands outside root. Symlink targets
// inside archives go through this check too.
func EnsureUnderRoot(root, candidate string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	candAbs, err := filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", candidate, err)
	}

	rel, err := filepath.Rel(rootAbs, candAbs)
	if err != nil {
		return "", fmt.Errorf("relate %q to %q: %w", candAbs, rootAbs, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q escapes %q", candidate, root)
	}
	return candAbs, nil
}
