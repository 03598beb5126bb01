package metadata

import (
	"context"
	"encoding/xml"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/qtfetch/qtfetch/internal/fetch"
)

// hostDirs maps host OS names to repository directory prefixes.
var hostDirs = map[string]string{
	"linux":         "linux_x64",
	"linux_arm64":   "linux_arm64",
	"mac":           "mac_x64",
	"windows":       "windows_x86",
	"windows_arm64": "windows_arm64",
	"all_os":        "all_os",
}

// Targets lists the valid target SDKs per host.
var Targets = []string{"desktop", "android", "ios", "wasm", "qt"}

// ArchiveID identifies one repository subtree by host OS and target SDK.
// Qt releases and tools live under the same subtree; QtPackages and
// ToolPackages select within it.
type ArchiveID struct {
	Host   string
	Target string
}

// RepoPath returns the repository path for this subtree, relative to the
// mirror base URL.
func (id ArchiveID) RepoPath() (string, error) {
	dir, ok := hostDirs[id.Host]
	if !ok {
		return "", fmt.Errorf("unknown host os %q", id.Host)
	}
	return path.Join("online", "qtsdkrepository", dir, id.Target), nil
}

// updatesDoc mirrors the Updates.xml catalog document.
type updatesDoc struct {
	XMLName  xml.Name        `xml:"Updates"`
	Packages []packageUpdate `xml:"PackageUpdate"`
}

type packageUpdate struct {
	Name                 string `xml:"Name"`
	DisplayName          string `xml:"DisplayName"`
	Description          string `xml:"Description"`
	Version              string `xml:"Version"`
	DownloadableArchives string `xml:"DownloadableArchives"`
	CompressedSize       int64  `xml:"UpdateFile>CompressedSize"`
}

// archives splits the comma-separated downloadable archive list.
func (p *packageUpdate) archives() []string {
	if strings.TrimSpace(p.DownloadableArchives) == "" {
		return nil
	}
	parts := strings.Split(p.DownloadableArchives, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if a := strings.TrimSpace(part); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Catalog fetches and resolves Updates.xml documents from a mirror.
type Catalog struct {
	client *fetch.Client
}

// NewCatalog creates a catalog resolver backed by the given fetch client.
func NewCatalog(client *fetch.Client) *Catalog {
	return &Catalog{client: client}
}

// folderForVersion returns the repository folder for an exact Qt version,
// e.g. "qt6_682" for 6.8.2. Version specifications are deliberately not
// resolved here; callers must supply exact versions.
func folderForVersion(version string) (string, error) {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid version %q: use the form 6.X.Y", version)
	}
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil {
			return "", fmt.Errorf("invalid version %q: use the form 6.X.Y", version)
		}
	}
	return fmt.Sprintf("qt%s_%s%s%s", parts[0], parts[0], parts[1], parts[2]), nil
}

// fetchUpdates retrieves and parses the Updates.xml under repoDir.
func (c *Catalog) fetchUpdates(ctx context.Context, baseURL, repoDir string) (*updatesDoc, error) {
	url := strings.TrimSuffix(baseURL, "/") + "/" + path.Join(repoDir, "Updates.xml")
	data, err := c.client.GetBytes(ctx, url)
	if err != nil {
		return nil, err
	}
	var doc updatesDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", url, err)
	}
	return &doc, nil
}

// descriptorsFrom expands matching catalog entries into one descriptor per
// downloadable archive. The install subpath is the version/arch directory
// convention used by the repository, derived from the exact arguments the
// caller supplied rather than from catalog metadata.
func descriptorsFrom(doc *updatesDoc, baseURL, repoDir, installPath string, match func(*packageUpdate) bool) []PackageDescriptor {
	var pkgs []PackageDescriptor
	for i := range doc.Packages {
		pu := &doc.Packages[i]
		if !match(pu) {
			continue
		}
		for _, archive := range pu.archives() {
			pkgs = append(pkgs, PackageDescriptor{
				Name:           pu.Name,
				BaseURL:        baseURL,
				ArchivePath:    path.Join(repoDir, pu.Name, pu.Version+archive),
				InstallPath:    installPath,
				CompressedSize: pu.CompressedSize,
				Description:    pu.DisplayName,
			})
		}
	}
	return pkgs
}

// QtPackages resolves the archives for an exact Qt version and architecture,
// plus any requested extra modules.
func (c *Catalog) QtPackages(ctx context.Context, baseURL string, id ArchiveID, version, arch string, modules []string) ([]PackageDescriptor, error) {
	repoBase, err := id.RepoPath()
	if err != nil {
		return nil, err
	}
	folder, err := folderForVersion(version)
	if err != nil {
		return nil, err
	}
	repoDir := path.Join(repoBase, folder)

	doc, err := c.fetchUpdates(ctx, baseURL, repoDir)
	if err != nil {
		return nil, err
	}

	wantAll := false
	wanted := make(map[string]bool, len(modules))
	for _, m := range modules {
		if m == "all" {
			wantAll = true
		}
		wanted[m] = true
	}

	base := fmt.Sprintf("qt.qt%c.%s.%s", version[0], strings.ReplaceAll(version, ".", ""), arch)
	installPath := path.Join(version, archDir(arch))

	pkgs := descriptorsFrom(doc, baseURL, repoDir, installPath, func(pu *packageUpdate) bool {
		if pu.Name == base {
			return true
		}
		// Module packages are named qt.qt6.<ver>.addons.<module>.<arch> or
		// qt.qt6.<ver>.<module>.<arch>.
		if !strings.HasSuffix(pu.Name, "."+arch) {
			return false
		}
		if wantAll {
			return true
		}
		mod := moduleNameOf(pu.Name, arch)
		return mod != "" && wanted[mod]
	})

	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found for %s %s %s %s", id.Host, id.Target, version, arch)
	}
	return pkgs, ValidateAll(pkgs)
}

// ToolPackages resolves the archives for a tool, optionally narrowed to one
// variant.
func (c *Catalog) ToolPackages(ctx context.Context, baseURL string, id ArchiveID, toolName, variant string) ([]PackageDescriptor, error) {
	repoBase, err := id.RepoPath()
	if err != nil {
		return nil, err
	}
	repoDir := path.Join(repoBase, toolName)

	doc, err := c.fetchUpdates(ctx, baseURL, repoDir)
	if err != nil {
		return nil, err
	}

	pkgs := descriptorsFrom(doc, baseURL, repoDir, "", func(pu *packageUpdate) bool {
		return variant == "" || pu.Name == variant
	})
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found for tool %s (variant %q)", toolName, variant)
	}
	return pkgs, ValidateAll(pkgs)
}

// moduleNameOf extracts the module segment from a package name like
// "qt.qt6.682.addons.qtcharts.linux_gcc_64". Empty when no module segment
// is present.
func moduleNameOf(name, arch string) string {
	trimmed := strings.TrimSuffix(name, "."+arch)
	parts := strings.Split(trimmed, ".")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// archDir maps an architecture name to its install directory, following the
// repository convention (e.g. win64_mingw81 -> mingw81_64).
func archDir(arch string) string {
	switch {
	case arch == "win64_mingw73", arch == "win64_mingw81":
		return arch[len("win64_"):] + "_64"
	case arch == "win32_mingw73", arch == "win32_mingw81":
		return arch[len("win32_"):] + "_32"
	case strings.HasPrefix(arch, "win64_msvc"), strings.HasPrefix(arch, "win32_msvc"):
		// MSVC arch names already carry the width suffix.
		return arch[len("win64_"):]
	case arch == "linux_gcc_64":
		return "gcc_64"
	default:
		return arch
	}
}
