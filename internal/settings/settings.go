// Package settings holds the process-wide configuration snapshot.
//
// A Settings value is constructed once at startup (file + flag overrides),
// then passed by value into the installer so that worker goroutines never
// read ambient mutable state.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the primary repository mirror.
const DefaultBaseURL = "https://download.qt.io"

// Settings is the top-level configuration.
type Settings struct {
	Requests Requests `yaml:"requests"`
	Install  Install  `yaml:"install"`
	Mirrors  Mirrors  `yaml:"mirrors"`
	DBPath   string   `yaml:"db_path"`
}

// Requests holds network behavior settings.
type Requests struct {
	// Timeouts are seconds; fractional values are allowed.
	ConnectionTimeout           float64 `yaml:"connection_timeout"`
	ResponseTimeout             float64 `yaml:"response_timeout"`
	MaxRetriesOnChecksumError   int     `yaml:"max_retries_on_checksum_error"`
	MaxRetriesOnConnectionError int     `yaml:"max_retries_on_connection_error"`
	HashAlgorithm               string  `yaml:"hash_algorithm"` // sha256, sha1, md5, sha512
	IgnoreHash                  bool    `yaml:"ignore_hash"`
}

// Install holds extraction and archive handling settings.
type Install struct {
	Concurrency             int    `yaml:"concurrency"`
	AlwaysKeepArchives      bool   `yaml:"always_keep_archives"`
	ArchiveDownloadLocation string `yaml:"archive_download_location"`
	// SevenZipCmd, when set, is the external extraction command used for
	// archives no built-in extractor recognizes.
	SevenZipCmd string `yaml:"sevenzip_cmd"`
}

// Mirrors holds the primary base URL and the ordered fallback list used
// when the primary connection fails.
type Mirrors struct {
	BaseURL   string   `yaml:"base_url"`
	Fallbacks []string `yaml:"fallbacks"`
}

// Default returns settings with sensible defaults.
func Default() *Settings {
	return &Settings{
		Requests: Requests{
			ConnectionTimeout:           3.5,
			ResponseTimeout:             30,
			MaxRetriesOnChecksumError:   5,
			MaxRetriesOnConnectionError: 5,
			HashAlgorithm:               "sha256",
		},
		Install: Install{
			Concurrency:             4,
			ArchiveDownloadLocation: ".",
		},
		Mirrors: Mirrors{
			BaseURL: DefaultBaseURL,
			Fallbacks: []string{
				"https://qtproject.mirror.liquidtelecom.com",
				"https://mirrors.ocf.berkeley.edu/qt",
				"https://ftp.fau.de/qtproject",
			},
		},
	}
}

// Load reads a settings file from the given path, applied over defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// FindSettingsFile searches standard locations for a settings file.
func FindSettingsFile() (string, error) {
	searchPaths := []string{
		"qtfetch.yaml",
		"/etc/qtfetch/qtfetch.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "qtfetch", "qtfetch.yaml"),
		)
	}
	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no settings file found (searched: %v)", searchPaths)
}

// Validate checks value ranges after file load and flag overrides.
func (s *Settings) Validate() error {
	if s.Install.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", s.Install.Concurrency)
	}
	if s.Requests.ConnectionTimeout <= 0 || s.Requests.ResponseTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if s.Requests.MaxRetriesOnChecksumError < 0 || s.Requests.MaxRetriesOnConnectionError < 0 {
		return fmt.Errorf("retry counts must not be negative")
	}
	switch s.Requests.HashAlgorithm {
	case "sha256", "sha1", "md5", "sha512":
	default:
		return fmt.Errorf("unsupported hash algorithm %q", s.Requests.HashAlgorithm)
	}
	return nil
}

// ConnectionTimeout returns the connect timeout as a duration.
func (s *Settings) ConnectionTimeout() time.Duration {
	return time.Duration(s.Requests.ConnectionTimeout * float64(time.Second))
}

// ResponseTimeout returns the response timeout as a duration.
func (s *Settings) ResponseTimeout() time.Duration {
	return time.Duration(s.Requests.ResponseTimeout * float64(time.Second))
}

// MirrorList returns the primary base URL followed by the fallbacks.
func (s *Settings) MirrorList() []string {
	out := make([]string, 0, len(s.Mirrors.Fallbacks)+1)
	out = append(out, s.Mirrors.BaseURL)
	out = append(out, s.Mirrors.Fallbacks...)
	return out
}
