// Package fetch retrieves remote artifacts: trusted checksums, metadata
// documents, and archive payloads with streaming hash verification.
package fetch

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/qtfetch/qtfetch/internal/qterr"
	"github.com/qtfetch/qtfetch/internal/settings"
)

// Client performs HTTP fetches with the connect/response timeouts from the
// settings snapshot. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

// NewClient creates a client configured from the settings snapshot.
func NewClient(s *settings.Settings, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: s.ConnectionTimeout()}).DialContext,
				TLSHandshakeTimeout:   s.ConnectionTimeout(),
				ResponseHeaderTimeout: s.ResponseTimeout(),
				IdleConnTimeout:       90 * s.ConnectionTimeout(),
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
			},
			// No overall Timeout: archive bodies may take arbitrarily long.
			// Context cancellation still interrupts in-flight reads.
		},
		logger:    logger,
		userAgent: "qtfetch/1.0",
	}
}

// newHasher returns a hash for one of the supported algorithm names.
func newHasher(algo string) (hash.Hash, error) {
	switch algo {
	case "sha256":
		return sha256.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "md5":
		return md5.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algo)
	}
}

// get issues a GET and returns the response, converting transport failures
// and non-2xx statuses into DownloadError.
func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &qterr.DownloadError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &qterr.DownloadError{URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &qterr.DownloadError{
			URL: url,
			Err: fmt.Errorf("http status %s: %s", resp.Status, string(body)),
		}
	}
	return resp, nil
}

// GetBytes fetches a small document (catalog XML, checksum file) in full.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &qterr.DownloadError{URL: url, Err: err}
	}
	return data, nil
}

// DownloadArchive streams url to destPath, hashing while writing. When
// expectedHash is non-empty the computed digest must match or the file is
// removed and a ChecksumError returned. On any failure no partial file
// survives at destPath; disk-related OS errors propagate unchanged so the
// orchestrator can classify them.
func (c *Client) DownloadArchive(ctx context.Context, url, destPath, algo, expectedHash string) error {
	hasher, err := newHasher(algo)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(destPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	resp, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	file, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	written, copyErr := io.Copy(io.MultiWriter(file, hasher), resp.Body)
	closeErr := file.Close()

	if copyErr != nil {
		_ = os.Remove(destPath)
		// Disk errors (ENOSPC and friends) surface from the write side and
		// must not be wrapped as download failures.
		if pe, ok := copyErr.(*os.PathError); ok {
			return pe
		}
		return &qterr.DownloadError{URL: url, Err: copyErr}
	}
	if closeErr != nil {
		_ = os.Remove(destPath)
		return closeErr
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		_ = os.Remove(destPath)
		return &qterr.DownloadError{
			URL: url,
			Err: fmt.Errorf("truncated body: got %d of %d bytes", written, resp.ContentLength),
		}
	}

	if expectedHash != "" {
		actual := hex.EncodeToString(hasher.Sum(nil))
		if actual != expectedHash {
			_ = os.Remove(destPath)
			return &qterr.ChecksumError{URL: url, Expected: expectedHash, Actual: actual}
		}
	}

	c.logger.Debug("download complete", "url", url, "dest", filepath.Base(destPath), "size", written)
	return nil
}
