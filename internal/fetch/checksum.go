package fetch

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/qtfetch/qtfetch/internal/qterr"
)

// hexDigestLengths maps each supported algorithm to its hex digest length.
var hexDigestLengths = map[string]int{
	"md5":    32,
	"sha1":   40,
	"sha256": 64,
	"sha512": 128,
}

// FetchChecksum retrieves the trusted digest for an artifact by fetching
// "<archiveURL>.<algo>" and returning the first token of the body, which is
// how coreutils-style checksum files ("<hex>  <filename>") are laid out.
func (c *Client) FetchChecksum(ctx context.Context, archiveURL, algo string) (string, error) {
	url := archiveURL + "." + algo
	data, err := c.GetBytes(ctx, url)
	if err != nil {
		return "", err
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", &qterr.DownloadError{URL: url, Err: fmt.Errorf("empty checksum file")}
	}
	digest := strings.ToLower(fields[0])

	want, ok := hexDigestLengths[algo]
	if !ok {
		return "", fmt.Errorf("unsupported hash algorithm %q", algo)
	}
	if len(digest) != want {
		return "", &qterr.DownloadError{
			URL: url,
			Err: fmt.Errorf("malformed %s digest of length %d", algo, len(digest)),
		}
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", &qterr.DownloadError{URL: url, Err: fmt.Errorf("malformed digest: %w", err)}
	}
	return digest, nil
}
