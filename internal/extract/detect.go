// Package extract turns downloaded archives into installed directory trees.
// Archive formats are detected by content, never by file extension.
package extract

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Format is the detected archive container format.
type Format int

const (
	FormatUnknown Format = iota
	FormatTar
	FormatZip
	Format7z
)

func (f Format) String() string {
	switch f {
	case FormatTar:
		return "tar"
	case FormatZip:
		return "zip"
	case Format7z:
		return "7z"
	default:
		return "unknown"
	}
}

var (
	zipMagic      = []byte{0x50, 0x4b, 0x03, 0x04}
	zipEmptyMagic = []byte{0x50, 0x4b, 0x05, 0x06}
	sevenZMagic   = []byte{0x37, 0x7a, 0xbc, 0xaf, 0x27, 0x1c}
	gzipMagic     = []byte{0x1f, 0x8b}
	bzip2Magic    = []byte{0x42, 0x5a, 0x68}
	xzMagic       = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
	zstdMagic     = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// DetectFormat sniffs the archive container format from file content, in
// priority order: tar family (through any supported compression wrapper),
// zip, 7z. Anything else is FormatUnknown.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	head := make([]byte, 6)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return FormatUnknown, fmt.Errorf("reading archive header: %w", err)
	}
	head = head[:n]

	if isTar, err := sniffTar(f, head); err != nil {
		return FormatUnknown, err
	} else if isTar {
		return FormatTar, nil
	}
	if bytes.HasPrefix(head, zipMagic) || bytes.HasPrefix(head, zipEmptyMagic) {
		return FormatZip, nil
	}
	if bytes.HasPrefix(head, sevenZMagic) {
		return Format7z, nil
	}
	return FormatUnknown, nil
}

// sniffTar checks for a tar stream, unwrapping a compression layer first
// when the header bytes announce one. The ustar magic lives at offset 257
// of the first block.
func sniffTar(f *os.File, head []byte) (bool, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, err
	}

	r, err := decompressReader(f, head)
	if err != nil {
		// A corrupt compression header is not a tar file; let later
		// detection stages (or the external tool) deal with it.
		return false, nil
	}
	defer r.Close()

	block := make([]byte, 512)
	if _, err := io.ReadFull(r, block); err != nil {
		return false, nil
	}
	return bytes.Equal(block[257:262], []byte("ustar")), nil
}

// decompressReader wraps r with the decompressor its leading bytes call
// for, or returns it unwrapped for uncompressed input.
func decompressReader(r io.Reader, head []byte) (io.ReadCloser, error) {
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return gz, nil
	case bytes.HasPrefix(head, xzMagic):
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	case bytes.HasPrefix(head, bzip2Magic):
		return io.NopCloser(bzip2.NewReader(r)), nil
	default:
		return io.NopCloser(r), nil
	}
}
