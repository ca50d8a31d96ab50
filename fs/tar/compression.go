package tar

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression is the compression applied to the archive bytes before decoding.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	// CompressionAuto detects gzip and zstd by their magic bytes.
	CompressionAuto Compression = "auto"
)

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ParseCompression parses a compression name. The empty string means CompressionAuto.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(s)); c {
	case "":
		return CompressionAuto, nil
	case CompressionNone, CompressionGzip, CompressionZstd, CompressionAuto:
		return c, nil
	}
	return "", fmt.Errorf("unknown compression %q", s)
}

// Decompress wraps r with a decompressor for c.
// The returned compression is the one in effect after detection.
func Decompress(r io.Reader, c Compression) (io.Reader, Compression, func() error, error) {
	nopClose := func() error { return nil }
	if c == CompressionAuto {
		var err error
		c, r, err = detectCompression(r)
		if err != nil {
			return nil, "", nil, fmt.Errorf("detecting compression: %w", err)
		}
	}
	switch c {
	case CompressionNone:
		return r, c, nopClose, nil
	case CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, "", nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return zr, c, zr.Close, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, "", nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		return zr, c, func() error {
			zr.Close()
			return nil
		}, nil
	}
	return nil, "", nil, fmt.Errorf("unknown compression %q", c)
}

// detectCompression sniffs the magic bytes at the start of r.
// Random access readers are inspected in place, others are buffered.
func detectCompression(r io.Reader) (Compression, io.Reader, error) {
	var magic []byte
	if ra, ok := randomAccess(r); ok {
		buf := make([]byte, len(magicZstd))
		n, err := ra.ReadAt(buf, 0)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", nil, err
		}
		magic = buf[:n]
	} else {
		br := bufio.NewReader(r)
		peeked, err := br.Peek(len(magicZstd))
		if err != nil && !errors.Is(err, io.EOF) {
			return "", nil, err
		}
		magic = peeked
		r = br
	}
	switch {
	case bytes.HasPrefix(magic, magicGzip):
		return CompressionGzip, r, nil
	case bytes.HasPrefix(magic, magicZstd):
		return CompressionZstd, r, nil
	}
	return CompressionNone, r, nil
}
