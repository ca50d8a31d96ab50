package inflate

import (
	"archive/tar"
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testEntry struct {
	header  tar.Header
	content string
}

// buildArchive writes entries with the standard library writer in ustar format,
// followed by the two terminator blocks.
func buildArchive(t *testing.T, entries ...testEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := e.header
		hdr.Format = tar.FormatUSTAR
		if hdr.ModTime.IsZero() {
			hdr.ModTime = time.Unix(1700000000, 0)
		}
		if hdr.Typeflag == tar.TypeReg || hdr.Typeflag == 0 {
			hdr.Size = int64(len(e.content))
		}
		require.NoError(t, tw.WriteHeader(&hdr))
		_, err := tw.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

// entryBytes returns the header, content and padding blocks of a single entry.
func entryBytes(t *testing.T, e testEntry) []byte {
	t.Helper()
	archive := buildArchive(t, e)
	return archive[:len(archive)-2*BlockSize]
}

func regular(name, content string) testEntry {
	return testEntry{
		header:  tar.Header{Typeflag: tar.TypeReg, Name: name, Mode: 0o644, Uid: 1000, Gid: 1000, Uname: "alice", Gname: "staff"},
		content: content,
	}
}

func zeroBlocks(n int) []byte {
	return make([]byte, n*BlockSize)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// blockBuilder assembles header blocks byte by byte.
type blockBuilder struct {
	b []byte
}

func newBlock() *blockBuilder {
	return &blockBuilder{b: make([]byte, BlockSize)}
}

// legacyBlock returns a builder pre-filled with the legacy field set.
func legacyBlock(name string, typeflag Typeflag, size int64) *blockBuilder {
	return newBlock().
		set(nameOffset, name).
		set(modeOffset, "0000644\x00").
		set(uidOffset, "0001750\x00").
		set(gidOffset, "0001750\x00").
		set(sizeOffset, fmt.Sprintf("%011o\x00", size)).
		set(mtimeOffset, fmt.Sprintf("%011o\x00", 1700000000)).
		setByte(typeflagOffset, byte(typeflag))
}

// ustarBlock returns a builder pre-filled with the ustar field set.
func ustarBlock(name string, typeflag Typeflag, size int64) *blockBuilder {
	return legacyBlock(name, typeflag, size).
		set(magicOffset, magicUSTAR).
		set(versionOffset, versionUSTAR).
		set(unameOffset, "alice").
		set(gnameOffset, "staff").
		set(devmajorOffset, "0000000\x00").
		set(devminorOffset, "0000000\x00")
}

func (bb *blockBuilder) set(offset int, s string) *blockBuilder {
	copy(bb.b[offset:], s)
	return bb
}

func (bb *blockBuilder) setByte(offset int, c byte) *blockBuilder {
	bb.b[offset] = c
	return bb
}

// bytes writes a valid checksum and returns the block.
func (bb *blockBuilder) bytes() []byte {
	copy(bb.b[chksumOffset:], fmt.Sprintf("%06o\x00 ", Checksum(bb.b)))
	return bb.b
}

func padded(content string) []byte {
	out := []byte(content)
	return append(out, make([]byte, padding(int64(len(content))))...)
}

type decodedEntry struct {
	header  *Header
	content []byte
}

type decodeResult struct {
	entries  []decodedEntry
	status   Status
	err      error
	totalIn  uint64
	totalOut uint64
}

// decodeChunked feeds archive to a fresh Stream chunk bytes at a time
// until a terminal status is reached or the input runs out.
func decodeChunked(t *testing.T, archive []byte, chunk int) decodeResult {
	t.Helper()

	s := NewStream()
	defer s.End()

	var res decodeResult
	current := -1
	off := 0
	for {
		if len(s.NextIn) == 0 && off < len(archive) {
			end := off + chunk
			if end > len(archive) {
				end = len(archive)
			}
			s.NextIn = archive[off:end]
			off = end
		}
		status := s.Inflate()
		switch status {
		case StatusOK:
			if s.Header != nil && current < 0 {
				res.entries = append(res.entries, decodedEntry{header: s.Header})
				current = len(res.entries) - 1
			}
			if len(s.NextOut) > 0 {
				require.GreaterOrEqual(t, current, 0, "content exposed without a header")
				res.entries[current].content = append(res.entries[current].content, s.NextOut...)
			}
			continue
		case StatusEntryEnd:
			require.Nil(t, s.Header)
			current = -1
			continue
		case StatusBufError:
			if off < len(archive) {
				continue
			}
			status = s.Finish()
		}
		res.status = status
		res.err = s.Err()
		res.totalIn = s.TotalIn
		res.totalOut = s.TotalOut
		return res
	}
}
