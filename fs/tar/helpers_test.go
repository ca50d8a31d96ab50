package tar

import (
	archivetar "archive/tar"
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

type testEntry struct {
	header  archivetar.Header
	content string
}

func file(name, content string) testEntry {
	return testEntry{
		header:  archivetar.Header{Typeflag: archivetar.TypeReg, Name: name, Mode: 0o644, Uid: 1000, Gid: 100, Uname: "alice", Gname: "users"},
		content: content,
	}
}

func dir(name string) testEntry {
	return testEntry{
		header: archivetar.Header{Typeflag: archivetar.TypeDir, Name: name, Mode: 0o755},
	}
}

func symlink(name, target string) testEntry {
	return testEntry{
		header: archivetar.Header{Typeflag: archivetar.TypeSymlink, Name: name, Linkname: target, Mode: 0o777},
	}
}

func buildArchive(t *testing.T, entries ...testEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := archivetar.NewWriter(&buf)
	for _, e := range entries {
		hdr := e.header
		hdr.Format = archivetar.FormatUSTAR
		hdr.ModTime = time.Unix(1700000000, 0)
		if hdr.Typeflag == archivetar.TypeReg {
			hdr.Size = int64(len(e.content))
		}
		require.NoError(t, tw.WriteHeader(&hdr))
		_, err := tw.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func gzipBytes(t *testing.T, b []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(b)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zstdBytes(t *testing.T, b []byte) []byte {
	t.Helper()

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(b, nil)
}

// onlyReader hides every method but Read.
type onlyReader struct {
	r *bytes.Reader
}

func (o onlyReader) Read(p []byte) (int, error) {
	return o.r.Read(p)
}

func bytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}

// pipeReader returns the read end of an os.Pipe carrying b.
// Pipes implement io.ReaderAt but cannot seek.
func pipeReader(t *testing.T, b []byte) *os.File {
	t.Helper()

	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { pr.Close() })
	go func() {
		defer pw.Close()
		pw.Write(b)
	}()
	return pr
}

// withDeclaredSize rewrites the size field of the first header in archive.
func withDeclaredSize(archive []byte, octalSize string) []byte {
	out := append([]byte(nil), archive...)
	copy(out[124:136], octalSize+"\x00")
	fixChecksum(out[:512])
	return out
}
