package tar

import (
	archivetar "archive/tar"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/malt3/abstractfs-core/api"
	"github.com/malt3/abstractfs-core/provider"
	"github.com/malt3/abstractfs-core/sri"
	"github.com/malt3/tarstream/cas/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource(t *testing.T) {
	archive := buildArchive(t,
		dir("etc/"),
		file("etc/hostname", "box\n"),
		symlink("etc/localtime", "/usr/share/zoneinfo/UTC"),
		file("var/log/empty", ""),
		file("big", strings.Repeat("xyz", 1000)),
	)

	testCases := map[string]struct {
		data        []byte
		readerAt    bool
		compression Compression
		wantStore   casStore
	}{
		"section store": {
			data:      archive,
			readerAt:  true,
			wantStore: &CASSectionStore{},
		},
		"plain stream": {
			data:      archive,
			wantStore: &fallbackCASStore{},
		},
		"gzip": {
			data:      gzipBytes(t, archive),
			readerAt:  true,
			wantStore: &fallbackCASStore{},
		},
		"zstd": {
			data:        zstdBytes(t, archive),
			compression: CompressionZstd,
			wantStore:   &fallbackCASStore{},
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			var src io.Reader = onlyReader{r: bytesReader(tc.data)}
			if tc.readerAt {
				src = bytesReader(tc.data)
			}
			source, closer, err := (&SourceBuilder{}).
				WithIOReader(src).
				WithCompression(tc.compression).
				WithBufferSize(700).
				Build()
			require.NoError(err)
			defer func() { require.NoError(closer()) }()
			assert.IsType(tc.wantStore, source.(*Source).casStore)

			nodes := collect(t, source)
			require.Len(nodes, 5)

			assert.Equal("/etc", nodes[0].Stat.Name)
			assert.Equal(api.KindDirectory, nodes[0].Stat.Kind)
			assert.Nil(nodes[0].Open)

			hostname := nodes[1]
			assert.Equal("/etc/hostname", hostname.Stat.Name)
			assert.Equal(api.KindRegular, hostname.Stat.Kind)
			assert.EqualValues(4, hostname.Stat.Size)
			assert.Equal(integrityOf(t, "box\n"), hostname.Stat.Payload)
			assert.Equal("alice", hostname.Stat.Attributes.UserName)
			assert.Equal("users", hostname.Stat.Attributes.GroupName)
			assert.Equal("1000", hostname.Stat.Attributes.UserID)
			assert.Equal("100", hostname.Stat.Attributes.GroupID)
			assert.Equal("0o644", hostname.Stat.Attributes.Mode)
			assert.Equal(time.Unix(1700000000, 0).UTC(), hostname.Stat.Attributes.Mtime)

			assert.Equal("/etc/localtime", nodes[2].Stat.Name)
			assert.Equal(api.KindSymlink, nodes[2].Stat.Kind)
			assert.Equal("/usr/share/zoneinfo/UTC", nodes[2].Stat.Payload)

			assert.Equal(integrityOf(t, ""), nodes[3].Stat.Payload)

			// content stays readable after the archive has been consumed
			assert.Equal("box\n", readNode(t, hostname))
			assert.Equal(strings.Repeat("xyz", 1000), readNode(t, nodes[4]))
			assert.Equal("", readNode(t, nodes[3]))

			rc, err := source.(*Source).Open(integrityOf(t, "box\n"))
			require.NoError(err)
			defer rc.Close()
			content, err := io.ReadAll(rc)
			require.NoError(err)
			assert.Equal("box\n", string(content))
		})
	}
}

func TestSourceSkipsExtendedHeaders(t *testing.T) {
	archive := buildArchive(t, file("a", "alpha"))
	// turn the entry into a pax extended header followed by a second copy
	ext := append([]byte(nil), archive[:2*512]...)
	ext[156] = 'x'
	fixChecksum(ext[:512])
	archive = append(ext, archive...)

	source, closer, err := (&SourceBuilder{}).WithIOReader(bytesReader(archive)).Build()
	require.NoError(t, err)
	defer closer()

	nodes := collect(t, source)
	require.Len(t, nodes, 1)
	assert.Equal(t, "/a", nodes[0].Stat.Name)
	assert.Equal(t, "alpha", readNode(t, nodes[0]))
}

func TestSourceFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	require.NoError(t, os.WriteFile(path, gzipBytes(t, buildArchive(t, file("a", "alpha"))), 0o644))

	cas := memory.NewCAS(false)
	source, closer, err := (&SourceBuilder{}).WithCAS(cas).WithSourceRef(path).Build()
	require.NoError(t, err)
	defer closer()

	nodes := collect(t, source)
	require.Len(t, nodes, 1)
	objects, size := cas.Len()
	assert.Equal(t, 1, objects)
	assert.EqualValues(t, 5, size)
}

func TestSourceDataError(t *testing.T) {
	archive := buildArchive(t, file("a", "alpha"))
	source, closer, err := (&SourceBuilder{}).WithIOReader(bytesReader(archive[:600])).Build()
	require.NoError(t, err)
	defer closer()

	_, err = source.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestSourceBuilder(t *testing.T) {
	testCases := map[string]struct {
		builder func() *SourceBuilder
		wantErr bool
	}{
		"path and reader": {
			builder: func() *SourceBuilder {
				b := &SourceBuilder{}
				b.WithSourceRef("archive.tar")
				return b.WithIOReader(bytesReader(nil))
			},
			wantErr: true,
		},
		"no input": {
			builder: func() *SourceBuilder { return &SourceBuilder{} },
			wantErr: true,
		},
		"missing file": {
			builder: func() *SourceBuilder {
				b := &SourceBuilder{}
				b.WithSourceRef(filepath.Join(t.TempDir(), "missing.tar"))
				return b
			},
			wantErr: true,
		},
		"valid options": {
			builder: func() *SourceBuilder {
				b := (&SourceBuilder{}).WithIOReader(bytesReader(nil))
				b.Set("cas-algorithm", "sha512").Set("compression", "none").Set("buffer-size", "4096")
				return b
			},
		},
		"unknown option": {
			builder: func() *SourceBuilder {
				b := (&SourceBuilder{}).WithIOReader(bytesReader(nil))
				b.Set("follow-symlinks", "true")
				return b
			},
			wantErr: true,
		},
		"bad compression": {
			builder: func() *SourceBuilder {
				b := (&SourceBuilder{}).WithIOReader(bytesReader(nil))
				b.Set("compression", "lzma")
				return b
			},
			wantErr: true,
		},
		"bad buffer size": {
			builder: func() *SourceBuilder {
				b := (&SourceBuilder{}).WithIOReader(bytesReader(nil))
				b.Set("buffer-size", "-1")
				return b
			},
			wantErr: true,
		},
		"non string option": {
			builder: func() *SourceBuilder {
				b := (&SourceBuilder{}).WithIOReader(bytesReader(nil))
				b.Set("buffer-size", 4096)
				return b
			},
			wantErr: true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			b := tc.builder()
			_, closer, err := b.Build()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, closer())
			assert.Equal(t, sri.Algorithm("sha512"), b.SRIAlgorithm)
			assert.Equal(t, CompressionNone, b.Compression)
			assert.Equal(t, 4096, b.BufferSize)
		})
	}
}

func TestProvider(t *testing.T) {
	p := &Provider{}
	assert.Equal(t, "tar", p.Name())
	assert.IsType(t, &SourceBuilder{}, p.SourceBuilder())
	assert.IsType(t, &provider.UnsupportedSinkBuilder{}, p.SinkBuilder())
	_, _, err := p.CAS()
	assert.ErrorIs(t, err, provider.ErrUnsupported)
}

func collect(t *testing.T, source api.Source) []api.SourceNode {
	t.Helper()

	var nodes []api.SourceNode
	for {
		node, err := source.Next()
		if errors.Is(err, io.EOF) {
			return nodes
		}
		require.NoError(t, err)
		nodes = append(nodes, node)
	}
}

func readNode(t *testing.T, node api.SourceNode) string {
	t.Helper()

	require.NotNil(t, node.Open)
	rc, err := node.Open()
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func integrityOf(t *testing.T, content string) string {
	t.Helper()

	integrity, err := sri.FromReader(sri.SHA256, strings.NewReader(content))
	require.NoError(t, err)
	return integrity.String()
}

func TestSourceHardLink(t *testing.T) {
	link := testEntry{header: archivetar.Header{Typeflag: archivetar.TypeLink, Name: "b", Linkname: "a"}}
	archive := buildArchive(t, file("a", "alpha"), link)

	source, closer, err := (&SourceBuilder{}).WithIOReader(bytesReader(archive)).Build()
	require.NoError(t, err)
	defer closer()

	nodes := collect(t, source)
	require.Len(t, nodes, 2)
	assert.Equal(t, "/b", nodes[1].Stat.Name)
	assert.Equal(t, "a", nodes[1].Stat.Payload)
	assert.Nil(t, nodes[1].Open)
}

func TestSourceFromPipe(t *testing.T) {
	archive := buildArchive(t, file("a", "alpha"), file("b", "beta"))

	for _, compression := range []Compression{CompressionAuto, CompressionNone} {
		source, closer, err := (&SourceBuilder{}).
			WithIOReader(pipeReader(t, archive)).
			WithCompression(compression).
			Build()
		require.NoError(t, err)
		assert.IsType(t, &fallbackCASStore{}, source.(*Source).casStore)

		nodes := collect(t, source)
		require.Len(t, nodes, 2)
		assert.Equal(t, "alpha", readNode(t, nodes[0]))
		assert.Equal(t, "beta", readNode(t, nodes[1]))
		require.NoError(t, closer())
	}
}

func TestSourceOversizedDeclaredSize(t *testing.T) {
	archive := withDeclaredSize(buildArchive(t, file("a", "alpha")), "77777777777")

	testCases := map[string]struct {
		src func() io.Reader
		// the section store reports the short read through the sri library
		wantUnexpectedEOF bool
	}{
		"gzip": {
			src:               func() io.Reader { return bytesReader(gzipBytes(t, archive)) },
			wantUnexpectedEOF: true,
		},
		"pipe": {
			src:               func() io.Reader { return pipeReader(t, archive) },
			wantUnexpectedEOF: true,
		},
		"plain": {
			src: func() io.Reader { return bytesReader(archive) },
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			source, closer, err := (&SourceBuilder{}).WithIOReader(tc.src()).Build()
			require.NoError(t, err)
			defer closer()

			_, err = source.Next()
			require.Error(t, err)
			if tc.wantUnexpectedEOF {
				assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
			}
		})
	}
}

func TestFallbackCASStoreBoundsCopy(t *testing.T) {
	store := &fallbackCASStore{cas: memory.NewCAS(false)}

	_, err := store.Record(strings.NewReader("short"), 0, 0o77777777777, sri.SHA256)
	assert.Error(t, err)

	_, err = store.Record(strings.NewReader("longer than declared"), 0, 6, sri.SHA256)
	assert.Error(t, err)

	integrity, err := store.Record(strings.NewReader("exact"), 0, 5, sri.SHA256)
	require.NoError(t, err)
	assert.Equal(t, integrityOf(t, "exact"), integrity)
}

func TestSourceSkipsGNULongNames(t *testing.T) {
	long := strings.Repeat("nested/", 20) + "file.txt"
	entry := file(long, "deep")
	entry.header.Format = archivetar.FormatGNU

	var buf bytes.Buffer
	tw := archivetar.NewWriter(&buf)
	hdr := entry.header
	hdr.Size = int64(len(entry.content))
	hdr.ModTime = time.Unix(1700000000, 0)
	require.NoError(t, tw.WriteHeader(&hdr))
	_, err := tw.Write([]byte(entry.content))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	source, closer, err := (&SourceBuilder{}).WithIOReader(bytesReader(buf.Bytes())).Build()
	require.NoError(t, err)
	defer closer()

	nodes := collect(t, source)
	require.Len(t, nodes, 1)
	assert.Equal(t, api.KindRegular, nodes[0].Stat.Kind)
	assert.Equal(t, "deep", readNode(t, nodes[0]))
	assert.NotContains(t, nodes[0].Stat.Name, "@LongLink")
}
