package tar

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/malt3/abstractfs-core/api"
	"github.com/malt3/abstractfs-core/provider"
	"github.com/malt3/abstractfs-core/sri"
	"github.com/malt3/tarstream/cas/memory"
	"github.com/sirupsen/logrus"
)

type SourceBuilder struct {
	SRIAlgorithm sri.Algorithm `abstractfs:"cas-algorithm"`
	// Compression is the compression of the archive bytes.
	// By default, gzip and zstd are detected from the first bytes.
	Compression Compression `abstractfs:"compression"`
	// BufferSize is the size of the chunks read from the archive.
	BufferSize int `abstractfs:"buffer-size"`
	NewReader  func(io.Reader) Reader
	Logger     logrus.FieldLogger
	Path       string
	IOReader   io.Reader
	// CAS receives file content when the archive cannot be read again at
	// its original offsets. By default, an in-memory CAS is used.
	CAS            api.CAS
	invalidOptions []string
}

// WithSourceRef sets the source reference.
// For the tar provider, the source reference is the path to the tar file.
func (b *SourceBuilder) WithSourceRef(ref string) provider.SourceBuilder {
	b.Path = ref
	return b
}

// Set sets a option.
func (b *SourceBuilder) Set(key string, value any) provider.SourceBuilder {
	str, ok := value.(string)
	if !ok {
		b.invalidOptions = append(b.invalidOptions, key)
		return b
	}
	switch key {
	case "cas-algorithm":
		b.SRIAlgorithm = sri.Algorithm(str)
	case "compression":
		compression, err := ParseCompression(str)
		if err != nil {
			b.invalidOptions = append(b.invalidOptions, key)
			return b
		}
		b.Compression = compression
	case "buffer-size":
		size, err := strconv.Atoi(str)
		if err != nil || size <= 0 {
			b.invalidOptions = append(b.invalidOptions, key)
			return b
		}
		b.BufferSize = size
	default:
		b.invalidOptions = append(b.invalidOptions, key)
	}
	return b
}

func (b *SourceBuilder) WithSRIAlgorithm(alg sri.Algorithm) *SourceBuilder {
	b.SRIAlgorithm = alg
	return b
}

func (b *SourceBuilder) WithCompression(compression Compression) *SourceBuilder {
	b.Compression = compression
	return b
}

func (b *SourceBuilder) WithBufferSize(size int) *SourceBuilder {
	b.BufferSize = size
	return b
}

func (b *SourceBuilder) WithNewReader(f func(io.Reader) Reader) *SourceBuilder {
	b.NewReader = f
	return b
}

func (b *SourceBuilder) WithLogger(log logrus.FieldLogger) *SourceBuilder {
	b.Logger = log
	return b
}

func (b *SourceBuilder) WithIOReader(r io.Reader) *SourceBuilder {
	b.IOReader = r
	return b
}

func (b *SourceBuilder) WithCAS(cas api.CAS) *SourceBuilder {
	b.CAS = cas
	return b
}

// Build builds the options.
func (b *SourceBuilder) Build() (api.Source, api.CloseWaitFunc, error) {
	b.applyDefaults()
	if err := b.check(); err != nil {
		return nil, nil, err
	}
	raw := b.IOReader
	var fileCloser func() error
	if raw == nil {
		file, err := os.Open(b.Path)
		if err != nil {
			return nil, nil, err
		}
		fileCloser = file.Close
		raw = file
	}
	decompressed, compression, decompressCloser, err := Decompress(raw, b.Compression)
	if err != nil {
		if fileCloser != nil {
			fileCloser()
		}
		return nil, nil, err
	}
	b.Logger.WithFields(logrus.Fields{
		"path":        b.Path,
		"compression": compression,
	}).Debug("Opened tar source")

	source := &Source{
		reader:       b.NewReader(decompressed),
		casStore:     newCASStore(raw, compression, b.CAS),
		sriAlgorithm: b.SRIAlgorithm,
		log:          b.Logger,
	}
	return source, func() error {
		err := decompressCloser()
		if fileCloser != nil {
			err = errors.Join(err, fileCloser())
		}
		return err
	}, nil
}

func (b *SourceBuilder) applyDefaults() {
	if b.SRIAlgorithm == "" {
		b.SRIAlgorithm = sri.SHA256
	}
	if b.Compression == "" {
		b.Compression = CompressionAuto
	}
	if b.BufferSize <= 0 {
		b.BufferSize = defaultBufferSize
	}
	if b.Logger == nil {
		b.Logger = logrus.StandardLogger()
	}
	if b.NewReader == nil {
		b.NewReader = func(r io.Reader) Reader {
			return NewReader(r, WithBufferSize(b.BufferSize), WithLogger(b.Logger))
		}
	}
	if b.CAS == nil {
		b.CAS = memory.NewCAS(false)
	}
}

func (b *SourceBuilder) check() error {
	if len(b.invalidOptions) > 0 {
		return fmt.Errorf("invalid options: %s", strings.Join(b.invalidOptions, ","))
	}
	if b.Path != "" && b.IOReader != nil {
		return errors.New("cannot set both path and io.Reader")
	}
	if b.Path == "" && b.IOReader == nil {
		return errors.New("must set either path or io.Reader")
	}
	return nil
}
