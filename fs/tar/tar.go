package tar

import (
	"io"

	"github.com/malt3/abstractfs-core/api"
	"github.com/malt3/abstractfs-core/provider"
	"github.com/malt3/tarstream/inflate"
)

type Provider struct{}

func (p Provider) Name() string {
	return "tar"
}

func (p Provider) SourceBuilder() provider.SourceBuilder {
	return &SourceBuilder{}
}

// SinkBuilder is unsupported: the provider only decodes archives.
func (p Provider) SinkBuilder() provider.SinkBuilder {
	return &provider.UnsupportedSinkBuilder{}
}

func (p Provider) CAS() (api.CAS, api.CloseWaitFunc, error) {
	return nil, nil, provider.ErrUnsupported
}

func (p Provider) CASReader() (api.CASReader, api.CloseWaitFunc, error) {
	return nil, nil, provider.ErrUnsupported
}

func (p Provider) CASWriter() (api.CASWriter, api.CloseWaitFunc, error) {
	return nil, nil, provider.ErrUnsupported
}

var _ provider.Provider = (*Provider)(nil)

// Reader yields the entries of an archive one at a time.
// Read returns the content of the entry last returned by Next.
type Reader interface {
	Next() (*inflate.Header, error)
	// Offset returns the position of the current entry's content in the archive.
	Offset() int64
	io.Reader
}

var _ Reader = (*StreamReader)(nil)
