package cmd

import (
	"fmt"
	"os"

	"github.com/malt3/abstractfs-core/api"
	"github.com/malt3/tarstream/fs/tar"
	"github.com/sirupsen/logrus"
)

func getSource(flags archiveFlags) (api.Source, api.CloseWaitFunc, error) {
	builder := (&tar.SourceBuilder{}).
		WithCompression(flags.Compression).
		WithBufferSize(flags.BufferSize).
		WithLogger(logrus.StandardLogger())
	if flags.Source == "-" {
		builder.WithIOReader(os.Stdin)
	} else {
		builder.WithSourceRef(flags.Source)
	}
	source, closer, err := builder.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("building source: %w", err)
	}
	return source, closer, nil
}
