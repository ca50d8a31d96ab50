package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/malt3/tarstream/fs/tar"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// archiveFlags are shared by all commands reading an archive.
type archiveFlags struct {
	Source      string
	Compression tar.Compression
	BufferSize  int
}

func addArchiveFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", "", "Path to the tar archive. Use \"-\" for stdin.")
	cmd.Flags().String("compression", "auto", "Compression of the archive: auto, none, gzip or zstd.")
	cmd.Flags().Int("buffer-size", 32*1024, "Size of the chunks read from the archive.")
	must(cmd.MarkFlagRequired("source"))
}

func parseArchiveFlags(cmd *cobra.Command) (archiveFlags, error) {
	source, err := cmd.Flags().GetString("source")
	if err != nil {
		return archiveFlags{}, err
	}
	compressionName, err := cmd.Flags().GetString("compression")
	if err != nil {
		return archiveFlags{}, err
	}
	compression, err := tar.ParseCompression(compressionName)
	if err != nil {
		return archiveFlags{}, err
	}
	bufferSize, err := cmd.Flags().GetInt("buffer-size")
	if err != nil {
		return archiveFlags{}, err
	}
	if bufferSize <= 0 {
		return archiveFlags{}, fmt.Errorf("invalid buffer size %d", bufferSize)
	}

	return archiveFlags{
		Source:      source,
		Compression: compression,
		BufferSize:  bufferSize,
	}, nil
}

// openArchive opens the archive named by flags and strips its compression.
func openArchive(flags archiveFlags) (io.Reader, func() error, error) {
	var raw io.Reader = os.Stdin
	closeFile := func() error { return nil }
	if flags.Source != "-" {
		f, err := os.Open(flags.Source)
		if err != nil {
			return nil, nil, fmt.Errorf("opening archive: %w", err)
		}
		raw = f
		closeFile = f.Close
	}
	r, compression, closeDecompressor, err := tar.Decompress(raw, flags.Compression)
	if err != nil {
		closeFile()
		return nil, nil, err
	}
	logrus.WithFields(logrus.Fields{
		"source":      flags.Source,
		"compression": compression,
	}).Debug("Opened archive")
	return r, func() error {
		return errors.Join(closeDecompressor(), closeFile())
	}, nil
}
