package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/malt3/tarstream/fs/tar"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewCatCmd creates the cat command.
func NewCatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat",
		Short: "Write the content of an archive entry to stdout",
		Args:  cobra.ExactArgs(0),
		RunE:  runCat,
	}
	addArchiveFlags(cmd)
	cmd.Flags().String("entry", "", "Name of the entry as stored in the archive.")
	must(cmd.MarkFlagRequired("entry"))
	return cmd
}

type catFlags struct {
	archiveFlags
	Entry string
}

func parseCatFlags(cmd *cobra.Command) (catFlags, error) {
	archive, err := parseArchiveFlags(cmd)
	if err != nil {
		return catFlags{}, err
	}
	entry, err := cmd.Flags().GetString("entry")
	if err != nil {
		return catFlags{}, err
	}
	return catFlags{
		archiveFlags: archive,
		Entry:        entry,
	}, nil
}

func runCat(cmd *cobra.Command, _ []string) error {
	flags, err := parseCatFlags(cmd)
	if err != nil {
		return err
	}
	r, closer, err := openArchive(flags.archiveFlags)
	if err != nil {
		return err
	}
	defer closer()

	reader := tar.NewReader(r, tar.WithBufferSize(flags.BufferSize), tar.WithLogger(logrus.StandardLogger()))
	return catEntry(reader, cmd.OutOrStdout(), flags.Entry)
}

// catEntry copies the content of the first entry named name to w.
func catEntry(reader *tar.StreamReader, w io.Writer, name string) error {
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("cat: entry %q: %w", name, fs.ErrNotExist)
		}
		if err != nil {
			return err
		}
		if header.Name != name {
			continue
		}
		if !header.Typeflag.IsRegular() {
			return fmt.Errorf("cat: entry %q is not a regular file but %s", name, header.Typeflag)
		}
		_, err = io.Copy(w, reader)
		return err
	}
}
