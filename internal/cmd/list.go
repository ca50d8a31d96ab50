package cmd

import (
	_ "crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"text/tabwriter"

	"github.com/malt3/tarstream/inflate"
	"github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the entries of a tar archive",
		RunE:  runList,
	}
	addArchiveFlags(cmd)
	cmd.Flags().BoolP("long", "l", false, "Print mode, owner, size and modification time of each entry.")
	cmd.Flags().Bool("digest", false, "Print the digest of each regular file's content.")
	return cmd
}

type listFlags struct {
	archiveFlags
	Long   bool
	Digest bool
}

func parseListFlags(cmd *cobra.Command) (listFlags, error) {
	archive, err := parseArchiveFlags(cmd)
	if err != nil {
		return listFlags{}, err
	}
	long, err := cmd.Flags().GetBool("long")
	if err != nil {
		return listFlags{}, err
	}
	withDigest, err := cmd.Flags().GetBool("digest")
	if err != nil {
		return listFlags{}, err
	}
	return listFlags{
		archiveFlags: archive,
		Long:         long,
		Digest:       withDigest,
	}, nil
}

func runList(cmd *cobra.Command, _ []string) error {
	flags, err := parseListFlags(cmd)
	if err != nil {
		return err
	}
	r, closer, err := openArchive(flags.archiveFlags)
	if err != nil {
		return err
	}
	defer closer()

	out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 1, ' ', 0)
	if err := listArchive(r, out, flags); err != nil {
		return err
	}
	return out.Flush()
}

// listArchive drives an inflate.Stream directly and prints one line per entry
// once the entry has been fully consumed.
func listArchive(r io.Reader, w io.Writer, flags listFlags) error {
	buf := make([]byte, flags.BufferSize)
	stream := inflate.NewStream()
	defer stream.End()

	var (
		header   *inflate.Header
		digester digest.Digester
		entries  int
	)
	for {
		status := stream.Inflate()
		switch status {
		case inflate.StatusOK:
			if stream.Header != nil && header == nil {
				header = stream.Header
				if flags.Digest && header.Typeflag.IsRegular() {
					digester = digest.Canonical.Digester()
				}
			}
			if digester != nil && len(stream.NextOut) > 0 {
				// hash.Hash never returns an error
				digester.Hash().Write(stream.NextOut)
			}
		case inflate.StatusEntryEnd:
			var d digest.Digest
			if digester != nil {
				d = digester.Digest()
			}
			fmt.Fprintln(w, formatEntry(header, d, flags.Long))
			header, digester = nil, nil
			entries++
		case inflate.StatusStreamEnd:
			logrus.WithField("entries", entries).Debug("Reached end of archive")
			return nil
		case inflate.StatusBufError:
			n, err := r.Read(buf)
			if n > 0 {
				stream.NextIn = buf[:n]
				continue
			}
			if errors.Is(err, io.EOF) {
				stream.Finish()
				return fmt.Errorf("%w: %w", io.ErrUnexpectedEOF, stream.Err())
			}
			if err != nil {
				return fmt.Errorf("%w: reading archive: %w", inflate.ErrErrno, err)
			}
		default:
			return stream.Err()
		}
	}
}

// formatEntry renders an entry in the style of tar -tv.
func formatEntry(header *inflate.Header, d digest.Digest, long bool) string {
	line := header.Name
	if header.Typeflag == inflate.TypeSymLink {
		line += " -> " + header.Linkname
	} else if header.Typeflag == inflate.TypeHardLink {
		line += " link to " + header.Linkname
	}
	if d != "" {
		line = d.String() + "\t" + line
	}
	if !long {
		return line
	}
	owner := fmt.Sprintf("%d/%d", header.UID, header.GID)
	if header.Ext != nil && header.Ext.Uname != "" {
		owner = header.Ext.Uname + "/" + header.Ext.Gname
	}
	return fmt.Sprintf("%s\t%s\t%d\t%s\t%s",
		modeString(header),
		owner,
		header.Size,
		header.ModTime.UTC().Format("2006-01-02 15:04"),
		line,
	)
}

func modeString(header *inflate.Header) string {
	perm := fs.FileMode(header.Mode).Perm().String()[1:]
	return string(typeChar(header.Typeflag)) + perm
}

func typeChar(typeflag inflate.Typeflag) byte {
	switch typeflag {
	case inflate.TypeDir:
		return 'd'
	case inflate.TypeSymLink:
		return 'l'
	case inflate.TypeHardLink:
		return 'h'
	case inflate.TypeCharSpec:
		return 'c'
	case inflate.TypeBlockSpec:
		return 'b'
	case inflate.TypeFIFO:
		return 'p'
	}
	if typeflag.IsRegular() {
		return '-'
	}
	return '?'
}
