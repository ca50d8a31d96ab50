package tar

import (
	"io"
	"strconv"
	"strings"

	"github.com/malt3/abstractfs-core/api"
	"github.com/malt3/abstractfs-core/sri"
	"github.com/malt3/tarstream/inflate"
	"github.com/sirupsen/logrus"
)

// Source turns the entries of a tar archive into abstractfs nodes.
// Content of regular files is hashed while streaming and recorded in a CAS,
// so the source can be read back through Open.
type Source struct {
	reader       Reader
	casStore     casStore
	sriAlgorithm sri.Algorithm
	log          logrus.FieldLogger
}

// Next returns the node for the next entry of the archive.
// Extended header and GNU long name entries carry metadata for other
// entries and are skipped.
func (s *Source) Next() (api.SourceNode, error) {
	for {
		header, err := s.reader.Next()
		if err != nil {
			return api.SourceNode{}, err
		}
		if header.Typeflag.IsExtHeader() || header.Typeflag.IsGNULongName() {
			s.log.WithFields(logrus.Fields{
				"name": header.Name,
				"type": header.Typeflag.String(),
			}).Debug("Skipping metadata entry")
			continue
		}
		return s.prepareNext(header)
	}
}

// Open returns the content recorded for sri.
func (s *Source) Open(sri string) (io.ReadCloser, error) {
	return s.casStore.Open(sri)
}

func (s *Source) prepareNext(header *inflate.Header) (api.SourceNode, error) {
	name := header.Name
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	// directories keep no trailing slash in the tree
	if len(name) > 1 {
		name = strings.TrimSuffix(name, "/")
	}
	kind := kindFromTypeflag(header.Typeflag)

	payload, err := s.payload(header, kind)
	if err != nil {
		return api.SourceNode{}, err
	}

	node := api.SourceNode{
		Stat: api.Stat{
			Name:       name,
			Kind:       kind,
			Attributes: nodeAttributes(header),
			Payload:    payload,
			Size:       header.Size,
		},
	}
	if kind == api.KindRegular {
		node.Open = func() (io.ReadCloser, error) {
			return s.casStore.Open(payload)
		}
	}
	return node, nil
}

func (s *Source) payload(header *inflate.Header, kind string) (string, error) {
	switch {
	case kind == api.KindRegular:
		return s.casStore.Record(s.reader, s.reader.Offset(), header.Size, s.sriAlgorithm)
	case kind == api.KindSymlink, header.Typeflag == inflate.TypeHardLink:
		return header.Linkname, nil
	}
	return "", nil
}

func nodeAttributes(header *inflate.Header) api.NodeAttributes {
	attributes := api.NodeAttributes{
		Mtime:   header.ModTime.UTC(),
		UserID:  strconv.FormatUint(uint64(header.UID), 10),
		GroupID: strconv.FormatUint(uint64(header.GID), 10),
		Mode:    "0o" + strconv.FormatUint(uint64(header.Mode), 8),
	}
	if header.Ext != nil {
		attributes.UserName = header.Ext.Uname
		attributes.GroupName = header.Ext.Gname
	}
	return attributes
}

func kindFromTypeflag(typeflag inflate.Typeflag) string {
	// TODO: map hard links and device nodes once abstractfs-core has kinds for them
	switch {
	case typeflag == inflate.TypeDir:
		return api.KindDirectory
	case typeflag.IsRegular():
		return api.KindRegular
	case typeflag == inflate.TypeSymLink:
		return api.KindSymlink
	}
	return ""
}

var (
	_ api.Source    = (*Source)(nil)
	_ api.CASReader = (*Source)(nil)
)
