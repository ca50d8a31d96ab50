package tar

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"github.com/malt3/abstractfs-core/api"
	"github.com/malt3/abstractfs-core/sri"
)

// newCASStore returns a section store if the archive bytes can be read again
// at their original offsets and a store backed by cas otherwise.
func newCASStore(raw io.Reader, compression Compression, cas api.CAS) casStore {
	if readerAt, ok := randomAccess(raw); ok && compression == CompressionNone {
		return NewCASSectionStore(readerAt)
	}
	return &fallbackCASStore{cas: cas}
}

// CASSectionStore is a store for tar sections.
// It remembers the offset and size of each regular file's content while
// the archive is decoded.
// Later, the sections can be opened by their sri.
type CASSectionStore struct {
	reader io.ReaderAt
	mux    sync.RWMutex
	// inner is the lookup table for sri -> section of tar file (offset + size).
	inner map[string]struct{ offset, size int64 }
}

func NewCASSectionStore(reader io.ReaderAt) *CASSectionStore {
	return &CASSectionStore{
		reader: reader,
		inner:  make(map[string]struct{ offset, size int64 }),
	}
}

// Record hashes the content read from fileReader and stores its section.
// The offset is the position of the content in the archive and headerSize
// is the file size declared by the tar header.
func (c *CASSectionStore) Record(fileReader io.Reader, offset, headerSize int64, sriAlgorithm sri.Algorithm) (string, error) {
	counter := &countingReader{reader: fileReader}
	integrity, err := sri.FromReader(sriAlgorithm, counter)
	if err != nil {
		return "", fmt.Errorf("recording: failed to calculate sri: %w", err)
	}
	if counter.n != headerSize {
		return "", fmt.Errorf("recording: header size %d does not match content size %d", headerSize, counter.n)
	}
	sri := integrity.String()
	c.Set(sri, offset, headerSize)
	return sri, nil
}

// Open returns a reader for the given sri.
func (c *CASSectionStore) Open(sri string) (io.ReadCloser, error) {
	offset, size, ok := c.getSection(sri)
	if !ok {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(io.NewSectionReader(c.reader, offset, size)), nil
}

// Set sets the offset and size for the given sri.
// If the sri already exists, the old location will be kept.
func (c *CASSectionStore) Set(sri string, offset, size int64) {
	c.mux.Lock()
	defer c.mux.Unlock()
	_, ok := c.inner[sri]
	if ok {
		return
	}
	c.inner[sri] = struct{ offset, size int64 }{offset, size}
}

// getSection returns the tar section (offset, size) for the given sri.
func (c *CASSectionStore) getSection(sri string) (int64, int64, bool) {
	c.mux.RLock()
	defer c.mux.RUnlock()
	section, ok := c.inner[sri]
	return section.offset, section.size, ok
}

// fallbackCASStore copies file content into a CAS.
// It is used when the archive cannot be read twice, for example when it is
// compressed or read from a pipe.
type fallbackCASStore struct {
	cas api.CAS
}

func (f *fallbackCASStore) Open(sri string) (io.ReadCloser, error) {
	return f.cas.Open(sri)
}

func (f *fallbackCASStore) Record(fileReader io.Reader, _, headerSize int64, sriAlgorithm sri.Algorithm) (string, error) {
	// the content is read once, so it is buffered to be hashed and stored.
	// headerSize comes from the archive and only bounds the copy.
	buf := new(bytes.Buffer)
	observedSize, err := io.Copy(buf, io.LimitReader(fileReader, headerSize+1))
	if err != nil {
		return "", fmt.Errorf("recording: failed to copy file: %w", err)
	}
	if observedSize != headerSize {
		return "", fmt.Errorf("recording: header size %d does not match content size %d", headerSize, observedSize)
	}
	integrity, err := sri.FromReader(sriAlgorithm, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return "", fmt.Errorf("recording: failed to calculate sri: %w", err)
	}
	sri := integrity.String()
	if err := f.cas.Write(sri, buf); err != nil {
		return "", fmt.Errorf("recording: failed to write to cas: %w", err)
	}
	return sri, nil
}

// randomAccess returns r as an io.ReaderAt if it can be read at arbitrary
// offsets. Files that are pipes or terminals implement io.ReaderAt but fail
// to seek.
func randomAccess(r io.Reader) (io.ReaderAt, bool) {
	readerAt, ok := r.(io.ReaderAt)
	if !ok {
		return nil, false
	}
	if seeker, ok := r.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekCurrent); err != nil {
			return nil, false
		}
	}
	return readerAt, true
}

type countingReader struct {
	reader io.Reader
	n      int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.n += int64(n)
	return n, err
}

type casStore interface {
	Record(fileReader io.Reader, offset, headerSize int64, sriAlgorithm sri.Algorithm) (string, error)
	Open(sri string) (io.ReadCloser, error)
}

var _ casStore = (*CASSectionStore)(nil)
var _ casStore = (*fallbackCASStore)(nil)
