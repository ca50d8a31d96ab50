package tar

import (
	"errors"
	"fmt"
	"io"

	"github.com/malt3/tarstream/inflate"
	"github.com/sirupsen/logrus"
)

const (
	defaultBufferSize = 32 * 1024
	maxEmptyReads     = 100
)

// StreamReader adapts the push-style inflate.Stream to a pull-style reader.
// Input is read from the source in chunks of a fixed buffer size, so memory
// use does not depend on entry or archive size.
type StreamReader struct {
	src    io.Reader
	stream *inflate.Stream
	buf    []byte
	log    logrus.FieldLogger

	header *inflate.Header
	// pending is the part of the last content window not yet returned by Read.
	// It aliases buf.
	pending []byte
	offset  int64
	err     error
}

// ReaderOption configures a StreamReader.
type ReaderOption func(*StreamReader)

// WithBufferSize sets the size of the read buffer. Values below one byte are ignored.
func WithBufferSize(size int) ReaderOption {
	return func(r *StreamReader) {
		if size > 0 {
			r.buf = make([]byte, size)
		}
	}
}

// WithLogger sets the logger used for per-entry debug output.
func WithLogger(log logrus.FieldLogger) ReaderOption {
	return func(r *StreamReader) {
		if log != nil {
			r.log = log
		}
	}
}

// NewReader returns a StreamReader decoding the archive read from src.
func NewReader(src io.Reader, opts ...ReaderOption) *StreamReader {
	r := &StreamReader{
		src:    src,
		stream: inflate.NewStream(),
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.buf == nil {
		r.buf = make([]byte, defaultBufferSize)
	}
	return r
}

// Next advances to the next entry and returns its header.
// Unread content of the previous entry is skipped.
// At the end of the archive it returns io.EOF.
func (r *StreamReader) Next() (*inflate.Header, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.header != nil {
		if err := r.skipEntry(); err != nil {
			return nil, r.setErr(err)
		}
	}
	for {
		status, err := r.inflate()
		if err != nil {
			return nil, r.setErr(err)
		}
		switch status {
		case inflate.StatusStreamEnd:
			r.stream.End()
			return nil, r.setErr(io.EOF)
		case inflate.StatusOK:
			if hdr := r.stream.Header; hdr != nil {
				r.header = hdr
				r.offset = int64(r.stream.TotalIn)
				r.log.WithFields(logrus.Fields{
					"name":    hdr.Name,
					"type":    hdr.Typeflag.String(),
					"size":    hdr.Size,
					"dialect": hdr.Dialect.String(),
					"offset":  r.offset,
				}).Debug("Decoded tar header")
				return hdr, nil
			}
		}
	}
}

// Read reads content of the current entry.
// It returns io.EOF once the declared size of the entry has been read.
func (r *StreamReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.header == nil {
		return 0, io.EOF
	}
	for len(r.pending) == 0 {
		if r.stream.Remaining() == 0 {
			return 0, io.EOF
		}
		status, err := r.inflate()
		if err != nil {
			return 0, r.setErr(err)
		}
		if status == inflate.StatusOK {
			r.pending = r.stream.NextOut
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// Header returns the header of the current entry, or nil before the first
// call to Next and after the end of the archive.
func (r *StreamReader) Header() *inflate.Header {
	return r.header
}

// Offset returns the offset of the current entry's content in the decoded input.
func (r *StreamReader) Offset() int64 {
	return r.offset
}

func (r *StreamReader) skipEntry() error {
	r.pending = nil
	for {
		status, err := r.inflate()
		if err != nil {
			return err
		}
		if status == inflate.StatusEntryEnd {
			r.header = nil
			return nil
		}
	}
}

// inflate runs the stream until it makes progress, refilling input as needed.
func (r *StreamReader) inflate() (inflate.Status, error) {
	for {
		status := r.stream.Inflate()
		if status == inflate.StatusBufError {
			if err := r.fill(); err != nil {
				return status, err
			}
			continue
		}
		if status.Fatal() {
			return status, r.stream.Err()
		}
		return status, nil
	}
}

func (r *StreamReader) fill() error {
	for empty := 0; ; empty++ {
		if empty >= maxEmptyReads {
			return fmt.Errorf("%w: reading archive: %w", inflate.ErrErrno, io.ErrNoProgress)
		}
		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.stream.NextIn = r.buf[:n]
			return nil
		}
		if errors.Is(err, io.EOF) {
			r.stream.Finish()
			return fmt.Errorf("%w: %w", io.ErrUnexpectedEOF, r.stream.Err())
		}
		if err != nil {
			return fmt.Errorf("%w: reading archive: %w", inflate.ErrErrno, err)
		}
	}
}

func (r *StreamReader) setErr(err error) error {
	r.err = err
	r.header = nil
	r.pending = nil
	return err
}
