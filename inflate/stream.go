package inflate

import (
	"fmt"
)

// Stream decodes a tar archive pushed to it in arbitrarily sized pieces.
//
// The caller sets NextIn and calls Inflate until it returns a status other
// than StatusOK, then supplies more input. A Stream is not safe for
// concurrent use.
//
// Content is never copied: NextOut aliases the bytes of NextIn that were
// consumed by the last call. It is only valid until the next call and must
// not be retained past it.
type Stream struct {
	// NextIn is the unconsumed input. Inflate reslices it as it consumes bytes.
	NextIn []byte
	// TotalIn counts all consumed input bytes: headers, content, padding and terminators.
	TotalIn uint64

	// NextOut is the content exposed by the last call.
	NextOut []byte
	// TotalOut counts all content bytes exposed so far.
	TotalOut uint64

	// Header is the header of the current entry. It is set by the call that
	// completes the header block and cleared when the entry ends.
	Header *Header

	state *inflateState
	ended bool
}

type mode int

const (
	modeHeader mode = iota
	modeContent
	modePadding
	modeStreamEnd
	modeFailed
)

type inflateState struct {
	mode mode
	// block accumulates header bytes across calls.
	block  []byte
	filled int
	// zeroBlocks counts consecutive all-zero blocks read where a header was expected.
	zeroBlocks int
	remaining  int64
	padding    int64
	status     Status
	err        error
}

// NewStream returns an initialized Stream.
func NewStream() *Stream {
	s := &Stream{}
	s.Init()
	return s
}

// Init resets s to its initial state: zero counters, no header, awaiting the first header block.
// It may be called at any time, including after an error.
func (s *Stream) Init() Status {
	*s = Stream{
		state: &inflateState{
			mode:  modeHeader,
			block: make([]byte, BlockSize),
		},
	}
	return StatusOK
}

// End releases the internal state of s.
// Calling End again is a no-op. Calling it on a Stream that was never
// initialized returns StatusStreamError.
func (s *Stream) End() Status {
	if s.state == nil {
		if s.ended {
			return StatusOK
		}
		return StatusStreamError
	}
	s.state = nil
	s.ended = true
	s.Header = nil
	s.NextOut = nil
	return StatusOK
}

// Err returns the error behind the last failure status, or nil.
func (s *Stream) Err() error {
	if s.state == nil {
		return fmt.Errorf("%w: stream is not initialized", ErrStream)
	}
	return s.state.err
}

// Remaining returns the number of content bytes of the current entry that were not yet exposed.
func (s *Stream) Remaining() int64 {
	if s.state == nil || s.state.mode != modeContent {
		return 0
	}
	return s.state.remaining
}

// Inflate processes as much of NextIn as is available and legal and reports what is now available:
//   - StatusOK with Header newly set: a header was decoded; no content is exposed by this call.
//   - StatusOK with a non-empty NextOut: content bytes of the current entry.
//   - StatusOK otherwise: input was consumed (a partial header or block padding).
//   - StatusEntryEnd: the entry including its padding is drained and Header is cleared.
//   - StatusStreamEnd: two consecutive zero blocks were read. Further calls do nothing.
//   - StatusBufError: NextIn is empty and input is needed. Not fatal.
//
// Any other status is fatal; it is returned again by every call until Init.
func (s *Stream) Inflate() Status {
	st := s.state
	if st == nil {
		return StatusStreamError
	}
	switch st.mode {
	case modeFailed:
		return st.status
	case modeStreamEnd:
		return StatusStreamEnd
	}

	s.NextOut = nil
	st.err = nil
	switch st.mode {
	case modeHeader:
		return s.readHeader()
	case modeContent:
		return s.readContent()
	default:
		return s.skipPadding()
	}
}

// Finish declares that no more input follows.
// It returns StatusStreamEnd if the archive terminator was read and
// StatusDataError if the archive was cut short.
func (s *Stream) Finish() Status {
	st := s.state
	if st == nil {
		return StatusStreamError
	}
	switch st.mode {
	case modeFailed:
		return st.status
	case modeStreamEnd:
		return StatusStreamEnd
	case modeContent:
		return s.fail(fmt.Errorf("%w: input ended with %d content bytes missing", ErrData, st.remaining))
	case modePadding:
		if st.padding > 0 {
			return s.fail(fmt.Errorf("%w: input ended with %d padding bytes missing", ErrData, st.padding))
		}
	case modeHeader:
		if st.filled > 0 {
			return s.fail(fmt.Errorf("%w: input ended inside a header block after %d bytes", ErrData, st.filled))
		}
		if st.zeroBlocks == 1 {
			return s.fail(fmt.Errorf("%w: input ended after a single terminator block", ErrData))
		}
	}
	return s.fail(fmt.Errorf("%w: input ended before the archive terminator", ErrData))
}

func (s *Stream) readHeader() Status {
	st := s.state
	if len(s.NextIn) == 0 {
		return s.needInput()
	}
	n := copy(st.block[st.filled:], s.NextIn)
	s.consume(n)
	st.filled += n
	if st.filled < BlockSize {
		return StatusOK
	}
	st.filled = 0

	if IsZeroBlock(st.block) {
		st.zeroBlocks++
		if st.zeroBlocks < 2 {
			return StatusOK
		}
		st.mode = modeStreamEnd
		return StatusStreamEnd
	}

	hdr, err := DecodeHeader(st.block)
	if err != nil {
		return s.fail(err)
	}
	st.zeroBlocks = 0
	st.remaining = hdr.Size
	st.padding = padding(hdr.Size)
	st.mode = modeContent
	s.Header = hdr
	return StatusOK
}

func (s *Stream) readContent() Status {
	st := s.state
	if st.remaining == 0 {
		st.mode = modePadding
		return s.skipPadding()
	}
	if len(s.NextIn) == 0 {
		return s.needInput()
	}
	n := len(s.NextIn)
	if int64(n) > st.remaining {
		n = int(st.remaining)
	}
	s.NextOut = s.NextIn[:n:n]
	s.consume(n)
	s.TotalOut += uint64(n)
	st.remaining -= int64(n)
	if st.remaining == 0 {
		st.mode = modePadding
	}
	return StatusOK
}

func (s *Stream) skipPadding() Status {
	st := s.state
	if st.padding > 0 {
		if len(s.NextIn) == 0 {
			return s.needInput()
		}
		n := len(s.NextIn)
		if int64(n) > st.padding {
			n = int(st.padding)
		}
		s.consume(n)
		st.padding -= int64(n)
		if st.padding > 0 {
			return StatusOK
		}
	}
	st.mode = modeHeader
	s.Header = nil
	return StatusEntryEnd
}

func (s *Stream) consume(n int) {
	s.NextIn = s.NextIn[n:]
	s.TotalIn += uint64(n)
}

func (s *Stream) needInput() Status {
	s.state.err = fmt.Errorf("%w: input exhausted", ErrBuf)
	return StatusBufError
}

func (s *Stream) fail(err error) Status {
	st := s.state
	st.mode = modeFailed
	st.status = statusOf(err)
	st.err = err
	s.Header = nil
	s.NextOut = nil
	return st.status
}
