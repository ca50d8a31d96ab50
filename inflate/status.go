package inflate

import (
	"errors"
	"strconv"
)

// Status is the result of a single call on a Stream.
// The numeric values match the status codes of historical tar stream libraries.
type Status int

const (
	// StatusOK means progress was made. Call again for more.
	StatusOK Status = 0
	// StatusStreamEnd means the archive terminator was read. No more entries follow.
	StatusStreamEnd Status = 1
	// StatusEntryEnd means the current entry (header, content and padding) is drained.
	StatusEntryEnd Status = 2
	// StatusErrno reports a failure of the environment feeding the stream.
	StatusErrno Status = -1
	// StatusStreamError reports a stream used out of lifecycle order.
	StatusStreamError Status = -2
	// StatusDataError reports a malformed header or truncated archive.
	StatusDataError Status = -3
	// StatusMemError reports an allocation failure.
	StatusMemError Status = -4
	// StatusBufError means no progress was possible with the supplied input.
	// It is not fatal: supply more input and call again.
	StatusBufError Status = -5
	// StatusVersionError reports an unsupported header dialect or version marker.
	StatusVersionError Status = -6
)

// Sentinel errors matching the failure statuses.
var (
	ErrErrno   = errors.New("inflate: environment error")
	ErrStream  = errors.New("inflate: stream used inconsistently")
	ErrData    = errors.New("inflate: malformed archive data")
	ErrMem     = errors.New("inflate: out of memory")
	ErrBuf     = errors.New("inflate: no progress possible")
	ErrVersion = errors.New("inflate: unsupported header version")
)

var statusNames = map[Status]string{
	StatusOK:           "ok",
	StatusStreamEnd:    "stream end",
	StatusEntryEnd:     "entry end",
	StatusErrno:        "errno",
	StatusStreamError:  "stream error",
	StatusDataError:    "data error",
	StatusMemError:     "memory error",
	StatusBufError:     "buffer error",
	StatusVersionError: "version error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// Err returns the sentinel error for a failure status, or nil.
func (s Status) Err() error {
	switch s {
	case StatusErrno:
		return ErrErrno
	case StatusStreamError:
		return ErrStream
	case StatusDataError:
		return ErrData
	case StatusMemError:
		return ErrMem
	case StatusBufError:
		return ErrBuf
	case StatusVersionError:
		return ErrVersion
	}
	return nil
}

// Fatal reports whether the status leaves the stream unusable until the next Init.
// StatusBufError is a failure status but not a fatal one.
func (s Status) Fatal() bool {
	return s < 0 && s != StatusBufError
}

// statusOf maps an error produced by the decoder back to its status.
func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrVersion):
		return StatusVersionError
	case errors.Is(err, ErrData):
		return StatusDataError
	case errors.Is(err, ErrBuf):
		return StatusBufError
	case errors.Is(err, ErrMem):
		return StatusMemError
	case errors.Is(err, ErrErrno):
		return StatusErrno
	}
	return StatusStreamError
}
