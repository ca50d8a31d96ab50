// Package inflate implements a push-style streaming decoder for tar archives.
//
// A [Stream] is fed input in pieces of any size, down to a single byte, and
// never blocks or performs I/O. Each call to [Stream.Inflate] consumes as
// much input as it can and returns a [Status] telling the caller what is now
// available: a decoded [Header], a window of entry content, the end of an
// entry or the end of the archive.
//
// Both the legacy (V7) and the ustar header dialects are decoded, as well as
// the GNU variant of the ustar marker. Extended pax headers are recognized by
// their type flag and passed through as ordinary entries; their records are
// not interpreted. GNU base-256 numeric fields are rejected.
//
// A typical decode loop:
//
//	s := inflate.NewStream()
//	defer s.End()
//	for chunk := range chunks {
//	    s.NextIn = chunk
//	    for {
//	        switch status := s.Inflate(); status {
//	        case inflate.StatusOK:
//	            // inspect s.Header, consume s.NextOut
//	            continue
//	        case inflate.StatusEntryEnd:
//	            continue
//	        case inflate.StatusBufError:
//	            // chunk drained, fetch the next one
//	        case inflate.StatusStreamEnd:
//	            return nil
//	        default:
//	            return s.Err()
//	        }
//	        break
//	    }
//	}
package inflate
