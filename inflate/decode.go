package inflate

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

// DecodeHeader validates and decodes one complete header block.
// Malformed fields and checksum mismatches are reported as ErrData,
// unsupported ustar versions as ErrVersion.
// The checksum is verified before any other field is interpreted.
func DecodeHeader(block []byte) (*Header, error) {
	if len(block) != BlockSize {
		return nil, fmt.Errorf("%w: header block has %d bytes, want %d", ErrData, len(block), BlockSize)
	}

	declared, err := parseNumeric(block, "checksum", chksumOffset, chksumSize)
	if err != nil {
		return nil, err
	}
	if computed := Checksum(block); declared != uint64(computed) {
		return nil, fmt.Errorf("%w: checksum mismatch: header declares %o, computed %o", ErrData, declared, computed)
	}

	var d decoder
	hdr := &Header{
		Name:     parseString(block, nameOffset, nameSize),
		Mode:     d.u32(block, "mode", modeOffset, modeSize),
		UID:      d.u32(block, "uid", uidOffset, uidSize),
		GID:      d.u32(block, "gid", gidOffset, gidSize),
		Size:     d.size(block),
		ModTime:  time.Unix(d.i64(block, "mtime", mtimeOffset, mtimeSize), 0).UTC(),
		Checksum: uint32(declared),
		Typeflag: Typeflag(block[typeflagOffset]),
		Linkname: parseString(block, linknameOffset, linknameSize),
	}
	if d.err != nil {
		return nil, d.err
	}

	dialect, err := detectDialect(block)
	if err != nil {
		return nil, err
	}
	hdr.Dialect = dialect
	if dialect == DialectLegacy {
		return hdr, nil
	}

	ext := &Extended{
		Version:  string(block[versionOffset : versionOffset+versionSize]),
		Uname:    parseString(block, unameOffset, unameSize),
		Gname:    parseString(block, gnameOffset, gnameSize),
		Devmajor: d.u32(block, "devmajor", devmajorOffset, devmajorSize),
		Devminor: d.u32(block, "devminor", devminorOffset, devminorSize),
	}
	if d.err != nil {
		return nil, d.err
	}
	if dialect == DialectUSTAR {
		ext.Prefix = parseString(block, prefixOffset, prefixSize)
		if ext.Prefix != "" {
			hdr.Name = ext.Prefix + "/" + hdr.Name
		}
	}
	hdr.Ext = ext
	return hdr, nil
}

// Checksum computes the header checksum of block: the unsigned sum of all
// bytes with the checksum field itself counted as ASCII spaces.
func Checksum(block []byte) uint32 {
	var sum uint32
	for i, c := range block {
		if chksumOffset <= i && i < chksumOffset+chksumSize {
			c = ' '
		}
		sum += uint32(c)
	}
	return sum
}

// IsZeroBlock reports whether block consists only of NUL bytes.
func IsZeroBlock(block []byte) bool {
	for _, c := range block {
		if c != 0 {
			return false
		}
	}
	return true
}

func detectDialect(block []byte) (Dialect, error) {
	magic := block[magicOffset : magicOffset+magicSize]
	version := block[versionOffset : versionOffset+versionSize]
	switch {
	case string(magic) == magicUSTAR && string(version) == versionUSTAR:
		return DialectUSTAR, nil
	case string(magic) == magicGNU && string(version) == versionGNU:
		return DialectGNU, nil
	case bytes.HasPrefix(magic, []byte(magicPrefix)):
		return 0, fmt.Errorf("%w: magic %q version %q", ErrVersion, magic, version)
	}
	return DialectLegacy, nil
}

// decoder collects the first field error so a header can be decoded
// field by field without checking after every call.
type decoder struct {
	err error
}

func (d *decoder) numeric(block []byte, field string, offset, size int) uint64 {
	if d.err != nil {
		return 0
	}
	v, err := parseNumeric(block, field, offset, size)
	if err != nil {
		d.err = err
	}
	return v
}

func (d *decoder) u32(block []byte, field string, offset, size int) uint32 {
	v := d.numeric(block, field, offset, size)
	if v > 1<<32-1 && d.err == nil {
		d.err = fmt.Errorf("%w: %s field value %d overflows", ErrData, field, v)
	}
	return uint32(v)
}

func (d *decoder) i64(block []byte, field string, offset, size int) int64 {
	v := d.numeric(block, field, offset, size)
	if v > 1<<63-1 && d.err == nil {
		d.err = fmt.Errorf("%w: %s field value %d overflows", ErrData, field, v)
	}
	return int64(v)
}

// size decodes the 11 byte size field and checks its terminator byte.
func (d *decoder) size(block []byte) int64 {
	v := d.i64(block, "size", sizeOffset, sizeSize)
	if d.err != nil {
		return 0
	}
	if c := block[sizeTerminatorOffset]; c != 0 && c != ' ' {
		d.err = fmt.Errorf("%w: size field terminator is %q", ErrData, c)
		return 0
	}
	return v
}

func parseNumeric(block []byte, field string, offset, size int) (uint64, error) {
	v, err := parseOctal(block[offset : offset+size])
	if err != nil {
		return 0, fmt.Errorf("%w: %s field: %v", ErrData, field, err)
	}
	return v, nil
}

// parseOctal decodes an octal ASCII field.
// Leading spaces and NULs are skipped, digits run until a space or NUL,
// and only spaces and NULs may follow. An empty field is zero.
func parseOctal(field []byte) (uint64, error) {
	if len(field) > 0 && field[0]&0x80 != 0 {
		return 0, errors.New("base-256 encoding not supported")
	}
	i := 0
	for i < len(field) && isFieldTerminator(field[i]) {
		i++
	}
	var v uint64
	for ; i < len(field) && !isFieldTerminator(field[i]); i++ {
		c := field[i]
		if c < '0' || c > '7' {
			return 0, fmt.Errorf("invalid octal digit %q", c)
		}
		if v>>61 != 0 {
			return 0, errors.New("octal value overflows")
		}
		v = v<<3 | uint64(c-'0')
	}
	for ; i < len(field); i++ {
		if !isFieldTerminator(field[i]) {
			return 0, fmt.Errorf("unexpected byte %q after terminator", field[i])
		}
	}
	return v, nil
}

func isFieldTerminator(c byte) bool {
	return c == ' ' || c == 0
}

// parseString returns the field bytes up to the first NUL.
func parseString(block []byte, offset, size int) string {
	field := block[offset : offset+size]
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}
