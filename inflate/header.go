package inflate

import (
	"strconv"
	"time"
)

// BlockSize is the alignment unit of a tar archive.
// Headers occupy exactly one block and content is padded to a multiple of it.
const BlockSize = 512

// Byte layout of a header block.
// Offsets and widths are fixed by the historical format.
const (
	nameOffset, nameSize         = 0, 100
	modeOffset, modeSize         = 100, 8
	uidOffset, uidSize           = 108, 8
	gidOffset, gidSize           = 116, 8
	sizeOffset, sizeSize         = 124, 11
	sizeTerminatorOffset         = 135
	mtimeOffset, mtimeSize       = 136, 12
	chksumOffset, chksumSize     = 148, 8
	typeflagOffset               = 156
	linknameOffset, linknameSize = 157, 100
	magicOffset, magicSize       = 257, 6
	versionOffset, versionSize   = 263, 2
	unameOffset, unameSize       = 265, 32
	gnameOffset, gnameSize       = 297, 32
	devmajorOffset, devmajorSize = 329, 8
	devminorOffset, devminorSize = 337, 8
	prefixOffset, prefixSize     = 345, 155
)

// Magic and version markers.
const (
	magicUSTAR, versionUSTAR = "ustar\x00", "00"
	magicGNU, versionGNU     = "ustar ", " \x00"
	magicPrefix              = "ustar"
)

// Typeflag is the one byte entry type discriminant.
// Values outside the known set are kept verbatim.
type Typeflag byte

// Known entry types.
const (
	TypeNormal          Typeflag = '0'
	TypeNormalLegacy    Typeflag = 0 // regular file in pre-POSIX archives
	TypeHardLink        Typeflag = '1'
	TypeSymLink         Typeflag = '2'
	TypeCharSpec        Typeflag = '3'
	TypeBlockSpec       Typeflag = '4'
	TypeDir             Typeflag = '5'
	TypeFIFO            Typeflag = '6'
	TypeContFile        Typeflag = '7'
	TypeGlobalExtHeader Typeflag = 'g'
	TypeExtHeader       Typeflag = 'x'

	// GNU long name entries hold the name of the following entry as content.
	TypeGNULongName Typeflag = 'L'
	TypeGNULongLink Typeflag = 'K'
)

var typeflagNames = map[Typeflag]string{
	TypeNormal:          "normal",
	TypeNormalLegacy:    "normal",
	TypeHardLink:        "hardlink",
	TypeSymLink:         "symlink",
	TypeCharSpec:        "char",
	TypeBlockSpec:       "block",
	TypeDir:             "dir",
	TypeFIFO:            "fifo",
	TypeContFile:        "contiguous",
	TypeGlobalExtHeader: "global-ext-header",
	TypeExtHeader:       "ext-header",
	TypeGNULongName:     "gnu-long-name",
	TypeGNULongLink:     "gnu-long-link",
}

func (t Typeflag) String() string {
	if name, ok := typeflagNames[t]; ok {
		return name
	}
	return "unknown(" + strconv.QuoteRune(rune(t)) + ")"
}

// Known reports whether t is one of the defined entry types.
func (t Typeflag) Known() bool {
	_, ok := typeflagNames[t]
	return ok
}

// IsRegular reports whether the entry content is file data.
func (t Typeflag) IsRegular() bool {
	return t == TypeNormal || t == TypeNormalLegacy || t == TypeContFile
}

// IsExtHeader reports whether the entry carries extended header metadata
// for following entries instead of file data.
func (t Typeflag) IsExtHeader() bool {
	return t == TypeExtHeader || t == TypeGlobalExtHeader
}

// IsGNULongName reports whether the entry carries a long name or long link
// name for the following entry.
func (t Typeflag) IsGNULongName() bool {
	return t == TypeGNULongName || t == TypeGNULongLink
}

// Dialect is the header field layout variant.
type Dialect int

const (
	// DialectLegacy is the original format. Only the fields up to the link name exist.
	DialectLegacy Dialect = iota
	// DialectUSTAR is the POSIX.1-1988 format with owner names, device numbers and a name prefix.
	DialectUSTAR
	// DialectGNU is the pre-POSIX GNU format. It shares owner names and device
	// numbers with USTAR but has no name prefix.
	DialectGNU
)

func (d Dialect) String() string {
	switch d {
	case DialectLegacy:
		return "legacy"
	case DialectUSTAR:
		return "ustar"
	case DialectGNU:
		return "gnu"
	}
	return "dialect(" + strconv.Itoa(int(d)) + ")"
}

// Header is a decoded header block. It is never modified after decoding.
type Header struct {
	// Name is the entry name. For USTAR headers with a prefix it is prefix + "/" + name.
	Name     string
	Mode     uint32
	UID      uint32
	GID      uint32
	Size     int64
	ModTime  time.Time
	Checksum uint32
	Typeflag Typeflag
	Linkname string
	Dialect  Dialect
	// Ext holds the fields of the USTAR and GNU dialects.
	// It is nil for legacy headers.
	Ext *Extended
}

// Extended holds the header fields that only exist outside the legacy dialect.
type Extended struct {
	Version  string
	Uname    string
	Gname    string
	Devmajor uint32
	Devminor uint32
	// Prefix is the raw name prefix. Always empty for DialectGNU.
	Prefix string
}

// padding returns the number of bytes needed to pad size up to the next block boundary.
func padding(size int64) int64 {
	return -size & (BlockSize - 1)
}
