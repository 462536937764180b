package angelos7

import (
	"time"

	"github.com/google/uuid"
)

// Compression identifies the codec applied to a stream's payload before it
// is chained into blocks.
type Compression uint16

const (
	CompressionNone Compression = iota
	CompressionZip
	CompressionGzip
	CompressionBzip2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZip:
		return "zip"
	case CompressionGzip:
		return "gzip"
	case CompressionBzip2:
		return "bzip2"
	default:
		return "unknown"
	}
}

// EntryType is the type tag of a directory entry record.
type EntryType uint8

const (
	EntryFile EntryType = iota
	EntryLink
	EntryDirectory
)

func (t EntryType) String() string {
	switch t {
	case EntryFile:
		return "file"
	case EntryLink:
		return "link"
	case EntryDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Stats is the archive-wide summary returned by Archive.Stats, matching the
// programmatic API surface named in SPEC_FULL.md §6.
type Stats struct {
	Type    string
	Role    string
	Use     string
	ID      uuid.UUID
	Owner   uuid.UUID
	Domain  uuid.UUID
	Node    uuid.UUID
	Created time.Time
	Title   string
}

// HeaderFields are the caller-provided identity fields written into the
// archive header on Create.
type HeaderFields struct {
	Owner  uuid.UUID
	Domain uuid.UUID
	Node   uuid.UUID
	Title  string
}
