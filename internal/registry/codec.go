package registry

import (
	"compress/bzip2"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/pgzip"

	"github.com/kristoffer-paulsson/angelos7"
)

// NewWriter wraps w with the compressor named by c. Selecting bzip2 fails
// fast with ErrUnsupportedCompression: no bzip2 compressor exists anywhere
// in the reachable corpus, only a decompressor (see DESIGN.md).
func NewWriter(w io.Writer, c angelos7.Compression) (io.WriteCloser, error) {
	switch c {
	case angelos7.CompressionNone:
		return nopWriteCloser{w}, nil
	case angelos7.CompressionZip:
		return flate.NewWriter(w, flate.DefaultCompression)
	case angelos7.CompressionGzip:
		return pgzip.NewWriter(w), nil
	case angelos7.CompressionBzip2:
		return nil, angelos7.Newf(angelos7.KindUnsupportedCompression, "bzip2: no compressor available, write rejected")
	default:
		return nil, angelos7.Newf(angelos7.KindValueError, "unknown compression codec %d", c)
	}
}

// NewReader wraps r with the decompressor named by c. bzip2 is supported
// read-only, via the standard library, for interoperability with archives
// written by another implementation.
func NewReader(r io.Reader, c angelos7.Compression) (io.ReadCloser, error) {
	switch c {
	case angelos7.CompressionNone:
		return io.NopCloser(r), nil
	case angelos7.CompressionZip:
		return flate.NewReader(r), nil
	case angelos7.CompressionGzip:
		return pgzip.NewReader(r)
	case angelos7.CompressionBzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	default:
		return nil, angelos7.Newf(angelos7.KindValueError, "unknown compression codec %d", c)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
