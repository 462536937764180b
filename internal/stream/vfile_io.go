package stream

import (
	"io"

	"github.com/kristoffer-paulsson/angelos7"
)

// ReadAt reads len(p) bytes starting at off without disturbing the file's
// current position, following the corpus's basicstream ReadAt shape.
func (f *VFile) ReadAt(p []byte, off int64) (int, error) {
	saved := f.position
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := f.Read(p)
	if _, serr := f.Seek(saved, io.SeekStart); serr != nil && err == nil {
		err = serr
	}
	return n, err
}

// WriteAt writes p at off without disturbing the file's current position.
func (f *VFile) WriteAt(p []byte, off int64) (int, error) {
	saved := f.position
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := f.Write(p)
	if _, serr := f.Seek(saved, io.SeekStart); serr != nil && err == nil {
		err = serr
	}
	return n, err
}

// ReadFrom copies from r until EOF, writing into the stream at the current
// position, in DataSize-sized chunks.
func (f *VFile) ReadFrom(r io.Reader) (int64, error) {
	buf := make([]byte, angelos7.DataSize)
	var total int64
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			written, werr := f.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

// WriteTo copies the remainder of the stream (from the current position to
// end-of-stream) into w.
func (f *VFile) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, angelos7.DataSize)
	var total int64
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			written, werr := w.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

var (
	_ io.ReaderAt   = (*VFile)(nil)
	_ io.WriterAt   = (*VFile)(nil)
	_ io.ReaderFrom = (*VFile)(nil)
	_ io.WriterTo   = (*VFile)(nil)
)
