package stream

import (
	"io"
	"strings"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/block"
)

// Mode is a parsed open mode: some subset of {a, r, w, x, +} with no
// repeats, per spec.md §4.3.
type Mode struct {
	read     bool
	write    bool
	append   bool
	truncate bool
	exclusive bool
}

// ParseMode parses a mode string. Invalid combinations (unknown runes,
// repeats, or a mode that grants neither read nor write) fail with
// KindValueError.
func ParseMode(s string) (Mode, error) {
	var m Mode
	seen := map[rune]bool{}
	for _, r := range s {
		if seen[r] {
			return m, angelos7.Newf(angelos7.KindValueError, "mode %q: repeated flag %q", s, r)
		}
		seen[r] = true
		switch r {
		case 'a':
			m.write = true
			m.append = true
		case 'r':
			m.read = true
		case 'w':
			m.write = true
			m.truncate = true
		case 'x':
			m.write = true
			m.exclusive = true
		case '+':
			// adds the opposite capability; resolved below once the base
			// flag is known.
		default:
			return m, angelos7.Newf(angelos7.KindValueError, "mode %q: unknown flag %q", s, r)
		}
	}
	if strings.ContainsRune(s, '+') {
		if m.read && !m.write {
			m.write = true
		} else if m.write && !m.read {
			m.read = true
		} else if !m.read && !m.write {
			return m, angelos7.Newf(angelos7.KindValueError, "mode %q: '+' needs a base mode", s)
		}
	}
	if !m.read && !m.write {
		return m, angelos7.Newf(angelos7.KindValueError, "mode %q: grants neither read nor write", s)
	}
	return m, nil
}

func (m Mode) Readable() bool  { return m.read }
func (m Mode) Writable() bool  { return m.write }
func (m Mode) Append() bool    { return m.append }
func (m Mode) Truncate() bool  { return m.truncate }
func (m Mode) Exclusive() bool { return m.exclusive }

// VFile is a byte-oriented random-access view over a Stream.
type VFile struct {
	Name string
	mode Mode

	s             *Stream
	position      int64
	offsetInBlock int64
	onRecycle     func([]block.Positioned) error
}

// NewVFile wraps s in a VFile opened with the given mode. onRecycle is
// forwarded to Stream.Truncate whenever the file object shortens the
// stream (see DESIGN.md Open Question 2).
func NewVFile(name string, s *Stream, mode Mode, onRecycle func([]block.Positioned) error) (*VFile, error) {
	f := &VFile{Name: name, mode: mode, s: s, onRecycle: onRecycle}
	if mode.Truncate() {
		zeroSize := int64(0)
		if err := f.Truncate(&zeroSize); err != nil {
			return nil, err
		}
	}
	if mode.Append() {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *VFile) Readable() bool  { return f.mode.Readable() }
func (f *VFile) Writable() bool  { return f.mode.Writable() }
func (f *VFile) Seekable() bool  { return true }
func (f *VFile) Mode() Mode      { return f.mode }

// end is the stream's current used byte length.
func (f *VFile) end() int64 { return int64(f.s.meta.Length) }

// Tell returns the current stream position.
func (f *VFile) Tell() int64 { return f.position }

// Seek computes the absolute target offset and winds the underlying stream
// to the containing block. If winding fails the file's position is left
// unchanged and the old position is returned alongside the error.
func (f *VFile) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = f.position + offset
	case io.SeekEnd:
		target = f.end() + offset
	default:
		return f.position, angelos7.Newf(angelos7.KindValueError, "invalid whence %d", whence)
	}
	if target < 0 {
		return f.position, angelos7.Newf(angelos7.KindValueError, "seek to negative offset %d", target)
	}

	targetBlock := uint32(0)
	if target > 0 {
		targetBlock = uint32((target) / angelos7.DataSize)
		if target%angelos7.DataSize == 0 && target == f.end() && f.end() > 0 {
			// seeking exactly to end-of-stream on a block boundary stays on
			// the last existing block rather than winding past it.
			targetBlock = uint32((target - 1) / angelos7.DataSize)
		}
	}
	if f.s.meta.Count > 0 && targetBlock < f.s.meta.Count {
		if err := f.s.Wind(targetBlock); err != nil {
			return f.position, err
		}
	} else if target != 0 {
		// Seeking past the end of an existing chain is allowed; the first
		// write will extend the stream to reach it (per spec.md §4.3).
		if f.s.meta.Count > 0 {
			if err := f.s.Wind(f.s.meta.Count - 1); err != nil {
				return f.position, err
			}
		}
	}

	f.position = target
	f.offsetInBlock = target % angelos7.DataSize
	return f.position, nil
}

// Read copies into buf starting at the current position, advancing the
// stream block-by-block as needed, and stops at end-of-stream.
func (f *VFile) Read(buf []byte) (int, error) {
	if !f.Readable() {
		return 0, angelos7.Newf(angelos7.KindValueError, "file not opened for reading")
	}
	if len(buf) == 0 {
		return 0, nil
	}
	if f.position >= f.end() {
		return 0, io.EOF
	}
	total := 0
	for total < len(buf) && f.position < f.end() {
		if f.s.meta.Count == 0 {
			break
		}
		if err := f.ensurePositioned(); err != nil {
			return total, err
		}
		payload := f.s.CurrentPayload()
		avail := angelos7.DataSize - int(f.offsetInBlock)
		remaining := int(f.end() - f.position)
		n := avail
		if remaining < n {
			n = remaining
		}
		if len(buf)-total < n {
			n = len(buf) - total
		}
		copy(buf[total:total+n], payload[f.offsetInBlock:int(f.offsetInBlock)+n])
		total += n
		f.position += int64(n)
		f.offsetInBlock += int64(n)
		if f.offsetInBlock >= angelos7.DataSize && f.position < f.end() {
			if ok, err := f.s.Next(); err != nil {
				return total, err
			} else if !ok {
				break
			}
			f.offsetInBlock = 0
		}
	}
	if total == 0 {
		return 0, io.EOF
	}
	return total, nil
}

// Write copies from p into the stream at the current position, extending
// the stream (and zero-filling any seek gap) as needed.
func (f *VFile) Write(p []byte) (int, error) {
	if !f.Writable() {
		return 0, angelos7.Newf(angelos7.KindValueError, "file not opened for writing")
	}
	if f.mode.Append() {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			return 0, err
		}
	}
	if gap := f.position - f.end(); gap > 0 {
		if err := f.zeroFillGap(gap); err != nil {
			return 0, err
		}
	}

	if f.s.meta.Count == 0 {
		return 0, angelos7.Newf(angelos7.KindValueError, "write to a stream with no blocks")
	}

	total := 0
	for total < len(p) {
		if err := f.ensurePositioned(); err != nil {
			return total, err
		}
		payload := f.s.CurrentPayload()
		avail := angelos7.DataSize - int(f.offsetInBlock)
		n := avail
		if len(p)-total < n {
			n = len(p) - total
		}
		copy(payload[f.offsetInBlock:int(f.offsetInBlock)+n], p[total:total+n])
		f.s.SetCurrentPayload(payload)
		total += n
		f.position += int64(n)
		f.offsetInBlock += int64(n)
		if f.position > f.end() {
			f.s.meta.Length = uint64(f.position)
		}
		if f.offsetInBlock >= angelos7.DataSize {
			if ok, err := f.s.Extend(); err != nil {
				return total, err
			} else if !ok {
				if ok2, err2 := f.s.Next(); err2 != nil {
					return total, err2
				} else if !ok2 {
					break
				}
			}
			f.offsetInBlock = 0
		}
	}
	return total, nil
}

// zeroFillGap writes n zero bytes at the current end-of-stream position,
// extending the chain as needed, implementing spec.md §4.6's
// "writing into a seek-gap fills the intervening bytes with zero".
func (f *VFile) zeroFillGap(n int64) error {
	savedPos := f.position
	if _, err := f.Seek(f.end(), io.SeekStart); err != nil {
		return err
	}
	zeros := make([]byte, angelos7.DataSize)
	remaining := n
	for remaining > 0 {
		chunk := int64(len(zeros))
		if remaining < chunk {
			chunk = remaining
		}
		written, err := f.Write(zeros[:chunk])
		if err != nil {
			return err
		}
		remaining -= int64(written)
	}
	f.position = savedPos
	f.offsetInBlock = f.position % angelos7.DataSize
	return f.s.Wind(uint32(f.position / angelos7.DataSize))
}

// ensurePositioned winds the stream to the block containing f.position if
// it isn't already there.
func (f *VFile) ensurePositioned() error {
	want := uint32(f.position / angelos7.DataSize)
	if f.s.Index() == want {
		return nil
	}
	return f.s.Wind(want)
}

// Truncate resizes the stream to size (or, if size is nil, to the current
// position). The file pointer is left where it is unless it lay beyond the
// new size, in which case it moves back to the new end.
func (f *VFile) Truncate(size *int64) error {
	if !f.Writable() {
		return angelos7.Newf(angelos7.KindValueError, "file not opened for writing")
	}
	target := f.position
	if size != nil {
		target = *size
	}
	if target < 0 {
		return angelos7.Newf(angelos7.KindValueError, "truncate to negative size %d", target)
	}
	if f.s.meta.Count == 0 {
		return nil
	}
	if err := f.s.Truncate(uint64(target), f.onRecycle); err != nil {
		return err
	}
	if f.position > target {
		f.position = target
	}
	if f.s.meta.Count > 0 {
		f.offsetInBlock = f.position % angelos7.DataSize
		return f.s.Wind(uint32(f.position / angelos7.DataSize))
	}
	return nil
}

// Flush writes the current block through to the block device.
func (f *VFile) Flush() error {
	return f.s.Save(false)
}

// Close flushes pending changes. The VFile must not be used afterwards.
func (f *VFile) Close() error {
	return f.Flush()
}

// Length returns the stream's current used byte length.
func (f *VFile) Length() int64 { return f.end() }

