package block

import (
	"os"

	"github.com/google/renameio"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/trace"
)

// Device presents a host file as an indexable array of sealed blocks. It
// holds the exclusive whole-file advisory lock for as long as it is open.
type Device struct {
	f      *os.File
	key    [32]byte
	blocks int64 // cached block count
}

// Open acquires an exclusive advisory lock on path and returns a Device over
// it. If the file does not exist, it is created and initialized with
// ReservedBlocks empty blocks via Create. If the file's byte length is not a
// multiple of BlockSize, Open fails with KindInvalidFormat.
func Open(path string, key [32]byte) (*Device, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		if cerr := Create(path, key); cerr != nil {
			return nil, cerr
		}
	} else if err != nil {
		return nil, angelos7.Wrap(angelos7.KindIoError, err, "stat %s", path)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, angelos7.Wrap(angelos7.KindIoError, err, "open %s", path)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, angelos7.Wrap(angelos7.KindLocked, err, "%s is held by another process", path)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, angelos7.Wrap(angelos7.KindIoError, err, "stat %s", path)
	}
	if fi.Size()%angelos7.BlockSize != 0 {
		f.Close()
		return nil, angelos7.Newf(angelos7.KindInvalidFormat, "%s: length %d is not a multiple of %d", path, fi.Size(), angelos7.BlockSize)
	}

	d := &Device{f: f, key: key, blocks: fi.Size() / angelos7.BlockSize}
	return d, nil
}

// Create writes a brand-new archive file at path containing ReservedBlocks
// empty, sealed blocks, atomically (via renameio) so a process crash during
// creation never leaves a half-written file visible at path.
func Create(path string, key [32]byte) error {
	pf, err := renameio.TempFile("", path)
	if err != nil {
		return angelos7.Wrap(angelos7.KindIoError, err, "creating temp file for %s", path)
	}
	defer pf.Cleanup()

	for i := 0; i < angelos7.ReservedBlocks; i++ {
		b := NewHead(nilUUID)
		plaintext, err := b.MarshalBinary()
		if err != nil {
			return err
		}
		sealed, err := seal(&key, plaintext)
		if err != nil {
			return err
		}
		if _, err := pf.Write(sealed[:]); err != nil {
			return angelos7.Wrap(angelos7.KindIoError, err, "writing reserved block %d", i)
		}
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return angelos7.Wrap(angelos7.KindIoError, err, "finalizing %s", path)
	}
	return nil
}

// Size returns the current number of blocks in the device.
func (d *Device) Size() int64 {
	return d.blocks
}

// NewBlock appends a freshly sealed empty block at end-of-file and returns
// its index. SaveBlock itself advances the block count; the caller
// overwrites this placeholder with real content at the same index.
func (d *Device) NewBlock() (uint32, error) {
	idx := uint32(d.blocks)
	b := NewHead(nilUUID)
	if err := d.SaveBlock(idx, b); err != nil {
		return 0, err
	}
	return idx, nil
}

// LoadBlock reads and unseals the block at index i.
func (d *Device) LoadBlock(i uint32) (Block, error) {
	ev := trace.Block("load", i)
	defer ev.Done()
	var b Block
	if int64(i) >= d.blocks {
		return b, angelos7.Newf(angelos7.KindOutOfBounds, "block %d >= size %d", i, d.blocks)
	}
	sealed := make([]byte, angelos7.BlockSize)
	if _, err := d.f.ReadAt(sealed, int64(i)*angelos7.BlockSize); err != nil {
		return b, angelos7.Wrap(angelos7.KindIoError, err, "reading block %d", i)
	}
	plaintext, err := unseal(&d.key, sealed)
	if err != nil {
		return b, err
	}
	if err := b.UnmarshalBinary(plaintext); err != nil {
		return b, angelos7.Wrap(angelos7.KindInvalidFormat, err, "decoding block %d", i)
	}
	if !b.VerifyDigest() {
		return b, angelos7.Newf(angelos7.KindIntegrityError, "block %d: digest mismatch", i)
	}
	return b, nil
}

// SaveBlock re-seals and writes block b at device index i, then flushes and
// fsyncs. i is the caller's device position, trusted as given: the on-disk
// block layout (spec.md §6.1) carries only b.Index, the block's ordinal
// within its own stream, which has no relation to i. i may address an
// existing block or the next one to append (i == d.blocks), in which case
// the block count advances.
func (d *Device) SaveBlock(i uint32, b Block) error {
	ev := trace.Block("save", i)
	defer ev.Done()
	if int64(i) > d.blocks {
		return angelos7.Newf(angelos7.KindOutOfBounds, "block %d beyond current size %d", i, d.blocks)
	}
	plaintext, err := b.MarshalBinary()
	if err != nil {
		return err
	}
	sealed, err := seal(&d.key, plaintext)
	if err != nil {
		return err
	}
	if _, err := d.f.WriteAt(sealed[:], int64(i)*angelos7.BlockSize); err != nil {
		return angelos7.Wrap(angelos7.KindIoError, err, "writing block %d", i)
	}
	if err := d.f.Sync(); err != nil {
		return angelos7.Wrap(angelos7.KindIoError, err, "fsync after writing block %d", i)
	}
	if int64(i) == d.blocks {
		d.blocks++
	}
	return nil
}

// Close flushes, fsyncs, releases the advisory lock, and closes the file.
func (d *Device) Close() error {
	if err := d.f.Sync(); err != nil {
		return angelos7.Wrap(angelos7.KindIoError, err, "final sync")
	}
	if err := unix.Flock(int(d.f.Fd()), unix.LOCK_UN); err != nil {
		return angelos7.Wrap(angelos7.KindIoError, err, "releasing lock")
	}
	if err := d.f.Close(); err != nil {
		return angelos7.Wrap(angelos7.KindIoError, err, "closing file")
	}
	return nil
}

// nilUUID is the zero UUID used for reserved bootstrap blocks before their
// owning stream is known.
var nilUUID uuid.UUID
