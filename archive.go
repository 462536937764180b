package angelos7

import (
	"os"

	"github.com/google/uuid"

	"github.com/kristoffer-paulsson/angelos7/internal/block"
	"github.com/kristoffer-paulsson/angelos7/internal/btree"
	"github.com/kristoffer-paulsson/angelos7/internal/fsys"
	"github.com/kristoffer-paulsson/angelos7/internal/header"
	"github.com/kristoffer-paulsson/angelos7/internal/registry"
	"github.com/kristoffer-paulsson/angelos7/internal/stream"
)

// Archive is an open encrypted single-file virtual archive: the block
// device, the stream registry, and the filesystem layer built over it, per
// spec.md §4.6's public surface.
type Archive struct {
	dev      *block.Device
	record   header.Record
	streams  header.Streams
	registry *registry.Registry
	entries  *btree.Tree
	paths    *btree.Tree
	fs       *fsys.Filesystem
}

// Create formats a brand-new archive at path, encrypted under key, and
// returns it open. It fails with KindAlreadyExists if path already exists.
func Create(path string, key [32]byte, fields HeaderFields) (*Archive, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, Newf(KindAlreadyExists, "%s already exists", path)
	}
	dev, err := block.Open(path, key)
	if err != nil {
		return nil, err
	}
	record, streams, err := header.Bootstrap(dev, fields)
	if err != nil {
		dev.Close()
		return nil, Wrap(KindIoError, err, "bootstrapping %s", path)
	}

	a, err := assemble(dev, record, streams, true)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return a, nil
}

// Open opens an existing archive at path, encrypted under key. If the file
// does not exist it is created and bootstrapped first (see Create, with empty
// header fields), so Open alone is sufficient for a first-run caller that
// does not need custom header fields.
func Open(path string, key [32]byte) (*Archive, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Create(path, key, HeaderFields{})
	}
	dev, err := block.Open(path, key)
	if err != nil {
		return nil, err
	}
	record, streams, err := header.Load(dev)
	if err != nil {
		dev.Close()
		return nil, Wrap(KindInvalidFormat, err, "loading header of %s", path)
	}
	a, err := assemble(dev, record, streams, false)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return a, nil
}

// assemble builds the registry and filesystem layers over already-open
// internal streams. fresh indicates a brand-new archive, whose entries/paths
// trees and root directory must still be created.
func assemble(dev *block.Device, record header.Record, streams header.Streams, fresh bool) (*Archive, error) {
	indexVFile, err := vfileOver(streams.Index)
	if err != nil {
		return nil, err
	}
	registryJournalVFile, err := vfileOver(streams.Journal)
	if err != nil {
		return nil, err
	}

	var registryTree *btree.Tree
	if fresh {
		registryTree, err = btree.Create(indexVFile, registryJournalVFile, stream.MetaSize)
	} else {
		registryTree, err = btree.Open(indexVFile, registryJournalVFile, stream.MetaSize)
	}
	if err != nil {
		return nil, err
	}
	streamRegistry := registry.New(registryTree, dev, streams.Trash)

	entriesVFile, err := vfileOver(streams.Entries)
	if err != nil {
		return nil, err
	}
	entriesJournalVFile, err := vfileOver(streams.EntriesJournal)
	if err != nil {
		return nil, err
	}
	pathsVFile, err := vfileOver(streams.Paths)
	if err != nil {
		return nil, err
	}
	pathsJournalVFile, err := vfileOver(streams.PathsJournal)
	if err != nil {
		return nil, err
	}

	var entriesTree, pathsTree *btree.Tree
	if fresh {
		entriesTree, err = btree.Create(entriesVFile, entriesJournalVFile, fsys.EntrySize)
	} else {
		entriesTree, err = btree.Open(entriesVFile, entriesJournalVFile, fsys.EntrySize)
	}
	if err != nil {
		return nil, err
	}
	if fresh {
		pathsTree, err = btree.Create(pathsVFile, pathsJournalVFile, fsys.PathRecordSize)
	} else {
		pathsTree, err = btree.Open(pathsVFile, pathsJournalVFile, fsys.PathRecordSize)
	}
	if err != nil {
		return nil, err
	}

	var filesystem *fsys.Filesystem
	if fresh {
		filesystem, err = fsys.Bootstrap(entriesTree, pathsTree, streamRegistry, dev)
	} else {
		filesystem = fsys.New(entriesTree, pathsTree, streamRegistry, dev)
	}
	if err != nil {
		return nil, err
	}

	a := &Archive{
		dev:      dev,
		record:   record,
		streams:  streams,
		registry: streamRegistry,
		entries:  entriesTree,
		paths:    pathsTree,
		fs:       filesystem,
	}
	if fresh {
		if err := a.flushHeader(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// vfileOver wraps s in a read/write VFile used as B+Tree page storage. The
// mode "r+" grants both read and write without truncating or appending,
// matching a tree's own random-access page I/O.
func vfileOver(s *stream.Stream) (*stream.VFile, error) {
	mode, err := stream.ParseMode("r+")
	if err != nil {
		return nil, err
	}
	return stream.NewVFile("<internal>", s, mode, nil)
}

// Open opens path inside the archive with the given mode ("r", "w", "a",
// "+", "x" and combinations), creating a new file entry when mode grants
// write and none exists.
func (a *Archive) Open(path string, mode string) (*stream.VFile, error) {
	return a.fs.Open(path, mode)
}

func (a *Archive) Mkdir(path string) error              { return a.fs.Mkdir(path) }
func (a *Archive) Rename(src, dst string) error         { return a.fs.Rename(src, dst) }
func (a *Archive) Unlink(path string) error             { return a.fs.Unlink(path) }
func (a *Archive) Rmdir(path string) error              { return a.fs.Rmdir(path) }
func (a *Archive) Listdir(path string) ([]fsys.Entry, error) { return a.fs.Listdir(path) }
func (a *Archive) Stat(path string) (fsys.Entry, error) { return a.fs.Stat(path) }
func (a *Archive) Chmod(path string, perms uint16) error { return a.fs.Chmod(path, perms) }

// Chown updates path's advisory owner/user/group fields.
func (a *Archive) Chown(path string, owner uuid.UUID, user, group string) error {
	return a.fs.Chown(path, owner, user, group)
}

func (a *Archive) Link(path, target string) error    { return a.fs.Link(path, target) }
func (a *Archive) Symlink(path, target string) error { return a.fs.Symlink(path, target) }

// PathOf reconstructs the absolute path of the entry identified by id.
func (a *Archive) PathOf(id uuid.UUID) (string, error) { return a.fs.PathOf(id) }

// Stats returns the archive-wide summary named in spec.md §6.2.
func (a *Archive) Stats() Stats {
	return Stats{
		Type:    "archive7",
		Role:    "archive",
		Use:     "virtual-filesystem",
		ID:      a.record.ID,
		Owner:   a.record.Owner,
		Domain:  a.record.Domain,
		Node:    a.record.Node,
		Created: a.record.Created,
		Title:   a.record.Title,
	}
}

// Close checkpoints every tree, flushes the header, and releases the
// device's lock.
func (a *Archive) Close() error {
	if err := a.entries.Checkpoint(); err != nil {
		return err
	}
	if err := a.entries.Close(); err != nil {
		return err
	}
	if err := a.paths.Checkpoint(); err != nil {
		return err
	}
	if err := a.paths.Close(); err != nil {
		return err
	}
	if err := a.registry.Close(); err != nil {
		return err
	}
	if err := a.flushHeader(); err != nil {
		return err
	}
	return a.dev.Close()
}

func (a *Archive) flushHeader() error {
	return header.Flush(a.dev, a.record, a.streams)
}
