package fsys

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/block"
	"github.com/kristoffer-paulsson/angelos7/internal/btree"
	"github.com/kristoffer-paulsson/angelos7/internal/registry"
	"github.com/kristoffer-paulsson/angelos7/internal/stream"
)

// RootID is the sentinel id of the root directory entry; its own parent
// field equals itself, per spec.md §4.6.
var RootID = uuid.Nil

// RootName is the root entry's literal name.
const RootName = "root"

// Filesystem is the user-facing filesystem: two registries (entries,
// paths) layered over the stream manager, per spec.md §4.6.
type Filesystem struct {
	entries *btree.Tree
	paths   *btree.Tree
	streams *registry.Registry
	dev     *block.Device
}

func btreeKey(id uuid.UUID) btree.Key { return btree.Key(id) }

// pathKey computes UUIDv5(parent, name), the path tree's primary key.
func pathKey(parent uuid.UUID, name string) uuid.UUID {
	return uuid.NewSHA1(parent, []byte(name))
}

// truncateName applies spec.md §4.6's 256-UTF-8-byte truncation rule.
func truncateName(name string) string {
	b := []byte(name)
	if len(b) <= angelos7.MaxNameBytes {
		return name
	}
	return string(b[:angelos7.MaxNameBytes])
}

// splitPath normalizes leading/trailing slashes; the empty path and "/"
// both yield zero components (root).
func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// New wraps already-open entry/path trees, the stream registry, and the
// block device. Use Bootstrap instead when creating a brand-new archive.
func New(entries, paths *btree.Tree, streams *registry.Registry, dev *block.Device) *Filesystem {
	return &Filesystem{entries: entries, paths: paths, streams: streams, dev: dev}
}

// Bootstrap creates the root directory entry and its path record in a
// freshly formatted archive.
func Bootstrap(entries, paths *btree.Tree, streams *registry.Registry, dev *block.Device) (*Filesystem, error) {
	fs := New(entries, paths, streams, dev)
	now := time.Now().UTC()
	root := Entry{
		Type:     angelos7.EntryDirectory,
		ID:       RootID,
		Parent:   RootID,
		Created:  now,
		Modified: now,
		Name:     RootName,
	}
	if err := fs.putEntry(root, false); err != nil {
		return nil, err
	}
	key := pathKey(RootID, RootName)
	if err := fs.putPath(key, PathRecord{ID: RootID, Key: key}, false); err != nil {
		return nil, err
	}
	if err := fs.checkpointBoth(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *Filesystem) getEntry(id uuid.UUID) (Entry, bool, error) {
	var e Entry
	value, found, err := fs.entries.Get(btreeKey(id))
	if err != nil || !found {
		return e, found, err
	}
	if err := e.UnmarshalBinary(value); err != nil {
		return e, false, err
	}
	return e, true, nil
}

func (fs *Filesystem) putEntry(e Entry, replace bool) error {
	value, err := e.MarshalBinary()
	if err != nil {
		return err
	}
	return fs.entries.Insert(btreeKey(e.ID), value, replace)
}

func (fs *Filesystem) putPath(key uuid.UUID, p PathRecord, replace bool) error {
	value, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	return fs.paths.Insert(btreeKey(key), value, replace)
}

func (fs *Filesystem) getPath(key uuid.UUID) (PathRecord, bool, error) {
	var p PathRecord
	value, found, err := fs.paths.Get(btreeKey(key))
	if err != nil || !found {
		return p, found, err
	}
	if err := p.UnmarshalBinary(value); err != nil {
		return p, false, err
	}
	return p, true, nil
}

func (fs *Filesystem) checkpointBoth() error {
	if err := fs.entries.Checkpoint(); err != nil {
		return err
	}
	return fs.paths.Checkpoint()
}

// lookupChild resolves name inside directory parentID, returning its entry.
func (fs *Filesystem) lookupChild(parentID uuid.UUID, name string) (Entry, bool, error) {
	p, found, err := fs.getPath(pathKey(parentID, name))
	if err != nil || !found {
		return Entry{}, found, err
	}
	return fs.getEntry(p.ID)
}

// walk resolves a sequence of path components from root, requiring every
// resolved entry (including the last) to be a directory.
func (fs *Filesystem) walk(components []string) (Entry, error) {
	current, found, err := fs.getEntry(RootID)
	if err != nil {
		return Entry{}, err
	}
	if !found {
		return Entry{}, angelos7.Newf(angelos7.KindNotFound, "archive has no root entry")
	}
	for _, comp := range components {
		if current.Type != angelos7.EntryDirectory {
			return Entry{}, angelos7.Newf(angelos7.KindNotADirectory, "%q is not a directory", current.Name)
		}
		child, found, err := fs.lookupChild(current.ID, comp)
		if err != nil {
			return Entry{}, err
		}
		if !found {
			return Entry{}, angelos7.Newf(angelos7.KindNotFound, "%q not found", comp)
		}
		current = child
	}
	if current.Type != angelos7.EntryDirectory {
		return Entry{}, angelos7.Newf(angelos7.KindNotADirectory, "%q is not a directory", current.Name)
	}
	return current, nil
}

// resolve splits path into its parent directory and leaf name, resolves
// the parent, and looks up the leaf (which may be absent).
func (fs *Filesystem) resolve(path string) (parent Entry, leafName string, leaf Entry, leafFound bool, err error) {
	components := splitPath(path)
	if len(components) == 0 {
		// root itself: no parent/leaf split applies.
		root, found, rerr := fs.getEntry(RootID)
		if rerr != nil {
			return Entry{}, "", Entry{}, false, rerr
		}
		if !found {
			return Entry{}, "", Entry{}, false, angelos7.Newf(angelos7.KindNotFound, "archive has no root entry")
		}
		return root, RootName, root, true, nil
	}
	leafName = truncateName(components[len(components)-1])
	parent, err = fs.walk(components[:len(components)-1])
	if err != nil {
		return Entry{}, leafName, Entry{}, false, err
	}
	leaf, leafFound, err = fs.lookupChild(parent.ID, leafName)
	return parent, leafName, leaf, leafFound, err
}

// Open implements spec.md §4.6's open(path, mode): resolves an existing
// file, or creates one when mode grants write and none exists.
func (fs *Filesystem) Open(path string, mode string) (*stream.VFile, error) {
	parsedMode, err := stream.ParseMode(mode)
	if err != nil {
		return nil, err
	}
	parent, leafName, leaf, found, err := fs.resolve(path)
	if err != nil {
		return nil, err
	}
	if found {
		if leaf.Type == angelos7.EntryDirectory {
			return nil, angelos7.Newf(angelos7.KindIsADirectory, "%q is a directory", path)
		}
		meta, metaFound, err := fs.streams.Search(leaf.Stream)
		if err != nil {
			return nil, err
		}
		if !metaFound {
			return nil, angelos7.Newf(angelos7.KindIntegrityError, "entry %q references missing stream %s", path, leaf.Stream)
		}
		s, err := stream.Open(fs.dev, meta)
		if err != nil {
			return nil, err
		}
		return stream.NewVFile(path, s, parsedMode, fs.streams.RecycleBlocks)
	}

	if !parsedMode.Writable() {
		return nil, angelos7.Newf(angelos7.KindNotFound, "%q not found", path)
	}

	now := time.Now().UTC()
	s, err := stream.Create(fs.dev, uuid.New())
	if err != nil {
		return nil, err
	}
	if err := fs.streams.Register(s); err != nil {
		return nil, err
	}

	entry := Entry{
		Type:     angelos7.EntryFile,
		ID:       uuid.New(),
		Parent:   parent.ID,
		Stream:   s.Identity(),
		Created:  now,
		Modified: now,
		Name:     leafName,
	}
	if err := fs.putEntry(entry, false); err != nil {
		return nil, err
	}
	key := pathKey(parent.ID, leafName)
	if err := fs.putPath(key, PathRecord{ID: entry.ID, Key: key}, false); err != nil {
		return nil, err
	}
	if err := fs.checkpointBoth(); err != nil {
		return nil, err
	}
	return stream.NewVFile(path, s, parsedMode, fs.streams.RecycleBlocks)
}

// Mkdir creates a directory entry under path's parent.
func (fs *Filesystem) Mkdir(path string) error {
	parent, leafName, _, found, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if found {
		return angelos7.Newf(angelos7.KindAlreadyExists, "%q already exists", path)
	}
	now := time.Now().UTC()
	entry := Entry{
		Type:     angelos7.EntryDirectory,
		ID:       uuid.New(),
		Parent:   parent.ID,
		Created:  now,
		Modified: now,
		Name:     leafName,
	}
	if err := fs.putEntry(entry, false); err != nil {
		return err
	}
	key := pathKey(parent.ID, leafName)
	if err := fs.putPath(key, PathRecord{ID: entry.ID, Key: key}, false); err != nil {
		return err
	}
	return fs.checkpointBoth()
}

// Rename moves/renames src to dst. Per spec.md §4.6, atomicity on failure
// is not guaranteed; both trees are checkpointed together once the
// in-memory mutation completes.
func (fs *Filesystem) Rename(src, dst string) error {
	srcParent, srcLeaf, srcEntry, found, err := fs.resolve(src)
	if err != nil {
		return err
	}
	if !found {
		return angelos7.Newf(angelos7.KindNotFound, "%q not found", src)
	}
	dstParent, dstLeaf, _, dstFound, err := fs.resolve(dst)
	if err != nil {
		return err
	}
	if dstFound {
		return angelos7.Newf(angelos7.KindAlreadyExists, "%q already exists", dst)
	}

	if _, _, err := fs.paths.Remove(btreeKey(pathKey(srcParent.ID, srcLeaf))); err != nil {
		return err
	}

	srcEntry.Parent = dstParent.ID
	srcEntry.Name = dstLeaf
	srcEntry.Modified = time.Now().UTC()
	if err := fs.putEntry(srcEntry, true); err != nil {
		return err
	}
	newKey := pathKey(dstParent.ID, dstLeaf)
	if err := fs.putPath(newKey, PathRecord{ID: srcEntry.ID, Key: newKey}, false); err != nil {
		return err
	}
	return fs.checkpointBoth()
}

// Unlink removes a file entry, its path record, and its payload stream.
func (fs *Filesystem) Unlink(path string) error {
	return fs.remove(path, angelos7.EntryFile)
}

// Rmdir removes an empty directory entry and its path record.
func (fs *Filesystem) Rmdir(path string) error {
	return fs.remove(path, angelos7.EntryDirectory)
}

func (fs *Filesystem) remove(path string, want angelos7.EntryType) error {
	parent, leafName, entry, found, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if !found {
		return angelos7.Newf(angelos7.KindNotFound, "%q not found", path)
	}
	if entry.Type != want {
		if want == angelos7.EntryDirectory {
			return angelos7.Newf(angelos7.KindNotADirectory, "%q is not a directory", path)
		}
		return angelos7.Newf(angelos7.KindIsADirectory, "%q is a directory", path)
	}
	if entry.Type == angelos7.EntryDirectory {
		empty, err := fs.isEmptyDir(entry.ID)
		if err != nil {
			return err
		}
		if !empty {
			return angelos7.Newf(angelos7.KindDirectoryNotEmpty, "%q is not empty", path)
		}
	}

	if _, _, err := fs.paths.Remove(btreeKey(pathKey(parent.ID, leafName))); err != nil {
		return err
	}
	if _, _, err := fs.entries.Remove(btreeKey(entry.ID)); err != nil {
		return err
	}
	if entry.Type == angelos7.EntryFile {
		if err := fs.streams.Unregister(entry.Stream); err != nil {
			return err
		}
	}
	return fs.checkpointBoth()
}

func (fs *Filesystem) isEmptyDir(id uuid.UUID) (bool, error) {
	empty := true
	err := fs.entries.ForEach(func(_ btree.Key, value []byte) bool {
		var e Entry
		if err := e.UnmarshalBinary(value); err != nil {
			return true
		}
		if e.Parent == id && !e.Deleted && e.ID != id {
			empty = false
			return false
		}
		return true
	})
	return empty, err
}

// Listdir returns the live (non-deleted) entries directly under path, in
// entry-tree order.
func (fs *Filesystem) Listdir(path string) ([]Entry, error) {
	components := splitPath(path)
	dir, err := fs.walk(components)
	if err != nil {
		return nil, err
	}
	var out []Entry
	err = fs.entries.ForEach(func(_ btree.Key, value []byte) bool {
		var e Entry
		if uerr := e.UnmarshalBinary(value); uerr != nil {
			err = uerr
			return false
		}
		if e.Parent == dir.ID && !e.Deleted && e.ID != dir.ID {
			out = append(out, e)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stat returns path's entry record.
func (fs *Filesystem) Stat(path string) (Entry, error) {
	_, _, leaf, found, err := fs.resolve(path)
	if err != nil {
		return Entry{}, err
	}
	if !found {
		return Entry{}, angelos7.Newf(angelos7.KindNotFound, "%q not found", path)
	}
	return leaf, nil
}

// PathOf reconstructs the absolute path of an entry by walking its Parent
// chain up to the root. It only works for File and Directory entries, whose
// Parent field holds the containing directory's id; Link entries repurpose
// Parent to hold their target's id and are not reversible this way.
func (fs *Filesystem) PathOf(id uuid.UUID) (string, error) {
	if id == RootID {
		return "/", nil
	}
	var components []string
	for id != RootID {
		e, ok, err := fs.getEntry(id)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", angelos7.Newf(angelos7.KindNotFound, "entry %s not found", id)
		}
		components = append([]string{e.Name}, components...)
		id = e.Parent
	}
	return "/" + strings.Join(components, "/"), nil
}

// Chmod updates path's advisory permission bits.
func (fs *Filesystem) Chmod(path string, perms uint16) error {
	return fs.updateEntry(path, func(e *Entry) { e.Perms = perms })
}

// Chown updates path's advisory owner/user/group fields.
func (fs *Filesystem) Chown(path string, owner uuid.UUID, user, group string) error {
	return fs.updateEntry(path, func(e *Entry) {
		e.Owner = owner
		e.User = user
		e.Group = group
	})
}

func (fs *Filesystem) updateEntry(path string, mutate func(*Entry)) error {
	_, _, leaf, found, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if !found {
		return angelos7.Newf(angelos7.KindNotFound, "%q not found", path)
	}
	mutate(&leaf)
	leaf.Modified = time.Now().UTC()
	if err := fs.putEntry(leaf, true); err != nil {
		return err
	}
	return fs.entries.Checkpoint()
}

// Link and Symlink create a link entry at path whose Parent field is
// repurposed to hold the target entry's id, per spec.md §9's tie-break
// decision (see DESIGN.md Open Question 3). Both behave identically; two
// names are kept for call-site clarity with POSIX-familiar callers.
func (fs *Filesystem) Link(path, target string) error {
	return fs.link(path, target)
}

func (fs *Filesystem) Symlink(path, target string) error {
	return fs.link(path, target)
}

func (fs *Filesystem) link(path, target string) error {
	_, _, targetEntry, targetFound, err := fs.resolve(target)
	if err != nil {
		return err
	}
	if !targetFound {
		return angelos7.Newf(angelos7.KindNotFound, "link target %q not found", target)
	}
	parent, leafName, _, found, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if found {
		return angelos7.Newf(angelos7.KindAlreadyExists, "%q already exists", path)
	}
	now := time.Now().UTC()
	entry := Entry{
		Type:     angelos7.EntryLink,
		ID:       uuid.New(),
		Parent:   targetEntry.ID,
		Created:  now,
		Modified: now,
		Name:     leafName,
	}
	if err := fs.putEntry(entry, false); err != nil {
		return err
	}
	key := pathKey(parent.ID, leafName)
	if err := fs.putPath(key, PathRecord{ID: entry.ID, Key: key}, false); err != nil {
		return err
	}
	return fs.checkpointBoth()
}
