// Package fuseadapter mounts an archive7 filesystem locally as a read-only
// FUSE mount, translating kernel inode operations onto the path-based
// filesystem API instead of the teacher's in-memory SquashFS union mount.
package fuseadapter

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"golang.org/x/xerrors"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/fsys"
	"github.com/kristoffer-paulsson/angelos7/internal/stream"
)

// Source is the subset of *angelos7.Archive's API the adapter drives.
type Source interface {
	Stat(path string) (fsys.Entry, error)
	Listdir(path string) ([]fsys.Entry, error)
	Open(path string, mode string) (*stream.VFile, error)
	PathOf(id uuid.UUID) (string, error)
}

// Mount mounts src read-only at mountpoint and returns the mounted file
// system; call Join on the result to block until it is unmounted.
func Mount(ctx context.Context, mountpoint string, src Source) (*fuse.MountedFileSystem, error) {
	fs := newFS(src)
	server := fuseutil.NewFileSystemServer(fs)
	mfs, err := fuse.Mount(mountpoint, server, &fuse.MountConfig{
		FSName:   "archive7",
		ReadOnly: true,
		Options: map[string]string{
			"allow_other": "",
		},
		EnableSymlinkCaching: true,
	})
	if err != nil {
		return nil, xerrors.Errorf("fuse.Mount: %w", err)
	}
	return mfs, nil
}

type archiveFS struct {
	fuseutil.NotImplementedFileSystem

	src Source

	mu        sync.Mutex
	nextInode fuseops.InodeID
	idForNode map[fuseops.InodeID]uuid.UUID
	nodeForID map[uuid.UUID]fuseops.InodeID

	handlesMu  sync.Mutex
	nextHandle fuseops.HandleID
	handles    map[fuseops.HandleID]*stream.VFile
}

func newFS(src Source) *archiveFS {
	fs := &archiveFS{
		src:       src,
		nextInode: fuseops.RootInodeID,
		idForNode: make(map[fuseops.InodeID]uuid.UUID),
		nodeForID: make(map[uuid.UUID]fuseops.InodeID),
		handles:   make(map[fuseops.HandleID]*stream.VFile),
	}
	fs.idForNode[fuseops.RootInodeID] = fsys.RootID
	fs.nodeForID[fsys.RootID] = fuseops.RootInodeID
	return fs
}

// inodeFor returns the stable inode for id, allocating one on first sight.
func (fs *archiveFS) inodeFor(id uuid.UUID) fuseops.InodeID {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if inode, ok := fs.nodeForID[id]; ok {
		return inode
	}
	fs.nextInode++
	inode := fs.nextInode
	fs.nodeForID[id] = inode
	fs.idForNode[inode] = id
	return inode
}

func (fs *archiveFS) idFor(inode fuseops.InodeID) (uuid.UUID, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	id, ok := fs.idForNode[inode]
	return id, ok
}

func (fs *archiveFS) pathFor(inode fuseops.InodeID) (string, error) {
	id, ok := fs.idFor(inode)
	if !ok {
		return "", fuse.ENOENT
	}
	return fs.src.PathOf(id)
}

func attributesFor(e fsys.Entry) fuseops.InodeAttributes {
	var mode os.FileMode
	switch e.Type {
	case angelos7.EntryDirectory:
		mode = os.ModeDir | os.FileMode(e.Perms)
	case angelos7.EntryLink:
		mode = os.ModeSymlink | os.FileMode(e.Perms)
	default:
		mode = os.FileMode(e.Perms)
	}
	return fuseops.InodeAttributes{
		Size:  e.Size,
		Nlink: 1,
		Mode:  mode,
		Atime: e.Modified,
		Mtime: e.Modified,
		Ctime: e.Modified,
	}
}

func (fs *archiveFS) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	op.BlockSize = angelos7.BlockSize
	op.IoSize = angelos7.DataSize
	return nil
}

func (fs *archiveFS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	parentPath, err := fs.pathFor(op.Parent)
	if err != nil {
		return err
	}
	e, err := fs.src.Stat(path.Join(parentPath, op.Name))
	if err != nil {
		var aerr *angelos7.Error
		if errors.As(err, &aerr) && aerr.Kind == angelos7.KindNotFound {
			return fuse.ENOENT
		}
		return err
	}
	op.Entry.Child = fs.inodeFor(e.ID)
	op.Entry.Attributes = attributesFor(e)
	return nil
}

func (fs *archiveFS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	p, err := fs.pathFor(op.Inode)
	if err != nil {
		return err
	}
	e, err := fs.src.Stat(p)
	if err != nil {
		return err
	}
	op.Attributes = attributesFor(e)
	return nil
}

func (fs *archiveFS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	return nil
}

func (fs *archiveFS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	dirPath, err := fs.pathFor(op.Inode)
	if err != nil {
		return err
	}
	children, err := fs.src.Listdir(dirPath)
	if err != nil {
		return err
	}

	entries := make([]fuseutil.Dirent, 0, len(children))
	for _, c := range children {
		typ := fuseutil.DT_File
		switch c.Type {
		case angelos7.EntryDirectory:
			typ = fuseutil.DT_Directory
		case angelos7.EntryLink:
			typ = fuseutil.DT_Link
		}
		entries = append(entries, fuseutil.Dirent{
			Offset: fuseops.DirOffset(len(entries) + 1),
			Inode:  fs.inodeFor(c.ID),
			Name:   c.Name,
			Type:   typ,
		})
	}

	if op.Offset > fuseops.DirOffset(len(entries)) {
		return fuse.EIO
	}
	for _, e := range entries[op.Offset:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], e)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (fs *archiveFS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	p, err := fs.pathFor(op.Inode)
	if err != nil {
		return err
	}
	v, err := fs.src.Open(p, "r")
	if err != nil {
		return err
	}
	fs.handlesMu.Lock()
	fs.nextHandle++
	handle := fs.nextHandle
	fs.handles[handle] = v
	fs.handlesMu.Unlock()
	op.Handle = handle
	return nil
}

func (fs *archiveFS) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	fs.handlesMu.Lock()
	v, ok := fs.handles[op.Handle]
	fs.handlesMu.Unlock()
	if !ok {
		return fuse.EIO
	}
	n, err := v.ReadAt(op.Dst, op.Offset)
	op.BytesRead = n
	if err == io.EOF {
		err = nil
	}
	return err
}

func (fs *archiveFS) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	fs.handlesMu.Lock()
	v, ok := fs.handles[op.Handle]
	delete(fs.handles, op.Handle)
	fs.handlesMu.Unlock()
	if !ok {
		return nil
	}
	return v.Close()
}

func (fs *archiveFS) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	id, ok := fs.idFor(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	p, err := fs.src.PathOf(id)
	if err != nil {
		return err
	}
	e, err := fs.src.Stat(p)
	if err != nil {
		return err
	}
	if e.Type != angelos7.EntryLink {
		return syscall.EINVAL
	}
	// Link entries repurpose Parent to hold the target entry's id, not a
	// path string; resolve it back to the path the kernel expects.
	target, err := fs.src.PathOf(e.Parent)
	if err != nil {
		return err
	}
	op.Target = target
	return nil
}
