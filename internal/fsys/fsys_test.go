package fsys

import (
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/block"
	"github.com/kristoffer-paulsson/angelos7/internal/btree"
	"github.com/kristoffer-paulsson/angelos7/internal/registry"
	"github.com/kristoffer-paulsson/angelos7/internal/stream"
)

func newTestFS(t *testing.T) (*Filesystem, *block.Device) {
	t.Helper()
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "archive.a7")
	dev, err := block.Open(path, key)
	if err != nil {
		t.Fatalf("block.Open: %v", err)
	}
	t.Cleanup(func() { dev.Close() })

	mode, err := stream.ParseMode("r+")
	if err != nil {
		t.Fatalf("ParseMode: %v", err)
	}
	newVFile := func(name string) *stream.VFile {
		s, err := stream.Create(dev, uuid.New())
		if err != nil {
			t.Fatalf("stream.Create %s: %v", name, err)
		}
		v, err := stream.NewVFile(name, s, mode, nil)
		if err != nil {
			t.Fatalf("NewVFile %s: %v", name, err)
		}
		return v
	}

	trashStream, err := stream.CreateAt(dev, uuid.New(), angelos7.BlockTrashHead)
	if err != nil {
		t.Fatalf("CreateAt trash: %v", err)
	}
	indexTree, err := btree.Create(newVFile("<index>"), newVFile("<index-journal>"), stream.MetaSize)
	if err != nil {
		t.Fatalf("btree.Create index: %v", err)
	}
	reg := registry.New(indexTree, dev, trashStream)

	entriesTree, err := btree.Create(newVFile("<entries>"), newVFile("<entries-journal>"), EntrySize)
	if err != nil {
		t.Fatalf("btree.Create entries: %v", err)
	}
	pathsTree, err := btree.Create(newVFile("<paths>"), newVFile("<paths-journal>"), PathRecordSize)
	if err != nil {
		t.Fatalf("btree.Create paths: %v", err)
	}

	fs, err := Bootstrap(entriesTree, pathsTree, reg, dev)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return fs, dev
}

func TestFilesystemStatRoot(t *testing.T) {
	fs, _ := newTestFS(t)
	e, err := fs.Stat("/")
	if err != nil {
		t.Fatalf("Stat(/): %v", err)
	}
	if e.Type != angelos7.EntryDirectory {
		t.Fatalf("Stat(/).Type = %v, want EntryDirectory", e.Type)
	}
	if e.ID != RootID {
		t.Fatalf("Stat(/).ID = %v, want RootID", e.ID)
	}
}

func TestFilesystemMkdirAndListdir(t *testing.T) {
	fs, _ := newTestFS(t)
	if err := fs.Mkdir("/etc"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fs.Mkdir("/etc/conf.d"); err != nil {
		t.Fatalf("Mkdir nested: %v", err)
	}

	entries, err := fs.Listdir("/")
	if err != nil {
		t.Fatalf("Listdir(/): %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "etc" {
		t.Fatalf("Listdir(/) = %+v, want single entry named etc", entries)
	}

	nested, err := fs.Listdir("/etc")
	if err != nil {
		t.Fatalf("Listdir(/etc): %v", err)
	}
	if len(nested) != 1 || nested[0].Name != "conf.d" {
		t.Fatalf("Listdir(/etc) = %+v, want single entry named conf.d", nested)
	}
}

func TestFilesystemMkdirAlreadyExists(t *testing.T) {
	fs, _ := newTestFS(t)
	if err := fs.Mkdir("/etc"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	err := fs.Mkdir("/etc")
	var aerr *angelos7.Error
	if !errors.As(err, &aerr) || aerr.Kind != angelos7.KindAlreadyExists {
		t.Fatalf("Mkdir(duplicate) = %v, want KindAlreadyExists", err)
	}
}

func TestFilesystemOpenCreatesAndWritesFile(t *testing.T) {
	fs, _ := newTestFS(t)
	f, err := fs.Open("/greeting.txt", "w")
	if err != nil {
		t.Fatalf("Open(w): %v", err)
	}
	if _, err := f.Write([]byte("hello, archive")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := fs.Open("/greeting.txt", "r")
	if err != nil {
		t.Fatalf("Open(r): %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello, archive" {
		t.Fatalf("read back = %q, want %q", got, "hello, archive")
	}
}

func TestFilesystemOpenMissingReadOnlyFails(t *testing.T) {
	fs, _ := newTestFS(t)
	_, err := fs.Open("/nope.txt", "r")
	var aerr *angelos7.Error
	if !errors.As(err, &aerr) || aerr.Kind != angelos7.KindNotFound {
		t.Fatalf("Open(missing, r) = %v, want KindNotFound", err)
	}
}

func TestFilesystemOpenDirectoryFails(t *testing.T) {
	fs, _ := newTestFS(t)
	if err := fs.Mkdir("/etc"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	_, err := fs.Open("/etc", "r")
	var aerr *angelos7.Error
	if !errors.As(err, &aerr) || aerr.Kind != angelos7.KindIsADirectory {
		t.Fatalf("Open(directory) = %v, want KindIsADirectory", err)
	}
}

func TestFilesystemRename(t *testing.T) {
	fs, _ := newTestFS(t)
	if err := fs.Mkdir("/a"); err != nil {
		t.Fatalf("Mkdir /a: %v", err)
	}
	if err := fs.Mkdir("/b"); err != nil {
		t.Fatalf("Mkdir /b: %v", err)
	}
	f, err := fs.Open("/a/file.txt", "w")
	if err != nil {
		t.Fatalf("Open(w): %v", err)
	}
	f.Close()

	if err := fs.Rename("/a/file.txt", "/b/moved.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	if _, err := fs.Stat("/a/file.txt"); err == nil {
		t.Fatal("Stat(old path) succeeded, want error")
	}
	e, err := fs.Stat("/b/moved.txt")
	if err != nil {
		t.Fatalf("Stat(new path): %v", err)
	}
	if e.Name != "moved.txt" {
		t.Fatalf("Stat(new path).Name = %q, want %q", e.Name, "moved.txt")
	}
}

func TestFilesystemUnlinkAndRmdir(t *testing.T) {
	fs, _ := newTestFS(t)
	f, err := fs.Open("/solo.txt", "w")
	if err != nil {
		t.Fatalf("Open(w): %v", err)
	}
	f.Close()
	if err := fs.Unlink("/solo.txt"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, err := fs.Stat("/solo.txt"); err == nil {
		t.Fatal("Stat after Unlink succeeded, want error")
	}

	if err := fs.Mkdir("/empty"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fs.Rmdir("/empty"); err != nil {
		t.Fatalf("Rmdir: %v", err)
	}
}

func TestFilesystemRmdirNonEmptyFails(t *testing.T) {
	fs, _ := newTestFS(t)
	if err := fs.Mkdir("/full"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	f, err := fs.Open("/full/x.txt", "w")
	if err != nil {
		t.Fatalf("Open(w): %v", err)
	}
	f.Close()

	err = fs.Rmdir("/full")
	var aerr *angelos7.Error
	if !errors.As(err, &aerr) || aerr.Kind != angelos7.KindDirectoryNotEmpty {
		t.Fatalf("Rmdir(non-empty) = %v, want KindDirectoryNotEmpty", err)
	}
}

func TestFilesystemSymlinkAndPathOf(t *testing.T) {
	fs, _ := newTestFS(t)
	if err := fs.Mkdir("/real"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	f, err := fs.Open("/real/target.txt", "w")
	if err != nil {
		t.Fatalf("Open(w): %v", err)
	}
	f.Close()

	if err := fs.Symlink("/shortcut.txt", "/real/target.txt"); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	link, err := fs.Stat("/shortcut.txt")
	if err != nil {
		t.Fatalf("Stat(link): %v", err)
	}
	if link.Type != angelos7.EntryLink {
		t.Fatalf("Stat(link).Type = %v, want EntryLink", link.Type)
	}

	targetPath, err := fs.PathOf(link.Parent)
	if err != nil {
		t.Fatalf("PathOf(link target): %v", err)
	}
	if targetPath != "/real/target.txt" {
		t.Fatalf("PathOf(link target) = %q, want %q", targetPath, "/real/target.txt")
	}
}

func TestFilesystemPathOfRoot(t *testing.T) {
	fs, _ := newTestFS(t)
	p, err := fs.PathOf(RootID)
	if err != nil {
		t.Fatalf("PathOf(RootID): %v", err)
	}
	if p != "/" {
		t.Fatalf("PathOf(RootID) = %q, want %q", p, "/")
	}
}

func TestFilesystemPathOfNested(t *testing.T) {
	fs, _ := newTestFS(t)
	if err := fs.Mkdir("/a"); err != nil {
		t.Fatalf("Mkdir /a: %v", err)
	}
	if err := fs.Mkdir("/a/b"); err != nil {
		t.Fatalf("Mkdir /a/b: %v", err)
	}
	e, err := fs.Stat("/a/b")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	p, err := fs.PathOf(e.ID)
	if err != nil {
		t.Fatalf("PathOf: %v", err)
	}
	if p != "/a/b" {
		t.Fatalf("PathOf(/a/b) = %q, want %q", p, "/a/b")
	}
}

func TestFilesystemChmodChown(t *testing.T) {
	fs, _ := newTestFS(t)
	if err := fs.Mkdir("/dir"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fs.Chmod("/dir", 0o755); err != nil {
		t.Fatalf("Chmod: %v", err)
	}
	owner := uuid.New()
	if err := fs.Chown("/dir", owner, "alice", "staff"); err != nil {
		t.Fatalf("Chown: %v", err)
	}
	e, err := fs.Stat("/dir")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if e.Perms != 0o755 {
		t.Fatalf("Perms = %o, want %o", e.Perms, 0o755)
	}
	if e.Owner != owner || e.User != "alice" || e.Group != "staff" {
		t.Fatalf("ownership = %+v, want owner=%v user=alice group=staff", e, owner)
	}
}
