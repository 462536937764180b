// Package cpioexport walks an archive7 directory subtree and serializes it
// to a cpio "newc" stream, for handing archive contents to tools that
// expect a conventional cpio archive. There is no import path back: the
// entry/path trees remain the only source of truth for an open archive.
package cpioexport

import (
	"io"
	"path"
	"strings"

	"github.com/cavaliercoder/go-cpio"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/fsys"
	"github.com/kristoffer-paulsson/angelos7/internal/stream"
)

// Source is the subset of *angelos7.Archive this package needs, so it can
// be exercised against a fake in tests without opening a real archive.
type Source interface {
	Stat(path string) (fsys.Entry, error)
	Listdir(path string) ([]fsys.Entry, error)
	Open(path string, mode string) (*stream.VFile, error)
}

// Write walks root (and everything beneath it) and writes a cpio "newc"
// stream to w. Directories are written before their children; symlink
// entries are written with their target entry's id as their link payload,
// since archive7 link entries do not carry a separate target-path string.
func Write(w io.Writer, src Source, root string) error {
	cw := cpio.NewWriter(w)
	defer cw.Close()
	return walk(cw, src, root)
}

func walk(cw *cpio.Writer, src Source, dirPath string) error {
	entry, err := src.Stat(dirPath)
	if err != nil {
		return err
	}
	name := strings.TrimPrefix(dirPath, "/")
	if name == "" {
		name = "."
	}

	switch entry.Type {
	case angelos7.EntryDirectory:
		if name != "." {
			if err := cw.WriteHeader(&cpio.Header{
				Name: name + "/",
				Mode: cpio.ModeDir | cpio.FileMode(entry.Perms),
			}); err != nil {
				return err
			}
		}
		children, err := src.Listdir(dirPath)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := walk(cw, src, path.Join(dirPath, child.Name)); err != nil {
				return err
			}
		}
		return nil
	case angelos7.EntryLink:
		target := entry.Parent.String()
		if err := cw.WriteHeader(&cpio.Header{
			Name: name,
			Mode: cpio.ModeSymlink | cpio.FileMode(entry.Perms),
			Size: int64(len(target)),
		}); err != nil {
			return err
		}
		_, err := io.WriteString(cw, target)
		return err
	default:
		f, err := src.Open(dirPath, "r")
		if err != nil {
			return err
		}
		if err := cw.WriteHeader(&cpio.Header{
			Name: name,
			Mode: cpio.FileMode(entry.Perms),
			Size: f.Length(),
		}); err != nil {
			return err
		}
		_, err = io.Copy(cw, f)
		return err
	}
}
