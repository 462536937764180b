package main

import (
	"context"
	"flag"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/fuseadapter"
	"github.com/kristoffer-paulsson/angelos7/internal/oninterrupt"
	"github.com/kristoffer-paulsson/angelos7/internal/xdg"
)

const mountHelp = `archive7 mount -key <keyfile> [-archive <path>] <mountpoint>

Mount the archive read-only as a local FUSE file system at mountpoint,
blocking until it is unmounted (e.g. with fusermount -u).

Example:
  % archive7 mount -key mykey.bin -archive backup.a7 /mnt/backup
`

func cmdMount(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("mount", flag.ExitOnError)
	keyPath := fset.String("key", "", "path to a 32-byte key file")
	archivePath := fset.String("archive", xdg.DefaultArchivePath, "path to the archive file")
	fset.Usage = usage(fset, mountHelp)
	fset.Parse(args)
	if fset.NArg() != 1 || *keyPath == "" {
		fset.Usage()
		return angelos7.Newf(angelos7.KindValueError, "mount requires -key and a mountpoint")
	}
	path, mountpoint := *archivePath, fset.Arg(0)

	key, err := loadKey(*keyPath)
	if err != nil {
		return err
	}
	a, err := angelos7.Open(path, key)
	if err != nil {
		return err
	}
	defer a.Close()
	oninterrupt.Register(func() { a.Close() })

	mfs, err := fuseadapter.Mount(ctx, mountpoint, a)
	if err != nil {
		return err
	}
	return mfs.Join(ctx)
}
