package main

import (
	"context"
	"flag"

	"github.com/google/uuid"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/oninterrupt"
	"github.com/kristoffer-paulsson/angelos7/internal/xdg"
)

const createHelp = `archive7 create -key <keyfile> [-archive <path>] [-title <title>]

Create a new archive7 file at -archive (default $ANGELOS7_ARCHIVE or
$HOME/.angelos7/archive.a7), sealed under the 32-byte key read from
<keyfile>.

Example:
  % archive7 create -key mykey.bin -title "backups" -archive backup.a7
`

func cmdCreate(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("create", flag.ExitOnError)
	keyPath := fset.String("key", "", "path to a 32-byte key file")
	archivePath := fset.String("archive", xdg.DefaultArchivePath, "path to the archive file")
	title := fset.String("title", "", "archive title (up to 256 bytes)")
	fset.Usage = usage(fset, createHelp)
	fset.Parse(args)
	if *keyPath == "" {
		fset.Usage()
		return angelos7.Newf(angelos7.KindValueError, "create requires -key")
	}
	path := *archivePath

	key, err := loadKey(*keyPath)
	if err != nil {
		return err
	}

	a, err := angelos7.Create(path, key, angelos7.HeaderFields{
		Owner:  uuid.New(),
		Domain: uuid.New(),
		Node:   uuid.New(),
		Title:  *title,
	})
	if err != nil {
		return err
	}
	oninterrupt.Register(func() { a.Close() })
	return a.Close()
}
