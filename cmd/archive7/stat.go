package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/oninterrupt"
	"github.com/kristoffer-paulsson/angelos7/internal/xdg"
)

const statHelp = `archive7 stat -key <keyfile> [-archive <path>] <entry path>

Print an entry's metadata.

Example:
  % archive7 stat -key mykey.bin -archive backup.a7 /photos
`

func cmdStat(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("stat", flag.ExitOnError)
	keyPath := fset.String("key", "", "path to a 32-byte key file")
	archivePath := fset.String("archive", xdg.DefaultArchivePath, "path to the archive file")
	fset.Usage = usage(fset, statHelp)
	fset.Parse(args)
	if fset.NArg() != 1 || *keyPath == "" {
		fset.Usage()
		return angelos7.Newf(angelos7.KindValueError, "stat requires -key and an entry path")
	}
	path, entryPath := *archivePath, fset.Arg(0)

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

	e, err := a.Stat(entryPath)
	if err != nil {
		return err
	}
	fmt.Printf("type:        %s\n", e.Type)
	fmt.Printf("id:          %s\n", e.ID)
	fmt.Printf("parent:      %s\n", e.Parent)
	fmt.Printf("name:        %s\n", e.Name)
	fmt.Printf("size:        %d\n", e.Size)
	fmt.Printf("compression: %s\n", e.Compression)
	fmt.Printf("perms:       %o\n", e.Perms)
	fmt.Printf("created:     %s\n", e.Created)
	fmt.Printf("modified:    %s\n", e.Modified)
	return nil
}
