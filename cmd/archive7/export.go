package main

import (
	"context"
	"flag"
	"os"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/cpioexport"
	"github.com/kristoffer-paulsson/angelos7/internal/oninterrupt"
	"github.com/kristoffer-paulsson/angelos7/internal/xdg"
)

const exportHelp = `archive7 export -key <keyfile> [-archive <path>] [subtree]

Export subtree (default "/") as a cpio "newc" stream on stdout.

Example:
  % archive7 export -key mykey.bin -archive backup.a7 /photos > photos.cpio
`

func cmdExport(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("export", flag.ExitOnError)
	keyPath := fset.String("key", "", "path to a 32-byte key file")
	archivePath := fset.String("archive", xdg.DefaultArchivePath, "path to the archive file")
	fset.Usage = usage(fset, exportHelp)
	fset.Parse(args)
	if *keyPath == "" {
		fset.Usage()
		return angelos7.Newf(angelos7.KindValueError, "export requires -key")
	}
	path := *archivePath
	subtree := "/"
	if fset.NArg() >= 1 {
		subtree = fset.Arg(0)
	}

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

	return cpioexport.Write(os.Stdout, a, subtree)
}
