package main

import (
	"context"
	"flag"
	"os"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/oninterrupt"
	"github.com/kristoffer-paulsson/angelos7/internal/xdg"
)

const catHelp = `archive7 cat -key <keyfile> [-archive <path>] <file path>

Print a file's contents to stdout.

Example:
  % archive7 cat -key mykey.bin -archive backup.a7 /notes.txt
`

func cmdCat(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("cat", flag.ExitOnError)
	keyPath := fset.String("key", "", "path to a 32-byte key file")
	archivePath := fset.String("archive", xdg.DefaultArchivePath, "path to the archive file")
	fset.Usage = usage(fset, catHelp)
	fset.Parse(args)
	if fset.NArg() != 1 || *keyPath == "" {
		fset.Usage()
		return angelos7.Newf(angelos7.KindValueError, "cat requires -key and a file path")
	}
	path, filePath := *archivePath, fset.Arg(0)

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

	f, err := a.Open(filePath, "r")
	if err != nil {
		return err
	}
	_, err = f.WriteTo(os.Stdout)
	return err
}
