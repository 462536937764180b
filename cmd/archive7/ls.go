package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/oninterrupt"
	"github.com/kristoffer-paulsson/angelos7/internal/xdg"
)

const lsHelp = `archive7 ls -key <keyfile> [-archive <path>] [directory]

List the entries directly under directory (default "/") inside the archive.

Example:
  % archive7 ls -key mykey.bin -archive backup.a7 /photos
`

func cmdLs(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("ls", flag.ExitOnError)
	keyPath := fset.String("key", "", "path to a 32-byte key file")
	archivePath := fset.String("archive", xdg.DefaultArchivePath, "path to the archive file")
	fset.Usage = usage(fset, lsHelp)
	fset.Parse(args)
	if *keyPath == "" {
		fset.Usage()
		return angelos7.Newf(angelos7.KindValueError, "ls requires -key")
	}
	path := *archivePath
	dir := "/"
	if fset.NArg() >= 1 {
		dir = fset.Arg(0)
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

	entries, err := a.Listdir(dir)
	if err != nil {
		return err
	}
	// A human at a terminal gets an aligned, type-tagged listing; a pipe
	// gets plain tab-separated fields a script can cut/awk.
	if isatty.IsTerminal(os.Stdout.Fd()) {
		for _, e := range entries {
			fmt.Printf("%-10s %8d  %s\n", e.Type, e.Size, e.Name)
		}
		fmt.Printf("%d entries\n", len(entries))
	} else {
		for _, e := range entries {
			fmt.Printf("%s\t%s\t%d\n", e.Type, e.Name, e.Size)
		}
	}
	return nil
}
