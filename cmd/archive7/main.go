// Command archive7 creates, inspects, and extracts archive7 virtual
// archives from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/trace"
)

var debug = flag.Bool("debug", false, "enable debug mode: format error messages with additional detail")
var traceFile = flag.String("trace", "", "write a Chrome trace-event-format file of block/btree activity")

type verb struct {
	fn   func(ctx context.Context, args []string) error
	help string
}

var verbs = map[string]verb{
	"create": {cmdCreate, "create a new archive"},
	"ls":     {cmdLs, "list a directory inside an archive"},
	"cat":    {cmdCat, "print a file's contents to stdout"},
	"stat":   {cmdStat, "print an entry's metadata"},
	"export": {cmdExport, "export an archive subtree as a cpio stream"},
	"mount":  {cmdMount, "mount the archive read-only as a local FUSE file system"},
}

func usage(fset *flag.FlagSet, helpText string) func() {
	return func() {
		fmt.Fprintln(os.Stderr, helpText)
		fmt.Fprintf(os.Stderr, "Flags for archive7 %s:\n", fset.Name())
		fset.PrintDefaults()
	}
}

func funcmain() error {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "archive7 [-flags] <command> [-flags] <args>\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		for name, v := range verbs {
			fmt.Fprintf(os.Stderr, "\t%-8s - %s\n", name, v.help)
		}
		os.Exit(2)
	}
	name, rest := args[0], args[1:]
	v, ok := verbs[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", name)
		os.Exit(2)
	}

	if *traceFile != "" {
		f, err := os.Create(*traceFile)
		if err != nil {
			return fmt.Errorf("opening trace file: %v", err)
		}
		defer f.Close()
		trace.Sink(f)
	}

	ctx, canc := angelos7.InterruptibleContext()
	defer canc()
	if err := v.fn(ctx, rest); err != nil {
		if *debug {
			return fmt.Errorf("%s: %+v", name, err)
		}
		return fmt.Errorf("%s: %v", name, err)
	}
	return angelos7.RunAtExit()
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
