// Package xdg resolves the default archive7 path: inspect it using
// the -archive flag default shown by a subcommand's help, e.g.
// `archive7 ls -help`.
package xdg

import (
	"os"
	"path/filepath"
)

// DefaultArchivePath is the archive path used when a caller doesn't name
// one explicitly: $ANGELOS7_ARCHIVE, falling back to
// $HOME/.angelos7/archive.a7.
var DefaultArchivePath = findDefaultArchivePath()

func findDefaultArchivePath() string {
	if env := os.Getenv("ANGELOS7_ARCHIVE"); env != "" {
		return env
	}

	// TODO: honor $XDG_DATA_HOME if it's ever worth distinguishing from $HOME.

	return filepath.Join(os.Getenv("HOME"), ".angelos7", "archive.a7")
}
