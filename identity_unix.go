//go:build unix

package hma

import (
	"os"
	"syscall"
)

// statPathIdentity stats path without opening or locking it, returning
// its (device, inode) pair if it exists. ok is false if path doesn't
// exist or its identity can't be determined, never an error: a missing
// HMA file just means this is the first connect to this database in the
// process, handled by openOrCreateHMA.
func statPathIdentity(path string) (dev, ino uint64, ok bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, 0, false
	}
	st, isStatT := fi.Sys().(*syscall.Stat_t)
	if !isStatT {
		return 0, 0, false
	}
	return uint64(st.Dev), uint64(st.Ino), true
}
