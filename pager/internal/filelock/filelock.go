// Package filelock gives the pager adapters a non-blocking exclusive
// lock on a database's main file, for the Pager interface's
// LockDatabaseFile/UnlockDatabaseFile methods (spec §6: "used only at
// final disconnect for unlink"). It is deliberately independent of the
// byte-range client-slot locking in the hma package proper — that one
// locks single bytes inside the HMA file itself, this one locks an
// entire, separate database file — so it opens its own file descriptor
// rather than reusing any handle the engine holds.
package filelock

import "os"

// Lock opens path and attempts a non-blocking exclusive lock, returning
// a handle to later Unlock, or ok=false if something else already holds
// it. On unix the lock is a whole-file flock; on Windows it covers only
// the file's first byte.
func Lock(path string) (h *Handle, ok bool, err error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	locked, err := platformTryLock(f)
	if err != nil {
		f.Close()
		return nil, false, err
	}
	if !locked {
		f.Close()
		return nil, false, nil
	}
	return &Handle{f: f}, true, nil
}

// Handle is a held whole-file lock.
type Handle struct {
	f *os.File
}

// Unlock releases the lock and closes the underlying file descriptor.
func (h *Handle) Unlock() error {
	if h == nil || h.f == nil {
		return nil
	}
	err := platformUnlock(h.f)
	closeErr := h.f.Close()
	h.f = nil
	if err != nil {
		return err
	}
	return closeErr
}
