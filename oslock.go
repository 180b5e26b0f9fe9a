package hma

import "os"

// lockMode is the mode requested from the OS lock primitive.
type lockMode int

const (
	lockNone lockMode = iota
	lockShared
	lockExclusive
)

// osLock requests an advisory byte-range lock covering the single byte
// at wordIndex*4 of f. It is used only on the DMS word (to detect
// first-init vs. join) and on client-slot words (to signal liveness);
// page-lock words are never OS-locked — those are CAS-driven.
//
// Returns Ok on success, Busy on non-blocking contention, BusyDeadlock
// if the kernel reports a deadlock on a blocking request. Platform
// implementations live in oslock_unix.go / oslock_windows.go.
func osLock(f *os.File, wordIndex int, mode lockMode, blocking bool) (Result, error) {
	return platformLock(f, wordIndex, mode, blocking)
}

// lockWord requests mode on wordIndex and maps non-Ok results to an
// error, for call sites (HMA init/teardown) that only care about
// success or failure, never about retrying a busy result themselves.
func lockWord(f *os.File, wordIndex int, mode lockMode, blocking bool) error {
	result, err := osLock(f, wordIndex, mode, blocking)
	if err != nil {
		return newError(result, "lock word", err)
	}
	if result != Ok {
		return newError(result, "lock word", nil)
	}
	return nil
}

// unlockWord releases any lock this process holds on wordIndex.
func unlockWord(f *os.File, wordIndex int) error {
	_, err := osLock(f, wordIndex, lockNone, false)
	return err
}

// tryLockWord is a non-blocking lockWord that reports success as a bool
// instead of an error, for call sites that treat "someone already holds
// it" as ordinary control flow (slot scanning, DMS first-init race).
func tryLockWord(f *os.File, wordIndex int, mode lockMode, _ bool) (bool, error) {
	result, err := osLock(f, wordIndex, mode, false)
	if err != nil {
		return false, err
	}
	return result == Ok, nil
}
