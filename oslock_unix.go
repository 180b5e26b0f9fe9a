//go:build unix

package hma

import (
	"os"

	"golang.org/x/sys/unix"
)

// platformLock implements osLock via POSIX fcntl byte-range record
// locking, grounded on superfly/sqlite3-restore's lock() helper (a
// syscall.Flock_t over a single byte, polled via F_SETLK), ported to
// golang.org/x/sys/unix to match the teacher's dependency choice and
// extended with a real blocking mode (F_SETLKW) for spec's blocking
// parameter.
//
// fcntl locks are scoped to (process, inode): distinct word indices are
// distinct byte ranges and never conflict with each other even when
// requested from the same process on different file descriptors, which
// is exactly the independence the client-slot and DMS protocols need.
func platformLock(f *os.File, wordIndex int, mode lockMode, blocking bool) (Result, error) {
	lk := unix.Flock_t{
		Whence: 0, // io.SeekStart
		Start:  int64(wordIndex) * wordSize,
		Len:    1,
	}

	switch mode {
	case lockNone:
		lk.Type = unix.F_UNLCK
	case lockShared:
		lk.Type = unix.F_RDLCK
	case lockExclusive:
		lk.Type = unix.F_WRLCK
	}

	cmd := unix.F_SETLK
	if blocking && mode != lockNone {
		cmd = unix.F_SETLKW
	}

	err := unix.FcntlFlock(f.Fd(), cmd, &lk)
	if err == nil {
		return Ok, nil
	}

	if err == unix.EDEADLK {
		return BusyDeadlock, nil
	}
	if err == unix.EAGAIN || err == unix.EACCES {
		return Busy, nil
	}
	return Error, err
}

// fileIdentity returns the (device, inode) pair identifying f's
// underlying file, used to de-duplicate HMA handles that reach the same
// file via different paths (symlinks, relative vs. absolute, bind
// mounts), grounded on the *syscall.Stat_t Sys() assertion pattern used
// throughout the pack's agent-task filesystem package.
func fileIdentity(f *os.File) (dev, ino uint64, err error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return 0, 0, err
	}
	return uint64(st.Dev), uint64(st.Ino), nil
}
