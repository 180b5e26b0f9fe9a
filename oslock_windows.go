//go:build windows

package hma

import (
	"os"

	"golang.org/x/sys/windows"
)

// platformLock implements osLock via LockFileEx/UnlockFileEx over the
// single byte at wordIndex*4, grounded on gdbx/lock_windows.go's use of
// golang.org/x/sys/windows for the Windows build. Windows has no kernel
// deadlock detector for byte-range locks, so this never reports
// BusyDeadlock; a genuine mutual wait simply times out at a higher
// layer (or blocks forever under blocking=true, matching §5's "none at
// this layer" cancellation policy).
func platformLock(f *os.File, wordIndex int, mode lockMode, blocking bool) (Result, error) {
	h := windows.Handle(f.Fd())
	offset := uint32(wordIndex) * wordSize

	if mode == lockNone {
		ol := new(windows.Overlapped)
		ol.Offset = offset
		err := windows.UnlockFileEx(h, 0, 1, 0, ol)
		if err != nil {
			return Error, err
		}
		return Ok, nil
	}

	var flags uint32
	if mode == lockExclusive {
		flags |= windows.LOCKFILE_EXCLUSIVE_LOCK
	}
	if !blocking {
		flags |= windows.LOCKFILE_FAIL_IMMEDIATELY
	}

	ol := new(windows.Overlapped)
	ol.Offset = offset
	err := windows.LockFileEx(h, flags, 0, 1, 0, ol)
	if err == nil {
		return Ok, nil
	}
	if err == windows.ERROR_LOCK_VIOLATION {
		return Busy, nil
	}
	return Error, err
}

// fileIdentity returns the (volume serial, file index) pair identifying
// f's underlying file via GetFileInformationByHandle, the Windows
// analog of (dev, inode).
func fileIdentity(f *os.File) (dev, ino uint64, err error) {
	h := windows.Handle(f.Fd())
	var info windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(h, &info); err != nil {
		return 0, 0, err
	}
	dev = uint64(info.VolumeSerialNumber)
	ino = uint64(info.FileIndexHigh)<<32 | uint64(info.FileIndexLow)
	return dev, ino, nil
}
