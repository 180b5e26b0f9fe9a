//go:build windows

package hma

import "os"

// statPathIdentity returns path's (volume serial, file index) pair.
// Windows' os.FileInfo carries no inode-equivalent, so this briefly
// opens the file to call GetFileInformationByHandle; it takes no lock
// and closes the handle before returning.
func statPathIdentity(path string) (dev, ino uint64, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	d, i, err := fileIdentity(f)
	if err != nil {
		return 0, 0, false
	}
	return d, i, true
}
