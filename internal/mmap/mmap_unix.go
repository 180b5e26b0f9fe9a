//go:build unix

package mmap

import "golang.org/x/sys/unix"

// New memory-maps the full extent of fd, which must already be sized to
// length (callers ftruncate before mapping). The mapping is always
// PROT_READ|PROT_WRITE, MAP_SHARED: every attached process must be able
// to both read and CAS-write every word.
func New(fd int, length int) (*Map, error) {
	if length <= 0 {
		return nil, ErrInvalidSize
	}

	data, err := unix.Mmap(fd, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, &Error{Op: "mmap", Err: err}
	}

	return &Map{data: data, fd: fd}, nil
}

// Sync flushes changes to disk synchronously.
func (m *Map) Sync() error {
	if m.data == nil {
		return ErrNotMapped
	}
	return unix.Msync(m.data, unix.MS_SYNC)
}

// Close unmaps the region. It does not close the underlying file
// descriptor; the caller owns that.
func (m *Map) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}
