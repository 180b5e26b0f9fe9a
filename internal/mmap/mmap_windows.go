//go:build windows

package mmap

import (
	"reflect"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Map additionally tracks the Windows file-mapping handle needed to
// release the view and the mapping object on Close.
type winMap struct {
	handle  windows.Handle
	mapping windows.Handle
	addr    uintptr
}

var winMaps = map[*Map]*winMap{}

// New memory-maps the full extent of fd, which must already be sized to
// length. fd is a Windows file handle obtained via (*os.File).Fd().
func New(fd int, length int) (*Map, error) {
	if length <= 0 {
		return nil, ErrInvalidSize
	}

	h := windows.Handle(fd)
	hi := uint32(length >> 32)
	lo := uint32(length & 0xffffffff)

	mapping, err := windows.CreateFileMapping(h, nil, windows.PAGE_READWRITE, hi, lo, nil)
	if err != nil {
		return nil, &Error{Op: "CreateFileMapping", Err: err}
	}

	addr, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_WRITE, 0, 0, uintptr(length))
	if err != nil {
		windows.CloseHandle(mapping)
		return nil, &Error{Op: "MapViewOfFile", Err: err}
	}

	var data []byte
	sh := (*reflect.SliceHeader)(unsafe.Pointer(&data))
	sh.Data = addr
	sh.Len = length
	sh.Cap = length

	m := &Map{data: data, fd: fd}
	winMaps[m] = &winMap{handle: h, mapping: mapping, addr: addr}
	return m, nil
}

// Sync flushes changes to disk synchronously.
func (m *Map) Sync() error {
	if m.data == nil {
		return ErrNotMapped
	}
	if err := windows.FlushViewOfFile(uintptr(unsafe.Pointer(&m.data[0])), 0); err != nil {
		return err
	}
	return windows.FlushFileBuffers(windows.Handle(m.fd))
}

// Close unmaps the region and releases the mapping object. It does not
// close the underlying *os.File; the caller owns that.
func (m *Map) Close() error {
	if m.data == nil {
		return nil
	}
	wm, ok := winMaps[m]
	if ok {
		delete(winMaps, m)
		_ = windows.UnmapViewOfFile(wm.addr)
		_ = windows.CloseHandle(wm.mapping)
	}
	m.data = nil
	return nil
}
