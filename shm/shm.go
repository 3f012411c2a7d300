// Package shm provides helpers for dealing with shared memory, such as
// the keymaps that a compositor hands to its clients.
package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Create returns an anonymous, memory-backed file. The name is only
// used for debugging and doesn't need to be unique.
func Create(name string) (*os.File, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	return os.NewFile(uintptr(fd), name), nil
}

// CreateWith returns an anonymous file holding data, rewound to the
// start.
func CreateWith(name string, data []byte) (*os.File, error) {
	file, err := Create(name)
	if err != nil {
		return nil, err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return nil, fmt.Errorf("write: %w", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek: %w", err)
	}
	return file, nil
}

type Mmap []byte

// Map maps size bytes of file into memory. flags is one of
// unix.MAP_SHARED or unix.MAP_PRIVATE. Compositors usually share
// keymaps between clients, so they should be mapped privately and
// read-only.
func Map(file *os.File, size int, prot, flags int) (mmap Mmap, err error) {
	sc, err := file.SyscallConn()
	if err != nil {
		return nil, err
	}

	cerr := sc.Control(func(fd uintptr) {
		m, merr := unix.Mmap(int(fd), 0, size, prot, flags)
		mmap, err = Mmap(m), merr
	})
	if cerr != nil {
		return nil, cerr
	}

	return mmap, err
}

// MapReadOnly is shorthand for a private, read-only mapping.
func MapReadOnly(file *os.File, size int) (Mmap, error) {
	return Map(file, size, unix.PROT_READ, unix.MAP_PRIVATE)
}

func (mmap Mmap) Unmap() error {
	return unix.Munmap(mmap)
}
