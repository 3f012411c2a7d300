// Package bin contains utilities for dealing with the binary
// representations used on the wire. Wayland uses the host's byte
// order, not a fixed one.
package bin

import (
	"io"
	"unsafe"
)

// Word is the set of types that occupy a single 32-bit wire word.
type Word interface {
	~int32 | ~uint32
}

func Bytes[T Word](v T) [4]byte {
	return *(*[4]byte)(unsafe.Pointer(&v))
}

func Value[T Word](data [4]byte) T {
	return *(*T)(unsafe.Pointer(&data))
}

// At decodes the word stored at offset off of data. It panics if data
// is too short.
func At[T Word](data []byte, off int) T {
	return Value[T]([4]byte(data[off : off+4]))
}

func Read[T Word](r io.Reader) (T, error) {
	var data [4]byte
	_, err := io.ReadFull(r, data[:])
	if err != nil {
		return 0, err
	}

	return Value[T](data), nil
}

func Write[T Word](w io.Writer, v T) error {
	data := Bytes(v)
	n, err := w.Write(data[:])
	if (err == nil) && (n < len(data)) {
		return io.ErrShortWrite
	}
	return err
}

// Pad returns the number of zero bytes that follow n bytes of string
// or array data to align the next argument to a word boundary.
func Pad(n uint32) uint32 {
	return (4 - (n % 4)) % 4
}
