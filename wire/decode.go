package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"deedles.dev/wlkbd/internal/bin"
)

// headerSize is the size of the fixed message header: the sender's
// object ID followed by the size and opcode packed into one word.
const headerSize = 8

// MessageBuffer holds message data that has been read from the socket
// but not yet decoded. Arguments are read in order with the Read
// methods. The first failure is sticky and reported by Err.
type MessageBuffer struct {
	sender uint32
	op     uint16
	size   uint16
	data   bytes.Reader
	conn   *Conn
	files  []*os.File
	err    error
	args   []any
}

// ReadMessage reads the next complete message from the socket.
func (c *Conn) ReadMessage() (*MessageBuffer, error) {
	err := c.fill(headerSize)
	if err != nil {
		return nil, err
	}

	so := bin.At[uint32](c.in, 4)
	size := so >> 16
	if (size < headerSize) || (size%4 != 0) {
		return nil, DisconnectedError{Err: fmt.Errorf("malformed message size: %v", size)}
	}

	err = c.fill(int(size))
	if err != nil {
		return nil, err
	}

	mr := MessageBuffer{
		sender: bin.At[uint32](c.in, 0),
		op:     uint16(so & 0xFFFF),
		size:   uint16(size),
		conn:   c,
	}
	data := make([]byte, size-headerSize)
	copy(data, c.in[headerSize:size])
	mr.data.Reset(data)

	c.in = append(c.in[:0], c.in[size:]...)

	return &mr, nil
}

// Sender is the object ID of the sender of the message.
func (r *MessageBuffer) Sender() uint32 {
	return r.sender
}

// Op is the opcode of the message.
func (r *MessageBuffer) Op() uint16 {
	return r.op
}

// Size is the total size of the message, including the 8 byte header.
func (r *MessageBuffer) Size() uint16 {
	return r.size
}

// Err returns the first error encountered while reading arguments.
// Running out of data is reported as io.ErrUnexpectedEOF.
func (r *MessageBuffer) Err() error {
	if errors.Is(r.err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return r.err
}

// Close closes any files that were read from the message. It is used
// to release descriptors when a message is discarded after decoding.
func (r *MessageBuffer) Close() error {
	errs := make([]error, 0, len(r.files))
	for _, f := range r.files {
		errs = append(errs, f.Close())
	}
	r.files = nil
	return errors.Join(errs...)
}

func (r *MessageBuffer) ReadInt() (v int32) {
	if r.err != nil {
		return
	}

	v, r.err = bin.Read[int32](&r.data)
	r.args = append(r.args, v)
	return v
}

func (r *MessageBuffer) ReadUint() (v uint32) {
	if r.err != nil {
		return
	}

	v, r.err = bin.Read[uint32](&r.data)
	r.args = append(r.args, v)
	return v
}

// ReadObject reads an object ID. Zero means a null object.
func (r *MessageBuffer) ReadObject() uint32 {
	return r.ReadUint()
}

func (r *MessageBuffer) ReadNewID() NewID {
	return NewID{
		Interface: r.ReadString(),
		Version:   r.ReadUint(),
		ID:        r.ReadUint(),
	}
}

func (r *MessageBuffer) ReadString() string {
	if r.err != nil {
		return ""
	}

	length, err := bin.Read[uint32](&r.data)
	if err != nil {
		r.err = err
		return ""
	}
	if length == 0 {
		r.args = append(r.args, nil)
		return ""
	}
	size := padded(length)
	if size > int64(r.data.Len()) {
		r.err = io.ErrUnexpectedEOF
		return ""
	}

	var str strings.Builder
	str.Grow(int(size))
	_, r.err = io.CopyN(&str, &r.data, size)
	if r.err != nil {
		return ""
	}
	v := str.String()
	if v[length-1] != 0 {
		r.err = errors.New("string is not null-terminated")
		return ""
	}

	r.args = append(r.args, v[:length-1])
	return v[:length-1]
}

// padded is the size of length bytes of string or array data plus its
// padding. It is computed in 64 bits so that a hostile length can't
// wrap around.
func padded(length uint32) int64 {
	return int64(length) + int64(bin.Pad(length))
}

func (r *MessageBuffer) ReadArray() []byte {
	if r.err != nil {
		return nil
	}

	length, err := bin.Read[uint32](&r.data)
	if err != nil {
		r.err = err
		return nil
	}
	size := padded(length)
	if size > int64(r.data.Len()) {
		r.err = io.ErrUnexpectedEOF
		return nil
	}

	buf := make([]byte, size)
	_, r.err = io.ReadFull(&r.data, buf)
	if r.err != nil {
		return nil
	}

	r.args = append(r.args, buf[:length])
	return buf[:length]
}

// ReadFile claims the oldest file descriptor received on the
// connection that has not yet been claimed by another message. The
// caller owns the returned file.
func (r *MessageBuffer) ReadFile() *os.File {
	if r.err != nil {
		return nil
	}

	fd, ok := r.conn.popFD()
	if !ok {
		r.err = errors.New("message declares a file descriptor but none was received")
		return nil
	}

	f := os.NewFile(uintptr(fd), "")
	r.files = append(r.files, f)
	r.args = append(r.args, f)
	return f
}

// Debug formats the message as a call, in the style of libwayland's
// WAYLAND_DEBUG output, using the arguments read so far.
func (r *MessageBuffer) Debug(target, method string) string {
	return formatCall(target, method, r.args)
}

func formatCall(target, method string, argv []any) string {
	args := make([]string, 0, len(argv))
	for _, arg := range argv {
		switch arg := arg.(type) {
		case nil:
			args = append(args, "nil")
		case string:
			args = append(args, strconv.Quote(arg))
		case *os.File:
			args = append(args, fmt.Sprintf("fd %v", arg.Fd()))
		case []byte:
			args = append(args, fmt.Sprintf("array[%v]", len(arg)))
		default:
			args = append(args, fmt.Sprint(arg))
		}
	}

	return fmt.Sprintf("%v.%v(%v)", target, method, strings.Join(args, ", "))
}
