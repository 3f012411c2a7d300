package wire

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// SocketPath determines the path to the Wayland Unix domain socket
// based on the contents of the $WAYLAND_DISPLAY environment variable.
// It does not attempt to determine if the value corresponds to an
// actual socket. A relative display name requires $XDG_RUNTIME_DIR.
func SocketPath() (string, error) {
	v, ok := os.LookupEnv("WAYLAND_DISPLAY")
	if !ok || (v == "") {
		v = "wayland-0"
	}
	if filepath.IsAbs(v) {
		return v, nil
	}

	dir, ok := os.LookupEnv("XDG_RUNTIME_DIR")
	if !ok || (dir == "") {
		return "", NoEndpointError{Reason: "XDG_RUNTIME_DIR is not set"}
	}
	return filepath.Join(dir, v), nil
}

// Endpoint is a resolved place to connect to. It is resolved once at
// startup so that configuration problems are reported before any
// connection attempt.
type Endpoint struct {
	path string
	fd   int
	used bool
}

// LookupEndpoint resolves the endpoint described by the environment,
// following the procedure outlined at
// https://wayland-book.com/protocol-design/wire-protocol.html#transports
//
// If $WAYLAND_SOCKET is set it names an already connected file
// descriptor, which can only be used for a single connection. It is
// removed from the environment so that child processes do not inherit
// it.
func LookupEndpoint() (*Endpoint, error) {
	if v, ok := os.LookupEnv("WAYLAND_SOCKET"); ok {
		fd, err := strconv.ParseInt(v, 10, 0)
		if (err != nil) || (fd < 0) {
			return nil, NoEndpointError{Reason: fmt.Sprintf("invalid WAYLAND_SOCKET %q", v)}
		}
		os.Unsetenv("WAYLAND_SOCKET")
		unix.CloseOnExec(int(fd))
		return &Endpoint{fd: int(fd)}, nil
	}

	path, err := SocketPath()
	if err != nil {
		return nil, err
	}
	return &Endpoint{path: path, fd: -1}, nil
}

// PathEndpoint returns an endpoint for the socket at path.
func PathEndpoint(path string) *Endpoint {
	return &Endpoint{path: path, fd: -1}
}

func (ep *Endpoint) String() string {
	if ep.fd >= 0 {
		return fmt.Sprintf("WAYLAND_SOCKET=%v", ep.fd)
	}
	return ep.path
}

// Dial opens a new connection to the endpoint.
func (ep *Endpoint) Dial() (*Conn, error) {
	if ep.fd >= 0 {
		if ep.used {
			return nil, NoEndpointError{Reason: "WAYLAND_SOCKET has already been used"}
		}
		ep.used = true

		file := os.NewFile(uintptr(ep.fd), "WAYLAND_SOCKET")
		defer file.Close()

		c, err := net.FileConn(file)
		if err != nil {
			return nil, ConnectionError{Endpoint: ep.String(), Err: err}
		}
		uc, ok := c.(*net.UnixConn)
		if !ok {
			c.Close()
			return nil, ConnectionError{Endpoint: ep.String(), Err: errors.New("not a Unix domain socket")}
		}
		return NewConn(uc), nil
	}

	s, err := net.Dial("unix", ep.path)
	if err != nil {
		return nil, ConnectionError{Endpoint: ep.path, Err: err}
	}
	return NewConn(s.(*net.UnixConn)), nil
}

// Conn represents a low-level Wayland connection. Incoming bytes are
// buffered until a whole message is available, and incoming file
// descriptors are queued until a message that declares one is decoded.
// Descriptors may arrive with an earlier chunk of the byte stream than
// the message they belong to, so they are never attached to a message
// at read time.
type Conn struct {
	conn *net.UnixConn
	buf  [4096]byte
	oob  []byte
	in   []byte
	fds  []int
}

// NewConn creates a new Conn that wraps c. After this is called, use
// the provided Close method to close c instead of calling its own
// Close method.
func NewConn(c *net.UnixConn) *Conn {
	return &Conn{
		conn: c,
		oob:  make([]byte, unix.CmsgSpace(maxFDs*4)),
	}
}

// Close closes the underlying connection along with any received file
// descriptors that were never claimed.
func (c *Conn) Close() error {
	for _, fd := range c.fds {
		unix.Close(fd)
	}
	c.fds = nil
	return c.conn.Close()
}

// SetReadDeadline sets the deadline for future calls to ReadMessage.
// It is safe to call concurrently with ReadMessage, which makes it
// usable for interrupting a blocked read.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// PendingFDs returns the number of received file descriptors that have
// not yet been claimed by a message.
func (c *Conn) PendingFDs() int {
	return len(c.fds)
}

func (c *Conn) readFDs(data []byte) error {
	cmsgs, err := unix.ParseSocketControlMessage(data)
	if err != nil {
		return fmt.Errorf("parse socket control messages: %w", err)
	}
	for _, cmsg := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			if errors.Is(err, unix.EINVAL) {
				continue
			}
			return fmt.Errorf("parse unix control message: %w", err)
		}
		c.fds = append(c.fds, fds...)
	}
	return nil
}

func (c *Conn) popFD() (int, bool) {
	if len(c.fds) == 0 {
		return -1, false
	}
	fd := c.fds[0]
	c.fds = c.fds[1:]
	return fd, true
}

// fill reads from the socket until at least n bytes are buffered.
// Deadline errors are returned as is, with everything read so far kept
// in the buffer, so that the caller can simply try again.
func (c *Conn) fill(n int) error {
	for len(c.in) < n {
		nr, oobn, flags, _, err := c.conn.ReadMsgUnix(c.buf[:], c.oob)
		if oobn > 0 {
			if ferr := c.readFDs(c.oob[:oobn]); ferr != nil {
				return DisconnectedError{Err: ferr}
			}
		}
		if flags&unix.MSG_CTRUNC != 0 {
			return DisconnectedError{Err: errors.New("file descriptors were truncated")}
		}
		// nr is negative on some errors, such as an expired deadline.
		if nr > 0 {
			c.in = append(c.in, c.buf[:nr]...)
		}

		switch {
		case errors.Is(err, os.ErrDeadlineExceeded):
			return err
		case errors.Is(err, io.EOF), (err == nil) && (nr <= 0) && (oobn == 0):
			if len(c.in) > 0 {
				return DisconnectedError{Err: io.ErrUnexpectedEOF}
			}
			return DisconnectedError{Err: io.EOF}
		case err != nil:
			return DisconnectedError{Err: err}
		}
	}
	return nil
}
