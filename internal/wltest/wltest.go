// Package wltest provides a scriptable fake compositor for testing
// clients over a real socket.
package wltest

import (
	"errors"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"deedles.dev/wlkbd/shm"
	"deedles.dev/wlkbd/wire"
	"golang.org/x/sys/unix"
)

// Timeout bounds every wait for a request from the client.
const Timeout = 5 * time.Second

// Opcodes of the requests and events that the fake compositor
// understands.
const (
	DisplayID = 1

	DisplaySync        = 0
	DisplayGetRegistry = 1
	DisplayError       = 0
	DisplayDeleteID    = 1

	RegistryBind         = 0
	RegistryGlobal       = 0
	RegistryGlobalRemove = 1

	CallbackDone = 0

	SeatGetKeyboard  = 1
	SeatRelease      = 3
	SeatCapabilities = 0
	SeatName         = 1

	KeyboardRelease    = 0
	KeyboardKeymap     = 0
	KeyboardEnter      = 1
	KeyboardModifiers  = 4
	KeyboardRepeatInfo = 5

	CapabilityPointer  = 1
	CapabilityKeyboard = 2

	KeymapFormatXkbV1 = 1
)

// Compositor is the server end of a single connection.
type Compositor struct {
	t    testing.TB
	conn *wire.Conn
}

func socketpair() (*net.UnixConn, *net.UnixConn, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("socketpair: %w", err)
	}

	var conns [2]*net.UnixConn
	for i, fd := range fds {
		file := os.NewFile(uintptr(fd), "socketpair")
		c, err := net.FileConn(file)
		file.Close()
		if err != nil {
			if i > 0 {
				conns[0].Close()
			} else {
				unix.Close(fds[1])
			}
			return nil, nil, fmt.Errorf("file conn: %w", err)
		}
		conns[i] = c.(*net.UnixConn)
	}
	return conns[0], conns[1], nil
}

// Pipe returns a connected client and compositor. The compositor end
// is closed when the test finishes. The client end belongs to the
// caller.
func Pipe(t testing.TB) (*wire.Conn, *Compositor) {
	t.Helper()

	client, server, err := socketpair()
	if err != nil {
		t.Fatal(err)
	}
	c := Compositor{t: t, conn: wire.NewConn(server)}
	t.Cleanup(func() { c.Close() })
	return wire.NewConn(client), &c
}

// Close hangs up on the client.
func (c *Compositor) Close() error {
	return c.conn.Close()
}

// Next returns the next request from the client.
func (c *Compositor) Next() *wire.MessageBuffer {
	c.t.Helper()

	c.conn.SetReadDeadline(time.Now().Add(Timeout))
	msg, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("read request: %v", err)
	}
	return msg
}

// Expect reads the next request and checks that it has the given
// sender and opcode.
func (c *Compositor) Expect(sender uint32, op uint16) *wire.MessageBuffer {
	c.t.Helper()

	msg := c.Next()
	if (msg.Sender() != sender) || (msg.Op() != op) {
		c.t.Fatalf("got request %v on object %v, want request %v on object %v", msg.Op(), msg.Sender(), op, sender)
	}
	return msg
}

// ExpectClosed checks that the client hung up without sending any
// further requests.
func (c *Compositor) ExpectClosed() {
	c.t.Helper()

	c.conn.SetReadDeadline(time.Now().Add(Timeout))
	msg, err := c.conn.ReadMessage()
	if err == nil {
		c.t.Fatalf("got request %v on object %v, want hang-up", msg.Op(), msg.Sender())
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		c.t.Fatal("client did not hang up")
	}
}

func (c *Compositor) ExpectGetRegistry() (registry uint32) {
	c.t.Helper()
	return c.readObject(c.Expect(DisplayID, DisplayGetRegistry))
}

func (c *Compositor) ExpectSync() (callback uint32) {
	c.t.Helper()
	return c.readObject(c.Expect(DisplayID, DisplaySync))
}

func (c *Compositor) ExpectBind(registry uint32) (name uint32, id wire.NewID) {
	c.t.Helper()

	msg := c.Expect(registry, RegistryBind)
	name = msg.ReadUint()
	id = msg.ReadNewID()
	if err := msg.Err(); err != nil {
		c.t.Fatalf("decode bind: %v", err)
	}
	return name, id
}

func (c *Compositor) ExpectGetKeyboard(seat uint32) (keyboard uint32) {
	c.t.Helper()
	return c.readObject(c.Expect(seat, SeatGetKeyboard))
}

func (c *Compositor) readObject(msg *wire.MessageBuffer) uint32 {
	c.t.Helper()

	id := msg.ReadObject()
	if err := msg.Err(); err != nil {
		c.t.Fatalf("decode request: %v", err)
	}
	return id
}

// Send sends an event built by build, which may be nil.
func (c *Compositor) Send(sender uint32, op uint16, build func(*wire.MessageBuilder)) {
	c.t.Helper()

	msg := wire.NewMessage(sender, op)
	if build != nil {
		build(msg)
	}
	if err := msg.Build(c.conn); err != nil {
		c.t.Fatalf("send event %v on object %v: %v", op, sender, err)
	}
}

func (c *Compositor) SendGlobal(registry, name uint32, iface string, version uint32) {
	c.t.Helper()
	c.Send(registry, RegistryGlobal, func(msg *wire.MessageBuilder) {
		msg.WriteUint(name)
		msg.WriteString(iface)
		msg.WriteUint(version)
	})
}

func (c *Compositor) SendGlobalRemove(registry, name uint32) {
	c.t.Helper()
	c.Send(registry, RegistryGlobalRemove, func(msg *wire.MessageBuilder) {
		msg.WriteUint(name)
	})
}

func (c *Compositor) SendDone(callback uint32) {
	c.t.Helper()
	c.Send(callback, CallbackDone, func(msg *wire.MessageBuilder) {
		msg.WriteUint(0)
	})
	c.SendDeleteID(callback)
}

func (c *Compositor) SendDeleteID(id uint32) {
	c.t.Helper()
	c.Send(DisplayID, DisplayDeleteID, func(msg *wire.MessageBuilder) {
		msg.WriteUint(id)
	})
}

func (c *Compositor) SendError(object, code uint32, message string) {
	c.t.Helper()
	c.Send(DisplayID, DisplayError, func(msg *wire.MessageBuilder) {
		msg.WriteObject(object)
		msg.WriteUint(code)
		msg.WriteString(message)
	})
}

func (c *Compositor) SendCapabilities(seat, caps uint32) {
	c.t.Helper()
	c.Send(seat, SeatCapabilities, func(msg *wire.MessageBuilder) {
		msg.WriteUint(caps)
	})
}

func (c *Compositor) SendSeatName(seat uint32, name string) {
	c.t.Helper()
	c.Send(seat, SeatName, func(msg *wire.MessageBuilder) {
		msg.WriteString(name)
	})
}

// SendKeymap sends keymap as an xkb_v1 keymap in a memory file, NUL
// terminated as libxkbcommon expects.
func (c *Compositor) SendKeymap(keyboard uint32, keymap string) {
	c.t.Helper()

	data := append([]byte(keymap), 0)
	file, err := shm.CreateWith("wltest-keymap", data)
	if err != nil {
		c.t.Fatalf("create keymap file: %v", err)
	}
	defer file.Close()

	c.Send(keyboard, KeyboardKeymap, func(msg *wire.MessageBuilder) {
		msg.WriteUint(KeymapFormatXkbV1)
		msg.WriteFile(file)
		msg.WriteUint(uint32(len(data)))
	})
}

func (c *Compositor) SendModifiers(keyboard, group uint32) {
	c.t.Helper()
	c.Send(keyboard, KeyboardModifiers, func(msg *wire.MessageBuilder) {
		msg.WriteUint(0)
		msg.WriteUint(0)
		msg.WriteUint(0)
		msg.WriteUint(0)
		msg.WriteUint(group)
	})
}

func (c *Compositor) SendRepeatInfo(keyboard uint32, rate, delay int32) {
	c.t.Helper()
	c.Send(keyboard, KeyboardRepeatInfo, func(msg *wire.MessageBuilder) {
		msg.WriteInt(rate)
		msg.WriteInt(delay)
	})
}

// Session is the set of objects created by Handshake.
type Session struct {
	Registry uint32
	Seat     uint32
	SeatName uint32
	Keyboard uint32
}

// Handshake plays the compositor's part of a typical connection
// startup: a single seat with a keyboard, announced at seatVersion.
func (c *Compositor) Handshake(seatVersion uint32) Session {
	c.t.Helper()

	var s Session
	s.Registry = c.ExpectGetRegistry()
	callback := c.ExpectSync()

	s.SeatName = 1
	c.SendGlobal(s.Registry, 10, "wl_compositor", 6)
	c.SendGlobal(s.Registry, s.SeatName, "wl_seat", seatVersion)
	c.SendDone(callback)

	name, id := c.ExpectBind(s.Registry)
	if (name != s.SeatName) || (id.Interface != "wl_seat") {
		c.t.Fatalf("bound %q as global %v, want wl_seat as global %v", id.Interface, name, s.SeatName)
	}
	s.Seat = id.ID

	c.SendSeatName(s.Seat, "seat0")
	c.SendCapabilities(s.Seat, CapabilityPointer|CapabilityKeyboard)
	s.Keyboard = c.ExpectGetKeyboard(s.Seat)
	return s
}

// Listener hands out a new Compositor for every dialed connection.
type Listener struct {
	t     testing.TB
	conns chan *Compositor
}

func Listen(t testing.TB) *Listener {
	return &Listener{
		t:     t,
		conns: make(chan *Compositor, 16),
	}
}

// Dial connects to the listener. It is suitable for use as a client's
// dial function.
func (lis *Listener) Dial() (*wire.Conn, error) {
	client, server, err := socketpair()
	if err != nil {
		return nil, wire.ConnectionError{Endpoint: "wltest", Err: err}
	}
	c := Compositor{t: lis.t, conn: wire.NewConn(server)}
	lis.t.Cleanup(func() { c.Close() })

	select {
	case lis.conns <- &c:
		return wire.NewConn(client), nil
	default:
		client.Close()
		c.Close()
		return nil, wire.ConnectionError{Endpoint: "wltest", Err: errors.New("too many unaccepted connections")}
	}
}

// Accept waits for the next connection.
func (lis *Listener) Accept() *Compositor {
	lis.t.Helper()

	select {
	case c := <-lis.conns:
		return c
	case <-time.After(Timeout):
		lis.t.Fatal("timed out waiting for a connection")
		return nil
	}
}
