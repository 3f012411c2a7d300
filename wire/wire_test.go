package wire

import (
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"deedles.dev/wlkbd/internal/bin"
	"golang.org/x/sys/unix"
)

func pipe(t *testing.T) (*Conn, *Conn) {
	t.Helper()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}

	conns := make([]*Conn, 2)
	for i, fd := range fds {
		file := os.NewFile(uintptr(fd), "socketpair")
		c, err := net.FileConn(file)
		file.Close()
		if err != nil {
			t.Fatalf("file conn: %v", err)
		}
		conns[i] = NewConn(c.(*net.UnixConn))
		t.Cleanup(func() { conns[i].Close() })
	}
	return conns[0], conns[1]
}

func header(sender uint32, op uint16, size uint32) []byte {
	s := bin.Bytes(sender)
	so := bin.Bytes((size << 16) | uint32(op))
	return append(s[:], so[:]...)
}

func TestRoundTrip(t *testing.T) {
	client, server := pipe(t)

	msg := NewMessage(2, 0)
	msg.WriteUint(7)
	msg.WriteString("wl_seat")
	msg.WriteInt(-3)
	msg.WriteArray([]byte{1, 2, 3, 4, 5})
	msg.WriteNewID(NewID{Interface: "wl_keyboard", Version: 5, ID: 9})
	if err := msg.Build(client); err != nil {
		t.Fatalf("build: %v", err)
	}

	got, err := server.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if (got.Sender() != 2) || (got.Op() != 0) {
		t.Fatalf("header: sender %v, op %v", got.Sender(), got.Op())
	}
	// 8 header + 4 + (4+8) + 4 + (4+8) + (4+12+4+4)
	if got.Size() != 64 {
		t.Errorf("size: got %v, want 64", got.Size())
	}

	if v := got.ReadUint(); v != 7 {
		t.Errorf("uint: got %v", v)
	}
	if v := got.ReadString(); v != "wl_seat" {
		t.Errorf("string: got %q", v)
	}
	if v := got.ReadInt(); v != -3 {
		t.Errorf("int: got %v", v)
	}
	if v := got.ReadArray(); string(v) != "\x01\x02\x03\x04\x05" {
		t.Errorf("array: got %v", v)
	}
	if v := got.ReadNewID(); v != (NewID{Interface: "wl_keyboard", Version: 5, ID: 9}) {
		t.Errorf("new_id: got %+v", v)
	}
	if err := got.Err(); err != nil {
		t.Fatalf("decode: %v", err)
	}

	got.ReadUint()
	if err := got.Err(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("reading past the end: got %v", err)
	}
}

func TestFileDescriptor(t *testing.T) {
	client, server := pipe(t)

	file, err := os.CreateTemp(t.TempDir(), "keymap")
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	if _, err := file.WriteString("xkb_keymap {};"); err != nil {
		t.Fatal(err)
	}

	msg := NewMessage(3, 0)
	msg.WriteUint(1)
	msg.WriteFile(file)
	msg.WriteUint(14)
	if err := msg.Build(server); err != nil {
		t.Fatalf("build: %v", err)
	}

	got, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	format := got.ReadUint()
	f := got.ReadFile()
	size := got.ReadUint()
	if err := got.Err(); err != nil {
		t.Fatalf("decode: %v", err)
	}
	defer f.Close()

	if (format != 1) || (size != 14) {
		t.Errorf("args: format %v, size %v", format, size)
	}
	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, 0); err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(buf) != "xkb_keymap {};" {
		t.Errorf("file contents: %q", buf)
	}
}

func TestEarlyFileDescriptor(t *testing.T) {
	client, server := pipe(t)

	file, err := os.CreateTemp(t.TempDir(), "early")
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	// The descriptor rides along with a message that doesn't declare
	// one and must still be handed to the next message that does.
	first := NewMessage(3, 4)
	first.WriteUint(0)
	first.WriteFile(file)
	if err := first.Build(server); err != nil {
		t.Fatalf("build first: %v", err)
	}
	second := NewMessage(3, 0)
	second.WriteUint(1)
	if err := second.Build(server); err != nil {
		t.Fatalf("build second: %v", err)
	}

	m1, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	m1.ReadUint()
	if client.PendingFDs() != 1 {
		t.Fatalf("pending descriptors: got %v, want 1", client.PendingFDs())
	}

	m2, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	m2.ReadUint()
	f := m2.ReadFile()
	if err := m2.Err(); err != nil {
		t.Fatalf("decode second: %v", err)
	}
	f.Close()

	m3 := &MessageBuffer{conn: client}
	if m3.ReadFile(); m3.Err() == nil {
		t.Fatal("expected an error when no descriptor is queued")
	}
}

func TestMalformedSize(t *testing.T) {
	client, server := pipe(t)

	if _, err := server.conn.Write(header(1, 0, 6)); err != nil {
		t.Fatal(err)
	}

	_, err := client.ReadMessage()
	var derr DisconnectedError
	if !errors.As(err, &derr) {
		t.Fatalf("got %v, want DisconnectedError", err)
	}
}

func TestEOF(t *testing.T) {
	client, server := pipe(t)

	if _, err := server.conn.Write(header(1, 0, 12)); err != nil {
		t.Fatal(err)
	}
	server.Close()

	_, err := client.ReadMessage()
	var derr DisconnectedError
	if !errors.As(err, &derr) {
		t.Fatalf("got %v, want DisconnectedError", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("got %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestDeadlineKeepsPartialMessage(t *testing.T) {
	client, server := pipe(t)

	raw := append(header(5, 2, 12), 42, 0, 0, 0)
	if _, err := server.conn.Write(raw[:6]); err != nil {
		t.Fatal(err)
	}

	client.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
	_, err := client.ReadMessage()
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("got %v, want os.ErrDeadlineExceeded", err)
	}

	if _, err := server.conn.Write(raw[6:]); err != nil {
		t.Fatal(err)
	}
	client.SetReadDeadline(time.Time{})
	msg, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read after deadline: %v", err)
	}
	if (msg.Sender() != 5) || (msg.Op() != 2) || (msg.ReadUint() != 42) {
		t.Errorf("unexpected message: sender %v, op %v", msg.Sender(), msg.Op())
	}
}

func TestIdleDeadline(t *testing.T) {
	client, server := pipe(t)

	for i := 0; i < 2; i++ {
		client.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
		_, err := client.ReadMessage()
		if !errors.Is(err, os.ErrDeadlineExceeded) {
			t.Fatalf("attempt %v: got %v, want os.ErrDeadlineExceeded", i, err)
		}
	}

	msg := NewMessage(4, 1)
	msg.WriteUint(9)
	if err := msg.Build(server); err != nil {
		t.Fatal(err)
	}
	client.SetReadDeadline(time.Now().Add(time.Second))
	got, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read after idle deadlines: %v", err)
	}
	if (got.Sender() != 4) || (got.ReadUint() != 9) {
		t.Errorf("unexpected message from %v", got.Sender())
	}
}

func TestCleanEOF(t *testing.T) {
	client, server := pipe(t)
	server.Close()

	_, err := client.ReadMessage()
	if !errors.As(err, new(DisconnectedError)) || !errors.Is(err, io.EOF) {
		t.Fatalf("got %v, want a DisconnectedError caused by io.EOF", err)
	}
}

func TestHugeLength(t *testing.T) {
	tests := []struct {
		name string
		read func(*MessageBuffer)
	}{
		{name: "String", read: func(msg *MessageBuffer) { msg.ReadString() }},
		{name: "Array", read: func(msg *MessageBuffer) { msg.ReadArray() }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client, server := pipe(t)

			length := bin.Bytes(uint32(0xFFFFFFFD))
			raw := append(header(2, 0, 12), length[:]...)
			if _, err := server.conn.Write(raw); err != nil {
				t.Fatal(err)
			}

			msg, err := client.ReadMessage()
			if err != nil {
				t.Fatal(err)
			}
			test.read(msg)
			if err := msg.Err(); !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Errorf("got %v, want io.ErrUnexpectedEOF", err)
			}
		})
	}
}

func TestSocketPath(t *testing.T) {
	tests := []struct {
		name    string
		display string
		runtime string
		want    string
		err     bool
	}{
		{name: "Default", runtime: "/run/user/1000", want: "/run/user/1000/wayland-0"},
		{name: "Relative", display: "wayland-1", runtime: "/run/user/1000", want: "/run/user/1000/wayland-1"},
		{name: "Absolute", display: "/tmp/wl.sock", want: "/tmp/wl.sock"},
		{name: "NoRuntimeDir", display: "wayland-1", err: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Setenv("WAYLAND_DISPLAY", test.display)
			t.Setenv("XDG_RUNTIME_DIR", test.runtime)

			got, err := SocketPath()
			if test.err {
				var nerr NoEndpointError
				if !errors.As(err, &nerr) {
					t.Fatalf("got %q, %v, want NoEndpointError", got, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != test.want {
				t.Errorf("got %q, want %q", got, test.want)
			}
		})
	}
}

func TestDialMissingSocket(t *testing.T) {
	ep := PathEndpoint(filepath.Join(t.TempDir(), "wayland-9"))
	_, err := ep.Dial()
	var cerr ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("got %v, want ConnectionError", err)
	}
}
