// Package wl is a small Wayland client that follows the keyboard
// layout. It binds the first seat with a keyboard, feeds the keyboard's
// keymap and modifiers events into a layout.Tracker, and reconnects
// when the compositor goes away.
package wl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"deedles.dev/wlkbd/internal/debug"
	"deedles.dev/wlkbd/internal/objstore"
	"deedles.dev/wlkbd/layout"
	"deedles.dev/wlkbd/wire"
	"go.uber.org/zap"
)

// DefaultBindTimeout is how long a Client waits for a keyboard.
const DefaultBindTimeout = 5 * time.Second

// maxUnknownObjects is the number of consecutive events for unknown
// objects after which the connection is considered broken.
const maxUnknownObjects = 16

// Client handles a single connection. It is not safe for concurrent
// use, except for Refresh. Run drives everything.
type Client struct {
	// BindTimeout is how long to wait for a seat with a keyboard
	// before giving up on the connection.
	BindTimeout time.Duration

	conn    *wire.Conn
	objects *objstore.Store[*object]
	tracker *layout.Tracker
	log     *zap.SugaredLogger
	now     func() time.Time

	binder  binder
	unknown int
	refresh atomic.Bool
}

// NewClient returns a Client that talks over conn and reports to
// tracker. The caller keeps ownership of conn. log may be nil.
func NewClient(conn *wire.Conn, tracker *layout.Tracker, log *zap.SugaredLogger) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	objects := objstore.New[*object](displayID + 1)
	objects.Register(displayID, newObject(InterfaceDisplay, 1))

	return &Client{
		BindTimeout: DefaultBindTimeout,

		conn:    conn,
		objects: objects,
		tracker: tracker,
		log:     log,
		now:     time.Now,

		binder: newBinder(),
	}
}

// Bound reports whether a keyboard was requested during the lifetime
// of the Client, even if it has been lost since.
func (c *Client) Bound() bool {
	return c.binder.bound
}

// Run sends the initial requests and then dispatches events until the
// connection fails or ctx is canceled, in which case it returns
// ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		// Wake up the blocked read.
		c.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	err := c.start()
	if err != nil {
		return err
	}

	for {
		if c.refresh.CompareAndSwap(true, false) {
			c.tracker.Refresh()
		}

		now := c.now()
		c.tracker.Settle(now)
		err := c.checkBind(now)
		if err != nil {
			return err
		}

		err = c.conn.SetReadDeadline(c.deadline())
		if err != nil {
			return wire.DisconnectedError{Err: err}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.refresh.Load() {
			continue
		}

		msg, err := c.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				if err := ctx.Err(); err != nil {
					return err
				}
				continue
			}
			return err
		}

		err = c.dispatch(msg)
		if err != nil {
			return err
		}
	}
}

// Refresh asks Run to derive the label again. It may be called from
// any goroutine. The tracker itself is only touched by Run.
func (c *Client) Refresh() {
	c.refresh.Store(true)
	c.conn.SetReadDeadline(time.Unix(1, 0))
}

// deadline returns the earliest time at which the loop has to wake up
// without an event. The zero time means never.
func (c *Client) deadline() time.Time {
	deadline := c.binder.deadline
	if t, ok := c.tracker.Deadline(); ok && (deadline.IsZero() || t.Before(deadline)) {
		deadline = t
	}
	return deadline
}

func (c *Client) dispatch(msg *wire.MessageBuffer) error {
	id := msg.Sender()
	obj, err := c.objects.Lookup(id)
	if err != nil {
		c.unknown++
		c.log.Debugw("dropping event for unknown object", "id", id, "op", msg.Op(), "size", msg.Size())
		if c.unknown > maxUnknownObjects {
			return wire.DisconnectedError{Err: fmt.Errorf("too many events for unknown objects: %w", err)}
		}
		return nil
	}
	c.unknown = 0

	ev, name, err := obj.decode(msg)
	if err != nil {
		var opErr wire.UnknownOpError
		if errors.As(err, &opErr) {
			c.log.Warnw("dropping event", "object", obj.name(id), "err", err)
			return nil
		}
		return wire.DisconnectedError{Err: fmt.Errorf("decode %v.%v: %w", obj.name(id), name, err)}
	}
	if debug.Enabled() {
		debug.Printf("%v", msg.Debug(obj.name(id), name))
	}

	return c.handle(id, ev)
}

func (c *Client) handle(id uint32, ev Event) error {
	switch ev := ev.(type) {
	case DisplayErrorEvent:
		err := ProtocolError{ObjectID: ev.ObjectID, Code: ev.Code, Message: ev.Message}
		c.log.Errorw("compositor reported a protocol error", "object", ev.ObjectID, "code", ev.Code, "message", ev.Message)
		return wire.DisconnectedError{Err: err}

	case DisplayDeleteIDEvent:
		c.objects.Release(ev.ID)
		return nil

	case RegistryGlobalEvent:
		return c.global(ev)

	case RegistryGlobalRemoveEvent:
		return c.globalRemove(ev)

	case CallbackDoneEvent:
		c.syncDone(id)
		return nil

	case SeatCapabilitiesEvent:
		return c.capabilities(id, ev)

	case SeatNameEvent:
		c.seatName(id, ev)
		return nil

	case KeyboardKeymapEvent:
		if id != c.binder.keyboard {
			ev.File.Close()
			return nil
		}
		c.tracker.Keymap(ev.Format, ev.File, ev.Size)
		return nil

	case KeyboardModifiersEvent:
		if id != c.binder.keyboard {
			return nil
		}
		c.tracker.Modifiers(ev.Group, c.now())
		return nil

	case KeyboardRepeatInfoEvent:
		c.log.Debugw("keyboard repeat info", "rate", ev.Rate, "delay", ev.Delay)
		return nil

	case KeyboardEnterEvent, KeyboardLeaveEvent, KeyboardKeyEvent:
		return nil

	default:
		panic(fmt.Errorf("unhandled event type %T", ev))
	}
}

// request starts a request from the object with the given ID.
func (c *Client) request(id uint32, op uint16) *wire.MessageBuilder {
	msg := wire.NewMessage(id, op)
	if obj, err := c.objects.Lookup(id); err == nil {
		msg.Target = obj.name(id)
		if names := requests[obj.iface]; int(op) < len(names) {
			msg.Method = names[op]
		}
	}
	return msg
}

func (c *Client) send(msg *wire.MessageBuilder) error {
	if debug.Enabled() {
		debug.Printf(" -> %v", msg)
	}
	return msg.Build(c.conn)
}
