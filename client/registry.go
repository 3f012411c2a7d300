package wl

import (
	"time"

	"deedles.dev/wlkbd/wire"
)

type seat struct {
	id      uint32
	version uint32
	name    string
	caps    uint32
}

// binder holds the registry state of a connection: the seats that have
// been bound and the keyboard that is being listened to.
type binder struct {
	registry uint32
	sync     uint32

	// seats maps global names to bound seats, in announcement order
	// by way of order.
	seats map[uint32]*seat
	order []uint32

	keyboard     uint32
	keyboardSeat uint32

	// deadline is when the connection is given up on if there is
	// still no keyboard. It is zero while a keyboard is held.
	deadline time.Time
	bound    bool
}

func newBinder() binder {
	return binder{seats: make(map[uint32]*seat)}
}

// start requests the registry and a sync callback that signals the end
// of the initial burst of globals.
func (c *Client) start() error {
	c.binder.registry = c.objects.Allocate(newObject(InterfaceRegistry, 1))
	msg := c.request(displayID, displayGetRegistry)
	msg.WriteObject(c.binder.registry)
	err := c.send(msg)
	if err != nil {
		return err
	}

	c.binder.sync = c.objects.Allocate(newObject(InterfaceCallback, 1))
	msg = c.request(displayID, displaySync)
	msg.WriteObject(c.binder.sync)
	err = c.send(msg)
	if err != nil {
		return err
	}

	c.binder.deadline = c.now().Add(c.BindTimeout)
	return nil
}

func (c *Client) checkBind(now time.Time) error {
	if c.binder.deadline.IsZero() || now.Before(c.binder.deadline) {
		return nil
	}
	return NoKeyboardSeatError{Seats: len(c.binder.seats), Timeout: c.BindTimeout}
}

func (c *Client) global(ev RegistryGlobalEvent) error {
	if ev.Interface != InterfaceSeat.String() {
		return nil
	}

	version := min(ev.Version, seatVersion)
	id := c.objects.Allocate(newObject(InterfaceSeat, version))
	msg := c.request(c.binder.registry, registryBind)
	msg.WriteUint(ev.Name)
	msg.WriteNewID(wire.NewID{Interface: ev.Interface, Version: version, ID: id})
	err := c.send(msg)
	if err != nil {
		return err
	}

	c.binder.seats[ev.Name] = &seat{id: id, version: version}
	c.binder.order = append(c.binder.order, ev.Name)
	c.log.Debugw("bound seat", "global", ev.Name, "id", id, "version", version)
	return nil
}

func (c *Client) globalRemove(ev RegistryGlobalRemoveEvent) error {
	s, ok := c.binder.seats[ev.Name]
	if !ok {
		return nil
	}
	delete(c.binder.seats, ev.Name)
	for i, name := range c.binder.order {
		if name == ev.Name {
			c.binder.order = append(c.binder.order[:i], c.binder.order[i+1:]...)
			break
		}
	}
	c.log.Infow("seat removed", "global", ev.Name, "name", s.name)

	if c.binder.keyboardSeat == ev.Name {
		err := c.loseKeyboard()
		if err != nil {
			return err
		}
	}

	if s.version >= seatReleaseSince {
		err := c.send(c.request(s.id, seatRelease))
		if err != nil {
			return err
		}
	}

	return c.requestKeyboard()
}

func (c *Client) syncDone(id uint32) {
	if id != c.binder.sync {
		return
	}
	c.binder.sync = 0
	c.log.Debugw("initial globals received", "seats", len(c.binder.seats))
}

func (c *Client) seatByID(id uint32) (uint32, *seat) {
	for name, s := range c.binder.seats {
		if s.id == id {
			return name, s
		}
	}
	return 0, nil
}

func (c *Client) seatName(id uint32, ev SeatNameEvent) {
	if _, s := c.seatByID(id); s != nil {
		s.name = ev.Name
	}
}

func (c *Client) capabilities(id uint32, ev SeatCapabilitiesEvent) error {
	name, s := c.seatByID(id)
	if s == nil {
		return nil
	}
	s.caps = ev.Capabilities

	if (c.binder.keyboardSeat == name) && (c.binder.keyboard != 0) && (ev.Capabilities&seatCapabilityKeyboard == 0) {
		c.log.Infow("seat lost its keyboard", "seat", s.name)
		err := c.loseKeyboard()
		if err != nil {
			return err
		}
	}

	return c.requestKeyboard()
}

// requestKeyboard asks for the keyboard of the first seat, in
// announcement order, that has one, unless a keyboard is already held.
func (c *Client) requestKeyboard() error {
	if c.binder.keyboard != 0 {
		return nil
	}

	for _, name := range c.binder.order {
		s := c.binder.seats[name]
		if s.caps&seatCapabilityKeyboard == 0 {
			continue
		}

		id := c.objects.Allocate(newObject(InterfaceKeyboard, s.version))
		msg := c.request(s.id, seatGetKeyboard)
		msg.WriteObject(id)
		err := c.send(msg)
		if err != nil {
			return err
		}

		c.binder.keyboard = id
		c.binder.keyboardSeat = name
		c.binder.deadline = time.Time{}
		c.binder.bound = true
		c.log.Infow("listening to keyboard", "seat", s.name, "id", id)
		return nil
	}

	return nil
}

// loseKeyboard stops listening to the current keyboard. The object
// stays in the table until the compositor confirms its deletion so
// that events already in flight still decode.
func (c *Client) loseKeyboard() error {
	id := c.binder.keyboard
	c.binder.keyboard = 0
	c.binder.keyboardSeat = 0
	c.binder.deadline = c.now().Add(c.BindTimeout)
	c.tracker.Reset()

	obj, err := c.objects.Lookup(id)
	if (err != nil) || (obj.version < keyboardReleaseSince) {
		return nil
	}
	return c.send(c.request(id, keyboardRelease))
}
