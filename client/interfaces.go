package wl

import "fmt"

// Interface identifies one of the protocol interfaces that the client
// knows how to talk to.
type Interface uint8

const (
	InterfaceDisplay Interface = iota + 1
	InterfaceRegistry
	InterfaceCallback
	InterfaceSeat
	InterfaceKeyboard
)

var interfaceNames = map[Interface]string{
	InterfaceDisplay:  "wl_display",
	InterfaceRegistry: "wl_registry",
	InterfaceCallback: "wl_callback",
	InterfaceSeat:     "wl_seat",
	InterfaceKeyboard: "wl_keyboard",
}

// String returns the protocol name of the interface, such as
// "wl_seat".
func (i Interface) String() string {
	if name, ok := interfaceNames[i]; ok {
		return name
	}
	return fmt.Sprintf("Interface(%d)", uint8(i))
}

const (
	displayID = 1

	// seatVersion is the highest wl_seat version the client
	// understands.
	seatVersion = 5

	// seatCapabilityKeyboard is the keyboard bit of
	// wl_seat.capabilities.
	seatCapabilityKeyboard = 2
)

// Request opcodes.
const (
	displaySync        uint16 = 0
	displayGetRegistry uint16 = 1

	registryBind uint16 = 0

	seatGetKeyboard uint16 = 1
	seatRelease     uint16 = 3

	keyboardRelease uint16 = 0
)

// Versions at which requests were introduced.
const (
	seatReleaseSince     = 5
	keyboardReleaseSince = 3
)

// requests names the requests of each interface by opcode. Only the
// requests that the client sends are used, but every entry is listed
// so that opcodes line up with the protocol.
var requests = map[Interface][]string{
	InterfaceDisplay:  {"sync", "get_registry"},
	InterfaceRegistry: {"bind"},
	InterfaceCallback: {},
	InterfaceSeat:     {"get_pointer", "get_keyboard", "get_touch", "release"},
	InterfaceKeyboard: {"release"},
}

// object is what the client keeps in its object table for each live
// object.
type object struct {
	iface   Interface
	version uint32
	events  []eventDecoder
}

func newObject(iface Interface, version uint32) *object {
	return &object{
		iface:   iface,
		version: version,
		events:  events[iface],
	}
}

func (obj *object) name(id uint32) string {
	return fmt.Sprintf("%v#%v", obj.iface, id)
}
