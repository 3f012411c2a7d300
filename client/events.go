package wl

import (
	"os"

	"deedles.dev/wlkbd/wire"
)

// Event is a decoded event. The concrete types are the structs below.
type Event interface {
	isEvent()
}

type DisplayErrorEvent struct {
	ObjectID uint32
	Code     uint32
	Message  string
}

type DisplayDeleteIDEvent struct {
	ID uint32
}

type RegistryGlobalEvent struct {
	Name      uint32
	Interface string
	Version   uint32
}

type RegistryGlobalRemoveEvent struct {
	Name uint32
}

type CallbackDoneEvent struct {
	Data uint32
}

type SeatCapabilitiesEvent struct {
	Capabilities uint32
}

type SeatNameEvent struct {
	Name string
}

// KeyboardKeymapEvent carries the compositor's keymap. The receiver
// owns File.
type KeyboardKeymapEvent struct {
	Format uint32
	File   *os.File
	Size   uint32
}

type KeyboardEnterEvent struct {
	Serial  uint32
	Surface uint32
	Keys    []byte
}

type KeyboardLeaveEvent struct {
	Serial  uint32
	Surface uint32
}

type KeyboardKeyEvent struct {
	Serial uint32
	Time   uint32
	Key    uint32
	State  uint32
}

type KeyboardModifiersEvent struct {
	Serial    uint32
	Depressed uint32
	Latched   uint32
	Locked    uint32
	Group     uint32
}

type KeyboardRepeatInfoEvent struct {
	Rate  int32
	Delay int32
}

func (DisplayErrorEvent) isEvent()         {}
func (DisplayDeleteIDEvent) isEvent()      {}
func (RegistryGlobalEvent) isEvent()       {}
func (RegistryGlobalRemoveEvent) isEvent() {}
func (CallbackDoneEvent) isEvent()         {}
func (SeatCapabilitiesEvent) isEvent()     {}
func (SeatNameEvent) isEvent()             {}
func (KeyboardKeymapEvent) isEvent()       {}
func (KeyboardEnterEvent) isEvent()        {}
func (KeyboardLeaveEvent) isEvent()        {}
func (KeyboardKeyEvent) isEvent()          {}
func (KeyboardModifiersEvent) isEvent()    {}
func (KeyboardRepeatInfoEvent) isEvent()   {}

type eventDecoder struct {
	name   string
	decode func(*wire.MessageBuffer) Event
}

// events holds the decode table of each interface, indexed by opcode.
var events = map[Interface][]eventDecoder{
	InterfaceDisplay: {
		{"error", func(msg *wire.MessageBuffer) Event {
			return DisplayErrorEvent{
				ObjectID: msg.ReadObject(),
				Code:     msg.ReadUint(),
				Message:  msg.ReadString(),
			}
		}},
		{"delete_id", func(msg *wire.MessageBuffer) Event {
			return DisplayDeleteIDEvent{ID: msg.ReadUint()}
		}},
	},

	InterfaceRegistry: {
		{"global", func(msg *wire.MessageBuffer) Event {
			return RegistryGlobalEvent{
				Name:      msg.ReadUint(),
				Interface: msg.ReadString(),
				Version:   msg.ReadUint(),
			}
		}},
		{"global_remove", func(msg *wire.MessageBuffer) Event {
			return RegistryGlobalRemoveEvent{Name: msg.ReadUint()}
		}},
	},

	InterfaceCallback: {
		{"done", func(msg *wire.MessageBuffer) Event {
			return CallbackDoneEvent{Data: msg.ReadUint()}
		}},
	},

	InterfaceSeat: {
		{"capabilities", func(msg *wire.MessageBuffer) Event {
			return SeatCapabilitiesEvent{Capabilities: msg.ReadUint()}
		}},
		{"name", func(msg *wire.MessageBuffer) Event {
			return SeatNameEvent{Name: msg.ReadString()}
		}},
	},

	InterfaceKeyboard: {
		{"keymap", func(msg *wire.MessageBuffer) Event {
			return KeyboardKeymapEvent{
				Format: msg.ReadUint(),
				File:   msg.ReadFile(),
				Size:   msg.ReadUint(),
			}
		}},
		{"enter", func(msg *wire.MessageBuffer) Event {
			return KeyboardEnterEvent{
				Serial:  msg.ReadUint(),
				Surface: msg.ReadObject(),
				Keys:    msg.ReadArray(),
			}
		}},
		{"leave", func(msg *wire.MessageBuffer) Event {
			return KeyboardLeaveEvent{
				Serial:  msg.ReadUint(),
				Surface: msg.ReadObject(),
			}
		}},
		{"key", func(msg *wire.MessageBuffer) Event {
			return KeyboardKeyEvent{
				Serial: msg.ReadUint(),
				Time:   msg.ReadUint(),
				Key:    msg.ReadUint(),
				State:  msg.ReadUint(),
			}
		}},
		{"modifiers", func(msg *wire.MessageBuffer) Event {
			return KeyboardModifiersEvent{
				Serial:    msg.ReadUint(),
				Depressed: msg.ReadUint(),
				Latched:   msg.ReadUint(),
				Locked:    msg.ReadUint(),
				Group:     msg.ReadUint(),
			}
		}},
		{"repeat_info", func(msg *wire.MessageBuffer) Event {
			return KeyboardRepeatInfoEvent{
				Rate:  msg.ReadInt(),
				Delay: msg.ReadInt(),
			}
		}},
	},
}

// decode decodes msg according to the decode table of obj.
func (obj *object) decode(msg *wire.MessageBuffer) (Event, string, error) {
	op := msg.Op()
	if int(op) >= len(obj.events) {
		return nil, "", wire.UnknownOpError{Interface: obj.iface.String(), Type: "event", Op: op}
	}

	dec := obj.events[op]
	ev := dec.decode(msg)
	if err := msg.Err(); err != nil {
		msg.Close()
		return nil, dec.name, err
	}
	return ev, dec.name, nil
}
