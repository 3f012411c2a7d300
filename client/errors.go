package wl

import (
	"fmt"
	"time"
)

// ProtocolError is a fatal error reported by the compositor with
// wl_display.error.
type ProtocolError struct {
	ObjectID uint32
	Code     uint32
	Message  string
}

func (err ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on object %v: code %v: %v", err.ObjectID, err.Code, err.Message)
}

// NoKeyboardSeatError is returned when no seat offered a keyboard in
// time.
type NoKeyboardSeatError struct {
	Seats   int
	Timeout time.Duration
}

func (err NoKeyboardSeatError) Error() string {
	return fmt.Sprintf("no keyboard offered by %v seat(s) within %v", err.Seats, err.Timeout)
}
