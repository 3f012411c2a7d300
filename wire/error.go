package wire

import (
	"fmt"
)

// UnknownOpError is returned when a message carries an opcode that the
// interface of its target does not define.
type UnknownOpError struct {
	Interface string
	Type      string
	Op        uint16
}

func (err UnknownOpError) Error() string {
	return fmt.Sprintf("unknown %v opcode for %v: %v", err.Type, err.Interface, err.Op)
}

// UnknownObjectError is returned by an attempt to decode a message
// whose target object ID is not known to the receiver.
type UnknownObjectError struct {
	ID uint32
}

func (err UnknownObjectError) Error() string {
	return fmt.Sprintf("unknown object ID: %v", err.ID)
}

// NoEndpointError is returned when the environment does not describe a
// usable Wayland socket. It is not worth retrying.
type NoEndpointError struct {
	Reason string
}

func (err NoEndpointError) Error() string {
	return fmt.Sprintf("no Wayland endpoint: %v", err.Reason)
}

// ConnectionError is returned when a connection to an endpoint could
// not be established.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (err ConnectionError) Error() string {
	return fmt.Sprintf("connect to %v: %v", err.Endpoint, err.Err)
}

func (err ConnectionError) Unwrap() error {
	return err.Err
}

// DisconnectedError is returned once a connection can no longer be
// used, either because the peer went away or because the byte stream
// can no longer be trusted.
type DisconnectedError struct {
	Err error
}

func (err DisconnectedError) Error() string {
	return fmt.Sprintf("disconnected: %v", err.Err)
}

func (err DisconnectedError) Unwrap() error {
	return err.Err
}
