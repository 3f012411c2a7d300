// Package wire implements the Wayland wire protocol: message framing,
// argument encoding and the transfer of file descriptors alongside
// messages. It knows nothing about particular interfaces.
package wire

// NewID is an untyped new_id argument, as used by wl_registry.bind.
// The interface and version are sent along with the ID because the
// receiver cannot infer them.
type NewID struct {
	Interface string
	Version   uint32
	ID        uint32
}

// maxFDs is the largest number of file descriptors accepted with a
// single read. It matches the limit libwayland uses for one message
// buffer.
const maxFDs = 28
