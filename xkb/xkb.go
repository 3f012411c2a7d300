// Package xkb extracts the configured layout groups from the text form
// of an XKB keymap, which is what Wayland compositors send to their
// clients. It does not compile keymaps in full. Only the symbols
// section is examined.
package xkb

import (
	"bytes"
	"fmt"
	"os"

	"deedles.dev/wlkbd/shm"
)

// Format is the format of a keymap, as announced by wl_keyboard.keymap.
type Format uint32

const (
	FormatNoKeymap Format = iota
	FormatXkbV1
)

func (f Format) String() string {
	switch f {
	case FormatNoKeymap:
		return "no_keymap"
	case FormatXkbV1:
		return "xkb_v1"
	}
	return fmt.Sprintf("Format(%d)", uint32(f))
}

// Layout describes one layout group of a keymap.
type Layout struct {
	// Name is the display name, such as "German (Switzerland)".
	Name string

	// Code is the symbols file the layout comes from, such as "ch".
	// It may be empty if the keymap doesn't say.
	Code string

	// Variant is the variant within the symbols file, such as
	// "nodeadkeys". It is empty for the default variant.
	Variant string
}

// ParseError is returned when a keymap can't be turned into a list of
// layouts.
type ParseError struct {
	Reason string
	Err    error
}

func (err ParseError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("parse keymap: %v: %v", err.Reason, err.Err)
	}
	return fmt.Sprintf("parse keymap: %v", err.Reason)
}

func (err ParseError) Unwrap() error {
	return err.Err
}

// Compiler turns keymap descriptors into layout lists. The zero value
// is ready to use. If Registry is set it is used to fill in names and
// variants that the keymap leaves out.
type Compiler struct {
	Registry *Registry
}

// Compile reads a keymap of size bytes from file and returns its
// layouts, one per group, in group order. file is closed before
// Compile returns, whether or not it succeeds.
func (c Compiler) Compile(format uint32, file *os.File, size uint32) ([]Layout, error) {
	defer file.Close()

	if Format(format) != FormatXkbV1 {
		return nil, ParseError{Reason: fmt.Sprintf("unsupported format %v", Format(format))}
	}
	if size == 0 {
		return nil, ParseError{Reason: "empty keymap"}
	}

	mmap, err := shm.MapReadOnly(file, int(size))
	if err != nil {
		return nil, ParseError{Reason: "map keymap", Err: err}
	}
	defer mmap.Unmap()

	return Parse(bytes.TrimRight(mmap, "\x00"), c.Registry)
}
