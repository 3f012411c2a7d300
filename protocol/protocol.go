// Package protocol defines the types necessary for unmarshalling a
// protocol-specification XML file, and embeds the subset of the core
// Wayland protocol that wlkbd speaks.
package protocol

import (
	_ "embed"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

//go:embed wayland.xml
var waylandXML string

type Protocol struct {
	Name      string `xml:"name,attr"`
	Copyright string `xml:"copyright"`

	Interfaces []Interface `xml:"interface"`
}

type Interface struct {
	Name        string      `xml:"name,attr"`
	Version     int         `xml:"version,attr"`
	Description Description `xml:"description"`

	Requests []Op   `xml:"request"`
	Events   []Op   `xml:"event"`
	Enums    []Enum `xml:"enum"`
}

type Description struct {
	Summary string `xml:"summary,attr"`
	Full    string `xml:",chardata"`
}

type Op struct {
	Name        string      `xml:"name,attr"`
	Type        string      `xml:"type,attr"`
	Since       int         `xml:"since,attr"`
	Description Description `xml:"description"`

	Args []Arg `xml:"arg"`
}

// Destructor reports whether the op destroys the object it is sent
// to.
func (op Op) Destructor() bool {
	return op.Type == "destructor"
}

// SinceVersion returns the interface version that introduced the op.
// Ops without a since attribute exist from version 1.
func (op Op) SinceVersion() int {
	return max(op.Since, 1)
}

type Arg struct {
	Name    string `xml:"name,attr"`
	Summary string `xml:"summary,attr"`

	Type      string `xml:"type,attr"`
	Interface string `xml:"interface,attr"`
	Enum      string `xml:"enum,attr"`
	Version   int    `xml:"version,attr"`
}

type Enum struct {
	Name        string      `xml:"name,attr"`
	Bitfield    bool        `xml:"bitfield,attr"`
	Description Description `xml:"description"`

	Entries []Entry `xml:"entry"`
}

type Entry struct {
	Name    string `xml:"name,attr"`
	Summary string `xml:"summary,attr"`
	Value   string `xml:"value,attr"`
}

func (e Entry) Int() (int, error) {
	v, err := strconv.ParseInt(e.Value, 0, 0)
	return int(v), err
}

// Decode reads a protocol description from r.
func Decode(r io.Reader) (proto Protocol, err error) {
	d := xml.NewDecoder(r)
	err = d.Decode(&proto)
	if err != nil {
		return proto, fmt.Errorf("decode protocol XML: %w", err)
	}
	return proto, nil
}

// Load reads a protocol description from the file at path.
func Load(path string) (Protocol, error) {
	file, err := os.Open(path)
	if err != nil {
		return Protocol{}, err
	}
	defer file.Close()

	return Decode(file)
}

// Wayland returns the embedded subset of the core protocol.
func Wayland() (Protocol, error) {
	return Decode(strings.NewReader(waylandXML))
}

// Interface returns the interface with the given name.
func (p Protocol) Interface(name string) (Interface, bool) {
	for _, i := range p.Interfaces {
		if i.Name == name {
			return i, true
		}
	}
	return Interface{}, false
}

// Enum returns the enum with the given name.
func (i Interface) Enum(name string) (Enum, bool) {
	for _, e := range i.Enums {
		if e.Name == name {
			return e, true
		}
	}
	return Enum{}, false
}

// Entry returns the value of the named entry.
func (e Enum) Entry(name string) (int, bool) {
	for _, entry := range e.Entries {
		if entry.Name == name {
			v, err := entry.Int()
			return v, err == nil
		}
	}
	return 0, false
}
