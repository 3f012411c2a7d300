package xkb

import (
	"encoding/xml"
	"fmt"
	"os"
)

// DefaultRegistryPath is where most distributions install the rules
// registry.
const DefaultRegistryPath = "/usr/share/X11/xkb/rules/evdev.xml"

// Registry is the part of an XKB rules registry (evdev.xml) that
// describes layouts and their variants.
type Registry struct {
	XMLName    xml.Name   `xml:"xkbConfigRegistry"`
	LayoutList layoutList `xml:"layoutList"`
}

type configItem struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
}

type variant struct {
	ConfigItem configItem `xml:"configItem"`
}

type variantList struct {
	Variant []variant `xml:"variant"`
}

type layout struct {
	ConfigItem  configItem  `xml:"configItem"`
	VariantList variantList `xml:"variantList"`
}

type layoutList struct {
	Layout []layout `xml:"layout"`
}

// LoadRegistry parses the rules registry at path.
func LoadRegistry(path string) (*Registry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	var registry Registry
	err = xml.NewDecoder(file).Decode(&registry)
	if err != nil {
		return nil, fmt.Errorf("decode xml: %w", err)
	}

	return &registry, nil
}

// Description returns the human-readable name of a layout, or of one
// of its variants if variant is not empty. It returns an empty string
// if the registry doesn't know the combination.
func (r *Registry) Description(code, variant string) string {
	if r == nil {
		return ""
	}

	for _, l := range r.LayoutList.Layout {
		if l.ConfigItem.Name != code {
			continue
		}
		if variant == "" {
			return l.ConfigItem.Description
		}

		for _, v := range l.VariantList.Variant {
			if v.ConfigItem.Name == variant {
				return v.ConfigItem.Description
			}
		}
	}

	return ""
}

// Lookup is the inverse of Description. It returns empty strings if no
// layout has the given description.
func (r *Registry) Lookup(description string) (code, variant string) {
	if r == nil {
		return "", ""
	}

	for _, l := range r.LayoutList.Layout {
		if l.ConfigItem.Description == description {
			return l.ConfigItem.Name, ""
		}

		for _, v := range l.VariantList.Variant {
			if v.ConfigItem.Description == description {
				return l.ConfigItem.Name, v.ConfigItem.Name
			}
		}
	}

	return "", ""
}
