package xkb

import (
	"regexp"
	"strconv"
	"strings"
)

// maxGroups bounds the group numbers that are accepted. libxkbcommon
// itself supports at most 32 layouts.
const maxGroups = 32

var (
	symbolsRE   = regexp.MustCompile(`xkb_symbols\s*(?:"([^"]*)")?\s*\{`)
	groupNameRE = regexp.MustCompile(`(?i)\bname\s*\[\s*group\s*(\d+)\s*\]\s*=\s*"([^"]*)"`)
	componentRE = regexp.MustCompile(`^([A-Za-z0-9_./-]+)(?:\(([^)]*)\))?(?::(\d+))?$`)
)

// optionFiles are symbols files that show up in a symbols section name
// because of XKB options or the model rather than because of a layout.
var optionFiles = map[string]bool{
	"altwin":     true,
	"capslock":   true,
	"compose":    true,
	"ctrl":       true,
	"empty":      true,
	"eurosign":   true,
	"group":      true,
	"inet":       true,
	"keypad":     true,
	"kpdl":       true,
	"level3":     true,
	"level5":     true,
	"nbsp":       true,
	"parens":     true,
	"pc":         true,
	"rupeesign":  true,
	"shift":      true,
	"srvr_ctrl":  true,
	"terminate":  true,
	"typo":       true,
	"japan":      true,
	"korean":     true,
	"numpad":     true,
	"mac_vndr":   true,
	"apple":      true,
	"solaris":    true,
	"sun_vndr":   true,
	"macintosh":  true,
	"scrolllock": true,
}

func isOptionFile(file string) bool {
	base, _, _ := strings.Cut(file, "/")
	return optionFiles[file] || optionFiles[base]
}

// Parse extracts the layout groups from the text of a keymap. Display
// names come from the name[GroupN] entries of the symbols section;
// codes and variants come from the section's name, which libxkbcommon
// sets to the symbols components the keymap was built from, such as
// "pc+us+de(nodeadkeys):2+inet(evdev)". registry may be nil.
func Parse(keymap []byte, registry *Registry) ([]Layout, error) {
	loc := symbolsRE.FindSubmatchIndex(keymap)
	if loc == nil {
		return nil, ParseError{Reason: "no xkb_symbols section"}
	}

	var header string
	if loc[2] >= 0 {
		header = string(keymap[loc[2]:loc[3]])
	}
	groups := parseSymbolsName(header)

	names := make(map[int]string)
	for _, m := range groupNameRE.FindAllSubmatch(keymap[loc[1]:], -1) {
		n, err := strconv.Atoi(string(m[1]))
		if (err != nil) || (n < 1) || (n > maxGroups) {
			continue
		}
		names[n] = string(m[2])
	}

	var count int
	for n := range groups {
		count = max(count, n)
	}
	for n := range names {
		count = max(count, n)
	}
	if count == 0 {
		return nil, ParseError{Reason: "no layout groups"}
	}

	layouts := make([]Layout, count)
	for i := range layouts {
		l := groups[i+1]
		l.Name = names[i+1]
		if l.Name == "" {
			l.Name = registry.Description(l.Code, l.Variant)
		}
		if l.Name == "" {
			l.Name = l.Code
		}
		if (l.Code == "") && (l.Name != "") {
			l.Code, l.Variant = registry.Lookup(l.Name)
		}
		layouts[i] = l
	}

	return layouts, nil
}

// parseSymbolsName maps group numbers, starting from 1, to the layout
// components of a symbols section name. The first layout usually has
// no explicit group number.
func parseSymbolsName(name string) map[int]Layout {
	groups := make(map[int]Layout)
	implicit := true

	parts := strings.FieldsFunc(name, func(r rune) bool { return (r == '+') || (r == '|') })
	for _, part := range parts {
		m := componentRE.FindStringSubmatch(strings.TrimSpace(part))
		if (m == nil) || isOptionFile(m[1]) {
			continue
		}
		file, variant, index := m[1], m[2], m[3]

		if index == "" {
			if !implicit {
				continue
			}
			implicit = false
			if _, ok := groups[1]; !ok {
				groups[1] = Layout{Code: file, Variant: variant}
			}
			continue
		}

		n, err := strconv.Atoi(index)
		if (err != nil) || (n < 1) || (n > maxGroups) {
			continue
		}
		groups[n] = Layout{Code: file, Variant: variant}
		if n == 1 {
			implicit = false
		}
	}

	return groups
}
