package layout

import (
	"fmt"
	"strings"
	"sync/atomic"
	"unicode"

	"golang.org/x/exp/maps"
)

// Placeholder is the label shown when no layout is known.
const Placeholder = "??"

// builtinLabels maps XKB layout display names, as they appear in
// keymaps, to short labels.
var builtinLabels = map[string]string{
	"English (US)":             "EN",
	"English (UK)":             "EN",
	"English (Dvorak)":         "EN",
	"German":                   "DE",
	"German (Austria)":         "DE",
	"German (Switzerland)":     "DE",
	"French":                   "FR",
	"French (Canada)":          "FR",
	"Spanish":                  "ES",
	"Spanish (Latin American)": "ES",
	"Italian":                  "IT",
	"Portuguese":               "PT",
	"Portuguese (Brazil)":      "PT",
	"Russian":                  "RU",
	"Ukrainian":                "UA",
	"Polish":                   "PL",
	"Czech":                    "CZ",
	"Dutch":                    "NL",
	"Swedish":                  "SE",
	"Norwegian":                "NO",
	"Danish":                   "DK",
	"Finnish":                  "FI",
	"Japanese":                 "JP",
	"Japanese (Kana)":          "JP",
	"Chinese":                  "ZH",
	"Korean":                   "KO",
	"Arabic":                   "AR",
	"Hebrew":                   "HE",
	"Turkish":                  "TR",
	"Greek":                    "GR",
	"Hungarian":                "HU",
	"Romanian":                 "RO",
	"Bulgarian":                "BG",
	"Serbian":                  "RS",
	"Serbian (Cyrillic)":       "RS",
	"Croatian":                 "HR",
	"Slovak":                   "SK",
	"Slovenian":                "SI",
	"Thai":                     "TH",
	"Vietnamese":               "VN",
	"Indonesian":               "ID",
	"Latvian":                  "LV",
	"Lithuanian":               "LT",
	"Estonian":                 "ET",
	"Icelandic":                "IS",
}

// Labels turns layout names into short labels. The user's overrides
// can be replaced at any time, from any goroutine.
type Labels struct {
	overrides atomic.Pointer[map[string]string]
}

// NewLabels returns a Labels with the given overrides, which may be
// nil.
func NewLabels(overrides map[string]string) *Labels {
	var l Labels
	l.SetOverrides(overrides)
	return &l
}

// SetOverrides replaces the user's overrides. The map is copied.
func (l *Labels) SetOverrides(overrides map[string]string) {
	m := maps.Clone(overrides)
	if m == nil {
		m = make(map[string]string)
	}
	l.overrides.Store(&m)
}

// Overrides returns a copy of the current overrides.
func (l *Labels) Overrides() map[string]string {
	return maps.Clone(*l.overrides.Load())
}

// Label returns the label for the layout named name in the given group.
// The first of these that matches wins: the user's overrides, the
// builtin table, the first two letters of the name without its
// parenthesised variant, and finally "G" followed by the group number.
func (l *Labels) Label(name string, group uint32) string {
	if v, ok := lookup(*l.overrides.Load(), name); ok {
		return v
	}
	if v, ok := lookup(builtinLabels, name); ok {
		return v
	}
	if v := abbreviate(baseName(name)); v != "" {
		return v
	}
	return fmt.Sprintf("G%d", group)
}

// lookup finds name in m, trying progressively looser matches: exact,
// case-insensitive, and then both again with the variant removed, so
// that "German (Austria)" can fall back to an entry for "German".
func lookup(m map[string]string, name string) (string, bool) {
	if name == "" {
		return "", false
	}

	for _, key := range []string{name, baseName(name)} {
		if key == "" {
			continue
		}
		if v, ok := m[key]; ok {
			return v, true
		}
		for k, v := range m {
			if strings.EqualFold(k, key) {
				return v, true
			}
		}
	}

	return "", false
}

func baseName(name string) string {
	base, _, _ := strings.Cut(name, "(")
	return strings.TrimSpace(base)
}

func abbreviate(name string) string {
	var label []rune
	for _, c := range name {
		if !unicode.IsLetter(c) {
			continue
		}
		label = append(label, unicode.ToUpper(c))
		if len(label) == 2 {
			break
		}
	}
	return string(label)
}
