// Package layout tracks which keyboard layout is active and derives a
// short label for it from the events a compositor sends.
//
// A Tracker is driven by a single goroutine. It never starts timers of
// its own: a pending group change is exposed through Deadline and
// applied by Settle, so the caller can fold the debounce into whatever
// loop it already runs.
package layout

import (
	"fmt"
	"os"
	"time"

	"deedles.dev/wlkbd/xkb"
	"go.uber.org/zap"
)

const (
	// DefaultDebounce is how long the group has to stay the same
	// before a change is accepted.
	DefaultDebounce = 50 * time.Millisecond

	// DefaultMaxDelay bounds how long a stream of group changes can
	// delay an update.
	DefaultMaxDelay = 150 * time.Millisecond
)

// State is the stage of a Tracker's state machine.
type State int

const (
	// Uninitialized means that no keymap has been received.
	Uninitialized State = iota

	// KeymapKnown means that a keymap has been received, but no
	// modifiers event since then.
	KeymapKnown

	// Tracking means that the group has been reported at least once
	// since the last keymap.
	Tracking
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case KeymapKnown:
		return "keymap known"
	case Tracking:
		return "tracking"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Compiler turns a keymap descriptor into its layout groups. It must
// close file.
type Compiler interface {
	Compile(format uint32, file *os.File, size uint32) ([]xkb.Layout, error)
}

// Detail describes the layout behind a label.
type Detail struct {
	Layout  string
	Variant string
	Group   uint32
}

// ChangeFunc is called with the new label whenever it changes.
type ChangeFunc func(label string, detail Detail)

type pendingGroup struct {
	group    uint32
	since    time.Time
	deadline time.Time
}

// Tracker is the keyboard layout state machine.
type Tracker struct {
	// Debounce and MaxDelay control how group changes are coalesced.
	// A change is applied once the group has been stable for
	// Debounce, but never later than MaxDelay after the first
	// change.
	Debounce time.Duration
	MaxDelay time.Duration

	compiler Compiler
	labels   *Labels
	onChange ChangeFunc
	log      *zap.SugaredLogger

	state   State
	layouts []xkb.Layout
	active  uint32
	pending *pendingGroup

	label  string
	detail Detail
	shown  bool

	// stale is set when state is reset after a label has been shown.
	// Until both a keymap and a modifiers event have arrived, the old
	// label is kept.
	stale        bool
	sawKeymap    bool
	sawModifiers bool
}

// NewTracker returns a Tracker that compiles keymaps with compiler,
// derives labels with labels, and reports changes to onChange. log may
// be nil.
func NewTracker(compiler Compiler, labels *Labels, onChange ChangeFunc, log *zap.SugaredLogger) *Tracker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if onChange == nil {
		onChange = func(string, Detail) {}
	}

	return &Tracker{
		Debounce: DefaultDebounce,
		MaxDelay: DefaultMaxDelay,

		compiler: compiler,
		labels:   labels,
		onChange: onChange,
		log:      log,
		label:    Placeholder,
	}
}

// State returns the current stage of the state machine.
func (t *Tracker) State() State {
	return t.state
}

// Label returns the current label. It is never empty.
func (t *Tracker) Label() string {
	return t.label
}

// Detail returns the layout behind the current label.
func (t *Tracker) Detail() Detail {
	return t.detail
}

// ActiveGroup returns the most recent settled group.
func (t *Tracker) ActiveGroup() uint32 {
	return t.active
}

// Layouts returns the layouts of the current keymap.
func (t *Tracker) Layouts() []xkb.Layout {
	return append([]xkb.Layout(nil), t.layouts...)
}

// Keymap handles a new keymap. The previous keymap is replaced
// entirely, but the active group is kept, as compositors don't
// necessarily resend the modifiers after changing the keymap. If the
// keymap can't be compiled the label falls back to the placeholder.
// The tracker takes ownership of file.
func (t *Tracker) Keymap(format uint32, file *os.File, size uint32) {
	layouts, err := t.compiler.Compile(format, file, size)
	if err != nil {
		t.log.Warnw("failed to compile keymap", "format", xkb.Format(format), "size", size, "err", err)
		layouts = nil
	} else {
		t.log.Infow("received keymap", "layouts", layoutNames(layouts))
	}

	t.layouts = layouts
	t.state = KeymapKnown
	t.sawKeymap = true
	t.recompute()
}

// Modifiers handles a report of the active group. Changes are not
// applied immediately. See Deadline and Settle.
func (t *Tracker) Modifiers(group uint32, now time.Time) {
	t.sawModifiers = true
	if t.state == KeymapKnown {
		t.state = Tracking
	}

	if group == t.active {
		if t.pending != nil {
			t.log.Debugw("group change reverted", "group", group)
			t.pending = nil
		}
		t.recompute()
		return
	}

	if t.pending == nil {
		t.pending = &pendingGroup{since: now}
	}
	t.pending.group = group
	t.pending.deadline = now.Add(t.Debounce)
	if limit := t.pending.since.Add(t.MaxDelay); limit.Before(t.pending.deadline) {
		t.pending.deadline = limit
	}
}

// Deadline returns the time at which a pending group change should be
// settled, if there is one.
func (t *Tracker) Deadline() (time.Time, bool) {
	if t.pending == nil {
		return time.Time{}, false
	}
	return t.pending.deadline, true
}

// Settle applies a pending group change if its deadline has passed.
func (t *Tracker) Settle(now time.Time) {
	if (t.pending == nil) || now.Before(t.pending.deadline) {
		return
	}

	t.log.Debugw("group changed", "from", t.active, "to", t.pending.group)
	t.active = t.pending.group
	t.pending = nil
	t.recompute()
}

// Refresh derives the label again without any new input. It is used
// after the overrides of the Tracker's Labels have changed.
func (t *Tracker) Refresh() {
	t.recompute()
}

// Reset forgets everything learned from the compositor. It is used
// when the connection or the keyboard is lost. The last label that was
// reported stays current until a new keymap and group have both been
// received.
func (t *Tracker) Reset() {
	t.state = Uninitialized
	t.layouts = nil
	t.active = 0
	t.pending = nil
	t.sawKeymap = false
	t.sawModifiers = false
	t.stale = t.shown
}

func (t *Tracker) recompute() {
	if t.stale {
		if !t.sawKeymap || !t.sawModifiers {
			return
		}
		t.stale = false
	}

	label, detail := t.derive()
	t.detail = detail
	if label == t.label {
		return
	}

	t.label = label
	t.shown = true
	t.log.Infow("layout changed", "label", label, "layout", detail.Layout, "group", detail.Group)
	t.onChange(label, detail)
}

func (t *Tracker) derive() (string, Detail) {
	detail := Detail{Group: t.active}
	if len(t.layouts) == 0 {
		return Placeholder, detail
	}
	if int(t.active) >= len(t.layouts) {
		return fmt.Sprintf("G%d", t.active), detail
	}

	l := t.layouts[t.active]
	detail.Layout = l.Name
	detail.Variant = l.Variant
	return t.labels.Label(l.Name, t.active), detail
}

func layoutNames(layouts []xkb.Layout) []string {
	names := make([]string, 0, len(layouts))
	for _, l := range layouts {
		names = append(names, l.Name)
	}
	return names
}
