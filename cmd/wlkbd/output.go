package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"deedles.dev/wlkbd/internal/icon"
	"deedles.dev/wlkbd/layout"
	"go.uber.org/zap"
)

type outputFormat string

const (
	formatText outputFormat = "text"
	formatJSON outputFormat = "json"
)

func parseOutputFormat(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(s)); f {
	case formatText, formatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

type update struct {
	Label  string
	Detail layout.Detail
}

// statusLine is a line of waybar-style custom module output.
type statusLine struct {
	Text    string `json:"text"`
	Tooltip string `json:"tooltip"`
	Class   string `json:"class"`
	Alt     string `json:"alt"`
	Icon    string `json:"icon,omitempty"`
}

// sink writes one line per update.
type sink struct {
	w      io.Writer
	format outputFormat
	icons  *icon.Renderer
	log    *zap.SugaredLogger
}

func newSink(w io.Writer, format outputFormat, icons *icon.Renderer, log *zap.SugaredLogger) *sink {
	return &sink{
		w:      w,
		format: format,
		icons:  icons,
		log:    log,
	}
}

func (s *sink) Write(u update) error {
	var iconPath string
	if s.icons != nil {
		path, err := s.icons.Path(u.Label)
		if err != nil {
			s.log.Warnw("failed to render icon", "label", u.Label, "err", err)
		}
		iconPath = path
	}

	switch s.format {
	case formatJSON:
		line := statusLine{
			Text:    u.Label,
			Tooltip: tooltip(u),
			Class:   class(u),
			Alt:     u.Detail.Layout,
			Icon:    iconPath,
		}
		data, err := json.Marshal(line)
		if err != nil {
			return fmt.Errorf("marshal status: %w", err)
		}
		_, err = fmt.Fprintf(s.w, "%s\n", data)
		return err

	default:
		_, err := fmt.Fprintln(s.w, u.Label)
		return err
	}
}

func tooltip(u update) string {
	if u.Detail.Layout == "" {
		if u.Label == layout.Placeholder {
			return "Keyboard layout: unknown"
		}
		return fmt.Sprintf("Keyboard layout: %v (group %v)", u.Label, u.Detail.Group)
	}
	return fmt.Sprintf("Keyboard layout: %v (group %v)", u.Detail.Layout, u.Detail.Group)
}

func class(u update) string {
	if u.Label == layout.Placeholder {
		return "unknown"
	}
	return strings.ToLower(u.Label)
}
