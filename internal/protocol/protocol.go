// Package protocol implements the data model of swaybar-protocol(7):
// the one-time header object and the body objects the bar emits as an
// infinite JSON array of arrays.
package protocol

import (
	"fmt"
	"strings"
	"syscall"
)

// Defaults for Header fields left unset in configuration.
const (
	DefaultVersion    = 1
	DefaultContSignal = int(syscall.SIGCONT)
	DefaultStopSignal = int(syscall.SIGSTOP)
)

// Header is the preamble object sent once before the body stream.
type Header struct {
	// Version is the protocol version. Currently this must be 1.
	Version int `json:"version" toml:"version"`

	// ClickEvents requests click event information on standard input.
	ClickEvents *bool `json:"click_events,omitempty" toml:"click_events"`

	// ContSignal is the signal swaybar sends to continue processing.
	ContSignal *int `json:"cont_signal,omitempty" toml:"cont_signal"`

	// StopSignal is the signal swaybar sends to stop processing.
	StopSignal *int `json:"stop_signal,omitempty" toml:"stop_signal"`
}

// Cont returns the configured continue signal, or the default.
func (h Header) Cont() int {
	if h.ContSignal != nil {
		return *h.ContSignal
	}
	return DefaultContSignal
}

// Stop returns the configured stop signal, or the default.
func (h Header) Stop() int {
	if h.StopSignal != nil {
		return *h.StopSignal
	}
	return DefaultStopSignal
}

// Body is one block's renderable state. Every field is optional; unset
// fields are omitted from the serialized object. Field order matters to
// the scope merge in internal/bar, which maps command output lines onto
// fields positionally, in declaration order.
type Body struct {
	FullText            *string `json:"full_text,omitempty" toml:"full_text"`
	ShortText           *string `json:"short_text,omitempty" toml:"short_text"`
	Color               *string `json:"color,omitempty" toml:"color"`
	Background          *string `json:"background,omitempty" toml:"background"`
	Border              *string `json:"border,omitempty" toml:"border"`
	BorderTop           *uint32 `json:"border_top,omitempty" toml:"border_top"`
	BorderBottom        *uint32 `json:"border_bottom,omitempty" toml:"border_bottom"`
	BorderLeft          *uint32 `json:"border_left,omitempty" toml:"border_left"`
	BorderRight         *uint32 `json:"border_right,omitempty" toml:"border_right"`
	MinWidth            *string `json:"min_width,omitempty" toml:"min_width"`
	Align               *Align  `json:"align,omitempty" toml:"align"`
	Name                *string `json:"name,omitempty" toml:"name"`
	Instance            *string `json:"instance,omitempty" toml:"instance"`
	Urgent              *bool   `json:"urgent,omitempty" toml:"urgent"`
	Separator           *bool   `json:"separator,omitempty" toml:"separator"`
	SeparatorBlockWidth *uint32 `json:"separator_block_width,omitempty" toml:"separator_block_width"`
	Markup              *Markup `json:"markup,omitempty" toml:"markup"`
}

// Align is the body text alignment.
type Align string

const (
	AlignLeft   Align = "left"
	AlignRight  Align = "right"
	AlignCenter Align = "center"
)

// ParseAlign parses s case-insensitively into an Align.
func ParseAlign(s string) (Align, error) {
	switch strings.ToLower(s) {
	case "left":
		return AlignLeft, nil
	case "right":
		return AlignRight, nil
	case "center":
		return AlignCenter, nil
	}
	return "", fmt.Errorf("invalid align %q", s)
}

// UnmarshalText validates alignment values during config decoding.
func (a *Align) UnmarshalText(text []byte) error {
	parsed, err := ParseAlign(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Markup selects how the text of a block is parsed.
type Markup string

const (
	MarkupPango Markup = "pango"
	MarkupNone  Markup = "none"
)

// ParseMarkup parses s case-insensitively into a Markup.
func ParseMarkup(s string) (Markup, error) {
	switch strings.ToLower(s) {
	case "pango":
		return MarkupPango, nil
	case "none":
		return MarkupNone, nil
	}
	return "", fmt.Errorf("invalid markup %q", s)
}

// UnmarshalText validates markup values during config decoding.
func (m *Markup) UnmarshalText(text []byte) error {
	parsed, err := ParseMarkup(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ClickEvent is the object swaybar writes to standard input when the
// user clicks a block and click_events was requested in the header.
// barkeep does not consume click events itself; the type is part of the
// protocol surface for callers that do.
type ClickEvent struct {
	Name      *string `json:"name"`
	Instance  *string `json:"instance"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Button    int     `json:"button"`
	Event     int     `json:"event"`
	RelativeX int     `json:"relative_x"`
	RelativeY int     `json:"relative_y"`
	Width     uint32  `json:"width"`
	Height    uint32  `json:"height"`
}
