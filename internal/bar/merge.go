package bar

import (
	"strconv"
	"strings"

	"github.com/asheshgoplani/barkeep/internal/protocol"
)

// splitLines splits command output into lines the way the scope merge
// consumes them: empty output yields no lines at all, a trailing
// newline does not produce a final empty line, and \r\n endings are
// normalized.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	return lines
}

// line returns the i-th output line, or nil past the end.
func line(lines []string, i int) *string {
	if i < len(lines) {
		return &lines[i]
	}
	return nil
}

// mergeField resolves one body field across the three scopes: the
// command output line (immediate), then the block-local config value,
// then the global default. A line that fails to parse contributes no
// value from the immediate scope rather than poisoning the field.
func mergeField[T any](line *string, parse func(string) (T, error), local, global *T) *T {
	if line != nil {
		if v, err := parse(*line); err == nil {
			return &v
		}
	}
	if local != nil {
		v := *local
		return &v
	}
	if global != nil {
		v := *global
		return &v
	}
	return nil
}

func parseString(s string) (string, error) { return s, nil }

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

// mergeBody computes a block's body from command output lines and the
// local and global scopes. Output lines map onto fields positionally in
// protocol declaration order. After all fields resolve, prefix and
// postfix wrap full_text when it is set.
//
// The same merge runs whether the command produced output, failed
// (lines is empty), or was never configured.
func mergeBody(lines []string, local, global *protocol.Body, prefix, postfix *string) protocol.Body {
	body := protocol.Body{
		FullText:            mergeField(line(lines, 0), parseString, local.FullText, global.FullText),
		ShortText:           mergeField(line(lines, 1), parseString, local.ShortText, global.ShortText),
		Color:               mergeField(line(lines, 2), parseString, local.Color, global.Color),
		Background:          mergeField(line(lines, 3), parseString, local.Background, global.Background),
		Border:              mergeField(line(lines, 4), parseString, local.Border, global.Border),
		BorderTop:           mergeField(line(lines, 5), parseUint32, local.BorderTop, global.BorderTop),
		BorderBottom:        mergeField(line(lines, 6), parseUint32, local.BorderBottom, global.BorderBottom),
		BorderLeft:          mergeField(line(lines, 7), parseUint32, local.BorderLeft, global.BorderLeft),
		BorderRight:         mergeField(line(lines, 8), parseUint32, local.BorderRight, global.BorderRight),
		MinWidth:            mergeField(line(lines, 9), parseString, local.MinWidth, global.MinWidth),
		Align:               mergeField(line(lines, 10), protocol.ParseAlign, local.Align, global.Align),
		Name:                mergeField(line(lines, 11), parseString, local.Name, global.Name),
		Instance:            mergeField(line(lines, 12), parseString, local.Instance, global.Instance),
		Urgent:              mergeField(line(lines, 13), strconv.ParseBool, local.Urgent, global.Urgent),
		Separator:           mergeField(line(lines, 14), strconv.ParseBool, local.Separator, global.Separator),
		SeparatorBlockWidth: mergeField(line(lines, 15), parseUint32, local.SeparatorBlockWidth, global.SeparatorBlockWidth),
		Markup:              mergeField(line(lines, 16), protocol.ParseMarkup, local.Markup, global.Markup),
	}

	if body.FullText != nil {
		text := *body.FullText
		if prefix != nil {
			text = *prefix + text
		}
		if postfix != nil {
			text += *postfix
		}
		body.FullText = &text
	}

	return body
}
