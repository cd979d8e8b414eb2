package aggregator

import (
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
)

// Ellipsis marks truncated text.
const Ellipsis = "…"

// Layout describes how slot fragments are joined into one line.
type Layout struct {
	Separator string
	Prefix    string
	Suffix    string

	// MaxWidth caps the whole line in display cells; 0 disables.
	MaxWidth int

	// Widths caps individual blocks by name; 0 or absent disables.
	Widths map[string]int
}

// Compose joins frags, which are in display order and named by names.
// The result depends only on its inputs.
func (l Layout) Compose(names []string, frags []blocks.Fragment) string {
	parts := make([]string, len(frags))
	for i, f := range frags {
		text := f.Text
		if i < len(names) {
			if w := l.Widths[names[i]]; w > 0 {
				text = ansi.Truncate(text, w, Ellipsis)
			}
		}
		parts[i] = text
	}

	line := l.Prefix + strings.Join(parts, l.Separator) + l.Suffix
	if l.MaxWidth > 0 && ansi.StringWidth(line) > l.MaxWidth {
		line = ansi.Truncate(line, l.MaxWidth, Ellipsis)
	}
	return line
}
