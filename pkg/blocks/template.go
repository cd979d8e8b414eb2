package blocks

import (
	"sort"
	"strings"
)

// Template is a block format string with {NAME} placeholders, e.g.
// "{IPv4} · {ESSID}". Unknown placeholders are left untouched.
type Template string

// Render substitutes values into the template.
func (t Template) Render(values map[string]string) string {
	if len(values) == 0 {
		return string(t)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", values[k])
	}
	return strings.NewReplacer(pairs...).Replace(string(t))
}

// Uses reports whether the template references placeholder name. Blocks use
// it to skip queries whose results would not be shown.
func (t Template) Uses(name string) bool {
	return strings.Contains(string(t), "{"+name+"}")
}
