package transcript

import (
	"fmt"
	"strings"
	"unicode"
)

// ScriptFilter drops letters that do not belong to any of a fixed set of
// Unicode scripts. Digits, punctuation, and whitespace are always kept. It is
// an optional post-filter for user transcription: speech recognisers
// occasionally emit words in the wrong writing system for the configured
// dialect.
type ScriptFilter struct {
	tables []*unicode.RangeTable
	names  []string
}

// Compile-time assertion that ScriptFilter satisfies Filter.
var _ Filter = (*ScriptFilter)(nil)

// NewScriptFilter builds a filter from Unicode script names as used by the
// unicode package (e.g. "Arabic", "Latin", "Devanagari").
func NewScriptFilter(scripts ...string) (*ScriptFilter, error) {
	if len(scripts) == 0 {
		return nil, fmt.Errorf("transcript: script filter needs at least one script")
	}
	f := &ScriptFilter{}
	for _, name := range scripts {
		tbl, ok := unicode.Scripts[name]
		if !ok {
			return nil, fmt.Errorf("transcript: unknown unicode script %q", name)
		}
		f.tables = append(f.tables, tbl)
		f.names = append(f.names, name)
	}
	return f, nil
}

// Scripts returns the allowed script names.
func (f *ScriptFilter) Scripts() []string {
	return append([]string(nil), f.names...)
}

// Apply returns fragment with disallowed letters removed. Combining marks
// shared between scripts (Inherited or Common, such as Arabic harakat) follow
// the letter they attach to. A fragment whose letters were all disallowed
// collapses to "".
func (f *ScriptFilter) Apply(fragment string) string {
	var (
		b        strings.Builder
		kept     bool
		dropped  bool
		baseKept bool
	)
	b.Grow(len(fragment))
	for _, r := range fragment {
		switch {
		case unicode.IsLetter(r):
			baseKept = unicode.In(r, f.tables...)
		case unicode.Is(unicode.M, r):
			if !unicode.In(r, f.tables...) && !(baseKept && unicode.In(r, unicode.Inherited, unicode.Common)) {
				dropped = true
				continue
			}
			b.WriteRune(r)
			continue
		default:
			baseKept = false
			b.WriteRune(r)
			continue
		}
		if !baseKept {
			dropped = true
			continue
		}
		kept = true
		b.WriteRune(r)
	}
	if dropped && !kept {
		return ""
	}
	return b.String()
}
