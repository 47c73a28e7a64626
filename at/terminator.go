package at

import "strings"

// Terminator describes a final result line. Exact terminators must match
// the whole line, the others are matched by prefix.
type Terminator struct {
	Text    string
	Exact   bool
	Success bool
}

// Terminators is the final result table every Chat starts with.
var Terminators = []Terminator{
	{Text: OK, Exact: true, Success: true},
	{Text: ERROR, Exact: true},
	{Text: NoDialtone, Exact: true},
	{Text: Busy, Exact: true},
	{Text: NoCarrier, Exact: true},
	{Text: Connect, Success: true},
	{Text: NoAnswer, Exact: true},
	{Text: CmsError},
	{Text: CmeError},
	{Text: ExtError},
}

// Match reports whether line is the final result described by t.
func (t Terminator) Match(line string) bool {
	if t.Exact {
		return line == t.Text
	}
	return strings.HasPrefix(line, t.Text)
}

// MatchTerminator looks line up in the default table and then in extra.
func MatchTerminator(line string, extra []Terminator) (Terminator, bool) {
	for _, t := range Terminators {
		if t.Match(line) {
			return t, true
		}
	}
	for _, t := range extra {
		if t.Match(line) {
			return t, true
		}
	}
	return Terminator{}, false
}
