package at

import (
	"strings"
)

// Result is a finished modem response.
//
// For a command, Lines holds the intermediate lines accepted by the
// command's prefix filter and Final the final result line. For a
// notification, Lines holds the notification line and Final is empty. PDU is
// set when the response carried a PDU line after its header.
type Result struct {
	Lines []string
	Final string
	PDU   string
}

// FinalResponse returns the final result line, e.g. "OK" or "+CME ERROR: 10".
func (r *Result) FinalResponse() string {
	if r == nil {
		return ""
	}
	return r.Final
}

// ResultIter is a pull cursor over the lines of a Result. Next selects a
// line; the typed accessors consume comma separated fields of the current
// line from left to right. Accessors report false instead of failing hard
// and leave the cursor in place when the field does not have the asked shape.
type ResultIter struct {
	result *Result
	line   int // index of the current line, -1 before the first Next
	pos    int // offset of the next field in the current line
}

// NewResultIter returns an iterator positioned before the first line of r.
func NewResultIter(r *Result) *ResultIter {
	return &ResultIter{result: r, line: -1}
}

// Next advances to the next line that begins with prefix and positions the
// cursor after the prefix and any following spaces. An empty prefix matches
// any line and leaves the cursor at its start. If no later line matches the
// iterator does not move and Next returns false.
func (it *ResultIter) Next(prefix string) bool {
	if it.result == nil {
		return false
	}

	for i := it.line + 1; i < len(it.result.Lines); i++ {
		l := it.result.Lines[i]
		if prefix == "" {
			it.line, it.pos = i, 0
			return true
		}
		if !strings.HasPrefix(l, prefix) {
			continue
		}
		it.line, it.pos = i, skipSpaces(l, len(prefix))
		return true
	}

	return false
}

// RawLine returns the whole current line.
func (it *ResultIter) RawLine() string {
	l, ok := it.current()
	if !ok {
		return ""
	}
	return l
}

// PDU returns the PDU attached to the result, if any.
func (it *ResultIter) PDU() string {
	if it.result == nil {
		return ""
	}
	return it.result.PDU
}

// FinalResponse returns the final result line of the result.
func (it *ResultIter) FinalResponse() string {
	return it.result.FinalResponse()
}

// NextNumber reads an unsigned decimal number.
func (it *ResultIter) NextNumber() (int, bool) {
	l, ok := it.current()
	if !ok {
		return 0, false
	}

	end, value := it.pos, 0
	for end < len(l) && isDigit(l[end]) {
		value = value*10 + int(l[end]-'0')
		end++
	}
	if end == it.pos {
		return 0, false
	}

	it.pos = skipToNextField(l, end)
	return value, true
}

// NextRange reads either "a-b" or a bare "a", returning inclusive bounds.
func (it *ResultIter) NextRange() (lo, hi int, ok bool) {
	l, ok := it.current()
	if !ok {
		return 0, 0, false
	}

	pos := skipSpaces(l, it.pos)
	end := pos
	for end < len(l) && isDigit(l[end]) {
		lo = lo*10 + int(l[end]-'0')
		end++
	}
	if end == pos {
		return 0, 0, false
	}

	if end >= len(l) || l[end] != '-' {
		it.pos = skipToNextField(l, end)
		return lo, lo, true
	}

	pos = end + 1
	end = pos
	for end < len(l) && isDigit(l[end]) {
		hi = hi*10 + int(l[end]-'0')
		end++
	}
	if end == pos {
		return 0, 0, false
	}

	it.pos = skipToNextField(l, end)
	return lo, hi, true
}

// NextString reads a double quoted string. A field that is omitted entirely
// (the cursor sits on a comma) yields an empty string.
func (it *ResultIter) NextString() (string, bool) {
	l, ok := it.current()
	if !ok || it.pos >= len(l) {
		return "", false
	}

	if l[it.pos] == ',' {
		it.pos = skipToNextField(l, it.pos)
		return "", true
	}
	if l[it.pos] != '"' {
		return "", false
	}

	start := it.pos + 1
	end := strings.IndexByte(l[start:], '"')
	if end < 0 {
		return "", false
	}
	end += start

	it.pos = skipToNextField(l, end+1)
	return l[start:end], true
}

// NextUnquotedString reads a bare token up to the next comma or closing
// parenthesis.
func (it *ResultIter) NextUnquotedString() (string, bool) {
	l, ok := it.current()
	if !ok || it.pos >= len(l) {
		return "", false
	}

	if l[it.pos] == ',' {
		it.pos = skipToNextField(l, it.pos)
		return "", true
	}
	if l[it.pos] == '"' || l[it.pos] == ')' {
		return "", false
	}

	start, end := it.pos, it.pos
	for end < len(l) && l[end] != ',' && l[end] != ')' {
		end++
	}

	it.pos = skipToNextField(l, end)
	return l[start:end], true
}

// NextHexString reads an optionally quoted run of hex digit pairs and
// returns the decoded bytes. An omitted field yields an empty slice.
func (it *ResultIter) NextHexString() ([]byte, bool) {
	l, ok := it.current()
	if !ok || it.pos >= len(l) {
		return nil, false
	}

	if l[it.pos] == ',' {
		it.pos = skipToNextField(l, it.pos)
		return []byte{}, true
	}

	pos := it.pos
	if l[pos] == '"' {
		pos++
	}
	end := pos
	for end < len(l) && isHexDigit(l[end]) {
		end++
	}
	if (end-pos)%2 != 0 {
		return nil, false
	}

	data, err := DecodeHex(l[pos:end])
	if err != nil {
		return nil, false
	}

	if end < len(l) && l[end] == '"' {
		end++
	}
	it.pos = skipToNextField(l, end)
	return data, true
}

// SkipNext steps over one field of any shape, including quoted strings and
// nested parenthesized lists.
func (it *ResultIter) SkipNext() bool {
	l, ok := it.current()
	if !ok {
		return false
	}

	to := skipUntil(l, it.pos, ',')
	if to == it.pos && (to >= len(l) || l[to] != ',') {
		return false
	}

	it.pos = skipToNextField(l, to)
	return true
}

// OpenList enters a parenthesized list.
func (it *ResultIter) OpenList() bool {
	l, ok := it.current()
	if !ok || it.pos >= len(l) || l[it.pos] != '(' {
		return false
	}

	it.pos = skipSpaces(l, it.pos+1)
	return true
}

// CloseList leaves a parenthesized list and moves to the field after it.
func (it *ResultIter) CloseList() bool {
	l, ok := it.current()
	if !ok || it.pos >= len(l) || l[it.pos] != ')' {
		return false
	}

	it.pos = skipToNextField(l, it.pos+1)
	return true
}

func (it *ResultIter) current() (string, bool) {
	if it.result == nil || it.line < 0 || it.line >= len(it.result.Lines) {
		return "", false
	}
	return it.result.Lines[it.line], true
}

func skipSpaces(l string, pos int) int {
	for pos < len(l) && l[pos] == ' ' {
		pos++
	}
	return pos
}

func skipToNextField(l string, pos int) int {
	if pos < len(l) && l[pos] == ',' {
		pos++
	}
	return skipSpaces(l, pos)
}

// skipUntil returns the offset of the next delim at the current nesting
// level, stepping over quoted strings and parenthesized groups.
func skipUntil(l string, start int, delim byte) int {
	i := start
	for i < len(l) {
		switch l[i] {
		case delim:
			return i
		case '"':
			i++
			for i < len(l) && l[i] != '"' {
				i++
			}
			if i < len(l) {
				i++
			}
		case '(':
			i = skipUntil(l, i+1, ')')
			if i < len(l) {
				i++
			}
		default:
			i++
		}
	}
	return i
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isHexDigit(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}
