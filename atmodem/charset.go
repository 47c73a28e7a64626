package atmodem

import (
	"fmt"
	"strings"

	"github.com/warthog618/sms/encoding/gsm7"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"i4.energy/across/modemd/at"
)

// Charset is a TE character set selected with +CSCS. Values are bit flags so
// a set of supported charsets fits in one Charset.
type Charset uint32

const (
	CharsetGSM Charset = 1 << iota
	CharsetHEX
	CharsetIRA
	CharsetPCCP437
	CharsetPCDN
	CharsetUCS2
	CharsetUTF8
	Charset8859_1
	Charset8859_2
	Charset8859_3
	Charset8859_4
	Charset8859_5
	Charset8859_6
	Charset8859_C
	Charset8859_A
	Charset8859_G
	Charset8859_H
)

var charsetNames = []struct {
	name string
	cs   Charset
}{
	{"GSM", CharsetGSM},
	{"HEX", CharsetHEX},
	{"IRA", CharsetIRA},
	{"PCCP437", CharsetPCCP437},
	{"PCDN", CharsetPCDN},
	{"UCS2", CharsetUCS2},
	{"UTF-8", CharsetUTF8},
	{"8859-1", Charset8859_1},
	{"8859-2", Charset8859_2},
	{"8859-3", Charset8859_3},
	{"8859-4", Charset8859_4},
	{"8859-5", Charset8859_5},
	{"8859-6", Charset8859_6},
	{"8859-C", Charset8859_C},
	{"8859-A", Charset8859_A},
	{"8859-G", Charset8859_G},
	{"8859-H", Charset8859_H},
}

// ParseCharsetName maps a +CSCS name to its Charset.
func ParseCharsetName(name string) (Charset, bool) {
	for _, n := range charsetNames {
		if n.name == name {
			return n.cs, true
		}
	}
	return 0, false
}

func (c Charset) String() string {
	var names []string
	for _, n := range charsetNames {
		if c&n.cs != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("Charset(%#x)", uint32(c))
	}
	return strings.Join(names, "|")
}

// ParseCSCSSupported parses the answer to AT+CSCS=?. Unknown names are
// ignored.
func ParseCSCSSupported(r *at.Result) (Charset, bool) {
	iter := at.NewResultIter(r)
	if !iter.Next("+CSCS:") {
		return 0, false
	}

	// Some modems don't report CSCS in a proper list.
	iter.OpenList()

	var supported Charset
	for {
		name, ok := iter.NextString()
		if !ok {
			break
		}
		if cs, ok := ParseCharsetName(name); ok {
			supported |= cs
		}
	}

	iter.CloseList()
	return supported, true
}

// ParseCSCSQuery parses the answer to AT+CSCS?.
func ParseCSCSQuery(r *at.Result) (Charset, bool) {
	iter := at.NewResultIter(r)
	if !iter.Next("+CSCS:") {
		return 0, false
	}

	name, ok := iter.NextString()
	if !ok {
		return 0, false
	}
	return ParseCharsetName(name)
}

var charmaps = map[Charset]encoding.Encoding{
	CharsetPCCP437: charmap.CodePage437,
	CharsetPCDN:    charmap.CodePage865,
	Charset8859_1:  charmap.ISO8859_1,
	Charset8859_2:  charmap.ISO8859_2,
	Charset8859_3:  charmap.ISO8859_3,
	Charset8859_4:  charmap.ISO8859_4,
	Charset8859_5:  charmap.ISO8859_5,
	Charset8859_6:  charmap.ISO8859_6,
	Charset8859_C:  charmap.ISO8859_5,
	Charset8859_A:  charmap.ISO8859_6,
	Charset8859_G:  charmap.ISO8859_7,
	Charset8859_H:  charmap.ISO8859_8,
}

// DecodeCharset converts a string reported by the modem in charset cs to
// UTF-8.
func DecodeCharset(cs Charset, s string) (string, error) {
	switch cs {
	case CharsetIRA, CharsetUTF8:
		return s, nil

	case CharsetHEX:
		b, err := at.DecodeHex(s)
		if err != nil {
			return "", err
		}
		return string(b), nil

	case CharsetUCS2:
		b, err := at.DecodeHex(s)
		if err != nil {
			return "", err
		}
		out, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
		if err != nil {
			return "", fmt.Errorf("decode UCS2: %w", err)
		}
		return string(out), nil

	case CharsetGSM:
		out, err := gsm7.Decode([]byte(s))
		if err != nil {
			return "", fmt.Errorf("decode GSM: %w", err)
		}
		return string(out), nil
	}

	enc, ok := charmaps[cs]
	if !ok {
		return "", fmt.Errorf("unsupported charset %v", cs)
	}
	out, err := enc.NewDecoder().String(s)
	if err != nil {
		return "", fmt.Errorf("decode %v: %w", cs, err)
	}
	return out, nil
}
