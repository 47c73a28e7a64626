package at

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// EncodeHex renders data as upper case hex digit pairs, the form modems
// expect for PDUs and SIM file contents.
func EncodeHex(data []byte) string {
	return strings.ToUpper(hex.EncodeToString(data))
}

// DecodeHex parses a string of hex digit pairs.
func DecodeHex(s string) ([]byte, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex %q: %w", s, err)
	}
	return data, nil
}
