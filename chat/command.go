package chat

import (
	"bytes"
	"strings"

	"i4.energy/across/modemd/at"
)

// NoPrefix declares that a command answers with a final result only. Every
// line seen before that result is treated as unsolicited.
var NoPrefix = []string{}

type command struct {
	id         uint
	group      uint
	wire       []byte
	prefixes   []string
	listing    NotifyFunc
	pduListing bool
	done       ResultFunc
	wakeup     bool
}

// newCommand builds the bytes written for text. A plain command is
// terminated by CR. Text with an embedded CR is sent in segments, each
// after a prompt, and gets Ctrl-Z appended unless it already ends in CR.
func newCommand(text string, prefixes []string, done ResultFunc) *command {
	wire := []byte(text)
	switch {
	case bytes.IndexByte(wire, at.CR) < 0:
		wire = append(wire, at.CR)
	case wire[len(wire)-1] != at.CR:
		wire = append(wire, at.CtrlZ)
	}

	return &command{
		wire:     wire,
		prefixes: prefixes,
		done:     done,
	}
}

func newWakeupCommand(text string) *command {
	wire := []byte(text)
	if len(wire) == 0 || wire[len(wire)-1] != at.CR {
		wire = append(wire, at.CR)
	}
	return &command{wire: wire, prefixes: NoPrefix, wakeup: true}
}

// accepts reports whether line belongs to the command's response. A nil
// prefix list accepts every line.
func (c *command) accepts(line string) bool {
	if c.prefixes == nil {
		return true
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// nextSegment returns the bytes to write after written bytes have gone out:
// everything up to and including the next CR, or the rest.
func (c *command) nextSegment(written int) []byte {
	seg := c.wire[written:]
	if i := bytes.IndexByte(seg, at.CR); i >= 0 {
		seg = seg[:i+1]
	}
	return seg
}
