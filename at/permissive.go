package at

type permissiveState int

const (
	permissiveIdle permissiveState = iota
	permissiveResponse
	permissiveGuessPDU
	permissivePDU
	permissivePrompt
)

// Permissive frames lines terminated by a bare CR or LF without requiring
// the leading CRLF. It suits modems that do not follow V1 framing, and
// emulators that echo commands on the response channel.
type Permissive struct {
	state permissiveState
}

var _ Syntax = (*Permissive)(nil)

// NewPermissive returns a permissive state machine in the idle state.
func NewPermissive() *Permissive {
	return &Permissive{}
}

// SetHint implements Syntax. Only HintPDU changes the framing.
func (s *Permissive) SetHint(h Hint) {
	if h == HintPDU {
		s.state = permissiveGuessPDU
	}
}

// Reset implements Syntax.
func (s *Permissive) Reset() {
	s.state = permissiveIdle
}

// Feed implements Syntax.
func (s *Permissive) Feed(data []byte) (FrameKind, int) {
	i := 0
	for i < len(data) {
		b := data[i]

		switch s.state {
		case permissiveIdle:
			switch b {
			case CR, LF:
			case '>':
				s.state = permissivePrompt
			default:
				s.state = permissiveResponse
			}

		case permissiveResponse:
			if b == CR || b == LF {
				s.state = permissiveIdle
				return FrameLine, i + 1
			}

		case permissiveGuessPDU:
			if b != CR && b != LF {
				s.state = permissivePDU
			}

		case permissivePDU:
			if b == CR || b == LF {
				s.state = permissiveIdle
				return FramePDU, i + 1
			}

		case permissivePrompt:
			if b == ' ' {
				s.state = permissiveIdle
				return FramePrompt, i + 1
			}
			s.state = permissiveResponse
			continue
		}

		i++
	}

	return FrameUnsure, i
}
