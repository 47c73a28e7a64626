package at

type gsmv1State int

const (
	gsmv1Idle gsmv1State = iota
	gsmv1InitialCR
	gsmv1InitialLF
	gsmv1Response
	gsmv1TerminatorCR
	gsmv1GuessMultiline
	gsmv1Multiline
	gsmv1MultilineTerminatorCR
	gsmv1PDUCheckExtraCR
	gsmv1PDUCheckExtraLF
	gsmv1PDU
	gsmv1PDUCR
	gsmv1Prompt
	gsmv1Garbage
	gsmv1GarbageCheckLF
)

// GSMV1 is the 27.007 V1 framing: every response line is wrapped in CRLF
// pairs, PDUs follow their header line, and "> " is the data prompt.
type GSMV1 struct {
	state gsmv1State
}

var _ Syntax = (*GSMV1)(nil)

// NewGSMV1 returns a GSM V1 state machine in the idle state.
func NewGSMV1() *GSMV1 {
	return &GSMV1{}
}

// SetHint implements Syntax.
func (s *GSMV1) SetHint(h Hint) {
	switch h {
	case HintPDU:
		s.state = gsmv1PDUCheckExtraCR
	case HintMultiline:
		s.state = gsmv1GuessMultiline
	}
}

// Reset implements Syntax.
func (s *GSMV1) Reset() {
	s.state = gsmv1Idle
}

// Feed implements Syntax.
func (s *GSMV1) Feed(data []byte) (FrameKind, int) {
	i := 0
	for i < len(data) {
		b := data[i]

		switch s.state {
		case gsmv1Idle:
			if b == CR {
				s.state = gsmv1InitialCR
			} else {
				s.state = gsmv1Garbage
			}

		case gsmv1InitialCR:
			if b == LF {
				s.state = gsmv1InitialLF
			} else {
				s.state = gsmv1Garbage
			}

		case gsmv1InitialLF:
			switch b {
			case CR:
				s.state = gsmv1TerminatorCR
			case '>':
				s.state = gsmv1Prompt
			default:
				s.state = gsmv1Response
			}

		case gsmv1Response:
			if b == CR {
				s.state = gsmv1TerminatorCR
			}

		case gsmv1TerminatorCR:
			s.state = gsmv1Idle
			if b == LF {
				return FrameLine, i + 1
			}
			return FrameUnrecognized, i

		case gsmv1GuessMultiline:
			if b == CR {
				s.state = gsmv1InitialCR
			} else {
				s.state = gsmv1Multiline
			}

		case gsmv1Multiline:
			if b == CR {
				s.state = gsmv1MultilineTerminatorCR
			}

		case gsmv1MultilineTerminatorCR:
			s.state = gsmv1Idle
			if b == LF {
				return FrameMultiline, i + 1
			}
			return FrameUnrecognized, i

		// Some modems insert an extra CRLF between the header line and the
		// PDU, making them two separate lines.
		case gsmv1PDUCheckExtraCR:
			if b == CR {
				s.state = gsmv1PDUCheckExtraLF
			} else {
				s.state = gsmv1PDU
			}

		case gsmv1PDUCheckExtraLF:
			s.state = gsmv1PDU
			if b == LF {
				return FrameUnrecognized, i + 1
			}
			return FrameUnrecognized, i

		case gsmv1PDU:
			if b == CR {
				s.state = gsmv1PDUCR
			}

		case gsmv1PDUCR:
			s.state = gsmv1Idle
			if b == LF {
				return FramePDU, i + 1
			}
			return FrameUnrecognized, i

		case gsmv1Prompt:
			if b == ' ' {
				s.state = gsmv1Idle
				return FramePrompt, i + 1
			}
			// The '>' was response text. Re-examine this byte as part of it.
			s.state = gsmv1Response
			continue

		case gsmv1Garbage:
			if b == CR {
				s.state = gsmv1GarbageCheckLF
			}

		case gsmv1GarbageCheckLF:
			s.state = gsmv1Idle
			if b == LF {
				return FrameUnrecognized, i + 1
			}
			return FrameUnrecognized, i
		}

		i++
	}

	return FrameUnsure, i
}
