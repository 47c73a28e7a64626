package at

//go:generate go tool stringer -type=FrameKind -trimprefix=Frame

// FrameKind classifies the bytes consumed by one Syntax.Feed call.
type FrameKind int

const (
	FrameUnsure       FrameKind = iota // no frame boundary yet, feed more data
	FrameLine                          // one CRLF-delimited line
	FrameMultiline                     // a line without the leading CRLF
	FramePDU                           // raw hex PDU line following a header line
	FramePrompt                        // "> " data-entry prompt
	FrameUnrecognized                  // framing violation, log and discard
)

// Hint tells a Syntax what the next frame is expected to look like.
type Hint int

const (
	HintNone Hint = iota
	HintMultiline
	HintPDU
)

// Syntax finds frame boundaries in a modem byte stream.
//
// Feed examines data from the start and returns the kind of frame completed
// and the number of bytes consumed. FrameUnsure means every byte was consumed
// and no frame completed yet; the caller keeps the bytes and feeds more. Any
// other kind means the bytes consumed in this and previous FrameUnsure calls
// form one frame. The count may be zero only when the frame was completed by
// a terminator handed in earlier. Implementations never block and never
// retain data.
//
// SetHint biases the interpretation of the next frame only. Reset drops any
// partial frame and returns to the idle state.
type Syntax interface {
	Feed(data []byte) (FrameKind, int)
	SetHint(h Hint)
	Reset()
}

// SyntaxKind selects a Syntax implementation.
type SyntaxKind int

const (
	SyntaxGSMV1 SyntaxKind = iota
	SyntaxPermissive
)

// NewSyntax returns a fresh state machine of the given kind.
func NewSyntax(kind SyntaxKind) Syntax {
	if kind == SyntaxPermissive {
		return NewPermissive()
	}
	return NewGSMV1()
}

// ExtractLine strips the framing CR and LF bytes around a Line, Multiline or
// PDU frame.
func ExtractLine(frame []byte) string {
	start, end := 0, len(frame)
	for start < end && (frame[start] == CR || frame[start] == LF) {
		start++
	}
	for end > start && (frame[end-1] == CR || frame[end-1] == LF) {
		end--
	}
	return string(frame[start:end])
}
