// Package at implements the framing and decoding half of an AT command
// channel: byte-level syntax state machines that find frame boundaries in a
// modem byte stream, the Result type that carries a finished response, and
// the ResultIter cursor drivers use to pull typed fields out of it.
package at

const (
	// Terminal Control
	CR     = '\r'
	LF     = '\n'
	CtrlZ  = 0x1a
	CRLF   = "\r\n"
	Prompt = "> "

	// Response Codes
	OK         = "OK"
	ERROR      = "ERROR"
	Connect    = "CONNECT"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"
	ExtError   = "+EXT ERROR:"

	// URCs (Unsolicited Result Codes)
	UrcNewMsg         = "+CMTI:"
	UrcDeliver        = "+CMT:"
	UrcStatusReport   = "+CDS:"
	UrcRegistration   = "+CREG:"
	UrcSignalStrength = "+CSQ:"
	UrcUSSD           = "+CUSD:"
	UrcCall           = "RING"
)
