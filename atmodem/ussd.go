package atmodem

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warthog618/sms/encoding/gsm7"

	"i4.energy/across/modemd/at"
	"i4.energy/across/modemd/chat"
)

// USSD data coding schemes, 23.038 section 5.
const (
	dcsGSM7 = 15
	dcsUCS2 = 72
)

// USSDStatus is the <m> of a +CUSD report.
type USSDStatus int

const (
	USSDNotify USSDStatus = iota
	USSDActionRequired
	USSDTerminated
	USSDLocalClient
	USSDNotSupported
	USSDTimeout
)

// USSDResponse is a network initiated or answering USSD message.
type USSDResponse struct {
	Status USSDStatus `json:"status"`
	Text   string     `json:"text,omitempty"`
}

// USSD is the 27.007 unstructured supplementary service driver.
type USSD struct {
	chat   *chat.Chat
	logger *slog.Logger
	sink   Sink
}

// NewUSSD returns a USSD driver on its own handle of c and starts listening
// for +CUSD reports, which go to sink.
func NewUSSD(c *chat.Chat, sink Sink, logger *slog.Logger) *USSD {
	u := &USSD{
		chat:   c.Clone(),
		logger: logger.With("component", "ussd"),
		sink:   orDiscard(sink),
	}
	u.chat.Register(at.UrcUSSD, false, u.onReport)
	return u
}

// Request starts or continues a USSD session. The answer is reported to the
// sink.
func (u *USSD) Request(ctx context.Context, text string) error {
	septets, err := gsm7.Encode([]byte(text))
	if err != nil {
		return fmt.Errorf("encode USSD string: %w", err)
	}
	packed := gsm7.Pack7BitUSSD(septets, 0)

	cmd := fmt.Sprintf(`AT+CUSD=1,"%s",%d`, at.EncodeHex(packed), dcsGSM7)
	_, err = u.chat.Exec(ctx, cmd, chat.NoPrefix)
	return err
}

// Cancel ends the USSD session.
func (u *USSD) Cancel(ctx context.Context) error {
	_, err := u.chat.Exec(ctx, "AT+CUSD=2", chat.NoPrefix)
	return err
}

func (u *USSD) onReport(r *at.Result) {
	resp, err := ParseCUSD(r)
	if err != nil {
		u.logger.Warn("unable to parse USSD report", "line", r.Lines, "error", err)
		return
	}

	u.sink.USSD(resp)
}

// ParseCUSD parses a +CUSD report. Strings coded as packed GSM 7 bit or
// UCS2 are expected in hex; anything else is taken as it is.
func ParseCUSD(r *at.Result) (USSDResponse, error) {
	iter := at.NewResultIter(r)
	if !iter.Next(at.UrcUSSD) {
		return USSDResponse{}, ErrUnexpectedResponse
	}

	status, ok := iter.NextNumber()
	if !ok {
		return USSDResponse{}, ErrUnexpectedResponse
	}
	resp := USSDResponse{Status: USSDStatus(status)}

	str, ok := iter.NextString()
	if !ok {
		return resp, nil
	}
	dcs, ok := iter.NextNumber()
	if !ok {
		dcs = dcsGSM7
	}

	switch dcs {
	case dcsGSM7:
		packed, err := at.DecodeHex(str)
		if err != nil {
			resp.Text = str
			break
		}
		text, err := gsm7.Decode(gsm7.Unpack7BitUSSD(packed, 0))
		if err != nil {
			return resp, fmt.Errorf("decode USSD string: %w", err)
		}
		resp.Text = string(text)
	case dcsUCS2:
		text, err := DecodeCharset(CharsetUCS2, str)
		if err != nil {
			return resp, fmt.Errorf("decode USSD string: %w", err)
		}
		resp.Text = text
	default:
		resp.Text = str
	}
	return resp, nil
}

// Close stops listening.
func (u *USSD) Close() {
	u.chat.UnregisterAll()
	u.chat.CancelAll()
}
