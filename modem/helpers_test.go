package modem_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"i4.energy/across/modemd/modem"
)

var discard = slog.New(slog.DiscardHandler)

const (
	// From +31641600986: "How are you?"
	deliverPDU = "07911326040000F0040B911346610089F60000208062917314080CC8F71D14969741F977FD07"
	// Reference 0x45 to +31641600986 delivered.
	statusReportPDU = "0006450B911346610089F6208062917314082080629173150800"
)

func okReply(lines ...string) string {
	s := ""
	for _, l := range lines {
		s += "\r\n" + l + "\r\n"
	}
	return s + "\r\nOK\r\n"
}

// modemScript answers the conversation of New for a generic modem.
func modemScript() map[string]string {
	return map[string]string{
		"AT":                     okReply(),
		"ATE0":                   okReply(),
		"AT+CMEE=1":              okReply(),
		"AT+CPIN?":               okReply("+CPIN: READY"),
		"AT+CSCS?":               okReply(`+CSCS: "IRA"`),
		"AT+CREG=?":              okReply("+CREG: (0-2)"),
		"AT+CREG=2":              okReply(),
		"AT+CSMS=?":              okReply("+CSMS: (0,1)"),
		"AT+CSMS=1":              okReply("+CSMS: 1,1,1"),
		"AT+CSMS?":               okReply("+CSMS: 1,1,1,1"),
		"AT+CMGF=?":              okReply("+CMGF: (0,1)"),
		"AT+CPMS=?":              okReply(`+CPMS: ("ME","SM"),("ME","SM"),("ME","SM","MT")`),
		"AT+CMGF=0":              okReply(),
		`AT+CPMS="SM","SM","MT"`: okReply("+CPMS: 0,30,0,30,0,30"),
		`AT+CPMS="ME","ME","MT"`: okReply("+CPMS: 0,99,0,99,0,30"),
		"AT+CNMI=?":              okReply("+CNMI: (0-2),(0-3),(0,2),(0-2),(0,1)"),
		"AT+CNMI=2,2,2,1,0":      okReply(),
		"AT+CMGL=4":              okReply(),
		"AT+CMGD=*":              okReply(),
		"AT+CNMA=1,2":            ">\r\nOK\r\n",
	}
}

// newScriptedModem runs New against a scripted modem. build may adjust the
// configuration.
func newScriptedModem(t *testing.T, script map[string]string, build func(*modem.ConfigBuilder)) (*modem.Modem, *modem.TestModem) {
	t.Helper()

	tm := modem.NewTestModem(script)
	t.Cleanup(tm.Stop)

	b := modem.NewConfigBuilder().
		WithDialer(modem.DialerFunc(func(context.Context) (modem.Transport, error) {
			return tm, nil
		})).
		WithMinSendInterval(time.Millisecond).
		WithLogger(discard)
	if build != nil {
		build(b)
	}
	config, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	m, err := modem.New(t.Context(), config)
	if err != nil {
		t.Fatalf("failed to create modem: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, tm
}
