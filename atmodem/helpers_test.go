package atmodem_test

import (
	"log/slog"
	"testing"
	"time"

	"i4.energy/across/modemd/atmodem"
	"i4.energy/across/modemd/chat"
	"i4.energy/across/modemd/modem"
)

const waitTimeout = time.Second

var discard = slog.New(slog.DiscardHandler)

func okReply(lines ...string) string {
	s := ""
	for _, l := range lines {
		s += "\r\n" + l + "\r\n"
	}
	return s + "\r\nOK\r\n"
}

func newModem(t *testing.T, script map[string]string) (*chat.Chat, *modem.TestModem) {
	t.Helper()

	m := modem.NewTestModem(script)
	c := chat.New(t.Context(), m, chat.WithLogger(discard))
	t.Cleanup(func() {
		m.Stop()
		c.Shutdown()
		<-c.Done()
	})
	return c, m
}

// reports records what a driver reports, in arrival order.
type reports chan any

func newReports() reports {
	return make(reports, 32)
}

func (r reports) Message(m atmodem.Message)           { r <- m }
func (r reports) StatusReport(s atmodem.StatusReport) { r <- s }
func (r reports) Registration(g atmodem.Registration) { r <- g }
func (r reports) SignalStrength(percent int)          { r <- percent }
func (r reports) USSD(u atmodem.USSDResponse)         { r <- u }

// receive returns the next report, which must be a T.
func receive[T any](t *testing.T, r reports) T {
	t.Helper()
	select {
	case v := <-r:
		got, ok := v.(T)
		if !ok {
			t.Fatalf("expected a %T report, got %T %+v", got, v, v)
		}
		return got
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for notification")
		var zero T
		return zero
	}
}
