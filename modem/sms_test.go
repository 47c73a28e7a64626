package modem_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"i4.energy/across/modemd/modem"
)

func TestSendSMS(t *testing.T) {
	// The message body must only be written after the modem prompted for
	// it:
	//
	//  1. Write: AT+CMGS=<length>\r
	//  2. Read:  "> "
	//  3. Write: 00<hex TPDU>\x1a
	//  4. Read:  "+CMGS: 123\r\nOK\r\n"
	//
	// Each mocked Write queues the reply to the bytes it received, so the
	// sequence only completes when the writes come in this order.
	t.Run("Success", func(t *testing.T) {
		m, b := startMockModem(t)
		b.ExpectPrefix("AT+CMGS=", "\r\n> ")
		b.ExpectPrefix("00", "\r\n+CMGS: 123\r\n\r\nOK\r\n")

		refs, err := m.SendSMS(context.Background(), "+1234567890", "Hello World")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(refs) != 1 || refs[0] != 123 {
			t.Errorf("expected reference 123, got %v", refs)
		}
	})

	t.Run("Refused message is retried", func(t *testing.T) {
		m, tm := newScriptedModem(t, modemScript(), nil)
		tm.Reply("AT+CMGS=*", ">\r\n+CMS ERROR: 500\r\n", ">\r\n+CMGS: 9\r\n\r\nOK\r\n")

		refs, err := m.SendSMS(context.Background(), "+31612345678", "retry me")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(refs) != 1 || refs[0] != 9 {
			t.Errorf("expected reference 9, got %v", refs)
		}
		if n := countPrefix(tm.Commands(), "AT+CMGS="); n != 2 {
			t.Errorf("expected 2 submissions, got %d", n)
		}
	})

	t.Run("Gives up after MaxRetries", func(t *testing.T) {
		m, tm := newScriptedModem(t, modemScript(), func(b *modem.ConfigBuilder) {
			b.WithMaxRetries(2)
		})
		tm.Reply("AT+CMGS=*", ">\r\n+CMS ERROR: 500\r\n")

		if _, err := m.SendSMS(context.Background(), "+31612345678", "never"); err == nil {
			t.Fatal("expected error")
		}
		if n := countPrefix(tm.Commands(), "AT+CMGS="); n != 3 {
			t.Errorf("expected 3 submissions, got %d", n)
		}
	})

	t.Run("Long text is sent in segments", func(t *testing.T) {
		script := modemScript()
		script["AT+CMMS=1"] = okReply()
		m, tm := newScriptedModem(t, script, nil)
		tm.Reply("AT+CMGS=*", ">\r\n+CMGS: 1\r\n\r\nOK\r\n", ">\r\n+CMGS: 2\r\n\r\nOK\r\n")

		refs, err := m.SendSMS(context.Background(), "+31612345678", strings.Repeat("x", 200))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(refs) != 2 || refs[0] != 1 || refs[1] != 2 {
			t.Errorf("expected references [1 2], got %v", refs)
		}
	})

	t.Run("A partly sent message is not retried", func(t *testing.T) {
		script := modemScript()
		script["AT+CMMS=1"] = okReply()
		m, tm := newScriptedModem(t, script, nil)
		tm.Reply("AT+CMGS=*", ">\r\n+CMGS: 1\r\n\r\nOK\r\n", ">\r\n+CMS ERROR: 500\r\n")

		refs, err := m.SendSMS(context.Background(), "+31612345678", strings.Repeat("x", 200))
		if err == nil {
			t.Fatal("expected error")
		}
		if len(refs) != 1 {
			t.Errorf("expected the sent segment to be reported, got %v", refs)
		}
		if n := countPrefix(tm.Commands(), "AT+CMGS="); n != 2 {
			t.Errorf("expected 2 submissions, got %d", n)
		}
	})

	t.Run("Spaces messages by MinSendInterval", func(t *testing.T) {
		m, tm := newScriptedModem(t, modemScript(), func(b *modem.ConfigBuilder) {
			b.WithMinSendInterval(100 * time.Millisecond)
		})
		tm.Reply("AT+CMGS=*", ">\r\n+CMGS: 1\r\n\r\nOK\r\n")

		start := time.Now()
		for range 2 {
			if _, err := m.SendSMS(context.Background(), "+31612345678", "tick"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
			t.Errorf("expected the second message to wait, took %v", elapsed)
		}
	})

	t.Run("Rejects bad input", func(t *testing.T) {
		m, tm := newScriptedModem(t, modemScript(), nil)

		tests := []struct {
			name      string
			recipient string
			message   string
			want      error
		}{
			{"empty recipient", "", "hi", modem.ErrInvalidRecipient},
			{"letters", "+31abc", "hi", modem.ErrInvalidRecipient},
			{"lone plus", "+", "hi", modem.ErrInvalidRecipient},
			{"empty message", "+31612345678", "", modem.ErrEmptyMessage},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := m.SendSMS(context.Background(), tt.recipient, tt.message); !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			})
		}
		if n := countPrefix(tm.Commands(), "AT+CMGS="); n != 0 {
			t.Errorf("expected nothing to be sent, got %d submissions", n)
		}
	})
}

func TestReceiveSMS(t *testing.T) {
	m, tm := newScriptedModem(t, modemScript(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Loop(ctx)

	tm.SendData("\r\n+CMT: ,30\r\n" + deliverPDU + "\r\n")

	ev := receiveEvent(t, m)
	if ev.Kind != modem.EventMessage || ev.Message == nil {
		t.Fatalf("expected message event, got %+v", ev)
	}
	if ev.Message.Text != "How are you?" || !strings.Contains(ev.Message.From, "31641600986") {
		t.Errorf("unexpected message %+v", *ev.Message)
	}

	tm.SendData("\r\n+CDS: 25\r\n" + statusReportPDU + "\r\n")

	ev = receiveEvent(t, m)
	if ev.Kind != modem.EventStatusReport || ev.StatusReport == nil {
		t.Fatalf("expected status report event, got %+v", ev)
	}
	if ev.StatusReport.Reference != 0x45 {
		t.Errorf("unexpected reference %d", ev.StatusReport.Reference)
	}
}

func TestServiceCenter(t *testing.T) {
	script := modemScript()
	script["AT+CSCA?"] = okReply(`+CSCA: "+31653131313",145`)
	script[`AT+CSCA="+31653131316",145`] = okReply()
	m, _ := newScriptedModem(t, script, nil)

	sca, err := m.ServiceCenter(context.Background())
	if err != nil || sca != "+31653131313" {
		t.Errorf("unexpected service centre %q (%v)", sca, err)
	}
	if err := m.SetServiceCenter(context.Background(), "+31653131316"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := m.SetServiceCenter(context.Background(), "nope"); !errors.Is(err, modem.ErrInvalidRecipient) {
		t.Errorf("expected ErrInvalidRecipient, got %v", err)
	}
}

func countPrefix(cmds []string, prefix string) int {
	n := 0
	for _, c := range cmds {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}
