package modem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"i4.energy/across/modemd/at"
	"i4.energy/across/modemd/internal/retry"
)

// SendSMS sends a text message to the specified recipient and returns the
// message reference of every segment. Long texts are split and sent as a
// concatenated message.
//
// The recipient should be in international format (e.g., "+1234567890").
// Messages are spaced at least MinSendInterval apart. A message the modem
// refuses before any segment went out is sent again up to MaxRetries times.
//
// This method blocks until the message is accepted by the network or an error
// occurs. Network delivery (to the final recipient) happens asynchronously
// and is reported as an EventStatusReport when the network supports it.
func (m *Modem) SendSMS(ctx context.Context, recipient, message string) ([]int, error) {
	if err := m.usable(); err != nil {
		return nil, err
	}
	if m.sms == nil {
		return nil, ErrNotInitialized
	}
	if !validRecipient(recipient) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRecipient, recipient)
	}
	if message == "" {
		return nil, ErrEmptyMessage
	}

	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	if wait := time.Until(m.lastSend.Add(m.config.MinSendInterval)); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	defer func() { m.lastSend = time.Now() }()

	policy := retry.Policy{Attempts: m.config.MaxRetries + 1, Backoff: m.config.MinSendInterval}

	var refs []int
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		ctx, cancel := m.withTimeout(ctx)
		defer cancel()

		var err error
		refs, err = m.sms.Submit(ctx, recipient, message)
		if err == nil {
			return nil
		}

		// Only a refusal from the modem is worth another try, and only if
		// the recipient has not received part of the message yet.
		var atErr *at.Error
		if len(refs) > 0 || !errors.As(err, &atErr) {
			return &retry.Permanent{Err: err}
		}
		m.logger.Warn("message refused", "recipient", recipient, "error", err)
		return err
	})
	if err != nil {
		return refs, fmt.Errorf("send SMS: %w", err)
	}

	m.logger.Info("message sent", "recipient", recipient, "segments", len(refs))
	return refs, nil
}

// ServiceCenter returns the SMS service centre address.
func (m *Modem) ServiceCenter(ctx context.Context) (string, error) {
	if m.sms == nil {
		return "", ErrNotInitialized
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	return m.sms.ServiceCenter(ctx)
}

// SetServiceCenter changes the SMS service centre address.
func (m *Modem) SetServiceCenter(ctx context.Context, number string) error {
	if m.sms == nil {
		return ErrNotInitialized
	}
	if !validRecipient(number) {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, number)
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	return m.sms.SetServiceCenter(ctx, number)
}

// validRecipient accepts up to 20 digits with an optional leading +.
func validRecipient(number string) bool {
	digits := strings.TrimPrefix(number, "+")
	if digits == "" || len(digits) > 20 {
		return false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
