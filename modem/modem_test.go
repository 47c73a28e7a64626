package modem_test

import (
	"context"
	"errors"
	"io"
	"slices"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"i4.energy/across/modemd/at"
	"i4.energy/across/modemd/modem"
)

// startMockModem returns an initialized modem whose transport expects to be
// closed once.
func startMockModem(t *testing.T) (*modem.Modem, *MockSequenceBuilder) {
	t.Helper()

	ctrl := gomock.NewController(t)
	mockTransport := modem.NewMockTransport(ctrl)
	mockDialer := modem.NewMockDialer(ctrl)
	b := NewMockSequence(mockTransport)

	gomock.InOrder(slices.Concat(
		[]any{
			mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
		},
		initMockCalls(b),
		[]any{b.Close(nil)},
	)...)

	config, err := modem.NewConfigBuilder().
		WithDialer(mockDialer).
		WithLogger(discard).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	m, err := modem.New(context.Background(), config)
	if err != nil {
		t.Fatalf("failed to create modem: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, b
}

func TestModemNew(t *testing.T) {
	t.Run("Initialization Success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)
		b := NewMockSequence(mockTransport)

		gomock.InOrder(slices.Concat(
			[]any{
				mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			},
			initMockCalls(b),
			[]any{b.Close(nil)},
		)...)

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			WithLogger(discard).
			Build()
		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}

		m, err := modem.New(context.Background(), config)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m == nil {
			t.Fatal("New() should return valid modem on success")
		}

		if err := m.Close(); err != nil {
			t.Errorf("unexpected error from Close(): %v", err)
		}
	})

	t.Run("ErrSIMPinRequired when SIM PIN is required but not provided", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)
		b := NewMockSequence(mockTransport)

		calls := b.
			AT().
			EchoOff().
			ReportErrors().
			SimPinRequired().
			Build()

		gomock.InOrder(
			slices.Concat(
				[]any{
					mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
				},
				calls,
				[]any{b.Close(nil)},
			)...,
		)

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			WithLogger(discard).
			Build()
		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}

		m, err := modem.New(context.Background(), config)
		if !errors.Is(err, modem.ErrSIMPinRequired) {
			t.Errorf("expected ErrSIMPinRequired, got: %v", err)
		}
		if m != nil {
			t.Error("New() should return nil modem when error occurs")
		}
	})

	t.Run("Enters the SIM PIN and waits for the SIM", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)
		b := NewMockSequence(mockTransport)

		calls := b.
			AT().
			EchoOff().
			ReportErrors().
			SimPinRequired().
			EnterPIN("1234").
			SimPinRequired().
			SimReady().
			Charset().
			NetReg().
			SMS().
			Build()

		gomock.InOrder(
			slices.Concat(
				[]any{
					mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
				},
				calls,
				[]any{b.Close(nil)},
			)...,
		)

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			WithSimPIN("1234").
			WithPINPollInterval(time.Millisecond).
			WithLogger(discard).
			Build()
		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}

		m, err := modem.New(context.Background(), config)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := m.Close(); err != nil {
			t.Errorf("unexpected error from Close(): %v", err)
		}
	})

	t.Run("ErrSIMPukRequired when the SIM is blocked", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)
		b := NewMockSequence(mockTransport)

		gomock.InOrder(
			slices.Concat(
				[]any{
					mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
				},
				b.AT().EchoOff().ReportErrors().SimPukRequired().Build(),
				[]any{b.Close(nil)},
			)...,
		)

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			WithSimPIN("1234").
			WithLogger(discard).
			Build()
		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}

		if _, err := modem.New(context.Background(), config); !errors.Is(err, modem.ErrSIMPukRequired) {
			t.Errorf("expected ErrSIMPukRequired, got: %v", err)
		}
	})

	t.Run("Modem not responding", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)
		b := NewMockSequence(mockTransport)

		gomock.InOrder(
			mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			b.Expect("AT", "\r\nERROR\r\n").Build()[0],
			b.Close(nil),
		)

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			WithLogger(discard).
			Build()
		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}

		_, err = modem.New(context.Background(), config)
		var atErr *at.Error
		if !errors.As(err, &atErr) || atErr.Final != "ERROR" {
			t.Errorf("expected the ERROR result to surface, got: %v", err)
		}
	})

	t.Run("Dialer error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDialer := modem.NewMockDialer(ctrl)
		dialError := errors.New("connection failed")
		mockDialer.EXPECT().Dial(gomock.Any()).Return(nil, dialError)

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			Build()
		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}

		m, err := modem.New(context.Background(), config)
		if !errors.Is(err, dialError) {
			t.Errorf("expected the dialer error, got: %v", err)
		}
		if m != nil {
			t.Error("New() should return nil modem when dialer fails")
		}
	})

	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		m, err := modem.New(context.Background(), modem.Config{})
		if !errors.Is(err, modem.ErrNoDialer) {
			t.Errorf("expected ErrNoDialer from New(), got: %v", err)
		}
		if m != nil {
			t.Error("New() should return nil modem when no dialer provided")
		}
	})

	t.Run("ErrNotInitialized on nil transport", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDialer := modem.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any()).Return(nil, nil)

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			Build()
		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}

		_, err = modem.New(context.Background(), config)
		if !errors.Is(err, modem.ErrNotInitialized) {
			t.Errorf("expected ErrNotInitialized from New(), got: %v", err)
		}
	})
}

func TestModemClose(t *testing.T) {
	t.Run("Returns transport error on close failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)
		b := NewMockSequence(mockTransport)

		closeError := errors.New("transport close failed")
		gomock.InOrder(slices.Concat(
			[]any{
				mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			},
			initMockCalls(b),
			[]any{b.Close(closeError)},
		)...)

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			WithLogger(discard).
			Build()
		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}

		m, err := modem.New(context.Background(), config)
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}

		if err := m.Close(); err != closeError {
			t.Errorf("expected transport error, got: %v", err)
		}
	})

	t.Run("ErrAlreadyClosed on double close", func(t *testing.T) {
		m, _ := startMockModem(t)

		if err := m.Close(); err != nil {
			t.Errorf("first close should succeed, got error: %v", err)
		}
		if err := m.Close(); err != modem.ErrAlreadyClosed {
			t.Errorf("expected ErrAlreadyClosed on second close, got: %v", err)
		}
	})

	t.Run("Operations fail after close", func(t *testing.T) {
		m, _ := startMockModem(t)
		m.Close()

		if _, err := m.Exec(context.Background(), "AT"); !errors.Is(err, modem.ErrAlreadyClosed) {
			t.Errorf("expected ErrAlreadyClosed from Exec, got: %v", err)
		}
		if _, err := m.SendSMS(context.Background(), "+31612345678", "hi"); !errors.Is(err, modem.ErrAlreadyClosed) {
			t.Errorf("expected ErrAlreadyClosed from SendSMS, got: %v", err)
		}
	})
}

func TestModemLoop(t *testing.T) {
	t.Run("Starts and stops on EOF", func(t *testing.T) {
		m, b := startMockModem(t)

		loopDone := make(chan error, 1)
		go func() {
			loopDone <- m.Loop(context.Background())
		}()

		b.Fail(io.EOF)

		select {
		case err := <-loopDone:
			if !errors.Is(err, io.EOF) {
				t.Errorf("expected Loop to report EOF, got: %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Loop did not return after EOF")
		}

		select {
		case <-m.Lost():
		default:
			t.Error("expected Lost to be closed")
		}
	})

	t.Run("Dispatch events to the designated channel", func(t *testing.T) {
		m, b := startMockModem(t)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go m.Loop(ctx)

		b.Push("\r\n+CSQ: 31,99\r\n")
		b.Push("\r\n+CREG: 5,\"00C3\",\"0000A1B2\"\r\n")

		ev := receiveEvent(t, m)
		if ev.Kind != modem.EventSignal || ev.Signal != 100 {
			t.Errorf("expected full signal, got %+v", ev)
		}

		ev = receiveEvent(t, m)
		if ev.Kind != modem.EventRegistration || ev.Registration == nil {
			t.Fatalf("expected registration event, got %+v", ev)
		}
		if ev.Registration.LAC != 0xc3 || ev.Registration.CI != 0xa1b2 {
			t.Errorf("unexpected registration %+v", *ev.Registration)
		}
		if ev.Time.IsZero() {
			t.Error("expected event time to be set")
		}
	})

	t.Run("Events keep the order the modem reported them in", func(t *testing.T) {
		m, b := startMockModem(t)

		const rounds = 10
		for range rounds {
			b.Push("\r\n+CREG: 1\r\n\r\n+CSQ: 10,99\r\n")
			// The answer follows both reports on the wire, so once it
			// arrives they have been handled.
			b.Expect("AT+CSCA?", "\r\n+CSCA: \"+31653131313\",145\r\n\r\nOK\r\n")
			if _, err := m.ServiceCenter(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go m.Loop(ctx)

		for i := range rounds {
			if ev := receiveEvent(t, m); ev.Kind != modem.EventRegistration {
				t.Fatalf("round %d: expected registration first, got %v", i, ev.Kind)
			}
			if ev := receiveEvent(t, m); ev.Kind != modem.EventSignal {
				t.Fatalf("round %d: expected signal second, got %v", i, ev.Kind)
			}
		}
	})

	t.Run("Exits gracefully on context cancellation", func(t *testing.T) {
		m, _ := startMockModem(t)

		ctx, cancel := context.WithCancel(context.Background())
		loopDone := make(chan error, 1)
		go func() {
			loopDone <- m.Loop(ctx)
		}()

		cancel()

		if err := <-loopDone; !errors.Is(err, context.Canceled) {
			t.Errorf("expected Loop to return context.Canceled, got: %v", err)
		}
	})

	t.Run("Returns when the modem is closed", func(t *testing.T) {
		m, _ := startMockModem(t)

		loopDone := make(chan error, 1)
		go func() {
			loopDone <- m.Loop(context.Background())
		}()

		m.Close()

		if err := <-loopDone; err != nil {
			t.Errorf("expected nil after Close, got: %v", err)
		}
	})

	t.Run("Reports transport read errors", func(t *testing.T) {
		m, b := startMockModem(t)

		readError := errors.New("transport read error")
		b.Fail(readError)

		if err := m.Loop(context.Background()); !errors.Is(err, readError) {
			t.Errorf("expected read error to be wrapped, got: %v", err)
		}
	})

	t.Run("ErrLoopRunning on consecutive calls", func(t *testing.T) {
		m, b := startMockModem(t)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		loopDone := make(chan error, 1)
		go func() {
			loopDone <- m.Loop(ctx)
		}()

		// An event coming through proves the first Loop is running.
		b.Push("\r\n+CSQ: 10,99\r\n")
		receiveEvent(t, m)

		if err := m.Loop(ctx); !errors.Is(err, modem.ErrLoopRunning) {
			t.Errorf("expected ErrLoopRunning, got: %v", err)
		}

		cancel()
		<-loopDone
	})
}

func TestModemExec(t *testing.T) {
	m, b := startMockModem(t)
	b.Expect("AT+CGMI", "\r\nQuectel\r\n\r\nOK\r\n")
	b.Expect("AT+CFUN=9", "\r\n+CME ERROR: 50\r\n")

	r, err := m.Exec(context.Background(), "AT+CGMI")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(r.Lines, []string{"Quectel"}) || r.Final != "OK" {
		t.Errorf("unexpected result %+v", r)
	}

	_, err = m.Exec(context.Background(), "AT+CFUN=9")
	var atErr *at.Error
	if !errors.As(err, &atErr) || atErr.Type != at.ErrorTypeCME || atErr.Code != 50 {
		t.Errorf("expected CME error 50, got: %v", err)
	}
}

func receiveEvent(t *testing.T, m *modem.Modem) modem.Event {
	t.Helper()
	select {
	case ev := <-m.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("expected event to be received within timeout")
		return modem.Event{}
	}
}
