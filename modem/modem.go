// Package modem drives a GSM/3G/4G cellular modem over AT commands. It
// dials the transport, brings the modem to a known state and exposes
// messaging, network and SIM operations on top of a single chat session.
package modem

//go:generate go tool stringer -type=EventKind -trimprefix=Event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"i4.energy/across/modemd/at"
	"i4.energy/across/modemd/atmodem"
	"i4.energy/across/modemd/chat"
	"i4.energy/across/modemd/internal/retry"
)

// Modem represents a GSM/3G/4G cellular modem that communicates via AT commands.
// All transport I/O happens on the event loop of the underlying chat session;
// every method is safe for concurrent use.
type Modem struct {
	config  Config
	profile atmodem.Profile
	logger  *slog.Logger

	// transport remembers its close error so Close can report it.
	transport *closeTracker
	chat      *chat.Chat

	sim    *atmodem.SIM
	netreg *atmodem.NetReg
	sms    *atmodem.SMS
	ussd   *atmodem.USSD

	// reports holds driver reports in the order they arrived until Loop
	// forwards them to events.
	reports *reportQueue
	events  chan Event

	mu       sync.Mutex
	closed   bool
	shutdown chan struct{}

	// lost is closed when the transport fails; lostErr says why.
	lost     chan struct{}
	lostOnce sync.Once
	lostErr  error

	loopRunning atomic.Bool

	sendMu   sync.Mutex
	lastSend time.Time
}

// EventKind tells which field of an Event is set.
type EventKind int

const (
	EventMessage EventKind = iota
	EventStatusReport
	EventRegistration
	EventSignal
	EventUSSD
)

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(text []byte) error {
	for i := range len(_EventKind_index) - 1 {
		if EventKind(i).String() == string(text) {
			*k = EventKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", text)
}

// Event is something the modem reported on its own.
type Event struct {
	Kind         EventKind             `json:"kind"`
	Time         time.Time             `json:"time"`
	Message      *atmodem.Message      `json:"message,omitempty"`
	StatusReport *atmodem.StatusReport `json:"status_report,omitempty"`
	Registration *atmodem.Registration `json:"registration,omitempty"`
	Signal       int                   `json:"signal,omitempty"`
	USSD         *atmodem.USSDResponse `json:"ussd,omitempty"`
}

type closeTracker struct {
	Transport
	once sync.Once
	err  error
}

func (t *closeTracker) Close() error {
	t.once.Do(func() {
		t.err = t.Transport.Close()
	})
	return t.err
}

// New creates a new Modem instance with the given configuration.
// It establishes the transport connection, initializes the modem
// hardware with common actions and probes the telephony drivers.
//
// Returns an error if the transport connection or modem initialization
// fails. The transport is closed in that case.
func New(ctx context.Context, config Config) (*Modem, error) {
	if config.Dialer == nil {
		return nil, ErrNoDialer
	}
	config.setDefaults()

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial modem: %w", err)
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	profile := config.Vendor.Profile()
	logger := config.Logger.With("vendor", config.Vendor)

	m := &Modem{
		config:    config,
		profile:   profile,
		logger:    logger.With("component", "modem"),
		transport: &closeTracker{Transport: transport},
		reports:   newReportQueue(100, logger),
		events:    make(chan Event, 100),
		shutdown:  make(chan struct{}),
		lost:      make(chan struct{}),
	}

	// The session outlives the construction context and ends with Close.
	m.chat = chat.New(context.WithoutCancel(ctx), m.transport,
		chat.WithSyntax(at.NewSyntax(profile.Syntax)),
		chat.WithLogger(logger),
		chat.WithDebug(config.Debug),
	)
	m.chat.SetDisconnectFunc(m.disconnected)
	for _, t := range profile.Terminators {
		m.chat.AddTerminator(t.Text, t.Exact, t.Success)
	}
	if w := profile.Wakeup; w != nil {
		m.chat.SetWakeupCommand(w.Command, w.Inactivity, w.Interval)
	}

	m.sim = atmodem.NewSIM(m.chat, logger)

	initCtx, cancel := context.WithTimeout(ctx, config.InitTimeout)
	defer cancel()

	if err := m.init(initCtx); err != nil {
		m.closeDrivers()
		m.chat.Shutdown()
		<-m.chat.Done()
		return nil, fmt.Errorf("initialize modem: %w", err)
	}

	return m, nil
}

// init performs the initial setup sequence for the modem hardware.
// This method is called during New() and must complete successfully
// before the modem can be used.
func (m *Modem) init(ctx context.Context) error {
	// Wake-up / sanity check
	if err := m.expectOK(ctx, "AT"); err != nil {
		return fmt.Errorf("modem not responding: %w", err)
	}

	if !m.config.EchoOn {
		if err := m.expectOK(ctx, "ATE0"); err != nil {
			return fmt.Errorf("could not disable echo: %w", err)
		}
	}

	if err := m.expectOK(ctx, "AT+CMEE=1"); err != nil {
		return fmt.Errorf("could not enable numeric errors: %w", err)
	}

	if err := m.unlockSIM(ctx); err != nil {
		return err
	}

	m.netreg = atmodem.NewNetReg(m.chat, m.profile, m.reports, m.logger)
	if cs, err := m.charset(ctx); err != nil {
		m.logger.Warn("query character set", "error", err)
	} else {
		m.netreg.SetCharset(cs)
	}
	if err := m.netreg.Probe(ctx); err != nil {
		m.logger.Warn("network registration unavailable", "error", err)
		m.netreg.Close()
		m.netreg = nil
	}

	m.sms = atmodem.NewSMS(m.chat, m.profile, m.reports, m.logger)
	if err := m.sms.Probe(ctx); err != nil {
		m.sms.Close()
		m.sms = nil
		return fmt.Errorf("set up messaging: %w", err)
	}

	m.ussd = atmodem.NewUSSD(m.chat, m.reports, m.logger)

	m.logger.Info("modem ready")
	return nil
}

func (m *Modem) unlockSIM(ctx context.Context) error {
	state, err := m.sim.PINState(ctx)
	if err != nil {
		return fmt.Errorf("query SIM status: %w", err)
	}

	switch state {
	case atmodem.PINReady:
		return nil

	case atmodem.PINSimPIN:
		if m.config.SimPIN == "" {
			return ErrSIMPinRequired
		}
		if err := m.sim.EnterPIN(ctx, m.config.SimPIN); err != nil {
			return fmt.Errorf("enter SIM PIN: %w", err)
		}
		return m.waitForSIMReady(ctx)

	case atmodem.PINSimPUK:
		return ErrSIMPukRequired

	default:
		return fmt.Errorf("unsupported SIM state: %q", state)
	}
}

// waitForSIMReady polls the SIM card status until it reports ready state.
// The SIM needs a moment to authenticate after the PIN was accepted.
func (m *Modem) waitForSIMReady(ctx context.Context) error {
	poll := retry.Policy{
		Attempts: int(m.config.InitTimeout / m.config.PINPollInterval),
		Backoff:  m.config.PINPollInterval,
	}

	err := retry.Do(ctx, poll, func(ctx context.Context) error {
		state, err := m.sim.PINState(ctx)
		if errors.Is(err, chat.ErrClosed) || errors.Is(err, chat.ErrDisconnected) {
			return &retry.Permanent{Err: err}
		}
		if err != nil {
			return err
		}
		if state != atmodem.PINReady {
			return fmt.Errorf("SIM waiting for %s", state)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("SIM not ready: %w", err)
	}
	return nil
}

func (m *Modem) charset(ctx context.Context) (atmodem.Charset, error) {
	r, err := m.chat.Exec(ctx, "AT+CSCS?", []string{"+CSCS:"})
	if err != nil {
		return 0, err
	}
	cs, ok := atmodem.ParseCSCSQuery(r)
	if !ok {
		return 0, fmt.Errorf("character set: %w", atmodem.ErrUnexpectedResponse)
	}
	return cs, nil
}

func (m *Modem) expectOK(ctx context.Context, cmd string) error {
	_, err := m.chat.Exec(ctx, cmd, chat.NoPrefix)
	return err
}

func (m *Modem) disconnected(err error) {
	m.lostOnce.Do(func() {
		m.lostErr = err
		close(m.lost)
	})
}

// Loop forwards what the modem reports on its own to Events until ctx ends,
// the modem is closed or the transport fails. Only one Loop may run at a
// time.
//
// Usage:
//
//	modem, err := New(ctx, config)
//	if err != nil { return err }
//
//	go modem.Loop(ctx)
//
//	for ev := range modem.Events() { ... }
func (m *Modem) Loop(ctx context.Context) error {
	if !m.loopRunning.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer m.loopRunning.Store(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.shutdown:
			return nil
		case <-m.lost:
			return m.lostErr

		case ev := <-m.reports.ch:
			m.emit(ev)
		}
	}
}

func (m *Modem) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("event channel full, dropping event", "kind", ev.Kind)
	}
}

// Events returns a read-only channel that receives what the modem reported
// on its own while Loop runs, in the order the modem reported it. The
// channel is buffered, but events are dropped if it is not consumed fast
// enough.
func (m *Modem) Events() <-chan Event {
	return m.events
}

// Lost is closed when the connection to the modem fails.
func (m *Modem) Lost() <-chan struct{} {
	return m.lost
}

// Exec sends a raw command and returns every line of its answer. The
// configured AT timeout applies when ctx has no deadline.
func (m *Modem) Exec(ctx context.Context, cmd string) (*at.Result, error) {
	if err := m.usable(); err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	return m.chat.Exec(ctx, cmd, nil)
}

// Registration returns the current network registration.
func (m *Modem) Registration(ctx context.Context) (atmodem.Registration, error) {
	if m.netreg == nil {
		return atmodem.Registration{}, ErrNotInitialized
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	return m.netreg.Status(ctx)
}

// Operator returns the operator the modem is registered with.
func (m *Modem) Operator(ctx context.Context) (atmodem.Operator, error) {
	if m.netreg == nil {
		return atmodem.Operator{}, ErrNotInitialized
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	return m.netreg.CurrentOperator(ctx)
}

// Operators scans for networks. No AT timeout is applied since a scan can
// take minutes.
func (m *Modem) Operators(ctx context.Context) ([]atmodem.Operator, error) {
	if m.netreg == nil {
		return nil, ErrNotInitialized
	}
	return m.netreg.ListOperators(ctx)
}

// SignalStrength returns the signal strength in percent, or -1 when unknown.
func (m *Modem) SignalStrength(ctx context.Context) (int, error) {
	if m.netreg == nil {
		return 0, ErrNotInitialized
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	return m.netreg.SignalStrength(ctx)
}

// IMSI returns the subscriber identity of the SIM.
func (m *Modem) IMSI(ctx context.Context) (string, error) {
	if err := m.usable(); err != nil {
		return "", err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	return m.sim.IMSI(ctx)
}

// USSD sends a USSD string such as a balance query. The network's answer
// arrives as an EventUSSD.
func (m *Modem) USSD(ctx context.Context, code string) error {
	if m.ussd == nil {
		return ErrNotInitialized
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	return m.ussd.Request(ctx, code)
}

// SIM gives access to the SIM driver for PIN management and file access.
func (m *Modem) SIM() *atmodem.SIM {
	return m.sim
}

// SetDebug sets or clears the raw traffic trace.
func (m *Modem) SetDebug(fn chat.DebugFunc) {
	m.chat.SetDebug(fn)
}

// Close shuts down the modem and releases all resources.
// It stops the drivers, ends the chat session and closes the transport.
// After calling Close(), the modem cannot be reused.
func (m *Modem) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.closeDrivers()
	m.chat.Shutdown()
	<-m.chat.Done()

	return m.transport.Close()
}

func (m *Modem) closeDrivers() {
	if m.ussd != nil {
		m.ussd.Close()
	}
	if m.sms != nil {
		m.sms.Close()
	}
	if m.netreg != nil {
		m.netreg.Close()
	}
}

func (m *Modem) usable() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrAlreadyClosed
	}
	return nil
}

// withTimeout applies the per-command timeout if ctx has none.
func (m *Modem) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || m.config.ATTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.config.ATTimeout)
}
