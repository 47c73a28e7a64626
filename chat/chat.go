// Package chat multiplexes AT commands and unsolicited notifications over a
// single modem byte stream.
//
// A Chat owns the transport. Commands are queued and written one at a time;
// response lines are routed to the command in flight when they match its
// prefixes and to registered notification handlers otherwise. All callbacks
// run on the chat's event loop goroutine, one at a time, with no internal lock
// held, so a callback may call back into the Chat. It must not block waiting
// for another command to complete.
package chat

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"i4.energy/across/modemd/at"
)

// ResultFunc receives the outcome of a command. r is never nil. err is nil
// for a successful final result, an *at.Error for a failing one, and wraps
// ErrDisconnected or ErrShutdown when the chat went away first.
type ResultFunc func(r *at.Result, err error)

// NotifyFunc receives an unsolicited notification or one line of a listing.
type NotifyFunc func(r *at.Result)

// DisconnectFunc is called once when the transport fails.
type DisconnectFunc func(err error)

// DebugFunc receives a human readable trace of the bytes read and written.
type DebugFunc func(s string)

// Chat is a handle on a chat session. Handles returned by Clone share the
// session but own the commands and notifications they create.
type Chat struct {
	core  *core
	group uint
}

type handler struct {
	id    uint
	group uint
	fn    NotifyFunc
}

type notifier struct {
	expectPDU bool
	handlers  []handler
}

type wakeupConfig struct {
	text     string
	timeout  time.Duration
	interval time.Duration
}

type core struct {
	mu sync.Mutex

	rwc    io.ReadWriteCloser
	syntax at.Syntax
	logger *slog.Logger
	debug  DebugFunc

	frame []byte

	queue       []*command
	written     int
	awaitPrompt bool
	lines       []string

	pduHeader  string
	pduHeld    bool
	pduListing bool

	notifiers   map[string]*notifier
	terminators []at.Terminator

	nextCommandID uint
	nextNotifyID  uint
	nextGroup     uint

	wakeup       *wakeupConfig
	wakeupTimer  *time.Timer
	lastActivity time.Time

	disconnect DisconnectFunc
	closed     bool

	kick     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Option configures a Chat at construction.
type Option func(*core)

// WithSyntax sets the framing state machine. The default is GSM V1.
func WithSyntax(s at.Syntax) Option {
	return func(c *core) {
		c.syntax = s
	}
}

// WithLogger sets the logger. Traffic is logged at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *core) {
		c.logger = l
	}
}

// WithDebug installs a traffic trace hook from the start.
func WithDebug(fn DebugFunc) Option {
	return func(c *core) {
		c.debug = fn
	}
}

// New starts a chat session over rwc and returns its root handle. The session
// ends when ctx is cancelled, Shutdown is called or the transport fails. The
// chat closes rwc when it ends.
func New(ctx context.Context, rwc io.ReadWriteCloser, opts ...Option) *Chat {
	c := &core{
		rwc:       rwc,
		notifiers: make(map[string]*notifier),
		kick:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.syntax == nil {
		c.syntax = at.NewGSMV1()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "chat")

	go c.run(ctx)

	return &Chat{core: c}
}

// Send queues cmd and returns its id, or 0 when the chat is closed. Lines
// starting with one of prefixes are collected into the result. A nil prefixes
// slice accepts every line until the final result; NoPrefix accepts none.
//
// When cmd contains a CR the part after each CR is written only after the
// modem prompts for it, and the command ends with Ctrl-Z unless cmd ends with
// a CR.
func (ch *Chat) Send(cmd string, prefixes []string, done ResultFunc) uint {
	return ch.send(newCommand(cmd, prefixes, done))
}

// SendListing is Send for commands that answer with many lines. Each matching
// line is handed to listing as it arrives and is not collected into the final
// result.
func (ch *Chat) SendListing(cmd string, prefixes []string, listing NotifyFunc, done ResultFunc) uint {
	if listing == nil {
		return 0
	}
	c := newCommand(cmd, prefixes, done)
	c.listing = listing
	return ch.send(c)
}

// SendPDUListing is SendListing for commands where each matching line is
// followed by a PDU line. listing receives the header line together with its
// PDU.
func (ch *Chat) SendPDUListing(cmd string, prefixes []string, listing NotifyFunc, done ResultFunc) uint {
	if listing == nil {
		return 0
	}
	c := newCommand(cmd, prefixes, done)
	c.listing = listing
	c.pduListing = true
	return ch.send(c)
}

func (ch *Chat) send(cmd *command) uint {
	c := ch.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0
	}

	cmd.id = nextID(&c.nextCommandID)
	cmd.group = ch.group
	c.queue = append(c.queue, cmd)
	c.kickWriter()

	return cmd.id
}

// Cancel withdraws a queued command before any of it is written. Its
// callback is not called. Cancel returns false when the command is unknown,
// belongs to another handle or is already on the wire.
func (ch *Chat) Cancel(id uint) bool {
	c := ch.core
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, cmd := range c.queue {
		if cmd.id != id || cmd.wakeup {
			continue
		}
		if cmd.group != ch.group {
			return false
		}
		if i == 0 && c.written > 0 {
			return false
		}
		c.queue = slices.Delete(c.queue, i, i+1)
		if i == 0 {
			c.kickWriter()
		}
		return true
	}

	return false
}

// CancelAll withdraws every queued command of this handle that is not yet on
// the wire. It reports whether any command was withdrawn.
func (ch *Chat) CancelAll() bool {
	c := ch.core
	c.mu.Lock()
	defer c.mu.Unlock()

	var inFlight *command
	if len(c.queue) > 0 && c.written > 0 {
		inFlight = c.queue[0]
	}

	n := len(c.queue)
	c.queue = slices.DeleteFunc(c.queue, func(cmd *command) bool {
		return !cmd.wakeup && cmd.group == ch.group && cmd != inFlight
	})
	if len(c.queue) == n {
		return false
	}

	c.kickWriter()
	return true
}

// Register adds a notification handler for lines starting with prefix and
// returns its id, or 0 on failure. When expectPDU is set the line after each
// match is taken as its PDU. All handlers of a prefix must agree on
// expectPDU.
func (ch *Chat) Register(prefix string, expectPDU bool, fn NotifyFunc) uint {
	if prefix == "" || fn == nil {
		return 0
	}

	c := ch.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0
	}

	n, ok := c.notifiers[prefix]
	if !ok {
		n = &notifier{expectPDU: expectPDU}
		c.notifiers[prefix] = n
	} else if n.expectPDU != expectPDU {
		return 0
	}

	id := nextID(&c.nextNotifyID)
	n.handlers = append(n.handlers, handler{id: id, group: ch.group, fn: fn})

	return id
}

// Unregister removes a notification handler registered through this handle.
func (ch *Chat) Unregister(id uint) bool {
	c := ch.core
	c.mu.Lock()
	defer c.mu.Unlock()

	for prefix, n := range c.notifiers {
		for i, h := range n.handlers {
			if h.id != id {
				continue
			}
			if h.group != ch.group {
				return false
			}
			n.handlers = slices.Delete(n.handlers, i, i+1)
			if len(n.handlers) == 0 {
				delete(c.notifiers, prefix)
			}
			return true
		}
	}

	return false
}

// UnregisterAll removes every notification handler registered through this
// handle.
func (ch *Chat) UnregisterAll() {
	c := ch.core
	c.mu.Lock()
	defer c.mu.Unlock()

	for prefix, n := range c.notifiers {
		n.handlers = slices.DeleteFunc(n.handlers, func(h handler) bool {
			return h.group == ch.group
		})
		if len(n.handlers) == 0 {
			delete(c.notifiers, prefix)
		}
	}
}

// Clone returns a new handle on the same session. Commands and handlers
// created through the clone can only be cancelled or removed through it.
func (ch *Chat) Clone() *Chat {
	c := ch.core
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextGroup++
	return &Chat{core: c, group: c.nextGroup}
}

// SetWakeupCommand makes the chat send cmd ahead of the next command whenever
// the link was idle for longer than timeout. cmd is resent every interval
// until the modem answers it. An empty cmd disables wakeup.
func (ch *Chat) SetWakeupCommand(cmd string, timeout, interval time.Duration) {
	c := ch.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if cmd == "" {
		c.wakeup = nil
		return
	}
	c.wakeup = &wakeupConfig{text: cmd, timeout: timeout, interval: interval}
}

// SetDisconnectFunc sets the function called after the transport fails.
func (ch *Chat) SetDisconnectFunc(fn DisconnectFunc) {
	c := ch.core
	c.mu.Lock()
	defer c.mu.Unlock()

	c.disconnect = fn
}

// SetDebug sets or clears the traffic trace hook.
func (ch *Chat) SetDebug(fn DebugFunc) {
	c := ch.core
	c.mu.Lock()
	defer c.mu.Unlock()

	c.debug = fn
}

// AddTerminator teaches the chat an additional final result. With exact set
// the whole line must equal text; otherwise text is a prefix.
func (ch *Chat) AddTerminator(text string, exact, success bool) {
	c := ch.core
	c.mu.Lock()
	defer c.mu.Unlock()

	c.terminators = append(c.terminators, at.Terminator{Text: text, Exact: exact, Success: success})
}

// Shutdown stops the session. Outstanding commands complete with ErrShutdown
// and the disconnect function is not called. Shutdown reports false when the
// session was already closed.
func (ch *Chat) Shutdown() bool {
	c := ch.core
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stop) })
	return true
}

// Done is closed once the session has ended and every outstanding callback
// has run.
func (ch *Chat) Done() <-chan struct{} {
	return ch.core.done
}

// nextID returns the next non-zero id from counter.
func nextID(counter *uint) uint {
	*counter++
	if *counter == 0 {
		*counter++
	}
	return *counter
}

// kickWriter wakes the loop to write. Callers hold mu.
func (c *core) kickWriter() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}
