package chat

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"i4.energy/across/modemd/at"
)

const (
	readBufferSize = 4096

	// maxFrameSize bounds a frame that never reaches a boundary, such as
	// line noise without CR.
	maxFrameSize = 4 * readBufferSize
)

// calls are callbacks collected under the lock and run after releasing it.
type calls []func()

func (cs calls) run() {
	for _, fn := range cs {
		fn()
	}
}

// run is the event loop. It is the only goroutine that writes to the
// transport, feeds the syntax and invokes callbacks.
func (c *core) run(ctx context.Context) {
	defer close(c.done)

	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	go c.readLoop(chunks, readErr)

	for {
		c.mu.Lock()
		var wakeupC <-chan time.Time
		if c.wakeupTimer != nil {
			wakeupC = c.wakeupTimer.C
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			c.terminate(fmt.Errorf("%w: %w", ErrShutdown, ctx.Err()), false)
			return

		case <-c.stop:
			c.terminate(ErrShutdown, false)
			return

		case err := <-readErr:
			c.terminate(fmt.Errorf("%w: read: %w", ErrDisconnected, err), true)
			return

		case data := <-chunks:
			c.process(data)

		case <-c.kick:
			if err := c.write(); err != nil {
				c.terminate(fmt.Errorf("%w: write: %w", ErrDisconnected, err), true)
				return
			}

		case <-wakeupC:
			c.wakeupExpired()
		}
	}
}

// readLoop copies transport reads to the loop until the transport fails.
func (c *core) readLoop(chunks chan<- []byte, readErr chan<- error) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.rwc.Read(buf)
		if n > 0 {
			select {
			case chunks <- bytes.Clone(buf[:n]):
			case <-c.done:
				return
			}
		}
		if err != nil {
			readErr <- err
			return
		}
	}
}

// process feeds data through the syntax and dispatches each completed frame.
func (c *core) process(data []byte) {
	c.trace("<", data)

	for len(data) > 0 {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.lastActivity = time.Now()

		kind, n := c.syntax.Feed(data)
		c.frame = append(c.frame, data[:n]...)
		data = data[n:]
		if kind == at.FrameUnsure {
			if len(c.frame) > maxFrameSize {
				c.discardFrame()
			}
			c.mu.Unlock()
			return
		}

		frame := c.frame
		c.frame = nil
		pending := c.dispatch(kind, frame)
		c.mu.Unlock()

		pending.run()
	}
}

// discardFrame drops an oversized partial frame and restarts framing.
// Callers hold mu.
func (c *core) discardFrame() {
	c.logger.Warn("unrecognized frame", "error", ErrFrameTooLong, "size", len(c.frame),
		"start", strconv.Quote(string(c.frame[:64])))
	c.frame = nil
	c.syntax.Reset()
}

// dispatch routes one frame. Callers hold mu.
func (c *core) dispatch(kind at.FrameKind, frame []byte) calls {
	switch kind {
	case at.FrameLine, at.FrameMultiline:
		line := at.ExtractLine(frame)
		if line == "" {
			return nil
		}
		return c.haveLine(line)

	case at.FramePDU:
		return c.havePDU(at.ExtractLine(frame))

	case at.FramePrompt:
		if !c.awaitPrompt {
			c.logger.Debug("unexpected prompt")
			return nil
		}
		c.awaitPrompt = false
		c.kickWriter()

	case at.FrameUnrecognized:
		if len(bytes.Trim(frame, "\r\n")) > 0 {
			c.logger.Debug("unrecognized frame", "data", strconv.Quote(string(frame)))
		}
	}

	return nil
}

func (c *core) haveLine(line string) calls {
	if c.pduHeld {
		c.logger.Warn("header without PDU", "line", c.pduHeader)
		c.pduHeld = false
	}

	// Command echo.
	if strings.HasPrefix(line, "AT") {
		return nil
	}

	if cmd := c.inFlight(); cmd != nil {
		if t, ok := at.MatchTerminator(line, c.terminators); ok {
			return c.finish(line, t.Success)
		}
		if cmd.accepts(line) {
			return c.commandLine(cmd, line)
		}
	}

	if pending, ok := c.notify(line); ok {
		return pending
	}

	c.logger.Debug("unhandled line", "line", line)
	return nil
}

func (c *core) commandLine(cmd *command, line string) calls {
	if cmd.listing != nil && cmd.pduListing {
		c.holdPDUHeader(line, true)
		return nil
	}

	c.syntax.SetHint(at.HintMultiline)

	if cmd.listing != nil {
		fn, r := cmd.listing, &at.Result{Lines: []string{line}}
		return calls{func() { fn(r) }}
	}

	c.lines = append(c.lines, line)
	return nil
}

func (c *core) havePDU(pdu string) calls {
	if !c.pduHeld {
		c.logger.Warn("PDU without header", "pdu", pdu)
		return nil
	}
	c.pduHeld = false

	r := &at.Result{Lines: []string{c.pduHeader}, PDU: pdu}

	if c.pduListing {
		cmd := c.inFlight()
		if cmd == nil || cmd.listing == nil {
			return nil
		}
		c.syntax.SetHint(at.HintMultiline)
		fn := cmd.listing
		return calls{func() { fn(r) }}
	}

	n := c.lookup(c.pduHeader)
	if n == nil {
		return nil
	}
	return n.fire(r)
}

func (c *core) holdPDUHeader(line string, listing bool) {
	c.pduHeader = line
	c.pduHeld = true
	c.pduListing = listing
	c.syntax.SetHint(at.HintPDU)
}

// notify hands line to the handlers of its longest registered prefix.
func (c *core) notify(line string) (calls, bool) {
	n := c.lookup(line)
	if n == nil {
		return nil, false
	}
	if n.expectPDU {
		c.holdPDUHeader(line, false)
		return nil, true
	}
	return n.fire(&at.Result{Lines: []string{line}}), true
}

func (c *core) lookup(line string) *notifier {
	var (
		best    *notifier
		bestLen int
	)
	for prefix, n := range c.notifiers {
		if len(prefix) > bestLen && strings.HasPrefix(line, prefix) {
			best, bestLen = n, len(prefix)
		}
	}
	return best
}

func (n *notifier) fire(r *at.Result) calls {
	fns := make([]NotifyFunc, 0, len(n.handlers))
	for _, h := range n.handlers {
		fns = append(fns, h.fn)
	}
	return calls{func() {
		for _, fn := range fns {
			fn(r)
		}
	}}
}

// inFlight returns the head command once it has gone out on the wire.
func (c *core) inFlight() *command {
	if len(c.queue) == 0 || c.written == 0 {
		return nil
	}
	cmd := c.queue[0]
	last := cmd.wire[c.written-1]
	if last != at.CR && last != at.CtrlZ {
		return nil
	}
	return cmd
}

// finish completes the command in flight with final.
func (c *core) finish(final string, success bool) calls {
	cmd := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	c.written = 0
	c.awaitPrompt = false
	c.pduHeld = false

	lines := c.lines
	c.lines = nil

	if cmd.wakeup {
		c.stopWakeupTimer()
	}
	if len(c.queue) > 0 {
		c.kickWriter()
	}
	if cmd.done == nil {
		return nil
	}

	var err error
	if !success {
		err = at.DecodeError(final)
	}
	r := &at.Result{Lines: lines, Final: final}
	done := cmd.done
	return calls{func() { done(r, err) }}
}

// write sends the next segment of the head command, if one is due.
func (c *core) write() error {
	c.mu.Lock()
	if c.closed || len(c.queue) == 0 || c.awaitPrompt {
		c.mu.Unlock()
		return nil
	}
	if c.written == 0 {
		c.maybeWakeup()
	}

	cmd := c.queue[0]
	if c.written >= len(cmd.wire) {
		c.mu.Unlock()
		return nil
	}

	seg := cmd.nextSegment(c.written)
	c.written += len(seg)
	if c.written < len(cmd.wire) {
		c.awaitPrompt = true
	}
	c.mu.Unlock()

	c.trace(">", seg)
	if _, err := c.rwc.Write(seg); err != nil {
		return err
	}

	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()

	return nil
}

// terminate ends the session and completes everything outstanding with err.
func (c *core) terminate(err error, disconnected bool) {
	c.mu.Lock()
	c.closed = true
	pending := c.queue
	c.queue = nil
	c.written = 0
	c.notifiers = make(map[string]*notifier)
	c.stopWakeupTimer()
	disconnect := c.disconnect
	c.disconnect = nil
	c.mu.Unlock()

	if cerr := c.rwc.Close(); cerr != nil {
		c.logger.Debug("close transport", "error", cerr)
	}

	if disconnected {
		c.logger.Warn("chat disconnected", "error", err, "pending", len(pending))
	}

	for _, cmd := range pending {
		if cmd.done != nil {
			cmd.done(&at.Result{}, err)
		}
	}

	if disconnected && disconnect != nil {
		disconnect(err)
	}
}

func (c *core) trace(dir string, data []byte) {
	c.mu.Lock()
	debug := c.debug
	c.mu.Unlock()

	s := strconv.Quote(string(data))
	c.logger.Debug("traffic", "dir", dir, "data", s)
	if debug != nil {
		debug(dir + " " + s)
	}
}
