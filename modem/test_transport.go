package modem

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// TestTransport is a test helper that simulates a blocking transport using channels.
// Reads block until SendData queues bytes, like a real serial port would, and
// every write is recorded so tests can wait for the bytes a chat puts on the wire.
type TestTransport struct {
	mu       sync.Mutex
	readChan chan []byte
	writes   chan []byte
	written  bytes.Buffer
	writeErr error
	closed   bool
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 10),
		writes:   make(chan []byte, 100),
	}
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	if t.writeErr != nil {
		return 0, t.writeErr
	}

	t.written.Write(p)
	select {
	case t.writes <- bytes.Clone(p):
	default:
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	data, ok := <-t.readChan
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the modem.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// NextWrite waits up to timeout for the next Write and returns its bytes.
func (t *TestTransport) NextWrite(timeout time.Duration) (string, bool) {
	select {
	case p := <-t.writes:
		return string(p), true
	case <-time.After(timeout):
		return "", false
	}
}

// Written returns everything written so far.
func (t *TestTransport) Written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written.String()
}

// FailWrites makes every following Write return err.
func (t *TestTransport) FailWrites(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

// Closed reports whether Close was called.
func (t *TestTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
