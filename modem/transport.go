package modem

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=modem

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

// Transport represents an established, bidirectional byte stream to a GSM modem.
//
// A Transport is assumed to be already connected and ready for use. It provides
// the low-level I/O primitives required to send AT commands and receive responses.
// Typical implementations include serial ports, TCP connections to emulators,
// or in-memory fakes used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a GSM modem.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port, TCP-based emulator, or test double) and is intended to be used
// during modem construction only. Once a Transport is obtained, the Dialer is
// no longer needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context) (Transport, error) {
	return f(ctx)
}

// DefaultBaudRate is used by SerialDialer when no Mode is given.
const DefaultBaudRate = 115200

// SerialDialer opens a GSM modem over a serial port.
type SerialDialer struct {
	PortName string
	// Mode defaults to 115200 8N1.
	Mode *serial.Mode
}

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if d.PortName == "" {
		return nil, errors.New("gsm: serial port name is required")
	}
	if ctx == nil {
		return nil, errors.New("gsm: context is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		mode = &serial.Mode{
			BaudRate: DefaultBaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("gsm: open serial port %s: %w", d.PortName, err)
	}
	return port, nil
}

// TCPDialer connects to a modem emulator such as phonesim, or to a serial
// port exported over the network.
type TCPDialer struct {
	Address string
	Timeout time.Duration
}

func (d TCPDialer) Dial(ctx context.Context) (Transport, error) {
	if d.Address == "" {
		return nil, errors.New("gsm: TCP address is required")
	}

	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, fmt.Errorf("gsm: connect %s: %w", d.Address, err)
	}
	return conn, nil
}

// WebSocketDialer connects to a serial port bridged over a WebSocket. Bytes
// travel as binary messages in both directions.
type WebSocketDialer struct {
	URL      string
	Username string
	Password string
	// InsecureSkipVerify disables certificate checks for wss:// URLs.
	InsecureSkipVerify bool
	HandshakeTimeout   time.Duration
}

func (d WebSocketDialer) Dial(ctx context.Context) (Transport, error) {
	if d.URL == "" {
		return nil, errors.New("gsm: WebSocket URL is required")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: d.InsecureSkipVerify},
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}

	headers := http.Header{}
	if d.Username != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(d.Username + ":" + d.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, d.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("gsm: WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("gsm: WebSocket connection failed: %w", err)
	}
	return &wsTransport{conn: conn}, nil
}

// wsTransport turns a message oriented WebSocket into a byte stream.
type wsTransport struct {
	conn *websocket.Conn
	buf  []byte

	// gorilla/websocket allows one concurrent writer.
	writeMu sync.Mutex
}

func (w *wsTransport) Read(p []byte) (int, error) {
	for len(w.buf) == 0 {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}
		w.buf = data
	}

	n := copy(p, w.buf)
	w.buf = w.buf[n:]
	return n, nil
}

func (w *wsTransport) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsTransport) Close() error {
	return w.conn.Close()
}
