package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"

	"go.bug.st/serial"
	"golang.org/x/term"

	"i4.energy/across/modemd/atmodem"
	"i4.energy/across/modemd/modem"
)

// dialer picks the transport from cfg: WebSocket, then TCP, then serial.
func dialer(cfg ModemConfig) (modem.Dialer, error) {
	switch {
	case cfg.WebSocketURL != "":
		password := cfg.WebSocketPassword
		if cfg.WebSocketUsername != "" && password == "" {
			var err error
			if password, err = readPassword(); err != nil {
				return nil, err
			}
		}
		return modem.WebSocketDialer{
			URL:                cfg.WebSocketURL,
			Username:           cfg.WebSocketUsername,
			Password:           password,
			InsecureSkipVerify: cfg.WebSocketInsecure,
		}, nil

	case cfg.TCPAddress != "":
		return modem.TCPDialer{Address: cfg.TCPAddress}, nil

	case cfg.SerialPort != "":
		return modem.SerialDialer{
			PortName: cfg.SerialPort,
			Mode: &serial.Mode{
				BaudRate: cfg.BaudRate,
				DataBits: 8,
				Parity:   serial.NoParity,
				StopBits: serial.OneStopBit,
			},
		}, nil

	default:
		return nil, modem.ErrNoDialer
	}
}

// connectionInfo describes the transport dialer would pick.
func connectionInfo(cfg ModemConfig) string {
	switch {
	case cfg.WebSocketURL != "":
		return "websocket " + cfg.WebSocketURL
	case cfg.TCPAddress != "":
		return "tcp " + cfg.TCPAddress
	default:
		return fmt.Sprintf("serial %s @ %d", cfg.SerialPort, cfg.BaudRate)
	}
}

// openModem dials and initializes the modem described by cfg. The returned
// closer flushes the traffic capture, if any, and must be called after the
// modem is closed.
func openModem(ctx context.Context, cfg ModemConfig, logger *slog.Logger) (*modem.Modem, io.Closer, error) {
	d, err := dialer(cfg)
	if err != nil {
		return nil, nil, err
	}

	vendor, err := atmodem.ParseVendor(cfg.Vendor)
	if err != nil {
		return nil, nil, err
	}

	var capture io.Closer = io.NopCloser(nil)
	if cfg.Capture != "" {
		f, err := os.Create(cfg.Capture)
		if err != nil {
			return nil, nil, fmt.Errorf("create capture: %w", err)
		}
		capture = f
		d = modem.RecordingDialer{Dialer: d, W: f}
	}

	modemConfig, err := modem.NewConfigBuilder().
		WithDialer(d).
		WithVendor(vendor).
		WithSimPIN(cfg.SimPIN).
		WithATTimeout(cfg.ATTimeout).
		WithInitTimeout(cfg.InitTimeout).
		WithMaxRetries(cfg.MaxRetries).
		WithMinSendInterval(cfg.MinSendInterval).
		WithLogger(logger).
		Build()
	if err != nil {
		capture.Close()
		return nil, nil, fmt.Errorf("modem config: %w", err)
	}

	logger.Info("Connecting to modem", "connection", connectionInfo(cfg), "vendor", vendor)
	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		capture.Close()
		return nil, nil, err
	}
	return m, capture, nil
}

// readPassword reads the WebSocket password from the environment or the
// terminal.
func readPassword() (string, error) {
	if pw := os.Getenv("MODEM_WEBSOCKET_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal, read a line instead.
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}
