package modem_test

import (
	"testing"
	"time"

	"i4.energy/across/modemd/atmodem"
	"i4.energy/across/modemd/modem"
)

func TestConfig(t *testing.T) {
	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		_, err := modem.NewConfigBuilder().Build()

		if err != modem.ErrNoDialer {
			t.Errorf("expected ErrNoDialer, got: %v", err)
		}
	})

	t.Run("Defaults are applied", func(t *testing.T) {
		config, err := modem.NewConfigBuilder().
			WithDialer(modem.SerialDialer{PortName: "/dev/ttyUSB0"}).
			Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if config.MinSendInterval != 2*time.Second {
			t.Errorf("unexpected MinSendInterval %v", config.MinSendInterval)
		}
		if config.MaxRetries != 3 {
			t.Errorf("unexpected MaxRetries %d", config.MaxRetries)
		}
		if config.ATTimeout != 5*time.Second || config.InitTimeout != 30*time.Second {
			t.Errorf("unexpected timeouts %v %v", config.ATTimeout, config.InitTimeout)
		}
		if config.PINPollInterval != 500*time.Millisecond {
			t.Errorf("unexpected PINPollInterval %v", config.PINPollInterval)
		}
		if config.Logger == nil {
			t.Error("expected a default logger")
		}
	})

	t.Run("Explicit values are kept", func(t *testing.T) {
		config, err := modem.NewConfigBuilder().
			WithDialer(modem.TCPDialer{Address: "localhost:12345"}).
			WithVendor(atmodem.VendorPhonesim).
			WithSimPIN("0000").
			WithEchoOn(true).
			WithMaxRetries(7).
			WithATTimeout(time.Second).
			Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if config.Vendor != atmodem.VendorPhonesim || config.SimPIN != "0000" || !config.EchoOn {
			t.Errorf("unexpected config %+v", config)
		}
		if config.MaxRetries != 7 || config.ATTimeout != time.Second {
			t.Errorf("unexpected limits %d %v", config.MaxRetries, config.ATTimeout)
		}
	})
}
