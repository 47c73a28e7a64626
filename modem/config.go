package modem

import (
	"log/slog"
	"time"

	"i4.energy/across/modemd/atmodem"
	"i4.energy/across/modemd/chat"
)

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return nil
}

type Config struct {
	Dialer Dialer
	Vendor atmodem.Vendor
	SimPIN string
	// MinSendInterval spaces outgoing messages to stay below operator
	// rate limits.
	MinSendInterval time.Duration
	// MaxRetries is how often a message the modem refused is sent again.
	MaxRetries  int
	EchoOn      bool
	ATTimeout   time.Duration
	InitTimeout time.Duration
	// PINPollInterval is the pause between SIM state checks after the PIN
	// was entered.
	PINPollInterval time.Duration
	Logger          *slog.Logger
	Debug           chat.DebugFunc
}

func (c *Config) setDefaults() {
	if c.MinSendInterval == 0 {
		c.MinSendInterval = time.Minute / 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.ATTimeout == 0 {
		c.ATTimeout = 5 * time.Second
	}
	if c.InitTimeout == 0 {
		c.InitTimeout = 30 * time.Second
	}
	if c.PINPollInterval == 0 {
		c.PINPollInterval = 500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithVendor(v atmodem.Vendor) *ConfigBuilder {
	b.config.Vendor = v
	return b
}

func (b *ConfigBuilder) WithSimPIN(pin string) *ConfigBuilder {
	b.config.SimPIN = pin
	return b
}

func (b *ConfigBuilder) WithMinSendInterval(d time.Duration) *ConfigBuilder {
	b.config.MinSendInterval = d
	return b
}

func (b *ConfigBuilder) WithMaxRetries(n int) *ConfigBuilder {
	b.config.MaxRetries = n
	return b
}

func (b *ConfigBuilder) WithEchoOn(on bool) *ConfigBuilder {
	b.config.EchoOn = on
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.ATTimeout = d
	return b
}

func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.InitTimeout = d
	return b
}

func (b *ConfigBuilder) WithPINPollInterval(d time.Duration) *ConfigBuilder {
	b.config.PINPollInterval = d
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

// WithDebug installs a trace of the raw modem traffic.
func (b *ConfigBuilder) WithDebug(fn chat.DebugFunc) *ConfigBuilder {
	b.config.Debug = fn
	return b
}

// Build applies defaults and validates the result.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	c.setDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
