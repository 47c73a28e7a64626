package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"i4.energy/across/modemd/internal/logging"
)

// Config holds the application configuration
type Config struct {
	Modem ModemConfig    `yaml:"modem"`
	HTTP  HTTPConfig     `yaml:"http"`
	MQTT  MQTTConfig     `yaml:"mqtt"`
	Log   logging.Config `yaml:"log"`
}

// ModemConfig selects the transport and tunes the modem.
type ModemConfig struct {
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int `yaml:"baud_rate"`
	// TCPAddress connects to an emulator instead of a serial port.
	TCPAddress string `yaml:"tcp_address"`
	// WebSocketURL connects to a serial port bridged over a WebSocket.
	WebSocketURL      string `yaml:"websocket_url"`
	WebSocketUsername string `yaml:"websocket_username"`
	WebSocketPassword string `yaml:"websocket_password"`
	WebSocketInsecure bool   `yaml:"websocket_insecure"`

	Vendor          string        `yaml:"vendor"`
	SimPIN          string        `yaml:"sim_pin"`
	MinSendInterval time.Duration `yaml:"min_send_interval"`
	MaxRetries      int           `yaml:"max_retries"`
	ATTimeout       time.Duration `yaml:"at_timeout"`
	InitTimeout     time.Duration `yaml:"init_timeout"`
	// Capture records the modem traffic to this file.
	Capture string `yaml:"capture"`
}

type HTTPConfig struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// Token, when set, is required as a bearer token on every request.
	Token string `yaml:"token"`
}

// MQTTConfig bridges the daemon to a broker. An empty Broker disables it.
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	SendTopic  string `yaml:"send_topic"`
	EventTopic string `yaml:"event_topic"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.HTTP.BindAddress = "0.0.0.0:8080"
		c.Modem.SerialPort = "/dev/ttyUSB0"
		c.Modem.BaudRate = 115200
		c.Modem.MinSendInterval = 10 * time.Second
		c.Modem.MaxRetries = 5
		c.Modem.ATTimeout = 5 * time.Second
		c.Modem.InitTimeout = 30 * time.Second
		c.MQTT.ClientID = "modemd"
		c.MQTT.SendTopic = "sms/send"
		c.MQTT.EventTopic = "sms/events"
		c.Log.Level = "info"
		c.Log.MaxSize = 10
		c.Log.MaxBackups = 3
		c.Log.MaxAge = 28
		return nil
	}
}

// WithFile loads a YAML configuration file. An empty path is skipped.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.HTTP.BindAddress = addr
		}

		if token := os.Getenv("HTTP_TOKEN"); token != "" {
			c.HTTP.Token = token
		}

		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.Modem.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.Modem.BaudRate = b
			}
		}

		if addr := os.Getenv("MODEM_TCP"); addr != "" {
			c.Modem.TCPAddress = addr
		}

		if url := os.Getenv("MODEM_WEBSOCKET"); url != "" {
			c.Modem.WebSocketURL = url
		}

		if password := os.Getenv("MODEM_WEBSOCKET_PASSWORD"); password != "" {
			c.Modem.WebSocketPassword = password
		}

		if vendor := os.Getenv("MODEM_VENDOR"); vendor != "" {
			c.Modem.Vendor = vendor
		}

		if simPIN := os.Getenv("SIM_PIN"); simPIN != "" {
			c.Modem.SimPIN = simPIN
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.Log.Level = level
		}

		if broker := os.Getenv("MQTT_BROKER"); broker != "" {
			c.MQTT.Broker = broker
		}

		if user := os.Getenv("MQTT_USERNAME"); user != "" {
			c.MQTT.Username = user
		}

		if password := os.Getenv("MQTT_PASSWORD"); password != "" {
			c.MQTT.Password = password
		}

		return nil
	}
}

// WithFlags loads configuration from the command-line flags that were set
func WithFlags(fSet *pflag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var err error
		fSet.Visit(func(f *pflag.Flag) {
			value := f.Value.String()
			switch f.Name {
			case "bind-address":
				c.HTTP.BindAddress = value
			case "port":
				c.Modem.SerialPort = value
			case "baud":
				b, convErr := strconv.Atoi(value)
				if convErr != nil {
					err = fmt.Errorf("flag --baud: %w", convErr)
					return
				}
				c.Modem.BaudRate = b
			case "tcp":
				c.Modem.TCPAddress = value
			case "url":
				c.Modem.WebSocketURL = value
			case "username":
				c.Modem.WebSocketUsername = value
			case "no-ssl-verify":
				c.Modem.WebSocketInsecure = value == "true"
			case "vendor":
				c.Modem.Vendor = value
			case "sim-pin":
				c.Modem.SimPIN = value
			case "capture":
				c.Modem.Capture = value
			case "log-level":
				c.Log.Level = value
			case "mqtt-broker":
				c.MQTT.Broker = value
			}
		})
		return err
	}
}
