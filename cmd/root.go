// Package cmd implements the modemd command line.
package cmd

import (
	"github.com/spf13/cobra"

	"i4.energy/across/modemd/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "modemd",
	Short: "AT command modem daemon and tools",
	Long: `modemd drives a GSM/3G/4G modem over AT commands.

It runs as a daemon exposing SMS, network and raw AT access over HTTP and
MQTT, and ships one-shot tools for sending messages, running commands,
inspecting the framing of modem output and an interactive AT terminal.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  TCP:       --tcp localhost:12345 (phonesim and similar emulators)
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the
MODEM_WEBSOCKET_PASSWORD environment variable, or prompted interactively if
not set.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML configuration file")

	// Serial connection flags
	flags.StringP("port", "p", "", "Serial port device")
	flags.IntP("baud", "b", 115200, "Baud rate (serial only)")

	// Emulator and WebSocket connection flags
	flags.String("tcp", "", "Modem emulator address (host:port)")
	flags.StringP("url", "u", "", "WebSocket URL (ws:// or wss://)")
	flags.String("username", "", "Username for HTTP Basic auth")
	flags.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	flags.String("vendor", "", "Modem vendor quirks (generic, huawei, phonesim, ...)")
	flags.String("sim-pin", "", "SIM card PIN code (if required)")
	flags.String("capture", "", "Record modem traffic to a CBOR file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig layers defaults, the config file, the environment and the
// flags set on cmd.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	return LoadConfig(WithDefaults(), WithFile(configPath), WithEnv(), WithFlags(cmd.Flags()))
}

func newLogger(cfg *Config) *logging.Logger {
	return logging.New(cfg.Log)
}
