package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <recipient> <message>...",
	Short: "Send one SMS and exit",
	Long: `Send one SMS and exit.

The message words are joined with single spaces. Long messages are split
into a concatenated multi-part message. The message references assigned by
the network are printed on success.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := newLogger(config)
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, capture, err := openModem(ctx, config.Modem, log.Logger)
	if err != nil {
		return err
	}
	defer capture.Close()
	defer m.Close()

	refs, err := m.SendSMS(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Sent to %s, references %v\n", args[0], refs)
	return nil
}
