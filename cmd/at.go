package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"i4.energy/across/modemd/at"
	"i4.energy/across/modemd/modem"
)

var atCmd = &cobra.Command{
	Use:   "at <command>...",
	Short: "Run AT commands and print the answers",
	Long: `Run AT commands on an initialized modem and print every line of the
answers. Commands run in order; a failing final result is printed and the
remaining commands still run.

Use --trace to see the raw traffic, including the initialization.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAT,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show SIM, registration and signal information",
	RunE:  runInfo,
}

func init() {
	atCmd.Flags().Bool("trace", false, "Print raw modem traffic")
	rootCmd.AddCommand(atCmd)
	rootCmd.AddCommand(infoCmd)
}

func runAT(cmd *cobra.Command, args []string) error {
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

	if trace, _ := cmd.Flags().GetBool("trace"); trace {
		m.SetDebug(func(s string) {
			fmt.Fprintln(os.Stderr, s)
		})
	}

	var failed bool
	for _, c := range args {
		res, err := m.Exec(ctx, c)
		var atErr *at.Error
		if err != nil && !errors.As(err, &atErr) {
			return err
		}
		printResult(os.Stdout, c, res)
		failed = failed || atErr != nil
	}

	if failed {
		return errors.New("command failed")
	}
	return nil
}

func printResult(w io.Writer, cmd string, res *at.Result) {
	fmt.Fprintf(w, "> %s\n", cmd)
	if res == nil {
		return
	}
	for _, l := range res.Lines {
		fmt.Fprintf(w, "  %s\n", l)
	}
	if res.PDU != "" {
		fmt.Fprintf(w, "  %s\n", res.PDU)
	}
	fmt.Fprintf(w, "  %s\n", res.Final)
}

func runInfo(cmd *cobra.Command, args []string) error {
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

	return printInfo(ctx, os.Stdout, m)
}

func printInfo(ctx context.Context, w io.Writer, m *modem.Modem) error {
	imsi, err := m.IMSI(ctx)
	if err != nil {
		return fmt.Errorf("read IMSI: %w", err)
	}
	fmt.Fprintf(w, "IMSI:          %s\n", imsi)

	if smsc, err := m.ServiceCenter(ctx); err == nil {
		fmt.Fprintf(w, "Service centre: %s\n", smsc)
	}

	reg, err := m.Registration(ctx)
	if errors.Is(err, modem.ErrNotInitialized) {
		fmt.Fprintln(w, "Registration:  unavailable")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read registration: %w", err)
	}
	fmt.Fprintf(w, "Registration:  %s (lac %04X, ci %X)\n", reg.Status, reg.LAC, reg.CI)

	if op, err := m.Operator(ctx); err == nil {
		fmt.Fprintf(w, "Operator:      %s (%s%s)\n", op.Name, op.MCC, op.MNC)
	}

	if strength, err := m.SignalStrength(ctx); err == nil {
		if strength < 0 {
			fmt.Fprintln(w, "Signal:        unknown")
		} else {
			fmt.Fprintf(w, "Signal:        %d%%\n", strength)
		}
	}
	return nil
}
