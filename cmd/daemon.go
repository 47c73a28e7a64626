package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	inboxSize       = 256
	outboxSize      = 1024
	shutdownTimeout = 30 * time.Second
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the modem daemon",
	Long: `Run the modem daemon.

The daemon keeps the modem initialized and serves an HTTP API for sending
messages, querying the network and running raw AT commands. Received
messages, status reports and network changes are kept in an inbox and
streamed to WebSocket clients on /events. With --mqtt-broker set, send
requests are also taken from the broker and events published to it.

The daemon exits when the modem is lost; run it under a supervisor that
restarts it.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	daemonCmd.Flags().String("mqtt-broker", "", "MQTT broker URL (e.g. tcp://localhost:1883)")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := newLogger(config)
	defer log.Close()
	logger := log.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, capture, err := openModem(ctx, config.Modem, logger.With("component", "modem"))
	if err != nil {
		logger.Error("Failed to create modem", "error", err)
		return err
	}
	defer capture.Close()
	defer func() {
		logger.Info("Closing modem connection")
		if err := m.Close(); err != nil {
			logger.Error("Failed to close modem", "error", err)
		}
	}()

	inbox := NewInbox(inboxSize)
	hub := NewHub(logger.With("component", "events"))
	outbox := NewOutbox(m, logger.With("component", "outbox"), outboxSize)

	var sinks []EventSink
	var bridge *MQTTBridge
	if config.MQTT.Broker != "" {
		bridge = NewMQTTBridge(config.MQTT, outbox, logger.With("component", "mqtt"))
		outbox.OnDone = bridge.Sent
		sinks = append(sinks, bridge)
	}

	httpServer := &http.Server{
		Addr: config.HTTP.BindAddress,
		Handler: &Server{
			Logger: logger.With("component", "server"),
			Device: m,
			Token:  config.HTTP.Token,
			Outbox: outbox,
			Inbox:  inbox,
			Hub:    hub,
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return m.Loop(gctx)
	})
	g.Go(func() error {
		return outbox.Run(gctx)
	})
	g.Go(func() error {
		return fanOut(gctx, m.Events(), inbox, hub, sinks...)
	})
	if bridge != nil {
		g.Go(func() error {
			return bridge.Run(gctx)
		})
	}
	g.Go(func() error {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Closing HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		logger.Error("Daemon stopped", "error", err)
		return err
	}

	logger.Info("Daemon stopped")
	return nil
}
