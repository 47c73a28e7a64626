package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"i4.energy/across/modemd/modem"
)

const mqttDisconnectQuiesce = 500 // milliseconds

// MQTTBridge takes send requests from the broker and publishes modem events
// and send results back to it.
type MQTTBridge struct {
	config MQTTConfig
	outbox *Outbox
	logger *slog.Logger

	mu      sync.Mutex
	client  mqtt.Client
	publish func(topic string, payload []byte)
}

func NewMQTTBridge(config MQTTConfig, outbox *Outbox, logger *slog.Logger) *MQTTBridge {
	b := &MQTTBridge{
		config: config,
		outbox: outbox,
		logger: logger,
	}
	b.publish = b.publishMQTT
	return b
}

// Run connects to the broker and stays connected until ctx ends. Lost
// connections are re-established by the client.
func (b *MQTTBridge) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.config.Broker)
	opts.SetClientID(b.config.ClientID)
	if b.config.Username != "" {
		opts.SetUsername(b.config.Username)
		opts.SetPassword(b.config.Password)
	}
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.logger.Warn("MQTT connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		b.logger.Info("MQTT connected", "topic", b.config.SendTopic)
		token := c.Subscribe(b.config.SendTopic, 0, func(_ mqtt.Client, m mqtt.Message) {
			b.handleSend(m.Payload())
		})
		if token.Wait() && token.Error() != nil {
			b.logger.Error("MQTT subscribe failed", "topic", b.config.SendTopic, "error", token.Error())
		}
	})

	client := mqtt.NewClient(opts)
	t := client.Connect()
	t.Wait()
	if err := t.Error(); err != nil {
		return fmt.Errorf("connect to MQTT broker %s: %w", b.config.Broker, err)
	}

	b.mu.Lock()
	b.client = client
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	b.client = nil
	b.mu.Unlock()
	client.Disconnect(mqttDisconnectQuiesce)
	return nil
}

// handleSend queues the request carried by payload.
func (b *MQTTBridge) handleSend(payload []byte) {
	var req SendRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logger.Warn("MQTT bad payload", "error", err)
		return
	}
	if req.To == "" || req.Message == "" {
		b.logger.Warn("MQTT request is missing to/message")
		return
	}

	id, err := b.outbox.Enqueue(req)
	if err != nil {
		b.logger.Error("Failed to queue SMS", "to", req.To, "error", err)
		b.publishJSON(b.config.EventTopic+"/sent", SendStatus{ID: req.ID, To: req.To, State: StateFailed, Error: err.Error()})
		return
	}
	b.logger.Debug("Queued SMS from MQTT", "id", id, "to", req.To)
}

// Publish sends ev to the event topic. It implements EventSink.
func (b *MQTTBridge) Publish(ev modem.Event) {
	b.publishJSON(b.config.EventTopic, ev)
}

// Sent publishes the outcome of a queued request.
func (b *MQTTBridge) Sent(st SendStatus) {
	b.publishJSON(b.config.EventTopic+"/sent", st)
}

func (b *MQTTBridge) publishJSON(topic string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("Failed to encode MQTT payload", "error", err)
		return
	}
	b.publish(topic, data)
}

func (b *MQTTBridge) publishMQTT(topic string, payload []byte) {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		b.logger.Debug("MQTT not connected, dropping publish", "topic", topic)
		return
	}
	// The token is not awaited.
	client.Publish(topic, 0, false, payload)
}
