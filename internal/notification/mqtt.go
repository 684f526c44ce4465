package notification

import (
	"context"
	"encoding/json"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/aquaguard/aquaguard-go/internal/conf"
	"github.com/aquaguard/aquaguard-go/internal/errors"
	"github.com/aquaguard/aquaguard-go/internal/logging"
)

// MQTTBridge forwards bus events to an MQTT broker, one topic per event type
// under the configured prefix.
type MQTTBridge struct {
	settings *conf.Settings
	client   mqtt.Client
	logger   *slog.Logger
}

// NewMQTTBridge creates a bridge from the MQTT settings. Call Connect before
// Attach.
func NewMQTTBridge(settings *conf.Settings) *MQTTBridge {
	return &MQTTBridge{
		settings: settings,
		logger:   logging.ForService("mqtt"),
	}
}

// Connect establishes the broker connection, honoring ctx for the initial
// handshake. Reconnects afterwards are automatic.
func (b *MQTTBridge) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(b.settings.MQTT.Broker).
		SetClientID("aquaguard-" + b.settings.Main.Name).
		SetUsername(b.settings.MQTT.Username).
		SetPassword(b.settings.MQTT.Password).
		SetAutoReconnect(true).
		SetConnectRetry(false)

	opts.OnConnect = func(mqtt.Client) {
		b.logger.Info("connected to mqtt broker", "broker", b.settings.MQTT.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.logger.Warn("mqtt connection lost", "error", err)
	}

	b.client = mqtt.NewClient(opts)
	token := b.client.Connect()

	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryMQTTPublish).
			Context("broker", b.settings.MQTT.Broker).
			Build()
	}
	return nil
}

// Attach consumes bus events until ctx is canceled. Intended to run as its
// own goroutine.
func (b *MQTTBridge) Attach(ctx context.Context, bus *Bus) {
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			b.Disconnect()
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.publish(ev)
		}
	}
}

func (b *MQTTBridge) publish(ev Event) {
	if b.client == nil || !b.client.IsConnected() {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("could not marshal event", "type", ev.Type, "error", err)
		return
	}
	topic := b.topicFor(ev.Type)
	token := b.client.Publish(topic, 0, false, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			b.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
		}
	}()
}

func (b *MQTTBridge) topicFor(eventType string) string {
	return b.settings.MQTT.TopicPrefix + "/" + eventType
}

// Disconnect closes the broker connection.
func (b *MQTTBridge) Disconnect() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
}
