package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Logger      *zap.Logger
}

// MQTTPublisher pushes events to display devices subscribed on the broker.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	qos    byte
	logger *zap.Logger
}

// NewMQTTPublisher connects to the broker with auto reconnect enabled.
func NewMQTTPublisher(opts MQTTOptions) (*MQTTPublisher, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectTimeout(10 * time.Second)
	clientOpts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", opts.BrokerURL))
	}
	clientOpts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker: %w", token.Error())
	}
	return NewMQTTPublisherWithClient(client, opts.TopicPrefix, opts.QoS, logger), nil
}

// NewMQTTPublisherWithClient wraps an already connected client.
func NewMQTTPublisherWithClient(client mqtt.Client, prefix string, qos byte, logger *zap.Logger) *MQTTPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if qos > 2 {
		qos = 1
	}
	return &MQTTPublisher{client: client, prefix: strings.Trim(prefix, "/"), qos: qos, logger: logger}
}

// Publish sends the JSON encoded event and waits for the broker ack or ctx.
func (p *MQTTPublisher) Publish(ctx context.Context, topic string, event Event) error {
	if event.Topic == "" {
		event.Topic = topic
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	fullTopic := p.topic(topic)
	token := p.client.Publish(fullTopic, p.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", fullTopic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", fullTopic, err)
	}
	p.logger.Debug("mqtt event published", zap.String("topic", fullTopic), zap.String("type", event.Type))
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

func (p *MQTTPublisher) topic(topic string) string {
	if p.prefix == "" {
		return topic
	}
	return p.prefix + "/" + strings.TrimPrefix(topic, "/")
}
