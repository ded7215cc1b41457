package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig holds the configuration for the MQTT client.
type MQTTConfig struct {
	BrokerURL     string
	ClientID      string
	Username      string
	Password      string
	QoS           byte
	Retained      bool
	AutoReconnect bool
	MaxRetries    int
	RetryInterval time.Duration
}

// pahoClient is the part of mqtt.Client used here.
type pahoClient interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
}

var newPahoClient = func(opts *mqtt.ClientOptions) pahoClient {
	return mqtt.NewClient(opts)
}

type Client struct {
	client pahoClient
	config MQTTConfig
	logger *slog.Logger
}

// NewClient connects to the broker, retrying up to MaxRetries times.
func NewClient(config MQTTConfig, logger *slog.Logger) (*Client, error) {
	if config.MaxRetries < 1 {
		return nil, errors.New("mqtt: MaxRetries must be at least 1")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "mqtt"))

	opts := mqtt.NewClientOptions().AddBroker(config.BrokerURL)
	opts.SetClientID(config.ClientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.SetAutoReconnect(config.AutoReconnect)

	var lastErr error
	for attempt := 1; attempt <= config.MaxRetries; attempt++ {
		client := newPahoClient(opts)
		token := client.Connect()
		if token.WaitTimeout(config.RetryInterval) && token.Error() == nil {
			logger.Info("connected to MQTT broker", "broker", config.BrokerURL)
			return &Client{client: client, config: config, logger: logger}, nil
		}
		lastErr = token.Error()
		if lastErr == nil {
			lastErr = errors.New("connect timed out")
		}
		logger.Warn("failed to connect to MQTT broker",
			"attempt", attempt, "max_retries", config.MaxRetries, "error", lastErr)
		if attempt < config.MaxRetries {
			time.Sleep(config.RetryInterval)
		}
	}
	return nil, fmt.Errorf("mqtt: connect to %s after %d attempts: %w", config.BrokerURL, config.MaxRetries, lastErr)
}

// Publish sends payload without waiting for the broker. Delivery errors are
// logged from a separate goroutine.
func (c *Client) Publish(topic string, payload []byte) {
	if !c.client.IsConnected() {
		c.logger.Warn("MQTT client not connected, dropping message", "topic", topic)
		return
	}
	token := c.client.Publish(topic, c.config.QoS, c.config.Retained, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			c.logger.Warn("publish failed", "topic", topic, "error", token.Error())
		}
	}()
	c.logger.Debug("published", "topic", topic, "bytes", len(payload))
}

// Subscribe registers handler for topic and waits for the broker to
// acknowledge the subscription.
func (c *Client) Subscribe(topic string, handler func(payload []byte)) error {
	token := c.client.Subscribe(topic, c.config.QoS, func(_ mqtt.Client, m mqtt.Message) {
		handler(m.Payload())
	})
	if !token.WaitTimeout(c.config.RetryInterval) {
		return fmt.Errorf("mqtt: subscribe %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", topic, err)
	}
	c.logger.Info("subscribed", "topic", topic)
	return nil
}

// Close disconnects the MQTT client.
func (c *Client) Close() {
	if c.client.IsConnected() {
		c.logger.Info("disconnecting from MQTT broker")
		// Wait up to 250 milliseconds for inflight messages to be delivered.
		c.client.Disconnect(250)
	}
}
