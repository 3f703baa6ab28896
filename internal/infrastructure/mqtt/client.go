package mqtt

import (
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/occupancy-core/internal/infrastructure/config"
)

// Operation timeouts for broker interactions.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultSubTimeout     = 5 * time.Second

	maxQoS = 2

	// maxPayloadSize caps message payloads (1MB) to prevent resource
	// exhaustion and align with typical broker limits.
	maxPayloadSize = 1 << 20
)

// Client wraps paho.mqtt.golang with occupancy daemon-specific functionality.
//
// It provides connection management, message publishing, subscription
// handling, and automatic reconnection with exponential backoff.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library.
// They should not block for extended periods.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw message payload (typically JSON)
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures Last Will and Testament for offline detection
//  3. Sets up auto-reconnect with exponential backoff
//  4. Attempts initial connection with timeout
//  5. Publishes online status to the system status topic
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: If initial connection fails within timeout
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		c.restoreSubscriptions()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.logf().Warn("mqtt connection lost", "error", err)
	})

	c.client = pahomqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	statusPayload := []byte(`{"status":"online"}`)
	if err := c.Publish(Topics{}.SystemStatus(), statusPayload, byte(cfg.QoS), true); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("publishing online status: %w", err)
	}

	return c, nil
}

// buildClientOptions translates config into paho client options.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	broker := fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)

	opts := pahomqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.Broker.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetCleanSession(false).
		SetOrderMatters(false)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Reconnect.InitialDelay > 0 {
		opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	}
	if cfg.Reconnect.MaxDelay > 0 {
		opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	}

	// Last Will: brokers tell subscribers we went away uncleanly.
	opts.SetWill(Topics{}.SystemStatus(), `{"status":"offline"}`, byte(cfg.QoS), true)

	return opts
}

// Publish sends a message to the specified MQTT topic.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "occupancy/state/kitchen")
//   - payload: The message payload (typically JSON, max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes",
			ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe registers a handler for a topic (wildcards allowed) and
// records the subscription for restoration after reconnects.
//
// Parameters:
//   - topic: Topic filter (e.g., "occupancy/event/+")
//   - qos: Quality of Service level (0, 1, or 2)
//   - handler: Callback for received messages
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultSubTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultSubTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	return nil
}

// wrapHandler adapts a MessageHandler to paho's callback, recovering
// panics and logging handler errors so one bad message cannot take the
// connection down.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logf().Error("message handler panicked",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logf().Warn("message handler failed",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}

// restoreSubscriptions re-subscribes all recorded topics after a reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subMu.RUnlock()

	for _, sub := range subs {
		token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		if !token.WaitTimeout(defaultSubTimeout) || token.Error() != nil {
			c.logf().Error("re-subscription failed",
				"topic", sub.topic,
				"error", token.Error(),
			)
		}
	}
}

// IsConnected reports whether the client currently holds a broker connection.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// Disconnect publishes the offline status and closes the connection,
// allowing in-flight messages the given grace period.
func (c *Client) Disconnect(grace time.Duration) {
	if c.client == nil {
		return
	}
	if c.IsConnected() {
		_ = c.Publish(Topics{}.SystemStatus(), []byte(`{"status":"offline"}`), byte(c.cfg.QoS), true)
	}
	c.client.Disconnect(uint(grace.Milliseconds())) // #nosec G115 -- grace periods are small
}

// SetLogger installs a logger for connection and handler diagnostics.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// logf returns the installed logger or a no-op fallback.
func (c *Client) logf() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	if c.logger != nil {
		return c.logger
	}
	return noopLogger{}
}

// noopLogger discards all output.
type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
