package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ellenhp/bambu-farm/internal/infrastructure/config"
)

// Client is one MQTT connection to one printer's on-board broker.
//
// Paho delivers messages and connection events on its own goroutines.
// Client forwards them into bounded Subscription channels, so callers only
// ever see channel semantics. When the connection is lost for good (or
// Close is called) every Subscription reports ErrStreamClosed.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.DeviceConfig
	target Target

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// connected tracks current connection state.
	connected bool
	// reconnects counts attempts since the connection was last lost.
	reconnects int
	connMu     sync.RWMutex

	closeOnce sync.Once
	closed    chan struct{}

	// logger for error/panic logging (optional, set via SetLogger).
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
	stream  *Subscription // nil for callback subscriptions
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on paho's goroutines. They should not block for
// extended periods.
type MessageHandler func(topic string, payload []byte) error

// Connect establishes a TLS connection to a printer.
//
// It performs the following setup:
//  1. Builds connection options from config and the target (URL, auth, TLS)
//  2. Installs connection-lost and reconnect handlers
//  3. Attempts the connection, honouring ctx and the connect timeout
//
// Parameters:
//   - ctx: Cancels the connection attempt
//   - cfg: Device transport configuration
//   - target: The printer to connect to
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: Wraps ErrConnectionFailed if the connection fails
func Connect(ctx context.Context, cfg config.DeviceConfig, target Target) (*Client, error) {
	opts, err := buildClientOptions(cfg, target)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:           cfg,
		target:        target,
		subscriptions: make(map[string]subscription),
		closed:        make(chan struct{}),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.handleReconnecting()
	})

	c.client = pahomqtt.NewClient(opts)
	if err := waitToken(ctx, c.client.Connect(), connectTimeout(cfg)); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect callback runs asynchronously; set state here so
	// IsConnected is accurate as soon as Connect returns.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

// handleConnect is called on the initial connection and on every reconnect.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	wasReconnecting := c.reconnects > 0
	c.connected = true
	c.reconnects = 0
	c.connMu.Unlock()

	if wasReconnecting {
		c.restoreSubscriptions()
	}
}

// handleConnectionLost ends every stream unless auto-reconnect will try
// again, in which case streams are told about the interruption.
func (c *Client) handleConnectionLost(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("printer connection lost", "host", c.target.Host, "error", err)
	}

	if !c.cfg.Reconnect.Enabled {
		c.endStreams()
		return
	}

	c.subMu.RLock()
	for _, sub := range c.subscriptions {
		if sub.stream != nil {
			sub.stream.interrupt()
		}
	}
	c.subMu.RUnlock()
}

// handleReconnecting enforces the reconnect attempt limit.
func (c *Client) handleReconnecting() {
	c.connMu.Lock()
	c.reconnects++
	attempts := c.reconnects
	c.connMu.Unlock()

	limit := c.cfg.Reconnect.MaxAttempts
	if limit > 0 && attempts > limit {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("giving up on printer connection", "host", c.target.Host, "attempts", attempts-1)
		}
		// Disconnect blocks on paho internals; never call it from a paho callback.
		go c.Close() //nolint:errcheck // Close never fails
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		// Re-subscribe (ignore errors during reconnection)
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// endStreams closes every stream subscription.
func (c *Client) endStreams() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		if sub.stream != nil {
			sub.stream.close()
		}
	}
}

// Close disconnects from the printer and ends every stream subscription.
// It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.client != nil {
			c.client.Disconnect(defaultDisconnectQuiesce)
		}

		c.connMu.Lock()
		c.connected = false
		c.connMu.Unlock()

		c.endStreams()
	})
	return nil
}

// Done returns a channel that is closed once Close has been called.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// HealthCheck verifies the connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetLogger sets a logger for connection events and handler errors.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
