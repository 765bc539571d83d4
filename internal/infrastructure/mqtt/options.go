package mqtt

import (
	"fmt"
	"net"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ellenhp/bambu-farm/internal/infrastructure/config"
	"github.com/ellenhp/bambu-farm/internal/infrastructure/tlsutil"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when the config does not set one.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultStreamBuffer is the capacity of a subscription's message channel.
	defaultStreamBuffer = 64

	// deliverTimeout bounds how long a paho callback waits on a full
	// subscription before the message is dropped. Callbacks run in order on
	// paho's router goroutine, so this is also the longest a slow consumer
	// can hold up the rest of the connection's inbound traffic.
	deliverTimeout = 250 * time.Millisecond

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2
)

// Target identifies one printer's broker.
type Target struct {
	// Host is the printer's address (IP or hostname).
	Host string

	// ServerName is checked against the printer certificate when a CA file
	// is configured. Printers use their serial number as the certificate CN.
	ServerName string

	// ClientID must be unique per connection.
	ClientID string

	// Password is the printer's access code.
	Password string
}

// buildClientOptions creates paho MQTT options for one printer.
//
// This configures:
//   - Broker URL (ssl://host:port)
//   - Client ID and credentials
//   - Keepalive and connect timeout
//   - Optional auto-reconnect
//   - TLS (printers present self-signed certificates)
func buildClientOptions(cfg config.DeviceConfig, target Target) (*pahomqtt.ClientOptions, error) {
	if target.Host == "" {
		return nil, ErrInvalidTarget
	}

	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(target.Host, cfg.Port))
	opts.SetClientID(target.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(target.Password)

	// Start fresh each session; the gateway resubscribes explicitly.
	opts.SetCleanSession(true)

	// Reports are delivered in arrival order. deliverTimeout keeps a
	// slow subscriber from stalling the router for long.
	opts.SetOrderMatters(true)

	// A failed first connect is terminal for the session.
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(cfg.Reconnect.Enabled)
	if cfg.Reconnect.MaxDelay > 0 {
		opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	}

	opts.SetConnectTimeout(connectTimeout(cfg))
	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(time.Duration(cfg.KeepAlive) * time.Second)
	}

	tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS, target.ServerName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTLSConfig, err)
	}
	opts.SetTLSConfig(tlsConfig)

	return opts, nil
}

// brokerURL formats the broker address, bracketing IPv6 literals.
func brokerURL(host string, port int) string {
	return "ssl://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// connectTimeout returns the configured connect timeout or the default.
func connectTimeout(cfg config.DeviceConfig) time.Duration {
	if cfg.ConnectTimeout > 0 {
		return time.Duration(cfg.ConnectTimeout) * time.Second
	}
	return defaultConnectTimeout
}
