package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or invalid topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("mqtt: operation timed out")

	// ErrInvalidTarget is returned when a connection target has no host.
	ErrInvalidTarget = errors.New("mqtt: target host cannot be empty")

	// ErrTLSConfig is returned when the TLS settings cannot be applied.
	ErrTLSConfig = errors.New("mqtt: invalid TLS configuration")

	// ErrStreamClosed is returned by Subscription.Next once the connection
	// is gone for good. No further messages will arrive.
	ErrStreamClosed = errors.New("mqtt: subscription closed")

	// ErrInterrupted is returned by Subscription.Next when the connection
	// dropped and the client is reconnecting. The subscription stays valid.
	ErrInterrupted = errors.New("mqtt: connection interrupted")
)
