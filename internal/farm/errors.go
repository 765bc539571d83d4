package farm

import "errors"

// Domain-specific errors for the gateway core.
var (
	// ErrSessionNotFound is returned when a message is sent to a device
	// with no session.
	ErrSessionNotFound = errors.New("farm: no session for device")

	// ErrSessionClosed is returned when a session ended before a request
	// could be accepted.
	ErrSessionClosed = errors.New("farm: session closed")

	// ErrSessionFailed is returned when a session could not be established.
	// It wraps the transport error and is terminal for that session.
	ErrSessionFailed = errors.New("farm: session failed")

	// ErrEndOfStream is returned by a Subscription when the device
	// connection is gone for good.
	ErrEndOfStream = errors.New("farm: end of stream")

	// ErrStreamInterrupted is returned by a Subscription when the device
	// connection dropped but may recover.
	ErrStreamInterrupted = errors.New("farm: stream interrupted")

	// ErrRegistryUnavailable is returned when the session hub did not answer
	// a roster request in time.
	ErrRegistryUnavailable = errors.New("farm: registry unavailable")

	// ErrInvalidUpload is returned when an upload request is malformed.
	ErrInvalidUpload = errors.New("farm: invalid upload")

	// ErrClosed is returned after the gateway has been shut down.
	ErrClosed = errors.New("farm: gateway closed")
)
