package farm

import (
	"context"
	"io"

	"github.com/ellenhp/bambu-farm/internal/printer"
)

// Dialer opens device connections.
// This interface is satisfied by the MQTT adapter in main.go.
type Dialer interface {
	// Dial connects to the printer. The returned Conn is owned by one
	// session and closed when that session ends.
	Dial(ctx context.Context, rec printer.Record) (Conn, error)
}

// Conn is one live connection to a printer's control channel.
type Conn interface {
	// SubscribeReports subscribes to the printer's status reports.
	SubscribeReports(ctx context.Context) (Subscription, error)

	// PublishRequest sends one command to the printer.
	PublishRequest(ctx context.Context, payload []byte) error

	// Close disconnects. It must be safe to call more than once.
	Close() error
}

// Subscription yields device messages in arrival order.
type Subscription interface {
	// Next blocks for the next payload.
	//
	// Errors wrapping ErrEndOfStream are definitive: the subscription will
	// never yield again. Any other error (typically ErrStreamInterrupted)
	// is treated as transient and Next is polled again after a delay.
	Next(ctx context.Context) ([]byte, error)
}

// Transferer moves files onto a printer.
// This interface is satisfied by the FTPS adapter in main.go.
type Transferer interface {
	// Delete removes remotePath. Callers treat failure as non-fatal.
	Delete(ctx context.Context, rec printer.Record, remotePath string) error

	// Store writes r to remotePath, replacing any existing file.
	Store(ctx context.Context, rec printer.Record, remotePath string, r io.Reader) error
}

// Metrics receives gateway events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	SessionOpened(deviceID string)
	SessionClosed(deviceID string)
	MessageRelayed(deviceID, direction string)
	PublishFailed(deviceID string)
	StreamInterrupted(deviceID string)
	UploadFinished(deviceID string, ok bool, seconds float64)
	RegistryUnavailable()
}

// Relay directions reported to Metrics.
const (
	DirectionToDevice   = "to_device"
	DirectionFromDevice = "from_device"
)

type noopMetrics struct{}

func (noopMetrics) SessionOpened(string)                 {}
func (noopMetrics) SessionClosed(string)                 {}
func (noopMetrics) MessageRelayed(string, string)        {}
func (noopMetrics) PublishFailed(string)                 {}
func (noopMetrics) StreamInterrupted(string)             {}
func (noopMetrics) UploadFinished(string, bool, float64) {}
func (noopMetrics) RegistryUnavailable()                 {}

// Logger defines the logging interface used by the farm.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
