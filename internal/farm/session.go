package farm

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a session.
type Status int32

// Session states. A session only moves forward.
const (
	StatusConnecting Status = iota
	StatusLive
	StatusClosed
)

// String returns the lower-case state name.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusLive:
		return "live"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// OutgoingMessage is a client command bound for a device.
type OutgoingMessage struct {
	DeviceID string
	Payload  []byte
}

// IncomingMessage is a device report bound for the client.
// Connected is false only on the final message of a stream.
type IncomingMessage struct {
	DeviceID  string
	Payload   []byte
	Connected bool
}

// SessionInfo is a point-in-time view of one session.
type SessionInfo struct {
	DeviceID  string    `json:"device_id"`
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Queued    int       `json:"queued"`
}

// session is the handle for one device connection.
//
// The handle is shared between the hub index, the caller that created it
// and the relay goroutines. Its status is only written by Farm and the
// relay it starts; everything else reads.
type session struct {
	deviceID  string
	id        string
	startedAt time.Time

	inbound chan OutgoingMessage

	// ctx is cancelled to retire the session.
	ctx    context.Context
	cancel context.CancelFunc

	status atomic.Int32

	done       chan struct{}
	finishOnce sync.Once
}

func newSession(ctx context.Context, deviceID string, queueSize int) *session {
	sctx, cancel := context.WithCancel(ctx)
	return &session{
		deviceID:  deviceID,
		id:        uuid.NewString(),
		startedAt: time.Now(),
		inbound:   make(chan OutgoingMessage, queueSize),
		ctx:       sctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (s *session) getStatus() Status {
	return Status(s.status.Load())
}

func (s *session) setStatus(st Status) {
	s.status.Store(int32(st))
}

// enqueue hands a command to the relay. It blocks while the queue is full.
func (s *session) enqueue(ctx context.Context, payload []byte) error {
	if s.getStatus() == StatusClosed {
		return ErrSessionClosed
	}

	msg := OutgoingMessage{DeviceID: s.deviceID, Payload: payload}
	select {
	case s.inbound <- msg:
		return nil
	case <-s.ctx.Done():
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retire stops the session. It does not wait; use done for that.
func (s *session) retire() {
	s.cancel()
}

// finish marks the session closed and releases waiters. Safe to call more
// than once.
func (s *session) finish() {
	s.finishOnce.Do(func() {
		s.setStatus(StatusClosed)
		s.cancel()
		close(s.done)
	})
}

func (s *session) info() SessionInfo {
	return SessionInfo{
		DeviceID:  s.deviceID,
		SessionID: s.id,
		Status:    s.getStatus().String(),
		StartedAt: s.startedAt,
		Queued:    len(s.inbound),
	}
}

// Stream is the device-to-client side of a session.
//
// Messages yields device reports until the session ends. The last value is
// always an IncomingMessage with Connected false, after which the channel
// is closed. If the caller's context is cancelled first, the channel is
// closed without waiting for the caller to read the final message.
type Stream struct {
	deviceID  string
	sessionID string
	messages  <-chan IncomingMessage
	done      <-chan struct{}
}

// DeviceID returns the printer this stream belongs to.
func (s *Stream) DeviceID() string { return s.deviceID }

// SessionID returns the unique ID of the underlying session.
func (s *Stream) SessionID() string { return s.sessionID }

// Messages returns the device report channel.
func (s *Stream) Messages() <-chan IncomingMessage { return s.messages }

// Done is closed once the session's relay loops have exited and its
// connection is closed.
func (s *Stream) Done() <-chan struct{} { return s.done }
