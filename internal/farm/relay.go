package farm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// cleanupTimeout bounds the hub request that unregisters a finished session.
const cleanupTimeout = 5 * time.Second

// relay moves messages between one session and its device connection.
//
// Two loops run per session:
//   - reports: device -> client, pulled from the Subscription
//   - requests: client -> device, drained from the session's inbound queue
//
// Either loop ending retires the session, which stops the other. Once both
// have returned the connection is closed, the session is unregistered and
// the consumer receives exactly one disconnect message.
type relay struct {
	s        *session
	conn     Conn
	sub      Subscription
	out      chan<- IncomingMessage
	consumer context.Context // the ConnectPrinter caller

	retryDelay time.Duration
	hub        *hub
	logger     Logger
	metrics    Metrics
}

// run blocks until the session ends.
func (r *relay) run() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer r.s.retire()
		r.reports()
	}()
	go func() {
		defer wg.Done()
		defer r.s.retire()
		r.requests()
	}()
	wg.Wait()

	if err := r.conn.Close(); err != nil {
		r.logger.Warn("closing printer connection", "device_id", r.s.deviceID, "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	if err := r.hub.remove(ctx, r.s); err != nil && !errors.Is(err, ErrClosed) {
		r.logger.Warn("unregistering session", "device_id", r.s.deviceID, "session_id", r.s.id, "error", err)
	}
	cancel()

	r.s.finish()
	r.metrics.SessionClosed(r.s.deviceID)
	r.logger.Info("printer session closed", "device_id", r.s.deviceID, "session_id", r.s.id)

	// Consumers that already left do not get the sentinel.
	select {
	case r.out <- IncomingMessage{DeviceID: r.s.deviceID, Connected: false}:
	case <-r.consumer.Done():
	}
	close(r.out)
}

// reports forwards device messages until the subscription ends or the
// session is retired.
func (r *relay) reports() {
	ctx := r.s.ctx
	for {
		payload, err := r.sub.Next(ctx)
		switch {
		case err == nil:
			msg := IncomingMessage{DeviceID: r.s.deviceID, Payload: payload, Connected: true}
			select {
			case r.out <- msg:
				r.metrics.MessageRelayed(r.s.deviceID, DirectionFromDevice)
			case <-ctx.Done():
				return
			}

		case ctx.Err() != nil:
			return

		case errors.Is(err, ErrEndOfStream):
			r.logger.Info("printer stream ended", "device_id", r.s.deviceID, "session_id", r.s.id)
			return

		default:
			r.metrics.StreamInterrupted(r.s.deviceID)
			r.logger.Warn("printer stream interrupted, retrying",
				"device_id", r.s.deviceID,
				"retry_in", r.retryDelay,
				"error", err,
			)
			if !sleepCtx(ctx, r.retryDelay) {
				return
			}
		}
	}
}

// requests publishes queued client commands in FIFO order.
func (r *relay) requests() {
	ctx := r.s.ctx
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.s.inbound:
			if err := r.conn.PublishRequest(ctx, msg.Payload); err != nil {
				if ctx.Err() != nil {
					return
				}
				r.metrics.PublishFailed(r.s.deviceID)
				r.logger.Warn("publishing to printer failed",
					"device_id", r.s.deviceID,
					"bytes", len(msg.Payload),
					"error", err,
				)
				continue
			}
			r.metrics.MessageRelayed(r.s.deviceID, DirectionToDevice)
		}
	}
}

// sleepCtx waits for d and reports whether ctx is still live.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
