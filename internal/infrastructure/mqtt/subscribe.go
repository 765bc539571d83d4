package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Subscribe registers a handler for messages on the specified topic.
//
// The handler is called on paho's goroutines for each received message.
// Subscriptions are restored automatically after a reconnect.
//
// Parameters:
//   - ctx: Cancels the wait for the broker's SUBACK
//   - topic: The topic to subscribe to
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//   - handler: Callback function invoked for each message
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Subscribe(ctx context.Context, topic string, qos byte, handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	return c.subscribe(ctx, subscription{topic: topic, qos: qos, handler: handler})
}

// SubscribeStream subscribes to topic and returns a pull-based Subscription.
//
// Messages are buffered up to the stream capacity and delivered in arrival
// order. When the buffer is full the paho callback waits up to
// deliverTimeout before dropping the message and counting it in Dropped.
func (c *Client) SubscribeStream(ctx context.Context, topic string, qos byte) (*Subscription, error) {
	stream := newSubscription(topic, defaultStreamBuffer)
	sub := subscription{
		topic: topic,
		qos:   qos,
		handler: func(_ string, payload []byte) error {
			if !stream.deliver(payload) && !stream.isClosed() {
				return fmt.Errorf("dropped message on %s: consumer too slow", topic)
			}
			return nil
		},
		stream: stream,
	}

	if err := c.subscribe(ctx, sub); err != nil {
		return nil, err
	}
	return stream, nil
}

func (c *Client) subscribe(ctx context.Context, sub subscription) error {
	if sub.topic == "" {
		return ErrInvalidTopic
	}
	if sub.qos > maxQoS {
		return ErrInvalidQoS
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Track subscription for reconnection restoration
	c.subMu.Lock()
	c.subscriptions[sub.topic] = sub
	c.subMu.Unlock()

	token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	if err := waitToken(ctx, token, defaultPublishTimeout); err != nil {
		c.subMu.Lock()
		delete(c.subscriptions, sub.topic)
		c.subMu.Unlock()
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// SubscriptionCount returns the number of active subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// Subscription is a pull-based view of one topic.
//
// Paho's callback goroutines push into it; a single consumer pulls with
// Next. It is the boundary between the client's callback world and the
// caller's goroutine.
type Subscription struct {
	topic       string
	messages    chan []byte
	interrupted chan struct{}
	closed      chan struct{}
	closeOnce   sync.Once
	dropped     atomic.Uint64
}

func newSubscription(topic string, buffer int) *Subscription {
	return &Subscription{
		topic:       topic,
		messages:    make(chan []byte, buffer),
		interrupted: make(chan struct{}, 1),
		closed:      make(chan struct{}),
	}
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Dropped returns how many messages were discarded because the consumer
// did not keep up.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Next returns the next message.
//
// Returns:
//   - ErrInterrupted: the connection dropped and is being re-established
//   - ErrStreamClosed: the connection is gone; buffered messages are
//     returned before this error
//   - ctx.Err(): the caller gave up
func (s *Subscription) Next(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-s.messages:
		return msg, nil
	default:
	}

	select {
	case msg := <-s.messages:
		return msg, nil
	case <-s.interrupted:
		return nil, ErrInterrupted
	case <-s.closed:
		select {
		case msg := <-s.messages:
			return msg, nil
		default:
			return nil, ErrStreamClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// deliver hands a payload to the consumer, waiting up to deliverTimeout.
// It reports whether the payload was accepted.
func (s *Subscription) deliver(payload []byte) bool {
	if s.isClosed() {
		return false
	}

	timer := time.NewTimer(deliverTimeout)
	defer timer.Stop()

	select {
	case s.messages <- payload:
		return true
	case <-s.closed:
		return false
	case <-timer.C:
		s.dropped.Add(1)
		return false
	}
}

// interrupt records a connection drop. Repeated drops before the consumer
// notices collapse into one notification.
func (s *Subscription) interrupt() {
	select {
	case s.interrupted <- struct{}{}:
	default:
	}
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *Subscription) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
