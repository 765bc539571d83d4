package farm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ellenhp/bambu-farm/internal/infrastructure/config"
	"github.com/ellenhp/bambu-farm/internal/printer"
)

// eventLog records transport events in order across fakes.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	copy(out, l.events)
	return out
}

// fakeDialer hands out a new fakeConn per Dial.
type fakeDialer struct {
	log *eventLog

	mu      sync.Mutex
	conns   []*fakeConn
	dialErr error
	subErr  error
	pubErr  error
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{log: &eventLog{}}
}

func (d *fakeDialer) Dial(ctx context.Context, rec printer.Record) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(d.conns) + 1
	d.log.add("dial %s #%d", rec.ID, n)
	if d.dialErr != nil {
		return nil, d.dialErr
	}

	c := &fakeConn{
		n:         n,
		deviceID:  rec.ID,
		log:       d.log,
		reports:   make(chan []byte, 16),
		errs:      make(chan error, 16),
		published: make(chan []byte, 64),
		closed:    make(chan struct{}),
		subErr:    d.subErr,
		pubErr:    d.pubErr,
	}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) conn(t *testing.T, i int) *fakeConn {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.Greater(t, len(d.conns), i, "connection %d was never dialled", i)
	return d.conns[i]
}

// fakeConn is a device connection driven by the test.
type fakeConn struct {
	n        int
	deviceID string
	log      *eventLog

	reports   chan []byte
	errs      chan error
	published chan []byte

	subErr error
	pubErr error

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *fakeConn) SubscribeReports(context.Context) (Subscription, error) {
	if c.subErr != nil {
		return nil, c.subErr
	}
	return &fakeSubscription{conn: c}, nil
}

func (c *fakeConn) PublishRequest(ctx context.Context, payload []byte) error {
	if c.pubErr != nil {
		return c.pubErr
	}
	select {
	case c.published <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		c.log.add("close %s #%d", c.deviceID, c.n)
		close(c.closed)
	})
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// endStream makes the subscription report a definitive end.
func (c *fakeConn) endStream() {
	c.errs <- fmt.Errorf("broker went away: %w", ErrEndOfStream)
}

type fakeSubscription struct {
	conn *fakeConn
}

func (s *fakeSubscription) Next(ctx context.Context) ([]byte, error) {
	select {
	case p := <-s.conn.reports:
		return p, nil
	default:
	}
	select {
	case p := <-s.conn.reports:
		return p, nil
	case err := <-s.conn.errs:
		return nil, err
	case <-s.conn.closed:
		return nil, ErrEndOfStream
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fakeTransferer records file operations.
type fakeTransferer struct {
	mu        sync.Mutex
	ops       []string
	stored    map[string][]byte
	deleteErr error
	storeErr  error

	// gate, if set, blocks Store until closed.
	gate chan struct{}
}

func newFakeTransferer() *fakeTransferer {
	return &fakeTransferer{stored: make(map[string][]byte)}
}

func (f *fakeTransferer) Delete(_ context.Context, rec printer.Record, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "delete "+rec.ID+" "+remotePath)
	return f.deleteErr
}

func (f *fakeTransferer) Store(ctx context.Context, rec printer.Record, remotePath string, r io.Reader) error {
	f.mu.Lock()
	f.ops = append(f.ops, "store "+rec.ID+" "+remotePath)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return f.storeErr
	}
	f.stored[remotePath] = data
	return nil
}

func (f *fakeTransferer) operations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.ops))
	copy(out, f.ops)
	return out
}

func (f *fakeTransferer) storeCount() int {
	n := 0
	for _, op := range f.operations() {
		if len(op) > 5 && op[:5] == "store" {
			n++
		}
	}
	return n
}

// =============================================================================
// Helpers
// =============================================================================

func testRegistry(t *testing.T) *printer.Registry {
	t.Helper()
	reg, err := printer.NewRegistry(
		printer.Record{ID: "P1", Name: "Left", Model: printer.ModelX1C, Host: "10.0.0.1", Password: "aaaa"},
		printer.Record{ID: "P2", Name: "Middle", Model: printer.ModelX1, Host: "10.0.0.2", Password: "bbbb"},
		printer.Record{ID: "P3", Name: "Right", Model: printer.ModelP1S, Host: "10.0.0.3", Password: "cccc"},
	)
	require.NoError(t, err)
	return reg
}

func testSessionsConfig() config.SessionsConfig {
	return config.SessionsConfig{
		QueueSize:           16,
		RetryDelay:          5 * time.Millisecond,
		EnumerateInterval:   5 * time.Millisecond,
		RegistryTimeout:     20 * time.Millisecond,
		MaxRegistryFailures: 30,
	}
}

type testFarm struct {
	*Farm
	dialer   *fakeDialer
	transfer *fakeTransferer
}

func newTestFarm(t *testing.T, mutate ...func(*Options)) *testFarm {
	t.Helper()
	dialer := newFakeDialer()
	transfer := newFakeTransferer()
	opts := Options{
		Registry:   testRegistry(t),
		Dialer:     dialer,
		Transferer: transfer,
		Sessions:   testSessionsConfig(),
		Uploads:    config.UploadsConfig{MaxConcurrent: 2, Timeout: 5 * time.Second, ScratchDir: t.TempDir()},
	}
	for _, m := range mutate {
		m(&opts)
	}

	f, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	return &testFarm{Farm: f, dialer: dialer, transfer: transfer}
}

// recv reads one message or fails the test.
func recv(t *testing.T, s *Stream) IncomingMessage {
	t.Helper()
	select {
	case msg, ok := <-s.Messages():
		require.True(t, ok, "stream closed unexpectedly")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return IncomingMessage{}
	}
}

// drain reads until the stream closes and returns everything it saw.
func drain(t *testing.T, s *Stream) []IncomingMessage {
	t.Helper()
	var out []IncomingMessage
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-s.Messages():
			if !ok {
				return out
			}
			out = append(out, msg)
		case <-timeout:
			t.Fatal("timed out waiting for stream to close")
			return out
		}
	}
}

func waitDone(t *testing.T, s *Stream) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
}

var errBoom = errors.New("boom")
