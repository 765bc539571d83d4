package farm

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellenhp/bambu-farm/internal/printer"
)

func TestNew_RequiresCollaborators(t *testing.T) {
	reg := testRegistry(t)

	_, err := New(Options{Dialer: newFakeDialer(), Transferer: newFakeTransferer()})
	assert.Error(t, err)

	_, err = New(Options{Registry: reg, Transferer: newFakeTransferer()})
	assert.Error(t, err)

	_, err = New(Options{Registry: reg, Dialer: newFakeDialer()})
	assert.Error(t, err)
}

// =============================================================================
// EnumeratePrinters
// =============================================================================

func TestEnumeratePrinters_EmitsFullRosterRepeatedly(t *testing.T) {
	f := newTestFarm(t)
	want := testRegistry(t).List()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := f.EnumeratePrinters(ctx)
	for i := 0; i < 3; i++ {
		select {
		case got, ok := <-ch:
			require.True(t, ok)
			assert.Equal(t, want, got, "emission %d", i)
		case <-time.After(time.Second):
			t.Fatalf("no emission %d", i)
		}
	}
}

func TestEnumeratePrinters_ClosesOnCancel(t *testing.T) {
	f := newTestFarm(t)

	ctx, cancel := context.WithCancel(context.Background())
	ch := f.EnumeratePrinters(ctx)
	<-ch
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestEnumeratePrinters_SkipsWhenHubStalls(t *testing.T) {
	f := newTestFarm(t, func(o *Options) {
		o.Sessions.MaxRegistryFailures = 3
	})

	// Occupy the hub goroutine.
	release := make(chan struct{})
	go func() {
		_ = f.hub.do(context.Background(), func(*hubState) { <-release })
	}()
	defer close(release)
	time.Sleep(10 * time.Millisecond)

	ch := f.EnumeratePrinters(context.Background())

	select {
	case records, ok := <-ch:
		assert.False(t, ok, "expected stream to end, got emission %v", records)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not give up")
	}
}

func TestEnumeratePrinters_EndsOnClose(t *testing.T) {
	f := newTestFarm(t)
	ch := f.EnumeratePrinters(context.Background())
	<-ch

	require.NoError(t, f.Close())

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

// =============================================================================
// ConnectPrinter
// =============================================================================

func TestConnectPrinter_UnknownDevice(t *testing.T) {
	f := newTestFarm(t)

	_, err := f.ConnectPrinter(context.Background(), "nope")
	require.ErrorIs(t, err, printer.ErrNotFound)

	assert.Zero(t, f.dialer.dials(), "no connection should be attempted")
	sessions, err := f.Sessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestConnectPrinter_RelaysReports(t *testing.T) {
	f := newTestFarm(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := f.ConnectPrinter(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "P1", stream.DeviceID())
	assert.NotEmpty(t, stream.SessionID())

	conn := f.dialer.conn(t, 0)
	conn.reports <- []byte(`{"print":{"gcode_state":"IDLE"}}`)

	msg := recv(t, stream)
	assert.True(t, msg.Connected)
	assert.Equal(t, "P1", msg.DeviceID)
	assert.JSONEq(t, `{"print":{"gcode_state":"IDLE"}}`, string(msg.Payload))

	sessions, err := f.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "P1", sessions[0].DeviceID)
	assert.Equal(t, stream.SessionID(), sessions[0].SessionID)
	assert.Equal(t, "live", sessions[0].Status)
}

func TestConnectPrinter_ExactlyOneSentinel(t *testing.T) {
	f := newTestFarm(t)

	stream, err := f.ConnectPrinter(context.Background(), "P2")
	require.NoError(t, err)

	conn := f.dialer.conn(t, 0)
	conn.reports <- []byte("a")
	conn.reports <- []byte("b")
	// Let both reports drain before ending the stream.
	assert.Equal(t, "a", string(recv(t, stream).Payload))
	conn.endStream()

	rest := drain(t, stream)
	var data, sentinels int
	for _, m := range rest {
		if m.Connected {
			data++
		} else {
			sentinels++
		}
	}
	assert.Equal(t, 1, data)
	assert.Equal(t, 1, sentinels)
	assert.False(t, rest[len(rest)-1].Connected, "sentinel must be last")

	waitDone(t, stream)
	assert.True(t, conn.isClosed())

	sessions, err := f.Sessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestConnectPrinter_TransientErrorRetries(t *testing.T) {
	f := newTestFarm(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := f.ConnectPrinter(ctx, "P1")
	require.NoError(t, err)

	conn := f.dialer.conn(t, 0)
	conn.errs <- ErrStreamInterrupted
	conn.errs <- fmt.Errorf("mqtt: %w", errBoom)
	assert.Eventually(t, func() bool { return len(conn.errs) == 0 }, time.Second, time.Millisecond)
	conn.reports <- []byte("after")

	msg := recv(t, stream)
	assert.True(t, msg.Connected)
	assert.Equal(t, "after", string(msg.Payload))
	assert.False(t, conn.isClosed())
}

func TestConnectPrinter_CallerCancelEndsSession(t *testing.T) {
	f := newTestFarm(t)
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := f.ConnectPrinter(ctx, "P1")
	require.NoError(t, err)
	conn := f.dialer.conn(t, 0)

	cancel()
	waitDone(t, stream)
	assert.True(t, conn.isClosed())

	// Nobody was reading, so at most the sentinel is left.
	msgs := drain(t, stream)
	assert.LessOrEqual(t, len(msgs), 1)
	for _, m := range msgs {
		assert.False(t, m.Connected)
	}

	err = f.SendMessage(context.Background(), "P1", []byte("{}"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConnectPrinter_DialFailure(t *testing.T) {
	f := newTestFarm(t)
	f.dialer.dialErr = errBoom

	_, err := f.ConnectPrinter(context.Background(), "P1")
	require.ErrorIs(t, err, ErrSessionFailed)
	assert.ErrorIs(t, err, errBoom)

	sessions, err := f.Sessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestConnectPrinter_SubscribeFailure(t *testing.T) {
	f := newTestFarm(t)
	f.dialer.subErr = errBoom

	_, err := f.ConnectPrinter(context.Background(), "P1")
	require.ErrorIs(t, err, ErrSessionFailed)
	assert.True(t, f.dialer.conn(t, 0).isClosed(), "half-open connection must be closed")
}

func TestConnectPrinter_ReplacesExistingSession(t *testing.T) {
	f := newTestFarm(t)
	ctx := context.Background()

	first, err := f.ConnectPrinter(ctx, "P1")
	require.NoError(t, err)

	// Keep reading the first stream, as a client would.
	var (
		wg        sync.WaitGroup
		firstMsgs []IncomingMessage
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstMsgs = drain(t, first)
	}()

	second, err := f.ConnectPrinter(ctx, "P1")
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID(), second.SessionID())

	wg.Wait()
	require.Len(t, firstMsgs, 1)
	assert.False(t, firstMsgs[0].Connected)

	// The old connection is gone before the new one is dialled.
	assert.Equal(t, []string{"dial P1 #1", "close P1 #1", "dial P1 #2"}, f.dialer.log.snapshot())

	sessions, err := f.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, second.SessionID(), sessions[0].SessionID)

	require.NoError(t, f.SendMessage(ctx, "P1", []byte("to-second")))
	select {
	case got := <-f.dialer.conn(t, 1).published:
		assert.Equal(t, "to-second", string(got))
	case <-time.After(time.Second):
		t.Fatal("message not published on replacement session")
	}
}

func TestConnectPrinter_ExpiringConnectsLeaveNoOrphans(t *testing.T) {
	f := newTestFarm(t)
	consumer, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.ConnectPrinter(consumer, "P1")
	require.NoError(t, err)

	// Callers that give up at every point of the connect sequence.
	for i := 0; i < 1000; i++ {
		ctx, stop := context.WithTimeout(consumer, time.Duration(i%5000)*time.Nanosecond)
		_, _ = f.ConnectPrinter(ctx, "P1")
		stop()
	}

	final, err := f.ConnectPrinter(consumer, "P1")
	require.NoError(t, err)

	sessions, err := f.Sessions(consumer)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, final.SessionID(), sessions[0].SessionID)

	// Only the final session's connection may stay open.
	last := f.dialer.dials() - 1
	assert.Eventually(t, func() bool {
		for i := 0; i < last; i++ {
			if !f.dialer.conn(t, i).isClosed() {
				return false
			}
		}
		return !f.dialer.conn(t, last).isClosed()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConnectPrinter_ConcurrentConnectsLeaveOneSession(t *testing.T) {
	f := newTestFarm(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const n = 5
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stream, err := f.ConnectPrinter(ctx, "P3")
			if err != nil {
				return
			}
			for range stream.Messages() {
			}
		}()
	}

	assert.Eventually(t, func() bool {
		sessions, err := f.Sessions(ctx)
		return err == nil && len(sessions) == 1 && sessions[0].Status == "live" && f.dialer.dials() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	// Every connection but the live one has been closed.
	assert.Eventually(t, func() bool {
		open := 0
		for i := 0; i < f.dialer.dials(); i++ {
			if !f.dialer.conn(t, i).isClosed() {
				open++
			}
		}
		return open == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()
}

// =============================================================================
// SendMessage
// =============================================================================

func TestSendMessage_NoSession(t *testing.T) {
	f := newTestFarm(t)

	err := f.SendMessage(context.Background(), "P1", []byte("{}"))
	assert.ErrorIs(t, err, ErrSessionNotFound)

	err = f.SendMessage(context.Background(), "unknown", []byte("{}"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSendMessage_FIFO(t *testing.T) {
	f := newTestFarm(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.ConnectPrinter(ctx, "P2")
	require.NoError(t, err)
	conn := f.dialer.conn(t, 0)

	const n = 40
	for i := 0; i < n; i++ {
		require.NoError(t, f.SendMessage(ctx, "P2", []byte(fmt.Sprintf("cmd-%02d", i))))
	}

	for i := 0; i < n; i++ {
		select {
		case got := <-conn.published:
			assert.Equal(t, fmt.Sprintf("cmd-%02d", i), string(got))
		case <-time.After(time.Second):
			t.Fatalf("message %d not published", i)
		}
	}
}

func TestSendMessage_PublishFailureKeepsSession(t *testing.T) {
	f := newTestFarm(t)
	f.dialer.pubErr = errBoom
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := f.ConnectPrinter(ctx, "P1")
	require.NoError(t, err)

	require.NoError(t, f.SendMessage(ctx, "P1", []byte("lost")))
	require.NoError(t, f.SendMessage(ctx, "P1", []byte("also lost")))

	select {
	case <-stream.Done():
		t.Fatal("publish failure must not end the session")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSendMessage_FullQueueHonoursContext(t *testing.T) {
	f := newTestFarm(t, func(o *Options) { o.Sessions.QueueSize = 1 })
	sctx, scancel := context.WithCancel(context.Background())
	defer scancel()

	_, err := f.ConnectPrinter(sctx, "P1")
	require.NoError(t, err)
	conn := f.dialer.conn(t, 0)

	// The fake publishes into a buffered channel; fill it so the relay blocks.
	for i := 0; i < cap(conn.published); i++ {
		conn.published <- nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var sendErr error
	for i := 0; i < 4 && sendErr == nil; i++ {
		sendErr = f.SendMessage(ctx, "P1", []byte("x"))
	}
	assert.ErrorIs(t, sendErr, context.DeadlineExceeded)
}

// =============================================================================
// UploadFile
// =============================================================================

func TestUploadFile_DeleteThenStore(t *testing.T) {
	f := newTestFarm(t)

	ok, err := f.UploadFile(context.Background(), "P1", []byte{0x01, 0x02, 0x03}, "job.gcode")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{"delete P1 job.gcode", "store P1 job.gcode"}, f.transfer.operations())
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, f.transfer.stored["job.gcode"])
}

func TestUploadFile_UnknownDevice(t *testing.T) {
	f := newTestFarm(t)

	ok, err := f.UploadFile(context.Background(), "nope", []byte{1}, "job.gcode")
	assert.ErrorIs(t, err, printer.ErrNotFound)
	assert.False(t, ok)
	assert.Empty(t, f.transfer.operations())
}

func TestUploadFile_IndependentOfSessions(t *testing.T) {
	f := newTestFarm(t)

	ok, err := f.UploadFile(context.Background(), "P3", []byte("G28"), "sdcard/home.gcode")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, f.dialer.dials())
}

func TestFarmClose(t *testing.T) {
	f := newTestFarm(t)

	stream, err := f.ConnectPrinter(context.Background(), "P1")
	require.NoError(t, err)

	done := make(chan []IncomingMessage)
	go func() { done <- drain(t, stream) }()

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	msgs := <-done
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Connected)
	assert.True(t, f.dialer.conn(t, 0).isClosed())

	_, err = f.ConnectPrinter(context.Background(), "P1")
	assert.ErrorIs(t, err, ErrClosed)
}
