//go:build integration

package mqtt

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Integration tests against a real printer (or any TLS broker on 8883).
//
// Run with:
//
//	BAMBUFARM_TEST_HOST=192.168.1.40 \
//	BAMBUFARM_TEST_DEVICE_ID=01S00C000000001 \
//	BAMBUFARM_TEST_PASSWORD=12345678 \
//	go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationTarget(t *testing.T) (Target, string) {
	t.Helper()
	host := os.Getenv("BAMBUFARM_TEST_HOST")
	deviceID := os.Getenv("BAMBUFARM_TEST_DEVICE_ID")
	if host == "" || deviceID == "" {
		t.Skip("BAMBUFARM_TEST_HOST and BAMBUFARM_TEST_DEVICE_ID not set")
	}
	return Target{
		Host:       host,
		ServerName: deviceID,
		ClientID:   "bambufarm-it-" + uuid.NewString(),
		Password:   os.Getenv("BAMBUFARM_TEST_PASSWORD"),
	}, deviceID
}

func TestIntegration_PushAllRoundTrip(t *testing.T) {
	target, deviceID := integrationTarget(t)
	cfg := testConfig()
	cfg.ConnectTimeout = 10

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := Connect(ctx, cfg, target)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	sub, err := client.SubscribeStream(ctx, Topics{}.Report(deviceID), 1)
	if err != nil {
		t.Fatalf("SubscribeStream() error = %v", err)
	}

	// Ask the printer for a full status report.
	pushAll := []byte(`{"pushing":{"sequence_id":"0","command":"pushall"}}`)
	if err := client.Publish(ctx, Topics{}.Request(deviceID), pushAll, 1); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	msg, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if len(msg) == 0 {
		t.Error("received empty report")
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	for {
		if _, err := sub.Next(ctx); err != nil {
			if err != ErrStreamClosed {
				t.Errorf("Next() after Close error = %v, want ErrStreamClosed", err)
			}
			break
		}
	}
}
