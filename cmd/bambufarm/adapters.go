package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/ellenhp/bambu-farm/internal/farm"
	"github.com/ellenhp/bambu-farm/internal/infrastructure/config"
	"github.com/ellenhp/bambu-farm/internal/infrastructure/ftps"
	"github.com/ellenhp/bambu-farm/internal/infrastructure/logging"
	"github.com/ellenhp/bambu-farm/internal/infrastructure/mqtt"
	"github.com/ellenhp/bambu-farm/internal/printer"
)

// clientIDPrefix starts every MQTT client id. Each session gets a fresh
// suffix so a replaced session never collides with its predecessor.
const clientIDPrefix = "bambufarm-"

// mqttDialer adapts the infrastructure MQTT client to farm.Dialer.
// One broker connection is opened per session.
type mqttDialer struct {
	cfg    config.DeviceConfig
	logger *logging.Logger
}

// Dial implements farm.Dialer.
func (d *mqttDialer) Dial(ctx context.Context, rec printer.Record) (farm.Conn, error) {
	client, err := mqtt.Connect(ctx, d.cfg, mqttTarget(rec))
	if err != nil {
		return nil, err
	}
	if d.logger != nil {
		client.SetLogger(d.logger)
	}
	return &mqttConn{client: client, deviceID: rec.ID, qos: byte(d.cfg.QoS)}, nil
}

func mqttTarget(rec printer.Record) mqtt.Target {
	return mqtt.Target{
		Host:       rec.Host,
		ServerName: rec.ID,
		ClientID:   clientIDPrefix + uuid.NewString(),
		Password:   rec.Password.Reveal(),
	}
}

// mqttConn implements farm.Conn on one printer's broker connection.
type mqttConn struct {
	client   *mqtt.Client
	deviceID string
	qos      byte
}

// SubscribeReports implements farm.Conn.
func (c *mqttConn) SubscribeReports(ctx context.Context) (farm.Subscription, error) {
	sub, err := c.client.SubscribeStream(ctx, mqtt.Topics{}.Report(c.deviceID), c.qos)
	if err != nil {
		return nil, err
	}
	return &mqttSubscription{sub: sub}, nil
}

// PublishRequest implements farm.Conn.
func (c *mqttConn) PublishRequest(ctx context.Context, payload []byte) error {
	return c.client.Publish(ctx, mqtt.Topics{}.Request(c.deviceID), payload, c.qos)
}

// Close implements farm.Conn.
func (c *mqttConn) Close() error {
	return c.client.Close()
}

// mqttSubscription translates the MQTT stream errors into the farm's
// transport contract.
type mqttSubscription struct {
	sub *mqtt.Subscription
}

// Next implements farm.Subscription.
func (s *mqttSubscription) Next(ctx context.Context) ([]byte, error) {
	payload, err := s.sub.Next(ctx)
	if err != nil {
		return nil, translateStreamErr(err)
	}
	return payload, nil
}

func translateStreamErr(err error) error {
	switch {
	case errors.Is(err, mqtt.ErrStreamClosed):
		return fmt.Errorf("%w: %w", farm.ErrEndOfStream, err)
	case errors.Is(err, mqtt.ErrInterrupted):
		return fmt.Errorf("%w: %w", farm.ErrStreamInterrupted, err)
	default:
		return err
	}
}

// ftpsTransferer adapts the FTPS client to farm.Transferer.
type ftpsTransferer struct {
	client *ftps.Client
}

// Delete implements farm.Transferer.
func (t *ftpsTransferer) Delete(ctx context.Context, rec printer.Record, path string) error {
	return t.client.Delete(ctx, ftpsTarget(rec), path)
}

// Store implements farm.Transferer.
func (t *ftpsTransferer) Store(ctx context.Context, rec printer.Record, path string, r io.Reader) error {
	return t.client.Store(ctx, ftpsTarget(rec), path, r)
}

func ftpsTarget(rec printer.Record) ftps.Target {
	return ftps.Target{
		Host:       rec.Host,
		ServerName: rec.ID,
		Password:   rec.Password.Reveal(),
	}
}
