// Package mqtt provides the MQTT transport to individual printers.
//
// Every printer runs its own TLS broker on port 8883. The gateway opens one
// Client per live session:
//
//	printer broker (ssl://host:8883)
//	   device/{id}/report  ──▶ Subscription.Next ──▶ session relay
//	   device/{id}/request ◀── Client.Publish    ◀── session relay
//
// # Connection loss
//
// With device.reconnect.enabled=false (the default) the first connection
// loss closes every Subscription (ErrStreamClosed) and the session ends.
// With reconnect enabled, Subscriptions report ErrInterrupted while paho
// reconnects, subscriptions are restored on success, and after
// device.reconnect.max_attempts failures the client gives up and closes.
//
// # Security Considerations
//
//   - Printers present self-signed certificates; verification is off unless
//     a CA bundle is configured (device.tls.ca_file).
//   - The access code travels as the MQTT password and is never logged.
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.Device, mqtt.Target{
//	    Host:     rec.Host,
//	    ClientID: "bambufarm-" + uuid.NewString(),
//	    Password: rec.Password.Reveal(),
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sub, err := client.SubscribeStream(ctx, mqtt.Topics{}.Report(rec.ID), 1)
//	msg, err := sub.Next(ctx)
package mqtt
