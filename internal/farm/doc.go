// Package farm is the gateway core. It multiplexes many printer sessions
// behind four operations:
//
//   - EnumeratePrinters streams the roster once per interval
//   - ConnectPrinter opens a relay session and streams device reports
//   - SendMessage queues a command on a printer's session
//   - UploadFile delivers a file with a delete-then-store transfer
//
// # Sessions
//
// There is at most one session per printer. A hub goroutine owns the roster
// and the session index; everything else asks it over a channel. Connecting
// to a printer that already has a session replaces it: the old stream gets
// its disconnect message, its connection is closed, and only then is the
// new connection dialled.
//
// Each session runs two loops. One pulls reports from the device
// subscription and forwards them to the stream; a transient failure waits
// the retry delay and tries again, a definitive one ends the session. The
// other drains the session's bounded queue and publishes commands in order.
//
// # Transports
//
// The package never talks to a network directly. Device I/O goes through
// Dialer/Conn/Subscription and file delivery through Transferer; adapters
// for MQTT and FTPS are wired in cmd/bambufarm.
//
// Example usage:
//
//	f, err := farm.New(farm.Options{
//	    Registry:   roster,
//	    Dialer:     dialer,
//	    Transferer: transferer,
//	    Sessions:   cfg.Sessions,
//	    Uploads:    cfg.Uploads,
//	    Logger:     log,
//	})
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
//	stream, err := f.ConnectPrinter(ctx, "01S00C000000001")
//	for msg := range stream.Messages() {
//	    // ...
//	}
package farm
