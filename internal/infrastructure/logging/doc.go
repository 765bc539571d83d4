// Package logging provides structured logging for the Bambu Farm gateway.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text for development, with service and version attached.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Security
//
// Never log printer passwords. printer.Secret redacts itself when passed
// as a log attribute, so logging a printer.Record is safe. Attributes keyed
// password, access_code or secret are redacted by the handler regardless
// of their type.
//
// Components get their own child logger via Component, which adds a
// component attribute to every entry.
package logging
