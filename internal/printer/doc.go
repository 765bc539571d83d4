// Package printer holds the printer roster: the static set of devices the
// gateway manages and their connection metadata.
//
// The roster is built once at startup from configuration (BuildRoster) and
// is read-only afterwards. Lookups and listings return copies so that no
// caller ever shares memory with the registry.
//
// # Key Types
//
//   - Record: one printer (ID, name, model, host, password)
//   - Model: the supported printer models and their wire names
//   - Secret: a credential that redacts itself in logs and fmt output
//   - Registry: the immutable roster
//
// # Usage
//
//	reg, err := printer.BuildRoster(cfg.Printers, log)
//	if errors.Is(err, printer.ErrEmptyRoster) {
//	    // nothing to serve
//	}
//	rec, err := reg.Lookup("01S00C000000001")
package printer
