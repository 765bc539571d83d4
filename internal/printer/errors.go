package printer

import "errors"

// Domain errors for the printer package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, printer.ErrNotFound) {
//	    // unknown device id
//	}
var (
	// ErrNotFound is returned when a device ID is not in the roster.
	ErrNotFound = errors.New("printer: not found")

	// ErrInvalidPrinter is returned when a roster entry is malformed.
	ErrInvalidPrinter = errors.New("printer: invalid configuration")

	// ErrInvalidModel is returned when a model value is not recognised.
	ErrInvalidModel = errors.New("printer: invalid model")

	// ErrDuplicatePrinter is returned when two roster entries share a device ID.
	ErrDuplicatePrinter = errors.New("printer: duplicate device id")

	// ErrEmptyRoster is returned when no valid printers remain after loading.
	ErrEmptyRoster = errors.New("printer: roster is empty")
)
