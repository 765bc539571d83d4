package printer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ellenhp/bambu-farm/internal/infrastructure/config"
)

// BuildRoster validates raw configuration entries and builds the registry.
//
// A malformed entry is skipped with a warning rather than failing startup:
// one typo in the config should not take the whole farm offline. Duplicate
// device IDs keep the first entry. If no entry survives, ErrEmptyRoster is
// returned, since the gateway has nothing to do.
//
// Parameters:
//   - entries: Raw printer entries from the config file
//   - logger: Receives one warning per rejected entry (may be nil)
//
// Returns:
//   - *Registry: Roster of valid printers
//   - error: ErrEmptyRoster if no valid printers remain
func BuildRoster(entries []config.PrinterConfig, logger Logger) (*Registry, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	seen := make(map[string]bool, len(entries))
	records := make([]Record, 0, len(entries))

	for i, entry := range entries {
		rec, err := recordFromConfig(entry)
		if err != nil {
			logger.Warn("skipping printer entry",
				"index", i,
				"dev_id", entry.DevID,
				"error", err,
			)
			continue
		}
		if seen[rec.ID] {
			logger.Warn("skipping printer entry",
				"index", i,
				"dev_id", rec.ID,
				"error", fmt.Errorf("%w: %s", ErrDuplicatePrinter, rec.ID),
			)
			continue
		}
		seen[rec.ID] = true
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, ErrEmptyRoster
	}

	reg, err := NewRegistry(records...)
	if err != nil {
		return nil, err
	}
	logger.Info("printer roster loaded", "printers", reg.Len(), "rejected", len(entries)-reg.Len())
	return reg, nil
}

// recordFromConfig validates one entry. Every missing field is reported,
// not just the first.
func recordFromConfig(entry config.PrinterConfig) (Record, error) {
	var errs []error

	required := []struct {
		field string
		value string
	}{
		{"dev_id", entry.DevID},
		{"model", entry.Model},
		{"host", entry.Host},
		{"password", entry.Password},
		{"name", entry.Name},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%w: missing `%s`", ErrInvalidPrinter, r.field))
		}
	}

	var model Model
	if entry.Model != "" {
		m, err := ParseModel(entry.Model)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: model must be one of %v", err, AllModels()))
		}
		model = m
	}

	if len(errs) > 0 {
		return Record{}, errors.Join(errs...)
	}

	return Record{
		ID:       strings.TrimSpace(entry.DevID),
		Name:     entry.Name,
		Model:    model,
		Host:     strings.TrimSpace(entry.Host),
		Password: Secret(entry.Password),
	}, nil
}
