package printer

import (
	"fmt"
	"sort"
)

// Logger defines the logging interface used while building the roster.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the read-only roster of printers.
//
// It is populated once at startup and never mutated afterwards, so reads
// need no locking. Every accessor returns copies.
type Registry struct {
	records []Record       // sorted by ID
	index   map[string]int // ID -> position in records
}

// NewRegistry creates a registry from already-validated records.
// Returns ErrDuplicatePrinter if two records share an ID and
// ErrInvalidPrinter if a record has no ID.
func NewRegistry(records ...Record) (*Registry, error) {
	r := &Registry{
		records: make([]Record, 0, len(records)),
		index:   make(map[string]int, len(records)),
	}

	for _, rec := range records {
		if rec.ID == "" {
			return nil, fmt.Errorf("%w: empty device id", ErrInvalidPrinter)
		}
		if _, exists := r.index[rec.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePrinter, rec.ID)
		}
		r.index[rec.ID] = -1
		r.records = append(r.records, rec)
	}

	sort.Slice(r.records, func(i, j int) bool {
		return r.records[i].ID < r.records[j].ID
	})
	for i, rec := range r.records {
		r.index[rec.ID] = i
	}

	return r, nil
}

// List returns a snapshot of every printer, ordered by ID.
// The returned slice is a copy; callers can safely modify it.
func (r *Registry) List() []Record {
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Lookup returns the printer with the given ID.
// Returns ErrNotFound if the ID is not in the roster.
func (r *Registry) Lookup(id string) (Record, error) {
	i, ok := r.index[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.records[i], nil
}

// Len returns the number of printers in the roster.
func (r *Registry) Len() int {
	return len(r.records)
}
