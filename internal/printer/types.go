package printer

import (
	"fmt"
	"log/slog"
	"strings"
)

// Model identifies a supported printer model.
type Model string

// Supported models. The values are the configuration spellings.
const (
	ModelX1C    Model = "x1c"
	ModelX1     Model = "x1"
	ModelP1P    Model = "p1p"
	ModelP1S    Model = "p1s"
	ModelA1     Model = "a1"
	ModelA1Mini Model = "a1mini"
)

// wireNames maps each model to the identifier clients expect in the roster.
var wireNames = map[Model]string{
	ModelX1C:    "3DPrinter-X1-Carbon",
	ModelX1:     "3DPrinter-X1",
	ModelP1P:    "C11",
	ModelP1S:    "C12",
	ModelA1:     "N2S",
	ModelA1Mini: "N1",
}

// AllModels returns every supported model in a stable order.
func AllModels() []Model {
	return []Model{ModelX1C, ModelX1, ModelP1P, ModelP1S, ModelA1, ModelA1Mini}
}

// ParseModel converts a configuration value into a Model.
// Matching is case-insensitive and ignores dashes, so "A1-Mini" is accepted.
func ParseModel(s string) (Model, error) {
	m := Model(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", ""))
	if _, ok := wireNames[m]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidModel, s)
	}
	return m, nil
}

// IsValid reports whether m is a supported model.
func (m Model) IsValid() bool {
	_, ok := wireNames[m]
	return ok
}

// WireName returns the model identifier exposed to API clients.
func (m Model) WireName() string {
	return wireNames[m]
}

// redacted replaces secrets wherever they would be printed.
const redacted = "[REDACTED]"

// Secret holds a device credential. It never prints its value: String,
// GoString, LogValue and MarshalText all return a placeholder. Use Reveal
// at the point the credential is handed to a transport.
type Secret string

// Reveal returns the raw credential.
func (s Secret) Reveal() string { return string(s) }

// IsZero reports whether the secret is empty.
func (s Secret) IsZero() bool { return s == "" }

func (Secret) String() string               { return redacted }
func (Secret) GoString() string             { return redacted }
func (Secret) LogValue() slog.Value         { return slog.StringValue(redacted) }
func (Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Record is one printer known to the gateway.
//
// Records are immutable once the registry is built. Registry methods hand
// out copies, so a Record may be passed between goroutines freely.
type Record struct {
	ID       string
	Name     string
	Model    Model
	Host     string
	Password Secret
}

// LogValue renders the record for structured logs without the credential.
func (r Record) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", r.ID),
		slog.String("name", r.Name),
		slog.String("model", string(r.Model)),
		slog.String("host", r.Host),
	)
}
