package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ellenhp/bambu-farm/internal/infrastructure/config"
)

const serviceName = "bambufarm"

// redacted replaces the value of any attribute whose key names a credential.
const redacted = "[redacted]"

// credentialKeys are attribute keys whose values are never written, whatever
// their type. printer.Secret already redacts itself; this catches plain
// strings passed under an obvious name.
var credentialKeys = map[string]bool{
	"password":    true,
	"access_code": true,
	"secret":      true,
}

// Logger is the gateway's structured logger. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of bambufarm.yaml.
// Every entry carries service=bambufarm and the build version.
func New(cfg config.LoggingConfig, version string) *Logger {
	return newWithWriter(cfg, version, outputFor(cfg.Output))
}

// outputFor maps the configured output name to a writer. Unknown names
// fall back to stdout.
func outputFor(name string) io.Writer {
	switch strings.ToLower(name) {
	case "stderr":
		return os.Stderr
	case "discard", "none":
		return io.Discard
	default:
		return os.Stdout
	}
}

func newWithWriter(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redactCredentials,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return &Logger{
		Logger: slog.New(handler).With(
			slog.String("service", serviceName),
			slog.String("version", version),
		),
	}
}

func redactCredentials(_ []string, a slog.Attr) slog.Attr {
	if credentialKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	return a
}

// parseLevel accepts debug, info, warn (or warning) and error; anything
// else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a Logger that adds args to every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a Logger tagged with component=name, e.g. "rpc" or "farm".
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the startup logger used until bambufarm.yaml has been read:
// JSON on stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
