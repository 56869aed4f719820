package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/verdantio/growgate-core/internal/infrastructure/config"
)

// Logger is the application logger. It embeds slog.Logger, so the
// usual Debug/Info/Warn/Error methods are available directly, and the
// embedded methods let it satisfy the per-package Logger interfaces
// (gateway.Logger, hub.Logger, mqtt.Logger) structurally.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the logging section of config.yaml. Every
// entry carries service and version attributes; JSON is the default
// format, text is for development.
func New(cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(outputFor(cfg.Output), opts)
	} else {
		handler = slog.NewJSONHandler(outputFor(cfg.Output), opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "growgate"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// outputFor maps the configured destination to a writer. Anything
// other than "stderr" goes to stdout.
func outputFor(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel maps a config level string onto slog. Unknown values
// fall back to info rather than failing startup.
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

// With returns a child logger carrying extra default attributes:
//
//	hubLog := log.With("component", "hub")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a JSON logger at info level for use during startup,
// before the configuration has been loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
