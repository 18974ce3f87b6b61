package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects the output format and minimum level of the process logger.
type Options struct {
	Format string
	Level  string
	Output io.Writer
}

// NewHandler builds a slog handler. A nil opts gives JSON at info level on stdout.
func NewHandler(opts *Options) slog.Handler {
	if opts == nil {
		opts = &Options{}
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: ParseLevel(opts.Level) == slog.LevelDebug,
	}

	if strings.EqualFold(opts.Format, "text") {
		return slog.NewTextHandler(out, handlerOpts)
	}

	return slog.NewJSONHandler(out, handlerOpts)
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
