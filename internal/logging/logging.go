// Package logging builds the process logger from config.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

type Options struct {
	Level  string
	Format string
	// File, when set, gets a JSON copy of every record.
	File string
	// Attrs are attached to every record.
	Attrs []any
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New returns a logger writing to out and, when opts.File is set, fanned out
// to that file. The cleanup function closes the file.
func New(out io.Writer, opts Options) (*slog.Logger, func() error) {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(opts.Level))

	primary := handlerFor(out, opts.Format, level)
	if strings.TrimSpace(opts.File) == "" {
		return slog.New(primary).With(opts.Attrs...), func() error { return nil }
	}

	file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(primary).With(opts.Attrs...)
		logger.Error("failed to open log file, using primary output only", "err", err, "file", opts.File)
		return logger, func() error { return nil }
	}
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	logger := slog.New(slogmulti.Fanout(primary, fileHandler)).With(opts.Attrs...)
	return logger, file.Close
}

// NewWithWriters fans out to two writers. Tests use it to inspect both sinks.
func NewWithWriters(out, file io.Writer, opts Options) *slog.Logger {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(opts.Level))
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(handlerFor(out, opts.Format, level), fileHandler)).With(opts.Attrs...)
}

func handlerFor(w io.Writer, format string, level slog.Leveler) slog.Handler {
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}
