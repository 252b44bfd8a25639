package internal

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

func NewLogger(service string) *slog.Logger {
	return slog.Default().With(
		"service", service,
	)
}

func ErrAttr(err error) slog.Attr {
	return slog.Any("error", err)
}

func SessionAttr(id string) slog.Attr {
	return slog.String("session", id)
}

// SetDefaultLogger installs a text logger on stdout. When file is not empty the
// output is duplicated into a size rotated log file.
func SetDefaultLogger(level slog.Level, file string) *slog.Logger {
	var out io.Writer = os.Stdout
	if file != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    20, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		})
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}
