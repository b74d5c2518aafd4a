package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// EnvDebug enables debug logging when set to any non-empty value.
const EnvDebug = "DIRSIZE_DEBUG"

var (
	once    sync.Once
	logger  *slog.Logger
	Enabled bool
)

// Logger returns the process-wide logger. Output is discarded unless
// DIRSIZE_DEBUG is set, in which case records go to debug.log (or stderr if
// the file cannot be opened).
func Logger() *slog.Logger {
	once.Do(func() {
		logger = newLogger(os.Getenv(EnvDebug))
	})
	return logger
}

func newLogger(env string) *slog.Logger {
	if env == "" {
		Enabled = false
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	Enabled = true
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}

	debugFile, err := os.OpenFile("debug.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(debugFile, opts))
}

// Or returns l when it is non-nil and the process-wide logger otherwise.
func Or(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return Logger()
}
