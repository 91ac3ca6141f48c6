package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"jan-server/services/orchestrator-api/internal/config"
)

var (
	globalLogger zerolog.Logger
	mu           sync.RWMutex
	initialised  bool
)

// New creates a zerolog.Logger configured for the orchestrator service and
// installs it as the global logger.
func New(cfg *config.Config) zerolog.Logger {
	base := build(os.Stdout, cfg.LogFormat).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Logger().
		Level(parseLevel(cfg.LogLevel))

	mu.Lock()
	globalLogger = base
	initialised = true
	mu.Unlock()
	return base
}

// GetLogger returns the global logger, or a console logger at info level when
// New has not run yet.
func GetLogger() zerolog.Logger {
	mu.RLock()
	if initialised {
		defer mu.RUnlock()
		return globalLogger
	}
	mu.RUnlock()
	return build(os.Stdout, "console").With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

func build(out io.Writer, format string) zerolog.Logger {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return zerolog.New(out)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
}

func parseLevel(raw string) zerolog.Level {
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
