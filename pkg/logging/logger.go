// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Service is added to every line as "service" when set.
	Service string

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Pretty:  false,
		Service: "loyverse-proxy",
		Output:  os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.DurationFieldUnit = time.Millisecond

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	zerolog.DefaultContextLogger = &logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Upstream requests (endpoint, cursor)
//   - Walk and accumulation progress (pages, items)
//   - Snapshot cache hits
//
// Info: Normal operation events
//   - Server startup/shutdown
//   - Subscription emails sent
//   - Snapshot cache purges
//   - Requests that succeeded after a retry
//
// Warn: Conditions that degrade but do not fail a request
//   - Loyverse 429 and cooldowns
//   - Inventory chunks ending early with partial sums
//   - Repeated cursors or page limits ending a walk
//   - Snapshot store read/write failures (rebuild from upstream)
//
// Error: Error conditions requiring attention
//   - Accumulations aborted by an upstream error
//   - Retries exhausted
//   - Email delivery failures
//   - Configuration errors
//
// Context Fields:
//   - component: package emitting the line (client, catalog, inventory, ...)
//   - endpoint: low-cardinality upstream endpoint label
//   - key: snapshot cache key (filter signature)
//   - error_class: client, server, rate_limit, network
//   - req_id: inbound request id (X-Request-ID)
//   - duration: elapsed time in milliseconds
