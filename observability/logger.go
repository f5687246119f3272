package observability

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	loggerMu     sync.RWMutex
	globalLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	initialized  bool
)

// InitLogger initializes the global structured logger. Logs go to stderr so stdout stays
// reserved for command output.
func InitLogger(level string, pretty bool) {
	InitLoggerWithWriter(os.Stderr, level, pretty)
}

// InitLoggerWithWriter is InitLogger with an explicit destination.
func InitLoggerWithWriter(out io.Writer, level string, pretty bool) {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	zerolog.SetGlobalLevel(ParseLevel(level))

	if pretty {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}
	globalLogger = zerolog.New(out).With().Timestamp().Logger()
	log.Logger = globalLogger
	initialized = true
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// GetLogger returns the global logger
func GetLogger() zerolog.Logger {
	loggerMu.RLock()
	if initialized {
		defer loggerMu.RUnlock()
		return globalLogger
	}
	loggerMu.RUnlock()

	InitLogger("info", false)
	return GetLogger()
}

// Component returns a logger tagged with the component name.
func Component(name string) *zerolog.Logger {
	logger := GetLogger().With().Str("component", name).Logger()
	return &logger
}

// WithRunID returns a component logger carrying a run correlation id.
// An empty id leaves the run_id field off.
func WithRunID(component, runID string) *zerolog.Logger {
	if runID == "" {
		return Component(component)
	}
	logger := Component(component).With().Str("run_id", runID).Logger()
	return &logger
}

// NewRunID generates a new run correlation id.
func NewRunID() string {
	return uuid.New().String()
}
