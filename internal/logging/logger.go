package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const serviceName = "storyline"

func New(environment, level string) (zerolog.Logger, error) {
	return NewWithWriter(environment, level, nil)
}

// NewWithWriter builds the service logger on top of w. A nil w means stdout.
func NewWithWriter(environment, level string, w io.Writer) (zerolog.Logger, error) {
	parsedLevel, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse LOG_LEVEL=%q: %w", level, err)
	}

	if w == nil {
		w = os.Stdout
	}
	if strings.EqualFold(strings.TrimSpace(environment), "local") {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(w).
		Level(parsedLevel).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	return logger, nil
}

// WithRun tags every line of one batch command with a fresh run id.
func WithRun(logger zerolog.Logger, command string) (zerolog.Logger, string) {
	runID := uuid.NewString()
	return logger.With().
		Str("command", command).
		Str("run_id", runID).
		Logger(), runID
}
