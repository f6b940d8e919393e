package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestNewWithWriter_JSONFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewWithWriter("production", "info", &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	runLogger, runID := WithRun(logger, "score")
	if _, err := uuid.Parse(runID); err != nil {
		t.Fatalf("expected uuid run id, got %q", runID)
	}
	runLogger.Info().Int("clusters", 3).Msg("score completed")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line["service"] != "storyline" {
		t.Fatalf("unexpected service field: %v", line["service"])
	}
	if line["command"] != "score" || line["run_id"] != runID {
		t.Fatalf("missing run fields: %v", line)
	}
}

func TestNewWithWriter_BadLevel(t *testing.T) {
	t.Parallel()

	if _, err := NewWithWriter("local", "loud", &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewWithWriter_LevelFilters(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewWithWriter("production", "warn", &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info line to be filtered, got %s", buf.String())
	}
}
