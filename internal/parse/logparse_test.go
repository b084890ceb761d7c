package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gastown-ops/rigwatch/internal/model"
)

func TestParseLogLineBracketed(t *testing.T) {
	entry := ParseLogLine("[2026-01-01T00:00:00Z] [warn] disk nearly full", time.Now())
	assert.Equal(t, model.LevelWarn, entry.Level)
	assert.Equal(t, "disk nearly full", entry.Message)
}

func TestParseLogLineISO(t *testing.T) {
	entry := ParseLogLine("2026-01-01T00:00:00Z something failed badly", time.Now())
	assert.Equal(t, model.LevelError, entry.Level)
	assert.Equal(t, "something failed badly", entry.Message)
}

func TestParseLogLineFallbackKeyword(t *testing.T) {
	entry := ParseLogLine("a plain debug message with no structure", time.Now())
	assert.Equal(t, model.LevelDebug, entry.Level)
}

func TestParseLogLineFallbackInfo(t *testing.T) {
	entry := ParseLogLine("just a plain message", time.Now())
	assert.Equal(t, model.LevelInfo, entry.Level)
}
