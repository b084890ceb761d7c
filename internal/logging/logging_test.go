package logging

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newCapturing(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(level, log.New(&buf, "", 0)), &buf
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestPrintfFilteredBelowConfiguredLevel(t *testing.T) {
	l, buf := newCapturing(LevelWarn)
	l.Printf("should be dropped")
	assert.Empty(t, buf.String())

	l.Warnf("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestDebugfPassesAtDebugLevel(t *testing.T) {
	l, buf := newCapturing(LevelDebug)
	l.Debugf("hello %s", "world")
	assert.Contains(t, buf.String(), "hello world")
}

func TestNewDiscardDropsEverything(t *testing.T) {
	l := NewDiscard()
	l.Errorf("this goes nowhere")
}
