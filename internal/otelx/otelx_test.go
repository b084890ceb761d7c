package otelx

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnabledDefaultsTrue(t *testing.T) {
	assert.True(t, Enabled())
}

func TestEnabledRespectsOtelTracingZero(t *testing.T) {
	t.Setenv("OTEL_TRACING", "0")
	assert.False(t, Enabled())
}

func TestSetupDisabledReturnsNoopShutdown(t *testing.T) {
	t.Setenv("OTEL_TRACING", "0")
	shutdown, err := Setup(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupEnabledWritesSpansToProvidedFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "trace-*.json")
	require.NoError(t, err)
	defer f.Close()

	shutdown, err := Setup(context.Background(), f)
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	ctx, span := StartPollCycle(context.Background())
	_, subSpan := StartSubPoll(ctx, "alpha", "bead_list")
	EndSpan(subSpan, nil)
	EndSpan(span, nil)
}
