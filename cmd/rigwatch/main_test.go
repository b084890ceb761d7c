package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gastown-ops/rigwatch/internal/alerting"
	"github.com/gastown-ops/rigwatch/internal/app"
	"github.com/gastown-ops/rigwatch/internal/history"
	"github.com/gastown-ops/rigwatch/internal/ingest"
)

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	gtDir := t.TempDir()

	hist, err := history.NewJSONStore(filepath.Join(t.TempDir(), "history.json"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = hist.Close() })

	a, err := app.New(app.Config{
		GTDir:        gtDir,
		HistoryStore: hist,
		RuleStore:    alerting.NewRuleStore(filepath.Join(t.TempDir(), "rules.json")),
		PollerConfig: ingest.DefaultPollerConfig(gtDir),
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestRootHandlerRoutesReadAPI(t *testing.T) {
	a := newTestApp(t)
	h := rootHandler(a)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRootHandlerRoutesWebsocketUpgradePath(t *testing.T) {
	a := newTestApp(t)
	h := rootHandler(a)

	// The Hub only understands a real websocket handshake; a plain GET
	// without the upgrade headers is rejected rather than 404ed, which
	// is enough to prove /ws reaches the Hub and not the Read API mux.
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.NotEqual(t, http.StatusNotFound, w.Code)
}
