package alerting

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gastown-ops/rigwatch/internal/model"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store := NewRuleStore(filepath.Join(t.TempDir(), "rules.json"))
	e := NewEngine(store, NewMemoryCooldownStore(), nil, nil)
	require.NoError(t, e.Initialize())
	e.mu.Lock()
	e.rules = nil
	e.mu.Unlock()
	return e
}

func TestRuleStoreSeedsDefaultsWhenMissing(t *testing.T) {
	store := NewRuleStore(filepath.Join(t.TempDir(), "rules.json"))
	rules, err := store.Load()
	require.NoError(t, err)
	assert.NotEmpty(t, rules)
}

func TestEvalAgentStatusWildcardAndRecency(t *testing.T) {
	now := time.Now()
	hist := map[string][]model.HistoryEntry{
		"alpha/w1": {{From: "idle", To: "stopped", Timestamp: now}},
	}
	cond := model.Condition{Kind: model.CondAgentStatus, Rig: "*", Agent: "*", To: "stopped"}
	assert.True(t, evalStatusHistory(hist, cond))

	stale := map[string][]model.HistoryEntry{
		"alpha/w1": {{From: "idle", To: "stopped", Timestamp: now.Add(-time.Minute)}},
	}
	assert.False(t, evalStatusHistory(stale, cond))
}

func TestEvalAgentStatusUsesNewestHistoryEntry(t *testing.T) {
	now := time.Now()
	// Newest-first storage: index 0 is the recent transition, later
	// entries are older. A stale entry anywhere but index 0 must not
	// affect the result.
	hist := map[string][]model.HistoryEntry{
		"alpha/w1": {
			{From: "idle", To: "running", Timestamp: now},
			{From: "stopped", To: "idle", Timestamp: now.Add(-time.Hour)},
			{From: "running", To: "stopped", Timestamp: now.Add(-2 * time.Hour)},
		},
	}
	running := model.Condition{Kind: model.CondAgentStatus, Rig: "*", Agent: "*", To: "running"}
	assert.True(t, evalStatusHistory(hist, running))

	stopped := model.Condition{Kind: model.CondAgentStatus, Rig: "*", Agent: "*", To: "stopped"}
	assert.False(t, evalStatusHistory(hist, stopped))
}

func TestEvalMetricThreshold(t *testing.T) {
	ms := model.MetricsSnapshot{AgentActivity: map[string]int{"error": 2}}
	cond := model.Condition{Kind: model.CondMetricThreshold, Path: "agentActivity.error", Operator: ">", Value: 1}
	assert.True(t, evalMetricThreshold(cond, ms))

	cond.Value = 5
	assert.False(t, evalMetricThreshold(cond, ms))
}

func TestEvalEventPatternRegex(t *testing.T) {
	cond := model.Condition{Kind: model.CondEventPattern, Pattern: "out of memory"}
	in := EvalInput{Text: "process crashed: Out Of Memory"}
	assert.True(t, evalEventPattern(cond, in))

	in.Text = "disk full"
	assert.False(t, evalEventPattern(cond, in))
}

func TestEvalBeadDurationTracksEntryTime(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()
	snap := model.Snapshot{
		Beads: map[string][]model.Bead{"alpha": {{ID: "rw-1", Status: model.BeadInProgress}}},
		BeadHistory: map[string][]model.HistoryEntry{
			"alpha/rw-1": {{From: "open", To: "in_progress", Timestamp: now.Add(-time.Hour)}},
		},
	}
	cond := model.Condition{Kind: model.CondBeadDuration, Status: "in_progress", DurationMs: 1000}
	assert.True(t, e.evalBeadDuration(cond, snap))
}

func TestEvalCompositeAndOr(t *testing.T) {
	e := newTestEngine(t)
	ms := model.MetricsSnapshot{AgentActivity: map[string]int{"error": 2}}
	in := EvalInput{Metrics: ms}

	and := model.Condition{Kind: model.CondComposite, Logic: "AND", Conditions: []model.Condition{
		{Kind: model.CondMetricThreshold, Path: "agentActivity.error", Operator: ">", Value: 1},
		{Kind: model.CondMetricThreshold, Path: "agentActivity.error", Operator: "<", Value: 1},
	}}
	assert.False(t, e.evalCondition(and, in))

	or := and
	or.Logic = "OR"
	assert.True(t, e.evalCondition(or, in))
}

func TestEvaluateFiresActionAndRespectsCooldown(t *testing.T) {
	e := newTestEngine(t)
	var logged int
	e.logger.SetOutput(discard{})
	e.rules = []model.Rule{{
		ID: "r1", Name: "test", Enabled: true, Cooldown: 60,
		Condition: model.Condition{Kind: model.CondMetricThreshold, Path: "agentActivity.error", Operator: ">", Value: 0},
		Actions:   []model.Action{{Kind: model.ActionLog, Level: "warn"}},
	}}
	ms := model.MetricsSnapshot{AgentActivity: map[string]int{"error": 1}}

	e.Evaluate(context.Background(), EvalInput{Metrics: ms})
	ok, _ := e.cooldown.TryAcquire(context.Background(), "r1", 60*time.Second)
	assert.False(t, ok, "cooldown should now be active after firing once")
	_ = logged
}

func TestExecuteWebhookPostsJSON(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newTestEngine(t)
	e.postWebhook(context.Background(), model.Action{Kind: model.ActionWebhook, URL: srv.URL}, model.Alert{Type: "TEST"})
	assert.Contains(t, gotBody, "TEST")
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
