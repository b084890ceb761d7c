package errorpattern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gastown-ops/rigwatch/internal/model"
)

func logAt(ts time.Time, level model.LogLevel, rig, agent, msg string) model.LogEntry {
	return model.LogEntry{Timestamp: ts, Level: level, Rig: rig, Agent: agent, Message: msg}
}

func TestIngestIgnoresInfoLevel(t *testing.T) {
	a := NewAnalyzer()
	a.Ingest(logAt(time.Now(), model.LevelInfo, "alpha", "w1", "connection refused at 10.0.0.1:8080"))
	assert.Empty(t, a.GetPatterns())
}

func TestIngestCreatesAndGrowsCluster(t *testing.T) {
	a := NewAnalyzer()
	now := time.Now()
	a.Ingest(logAt(now, model.LevelError, "alpha", "w1", "connection refused at 10.0.0.1:8080"))
	a.Ingest(logAt(now.Add(time.Second), model.LevelError, "alpha", "w1", "connection refused at 10.0.0.2:9090"))

	patterns := a.GetPatterns()
	require.Len(t, patterns, 1)
	assert.Equal(t, 2, patterns[0].Count)
	assert.Len(t, patterns[0].Examples, 2)
}

func TestIngestMarksSystemicAcrossAgents(t *testing.T) {
	a := NewAnalyzer()
	now := time.Now()
	a.Ingest(logAt(now, model.LevelError, "alpha", "w1", "timeout waiting for bead rw-123456789abc"))
	a.Ingest(logAt(now, model.LevelError, "alpha", "w2", "timeout waiting for bead rw-987654321fed"))

	patterns := a.GetPatterns()
	require.Len(t, patterns, 1)
	assert.True(t, patterns[0].IsSystemic)
	assert.Len(t, patterns[0].AffectedAgents, 2)
}

func TestGetPatternsSortedByCountThenLastSeen(t *testing.T) {
	a := NewAnalyzer()
	now := time.Now()
	a.Ingest(logAt(now, model.LevelError, "alpha", "w1", "disk full on /var/log/alpha"))
	a.Ingest(logAt(now, model.LevelError, "alpha", "w1", "out of memory in refinery"))
	a.Ingest(logAt(now.Add(time.Second), model.LevelError, "alpha", "w1", "out of memory in refinery"))

	patterns := a.GetPatterns()
	require.Len(t, patterns, 2)
	assert.Equal(t, 2, patterns[0].Count)
}

func TestGetSummaryAggregatesAndTop5(t *testing.T) {
	a := NewAnalyzer()
	now := time.Now()
	for i := 0; i < 7; i++ {
		a.Ingest(logAt(now, model.LevelError, "alpha", "w1", "unique failure number variant "+string(rune('a'+i))))
	}
	summary := a.GetSummary()
	assert.Equal(t, 7, summary.TotalPatterns)
	assert.Len(t, summary.Top5, 5)
}

func TestPruneDropsLowestScoringClusterUnderCapacity(t *testing.T) {
	a := NewAnalyzer()
	a.maxPatterns = 2
	now := time.Now()

	a.Ingest(logAt(now.Add(-time.Hour), model.LevelError, "alpha", "w1", "old rare failure alpha"))
	a.Ingest(logAt(now, model.LevelError, "alpha", "w1", "frequent failure beta"))
	a.Ingest(logAt(now, model.LevelError, "alpha", "w1", "frequent failure beta"))
	a.Ingest(logAt(now, model.LevelError, "alpha", "w1", "frequent failure beta"))
	a.Ingest(logAt(now, model.LevelError, "alpha", "w1", "brand new failure gamma"))

	patterns := a.GetPatterns()
	assert.LessOrEqual(t, len(patterns), 2)
}

func TestJaccardSimilarityJoinsCloseVariants(t *testing.T) {
	assert.Equal(t, 1.0, jaccard(tokenize("a b c"), tokenize("a b c")))
	assert.Less(t, jaccard(tokenize("a b c"), tokenize("x y z")), 0.1)
}
