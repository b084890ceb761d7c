// Package errorpattern implements the Error-Pattern Analyzer of
// spec.md §4.5.4: online clustering of error/warn log lines by
// normalized pattern, with Jaccard-similarity joining and
// score-based pruning under capacity.
package errorpattern

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gastown-ops/rigwatch/internal/model"
	"github.com/gastown-ops/rigwatch/internal/parse"
)

const (
	defaultSimilarityThreshold = 0.7
	defaultMaxPatterns         = 100
	defaultMaxErrorsPerPattern = 50
	maxExamples                = 3
)

// Analyzer is the online pattern clusterer. Grounded on
// control_plane/store's single-writer-behind-a-mutex shape, generalized
// here to a similarity-joined map instead of a plain keyed store.
type Analyzer struct {
	mu       sync.Mutex
	clusters map[string]*model.ErrorPatternCluster

	similarityThreshold float64
	maxPatterns         int
	maxErrorsPerPattern int
}

// NewAnalyzer constructs an Analyzer with spec.md §4.5.4's defaults.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		clusters:            map[string]*model.ErrorPatternCluster{},
		similarityThreshold: defaultSimilarityThreshold,
		maxPatterns:         defaultMaxPatterns,
		maxErrorsPerPattern: defaultMaxErrorsPerPattern,
	}
}

// Ingest processes one log entry. Entries below warn are ignored.
func (a *Analyzer) Ingest(entry model.LogEntry) {
	if entry.Level != model.LevelError && entry.Level != model.LevelWarn {
		return
	}

	pattern := parse.NormalizeErrorPattern(entry.Message)
	if pattern == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := a.resolveKey(pattern, entry.Level)
	cluster, ok := a.clusters[key]
	if !ok {
		cluster = &model.ErrorPatternCluster{
			Pattern:        pattern,
			Level:          entry.Level,
			FirstSeen:      entry.Timestamp,
			AffectedAgents: map[string]bool{},
			AffectedRigs:   map[string]bool{},
		}
		a.clusters[key] = cluster
	}

	cluster.Count++
	cluster.LastSeen = entry.Timestamp
	if entry.Agent != "" {
		cluster.AffectedAgents[entry.Agent] = true
	}
	if entry.Rig != "" {
		cluster.AffectedRigs[entry.Rig] = true
	}
	cluster.RecentErrors = prependLog(cluster.RecentErrors, entry, a.maxErrorsPerPattern)
	if len(cluster.Examples) < maxExamples && !containsString(cluster.Examples, entry.Message) {
		cluster.Examples = append(cluster.Examples, entry.Message)
	}
	cluster.IsSystemic = len(cluster.AffectedAgents) > 1 || len(cluster.AffectedRigs) > 1

	a.pruneLocked()
}

// resolveKey returns pattern itself if it is already an exact cluster
// key; otherwise it scans same-level clusters for a Jaccard-similar key
// and joins that, falling back to pattern as a brand-new key.
func (a *Analyzer) resolveKey(pattern string, level model.LogLevel) string {
	if _, ok := a.clusters[pattern]; ok {
		return pattern
	}

	patternTokens := tokenize(pattern)
	for key, cluster := range a.clusters {
		if cluster.Level != level {
			continue
		}
		if jaccard(patternTokens, tokenize(key)) >= a.similarityThreshold {
			return key
		}
	}
	return pattern
}

// pruneLocked drops the lowest-scoring cluster once the map exceeds
// maxPatterns, scoring frequency*10 + scope*5 - ageMinutes.
func (a *Analyzer) pruneLocked() {
	if len(a.clusters) <= a.maxPatterns {
		return
	}

	now := time.Now()
	var worstKey string
	var worstScore float64
	first := true
	for key, c := range a.clusters {
		scope := len(c.AffectedAgents) + len(c.AffectedRigs)
		ageMinutes := now.Sub(c.FirstSeen).Minutes()
		score := float64(c.Count)*10 + float64(scope)*5 - ageMinutes
		if first || score < worstScore {
			worstScore = score
			worstKey = key
			first = false
		}
	}
	if worstKey != "" {
		delete(a.clusters, worstKey)
	}
}

// GetPatterns returns all clusters sorted by count desc, then lastSeen
// desc.
func (a *Analyzer) GetPatterns() []model.ErrorPatternCluster {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]model.ErrorPatternCluster, 0, len(a.clusters))
	for _, c := range a.clusters {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

// Summary is the aggregate view getSummary() returns.
type Summary struct {
	TotalPatterns int                         `json:"totalPatterns"`
	TotalErrors   int                         `json:"totalErrors"`
	SystemicCount int                         `json:"systemicCount"`
	Top5          []model.ErrorPatternCluster `json:"top5"`
}

// GetSummary aggregates totals and the top-5 clusters by count.
func (a *Analyzer) GetSummary() Summary {
	patterns := a.GetPatterns()

	s := Summary{TotalPatterns: len(patterns)}
	for _, p := range patterns {
		s.TotalErrors += p.Count
		if p.IsSystemic {
			s.SystemicCount++
		}
	}
	if len(patterns) > 5 {
		s.Top5 = patterns[:5]
	} else {
		s.Top5 = patterns
	}
	return s
}

func tokenize(s string) map[string]bool {
	tokens := map[string]bool{}
	for _, f := range strings.Fields(s) {
		tokens[f] = true
	}
	return tokens
}

// jaccard computes |A∩B| / |A∪B| over token sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func prependLog(list []model.LogEntry, entry model.LogEntry, cap int) []model.LogEntry {
	list = append([]model.LogEntry{entry}, list...)
	if len(list) > cap {
		list = list[:cap]
	}
	return list
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
