// Package history implements the multi-tier Historical Store of
// spec.md §4.7: raw minute samples promoted to hourly then daily
// aggregates, a per-agent completion log, range queries, and an
// IQR-based anomaly summary, persisted as JSON to a stable path with
// idempotent dirty-flag saves.
package history

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gastown-ops/rigwatch/internal/model"
)

const (
	rawRetention    = 24 * time.Hour
	hourlyRetention = 30 * 24 * time.Hour
	dailyRetention  = 365 * 24 * time.Hour
	maxCompletions  = 1000
	cleanupEvery    = 100
	saveTick        = 5 * time.Minute
)

// Interval selects the granularity of a range query.
type Interval string

const (
	IntervalMinute Interval = "minute"
	IntervalHour   Interval = "hour"
	IntervalDay    Interval = "day"
	IntervalAuto   Interval = "auto"
)

// RawSample is one minute-resolution metrics observation.
type RawSample struct {
	Timestamp     time.Time      `json:"timestamp"`
	PollDuration  int64          `json:"pollDuration"`
	EventVolume   int            `json:"eventVolume"`
	AgentActivity map[string]int `json:"agentActivity"`
}

// Stat is a {avg,min,max,count} aggregate, used for pollDuration.
type Stat struct {
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// VolumeStat is a {total,avg,max} aggregate, used for eventVolume.
type VolumeStat struct {
	Total float64 `json:"total"`
	Avg   float64 `json:"avg"`
	Max   float64 `json:"max"`
}

// ActivityStat is a {avg,max} aggregate, used per agentActivity bucket.
type ActivityStat struct {
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
}

// Bucket is one hourly or daily aggregate.
type Bucket struct {
	Timestamp     time.Time               `json:"timestamp"`
	PollDuration  Stat                    `json:"pollDuration"`
	EventVolume   VolumeStat              `json:"eventVolume"`
	AgentActivity map[string]ActivityStat `json:"agentActivity"`
}

// AgentCompletion is one recorded bead completion by an agent.
type AgentCompletion struct {
	Timestamp  time.Time `json:"timestamp"`
	BeadID     string    `json:"beadId"`
	DurationMs int64     `json:"durationMs"`
}

// SeriesPoint is one point returned from QueryRange, at whatever
// granularity was selected.
type SeriesPoint struct {
	Timestamp    time.Time               `json:"timestamp"`
	PollDuration Stat                    `json:"pollDuration"`
	EventVolume  VolumeStat              `json:"eventVolume"`
	AgentActivity map[string]ActivityStat `json:"agentActivity"`
}

// Summary is the period-stats response of GetSummary.
type Summary struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	SampleCount     int       `json:"sampleCount"`
	AvgPollDuration float64   `json:"avgPollDuration"`
	TotalEvents     int       `json:"totalEvents"`
	AnomalyIndices  []int     `json:"anomalyIndices"`
}

// AgentEfficiency is the per-agent completion-rate response of
// GetAgentEfficiency.
type AgentEfficiency struct {
	Agent           string            `json:"agent"`
	CompletionCount int               `json:"completionCount"`
	AvgDurationMs   float64           `json:"avgDurationMs"`
	MinDurationMs   int64             `json:"minDurationMs"`
	MaxDurationMs   int64             `json:"maxDurationMs"`
	Last100         []AgentCompletion `json:"last100"`
}

// StorageStats is the tier-by-tier sample count behind
// GET /api/metrics/storage.
type StorageStats struct {
	RawSamples    int       `json:"rawSamples"`
	HourlyBuckets int       `json:"hourlyBuckets"`
	DailyBuckets  int       `json:"dailyBuckets"`
	TrackedAgents int       `json:"trackedAgents"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// Store is the Historical Store's persistence+query surface. Kept as
// an interface, per spec.md §4.7, so a small embedded SQL database is
// an equally valid backend behind the same contract.
type Store interface {
	RecordMetrics(ctx context.Context, m model.MetricsSnapshot) error
	RecordAgentCompletion(ctx context.Context, agent string, c AgentCompletion) error
	QueryRange(ctx context.Context, start, end time.Time, interval Interval) ([]SeriesPoint, error)
	GetSummary(ctx context.Context, start, end time.Time) (Summary, error)
	GetAgentEfficiency(ctx context.Context, agent string, start, end time.Time) (AgentEfficiency, error)
	StorageStats(ctx context.Context) (StorageStats, error)
	Flush(ctx context.Context) error
	Close() error
}

// JSONStore is the default Store: everything held in memory, persisted
// as one JSON document at a fixed path. Grounded on
// control_plane/store's MemoryStore (mutex-guarded maps, copy-out
// reads) plus its Store interface shape; the JSON-document persistence
// follows spec.md §4.7's explicit default.
type JSONStore struct {
	mu   sync.Mutex
	path string

	raw    []RawSample
	hourly []Bucket
	daily  []Bucket

	hourlyPromoted map[int64]bool
	dailyPromoted  map[int64]bool

	completions map[string][]AgentCompletion

	dirty       bool
	insertCount int
	logger      *log.Logger
}

type persistedDoc struct {
	RawMetrics      []RawSample                `json:"rawMetrics"`
	HourlyMetrics   []Bucket                   `json:"hourlyMetrics"`
	DailyMetrics    []Bucket                   `json:"dailyMetrics"`
	AgentEfficiency map[string][]AgentCompletion `json:"agentEfficiency"`
	LastUpdated     time.Time                  `json:"lastUpdated"`
}

// NewJSONStore constructs a store backed by path, loading any existing
// document found there.
func NewJSONStore(path string, logger *log.Logger) (*JSONStore, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &JSONStore{
		path:           path,
		hourlyPromoted: make(map[int64]bool),
		dailyPromoted:  make(map[int64]bool),
		completions:    make(map[string][]AgentCompletion),
		logger:         logger,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var doc persistedDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	s.raw = doc.RawMetrics
	s.hourly = doc.HourlyMetrics
	s.daily = doc.DailyMetrics
	if doc.AgentEfficiency != nil {
		s.completions = doc.AgentEfficiency
	}
	for _, b := range s.hourly {
		s.hourlyPromoted[b.Timestamp.Truncate(time.Hour).Unix()] = true
	}
	for _, b := range s.daily {
		s.dailyPromoted[b.Timestamp.Truncate(24*time.Hour).Unix()] = true
	}
	return nil
}

// RecordMetrics appends one raw sample derived from a metrics
// snapshot, marks the store dirty, promotes completed hour/day
// buckets, and runs a cleanup pass every 100th insert.
func (s *JSONStore) RecordMetrics(ctx context.Context, m model.MetricsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sample := RawSample{
		Timestamp:     time.Now(),
		PollDuration:  m.AvgPollDuration,
		EventVolume:   lastEventVolume(m.EventVolume),
		AgentActivity: copyActivity(m.AgentActivity),
	}
	s.raw = append(s.raw, sample)
	s.dirty = true
	s.insertCount++

	s.promoteLocked(sample.Timestamp)
	if s.insertCount%cleanupEvery == 0 {
		s.cleanupLocked(sample.Timestamp)
	}
	return nil
}

// RecordAgentCompletion appends one completion to the per-agent log,
// capped at maxCompletions entries (oldest dropped first).
func (s *JSONStore) RecordAgentCompletion(ctx context.Context, agent string, c AgentCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.completions[agent], c)
	if len(entries) > maxCompletions {
		entries = entries[len(entries)-maxCompletions:]
	}
	s.completions[agent] = entries
	s.dirty = true
	s.insertCount++
	if s.insertCount%cleanupEvery == 0 {
		s.cleanupLocked(c.Timestamp)
	}
	return nil
}

func lastEventVolume(volumes []int) int {
	if len(volumes) == 0 {
		return 0
	}
	return volumes[len(volumes)-1]
}

func copyActivity(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// promoteLocked builds hourly buckets from raw samples whose hour has
// fully elapsed, and daily buckets from hourly buckets whose day has
// fully elapsed 30 days ago, each promoted at most once.
func (s *JSONStore) promoteLocked(now time.Time) {
	hourGroups := map[int64][]RawSample{}
	for _, r := range s.raw {
		if now.Sub(r.Timestamp) < time.Hour {
			continue
		}
		key := r.Timestamp.Truncate(time.Hour).Unix()
		hourGroups[key] = append(hourGroups[key], r)
	}
	for key, samples := range hourGroups {
		if s.hourlyPromoted[key] {
			continue
		}
		s.hourly = append(s.hourly, aggregateRaw(time.Unix(key, 0).UTC(), samples))
		s.hourlyPromoted[key] = true
	}

	dayGroups := map[int64][]Bucket{}
	for _, h := range s.hourly {
		if now.Sub(h.Timestamp) < hourlyRetention {
			continue
		}
		key := h.Timestamp.Truncate(24 * time.Hour).Unix()
		dayGroups[key] = append(dayGroups[key], h)
	}
	for key, buckets := range dayGroups {
		if s.dailyPromoted[key] {
			continue
		}
		s.daily = append(s.daily, aggregateBuckets(time.Unix(key, 0).UTC(), buckets))
		s.dailyPromoted[key] = true
	}
}

func aggregateRaw(bucketStart time.Time, samples []RawSample) Bucket {
	sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) })

	stat := Stat{}
	volume := VolumeStat{}
	activitySum := map[string]float64{}
	activityMax := map[string]float64{}

	for i, s := range samples {
		d := float64(s.PollDuration)
		if i == 0 {
			stat.Min, stat.Max = d, d
		} else {
			if d < stat.Min {
				stat.Min = d
			}
			if d > stat.Max {
				stat.Max = d
			}
		}
		stat.Avg += d
		stat.Count++

		ev := float64(s.EventVolume)
		volume.Total += ev
		if ev > volume.Max {
			volume.Max = ev
		}

		for k, v := range s.AgentActivity {
			fv := float64(v)
			activitySum[k] += fv
			if fv > activityMax[k] {
				activityMax[k] = fv
			}
		}
	}
	if stat.Count > 0 {
		stat.Avg /= float64(stat.Count)
		volume.Avg = volume.Total / float64(stat.Count)
	}

	activity := make(map[string]ActivityStat, len(activitySum))
	for k, sum := range activitySum {
		activity[k] = ActivityStat{Avg: sum / float64(stat.Count), Max: activityMax[k]}
	}

	return Bucket{Timestamp: bucketStart, PollDuration: stat, EventVolume: volume, AgentActivity: activity}
}

func aggregateBuckets(bucketStart time.Time, buckets []Bucket) Bucket {
	stat := Stat{}
	volume := VolumeStat{}
	activitySum := map[string]float64{}
	activityMax := map[string]float64{}
	activityN := map[string]int{}

	for i, b := range buckets {
		if i == 0 || b.PollDuration.Min < stat.Min {
			stat.Min = b.PollDuration.Min
		}
		if b.PollDuration.Max > stat.Max {
			stat.Max = b.PollDuration.Max
		}
		stat.Avg += b.PollDuration.Avg * float64(b.PollDuration.Count)
		stat.Count += b.PollDuration.Count

		volume.Total += b.EventVolume.Total
		if b.EventVolume.Max > volume.Max {
			volume.Max = b.EventVolume.Max
		}

		for k, a := range b.AgentActivity {
			activitySum[k] += a.Avg
			activityN[k]++
			if a.Max > activityMax[k] {
				activityMax[k] = a.Max
			}
		}
	}
	if stat.Count > 0 {
		stat.Avg /= float64(stat.Count)
	}
	if len(buckets) > 0 {
		volume.Avg = volume.Total / float64(len(buckets))
	}

	activity := make(map[string]ActivityStat, len(activitySum))
	for k, sum := range activitySum {
		n := activityN[k]
		if n == 0 {
			n = 1
		}
		activity[k] = ActivityStat{Avg: sum / float64(n), Max: activityMax[k]}
	}

	return Bucket{Timestamp: bucketStart, PollDuration: stat, EventVolume: volume, AgentActivity: activity}
}

// cleanupLocked drops raw/hourly/daily entries that have aged out of
// their tier's retention window.
func (s *JSONStore) cleanupLocked(now time.Time) {
	s.raw = dropOlderSamples(s.raw, now.Add(-rawRetention))
	s.hourly = dropOlderBuckets(s.hourly, now.Add(-hourlyRetention))
	s.daily = dropOlderBuckets(s.daily, now.Add(-dailyRetention))
}

func dropOlderSamples(samples []RawSample, cutoff time.Time) []RawSample {
	out := samples[:0:0]
	for _, s := range samples {
		if s.Timestamp.After(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

func dropOlderBuckets(buckets []Bucket, cutoff time.Time) []Bucket {
	out := buckets[:0:0]
	for _, b := range buckets {
		if b.Timestamp.After(cutoff) {
			out = append(out, b)
		}
	}
	return out
}

// QueryRange returns a series of aggregate points covering [start,end]
// at the requested granularity. "auto" picks minute for ranges up to
// 2h, hour up to 7d, else day. The "hour" interval's most recent
// incomplete hour is backfilled by aggregating raw samples not yet
// promoted.
func (s *JSONStore) QueryRange(ctx context.Context, start, end time.Time, interval Interval) ([]SeriesPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if interval == IntervalAuto {
		interval = autoInterval(end.Sub(start))
	}

	switch interval {
	case IntervalMinute:
		return rawToPoints(filterRaw(s.raw, start, end)), nil
	case IntervalDay:
		return bucketsToPoints(filterBuckets(s.daily, start, end)), nil
	default:
		points := bucketsToPoints(filterBuckets(s.hourly, start, end))
		partial := filterRaw(s.raw, start, end)
		unpromoted := make([]RawSample, 0, len(partial))
		for _, r := range partial {
			if !s.hourlyPromoted[r.Timestamp.Truncate(time.Hour).Unix()] {
				unpromoted = append(unpromoted, r)
			}
		}
		if len(unpromoted) > 0 {
			hourStart := unpromoted[0].Timestamp.Truncate(time.Hour)
			bucket := aggregateRaw(hourStart, unpromoted)
			points = append(points, SeriesPoint{
				Timestamp: bucket.Timestamp, PollDuration: bucket.PollDuration,
				EventVolume: bucket.EventVolume, AgentActivity: bucket.AgentActivity,
			})
		}
		return points, nil
	}
}

func autoInterval(span time.Duration) Interval {
	switch {
	case span <= 2*time.Hour:
		return IntervalMinute
	case span <= 7*24*time.Hour:
		return IntervalHour
	default:
		return IntervalDay
	}
}

func filterRaw(samples []RawSample, start, end time.Time) []RawSample {
	out := make([]RawSample, 0, len(samples))
	for _, s := range samples {
		if !s.Timestamp.Before(start) && !s.Timestamp.After(end) {
			out = append(out, s)
		}
	}
	return out
}

func filterBuckets(buckets []Bucket, start, end time.Time) []Bucket {
	out := make([]Bucket, 0, len(buckets))
	for _, b := range buckets {
		if !b.Timestamp.Before(start) && !b.Timestamp.After(end) {
			out = append(out, b)
		}
	}
	return out
}

func rawToPoints(samples []RawSample) []SeriesPoint {
	out := make([]SeriesPoint, 0, len(samples))
	for _, s := range samples {
		activity := make(map[string]ActivityStat, len(s.AgentActivity))
		for k, v := range s.AgentActivity {
			activity[k] = ActivityStat{Avg: float64(v), Max: float64(v)}
		}
		out = append(out, SeriesPoint{
			Timestamp:    s.Timestamp,
			PollDuration: Stat{Avg: float64(s.PollDuration), Min: float64(s.PollDuration), Max: float64(s.PollDuration), Count: 1},
			EventVolume:  VolumeStat{Total: float64(s.EventVolume), Avg: float64(s.EventVolume), Max: float64(s.EventVolume)},
			AgentActivity: activity,
		})
	}
	return out
}

func bucketsToPoints(buckets []Bucket) []SeriesPoint {
	out := make([]SeriesPoint, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, SeriesPoint{
			Timestamp: b.Timestamp, PollDuration: b.PollDuration,
			EventVolume: b.EventVolume, AgentActivity: b.AgentActivity,
		})
	}
	return out
}

// GetSummary returns period statistics plus anomaly indices over the
// pollDuration series, computed with the 1.5×IQR rule.
func (s *JSONStore) GetSummary(ctx context.Context, start, end time.Time) (Summary, error) {
	s.mu.Lock()
	samples := filterRaw(s.raw, start, end)
	s.mu.Unlock()

	sum := Summary{Start: start, End: end, SampleCount: len(samples)}
	if len(samples) == 0 {
		return sum, nil
	}

	durations := make([]float64, len(samples))
	for i, s := range samples {
		durations[i] = float64(s.PollDuration)
		sum.AvgPollDuration += durations[i]
		sum.TotalEvents += s.EventVolume
	}
	sum.AvgPollDuration /= float64(len(samples))
	sum.AnomalyIndices = iqrOutliers(durations)
	return sum, nil
}

// iqrOutliers flags indices in values whose value falls outside
// [Q1-1.5×IQR, Q3+1.5×IQR], preserving the original index order.
func iqrOutliers(values []float64) []int {
	n := len(values)
	if n < 4 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr

	var indices []int
	for i, v := range values {
		if v < lower || v > upper {
			indices = append(indices, i)
		}
	}
	return indices
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// GetAgentEfficiency returns completion stats for one agent, or for
// every agent combined when agent is "" or "all".
func (s *JSONStore) GetAgentEfficiency(ctx context.Context, agent string, start, end time.Time) (AgentEfficiency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completions []AgentCompletion
	if agent == "" || agent == "all" {
		for _, log := range s.completions {
			completions = append(completions, log...)
		}
	} else {
		completions = append(completions, s.completions[agent]...)
	}

	sort.Slice(completions, func(i, j int) bool { return completions[i].Timestamp.Before(completions[j].Timestamp) })

	filtered := make([]AgentCompletion, 0, len(completions))
	for _, c := range completions {
		if !c.Timestamp.Before(start) && !c.Timestamp.After(end) {
			filtered = append(filtered, c)
		}
	}

	eff := AgentEfficiency{Agent: agent, CompletionCount: len(filtered)}
	if len(filtered) == 0 {
		return eff, nil
	}

	var sum int64
	eff.MinDurationMs = filtered[0].DurationMs
	for _, c := range filtered {
		sum += c.DurationMs
		if c.DurationMs < eff.MinDurationMs {
			eff.MinDurationMs = c.DurationMs
		}
		if c.DurationMs > eff.MaxDurationMs {
			eff.MaxDurationMs = c.DurationMs
		}
	}
	eff.AvgDurationMs = float64(sum) / float64(len(filtered))

	start100 := 0
	if len(filtered) > 100 {
		start100 = len(filtered) - 100
	}
	eff.Last100 = filtered[start100:]
	return eff, nil
}

// StorageStats reports how many samples/buckets each tier currently
// holds, for the metrics-storage read endpoint.
func (s *JSONStore) StorageStats(ctx context.Context) (StorageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StorageStats{
		RawSamples:    len(s.raw),
		HourlyBuckets: len(s.hourly),
		DailyBuckets:  len(s.daily),
		TrackedAgents: len(s.completions),
	}, nil
}

// Flush forces an immediate save regardless of the dirty flag,
// intended for use during graceful shutdown.
func (s *JSONStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
	return s.save()
}

// Close flushes and releases the store. The JSONStore holds no other
// resources.
func (s *JSONStore) Close() error {
	return s.Flush(context.Background())
}

// save rewrites the JSON document if dirty, then clears the flag.
// Idempotent: callers may invoke it as often as they like.
func (s *JSONStore) save() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	doc := persistedDoc{
		RawMetrics:      s.raw,
		HourlyMetrics:   s.hourly,
		DailyMetrics:    s.daily,
		AgentEfficiency: s.completions,
		LastUpdated:     time.Now(),
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return err
	}

	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	return nil
}

// Run drives the periodic cleanup-and-save tick (spec.md §4.7: "a
// cleanup pass runs ... on a 5 min save tick"), returning when ctx is
// canceled.
func (s *JSONStore) Run(ctx context.Context) {
	ticker := time.NewTicker(saveTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.cleanupLocked(time.Now())
			s.mu.Unlock()
			if err := s.save(); err != nil {
				s.logger.Printf("history: save tick failed: %v", err)
			}
		}
	}
}
